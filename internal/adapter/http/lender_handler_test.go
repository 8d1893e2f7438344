package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"credlend-backend/internal/domain/lender"
	"credlend-backend/internal/observability"
	"credlend-backend/internal/testutil/chainmock"
	"credlend-backend/internal/testutil/uowmock"
	"credlend-backend/internal/usecase/settlement"
	"credlend-backend/internal/usecase/tracker"
	"credlend-backend/pkg/id"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newSettlement(store *uowmock.Store, ch *chainmock.Chain) *settlement.Usecase {
	trk := tracker.NewUsecase(store, store.ChainTxRepo(), ch, discard(), observability.NewUnregistered(),
		2*time.Minute, 10*time.Second)
	settle := settlement.NewUsecase(store, trk, discard(), observability.NewUnregistered(),
		"Operator11111111111111111111111111111111", 3)
	trk.SetFinalityHandler(settle.ApplyFinality)
	return settle
}

func newContext(e *echo.Echo, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestLenderHandler_CreateDeposit(t *testing.T) {
	store := uowmock.New()
	settle := newSettlement(store, chainmock.New())
	h := NewLenderHandler(settle, store.LenderRepo())

	pool := store.SeedPool(&lender.Pool{
		PoolID:       id.NewID32(),
		TokenAddress: "Pool11111111111111111111111111111111111",
		MinDeposit:   dec("10"),
		IsActive:     true,
	})

	e := echo.New()
	e.Validator = NewValidator()

	body := `{"pool_id":"` + pool.PoolID + `","wallet_address":"Lender111111111111111111111111111111111","amount":"250"}`
	c, rec := newContext(e, http.MethodPost, "/deposits", body)

	if err := h.CreateDeposit(c); err != nil {
		t.Fatalf("CreateDeposit: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Status     string          `json:"status"`
		TrackingID string          `json:"tracking_id"`
		DepositID  string          `json:"deposit_id"`
		Amount     decimal.Decimal `json:"amount"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "pending" || resp.TrackingID == "" || resp.DepositID == "" {
		t.Errorf("response = %+v", resp)
	}
	if !resp.Amount.Equal(dec("250")) {
		t.Errorf("amount = %s", resp.Amount)
	}
}

func TestLenderHandler_CreateDeposit_Validation(t *testing.T) {
	store := uowmock.New()
	settle := newSettlement(store, chainmock.New())
	h := NewLenderHandler(settle, store.LenderRepo())

	e := echo.New()
	e.Validator = NewValidator()

	cases := []struct {
		name string
		body string
	}{
		{"bad pool id", `{"pool_id":"XYZ","wallet_address":"Lender111111111111111111111111111111111","amount":"250"}`},
		{"bad wallet", `{"pool_id":"0123456789abcdef0123456789abcdef","wallet_address":"0bad","amount":"250"}`},
		{"zero amount", `{"pool_id":"0123456789abcdef0123456789abcdef","wallet_address":"Lender111111111111111111111111111111111","amount":"0"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, rec := newContext(e, http.MethodPost, "/deposits", tc.body)
			if err := h.CreateDeposit(c); err != nil {
				t.Fatalf("handler error: %v", err)
			}
			if rec.Code != http.StatusUnprocessableEntity {
				t.Errorf("status = %d, want 422: %s", rec.Code, rec.Body.String())
			}
			var resp ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(resp.Details) == 0 {
				t.Error("validation response has no field details")
			}
		})
	}
}

func TestLenderHandler_CreateDeposit_DomainErrors(t *testing.T) {
	store := uowmock.New()
	settle := newSettlement(store, chainmock.New())
	h := NewLenderHandler(settle, store.LenderRepo())

	pool := store.SeedPool(&lender.Pool{
		PoolID:     id.NewID32(),
		MinDeposit: dec("100"),
		IsActive:   true,
	})

	e := echo.New()
	e.Validator = NewValidator()

	body := `{"pool_id":"` + pool.PoolID + `","wallet_address":"Lender111111111111111111111111111111111","amount":"50"}`
	c, rec := newContext(e, http.MethodPost, "/deposits", body)
	if err := h.CreateDeposit(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("below min deposit status = %d, want 422", rec.Code)
	}

	missing := `{"pool_id":"ffffffffffffffffffffffffffffffff","wallet_address":"Lender111111111111111111111111111111111","amount":"500"}`
	c, rec = newContext(e, http.MethodPost, "/deposits", missing)
	if err := h.CreateDeposit(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown pool status = %d, want 404", rec.Code)
	}
}

func TestLenderHandler_WithdrawDeposit_Conflicts(t *testing.T) {
	store := uowmock.New()
	settle := newSettlement(store, chainmock.New())
	h := NewLenderHandler(settle, store.LenderRepo())

	pool := store.SeedPool(&lender.Pool{
		PoolID:       id.NewID32(),
		TokenAddress: "Pool11111111111111111111111111111111111",
		MinDeposit:   dec("10"),
		IsActive:     true,
	})
	locked := store.SeedDeposit(&lender.Deposit{
		DepositID:     id.NewID32(),
		WalletAddress: "Lender111111111111111111111111111111111",
		PoolID:        pool.ID,
		Amount:        dec("100"),
		Shares:        dec("100"),
		UnlockedAt:    time.Now().UTC().AddDate(0, 0, 30),
	})

	e := echo.New()
	e.Validator = NewValidator()

	c, rec := newContext(e, http.MethodPost, "/deposits/"+locked.DepositID+"/withdraw", "")
	c.SetParamNames("deposit_id")
	c.SetParamValues(locked.DepositID)
	if err := h.WithdrawDeposit(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("locked withdraw status = %d, want 422: %s", rec.Code, rec.Body.String())
	}

	c, rec = newContext(e, http.MethodPost, "/deposits/ffffffffffffffffffffffffffffffff/withdraw", "")
	c.SetParamNames("deposit_id")
	c.SetParamValues("ffffffffffffffffffffffffffffffff")
	if err := h.WithdrawDeposit(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown deposit status = %d, want 404", rec.Code)
	}
}

func TestLenderHandler_GetPoolStats(t *testing.T) {
	store := uowmock.New()
	ch := chainmock.New()
	settle := newSettlement(store, ch)
	h := NewLenderHandler(settle, store.LenderRepo())

	pool := store.SeedPool(&lender.Pool{
		PoolID:       id.NewID32(),
		Name:         "Stable Yield",
		TokenAddress: "Pool11111111111111111111111111111111111",
		MinDeposit:   dec("10"),
		IsActive:     true,
	})
	if _, err := settle.CreateDeposit(context.Background(), settlement.CreateDepositInput{
		PoolID:        pool.PoolID,
		WalletAddress: "Lender111111111111111111111111111111111",
		Amount:        dec("1000"),
	}); err != nil {
		t.Fatal(err)
	}

	e := echo.New()
	c, rec := newContext(e, http.MethodGet, "/pools/"+pool.PoolID+"/stats", "")
	c.SetParamNames("pool_id")
	c.SetParamValues(pool.PoolID)
	if err := h.GetPoolStats(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var stats lender.PoolStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.PoolName != "Stable Yield" || stats.ActiveDeposits != 1 {
		t.Errorf("stats = %+v", stats)
	}
}
