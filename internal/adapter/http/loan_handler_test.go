package http

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"credlend-backend/internal/domain/loan"
	"credlend-backend/internal/testutil/chainmock"
	"credlend-backend/internal/testutil/uowmock"
	"credlend-backend/internal/usecase/lending"
	"credlend-backend/pkg/id"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

func newLoanHandler(store *uowmock.Store, ch *chainmock.Chain) *LoanHandler {
	settle := newSettlement(store, ch)
	lend := lending.NewUsecase(store.LoanRepo(), store, settle, discard())
	return NewLoanHandler(lend, settle)
}

func seedTestProduct(store *uowmock.Store) *loan.Product {
	return store.SeedProduct(&loan.Product{
		ProductID:       id.NewID32(),
		Name:            "Working Capital",
		MinAmount:       dec("100"),
		MaxAmount:       dec("10000"),
		MinDurationDays: 30,
		MaxDurationDays: 365,
		InterestRate:    dec("12.00"),
		IsActive:        true,
	})
}

func TestLoanHandler_CreateApplication(t *testing.T) {
	store := uowmock.New()
	h := newLoanHandler(store, chainmock.New())
	p := seedTestProduct(store)

	e := echo.New()
	e.Validator = NewValidator()

	body := `{"product_id":"` + p.ProductID + `","wallet_address":"Borrower11111111111111111111111111111111","amount":"1000","duration_days":90,"purpose":"inventory"}`
	c, rec := newContext(e, http.MethodPost, "/applications", body)
	if err := h.CreateApplication(c); err != nil {
		t.Fatalf("CreateApplication: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var a loan.Application
	if err := json.Unmarshal(rec.Body.Bytes(), &a); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if a.Status != loan.ApplicationDraft || a.ApplicationID == "" {
		t.Errorf("application = %+v", a)
	}
}

func TestLoanHandler_CreateApplication_OutOfRange(t *testing.T) {
	store := uowmock.New()
	h := newLoanHandler(store, chainmock.New())
	p := seedTestProduct(store)

	e := echo.New()
	e.Validator = NewValidator()

	body := `{"product_id":"` + p.ProductID + `","wallet_address":"Borrower11111111111111111111111111111111","amount":"999999","duration_days":90}`
	c, rec := newContext(e, http.MethodPost, "/applications", body)
	if err := h.CreateApplication(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422: %s", rec.Code, rec.Body.String())
	}
}

func TestLoanHandler_PayRepayment(t *testing.T) {
	store := uowmock.New()
	h := newLoanHandler(store, chainmock.New())

	lo := store.SeedLoan(&loan.Loan{
		LoanID:          id.NewID32(),
		BorrowerWallet:  "Borrower11111111111111111111111111111111",
		ContractAddress: "Contract1111111111111111111111111111111",
		Principal:       dec("1000"),
		TotalDue:        dec("1100"),
		AmountRepaid:    decimal.Zero,
		Status:          loan.StatusActive,
	})
	rep := store.SeedRepayment(&loan.Repayment{
		RepaymentID: id.NewID32(),
		LoanID:      lo.ID,
		Amount:      dec("550"),
		DueDate:     time.Now().UTC().AddDate(0, 0, 30),
	})

	e := echo.New()
	c, rec := newContext(e, http.MethodPost, "/repayments/"+rep.RepaymentID+"/pay", "")
	c.SetParamNames("repayment_id")
	c.SetParamValues(rep.RepaymentID)
	if err := h.PayRepayment(c); err != nil {
		t.Fatalf("PayRepayment: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	// a second pay of the same installment conflicts
	c, rec = newContext(e, http.MethodPost, "/repayments/"+rep.RepaymentID+"/pay", "")
	c.SetParamNames("repayment_id")
	c.SetParamValues(rep.RepaymentID)
	if err := h.PayRepayment(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusConflict {
		t.Errorf("double pay status = %d, want 409: %s", rec.Code, rec.Body.String())
	}
}

func TestLoanHandler_UpcomingRepayments_WalletValidation(t *testing.T) {
	store := uowmock.New()
	h := newLoanHandler(store, chainmock.New())

	e := echo.New()
	c, rec := newContext(e, http.MethodGet, "/repayments/upcoming?wallet=0xdeadbeef", "")
	if err := h.UpcomingRepayments(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
}
