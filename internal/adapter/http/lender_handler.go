package http

import (
	"net/http"

	"credlend-backend/internal/domain/lender"
	"credlend-backend/internal/usecase/settlement"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type LenderHandler struct {
	settle  *settlement.Usecase
	lenders lender.Repository
}

func NewLenderHandler(settle *settlement.Usecase, lenders lender.Repository) *LenderHandler {
	return &LenderHandler{settle: settle, lenders: lenders}
}

func (h *LenderHandler) ListPools(c echo.Context) error {
	pools, err := h.lenders.ListActivePools(c.Request().Context())
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"pools": pools})
}

func (h *LenderHandler) GetPoolStats(c echo.Context) error {
	stats, err := h.settle.GetPoolStats(c.Request().Context(), c.Param("pool_id"))
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

type createDepositReq struct {
	PoolID        string          `json:"pool_id"        validate:"required,hex32"`
	WalletAddress string          `json:"wallet_address" validate:"required,wallet"`
	Amount        decimal.Decimal `json:"amount"`
}

func (h *LenderHandler) CreateDeposit(c echo.Context) error {
	var req createDepositReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "validation failed",
			Details: ToFieldErrors(err),
		})
	}
	if !req.Amount.IsPositive() {
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "validation failed",
			Details: []FieldError{{Field: "Amount", Message: "must be positive"}},
		})
	}
	dto, err := h.settle.CreateDeposit(c.Request().Context(), settlement.CreateDepositInput{
		PoolID:        req.PoolID,
		WalletAddress: req.WalletAddress,
		Amount:        req.Amount,
	})
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusAccepted, dto)
}

// WithdrawDeposit returns 202: the ledger effect is reserved and the payout
// transfer is pending reconciliation.
func (h *LenderHandler) WithdrawDeposit(c echo.Context) error {
	dto, err := h.settle.WithdrawDeposit(c.Request().Context(), c.Param("deposit_id"))
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusAccepted, dto)
}
