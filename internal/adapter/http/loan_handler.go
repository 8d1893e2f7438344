package http

import (
	"net/http"

	"credlend-backend/internal/usecase/lending"
	"credlend-backend/internal/usecase/settlement"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type LoanHandler struct {
	lending *lending.Usecase
	settle  *settlement.Usecase
}

func NewLoanHandler(l *lending.Usecase, s *settlement.Usecase) *LoanHandler {
	return &LoanHandler{lending: l, settle: s}
}

func (h *LoanHandler) ListProducts(c echo.Context) error {
	products, err := h.lending.ListProducts(c.Request().Context())
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"products": products})
}

type createApplicationReq struct {
	ProductID     string          `json:"product_id"     validate:"required,hex32"`
	WalletAddress string          `json:"wallet_address" validate:"required,wallet"`
	Amount        decimal.Decimal `json:"amount"`
	DurationDays  int             `json:"duration_days"  validate:"required,gte=1"`
	Purpose       string          `json:"purpose"`
}

func (h *LoanHandler) CreateApplication(c echo.Context) error {
	var req createApplicationReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "validation failed",
			Details: ToFieldErrors(err),
		})
	}
	a, err := h.lending.CreateApplication(c.Request().Context(), lending.CreateApplicationInput{
		ProductID:     req.ProductID,
		WalletAddress: req.WalletAddress,
		Amount:        req.Amount,
		DurationDays:  req.DurationDays,
		Purpose:       req.Purpose,
	})
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *LoanHandler) SubmitApplication(c echo.Context) error {
	a, err := h.lending.SubmitApplication(c.Request().Context(), c.Param("application_id"))
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

type approveApplicationReq struct {
	PoolID            string              `json:"pool_id"            validate:"omitempty,hex32"`
	ContractAddress   string              `json:"contract_address"   validate:"required,wallet"`
	CollateralAddress *string             `json:"collateral_address" validate:"omitempty,wallet"`
	CollateralValue   decimal.NullDecimal `json:"collateral_value"`
}

func (h *LoanHandler) ApproveApplication(c echo.Context) error {
	var req approveApplicationReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "validation failed",
			Details: ToFieldErrors(err),
		})
	}
	dto, err := h.lending.ApproveApplication(c.Request().Context(), lending.ApproveInput{
		ApplicationID:     c.Param("application_id"),
		PoolID:            req.PoolID,
		ContractAddress:   req.ContractAddress,
		CollateralAddress: req.CollateralAddress,
		CollateralValue:   req.CollateralValue,
	})
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

type rejectApplicationReq struct {
	Reason string `json:"reason" validate:"required"`
}

func (h *LoanHandler) RejectApplication(c echo.Context) error {
	var req rejectApplicationReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "validation failed",
			Details: ToFieldErrors(err),
		})
	}
	a, err := h.lending.RejectApplication(c.Request().Context(), c.Param("application_id"), req.Reason)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *LoanHandler) GetLoan(c echo.Context) error {
	lo, err := h.lending.GetLoan(c.Request().Context(), c.Param("loan_id"))
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, lo)
}

// PayRepayment returns 202: the installment is optimistically applied and
// the on-chain transfer is pending reconciliation.
func (h *LoanHandler) PayRepayment(c echo.Context) error {
	dto, err := h.settle.PayRepayment(c.Request().Context(), c.Param("repayment_id"))
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusAccepted, dto)
}

func (h *LoanHandler) UpcomingRepayments(c echo.Context) error {
	wallet := c.QueryParam("wallet")
	if !reWallet.MatchString(wallet) {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid wallet query param"})
	}
	reps, err := h.lending.UpcomingRepayments(c.Request().Context(), wallet)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"repayments": reps})
}

func (h *LoanHandler) OverdueRepayments(c echo.Context) error {
	wallet := c.QueryParam("wallet")
	if !reWallet.MatchString(wallet) {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid wallet query param"})
	}
	reps, err := h.lending.OverdueRepayments(c.Request().Context(), wallet)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"repayments": reps})
}
