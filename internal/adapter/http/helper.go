package http

import (
	"errors"
	"net/http"

	"credlend-backend/internal/domain/chaintx"
	"credlend-backend/internal/domain/lender"
	"credlend-backend/internal/domain/loan"
	"credlend-backend/internal/usecase/lending"
	"credlend-backend/internal/usecase/settlement"
	"credlend-backend/internal/usecase/tracker"

	"github.com/labstack/echo/v4"
)

// errStatus maps domain errors to HTTP codes. Anything unmapped is a 500.
func errStatus(err error) int {
	switch {
	case errors.Is(err, loan.ErrNotFound),
		errors.Is(err, loan.ErrProductNotFound),
		errors.Is(err, lender.ErrNotFound),
		errors.Is(err, chaintx.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, loan.ErrAlreadyPaid),
		errors.Is(err, loan.ErrInvalidTransition),
		errors.Is(err, lender.ErrAlreadyWithdrawn):
		return http.StatusConflict
	case errors.Is(err, loan.ErrProductInactive),
		errors.Is(err, loan.ErrAmountOutOfRange),
		errors.Is(err, loan.ErrOverRepayment),
		errors.Is(err, loan.ErrLoanNotActive),
		errors.Is(err, lender.ErrPoolInactive),
		errors.Is(err, lender.ErrBelowMinDeposit),
		errors.Is(err, lender.ErrInsufficientLiquidity),
		errors.Is(err, lender.ErrStillLocked),
		errors.Is(err, lending.ErrInvalidInput),
		errors.Is(err, settlement.ErrInvalidInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, tracker.ErrSubmissionFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func jsonError(c echo.Context, err error) error {
	return c.JSON(errStatus(err), ErrorResponse{Error: err.Error()})
}
