package http

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"credlend-backend/internal/domain/chaintx"
	"credlend-backend/internal/domain/lender"
	"credlend-backend/internal/domain/loan"
	"credlend-backend/internal/usecase/tracker"
)

func TestErrStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{loan.ErrNotFound, http.StatusNotFound},
		{chaintx.ErrNotFound, http.StatusNotFound},
		{loan.ErrAlreadyPaid, http.StatusConflict},
		{lender.ErrAlreadyWithdrawn, http.StatusConflict},
		{loan.ErrInvalidTransition, http.StatusConflict},
		{lender.ErrBelowMinDeposit, http.StatusUnprocessableEntity},
		{lender.ErrStillLocked, http.StatusUnprocessableEntity},
		{loan.ErrOverRepayment, http.StatusUnprocessableEntity},
		{tracker.ErrSubmissionFailed, http.StatusBadGateway},
		{errors.New("disk on fire"), http.StatusInternalServerError},
		// wrapped errors still map through errors.Is
		{fmt.Errorf("pay installment: %w", loan.ErrAlreadyPaid), http.StatusConflict},
	}
	for _, tc := range cases {
		if got := errStatus(tc.err); got != tc.want {
			t.Errorf("errStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
