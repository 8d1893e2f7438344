package mysql

import (
	"context"
	"errors"
	"testing"

	loanDomain "credlend-backend/internal/domain/loan"
	"credlend-backend/internal/domain/uow"
	"credlend-backend/pkg/id"
)

func TestGormUoW_Commit(t *testing.T) {
	db := openTestDB(t)
	unit := NewGormUoW(db)
	repo := NewLoanRepository(db)
	ctx := context.Background()

	loanID := id.NewID32()
	err := unit.WithinTx(ctx, func(r uow.Repos) error {
		return r.Loans.CreateLoan(ctx, &loanDomain.Loan{
			LoanID:         loanID,
			BorrowerWallet: "w7777777777777777777777777777777777777",
			Principal:      dec("100"),
			TotalDue:       dec("110"),
			Status:         loanDomain.StatusActive,
		})
	})
	if err != nil {
		t.Fatalf("WithinTx: %v", err)
	}

	if _, err := repo.GetLoanByID(ctx, loanID); err != nil {
		t.Fatalf("loan missing after commit: %v", err)
	}
}

func TestGormUoW_Rollback(t *testing.T) {
	db := openTestDB(t)
	unit := NewGormUoW(db)
	repo := NewLoanRepository(db)
	ctx := context.Background()

	loanID := id.NewID32()
	boom := errors.New("boom")
	err := unit.WithinTx(ctx, func(r uow.Repos) error {
		if err := r.Loans.CreateLoan(ctx, &loanDomain.Loan{
			LoanID:         loanID,
			BorrowerWallet: "w8888888888888888888888888888888888888",
			Principal:      dec("100"),
			TotalDue:       dec("110"),
			Status:         loanDomain.StatusActive,
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithinTx error = %v, want boom", err)
	}

	if _, err := repo.GetLoanByID(ctx, loanID); !errors.Is(err, loanDomain.ErrNotFound) {
		t.Fatalf("loan visible after rollback: %v", err)
	}
}
