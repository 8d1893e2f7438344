package loan

import (
	"context"
	"time"
)

type Repository interface {
	// Products are seeded out-of-band; the core only reads them.
	GetProductByID(ctx context.Context, productID string) (*Product, error)
	GetProductByNumericID(ctx context.Context, id uint64) (*Product, error)
	ListActiveProducts(ctx context.Context) ([]Product, error)

	CreateApplication(ctx context.Context, a *Application) error
	GetApplicationByID(ctx context.Context, applicationID string) (*Application, error)
	GetApplicationByIDForUpdate(ctx context.Context, applicationID string) (*Application, error)
	SaveApplication(ctx context.Context, a *Application) error

	CreateLoan(ctx context.Context, l *Loan) error
	GetLoanByID(ctx context.Context, loanID string) (*Loan, error)
	GetLoanByIDForUpdate(ctx context.Context, loanID string) (*Loan, error)
	GetLoanByNumericIDForUpdate(ctx context.Context, id uint64) (*Loan, error)
	SaveLoan(ctx context.Context, l *Loan) error
	ListDefaultedWithCollateral(ctx context.Context) ([]Loan, error)

	CreateRepayments(ctx context.Context, reps []Repayment) error
	GetRepaymentByID(ctx context.Context, repaymentID string) (*Repayment, error)
	SaveRepayment(ctx context.Context, r *Repayment) error
	// ListDueUnpaid feeds the lifecycle sweeper: unpaid installments whose
	// due date has passed, oldest first.
	ListDueUnpaid(ctx context.Context, before time.Time, limit int) ([]Repayment, error)
	ListUpcomingByWallet(ctx context.Context, wallet string, after time.Time) ([]Repayment, error)
	ListOverdueByWallet(ctx context.Context, wallet string, before time.Time) ([]Repayment, error)
}
