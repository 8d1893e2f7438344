package uow

import (
	"context"

	"credlend-backend/internal/domain/chaintx"
	"credlend-backend/internal/domain/lender"
	"credlend-backend/internal/domain/loan"
)

type Repos struct {
	Loans    loan.Repository
	Lenders  lender.Repository
	ChainTxs chaintx.Repository
}

// UnitOfWork scopes repository calls to one database transaction. The
// entity-locking variants take the row lock up-front so every
// balance-affecting mutation runs as a single-writer critical section.
// Cross-entity flows lock pool before loan.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(r Repos) error) error
	// WithinLoanTx locks the loan row first, then passes it in.
	WithinLoanTx(ctx context.Context, loanID string, fn func(r Repos, l *loan.Loan) error) error
	// WithinPoolTx locks the pool row first, then passes it in.
	WithinPoolTx(ctx context.Context, poolID string, fn func(r Repos, p *lender.Pool) error) error
}
