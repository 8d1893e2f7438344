package mysql

import (
	"context"
	"errors"
	"time"

	loanDomain "credlend-backend/internal/domain/loan"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LoanRepository struct{ db *gorm.DB }

func NewLoanRepository(db *gorm.DB) *LoanRepository { return &LoanRepository{db: db} }

func (r *LoanRepository) GetProductByID(ctx context.Context, productID string) (*loanDomain.Product, error) {
	var out loanDomain.Product
	res := r.db.WithContext(ctx).Where("product_id = ?", productID).First(&out)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, loanDomain.ErrProductNotFound
	}
	return &out, res.Error
}

func (r *LoanRepository) GetProductByNumericID(ctx context.Context, id uint64) (*loanDomain.Product, error) {
	var out loanDomain.Product
	res := r.db.WithContext(ctx).Where("id = ?", id).First(&out)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, loanDomain.ErrProductNotFound
	}
	return &out, res.Error
}

func (r *LoanRepository) ListActiveProducts(ctx context.Context) ([]loanDomain.Product, error) {
	var out []loanDomain.Product
	res := r.db.WithContext(ctx).Where("is_active = ?", true).Order("id ASC").Find(&out)
	return out, res.Error
}

func (r *LoanRepository) CreateApplication(ctx context.Context, a *loanDomain.Application) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *LoanRepository) GetApplicationByID(ctx context.Context, applicationID string) (*loanDomain.Application, error) {
	var out loanDomain.Application
	res := r.db.WithContext(ctx).Where("application_id = ?", applicationID).First(&out)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, loanDomain.ErrNotFound
	}
	return &out, res.Error
}

func (r *LoanRepository) GetApplicationByIDForUpdate(ctx context.Context, applicationID string) (*loanDomain.Application, error) {
	var out loanDomain.Application
	res := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("application_id = ?", applicationID).
		First(&out)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, loanDomain.ErrNotFound
	}
	return &out, res.Error
}

func (r *LoanRepository) SaveApplication(ctx context.Context, a *loanDomain.Application) error {
	return r.db.WithContext(ctx).Save(a).Error
}

func (r *LoanRepository) CreateLoan(ctx context.Context, l *loanDomain.Loan) error {
	return r.db.WithContext(ctx).Create(l).Error
}

func (r *LoanRepository) GetLoanByID(ctx context.Context, loanID string) (*loanDomain.Loan, error) {
	var out loanDomain.Loan
	res := r.db.WithContext(ctx).Where("loan_id = ?", loanID).First(&out)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, loanDomain.ErrNotFound
	}
	return &out, res.Error
}

// GetLoanByIDForUpdate takes the loan row lock; every balance-affecting
// mutation on a loan goes through this.
func (r *LoanRepository) GetLoanByIDForUpdate(ctx context.Context, loanID string) (*loanDomain.Loan, error) {
	var out loanDomain.Loan
	res := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("loan_id = ?", loanID).
		First(&out)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, loanDomain.ErrNotFound
	}
	return &out, res.Error
}

func (r *LoanRepository) GetLoanByNumericIDForUpdate(ctx context.Context, id uint64) (*loanDomain.Loan, error) {
	var out loanDomain.Loan
	res := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&out)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, loanDomain.ErrNotFound
	}
	return &out, res.Error
}

func (r *LoanRepository) SaveLoan(ctx context.Context, l *loanDomain.Loan) error {
	return r.db.WithContext(ctx).Save(l).Error
}

func (r *LoanRepository) ListDefaultedWithCollateral(ctx context.Context) ([]loanDomain.Loan, error) {
	var out []loanDomain.Loan
	res := r.db.WithContext(ctx).
		Where("status = ? AND collateral_address IS NOT NULL", loanDomain.StatusDefaulted).
		Order("id ASC").
		Find(&out)
	return out, res.Error
}

func (r *LoanRepository) CreateRepayments(ctx context.Context, reps []loanDomain.Repayment) error {
	if len(reps) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&reps).Error
}

func (r *LoanRepository) GetRepaymentByID(ctx context.Context, repaymentID string) (*loanDomain.Repayment, error) {
	var out loanDomain.Repayment
	res := r.db.WithContext(ctx).Where("repayment_id = ?", repaymentID).First(&out)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, loanDomain.ErrNotFound
	}
	return &out, res.Error
}

func (r *LoanRepository) SaveRepayment(ctx context.Context, rep *loanDomain.Repayment) error {
	return r.db.WithContext(ctx).Save(rep).Error
}

func (r *LoanRepository) ListDueUnpaid(ctx context.Context, before time.Time, limit int) ([]loanDomain.Repayment, error) {
	var out []loanDomain.Repayment
	q := r.db.WithContext(ctx).
		Where("due_date < ? AND paid_at IS NULL", before).
		Order("due_date ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	res := q.Find(&out)
	return out, res.Error
}

func (r *LoanRepository) ListUpcomingByWallet(ctx context.Context, wallet string, after time.Time) ([]loanDomain.Repayment, error) {
	var out []loanDomain.Repayment
	res := r.db.WithContext(ctx).
		Joins("JOIN loans ON loans.id = repayments.loan_id").
		Where("loans.borrower_wallet = ? AND repayments.paid_at IS NULL AND repayments.due_date >= ?", wallet, after).
		Order("repayments.due_date ASC").
		Find(&out)
	return out, res.Error
}

func (r *LoanRepository) ListOverdueByWallet(ctx context.Context, wallet string, before time.Time) ([]loanDomain.Repayment, error) {
	var out []loanDomain.Repayment
	res := r.db.WithContext(ctx).
		Joins("JOIN loans ON loans.id = repayments.loan_id").
		Where("loans.borrower_wallet = ? AND repayments.paid_at IS NULL AND repayments.due_date < ?", wallet, before).
		Order("repayments.due_date ASC").
		Find(&out)
	return out, res.Error
}
