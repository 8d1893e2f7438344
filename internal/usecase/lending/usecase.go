package lending

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"credlend-backend/internal/domain/loan"
	"credlend-backend/internal/domain/uow"
	"credlend-backend/internal/usecase/settlement"
	"credlend-backend/pkg/id"

	"github.com/shopspring/decimal"
)

var ErrInvalidInput = errors.New("invalid input")

const installmentDays = 30

// Allocator is the slice of the settlement coordinator that funds an
// approved loan from a pool.
type Allocator interface {
	AllocateToLoan(ctx context.Context, poolID, loanID string, amount decimal.Decimal) (*settlement.AllocationDTO, error)
}

// Usecase covers the application side of lending: product catalog, the
// draft -> submitted -> approved flow, loan creation with its repayment
// schedule, and the borrower-facing repayment queries.
type Usecase struct {
	repo      loan.Repository
	uow       uow.UnitOfWork
	allocator Allocator
	log       *slog.Logger
}

func NewUsecase(repo loan.Repository, u uow.UnitOfWork, allocator Allocator, log *slog.Logger) *Usecase {
	return &Usecase{repo: repo, uow: u, allocator: allocator, log: log}
}

func (u *Usecase) ListProducts(ctx context.Context) ([]loan.Product, error) {
	return u.repo.ListActiveProducts(ctx)
}

type CreateApplicationInput struct {
	ProductID     string          `json:"product_id"`
	WalletAddress string          `json:"wallet_address"`
	Amount        decimal.Decimal `json:"amount"`
	DurationDays  int             `json:"duration_days"`
	Purpose       string          `json:"purpose"`
}

func (u *Usecase) CreateApplication(ctx context.Context, in CreateApplicationInput) (*loan.Application, error) {
	if in.WalletAddress == "" || !in.Amount.IsPositive() || in.DurationDays <= 0 {
		return nil, ErrInvalidInput
	}
	p, err := u.repo.GetProductByID(ctx, in.ProductID)
	if err != nil {
		return nil, err
	}
	if err := p.ValidateAmount(in.Amount); err != nil {
		return nil, err
	}
	if err := p.ValidateDuration(in.DurationDays); err != nil {
		return nil, err
	}
	a := &loan.Application{
		ApplicationID: id.NewID32(),
		WalletAddress: in.WalletAddress,
		ProductID:     p.ID,
		Amount:        in.Amount,
		DurationDays:  in.DurationDays,
		Purpose:       in.Purpose,
		Status:        loan.ApplicationDraft,
	}
	if err := u.repo.CreateApplication(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (u *Usecase) SubmitApplication(ctx context.Context, applicationID string) (*loan.Application, error) {
	var out loan.Application
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		a, err := r.Loans.GetApplicationByIDForUpdate(ctx, applicationID)
		if err != nil {
			return err
		}
		if err := a.Submit(); err != nil {
			return err
		}
		if err := r.Loans.SaveApplication(ctx, a); err != nil {
			return err
		}
		out = *a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type ApproveInput struct {
	ApplicationID     string              `json:"application_id"`
	PoolID            string              `json:"pool_id"`
	ContractAddress   string              `json:"contract_address"`
	CollateralAddress *string             `json:"collateral_address,omitempty"`
	CollateralValue   decimal.NullDecimal `json:"collateral_value,omitempty"`
}

type ApprovedLoanDTO struct {
	Loan       *loan.Loan                `json:"loan"`
	Schedule   []loan.Repayment          `json:"schedule"`
	Allocation *settlement.AllocationDTO `json:"allocation,omitempty"`
}

// ApproveApplication turns an application into a funded loan: total_due is
// fixed at creation (principal plus simple interest over the term), the
// installment schedule is generated, and the funding allocation is submitted
// against the chosen pool.
func (u *Usecase) ApproveApplication(ctx context.Context, in ApproveInput) (*ApprovedLoanDTO, error) {
	if in.ContractAddress == "" {
		return nil, ErrInvalidInput
	}
	now := time.Now().UTC()

	var lo *loan.Loan
	var schedule []loan.Repayment
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		a, err := r.Loans.GetApplicationByIDForUpdate(ctx, in.ApplicationID)
		if err != nil {
			return err
		}
		p, err := r.Loans.GetProductByNumericID(ctx, a.ProductID)
		if err != nil {
			return err
		}
		if err := a.Approve(now); err != nil {
			return err
		}
		totalDue := a.Amount.Add(simpleInterest(a.Amount, p.InterestRate, a.DurationDays))
		lo = &loan.Loan{
			LoanID:            id.NewID32(),
			ApplicationID:     a.ID,
			BorrowerWallet:    a.WalletAddress,
			ContractAddress:   in.ContractAddress,
			Principal:         a.Amount,
			InterestRate:      p.InterestRate,
			TotalDue:          totalDue,
			AmountRepaid:      decimal.Zero,
			StartDate:         now,
			DueDate:           now.AddDate(0, 0, a.DurationDays),
			Status:            loan.StatusActive,
			CollateralAddress: in.CollateralAddress,
			CollateralValue:   in.CollateralValue,
		}
		if err := r.Loans.CreateLoan(ctx, lo); err != nil {
			return err
		}
		schedule = buildSchedule(lo, a.DurationDays, now)
		if err := r.Loans.CreateRepayments(ctx, schedule); err != nil {
			return err
		}
		a.ContractAddress = in.ContractAddress
		return r.Loans.SaveApplication(ctx, a)
	})
	if err != nil {
		return nil, err
	}

	out := &ApprovedLoanDTO{Loan: lo, Schedule: schedule}
	if in.PoolID != "" {
		alloc, err := u.allocator.AllocateToLoan(ctx, in.PoolID, lo.LoanID, lo.Principal)
		if err != nil {
			// the loan exists but is unfunded; surface the allocation error
			u.log.Error("funding allocation failed", "loan_id", lo.LoanID, "pool_id", in.PoolID, "err", err)
			return nil, err
		}
		out.Allocation = alloc
	}
	return out, nil
}

func (u *Usecase) RejectApplication(ctx context.Context, applicationID, reason string) (*loan.Application, error) {
	var out loan.Application
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		a, err := r.Loans.GetApplicationByIDForUpdate(ctx, applicationID)
		if err != nil {
			return err
		}
		if err := a.Reject(reason); err != nil {
			return err
		}
		if err := r.Loans.SaveApplication(ctx, a); err != nil {
			return err
		}
		out = *a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (u *Usecase) GetLoan(ctx context.Context, loanID string) (*loan.Loan, error) {
	return u.repo.GetLoanByID(ctx, loanID)
}

func (u *Usecase) UpcomingRepayments(ctx context.Context, wallet string) ([]loan.Repayment, error) {
	return u.repo.ListUpcomingByWallet(ctx, wallet, time.Now().UTC())
}

func (u *Usecase) OverdueRepayments(ctx context.Context, wallet string) ([]loan.Repayment, error) {
	return u.repo.ListOverdueByWallet(ctx, wallet, time.Now().UTC())
}

// simpleInterest = principal * rate% * days/365, rounded to cents.
func simpleInterest(principal, ratePercent decimal.Decimal, days int) decimal.Decimal {
	return principal.
		Mul(ratePercent).
		Mul(decimal.NewFromInt(int64(days))).
		Div(decimal.NewFromInt(100 * 365)).
		Round(2)
}

// buildSchedule splits total_due into equal 30-day installments; the last
// installment absorbs the rounding remainder and lands on the loan due date.
func buildSchedule(l *loan.Loan, durationDays int, start time.Time) []loan.Repayment {
	n := (durationDays + installmentDays - 1) / installmentDays
	if n < 1 {
		n = 1
	}
	per := l.TotalDue.Div(decimal.NewFromInt(int64(n))).Round(2)

	reps := make([]loan.Repayment, 0, n)
	for i := 1; i <= n; i++ {
		amount := per
		due := start.AddDate(0, 0, i*installmentDays)
		if i == n {
			amount = l.TotalDue.Sub(per.Mul(decimal.NewFromInt(int64(n - 1))))
			due = l.DueDate
		}
		reps = append(reps, loan.Repayment{
			RepaymentID: id.NewID32(),
			LoanID:      l.ID,
			Amount:      amount,
			DueDate:     due,
		})
	}
	return reps
}
