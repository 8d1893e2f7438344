package settlement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"credlend-backend/internal/domain/chain"
	"credlend-backend/internal/domain/chaintx"
	"credlend-backend/internal/domain/lender"
	"credlend-backend/internal/domain/loan"
	"credlend-backend/internal/domain/uow"
	"credlend-backend/internal/observability"
	"credlend-backend/internal/usecase/tracker"
	"credlend-backend/pkg/id"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	// ErrLiquidationExhausted means the bounded retry budget for a
	// defaulted loan's collateral transfer is spent; an operator alert
	// counter fires instead of another attempt.
	ErrLiquidationExhausted = errors.New("liquidation attempts exhausted")
)

// Tracker is the slice of the transaction tracker the coordinator drives.
type Tracker interface {
	Submit(ctx context.Context, s tracker.Submission) (*chaintx.Transaction, error)
	Reconcile(ctx context.Context, trackingID string, st chain.TxStatus) error
	Status(ctx context.Context, trackingID string) (chaintx.Status, error)
}

// Usecase is the settlement coordinator. Every money-moving operation runs
// as Validating -> Reserved -> Submitted: domain invariants are checked
// first, the ledger mutation is committed optimistically under a pool/loan
// row lock, the transfer is handed to the tracker, and the caller gets a
// pending result without waiting for the chain. Terminal outcomes arrive
// later through ApplyFinality, registered as the tracker's finality handler.
type Usecase struct {
	uow     uow.UnitOfWork
	trk     Tracker
	log     *slog.Logger
	metrics *observability.Metrics

	operatorWallet         string
	maxLiquidationAttempts int
}

func NewUsecase(u uow.UnitOfWork, trk Tracker, log *slog.Logger, m *observability.Metrics, operatorWallet string, maxLiquidationAttempts int) *Usecase {
	return &Usecase{
		uow:                    u,
		trk:                    trk,
		log:                    log,
		metrics:                m,
		operatorWallet:         operatorWallet,
		maxLiquidationAttempts: maxLiquidationAttempts,
	}
}

// Reconcile is the entry point for the chain event listener.
func (u *Usecase) Reconcile(ctx context.Context, trackingID string, st chain.TxStatus) error {
	return u.trk.Reconcile(ctx, trackingID, st)
}

// CreateDeposit reserves a lender deposit: the deposit row and the pool
// liquidity bump commit before the chain sees the transfer. A synchronous
// submission failure compensates both before returning.
func (u *Usecase) CreateDeposit(ctx context.Context, in CreateDepositInput) (*DepositDTO, error) {
	if in.WalletAddress == "" || !in.Amount.IsPositive() {
		return nil, ErrInvalidInput
	}
	now := time.Now().UTC()

	var dep lender.Deposit
	var pool lender.Pool
	err := u.uow.WithinPoolTx(ctx, in.PoolID, func(r uow.Repos, p *lender.Pool) error {
		if !p.IsActive {
			return lender.ErrPoolInactive
		}
		if in.Amount.LessThan(p.MinDeposit) {
			return lender.ErrBelowMinDeposit
		}
		shares := p.SharesFor(in.Amount)
		d := &lender.Deposit{
			DepositID:     id.NewID32(),
			WalletAddress: in.WalletAddress,
			PoolID:        p.ID,
			Amount:        in.Amount,
			Shares:        shares,
			UnlockedAt:    now.AddDate(0, 0, p.LockPeriodDays),
		}
		if err := r.Lenders.CreateDeposit(ctx, d); err != nil {
			return err
		}
		p.AddLiquidity(in.Amount, shares)
		if err := r.Lenders.SavePool(ctx, p); err != nil {
			return err
		}
		dep, pool = *d, *p
		return nil
	})
	if err != nil {
		return nil, err
	}

	t, err := u.trk.Submit(ctx, tracker.Submission{
		Purpose:     chaintx.PurposeDeposit,
		ReferenceID: dep.DepositID,
		From:        in.WalletAddress,
		To:          pool.TokenAddress,
		Amount:      in.Amount,
	})
	if err != nil {
		return nil, err
	}

	return &DepositDTO{
		PendingResult: pendingResult(t),
		DepositID:     dep.DepositID,
		PoolID:        pool.PoolID,
		WalletAddress: dep.WalletAddress,
		Amount:        dep.Amount,
		Shares:        dep.Shares,
		UnlockedAt:    dep.UnlockedAt,
	}, nil
}

// WithdrawDeposit marks the deposit withdrawn and debits the pool before
// submitting the payout. StillLocked / AlreadyWithdrawn reject with no side
// effects; a failed submission reinstates the deposit.
func (u *Usecase) WithdrawDeposit(ctx context.Context, depositID string) (*WithdrawDTO, error) {
	now := time.Now().UTC()

	var dep lender.Deposit
	var pool lender.Pool
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		probe, err := r.Lenders.GetDepositByID(ctx, depositID)
		if err != nil {
			return err
		}
		// pool lock first, then the deposit row
		p, err := r.Lenders.GetPoolByNumericIDForUpdate(ctx, probe.PoolID)
		if err != nil {
			return err
		}
		d, err := r.Lenders.GetDepositByIDForUpdate(ctx, depositID)
		if err != nil {
			return err
		}
		if err := d.MarkWithdrawn(now); err != nil {
			return err
		}
		if err := p.RemoveLiquidity(d.Amount, d.Shares); err != nil {
			return err
		}
		if err := r.Lenders.SaveDeposit(ctx, d); err != nil {
			return err
		}
		if err := r.Lenders.SavePool(ctx, p); err != nil {
			return err
		}
		dep, pool = *d, *p
		return nil
	})
	if err != nil {
		return nil, err
	}

	t, err := u.trk.Submit(ctx, tracker.Submission{
		Purpose:     chaintx.PurposeWithdrawal,
		ReferenceID: dep.DepositID,
		From:        pool.TokenAddress,
		To:          dep.WalletAddress,
		Amount:      dep.Amount,
	})
	if err != nil {
		return nil, err
	}

	return &WithdrawDTO{
		PendingResult: pendingResult(t),
		DepositID:     dep.DepositID,
		Amount:        dep.Amount,
	}, nil
}

// PayRepayment credits an installment against its loan under the loan row
// lock. AlreadyPaid, OverRepayment and terminal-loan checks happen before
// any mutation; crossing total_due flips the loan to repaid inside the same
// critical section.
func (u *Usecase) PayRepayment(ctx context.Context, repaymentID string) (*RepaymentDTO, error) {
	now := time.Now().UTC()

	var rep loan.Repayment
	var lo loan.Loan
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		probe, err := r.Loans.GetRepaymentByID(ctx, repaymentID)
		if err != nil {
			return err
		}
		l, err := r.Loans.GetLoanByNumericIDForUpdate(ctx, probe.LoanID)
		if err != nil {
			return err
		}
		// re-read under the loan lock; all repayment writers serialize on it
		rp, err := r.Loans.GetRepaymentByID(ctx, repaymentID)
		if err != nil {
			return err
		}
		if rp.Paid() {
			return loan.ErrAlreadyPaid
		}
		if err := l.ApplyPayment(rp.Amount); err != nil {
			return err
		}
		rp.PaidAt = &now
		if err := r.Loans.SaveRepayment(ctx, rp); err != nil {
			return err
		}
		if err := r.Loans.SaveLoan(ctx, l); err != nil {
			return err
		}
		rep, lo = *rp, *l
		return nil
	})
	if err != nil {
		return nil, err
	}

	t, err := u.trk.Submit(ctx, tracker.Submission{
		Purpose:     chaintx.PurposeRepayment,
		ReferenceID: rep.RepaymentID,
		From:        lo.BorrowerWallet,
		To:          lo.ContractAddress,
		Amount:      rep.Amount,
	})
	if err != nil {
		return nil, err
	}

	return &RepaymentDTO{
		PendingResult: pendingResult(t),
		RepaymentID:   rep.RepaymentID,
		LoanID:        lo.LoanID,
		Amount:        rep.Amount,
		AmountRepaid:  lo.AmountRepaid,
		LoanStatus:    string(lo.Status),
	}, nil
}

// AllocateToLoan earmarks pool liquidity for a loan. Lock order is pool
// before loan, the fixed global order for cross-entity flows.
func (u *Usecase) AllocateToLoan(ctx context.Context, poolID, loanID string, amount decimal.Decimal) (*AllocationDTO, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidInput
	}

	var alloc lender.Allocation
	var pool lender.Pool
	var lo loan.Loan
	err := u.uow.WithinPoolTx(ctx, poolID, func(r uow.Repos, p *lender.Pool) error {
		l, err := r.Loans.GetLoanByIDForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if l.Status != loan.StatusActive {
			return loan.ErrLoanNotActive
		}
		if err := p.ReserveAllocation(amount); err != nil {
			return err
		}
		a := &lender.Allocation{
			AllocationID: id.NewID32(),
			PoolID:       p.ID,
			LoanID:       l.ID,
			Amount:       amount,
		}
		if err := r.Lenders.CreateAllocation(ctx, a); err != nil {
			return err
		}
		if err := r.Lenders.SavePool(ctx, p); err != nil {
			return err
		}
		alloc, pool, lo = *a, *p, *l
		return nil
	})
	if err != nil {
		return nil, err
	}

	t, err := u.trk.Submit(ctx, tracker.Submission{
		Purpose:     chaintx.PurposeAllocation,
		ReferenceID: alloc.AllocationID,
		From:        pool.TokenAddress,
		To:          lo.ContractAddress,
		Amount:      amount,
	})
	if err != nil {
		return nil, err
	}

	return &AllocationDTO{
		PendingResult: pendingResult(t),
		AllocationID:  alloc.AllocationID,
		PoolID:        pool.PoolID,
		LoanID:        lo.LoanID,
		Amount:        amount,
	}, nil
}

// Liquidate submits the collateral transfer for a defaulted loan. It is
// safe to call repeatedly: an in-flight liquidation short-circuits, and the
// attempt counter bounds retries. On confirmed settlement the loan becomes
// liquidated; on failure it stays defaulted and a later call retries.
func (u *Usecase) Liquidate(ctx context.Context, loanID string) error {
	var lo loan.Loan
	submit := false
	err := u.uow.WithinLoanTx(ctx, loanID, func(r uow.Repos, l *loan.Loan) error {
		if l.Status != loan.StatusDefaulted {
			return loan.ErrNotDefaulted
		}
		if l.CollateralAddress == nil {
			return loan.ErrNoCollateral
		}
		inFlight, err := r.ChainTxs.HasPendingByReference(ctx, chaintx.PurposeLiquidation, l.LoanID)
		if err != nil {
			return err
		}
		if inFlight {
			return nil
		}
		if l.LiquidationAttempts >= u.maxLiquidationAttempts {
			return ErrLiquidationExhausted
		}
		l.LiquidationAttempts++
		if err := r.Loans.SaveLoan(ctx, l); err != nil {
			return err
		}
		lo = *l
		submit = true
		return nil
	})
	if errors.Is(err, ErrLiquidationExhausted) {
		u.metrics.LiquidationRetriesExhausted.Inc()
		u.log.Error("liquidation retries exhausted; operator action required", "loan_id", loanID)
		return err
	}
	if err != nil || !submit {
		return err
	}

	_, err = u.trk.Submit(ctx, tracker.Submission{
		Purpose:     chaintx.PurposeLiquidation,
		ReferenceID: lo.LoanID,
		From:        *lo.CollateralAddress,
		To:          u.operatorWallet,
		Amount:      liquidationAmount(&lo),
	})
	if err != nil {
		u.log.Warn("liquidation submission failed; loan stays defaulted",
			"loan_id", lo.LoanID, "attempt", lo.LiquidationAttempts, "err", err)
		return err
	}
	u.log.Info("liquidation submitted", "loan_id", lo.LoanID, "attempt", lo.LiquidationAttempts)
	return nil
}

// liquidationAmount covers the outstanding remainder: partial repayments are
// retained, and the transfer is capped at the recorded collateral value.
func liquidationAmount(l *loan.Loan) decimal.Decimal {
	amount := l.Remaining()
	if l.CollateralValue.Valid && l.CollateralValue.Decimal.LessThan(amount) {
		amount = l.CollateralValue.Decimal
	}
	return amount
}

// GetPoolStats is the read model for pool utilization.
func (u *Usecase) GetPoolStats(ctx context.Context, poolID string) (*lender.PoolStats, error) {
	var stats lender.PoolStats
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		p, err := r.Lenders.GetPoolByID(ctx, poolID)
		if err != nil {
			return err
		}
		total, active, err := r.Lenders.CountDeposits(ctx, p.ID)
		if err != nil {
			return err
		}
		allocated, err := r.Lenders.SumAllocations(ctx, p.ID)
		if err != nil {
			return err
		}
		utilization := decimal.Zero
		if p.TotalLiquidity.IsPositive() {
			utilization = p.TotalLiquidity.Sub(p.AvailableLiquidity).
				Div(p.TotalLiquidity).
				Mul(decimal.NewFromInt(100)).
				Round(2)
		}
		stats = lender.PoolStats{
			PoolID:             p.PoolID,
			PoolName:           p.Name,
			TotalLiquidity:     p.TotalLiquidity,
			AvailableLiquidity: p.AvailableLiquidity,
			UtilizationRate:    utilization,
			CurrentAPY:         p.APY,
			TotalDeposits:      total,
			ActiveDeposits:     active,
			TotalAllocated:     allocated,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func pendingResult(t *chaintx.Transaction) PendingResult {
	res := PendingResult{Status: string(t.Status), TrackingID: t.TrackingID}
	if t.Status == chaintx.StatusPending {
		res.Status = "pending"
	}
	if t.TxHash != nil {
		res.TxHash = *t.TxHash
	}
	return res
}
