package sweeper

import (
	"context"
	"log/slog"
	"time"

	"credlend-backend/internal/domain/loan"
	"credlend-backend/internal/domain/uow"
	"credlend-backend/internal/observability"
)

const sweepBatch = 500

// Liquidator is the slice of the settlement coordinator the sweeper drives.
type Liquidator interface {
	Liquidate(ctx context.Context, loanID string) error
}

// Sweeper is the lifecycle process: on a fixed cadence it flags overdue
// installments late, defaults loans whose earliest overdue installment has
// outlived the grace period, and keeps liquidation moving for defaulted
// loans. One row failing is logged and skipped, never aborting the sweep.
type Sweeper struct {
	uow     uow.UnitOfWork
	liq     Liquidator
	log     *slog.Logger
	metrics *observability.Metrics

	interval    time.Duration
	grace       time.Duration
	maxAttempts int

	// Now is swappable for deterministic tests.
	Now func() time.Time
}

func New(u uow.UnitOfWork, liq Liquidator, log *slog.Logger, m *observability.Metrics, interval, grace time.Duration, maxAttempts int) *Sweeper {
	return &Sweeper{
		uow:         u,
		liq:         liq,
		log:         log,
		metrics:     m,
		interval:    interval,
		grace:       grace,
		maxAttempts: maxAttempts,
		Now:         time.Now,
	}
}

// Run sweeps once immediately, then on every tick until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) error {
	if err := s.SweepOnce(ctx); err != nil {
		s.log.Error("sweep failed", "err", err)
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.SweepOnce(ctx); err != nil {
				s.log.Error("sweep failed", "err", err)
			}
		}
	}
}

// SweepOnce scans outside any entity lock, then revisits each overdue row
// in its own short locked transaction.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	now := s.Now().UTC()

	var overdue []loan.Repayment
	err := s.uow.WithinTx(ctx, func(r uow.Repos) error {
		var err error
		overdue, err = r.Loans.ListDueUnpaid(ctx, now, sweepBatch)
		return err
	})
	if err != nil {
		return err
	}

	for i := range overdue {
		if err := s.sweepRepayment(ctx, now, overdue[i].RepaymentID); err != nil {
			s.metrics.SweepRowFailures.Inc()
			s.log.Error("sweep: repayment row failed", "repayment_id", overdue[i].RepaymentID, "err", err)
		}
	}

	s.retryLiquidations(ctx)
	return nil
}

func (s *Sweeper) sweepRepayment(ctx context.Context, now time.Time, repaymentID string) error {
	var defaultedLoanID string
	var hasCollateral bool
	err := s.uow.WithinTx(ctx, func(r uow.Repos) error {
		probe, err := r.Loans.GetRepaymentByID(ctx, repaymentID)
		if err != nil {
			return err
		}
		l, err := r.Loans.GetLoanByNumericIDForUpdate(ctx, probe.LoanID)
		if err != nil {
			return err
		}
		rp, err := r.Loans.GetRepaymentByID(ctx, repaymentID)
		if err != nil {
			return err
		}
		if rp.Paid() {
			return nil // paid between scan and lock
		}
		if rp.MarkLate() {
			if err := r.Loans.SaveRepayment(ctx, rp); err != nil {
				return err
			}
		}
		// grace runs from this installment's due date, so the earliest
		// overdue installment governs default timing
		if l.Status == loan.StatusActive && now.After(rp.DueDate.Add(s.grace)) {
			if err := l.MarkDefaulted(); err != nil {
				return err
			}
			if err := r.Loans.SaveLoan(ctx, l); err != nil {
				return err
			}
			defaultedLoanID = l.LoanID
			hasCollateral = l.CollateralAddress != nil
		}
		return nil
	})
	if err != nil {
		return err
	}

	// the active->defaulted transition happens once per loan, so this
	// enqueue fires once; Liquidate itself refuses duplicates in flight.
	// Loans without a collateral reference default but are never enqueued.
	if defaultedLoanID != "" {
		s.log.Info("loan defaulted after grace period", "loan_id", defaultedLoanID)
		if hasCollateral {
			if err := s.liq.Liquidate(ctx, defaultedLoanID); err != nil {
				s.log.Error("sweep: liquidation enqueue failed", "loan_id", defaultedLoanID, "err", err)
			}
		}
	}
	return nil
}

// retryLiquidations re-drives defaulted loans with collateral whose earlier
// liquidation transfers failed, within the attempt budget.
func (s *Sweeper) retryLiquidations(ctx context.Context) {
	var defaulted []loan.Loan
	err := s.uow.WithinTx(ctx, func(r uow.Repos) error {
		var err error
		defaulted, err = r.Loans.ListDefaultedWithCollateral(ctx)
		return err
	})
	if err != nil {
		s.log.Error("sweep: list defaulted loans", "err", err)
		return
	}
	for i := range defaulted {
		l := &defaulted[i]
		if l.LiquidationAttempts >= s.maxAttempts {
			continue // already alerted by the coordinator
		}
		if err := s.liq.Liquidate(ctx, l.LoanID); err != nil {
			s.log.Warn("sweep: liquidation retry failed", "loan_id", l.LoanID, "err", err)
		}
	}
}
