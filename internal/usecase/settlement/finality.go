package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"credlend-backend/internal/domain/chaintx"
	"credlend-backend/internal/domain/lender"
	"credlend-backend/internal/domain/uow"
)

// ApplyFinality runs inside the tracker's reconciliation transaction, once
// per terminal flip. Confirmed outcomes stamp tx hashes and finish state
// transitions; failed outcomes run the compensating action that undoes the
// optimistic ledger mutation. Register it with tracker.SetFinalityHandler.
func (u *Usecase) ApplyFinality(ctx context.Context, r uow.Repos, t *chaintx.Transaction) error {
	switch t.Purpose {
	case chaintx.PurposeDeposit:
		return u.finalizeDeposit(ctx, r, t)
	case chaintx.PurposeWithdrawal:
		return u.finalizeWithdrawal(ctx, r, t)
	case chaintx.PurposeRepayment:
		return u.finalizeRepayment(ctx, r, t)
	case chaintx.PurposeAllocation:
		return u.finalizeAllocation(ctx, r, t)
	case chaintx.PurposeLiquidation:
		return u.finalizeLiquidation(ctx, r, t)
	default:
		u.log.Warn("finality for unknown purpose", "tracking_id", t.TrackingID, "purpose", string(t.Purpose))
		return nil
	}
}

func (u *Usecase) finalizeDeposit(ctx context.Context, r uow.Repos, t *chaintx.Transaction) error {
	probe, err := r.Lenders.GetDepositByID(ctx, t.ReferenceID)
	if errors.Is(err, lender.ErrNotFound) {
		u.log.Warn("deposit gone before finality", "tracking_id", t.TrackingID, "deposit_id", t.ReferenceID)
		return nil
	}
	if err != nil {
		return err
	}
	p, err := r.Lenders.GetPoolByNumericIDForUpdate(ctx, probe.PoolID)
	if err != nil {
		return err
	}
	d, err := r.Lenders.GetDepositByIDForUpdate(ctx, t.ReferenceID)
	if err != nil {
		return err
	}

	if t.Status == chaintx.StatusConfirmed {
		d.DepositTxHash = t.TxHash
		return r.Lenders.SaveDeposit(ctx, d)
	}

	// compensation: remove the optimistic deposit and its liquidity
	if err := p.RemoveLiquidity(d.Amount, d.Shares); err != nil {
		return fmt.Errorf("compensate deposit %s: %w", d.DepositID, err)
	}
	if err := r.Lenders.DeleteDeposit(ctx, d); err != nil {
		return err
	}
	return r.Lenders.SavePool(ctx, p)
}

func (u *Usecase) finalizeWithdrawal(ctx context.Context, r uow.Repos, t *chaintx.Transaction) error {
	probe, err := r.Lenders.GetDepositByID(ctx, t.ReferenceID)
	if err != nil {
		return err
	}
	p, err := r.Lenders.GetPoolByNumericIDForUpdate(ctx, probe.PoolID)
	if err != nil {
		return err
	}
	d, err := r.Lenders.GetDepositByIDForUpdate(ctx, t.ReferenceID)
	if err != nil {
		return err
	}

	if t.Status == chaintx.StatusConfirmed {
		d.WithdrawTxHash = t.TxHash
		return r.Lenders.SaveDeposit(ctx, d)
	}

	// compensation: the payout never happened, so the stake is restored
	d.Reinstate()
	p.AddLiquidity(d.Amount, d.Shares)
	if err := r.Lenders.SaveDeposit(ctx, d); err != nil {
		return err
	}
	return r.Lenders.SavePool(ctx, p)
}

func (u *Usecase) finalizeRepayment(ctx context.Context, r uow.Repos, t *chaintx.Transaction) error {
	probe, err := r.Loans.GetRepaymentByID(ctx, t.ReferenceID)
	if err != nil {
		return err
	}
	l, err := r.Loans.GetLoanByNumericIDForUpdate(ctx, probe.LoanID)
	if err != nil {
		return err
	}
	rp, err := r.Loans.GetRepaymentByID(ctx, t.ReferenceID)
	if err != nil {
		return err
	}

	if t.Status == chaintx.StatusConfirmed {
		rp.TxHash = t.TxHash
		return r.Loans.SaveRepayment(ctx, rp)
	}

	// compensation: uncredit the installment; if it was the one that
	// crossed total_due, the loan drops back to active
	if err := l.RevertPayment(rp.Amount); err != nil {
		return fmt.Errorf("compensate repayment %s: %w", rp.RepaymentID, err)
	}
	rp.PaidAt = nil
	rp.TxHash = nil
	if err := r.Loans.SaveRepayment(ctx, rp); err != nil {
		return err
	}
	return r.Loans.SaveLoan(ctx, l)
}

func (u *Usecase) finalizeAllocation(ctx context.Context, r uow.Repos, t *chaintx.Transaction) error {
	a, err := r.Lenders.GetAllocationByID(ctx, t.ReferenceID)
	if err != nil {
		return err
	}
	p, err := r.Lenders.GetPoolByNumericIDForUpdate(ctx, a.PoolID)
	if err != nil {
		return err
	}

	if t.Status == chaintx.StatusConfirmed {
		a.TxHash = t.TxHash
		return r.Lenders.SaveAllocation(ctx, a)
	}

	// compensation: release the earmarked liquidity
	if err := p.ReleaseAllocation(a.Amount); err != nil {
		return fmt.Errorf("compensate allocation %s: %w", a.AllocationID, err)
	}
	if err := r.Lenders.DeleteAllocation(ctx, a); err != nil {
		return err
	}
	return r.Lenders.SavePool(ctx, p)
}

func (u *Usecase) finalizeLiquidation(ctx context.Context, r uow.Repos, t *chaintx.Transaction) error {
	l, err := r.Loans.GetLoanByIDForUpdate(ctx, t.ReferenceID)
	if err != nil {
		return err
	}

	if t.Status == chaintx.StatusConfirmed {
		if err := l.MarkLiquidated(time.Now().UTC()); err != nil {
			return fmt.Errorf("liquidation finality for loan %s: %w", l.LoanID, err)
		}
		return r.Loans.SaveLoan(ctx, l)
	}

	// failed transfer: loan stays defaulted, the sweeper retries within
	// the attempt budget
	if l.LiquidationAttempts >= u.maxLiquidationAttempts {
		u.metrics.LiquidationRetriesExhausted.Inc()
		u.log.Error("liquidation failed with no attempts left", "loan_id", l.LoanID)
		return nil
	}
	u.log.Warn("liquidation transfer failed; eligible for retry",
		"loan_id", l.LoanID, "attempt", l.LiquidationAttempts)
	return nil
}
