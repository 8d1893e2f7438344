package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"credlend-backend/internal/domain/chain"
	"credlend-backend/internal/domain/chaintx"
	"credlend-backend/internal/domain/uow"
	"credlend-backend/internal/observability"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidSubmission = errors.New("invalid submission")
	// ErrSubmissionFailed means the chain rejected the transfer or was
	// unreachable at submit time. The optimistic ledger mutation has
	// already been compensated through the finality path when this is
	// returned.
	ErrSubmissionFailed = errors.New("chain submission failed")
)

const watchdogBatch = 200

// memoPrefix tags outbound transfers so program events can echo the
// tracking id back as the correlation key.
const memoPrefix = "credlend:"

type Submission struct {
	Purpose     chaintx.Purpose
	ReferenceID string
	From        string
	To          string
	Amount      decimal.Decimal
}

// FinalityHandler applies the business effect of a terminal outcome inside
// the same database transaction that flips the transaction record. The
// settlement coordinator registers itself here.
type FinalityHandler func(ctx context.Context, r uow.Repos, t *chaintx.Transaction) error

// Usecase is the transaction tracker: every outbound transfer attempt is
// recorded as a pending BlockchainTransaction before the chain sees it, and
// transitions exactly once to confirmed or failed via Reconcile.
type Usecase struct {
	uow     uow.UnitOfWork
	txs     chaintx.Repository
	chain   chain.Chain
	log     *slog.Logger
	metrics *observability.Metrics

	onFinality FinalityHandler

	confirmTimeout time.Duration
	pollInterval   time.Duration
}

func NewUsecase(u uow.UnitOfWork, txs chaintx.Repository, ch chain.Chain, log *slog.Logger, m *observability.Metrics, confirmTimeout, pollInterval time.Duration) *Usecase {
	return &Usecase{
		uow:            u,
		txs:            txs,
		chain:          ch,
		log:            log,
		metrics:        m,
		confirmTimeout: confirmTimeout,
		pollInterval:   pollInterval,
	}
}

// SetFinalityHandler wires the settlement coordinator in after construction;
// the two reference each other and the coordinator is built second.
func (u *Usecase) SetFinalityHandler(h FinalityHandler) { u.onFinality = h }

// Submit records the transfer as pending, durably, then hands it to the
// chain. It never waits for confirmation: once the chain has accepted the
// transaction, control returns with the pending record. A synchronous chain
// rejection is reconciled as failed before Submit returns, so the caller's
// optimistic ledger mutation is already rolled back.
func (u *Usecase) Submit(ctx context.Context, s Submission) (*chaintx.Transaction, error) {
	if s.ReferenceID == "" || s.From == "" || s.To == "" || !s.Amount.IsPositive() {
		return nil, ErrInvalidSubmission
	}

	t := &chaintx.Transaction{
		TrackingID:  uuid.NewString(),
		Purpose:     s.Purpose,
		ReferenceID: s.ReferenceID,
		Status:      chaintx.StatusPending,
		FromAddress: s.From,
		ToAddress:   s.To,
		Value:       s.Amount,
	}
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		return r.ChainTxs.Create(ctx, t)
	})
	if err != nil {
		return nil, err
	}

	hash, err := u.chain.SubmitTransfer(ctx, chain.Transfer{
		From:   s.From,
		To:     s.To,
		Amount: s.Amount,
		Memo:   memoPrefix + t.TrackingID,
	})
	if err != nil {
		u.log.Warn("chain rejected transfer at submission",
			"tracking_id", t.TrackingID, "purpose", string(s.Purpose), "err", err)
		if rerr := u.Reconcile(ctx, t.TrackingID, chain.TxStatus{State: chain.TxFailed, Reason: err.Error()}); rerr != nil {
			return nil, fmt.Errorf("%w: %v (rollback also failed: %v)", ErrSubmissionFailed, err, rerr)
		}
		return nil, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}

	t.TxHash = &hash
	if err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		cur, err := r.ChainTxs.GetByTrackingIDForUpdate(ctx, t.TrackingID)
		if err != nil {
			return err
		}
		// the watchdog may have timed it out already; don't clobber
		if cur.Terminal() {
			t = cur
			return nil
		}
		cur.TxHash = &hash
		t = cur
		return r.ChainTxs.Save(ctx, cur)
	}); err != nil {
		return nil, err
	}
	return t, nil
}

// Reconcile applies a terminal outcome to a tracked transfer and, in the
// same database transaction, runs the registered finality handler so the
// business effect settles or compensates atomically with the status flip.
// Idempotent: a repeated identical outcome is a no-op. Conflicting terminal
// outcomes abort with ErrConflictingFinality and are escalated, never
// auto-resolved.
func (u *Usecase) Reconcile(ctx context.Context, trackingID string, st chain.TxStatus) error {
	var status chaintx.Status
	switch st.State {
	case chain.TxConfirmed:
		status = chaintx.StatusConfirmed
	case chain.TxFailed:
		status = chaintx.StatusFailed
	default:
		return nil // still pending on-chain; nothing to reconcile
	}

	var fin *chaintx.Transaction
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		t, err := r.ChainTxs.GetByTrackingIDForUpdate(ctx, trackingID)
		if err != nil {
			return err
		}
		changed, err := t.Finalize(status, st.BlockNumber, st.Reason)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		if err := r.ChainTxs.Save(ctx, t); err != nil {
			return err
		}
		if u.onFinality != nil {
			if err := u.onFinality(ctx, r, t); err != nil {
				return fmt.Errorf("finality handler for %s: %w", t.TrackingID, err)
			}
		}
		fin = t
		return nil
	})
	switch {
	case errors.Is(err, chaintx.ErrConflictingFinality):
		u.metrics.ConflictingFinality.Inc()
		u.log.Error("conflicting terminal outcomes; manual reconciliation required",
			"tracking_id", trackingID, "incoming_status", string(status))
		return err
	case err != nil && status == chaintx.StatusFailed:
		// the rollback of the optimistic mutation itself failed; the
		// ledger may now disagree with the chain
		u.metrics.CompensationFailures.Inc()
		u.log.Error("compensation failed; operator intervention required",
			"tracking_id", trackingID, "err", err)
		return err
	case err != nil:
		return err
	}
	if fin != nil {
		u.metrics.SettlementsTotal.WithLabelValues(string(fin.Purpose), string(fin.Status)).Inc()
		u.log.Info("transfer settled",
			"tracking_id", fin.TrackingID, "purpose", string(fin.Purpose), "status", string(fin.Status))
	}
	return nil
}

// Status is a pure read of a tracked transfer's lifecycle state.
func (u *Usecase) Status(ctx context.Context, trackingID string) (chaintx.Status, error) {
	t, err := u.txs.GetByTrackingID(ctx, trackingID)
	if err != nil {
		return "", err
	}
	return t.Status, nil
}

// RunWatchdog polls pending transfers on a fixed interval. It is the
// backstop for confirmations the event listener never sees, and it enforces
// the confirmation timeout: a submitted transfer with no terminal outcome
// within the bound is reconciled as failed so its compensation runs.
func (u *Usecase) RunWatchdog(ctx context.Context) error {
	ticker := time.NewTicker(u.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			u.pollPending(ctx)
		}
	}
}

func (u *Usecase) pollPending(ctx context.Context) {
	now := time.Now().UTC()

	txs, err := u.txs.ListPendingWithHash(ctx, watchdogBatch)
	if err != nil {
		u.log.Error("watchdog: list pending", "err", err)
		return
	}
	for i := range txs {
		t := &txs[i]
		st, err := u.chain.TransactionStatus(ctx, *t.TxHash)
		if err != nil {
			u.log.Warn("watchdog: status poll failed", "tracking_id", t.TrackingID, "err", err)
			if now.Sub(t.CreatedAt) > u.confirmTimeout {
				u.timeOut(ctx, t)
			}
			continue
		}
		switch st.State {
		case chain.TxConfirmed, chain.TxFailed:
			if err := u.Reconcile(ctx, t.TrackingID, st); err != nil {
				u.log.Error("watchdog: reconcile", "tracking_id", t.TrackingID, "err", err)
			}
		default:
			if now.Sub(t.CreatedAt) > u.confirmTimeout {
				u.timeOut(ctx, t)
			}
		}
	}

	// transfers stuck pending with no hash (crash between record and
	// submit) can only be timed out
	stranded, err := u.txs.ListPendingSubmittedBefore(ctx, now.Add(-u.confirmTimeout), watchdogBatch)
	if err != nil {
		u.log.Error("watchdog: list stranded", "err", err)
		return
	}
	for i := range stranded {
		if stranded[i].TxHash == nil {
			u.timeOut(ctx, &stranded[i])
		}
	}
}

func (u *Usecase) timeOut(ctx context.Context, t *chaintx.Transaction) {
	u.log.Warn("transfer timed out waiting for confirmation", "tracking_id", t.TrackingID)
	err := u.Reconcile(ctx, t.TrackingID, chain.TxStatus{State: chain.TxFailed, Reason: "confirmation timeout"})
	if err != nil {
		u.log.Error("watchdog: timeout reconcile", "tracking_id", t.TrackingID, "err", err)
	}
}
