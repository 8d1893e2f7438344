package listener

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"credlend-backend/internal/domain/chain"
	"credlend-backend/internal/domain/chaintx"
	"credlend-backend/internal/domain/uow"
)

// Reconciler is the settlement coordinator's reconciliation entry point.
type Reconciler interface {
	Reconcile(ctx context.Context, trackingID string, st chain.TxStatus) error
}

// Listener subscribes to the lending program's log stream and forwards
// parsed domain events to reconciliation, keyed by the tracking id embedded
// in the transfer memo. Delivery may be duplicated or out of order; the
// idempotent reconcile absorbs both. The last processed slot is durably
// checkpointed so a restart resumes instead of replaying from genesis, and
// the tracker's status watchdog backstops any event the stream never
// delivers.
type Listener struct {
	chain     chain.Chain
	rec       Reconciler
	uow       uow.UnitOfWork
	log       *slog.Logger
	programID string

	reconnectBackoff time.Duration
	lastSlot         uint64
}

func New(ch chain.Chain, rec Reconciler, u uow.UnitOfWork, log *slog.Logger, programID string) *Listener {
	return &Listener{
		chain:            ch,
		rec:              rec,
		uow:              u,
		log:              log,
		programID:        programID,
		reconnectBackoff: 5 * time.Second,
	}
}

// Run blocks until ctx is canceled, resubscribing from the checkpoint
// whenever the stream drops.
func (l *Listener) Run(ctx context.Context) error {
	for {
		from, err := l.loadCheckpoint(ctx)
		if err != nil {
			l.log.Error("listener: load checkpoint", "err", err)
		}
		l.lastSlot = from

		events, err := l.chain.SubscribeLogs(ctx, l.programID, from+1)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.log.Warn("listener: subscribe failed, retrying", "err", err)
			if !l.sleep(ctx) {
				return nil
			}
			continue
		}
		l.log.Info("listener: subscribed", "program_id", l.programID, "from_slot", from+1)

		for ev := range events {
			l.handleEvent(ctx, ev)
			l.advanceCheckpoint(ctx, ev.Slot)
		}
		if ctx.Err() != nil {
			return nil
		}
		l.log.Warn("listener: stream closed, reconnecting")
		if !l.sleep(ctx) {
			return nil
		}
	}
}

func (l *Listener) handleEvent(ctx context.Context, ev chain.LogEvent) {
	for _, line := range ev.Logs {
		parsed, ok := parseEvent(line)
		if !ok {
			continue
		}
		tracking := parsed.TrackingID()
		if tracking == "" {
			l.log.Debug("listener: event without tracking id", "event", parsed.Name)
			continue
		}
		st := chain.TxStatus{State: chain.TxConfirmed, BlockNumber: ev.Slot}
		if parsed.Failed() {
			st = chain.TxStatus{State: chain.TxFailed, Reason: parsed.Reason()}
		}
		err := l.rec.Reconcile(ctx, tracking, st)
		switch {
		case errors.Is(err, chaintx.ErrNotFound):
			// an event for a transfer we never recorded; tolerate it
			l.log.Debug("listener: no matching transfer", "tracking_id", tracking, "event", parsed.Name)
		case errors.Is(err, chaintx.ErrConflictingFinality):
			// already logged and counted by the tracker
		case err != nil:
			l.log.Error("listener: reconcile failed", "tracking_id", tracking, "err", err)
		}
	}
}

func (l *Listener) loadCheckpoint(ctx context.Context) (uint64, error) {
	var slot uint64
	err := l.uow.WithinTx(ctx, func(r uow.Repos) error {
		cp, err := r.ChainTxs.GetCheckpoint(ctx, l.programID)
		if errors.Is(err, chaintx.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		slot = cp.Slot
		return nil
	})
	return slot, err
}

// advanceCheckpoint only moves forward; out-of-order slots never rewind it.
func (l *Listener) advanceCheckpoint(ctx context.Context, slot uint64) {
	if slot <= l.lastSlot {
		return
	}
	err := l.uow.WithinTx(ctx, func(r uow.Repos) error {
		return r.ChainTxs.SaveCheckpoint(ctx, &chaintx.Checkpoint{ProgramID: l.programID, Slot: slot})
	})
	if err != nil {
		l.log.Error("listener: save checkpoint", "slot", slot, "err", err)
		return
	}
	l.lastSlot = slot
}

func (l *Listener) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(l.reconnectBackoff):
		return true
	}
}
