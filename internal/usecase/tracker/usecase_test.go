package tracker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"credlend-backend/internal/domain/chain"
	"credlend-backend/internal/domain/chaintx"
	"credlend-backend/internal/domain/uow"
	"credlend-backend/internal/observability"
	"credlend-backend/internal/testutil/chainmock"
	"credlend-backend/internal/testutil/uowmock"
	"credlend-backend/pkg/id"

	"github.com/shopspring/decimal"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTracker(store *uowmock.Store, ch *chainmock.Chain) *Usecase {
	return NewUsecase(store, store.ChainTxRepo(), ch, discard(), observability.NewUnregistered(),
		2*time.Minute, 10*time.Second)
}

func submission() Submission {
	return Submission{
		Purpose:     chaintx.PurposeDeposit,
		ReferenceID: id.NewID32(),
		From:        "Lender111111111111111111111111111111111",
		To:          "Pool11111111111111111111111111111111111",
		Amount:      dec("100"),
	}
}

func TestSubmit_RecordsPendingBeforeChain(t *testing.T) {
	store := uowmock.New()
	ch := chainmock.New()
	trk := newTracker(store, ch)
	ctx := context.Background()

	tx, err := trk.Submit(ctx, submission())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if tx.Status != chaintx.StatusPending {
		t.Fatalf("status = %s, want pending", tx.Status)
	}
	if tx.TxHash == nil {
		t.Fatal("tx hash not recorded after chain accept")
	}

	sent := ch.Submitted()
	if len(sent) != 1 {
		t.Fatalf("chain saw %d transfers, want 1", len(sent))
	}
	if want := "credlend:" + tx.TrackingID; sent[0].Memo != want {
		t.Errorf("memo = %q, want %q", sent[0].Memo, want)
	}
}

func TestSubmit_RejectsInvalidInput(t *testing.T) {
	trk := newTracker(uowmock.New(), chainmock.New())

	s := submission()
	s.Amount = decimal.Zero
	if _, err := trk.Submit(context.Background(), s); !errors.Is(err, ErrInvalidSubmission) {
		t.Fatalf("zero amount = %v, want ErrInvalidSubmission", err)
	}
}

func TestSubmit_SyncRejectionRunsCompensation(t *testing.T) {
	store := uowmock.New()
	ch := chainmock.New()
	ch.SubmitTransferFn = func(ctx context.Context, tr chain.Transfer) (string, error) {
		return "", errors.New("insufficient funds")
	}
	trk := newTracker(store, ch)

	var finalized []*chaintx.Transaction
	trk.SetFinalityHandler(func(ctx context.Context, r uow.Repos, tx *chaintx.Transaction) error {
		finalized = append(finalized, tx)
		return nil
	})

	_, err := trk.Submit(context.Background(), submission())
	if !errors.Is(err, ErrSubmissionFailed) {
		t.Fatalf("Submit = %v, want ErrSubmissionFailed", err)
	}

	// the rejection was reconciled as failed before Submit returned
	if len(finalized) != 1 {
		t.Fatalf("finality handler ran %d times, want 1", len(finalized))
	}
	if finalized[0].Status != chaintx.StatusFailed {
		t.Errorf("finalized status = %s, want failed", finalized[0].Status)
	}
	if finalized[0].FailureReason == nil || !strings.Contains(*finalized[0].FailureReason, "insufficient funds") {
		t.Errorf("failure reason = %v", finalized[0].FailureReason)
	}
}

func TestReconcile_IdempotentPerOutcome(t *testing.T) {
	store := uowmock.New()
	trk := newTracker(store, chainmock.New())
	ctx := context.Background()

	calls := 0
	trk.SetFinalityHandler(func(ctx context.Context, r uow.Repos, tx *chaintx.Transaction) error {
		calls++
		return nil
	})

	tx, err := trk.Submit(ctx, submission())
	if err != nil {
		t.Fatal(err)
	}

	st := chain.TxStatus{State: chain.TxConfirmed, BlockNumber: 99}
	if err := trk.Reconcile(ctx, tx.TrackingID, st); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	if err := trk.Reconcile(ctx, tx.TrackingID, st); err != nil {
		t.Fatalf("repeat reconcile: %v", err)
	}

	if calls != 1 {
		t.Fatalf("finality handler ran %d times, want 1", calls)
	}
	got, err := store.ChainTxRepo().GetByTrackingID(ctx, tx.TrackingID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != chaintx.StatusConfirmed || got.BlockNumber == nil || *got.BlockNumber != 99 {
		t.Errorf("stored tx = %+v", got)
	}
}

func TestReconcile_ConflictingFinality(t *testing.T) {
	store := uowmock.New()
	trk := newTracker(store, chainmock.New())
	ctx := context.Background()

	tx, err := trk.Submit(ctx, submission())
	if err != nil {
		t.Fatal(err)
	}
	if err := trk.Reconcile(ctx, tx.TrackingID, chain.TxStatus{State: chain.TxConfirmed, BlockNumber: 7}); err != nil {
		t.Fatal(err)
	}

	err = trk.Reconcile(ctx, tx.TrackingID, chain.TxStatus{State: chain.TxFailed, Reason: "reorg"})
	if !errors.Is(err, chaintx.ErrConflictingFinality) {
		t.Fatalf("conflicting reconcile = %v, want ErrConflictingFinality", err)
	}

	got, _ := store.ChainTxRepo().GetByTrackingID(ctx, tx.TrackingID)
	if got.Status != chaintx.StatusConfirmed {
		t.Errorf("conflict flipped stored status to %s", got.Status)
	}
}

func TestReconcile_PendingStatusIsNoop(t *testing.T) {
	store := uowmock.New()
	trk := newTracker(store, chainmock.New())
	ctx := context.Background()

	tx, err := trk.Submit(ctx, submission())
	if err != nil {
		t.Fatal(err)
	}
	if err := trk.Reconcile(ctx, tx.TrackingID, chain.TxStatus{State: chain.TxPending}); err != nil {
		t.Fatalf("pending reconcile: %v", err)
	}
	got, _ := store.ChainTxRepo().GetByTrackingID(ctx, tx.TrackingID)
	if got.Status != chaintx.StatusPending {
		t.Errorf("status = %s, want pending", got.Status)
	}
}

func TestPollPending_ReconcilesFromStatusPoll(t *testing.T) {
	store := uowmock.New()
	ch := chainmock.New()
	ch.TransactionStatusFn = func(ctx context.Context, txHash string) (chain.TxStatus, error) {
		return chain.TxStatus{State: chain.TxConfirmed, BlockNumber: 123}, nil
	}
	trk := newTracker(store, ch)
	ctx := context.Background()

	tx, err := trk.Submit(ctx, submission())
	if err != nil {
		t.Fatal(err)
	}

	trk.pollPending(ctx)

	got, _ := store.ChainTxRepo().GetByTrackingID(ctx, tx.TrackingID)
	if got.Status != chaintx.StatusConfirmed {
		t.Fatalf("watchdog did not confirm: status = %s", got.Status)
	}
}

func TestPollPending_TimesOutStalePending(t *testing.T) {
	store := uowmock.New()
	ch := chainmock.New() // status poll always reports pending
	trk := newTracker(store, ch)
	ctx := context.Background()

	tx, err := trk.Submit(ctx, submission())
	if err != nil {
		t.Fatal(err)
	}

	// age the record past the confirmation timeout
	err = store.WithinTx(ctx, func(r uow.Repos) error {
		cur, err := r.ChainTxs.GetByTrackingIDForUpdate(ctx, tx.TrackingID)
		if err != nil {
			return err
		}
		cur.CreatedAt = time.Now().UTC().Add(-3 * time.Minute)
		return r.ChainTxs.Save(ctx, cur)
	})
	if err != nil {
		t.Fatal(err)
	}

	trk.pollPending(ctx)

	got, _ := store.ChainTxRepo().GetByTrackingID(ctx, tx.TrackingID)
	if got.Status != chaintx.StatusFailed {
		t.Fatalf("stale pending not timed out: status = %s", got.Status)
	}
	if got.FailureReason == nil || *got.FailureReason != "confirmation timeout" {
		t.Errorf("failure reason = %v", got.FailureReason)
	}
}
