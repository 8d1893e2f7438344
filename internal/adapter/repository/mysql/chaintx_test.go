package mysql

import (
	"context"
	"errors"
	"testing"
	"time"

	txDomain "credlend-backend/internal/domain/chaintx"
	"credlend-backend/pkg/id"

	"github.com/google/uuid"
)

func seedTx(t *testing.T, repo *ChainTxRepository, purpose txDomain.Purpose, ref string) *txDomain.Transaction {
	t.Helper()
	tx := &txDomain.Transaction{
		TrackingID:  uuid.NewString(),
		Purpose:     purpose,
		ReferenceID: ref,
		Status:      txDomain.StatusPending,
		FromAddress: "From1111111111111111111111111111111111",
		ToAddress:   "To111111111111111111111111111111111111",
		Value:       dec("42"),
	}
	if err := repo.Create(context.Background(), tx); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return tx
}

func TestChainTxRepository_TrackingLookup(t *testing.T) {
	db := openTestDB(t)
	repo := NewChainTxRepository(db)
	ctx := context.Background()

	tx := seedTx(t, repo, txDomain.PurposeDeposit, id.NewID32())

	got, err := repo.GetByTrackingID(ctx, tx.TrackingID)
	if err != nil {
		t.Fatalf("GetByTrackingID: %v", err)
	}
	if got.Purpose != txDomain.PurposeDeposit {
		t.Errorf("purpose = %s", got.Purpose)
	}

	if _, err := repo.GetByTrackingID(ctx, uuid.NewString()); !errors.Is(err, txDomain.ErrNotFound) {
		t.Errorf("missing tracking id = %v, want ErrNotFound", err)
	}

	hash := "0xabc123"
	got.TxHash = &hash
	if err := repo.Save(ctx, got); err != nil {
		t.Fatalf("Save: %v", err)
	}
	byHash, err := repo.GetByTxHash(ctx, hash)
	if err != nil {
		t.Fatalf("GetByTxHash: %v", err)
	}
	if byHash.TrackingID != tx.TrackingID {
		t.Errorf("hash lookup returned %s", byHash.TrackingID)
	}
}

func TestChainTxRepository_HasPendingByReference(t *testing.T) {
	db := openTestDB(t)
	repo := NewChainTxRepository(db)
	ctx := context.Background()

	ref := id.NewID32()
	tx := seedTx(t, repo, txDomain.PurposeLiquidation, ref)

	ok, err := repo.HasPendingByReference(ctx, txDomain.PurposeLiquidation, ref)
	if err != nil || !ok {
		t.Fatalf("pending = (%v, %v), want (true, nil)", ok, err)
	}
	// different purpose, same reference
	ok, err = repo.HasPendingByReference(ctx, txDomain.PurposeRepayment, ref)
	if err != nil || ok {
		t.Fatalf("other purpose = (%v, %v), want (false, nil)", ok, err)
	}

	tx.Status = txDomain.StatusFailed
	if err := repo.Save(ctx, tx); err != nil {
		t.Fatal(err)
	}
	ok, err = repo.HasPendingByReference(ctx, txDomain.PurposeLiquidation, ref)
	if err != nil || ok {
		t.Fatalf("after terminal = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestChainTxRepository_PendingLists(t *testing.T) {
	db := openTestDB(t)
	repo := NewChainTxRepository(db)
	ctx := context.Background()

	withHash := seedTx(t, repo, txDomain.PurposeDeposit, id.NewID32())
	hash := "0xhash1"
	withHash.TxHash = &hash
	if err := repo.Save(ctx, withHash); err != nil {
		t.Fatal(err)
	}
	seedTx(t, repo, txDomain.PurposeWithdrawal, id.NewID32()) // no hash

	confirmed := seedTx(t, repo, txDomain.PurposeRepayment, id.NewID32())
	confirmed.Status = txDomain.StatusConfirmed
	if err := repo.Save(ctx, confirmed); err != nil {
		t.Fatal(err)
	}

	got, err := repo.ListPendingWithHash(ctx, 10)
	if err != nil {
		t.Fatalf("ListPendingWithHash: %v", err)
	}
	if len(got) != 1 || got[0].TrackingID != withHash.TrackingID {
		t.Errorf("pending with hash = %+v", got)
	}

	all, err := repo.ListPendingSubmittedBefore(ctx, time.Now().UTC().Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("ListPendingSubmittedBefore: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("pending before cutoff = %d, want 2", len(all))
	}
	none, err := repo.ListPendingSubmittedBefore(ctx, time.Now().UTC().Add(-time.Hour), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("pending before old cutoff = %d, want 0", len(none))
	}
}

func TestChainTxRepository_CheckpointUpsert(t *testing.T) {
	db := openTestDB(t)
	repo := NewChainTxRepository(db)
	ctx := context.Background()

	const program = "LendProgram1111111111111111111111111111"

	if _, err := repo.GetCheckpoint(ctx, program); !errors.Is(err, txDomain.ErrNotFound) {
		t.Fatalf("missing checkpoint = %v, want ErrNotFound", err)
	}

	if err := repo.SaveCheckpoint(ctx, &txDomain.Checkpoint{ProgramID: program, Slot: 100}); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}
	if err := repo.SaveCheckpoint(ctx, &txDomain.Checkpoint{ProgramID: program, Slot: 250}); err != nil {
		t.Fatalf("SaveCheckpoint (upsert): %v", err)
	}

	got, err := repo.GetCheckpoint(ctx, program)
	if err != nil {
		t.Fatalf("GetCheckpoint: %v", err)
	}
	if got.Slot != 250 {
		t.Errorf("slot = %d, want 250", got.Slot)
	}

	var count int64
	if err := db.Model(&txDomain.Checkpoint{}).Count(&count).Error; err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("checkpoint rows = %d, want 1 (upsert, not append)", count)
	}
}
