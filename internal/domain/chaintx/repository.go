package chaintx

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, t *Transaction) error
	GetByTrackingID(ctx context.Context, trackingID string) (*Transaction, error)
	GetByTrackingIDForUpdate(ctx context.Context, trackingID string) (*Transaction, error)
	GetByTxHash(ctx context.Context, txHash string) (*Transaction, error)
	Save(ctx context.Context, t *Transaction) error
	// HasPendingByReference guards against double-submitting a transfer for
	// the same business action (e.g. liquidation re-enqueue).
	HasPendingByReference(ctx context.Context, purpose Purpose, referenceID string) (bool, error)
	// ListPendingSubmittedBefore feeds the confirmation watchdog.
	ListPendingSubmittedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Transaction, error)
	ListPendingWithHash(ctx context.Context, limit int) ([]Transaction, error)

	GetCheckpoint(ctx context.Context, programID string) (*Checkpoint, error)
	SaveCheckpoint(ctx context.Context, cp *Checkpoint) error
}
