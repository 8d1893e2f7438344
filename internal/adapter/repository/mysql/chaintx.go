package mysql

import (
	"context"
	"errors"
	"time"

	txDomain "credlend-backend/internal/domain/chaintx"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ChainTxRepository struct{ db *gorm.DB }

func NewChainTxRepository(db *gorm.DB) *ChainTxRepository { return &ChainTxRepository{db: db} }

func (r *ChainTxRepository) Create(ctx context.Context, t *txDomain.Transaction) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *ChainTxRepository) GetByTrackingID(ctx context.Context, trackingID string) (*txDomain.Transaction, error) {
	var out txDomain.Transaction
	res := r.db.WithContext(ctx).Where("tracking_id = ?", trackingID).First(&out)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, txDomain.ErrNotFound
	}
	return &out, res.Error
}

// GetByTrackingIDForUpdate locks the transaction row so concurrent
// reconciliation events serialize on it.
func (r *ChainTxRepository) GetByTrackingIDForUpdate(ctx context.Context, trackingID string) (*txDomain.Transaction, error) {
	var out txDomain.Transaction
	res := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tracking_id = ?", trackingID).
		First(&out)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, txDomain.ErrNotFound
	}
	return &out, res.Error
}

func (r *ChainTxRepository) GetByTxHash(ctx context.Context, txHash string) (*txDomain.Transaction, error) {
	var out txDomain.Transaction
	res := r.db.WithContext(ctx).Where("tx_hash = ?", txHash).First(&out)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, txDomain.ErrNotFound
	}
	return &out, res.Error
}

func (r *ChainTxRepository) Save(ctx context.Context, t *txDomain.Transaction) error {
	return r.db.WithContext(ctx).Save(t).Error
}

func (r *ChainTxRepository) HasPendingByReference(ctx context.Context, purpose txDomain.Purpose, referenceID string) (bool, error) {
	var n int64
	res := r.db.WithContext(ctx).Model(&txDomain.Transaction{}).
		Where("purpose = ? AND reference_id = ? AND status = ?", purpose, referenceID, txDomain.StatusPending).
		Count(&n)
	return n > 0, res.Error
}

func (r *ChainTxRepository) ListPendingSubmittedBefore(ctx context.Context, cutoff time.Time, limit int) ([]txDomain.Transaction, error) {
	var out []txDomain.Transaction
	q := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", txDomain.StatusPending, cutoff).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	res := q.Find(&out)
	return out, res.Error
}

func (r *ChainTxRepository) ListPendingWithHash(ctx context.Context, limit int) ([]txDomain.Transaction, error) {
	var out []txDomain.Transaction
	q := r.db.WithContext(ctx).
		Where("status = ? AND tx_hash IS NOT NULL", txDomain.StatusPending).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	res := q.Find(&out)
	return out, res.Error
}

func (r *ChainTxRepository) GetCheckpoint(ctx context.Context, programID string) (*txDomain.Checkpoint, error) {
	var out txDomain.Checkpoint
	res := r.db.WithContext(ctx).Where("program_id = ?", programID).First(&out)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, txDomain.ErrNotFound
	}
	return &out, res.Error
}

func (r *ChainTxRepository) SaveCheckpoint(ctx context.Context, cp *txDomain.Checkpoint) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "program_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"slot", "updated_at"}),
		}).
		Create(cp).Error
}
