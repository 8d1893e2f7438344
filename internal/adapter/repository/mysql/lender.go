package mysql

import (
	"context"
	"errors"

	lenderDomain "credlend-backend/internal/domain/lender"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LenderRepository struct{ db *gorm.DB }

func NewLenderRepository(db *gorm.DB) *LenderRepository { return &LenderRepository{db: db} }

func (r *LenderRepository) GetPoolByID(ctx context.Context, poolID string) (*lenderDomain.Pool, error) {
	var out lenderDomain.Pool
	res := r.db.WithContext(ctx).Where("pool_id = ?", poolID).First(&out)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, lenderDomain.ErrNotFound
	}
	return &out, res.Error
}

// GetPoolByIDForUpdate takes the pool row lock. Liquidity fields are only
// mutated while this lock is held.
func (r *LenderRepository) GetPoolByIDForUpdate(ctx context.Context, poolID string) (*lenderDomain.Pool, error) {
	var out lenderDomain.Pool
	res := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("pool_id = ?", poolID).
		First(&out)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, lenderDomain.ErrNotFound
	}
	return &out, res.Error
}

func (r *LenderRepository) GetPoolByNumericIDForUpdate(ctx context.Context, id uint64) (*lenderDomain.Pool, error) {
	var out lenderDomain.Pool
	res := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&out)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, lenderDomain.ErrNotFound
	}
	return &out, res.Error
}

func (r *LenderRepository) SavePool(ctx context.Context, p *lenderDomain.Pool) error {
	return r.db.WithContext(ctx).Save(p).Error
}

func (r *LenderRepository) ListActivePools(ctx context.Context) ([]lenderDomain.Pool, error) {
	var out []lenderDomain.Pool
	res := r.db.WithContext(ctx).Where("is_active = ?", true).Order("id ASC").Find(&out)
	return out, res.Error
}

func (r *LenderRepository) CreateDeposit(ctx context.Context, d *lenderDomain.Deposit) error {
	return r.db.WithContext(ctx).Create(d).Error
}

func (r *LenderRepository) GetDepositByID(ctx context.Context, depositID string) (*lenderDomain.Deposit, error) {
	var out lenderDomain.Deposit
	res := r.db.WithContext(ctx).Where("deposit_id = ?", depositID).First(&out)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, lenderDomain.ErrNotFound
	}
	return &out, res.Error
}

func (r *LenderRepository) GetDepositByIDForUpdate(ctx context.Context, depositID string) (*lenderDomain.Deposit, error) {
	var out lenderDomain.Deposit
	res := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("deposit_id = ?", depositID).
		First(&out)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, lenderDomain.ErrNotFound
	}
	return &out, res.Error
}

func (r *LenderRepository) SaveDeposit(ctx context.Context, d *lenderDomain.Deposit) error {
	return r.db.WithContext(ctx).Save(d).Error
}

func (r *LenderRepository) DeleteDeposit(ctx context.Context, d *lenderDomain.Deposit) error {
	return r.db.WithContext(ctx).Delete(d).Error
}

func (r *LenderRepository) ListActiveDepositsByWallet(ctx context.Context, wallet string) ([]lenderDomain.Deposit, error) {
	var out []lenderDomain.Deposit
	res := r.db.WithContext(ctx).
		Where("wallet_address = ? AND withdrawn = ?", wallet, false).
		Order("id ASC").
		Find(&out)
	return out, res.Error
}

func (r *LenderRepository) CreateAllocation(ctx context.Context, a *lenderDomain.Allocation) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *LenderRepository) GetAllocationByID(ctx context.Context, allocationID string) (*lenderDomain.Allocation, error) {
	var out lenderDomain.Allocation
	res := r.db.WithContext(ctx).Where("allocation_id = ?", allocationID).First(&out)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, lenderDomain.ErrNotFound
	}
	return &out, res.Error
}

func (r *LenderRepository) SaveAllocation(ctx context.Context, a *lenderDomain.Allocation) error {
	return r.db.WithContext(ctx).Save(a).Error
}

func (r *LenderRepository) DeleteAllocation(ctx context.Context, a *lenderDomain.Allocation) error {
	return r.db.WithContext(ctx).Delete(a).Error
}

func (r *LenderRepository) CountDeposits(ctx context.Context, poolID uint64) (total, active int64, err error) {
	if err = r.db.WithContext(ctx).Model(&lenderDomain.Deposit{}).
		Where("pool_id = ?", poolID).
		Count(&total).Error; err != nil {
		return 0, 0, err
	}
	if err = r.db.WithContext(ctx).Model(&lenderDomain.Deposit{}).
		Where("pool_id = ? AND withdrawn = ?", poolID, false).
		Count(&active).Error; err != nil {
		return 0, 0, err
	}
	return total, active, nil
}

func (r *LenderRepository) SumAllocations(ctx context.Context, poolID uint64) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	res := r.db.WithContext(ctx).Model(&lenderDomain.Allocation{}).
		Select("SUM(amount)").
		Where("pool_id = ?", poolID).
		Scan(&sum)
	if res.Error != nil {
		return decimal.Zero, res.Error
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}
