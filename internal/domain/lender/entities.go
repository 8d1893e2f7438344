package lender

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound              = errors.New("lender record not found")
	ErrPoolInactive          = errors.New("pool is not active")
	ErrBelowMinDeposit       = errors.New("amount below pool minimum deposit")
	ErrInsufficientLiquidity = errors.New("insufficient pool liquidity")
	ErrStillLocked           = errors.New("deposit is still locked")
	ErrAlreadyWithdrawn      = errors.New("deposit already withdrawn")
	ErrLiquidityUnderflow    = errors.New("liquidity accounting underflow")
)

// Pool is the most contended entity in the system. Its liquidity fields are
// only ever mutated through the methods below, inside a pool row lock.
// Invariant: 0 <= available_liquidity <= total_liquidity.
type Pool struct {
	ID                 uint64          `gorm:"primaryKey;column:id" json:"-"`
	PoolID             string          `gorm:"size:32;uniqueIndex:ux_pools_pool_id" json:"pool_id"`
	Name               string          `gorm:"size:255" json:"name"`
	PoolType           string          `gorm:"size:50" json:"pool_type"`
	Description        string          `gorm:"type:text" json:"description"`
	TokenAddress       string          `gorm:"size:255" json:"token_address"`
	APY                decimal.Decimal `gorm:"type:decimal(5,2);column:apy" json:"apy"`
	TotalLiquidity     decimal.Decimal `gorm:"type:decimal(36,18);default:0" json:"total_liquidity"`
	AvailableLiquidity decimal.Decimal `gorm:"type:decimal(36,18);default:0" json:"available_liquidity"`
	TotalShares        decimal.Decimal `gorm:"type:decimal(36,18);default:0" json:"-"`
	MinDeposit         decimal.Decimal `gorm:"type:decimal(36,18)" json:"min_deposit"`
	LockPeriodDays     int             `gorm:"column:lock_period_days" json:"lock_period_days"`
	IsActive           bool            `gorm:"default:true" json:"is_active"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Pool) TableName() string { return "lender_pools" }

// SharesFor prices a deposit in pool shares: 1:1 into an empty pool,
// proportional to the share/liquidity ratio otherwise.
func (p *Pool) SharesFor(amount decimal.Decimal) decimal.Decimal {
	if p.TotalLiquidity.IsZero() || p.TotalShares.IsZero() {
		return amount
	}
	return amount.Mul(p.TotalShares).Div(p.TotalLiquidity)
}

// AddLiquidity credits a confirmed-or-reserved deposit: total and available
// both grow, shares are minted.
func (p *Pool) AddLiquidity(amount, shares decimal.Decimal) {
	p.TotalLiquidity = p.TotalLiquidity.Add(amount)
	p.AvailableLiquidity = p.AvailableLiquidity.Add(amount)
	p.TotalShares = p.TotalShares.Add(shares)
}

// RemoveLiquidity debits a withdrawal: total and available both shrink,
// shares are burned. Fails rather than letting either balance go negative.
func (p *Pool) RemoveLiquidity(amount, shares decimal.Decimal) error {
	if amount.GreaterThan(p.AvailableLiquidity) {
		return ErrInsufficientLiquidity
	}
	if amount.GreaterThan(p.TotalLiquidity) || shares.GreaterThan(p.TotalShares) {
		return ErrLiquidityUnderflow
	}
	p.TotalLiquidity = p.TotalLiquidity.Sub(amount)
	p.AvailableLiquidity = p.AvailableLiquidity.Sub(amount)
	p.TotalShares = p.TotalShares.Sub(shares)
	return nil
}

// ReserveAllocation earmarks liquidity for a loan: available shrinks, total
// is untouched.
func (p *Pool) ReserveAllocation(amount decimal.Decimal) error {
	if amount.GreaterThan(p.AvailableLiquidity) {
		return ErrInsufficientLiquidity
	}
	p.AvailableLiquidity = p.AvailableLiquidity.Sub(amount)
	return nil
}

// ReleaseAllocation is the compensating action for ReserveAllocation.
func (p *Pool) ReleaseAllocation(amount decimal.Decimal) error {
	if p.AvailableLiquidity.Add(amount).GreaterThan(p.TotalLiquidity) {
		return ErrLiquidityUnderflow
	}
	p.AvailableLiquidity = p.AvailableLiquidity.Add(amount)
	return nil
}

type Deposit struct {
	ID             uint64          `gorm:"primaryKey;column:id" json:"-"`
	DepositID      string          `gorm:"size:32;uniqueIndex:ux_deposits_deposit_id" json:"deposit_id"`
	WalletAddress  string          `gorm:"size:255;index:idx_deposits_wallet" json:"wallet_address"`
	PoolID         uint64          `gorm:"column:pool_id;index:idx_deposits_pool" json:"-"`
	Amount         decimal.Decimal `gorm:"type:decimal(36,18)" json:"amount"`
	Shares         decimal.Decimal `gorm:"type:decimal(36,18)" json:"shares"`
	DepositTxHash  *string         `gorm:"size:255" json:"deposit_tx_hash,omitempty"`
	UnlockedAt     time.Time       `json:"unlocked_at"`
	Withdrawn      bool            `gorm:"default:false" json:"withdrawn"`
	WithdrawTxHash *string         `gorm:"size:255" json:"withdraw_tx_hash,omitempty"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Deposit) TableName() string { return "lender_deposits" }

// MarkWithdrawn flips the terminal withdrawn flag. The lock period and the
// once-only rule are enforced here, before any liquidity moves.
func (d *Deposit) MarkWithdrawn(now time.Time) error {
	if d.Withdrawn {
		return ErrAlreadyWithdrawn
	}
	if now.Before(d.UnlockedAt) {
		return ErrStillLocked
	}
	d.Withdrawn = true
	return nil
}

// Reinstate undoes MarkWithdrawn when the chain submission fails.
func (d *Deposit) Reinstate() {
	d.Withdrawn = false
	d.WithdrawTxHash = nil
}

type Allocation struct {
	ID           uint64          `gorm:"primaryKey;column:id" json:"-"`
	AllocationID string          `gorm:"size:32;uniqueIndex:ux_allocations_allocation_id" json:"allocation_id"`
	PoolID       uint64          `gorm:"column:pool_id;index:idx_allocations_pool" json:"-"`
	LoanID       uint64          `gorm:"column:loan_id;index:idx_allocations_loan" json:"-"`
	Amount       decimal.Decimal `gorm:"type:decimal(36,18)" json:"amount"`
	TxHash       *string         `gorm:"size:255;column:allocation_tx_hash" json:"allocation_tx_hash,omitempty"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (Allocation) TableName() string { return "pool_allocations" }

// PoolStats is the read model behind GET /pools/:pool_id/stats.
type PoolStats struct {
	PoolID             string          `json:"pool_id"`
	PoolName           string          `json:"pool_name"`
	TotalLiquidity     decimal.Decimal `json:"total_liquidity"`
	AvailableLiquidity decimal.Decimal `json:"available_liquidity"`
	UtilizationRate    decimal.Decimal `json:"utilization_rate"`
	CurrentAPY         decimal.Decimal `json:"current_apy"`
	TotalDeposits      int64           `json:"total_deposits"`
	ActiveDeposits     int64           `json:"active_deposits"`
	TotalAllocated     decimal.Decimal `json:"total_allocated"`
}
