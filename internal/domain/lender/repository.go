package lender

import (
	"context"

	"github.com/shopspring/decimal"
)

type Repository interface {
	GetPoolByID(ctx context.Context, poolID string) (*Pool, error)
	GetPoolByIDForUpdate(ctx context.Context, poolID string) (*Pool, error)
	GetPoolByNumericIDForUpdate(ctx context.Context, id uint64) (*Pool, error)
	SavePool(ctx context.Context, p *Pool) error
	ListActivePools(ctx context.Context) ([]Pool, error)

	CreateDeposit(ctx context.Context, d *Deposit) error
	GetDepositByID(ctx context.Context, depositID string) (*Deposit, error)
	GetDepositByIDForUpdate(ctx context.Context, depositID string) (*Deposit, error)
	SaveDeposit(ctx context.Context, d *Deposit) error
	// DeleteDeposit is the compensating action for an optimistic deposit
	// whose chain submission failed.
	DeleteDeposit(ctx context.Context, d *Deposit) error
	ListActiveDepositsByWallet(ctx context.Context, wallet string) ([]Deposit, error)

	CreateAllocation(ctx context.Context, a *Allocation) error
	GetAllocationByID(ctx context.Context, allocationID string) (*Allocation, error)
	SaveAllocation(ctx context.Context, a *Allocation) error
	DeleteAllocation(ctx context.Context, a *Allocation) error

	CountDeposits(ctx context.Context, poolID uint64) (total, active int64, err error)
	SumAllocations(ctx context.Context, poolID uint64) (decimal.Decimal, error)
}
