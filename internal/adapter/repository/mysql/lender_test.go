package mysql

import (
	"context"
	"errors"
	"testing"
	"time"

	lenderDomain "credlend-backend/internal/domain/lender"
	"credlend-backend/pkg/id"

	"github.com/shopspring/decimal"
)

func seedPool(t *testing.T, repo *LenderRepository) *lenderDomain.Pool {
	t.Helper()
	p := &lenderDomain.Pool{
		PoolID:             id.NewID32(),
		Name:               "Stable Yield",
		TokenAddress:       "Pool11111111111111111111111111111111111",
		APY:                decimal.RequireFromString("8.50"),
		TotalLiquidity:     decimal.Zero,
		AvailableLiquidity: decimal.Zero,
		TotalShares:        decimal.Zero,
		MinDeposit:         decimal.RequireFromString("10"),
		LockPeriodDays:     30,
		IsActive:           true,
	}
	if err := repo.db.Create(p).Error; err != nil {
		t.Fatalf("seed pool: %v", err)
	}
	return p
}

func TestLenderRepository_PoolRoundTrip(t *testing.T) {
	db := openTestDB(t)
	repo := NewLenderRepository(db)
	ctx := context.Background()

	p := seedPool(t, repo)

	got, err := repo.GetPoolByID(ctx, p.PoolID)
	if err != nil {
		t.Fatalf("GetPoolByID: %v", err)
	}
	got.AddLiquidity(dec("500"), dec("500"))
	if err := repo.SavePool(ctx, got); err != nil {
		t.Fatalf("SavePool: %v", err)
	}

	again, err := repo.GetPoolByID(ctx, p.PoolID)
	if err != nil {
		t.Fatal(err)
	}
	if !again.TotalLiquidity.Equal(dec("500")) {
		t.Errorf("TotalLiquidity = %s after save", again.TotalLiquidity)
	}

	if _, err := repo.GetPoolByID(ctx, "abababababababababababababababab"); !errors.Is(err, lenderDomain.ErrNotFound) {
		t.Errorf("missing pool = %v, want ErrNotFound", err)
	}

	pools, err := repo.ListActivePools(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pools) != 1 {
		t.Errorf("active pools = %d, want 1", len(pools))
	}
}

func TestLenderRepository_DepositLifecycle(t *testing.T) {
	db := openTestDB(t)
	repo := NewLenderRepository(db)
	ctx := context.Background()

	p := seedPool(t, repo)
	d := &lenderDomain.Deposit{
		DepositID:     id.NewID32(),
		WalletAddress: "Lender111111111111111111111111111111111",
		PoolID:        p.ID,
		Amount:        dec("100"),
		Shares:        dec("100"),
		UnlockedAt:    time.Now().UTC().AddDate(0, 0, 30),
	}
	if err := repo.CreateDeposit(ctx, d); err != nil {
		t.Fatalf("CreateDeposit: %v", err)
	}

	got, err := repo.GetDepositByID(ctx, d.DepositID)
	if err != nil {
		t.Fatalf("GetDepositByID: %v", err)
	}
	got.Withdrawn = true
	if err := repo.SaveDeposit(ctx, got); err != nil {
		t.Fatalf("SaveDeposit: %v", err)
	}

	total, active, err := repo.CountDeposits(ctx, p.ID)
	if err != nil {
		t.Fatalf("CountDeposits: %v", err)
	}
	if total != 1 || active != 0 {
		t.Errorf("counts = (%d, %d), want (1, 0)", total, active)
	}

	if err := repo.DeleteDeposit(ctx, got); err != nil {
		t.Fatalf("DeleteDeposit: %v", err)
	}
	if _, err := repo.GetDepositByID(ctx, d.DepositID); !errors.Is(err, lenderDomain.ErrNotFound) {
		t.Errorf("deleted deposit = %v, want ErrNotFound", err)
	}
}

func TestLenderRepository_SumAllocations(t *testing.T) {
	db := openTestDB(t)
	repo := NewLenderRepository(db)
	ctx := context.Background()

	p := seedPool(t, repo)

	// no rows sums to zero, not an error
	sum, err := repo.SumAllocations(ctx, p.ID)
	if err != nil {
		t.Fatalf("SumAllocations (empty): %v", err)
	}
	if !sum.IsZero() {
		t.Errorf("empty sum = %s, want 0", sum)
	}

	for _, amt := range []string{"250", "750.50"} {
		a := &lenderDomain.Allocation{
			AllocationID: id.NewID32(),
			PoolID:       p.ID,
			LoanID:       1,
			Amount:       dec(amt),
		}
		if err := repo.CreateAllocation(ctx, a); err != nil {
			t.Fatalf("CreateAllocation: %v", err)
		}
	}

	sum, err = repo.SumAllocations(ctx, p.ID)
	if err != nil {
		t.Fatalf("SumAllocations: %v", err)
	}
	if !sum.Equal(dec("1000.50")) {
		t.Errorf("sum = %s, want 1000.50", sum)
	}
}
