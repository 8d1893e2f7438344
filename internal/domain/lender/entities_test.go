package lender

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPool_SharesFor(t *testing.T) {
	p := &Pool{TotalLiquidity: decimal.Zero, TotalShares: decimal.Zero}

	// empty pool prices 1:1
	if got := p.SharesFor(dec("500")); !got.Equal(dec("500")) {
		t.Fatalf("empty pool shares = %s, want 500", got)
	}

	// funded pool prices proportionally
	p.TotalLiquidity = dec("1000")
	p.TotalShares = dec("2000")
	if got := p.SharesFor(dec("500")); !got.Equal(dec("1000")) {
		t.Fatalf("proportional shares = %s, want 1000", got)
	}
}

func TestPool_LiquidityInvariant(t *testing.T) {
	p := &Pool{
		TotalLiquidity:     decimal.Zero,
		AvailableLiquidity: decimal.Zero,
		TotalShares:        decimal.Zero,
	}
	p.AddLiquidity(dec("1000"), dec("1000"))

	if err := p.ReserveAllocation(dec("600")); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if !p.AvailableLiquidity.Equal(dec("400")) || !p.TotalLiquidity.Equal(dec("1000")) {
		t.Fatalf("after reserve: avail=%s total=%s", p.AvailableLiquidity, p.TotalLiquidity)
	}

	// reserving past available fails
	if err := p.ReserveAllocation(dec("500")); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("over-reserve = %v, want ErrInsufficientLiquidity", err)
	}

	// releasing past total fails
	if err := p.ReleaseAllocation(dec("700")); !errors.Is(err, ErrLiquidityUnderflow) {
		t.Fatalf("over-release = %v, want ErrLiquidityUnderflow", err)
	}
	if err := p.ReleaseAllocation(dec("600")); err != nil {
		t.Fatalf("release: %v", err)
	}
	if !p.AvailableLiquidity.Equal(p.TotalLiquidity) {
		t.Fatalf("release did not restore: avail=%s total=%s", p.AvailableLiquidity, p.TotalLiquidity)
	}
}

func TestPool_RemoveLiquidity(t *testing.T) {
	p := &Pool{}
	p.AddLiquidity(dec("1000"), dec("800"))

	if err := p.RemoveLiquidity(dec("1001"), dec("100")); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("remove past available = %v, want ErrInsufficientLiquidity", err)
	}
	if err := p.RemoveLiquidity(dec("100"), dec("900")); !errors.Is(err, ErrLiquidityUnderflow) {
		t.Fatalf("burn past shares = %v, want ErrLiquidityUnderflow", err)
	}
	if err := p.RemoveLiquidity(dec("250"), dec("200")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !p.TotalLiquidity.Equal(dec("750")) || !p.TotalShares.Equal(dec("600")) {
		t.Fatalf("after remove: total=%s shares=%s", p.TotalLiquidity, p.TotalShares)
	}
}

func TestDeposit_MarkWithdrawn(t *testing.T) {
	now := time.Now().UTC()
	d := &Deposit{UnlockedAt: now.Add(24 * time.Hour)}

	if err := d.MarkWithdrawn(now); !errors.Is(err, ErrStillLocked) {
		t.Fatalf("locked withdraw = %v, want ErrStillLocked", err)
	}
	if err := d.MarkWithdrawn(d.UnlockedAt); err != nil {
		t.Fatalf("withdraw at unlock instant: %v", err)
	}
	if err := d.MarkWithdrawn(now.Add(48 * time.Hour)); !errors.Is(err, ErrAlreadyWithdrawn) {
		t.Fatalf("double withdraw = %v, want ErrAlreadyWithdrawn", err)
	}

	hash := "0xdead"
	d.WithdrawTxHash = &hash
	d.Reinstate()
	if d.Withdrawn || d.WithdrawTxHash != nil {
		t.Fatalf("reinstate left withdrawn=%v hash=%v", d.Withdrawn, d.WithdrawTxHash)
	}
}
