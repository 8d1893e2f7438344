// Package uowmock provides an in-memory ledger satisfying the three
// repositories and uow.UnitOfWork. There are no real transactions: the
// Within* methods serialize on one mutex, which preserves the single-writer
// semantics the usecases rely on, and restore a snapshot when the callback
// fails so rollback behavior matches the database.
package uowmock

import (
	"context"
	"sort"
	"sync"
	"time"

	"credlend-backend/internal/domain/chaintx"
	"credlend-backend/internal/domain/lender"
	"credlend-backend/internal/domain/loan"
	"credlend-backend/internal/domain/uow"

	"github.com/shopspring/decimal"
)

// Ensure compile-time compliance
var (
	_ uow.UnitOfWork     = (*Store)(nil)
	_ loan.Repository    = (*txView)(nil)
	_ lender.Repository  = (*txView)(nil)
	_ chaintx.Repository = (*txView)(nil)
)

type Store struct {
	mu     sync.Mutex
	nextID uint64

	products     map[uint64]*loan.Product
	applications map[uint64]*loan.Application
	loans        map[uint64]*loan.Loan
	repayments   map[uint64]*loan.Repayment
	pools        map[uint64]*lender.Pool
	deposits     map[uint64]*lender.Deposit
	allocations  map[uint64]*lender.Allocation
	txs          map[uint64]*chaintx.Transaction
	checkpoints  map[string]*chaintx.Checkpoint
}

func New() *Store {
	return &Store{
		products:     map[uint64]*loan.Product{},
		applications: map[uint64]*loan.Application{},
		loans:        map[uint64]*loan.Loan{},
		repayments:   map[uint64]*loan.Repayment{},
		pools:        map[uint64]*lender.Pool{},
		deposits:     map[uint64]*lender.Deposit{},
		allocations:  map[uint64]*lender.Allocation{},
		txs:          map[uint64]*chaintx.Transaction{},
		checkpoints:  map[string]*chaintx.Checkpoint{},
	}
}

func clone[T any](v *T) *T { cp := *v; return &cp }

func cloneMap[T any](src map[uint64]*T) map[uint64]*T {
	dst := make(map[uint64]*T, len(src))
	for k, v := range src {
		dst[k] = clone(v)
	}
	return dst
}

func (s *Store) id() uint64 { s.nextID++; return s.nextID }

func (s *Store) repos() uow.Repos {
	return uow.Repos{Loans: (*txView)(s), Lenders: (*txView)(s), ChainTxs: (*txView)(s)}
}

type snapshot struct {
	applications map[uint64]*loan.Application
	loans        map[uint64]*loan.Loan
	repayments   map[uint64]*loan.Repayment
	pools        map[uint64]*lender.Pool
	deposits     map[uint64]*lender.Deposit
	allocations  map[uint64]*lender.Allocation
	txs          map[uint64]*chaintx.Transaction
}

func (s *Store) snap() snapshot {
	return snapshot{
		applications: cloneMap(s.applications),
		loans:        cloneMap(s.loans),
		repayments:   cloneMap(s.repayments),
		pools:        cloneMap(s.pools),
		deposits:     cloneMap(s.deposits),
		allocations:  cloneMap(s.allocations),
		txs:          cloneMap(s.txs),
	}
}

func (s *Store) restore(sn snapshot) {
	s.applications = sn.applications
	s.loans = sn.loans
	s.repayments = sn.repayments
	s.pools = sn.pools
	s.deposits = sn.deposits
	s.allocations = sn.allocations
	s.txs = sn.txs
}

// ---- UnitOfWork ----

func (s *Store) WithinTx(ctx context.Context, fn func(r uow.Repos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sn := s.snap()
	if err := fn(s.repos()); err != nil {
		s.restore(sn)
		return err
	}
	return nil
}

func (s *Store) WithinLoanTx(ctx context.Context, loanID string, fn func(r uow.Repos, l *loan.Loan) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.loanByExternalID(loanID)
	if err != nil {
		return err
	}
	sn := s.snap()
	if err := fn(s.repos(), clone(l)); err != nil {
		s.restore(sn)
		return err
	}
	return nil
}

func (s *Store) WithinPoolTx(ctx context.Context, poolID string, fn func(r uow.Repos, p *lender.Pool) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.poolByExternalID(poolID)
	if err != nil {
		return err
	}
	sn := s.snap()
	if err := fn(s.repos(), clone(p)); err != nil {
		s.restore(sn)
		return err
	}
	return nil
}

// txView exposes the repositories inside a Within* callback without
// re-acquiring the mutex the callback already holds.
type txView Store

func (v *txView) store() *Store { return (*Store)(v) }

// ---- seeding (outside any transaction) ----

func (s *Store) SeedProduct(p *loan.Product) *loan.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.id()
	s.products[p.ID] = clone(p)
	return p
}

func (s *Store) SeedPool(p *lender.Pool) *lender.Pool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.id()
	s.pools[p.ID] = clone(p)
	return p
}

func (s *Store) SeedLoan(l *loan.Loan) *loan.Loan {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.ID = s.id()
	s.loans[l.ID] = clone(l)
	return l
}

func (s *Store) SeedRepayment(r *loan.Repayment) *loan.Repayment {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.id()
	s.repayments[r.ID] = clone(r)
	return r
}

func (s *Store) SeedDeposit(d *lender.Deposit) *lender.Deposit {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.ID = s.id()
	s.deposits[d.ID] = clone(d)
	return d
}

// ---- internal lookups (callers hold s.mu) ----

func (s *Store) loanByExternalID(loanID string) (*loan.Loan, error) {
	for _, l := range s.loans {
		if l.LoanID == loanID {
			return l, nil
		}
	}
	return nil, loan.ErrNotFound
}

func (s *Store) poolByExternalID(poolID string) (*lender.Pool, error) {
	for _, p := range s.pools {
		if p.PoolID == poolID {
			return p, nil
		}
	}
	return nil, lender.ErrNotFound
}

// ---- loan.Repository ----

func (v *txView) GetProductByID(ctx context.Context, productID string) (*loan.Product, error) {
	for _, p := range v.store().products {
		if p.ProductID == productID {
			return clone(p), nil
		}
	}
	return nil, loan.ErrProductNotFound
}

func (v *txView) GetProductByNumericID(ctx context.Context, id uint64) (*loan.Product, error) {
	p, ok := v.store().products[id]
	if !ok {
		return nil, loan.ErrProductNotFound
	}
	return clone(p), nil
}

func (v *txView) ListActiveProducts(ctx context.Context) ([]loan.Product, error) {
	var out []loan.Product
	for _, p := range v.store().products {
		if p.IsActive {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *txView) CreateApplication(ctx context.Context, a *loan.Application) error {
	s := v.store()
	a.ID = s.id()
	a.CreatedAt = time.Now().UTC()
	s.applications[a.ID] = clone(a)
	return nil
}

func (v *txView) GetApplicationByID(ctx context.Context, applicationID string) (*loan.Application, error) {
	for _, a := range v.store().applications {
		if a.ApplicationID == applicationID {
			return clone(a), nil
		}
	}
	return nil, loan.ErrNotFound
}

func (v *txView) GetApplicationByIDForUpdate(ctx context.Context, applicationID string) (*loan.Application, error) {
	return v.GetApplicationByID(ctx, applicationID)
}

func (v *txView) SaveApplication(ctx context.Context, a *loan.Application) error {
	v.store().applications[a.ID] = clone(a)
	return nil
}

func (v *txView) CreateLoan(ctx context.Context, l *loan.Loan) error {
	s := v.store()
	l.ID = s.id()
	l.CreatedAt = time.Now().UTC()
	s.loans[l.ID] = clone(l)
	return nil
}

func (v *txView) GetLoanByID(ctx context.Context, loanID string) (*loan.Loan, error) {
	l, err := v.store().loanByExternalID(loanID)
	if err != nil {
		return nil, err
	}
	return clone(l), nil
}

func (v *txView) GetLoanByIDForUpdate(ctx context.Context, loanID string) (*loan.Loan, error) {
	return v.GetLoanByID(ctx, loanID)
}

func (v *txView) GetLoanByNumericIDForUpdate(ctx context.Context, id uint64) (*loan.Loan, error) {
	l, ok := v.store().loans[id]
	if !ok {
		return nil, loan.ErrNotFound
	}
	return clone(l), nil
}

func (v *txView) SaveLoan(ctx context.Context, l *loan.Loan) error {
	v.store().loans[l.ID] = clone(l)
	return nil
}

func (v *txView) ListDefaultedWithCollateral(ctx context.Context) ([]loan.Loan, error) {
	var out []loan.Loan
	for _, l := range v.store().loans {
		if l.Status == loan.StatusDefaulted && l.CollateralAddress != nil {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *txView) CreateRepayments(ctx context.Context, reps []loan.Repayment) error {
	s := v.store()
	for i := range reps {
		reps[i].ID = s.id()
		reps[i].CreatedAt = time.Now().UTC()
		s.repayments[reps[i].ID] = clone(&reps[i])
	}
	return nil
}

func (v *txView) GetRepaymentByID(ctx context.Context, repaymentID string) (*loan.Repayment, error) {
	for _, r := range v.store().repayments {
		if r.RepaymentID == repaymentID {
			return clone(r), nil
		}
	}
	return nil, loan.ErrNotFound
}

func (v *txView) SaveRepayment(ctx context.Context, r *loan.Repayment) error {
	v.store().repayments[r.ID] = clone(r)
	return nil
}

func (v *txView) ListDueUnpaid(ctx context.Context, before time.Time, limit int) ([]loan.Repayment, error) {
	var out []loan.Repayment
	for _, r := range v.store().repayments {
		if r.PaidAt == nil && r.DueDate.Before(before) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (v *txView) ListUpcomingByWallet(ctx context.Context, wallet string, after time.Time) ([]loan.Repayment, error) {
	return v.listByWallet(wallet, func(r *loan.Repayment) bool {
		return r.PaidAt == nil && !r.DueDate.Before(after)
	})
}

func (v *txView) ListOverdueByWallet(ctx context.Context, wallet string, before time.Time) ([]loan.Repayment, error) {
	return v.listByWallet(wallet, func(r *loan.Repayment) bool {
		return r.PaidAt == nil && r.DueDate.Before(before)
	})
}

func (v *txView) listByWallet(wallet string, keep func(*loan.Repayment) bool) ([]loan.Repayment, error) {
	s := v.store()
	byWallet := map[uint64]bool{}
	for _, l := range s.loans {
		if l.BorrowerWallet == wallet {
			byWallet[l.ID] = true
		}
	}
	var out []loan.Repayment
	for _, r := range s.repayments {
		if byWallet[r.LoanID] && keep(r) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

// ---- lender.Repository ----

func (v *txView) GetPoolByID(ctx context.Context, poolID string) (*lender.Pool, error) {
	p, err := v.store().poolByExternalID(poolID)
	if err != nil {
		return nil, err
	}
	return clone(p), nil
}

func (v *txView) GetPoolByIDForUpdate(ctx context.Context, poolID string) (*lender.Pool, error) {
	return v.GetPoolByID(ctx, poolID)
}

func (v *txView) GetPoolByNumericIDForUpdate(ctx context.Context, id uint64) (*lender.Pool, error) {
	p, ok := v.store().pools[id]
	if !ok {
		return nil, lender.ErrNotFound
	}
	return clone(p), nil
}

func (v *txView) SavePool(ctx context.Context, p *lender.Pool) error {
	v.store().pools[p.ID] = clone(p)
	return nil
}

func (v *txView) ListActivePools(ctx context.Context) ([]lender.Pool, error) {
	var out []lender.Pool
	for _, p := range v.store().pools {
		if p.IsActive {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *txView) CreateDeposit(ctx context.Context, d *lender.Deposit) error {
	s := v.store()
	d.ID = s.id()
	d.CreatedAt = time.Now().UTC()
	s.deposits[d.ID] = clone(d)
	return nil
}

func (v *txView) GetDepositByID(ctx context.Context, depositID string) (*lender.Deposit, error) {
	for _, d := range v.store().deposits {
		if d.DepositID == depositID {
			return clone(d), nil
		}
	}
	return nil, lender.ErrNotFound
}

func (v *txView) GetDepositByIDForUpdate(ctx context.Context, depositID string) (*lender.Deposit, error) {
	return v.GetDepositByID(ctx, depositID)
}

func (v *txView) SaveDeposit(ctx context.Context, d *lender.Deposit) error {
	v.store().deposits[d.ID] = clone(d)
	return nil
}

func (v *txView) DeleteDeposit(ctx context.Context, d *lender.Deposit) error {
	delete(v.store().deposits, d.ID)
	return nil
}

func (v *txView) ListActiveDepositsByWallet(ctx context.Context, wallet string) ([]lender.Deposit, error) {
	var out []lender.Deposit
	for _, d := range v.store().deposits {
		if d.WalletAddress == wallet && !d.Withdrawn {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *txView) CreateAllocation(ctx context.Context, a *lender.Allocation) error {
	s := v.store()
	a.ID = s.id()
	a.CreatedAt = time.Now().UTC()
	s.allocations[a.ID] = clone(a)
	return nil
}

func (v *txView) GetAllocationByID(ctx context.Context, allocationID string) (*lender.Allocation, error) {
	for _, a := range v.store().allocations {
		if a.AllocationID == allocationID {
			return clone(a), nil
		}
	}
	return nil, lender.ErrNotFound
}

func (v *txView) SaveAllocation(ctx context.Context, a *lender.Allocation) error {
	v.store().allocations[a.ID] = clone(a)
	return nil
}

func (v *txView) DeleteAllocation(ctx context.Context, a *lender.Allocation) error {
	delete(v.store().allocations, a.ID)
	return nil
}

func (v *txView) CountDeposits(ctx context.Context, poolID uint64) (total, active int64, err error) {
	for _, d := range v.store().deposits {
		if d.PoolID != poolID {
			continue
		}
		total++
		if !d.Withdrawn {
			active++
		}
	}
	return total, active, nil
}

func (v *txView) SumAllocations(ctx context.Context, poolID uint64) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, a := range v.store().allocations {
		if a.PoolID == poolID {
			sum = sum.Add(a.Amount)
		}
	}
	return sum, nil
}

// ---- chaintx.Repository ----

func (v *txView) Create(ctx context.Context, t *chaintx.Transaction) error {
	s := v.store()
	t.ID = s.id()
	t.CreatedAt = time.Now().UTC()
	s.txs[t.ID] = clone(t)
	return nil
}

func (v *txView) GetByTrackingID(ctx context.Context, trackingID string) (*chaintx.Transaction, error) {
	for _, t := range v.store().txs {
		if t.TrackingID == trackingID {
			return clone(t), nil
		}
	}
	return nil, chaintx.ErrNotFound
}

func (v *txView) GetByTrackingIDForUpdate(ctx context.Context, trackingID string) (*chaintx.Transaction, error) {
	return v.GetByTrackingID(ctx, trackingID)
}

func (v *txView) GetByTxHash(ctx context.Context, txHash string) (*chaintx.Transaction, error) {
	for _, t := range v.store().txs {
		if t.TxHash != nil && *t.TxHash == txHash {
			return clone(t), nil
		}
	}
	return nil, chaintx.ErrNotFound
}

func (v *txView) Save(ctx context.Context, t *chaintx.Transaction) error {
	v.store().txs[t.ID] = clone(t)
	return nil
}

func (v *txView) HasPendingByReference(ctx context.Context, purpose chaintx.Purpose, referenceID string) (bool, error) {
	for _, t := range v.store().txs {
		if t.Purpose == purpose && t.ReferenceID == referenceID && t.Status == chaintx.StatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (v *txView) ListPendingSubmittedBefore(ctx context.Context, cutoff time.Time, limit int) ([]chaintx.Transaction, error) {
	var out []chaintx.Transaction
	for _, t := range v.store().txs {
		if t.Status == chaintx.StatusPending && t.CreatedAt.Before(cutoff) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (v *txView) ListPendingWithHash(ctx context.Context, limit int) ([]chaintx.Transaction, error) {
	var out []chaintx.Transaction
	for _, t := range v.store().txs {
		if t.Status == chaintx.StatusPending && t.TxHash != nil {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (v *txView) GetCheckpoint(ctx context.Context, programID string) (*chaintx.Checkpoint, error) {
	cp, ok := v.store().checkpoints[programID]
	if !ok {
		return nil, chaintx.ErrNotFound
	}
	return clone(cp), nil
}

func (v *txView) SaveCheckpoint(ctx context.Context, cp *chaintx.Checkpoint) error {
	s := v.store()
	if cur, ok := s.checkpoints[cp.ProgramID]; ok {
		cp.ID = cur.ID
	} else if cp.ID == 0 {
		cp.ID = s.id()
	}
	s.checkpoints[cp.ProgramID] = clone(cp)
	return nil
}

// ---- repository views for wiring usecases and test assertions ----

func (s *Store) LoanRepo() loan.Repository       { return (*txView)(s) }
func (s *Store) LenderRepo() lender.Repository   { return (*txView)(s) }
func (s *Store) ChainTxRepo() chaintx.Repository { return (*txView)(s) }
