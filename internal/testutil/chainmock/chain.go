// Package chainmock is a function-backed fake of the chain capability.
// Fill in the function fields a test needs; unfilled ones fall back to a
// deterministic happy path (every transfer accepted, every status pending).
package chainmock

import (
	"context"
	"fmt"
	"sync"

	"credlend-backend/internal/domain/chain"
)

// Ensure compile-time compliance
var _ chain.Chain = (*Chain)(nil)

type Chain struct {
	SubmitTransferFn    func(ctx context.Context, t chain.Transfer) (string, error)
	TransactionStatusFn func(ctx context.Context, txHash string) (chain.TxStatus, error)
	SubscribeLogsFn     func(ctx context.Context, programID string, fromSlot uint64) (<-chan chain.LogEvent, error)

	mu        sync.Mutex
	submitted []chain.Transfer
	seq       int
}

func New() *Chain { return &Chain{} }

// Submitted returns every transfer the fake has accepted, in order.
func (m *Chain) Submitted() []chain.Transfer {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]chain.Transfer, len(m.submitted))
	copy(out, m.submitted)
	return out
}

func (m *Chain) SubmitTransfer(ctx context.Context, t chain.Transfer) (string, error) {
	if m.SubmitTransferFn != nil {
		hash, err := m.SubmitTransferFn(ctx, t)
		if err == nil {
			m.record(t)
		}
		return hash, err
	}
	m.mu.Lock()
	m.submitted = append(m.submitted, t)
	m.seq++
	hash := fmt.Sprintf("0xmock%04d", m.seq)
	m.mu.Unlock()
	return hash, nil
}

func (m *Chain) record(t chain.Transfer) {
	m.mu.Lock()
	m.submitted = append(m.submitted, t)
	m.mu.Unlock()
}

func (m *Chain) TransactionStatus(ctx context.Context, txHash string) (chain.TxStatus, error) {
	if m.TransactionStatusFn != nil {
		return m.TransactionStatusFn(ctx, txHash)
	}
	return chain.TxStatus{State: chain.TxPending}, nil
}

func (m *Chain) SubscribeLogs(ctx context.Context, programID string, fromSlot uint64) (<-chan chain.LogEvent, error) {
	if m.SubscribeLogsFn != nil {
		return m.SubscribeLogsFn(ctx, programID, fromSlot)
	}
	ch := make(chan chain.LogEvent)
	close(ch)
	return ch, nil
}
