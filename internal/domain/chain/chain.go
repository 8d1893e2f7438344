// Package chain defines the capability the settlement core consumes from the
// external ledger. The production implementation lives in
// internal/infrastructure/chain; tests inject a deterministic fake.
package chain

import (
	"context"

	"github.com/shopspring/decimal"
)

type TxState string

const (
	TxPending   TxState = "pending"
	TxConfirmed TxState = "confirmed"
	TxFailed    TxState = "failed"
)

// TxStatus is the chain's view of a submitted transfer.
type TxStatus struct {
	State       TxState
	BlockNumber uint64
	Reason      string
}

// Transfer is a money movement handed to the chain. Memo carries the
// correlation key (tracking id) that program events echo back.
type Transfer struct {
	From   string
	To     string
	Amount decimal.Decimal
	Memo   string
}

// LogEvent is one batch of program log lines observed at a slot.
type LogEvent struct {
	Slot      uint64
	Signature string
	Logs      []string
}

type Chain interface {
	// SubmitTransfer hands a transfer to the chain and returns its hash.
	// It returns once the chain has accepted the transaction into its
	// queue; it never waits for confirmation.
	SubmitTransfer(ctx context.Context, t Transfer) (txHash string, err error)

	// TransactionStatus is a point-in-time status poll for a known hash.
	TransactionStatus(ctx context.Context, txHash string) (TxStatus, error)

	// SubscribeLogs streams program log events starting at fromSlot. The
	// channel closes when the subscription drops or ctx is canceled; the
	// caller is expected to resubscribe from its checkpoint.
	SubscribeLogs(ctx context.Context, programID string, fromSlot uint64) (<-chan LogEvent, error)
}
