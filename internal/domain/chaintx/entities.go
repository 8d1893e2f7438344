package chaintx

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("transaction not found")
	// ErrConflictingFinality means two reconciliation events disagree on a
	// terminal outcome. Data-integrity fault: log and escalate, never
	// auto-resolve by picking a side.
	ErrConflictingFinality = errors.New("conflicting terminal outcomes for transaction")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Purpose names the business flow that produced a transfer, so reconciliation
// knows which effect to settle or compensate.
type Purpose string

const (
	PurposeDeposit     Purpose = "deposit"
	PurposeWithdrawal  Purpose = "withdrawal"
	PurposeRepayment   Purpose = "repayment"
	PurposeAllocation  Purpose = "allocation"
	PurposeLiquidation Purpose = "liquidation"
)

// Transaction is the audit trail of one outbound transfer attempt. It is
// created pending at submission and transitions exactly once to confirmed or
// failed. Its lifecycle is independent of the business record that references
// it, so a transaction can outlive a rejected or retried business action.
type Transaction struct {
	ID            uint64          `gorm:"primaryKey;column:id" json:"-"`
	TrackingID    string          `gorm:"size:36;uniqueIndex:ux_chain_txs_tracking_id" json:"tracking_id"`
	TxHash        *string         `gorm:"size:255;uniqueIndex:ux_chain_txs_tx_hash" json:"tx_hash,omitempty"`
	Purpose       Purpose         `gorm:"size:20;index:idx_chain_txs_purpose_ref" json:"purpose"`
	ReferenceID   string          `gorm:"size:32;index:idx_chain_txs_purpose_ref" json:"reference_id"`
	Status        Status          `gorm:"size:20;default:'pending';index:idx_chain_txs_status" json:"status"`
	FromAddress   string          `gorm:"size:255" json:"from_address"`
	ToAddress     string          `gorm:"size:255" json:"to_address"`
	Value         decimal.Decimal `gorm:"type:decimal(36,18)" json:"value"`
	BlockNumber   *uint64         `json:"block_number,omitempty"`
	FailureReason *string         `gorm:"size:255" json:"failure_reason,omitempty"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Transaction) TableName() string { return "blockchain_transactions" }

func (t *Transaction) Terminal() bool { return t.Status != StatusPending }

// Finalize applies a terminal outcome. Repeating the same outcome is a no-op
// (changed=false); a different terminal outcome is ErrConflictingFinality.
func (t *Transaction) Finalize(status Status, blockNumber uint64, reason string) (bool, error) {
	if status != StatusConfirmed && status != StatusFailed {
		return false, errors.New("finalize requires a terminal status")
	}
	if t.Terminal() {
		if t.Status == status {
			return false, nil
		}
		return false, ErrConflictingFinality
	}
	t.Status = status
	if status == StatusConfirmed && blockNumber > 0 {
		t.BlockNumber = &blockNumber
	}
	if status == StatusFailed && reason != "" {
		t.FailureReason = &reason
	}
	return true, nil
}

// Checkpoint records the last chain slot the event listener has durably
// processed for a program, so a restart resumes instead of replaying.
type Checkpoint struct {
	ID        uint64    `gorm:"primaryKey;column:id"`
	ProgramID string    `gorm:"size:255;uniqueIndex:ux_checkpoints_program"`
	Slot      uint64    `gorm:"column:slot"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (Checkpoint) TableName() string { return "chain_checkpoints" }
