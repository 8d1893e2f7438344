package settlement

import (
	"time"

	"github.com/shopspring/decimal"
)

type CreateDepositInput struct {
	PoolID        string          `json:"pool_id"`
	WalletAddress string          `json:"wallet_address"`
	Amount        decimal.Decimal `json:"amount"`
}

// PendingResult is what every money-moving operation returns: the business
// effect is reserved in the ledger, the transfer is on its way, and the
// caller polls or waits for the reconciliation to finish it.
type PendingResult struct {
	Status     string `json:"status"` // always "pending"
	TrackingID string `json:"tracking_id"`
	TxHash     string `json:"tx_hash,omitempty"`
}

type DepositDTO struct {
	PendingResult
	DepositID     string          `json:"deposit_id"`
	PoolID        string          `json:"pool_id"`
	WalletAddress string          `json:"wallet_address"`
	Amount        decimal.Decimal `json:"amount"`
	Shares        decimal.Decimal `json:"shares"`
	UnlockedAt    time.Time       `json:"unlocked_at"`
}

type WithdrawDTO struct {
	PendingResult
	DepositID string          `json:"deposit_id"`
	Amount    decimal.Decimal `json:"amount"`
}

type RepaymentDTO struct {
	PendingResult
	RepaymentID  string          `json:"repayment_id"`
	LoanID       string          `json:"loan_id"`
	Amount       decimal.Decimal `json:"amount"`
	AmountRepaid decimal.Decimal `json:"amount_repaid"`
	LoanStatus   string          `json:"loan_status"`
}

type AllocationDTO struct {
	PendingResult
	AllocationID string          `json:"allocation_id"`
	PoolID       string          `json:"pool_id"`
	LoanID       string          `json:"loan_id"`
	Amount       decimal.Decimal `json:"amount"`
}
