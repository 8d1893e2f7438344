package loan

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("loan not found")
	ErrProductNotFound   = errors.New("loan product not found")
	ErrProductInactive   = errors.New("loan product is not active")
	ErrAmountOutOfRange  = errors.New("amount outside product bounds")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrAlreadyPaid       = errors.New("repayment already paid")
	ErrOverRepayment     = errors.New("repayment exceeds remaining balance")
	ErrLoanNotActive     = errors.New("loan is not active")
	ErrNotDefaulted      = errors.New("loan is not defaulted")
	ErrNoCollateral      = errors.New("loan has no collateral reference")
)

type Status string

const (
	StatusActive     Status = "active"
	StatusRepaid     Status = "repaid"
	StatusDefaulted  Status = "defaulted"
	StatusLiquidated Status = "liquidated"
)

type ApplicationStatus string

const (
	ApplicationDraft       ApplicationStatus = "draft"
	ApplicationSubmitted   ApplicationStatus = "submitted"
	ApplicationUnderReview ApplicationStatus = "under_review"
	ApplicationApproved    ApplicationStatus = "approved"
	ApplicationRejected    ApplicationStatus = "rejected"
	ApplicationCanceled    ApplicationStatus = "canceled"
)

// Product holds the immutable-at-use loan terms. Read-only to the
// settlement core; selected when an application is created.
type Product struct {
	ID                 uint64              `gorm:"primaryKey;column:id" json:"-"`
	ProductID          string              `gorm:"size:32;uniqueIndex:ux_products_product_id" json:"product_id"`
	Name               string              `gorm:"size:255" json:"name"`
	LoanType           string              `gorm:"size:50" json:"loan_type"`
	Description        string              `gorm:"type:text" json:"description"`
	MinAmount          decimal.Decimal     `gorm:"type:decimal(18,2)" json:"min_amount"`
	MaxAmount          decimal.Decimal     `gorm:"type:decimal(18,2)" json:"max_amount"`
	MinDurationDays    int                 `gorm:"column:min_duration_days" json:"min_duration_days"`
	MaxDurationDays    int                 `gorm:"column:max_duration_days" json:"max_duration_days"`
	InterestRate       decimal.Decimal     `gorm:"type:decimal(5,2)" json:"interest_rate"`
	CollateralRequired bool                `json:"collateral_required"`
	CollateralType     string              `gorm:"size:50" json:"collateral_type,omitempty"`
	LTVRatio           decimal.NullDecimal `gorm:"type:decimal(5,2);column:ltv_ratio" json:"ltv_ratio,omitempty"`
	MinCreditScore     *int                `json:"min_credit_score,omitempty"`
	IsActive           bool                `gorm:"default:true" json:"is_active"`
	CreatedAt          time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Product) TableName() string { return "loan_products" }

// ValidateAmount checks an application amount against the product bounds.
func (p *Product) ValidateAmount(amount decimal.Decimal) error {
	if !p.IsActive {
		return ErrProductInactive
	}
	if amount.LessThan(p.MinAmount) || amount.GreaterThan(p.MaxAmount) {
		return ErrAmountOutOfRange
	}
	return nil
}

func (p *Product) ValidateDuration(days int) error {
	if days < p.MinDurationDays || days > p.MaxDurationDays {
		return ErrAmountOutOfRange
	}
	return nil
}

type Application struct {
	ID              uint64            `gorm:"primaryKey;column:id" json:"-"`
	ApplicationID   string            `gorm:"size:32;uniqueIndex:ux_applications_application_id" json:"application_id"`
	WalletAddress   string            `gorm:"size:255;index:idx_applications_wallet" json:"wallet_address"`
	ProductID       uint64            `gorm:"column:product_id;index" json:"-"`
	Amount          decimal.Decimal   `gorm:"type:decimal(18,2)" json:"amount"`
	DurationDays    int               `gorm:"column:duration_days" json:"duration_days"`
	Purpose         string            `gorm:"type:text" json:"purpose"`
	Status          ApplicationStatus `gorm:"size:20;default:'draft'" json:"status"`
	RejectionReason string            `gorm:"type:text" json:"rejection_reason,omitempty"`
	ApprovedAt      *time.Time        `json:"approved_at,omitempty"`
	ContractAddress string            `gorm:"size:255" json:"contract_address,omitempty"`
	CreatedAt       time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Application) TableName() string { return "loan_applications" }

// Submit moves a draft application into the review queue.
func (a *Application) Submit() error {
	if a.Status != ApplicationDraft {
		return ErrInvalidTransition
	}
	a.Status = ApplicationSubmitted
	return nil
}

// Approve is valid from submitted or under_review.
func (a *Application) Approve(now time.Time) error {
	if a.Status != ApplicationSubmitted && a.Status != ApplicationUnderReview {
		return ErrInvalidTransition
	}
	a.Status = ApplicationApproved
	a.ApprovedAt = &now
	return nil
}

func (a *Application) Reject(reason string) error {
	if a.Status != ApplicationSubmitted && a.Status != ApplicationUnderReview {
		return ErrInvalidTransition
	}
	a.Status = ApplicationRejected
	a.RejectionReason = reason
	return nil
}

// Loan is the funded obligation. AmountRepaid only moves through
// ApplyPayment / RevertPayment so the total_due ceiling holds.
type Loan struct {
	ID                  uint64              `gorm:"primaryKey;column:id" json:"-"`
	LoanID              string              `gorm:"size:32;uniqueIndex:ux_loans_loan_id" json:"loan_id"`
	ApplicationID       uint64              `gorm:"column:application_id;uniqueIndex:ux_loans_application" json:"-"`
	BorrowerWallet      string              `gorm:"size:255;index:idx_loans_borrower" json:"borrower_wallet"`
	ContractAddress     string              `gorm:"size:255" json:"contract_address"`
	Principal           decimal.Decimal     `gorm:"type:decimal(18,2)" json:"principal"`
	InterestRate        decimal.Decimal     `gorm:"type:decimal(5,2)" json:"interest_rate"`
	TotalDue            decimal.Decimal     `gorm:"type:decimal(18,2)" json:"total_due"`
	AmountRepaid        decimal.Decimal     `gorm:"type:decimal(18,2);default:0" json:"amount_repaid"`
	StartDate           time.Time           `json:"start_date"`
	DueDate             time.Time           `json:"due_date"`
	Status              Status              `gorm:"size:20;default:'active'" json:"status"`
	CollateralAddress   *string             `gorm:"size:255" json:"collateral_address,omitempty"`
	CollateralValue     decimal.NullDecimal `gorm:"type:decimal(18,2)" json:"collateral_value,omitempty"`
	LiquidationAttempts int                 `gorm:"default:0" json:"-"`
	LiquidatedAt        *time.Time          `json:"liquidated_at,omitempty"`
	CreatedAt           time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Loan) TableName() string { return "loans" }

func (l *Loan) Remaining() decimal.Decimal { return l.TotalDue.Sub(l.AmountRepaid) }

// ApplyPayment credits amount against the loan. It refuses payments on a
// terminal loan and payments that would push amount_repaid past total_due.
// Crossing total_due flips the status to repaid.
func (l *Loan) ApplyPayment(amount decimal.Decimal) error {
	if l.Status != StatusActive {
		return ErrLoanNotActive
	}
	if amount.GreaterThan(l.Remaining()) {
		return ErrOverRepayment
	}
	l.AmountRepaid = l.AmountRepaid.Add(amount)
	if l.AmountRepaid.GreaterThanOrEqual(l.TotalDue) {
		l.Status = StatusRepaid
	}
	return nil
}

// RevertPayment is the compensating action for ApplyPayment. It restores
// active status if the reverted payment was the one that crossed total_due.
func (l *Loan) RevertPayment(amount decimal.Decimal) error {
	if l.Status != StatusActive && l.Status != StatusRepaid {
		return ErrInvalidTransition
	}
	if amount.GreaterThan(l.AmountRepaid) {
		return ErrInvalidTransition
	}
	l.AmountRepaid = l.AmountRepaid.Sub(amount)
	if l.Status == StatusRepaid && l.AmountRepaid.LessThan(l.TotalDue) {
		l.Status = StatusActive
	}
	return nil
}

func (l *Loan) MarkDefaulted() error {
	if l.Status != StatusActive {
		return ErrInvalidTransition
	}
	l.Status = StatusDefaulted
	return nil
}

func (l *Loan) MarkLiquidated(now time.Time) error {
	if l.Status != StatusDefaulted {
		return ErrNotDefaulted
	}
	l.Status = StatusLiquidated
	l.LiquidatedAt = &now
	return nil
}

type Repayment struct {
	ID          uint64          `gorm:"primaryKey;column:id" json:"-"`
	RepaymentID string          `gorm:"size:32;uniqueIndex:ux_repayments_repayment_id" json:"repayment_id"`
	LoanID      uint64          `gorm:"column:loan_id;index:idx_repayments_loan" json:"-"`
	Amount      decimal.Decimal `gorm:"type:decimal(18,2)" json:"amount"`
	DueDate     time.Time       `gorm:"index:idx_repayments_due" json:"due_date"`
	PaidAt      *time.Time      `json:"paid_at,omitempty"`
	TxHash      *string         `gorm:"size:255" json:"tx_hash,omitempty"`
	IsLate      bool            `gorm:"default:false" json:"is_late"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Repayment) TableName() string { return "repayments" }

func (r *Repayment) Paid() bool { return r.PaidAt != nil }

// MarkLate is monotonic: once late, a repayment never becomes on-time again.
// Returns true when the flag actually changed.
func (r *Repayment) MarkLate() bool {
	if r.IsLate {
		return false
	}
	r.IsLate = true
	return true
}
