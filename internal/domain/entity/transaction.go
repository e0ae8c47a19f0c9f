package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// AmountScale is the number of decimal places an escrow amount may carry.
const AmountScale = 2

// EscrowTransaction is a buyer/seller escrow held against a marketplace product.
type EscrowTransaction struct {
	ID        int64           `json:"id"`
	BuyerID   int64           `json:"buyer_id"`
	SellerID  int64           `json:"seller_id"`
	ProductID int64           `json:"product_id"`
	Amount    decimal.Decimal `json:"amount"`

	Status     string      `json:"status"`
	AIStatus   string      `json:"ai_status"`
	RiskScore  int         `json:"risk_score"`
	AIDecision *AIDecision `json:"ai_decision,omitempty"`

	// AssessmentTag identifies the outstanding risk assessment request.
	// Results carrying a different tag are stale.
	AssessmentTag         string     `json:"-"`
	AssessmentRequestedAt *time.Time `json:"assessment_requested_at,omitempty"`

	ApprovedBy *int64     `json:"approved_by,omitempty"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	AdminNote  string     `json:"admin_note,omitempty"`

	CompletedBy    *int64     `json:"completed_by,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CompletionNote string     `json:"completion_note,omitempty"`

	DisputedBy    *int64     `json:"disputed_by,omitempty"`
	DisputedAt    *time.Time `json:"disputed_at,omitempty"`
	DisputeReason string     `json:"dispute_reason,omitempty"`

	// Version is bumped on every successful write and guards conditional updates.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AIDecision is the structured record of the last risk assessment.
type AIDecision struct {
	Recommendation string    `json:"recommendation"`
	Confidence     int       `json:"confidence"`
	Reasons        []string  `json:"reasons"`
	Timestamp      time.Time `json:"timestamp"`
}

// Clone returns a deep copy so callers can mutate without aliasing stored state.
func (t *EscrowTransaction) Clone() *EscrowTransaction {
	if t == nil {
		return nil
	}
	c := *t
	if t.AIDecision != nil {
		d := *t.AIDecision
		d.Reasons = append([]string(nil), t.AIDecision.Reasons...)
		c.AIDecision = &d
	}
	c.ApprovedBy = cloneInt64(t.ApprovedBy)
	c.CompletedBy = cloneInt64(t.CompletedBy)
	c.DisputedBy = cloneInt64(t.DisputedBy)
	c.ApprovedAt = cloneTime(t.ApprovedAt)
	c.CompletedAt = cloneTime(t.CompletedAt)
	c.DisputedAt = cloneTime(t.DisputedAt)
	c.AssessmentRequestedAt = cloneTime(t.AssessmentRequestedAt)
	return &c
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	x := *v
	return &x
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	x := *v
	return &x
}

// Product is the subset of a marketplace listing the escrow engine needs.
type Product struct {
	ID        int64           `json:"id"`
	SellerID  int64           `json:"seller_id"`
	Title     string          `json:"title"`
	Price     decimal.Decimal `json:"price"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// Stats counts transactions by status.
type Stats struct {
	Pending   int `json:"pending"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Disputed  int `json:"disputed"`
	Cancelled int `json:"cancelled"`
}
