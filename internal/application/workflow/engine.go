package workflow

import (
	"context"

	"github.com/garyjia/escrow-engine/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// CreateInput describes a new escrow transaction
type CreateInput struct {
	BuyerID   int64
	SellerID  int64
	ProductID int64
	Amount    decimal.Decimal
}

// AssessmentInput is a risk assessor result addressed to one transaction
type AssessmentInput struct {
	// Tag of the request this result answers. Empty skips the staleness check.
	Tag            string
	RiskScore      int
	Recommendation string
	Confidence     int
	Reasons        []string
}

// EscrowEngine owns the escrow lifecycle. Every operation authorizes the caller
// before checking lifecycle preconditions.
type EscrowEngine interface {
	Create(ctx context.Context, caller entity.Caller, in CreateInput) (*entity.EscrowTransaction, error)
	RecordAssessment(ctx context.Context, caller entity.Caller, id int64, in AssessmentInput) (*entity.EscrowTransaction, error)
	AdminProcess(ctx context.Context, caller entity.Caller, id int64, action string, note string) (*entity.EscrowTransaction, error)
	Reanalyze(ctx context.Context, caller entity.Caller, id int64) (*entity.EscrowTransaction, error)
	Complete(ctx context.Context, caller entity.Caller, id int64, note string) (*entity.EscrowTransaction, error)
	Dispute(ctx context.Context, caller entity.Caller, id int64, reason string) (*entity.EscrowTransaction, error)

	// FallbackToManualReview resolves an outstanding assessment that failed or
	// timed out. It acts as the system caller.
	FallbackToManualReview(ctx context.Context, id int64, tag string, reason string) (*entity.EscrowTransaction, error)

	Get(ctx context.Context, caller entity.Caller, id int64) (*entity.EscrowTransaction, error)
	History(ctx context.Context, caller entity.Caller, id int64) ([]*entity.TransactionHistory, error)
	GetStats(ctx context.Context, caller entity.Caller) (*entity.Stats, error)
	ListByStatus(ctx context.Context, caller entity.Caller, status string) ([]*entity.EscrowTransaction, error)
	ListByParticipant(ctx context.Context, caller entity.Caller, userID int64) ([]*entity.EscrowTransaction, error)
}
