package port

import (
	"context"
	"io"
	"time"

	"github.com/garyjia/escrow-engine/internal/domain/entity"
)

// AssessmentRequest carries the context a risk assessor scores
type AssessmentRequest struct {
	// Tag must be echoed back when recording the result
	Tag         string
	Transaction *entity.EscrowTransaction
	Product     *entity.Product
	// Prior transactions of each participant, excluding this one
	BuyerHistory  []*entity.EscrowTransaction
	SellerHistory []*entity.EscrowTransaction
}

// AssessmentResult is the assessor's verdict
type AssessmentResult struct {
	RiskScore      int      `json:"risk_score"`
	Recommendation string   `json:"recommendation"`
	Confidence     int      `json:"confidence"`
	Reasons        []string `json:"reasons"`
}

// RiskAssessor scores an escrow transaction. Implementations may be slow and may fail.
type RiskAssessor interface {
	Assess(ctx context.Context, req *AssessmentRequest) (*AssessmentResult, error)
}

// Notifier delivers a notification to the admin desk or participants
type Notifier interface {
	Notify(ctx context.Context, n *entity.Notification) error
}

// Report is the content of an exported transaction report
type Report struct {
	GeneratedAt  time.Time
	GeneratedBy  entity.Caller
	Stats        *entity.Stats
	Transactions []*entity.EscrowTransaction
}

// ReportWriter renders a report to w
type ReportWriter interface {
	Write(ctx context.Context, w io.Writer, r *Report) error
	ContentType() string
	Extension() string
}

// StoredResponse is an HTTP response replayed for a repeated idempotency key
type StoredResponse struct {
	StatusCode int    `json:"status_code"`
	Body       []byte `json:"body"`
}

// IdempotencyStore remembers responses of mutating requests by key
type IdempotencyStore interface {
	// Reserve claims the key. It returns false when the key is already claimed or stored.
	Reserve(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) (*StoredResponse, error)
	Save(ctx context.Context, key string, resp *StoredResponse) error
	Release(ctx context.Context, key string) error
}

// EngineMetrics records lifecycle metrics
type EngineMetrics interface {
	ObserveTransition(action string, result string)
	ObserveRiskScore(score int)
	ObserveFallback(reason string)
	ObserveAssessmentDuration(d time.Duration)
}
