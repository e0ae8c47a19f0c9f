package entity

// Transaction status values
const (
	StatusPending   = "pending"
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusDisputed  = "disputed"
	StatusCancelled = "cancelled"
)

// AI status values
const (
	AIStatusProcessing   = "processing"
	AIStatusApproved     = "approved"
	AIStatusFlagged      = "flagged"
	AIStatusManualReview = "manual_review"
)

// Admin actions accepted by adminProcess
const (
	AdminActionApprove      = "approve"
	AdminActionReject       = "reject"
	AdminActionManualReview = "manual_review"
)

// Risk assessor recommendation labels
const (
	RecommendationApprove      = "approve"
	RecommendationFlag         = "flag"
	RecommendationReject       = "reject"
	RecommendationManualReview = "manual_review"
	RecommendationReview       = "review"
)

// Product listing status
const (
	ProductStatusActive = "active"
	ProductStatusSold   = "sold"
)

// ValidStatus reports whether s is a known transaction status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusActive, StatusCompleted, StatusDisputed, StatusCancelled:
		return true
	}
	return false
}

// ValidAIStatus reports whether s is a known AI status.
func ValidAIStatus(s string) bool {
	switch s {
	case AIStatusProcessing, AIStatusApproved, AIStatusFlagged, AIStatusManualReview:
		return true
	}
	return false
}
