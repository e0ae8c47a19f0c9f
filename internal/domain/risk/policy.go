package risk

import (
	"fmt"
	"strings"

	"github.com/garyjia/escrow-engine/internal/domain/entity"
)

// Band is a coarse risk tier derived from a 0..100 score
type Band string

const (
	BandLow    Band = "low"
	BandMedium Band = "medium"
	BandHigh   Band = "high"
)

const (
	MinScore = 0
	MaxScore = 100
)

// Policy holds the band boundaries. Scores below LowThreshold are low risk,
// scores at or above HighThreshold are high risk.
type Policy struct {
	LowThreshold  int
	HighThreshold int
}

// DefaultPolicy returns the 30/70 band split
func DefaultPolicy() Policy {
	return Policy{LowThreshold: 30, HighThreshold: 70}
}

// Validate ensures thresholds are within 0..100 and ordered
func (p Policy) Validate() error {
	if p.LowThreshold <= MinScore || p.LowThreshold > MaxScore {
		return fmt.Errorf("low threshold must be between 1 and 100, got %d", p.LowThreshold)
	}
	if p.HighThreshold <= MinScore || p.HighThreshold > MaxScore {
		return fmt.Errorf("high threshold must be between 1 and 100, got %d", p.HighThreshold)
	}
	if p.HighThreshold <= p.LowThreshold {
		return fmt.Errorf("high threshold must be greater than low threshold (high: %d, low: %d)", p.HighThreshold, p.LowThreshold)
	}
	return nil
}

// Band classifies a score. The caller is expected to have validated the range.
func (p Policy) Band(score int) Band {
	switch {
	case score >= p.HighThreshold:
		return BandHigh
	case score >= p.LowThreshold:
		return BandMedium
	default:
		return BandLow
	}
}

// AIStatusFor maps an assessor verdict to an aiStatus. A known recommendation
// label wins; unknown labels fall back to the score band.
func (p Policy) AIStatusFor(recommendation string, score int) string {
	switch normalize(recommendation) {
	case entity.RecommendationApprove:
		return entity.AIStatusApproved
	case entity.RecommendationFlag, entity.RecommendationReject:
		return entity.AIStatusFlagged
	case entity.RecommendationManualReview, entity.RecommendationReview:
		return entity.AIStatusManualReview
	}

	switch p.Band(score) {
	case BandLow:
		return entity.AIStatusApproved
	case BandMedium:
		return entity.AIStatusManualReview
	default:
		return entity.AIStatusFlagged
	}
}

// Conflicts reports whether the recommendation disagrees with the score band.
// Conflicts are shown to admins and never resolved automatically.
func (p Policy) Conflicts(recommendation string, score int) bool {
	band := p.Band(score)
	switch normalize(recommendation) {
	case entity.RecommendationApprove:
		return band == BandHigh
	case entity.RecommendationFlag, entity.RecommendationReject:
		return band == BandLow
	}
	return false
}

// Severity maps a band to a notification severity
func (p Policy) Severity(score int) string {
	switch p.Band(score) {
	case BandHigh:
		return entity.SeverityCritical
	case BandMedium:
		return entity.SeverityWarning
	default:
		return entity.SeverityInfo
	}
}

// ValidateAssessment checks the numeric fields of an assessor result
func ValidateAssessment(score, confidence int) error {
	if score < MinScore || score > MaxScore {
		return fmt.Errorf("%w: risk score %d out of range 0..100", entity.ErrValidation, score)
	}
	if confidence < MinScore || confidence > MaxScore {
		return fmt.Errorf("%w: confidence %d out of range 0..100", entity.ErrValidation, confidence)
	}
	return nil
}

func normalize(recommendation string) string {
	r := strings.ToLower(strings.TrimSpace(recommendation))
	return strings.ReplaceAll(strings.ReplaceAll(r, "-", "_"), " ", "_")
}
