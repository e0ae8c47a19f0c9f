package entity

import "errors"

var (
	// ErrNotFound is returned when a transaction id is unknown
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the caller lacks the role or relationship for an action
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidState is returned when the current status/aiStatus does not allow the action
	ErrInvalidState = errors.New("invalid state")

	// ErrValidation is returned for malformed input
	ErrValidation = errors.New("validation failed")

	// ErrAssessmentUnavailable is returned when the risk assessor failed or timed out
	ErrAssessmentUnavailable = errors.New("risk assessment unavailable")

	// ErrStaleAssessment is returned when an assessment result no longer matches the outstanding request
	ErrStaleAssessment = errors.New("stale risk assessment")

	// ErrVersionConflict is returned by persistence when a conditional write loses a race
	ErrVersionConflict = errors.New("version conflict")
)
