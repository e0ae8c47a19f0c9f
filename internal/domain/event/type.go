package event

// Type identifies the type of domain event
type Type string

const (
	TypeTransactionCreated   Type = "transaction.created"
	TypeAssessmentRequested  Type = "transaction.assessment_requested"
	TypeAssessmentRecorded   Type = "transaction.assessment_recorded"
	TypeStatusChanged        Type = "transaction.status_changed"
	TypeManualReviewRequired Type = "transaction.manual_review_requested"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeTransactionCreated,
		TypeAssessmentRequested,
		TypeAssessmentRecorded,
		TypeStatusChanged,
		TypeManualReviewRequired:
		return true
	default:
		return false
	}
}
