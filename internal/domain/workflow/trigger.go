package workflow

// Trigger is an engine action that may move a transaction between states
type Trigger string

const (
	TriggerRecordAssessment  Trigger = "RECORD_ASSESSMENT"
	TriggerAssessmentTimeout Trigger = "ASSESSMENT_TIMEOUT"
	TriggerApprove           Trigger = "APPROVE"
	TriggerReject            Trigger = "REJECT"
	TriggerManualReview      Trigger = "MANUAL_REVIEW"
	TriggerReanalyze         Trigger = "REANALYZE"
	TriggerComplete          Trigger = "COMPLETE"
	TriggerDispute           Trigger = "DISPUTE"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}

// Action returns the lowercase history label for the trigger
func (t Trigger) Action() string {
	switch t {
	case TriggerRecordAssessment:
		return "record_assessment"
	case TriggerAssessmentTimeout:
		return "assessment_timeout"
	case TriggerApprove:
		return "approve"
	case TriggerReject:
		return "reject"
	case TriggerManualReview:
		return "manual_review"
	case TriggerReanalyze:
		return "reanalyze"
	case TriggerComplete:
		return "complete"
	case TriggerDispute:
		return "dispute"
	}
	return string(t)
}
