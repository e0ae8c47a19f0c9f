package workflow

import "context"

// EscrowGuards supplies the record-dependent conditions of the escrow lifecycle.
// A nil AssessmentOutstanding means no assessment is pending.
type EscrowGuards struct {
	// AssessmentOutstanding is true while aiStatus is processing
	AssessmentOutstanding GuardFunc
}

// NewEscrowMachine builds the escrow lifecycle positioned at status.
//
//	pending  -RECORD_ASSESSMENT/ASSESSMENT_TIMEOUT-> pending  (assessment outstanding)
//	pending  -APPROVE->       active  (assessment settled)
//	pending  -REJECT->        cancelled
//	pending  -MANUAL_REVIEW-> pending
//	pending  -REANALYZE->     pending
//	pending  -DISPUTE->       disputed
//	active   -MANUAL_REVIEW-> active
//	active   -COMPLETE->      completed
//	active   -DISPUTE->       disputed
func NewEscrowMachine(status State, g EscrowGuards) (StateMachine, error) {
	outstanding := g.AssessmentOutstanding
	if outstanding == nil {
		outstanding = func(_ context.Context) bool { return false }
	}
	settled := func(ctx context.Context) bool { return !outstanding(ctx) }

	b := NewBuilder()
	b.Configure(StatePending).
		PermitIf(TriggerRecordAssessment, StatePending, outstanding).
		PermitIf(TriggerAssessmentTimeout, StatePending, outstanding).
		PermitIf(TriggerApprove, StateActive, settled).
		Permit(TriggerReject, StateCancelled).
		Permit(TriggerManualReview, StatePending).
		Permit(TriggerReanalyze, StatePending).
		Permit(TriggerDispute, StateDisputed)

	b.Configure(StateActive).
		Permit(TriggerManualReview, StateActive).
		Permit(TriggerComplete, StateCompleted).
		Permit(TriggerDispute, StateDisputed)

	return b.Build(status)
}
