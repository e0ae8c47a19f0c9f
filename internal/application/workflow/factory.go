package workflow

import (
	"context"
	"fmt"

	"github.com/garyjia/escrow-engine/internal/domain/entity"
	domainwf "github.com/garyjia/escrow-engine/internal/domain/workflow"
)

// BuildEscrowStateMachine positions the escrow lifecycle at the record's status
// with guards reading the record's aiStatus.
func BuildEscrowStateMachine(tx *entity.EscrowTransaction) (domainwf.StateMachine, error) {
	m, err := domainwf.NewEscrowMachine(domainwf.State(tx.Status), domainwf.EscrowGuards{
		AssessmentOutstanding: func(context.Context) bool {
			return tx.AIStatus == entity.AIStatusProcessing
		},
	})
	if err != nil {
		return nil, fmt.Errorf("transaction %d: %w", tx.ID, err)
	}
	return m, nil
}

func triggerFor(action Action) domainwf.Trigger {
	switch action {
	case ActionRecordAssessment:
		return domainwf.TriggerRecordAssessment
	case ActionAssessmentTimeout:
		return domainwf.TriggerAssessmentTimeout
	case ActionApprove:
		return domainwf.TriggerApprove
	case ActionReject:
		return domainwf.TriggerReject
	case ActionManualReview:
		return domainwf.TriggerManualReview
	case ActionReanalyze:
		return domainwf.TriggerReanalyze
	case ActionComplete:
		return domainwf.TriggerComplete
	case ActionDispute:
		return domainwf.TriggerDispute
	}
	return ""
}
