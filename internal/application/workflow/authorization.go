package workflow

import (
	"fmt"

	"github.com/garyjia/escrow-engine/internal/domain/entity"
)

// Action names an engine operation for authorization and history
type Action string

const (
	ActionCreate            Action = "create"
	ActionRecordAssessment  Action = "record_assessment"
	ActionAssessmentTimeout Action = "assessment_timeout"
	ActionApprove           Action = "approve"
	ActionReject            Action = "reject"
	ActionManualReview      Action = "manual_review"
	ActionReanalyze         Action = "reanalyze"
	ActionComplete          Action = "complete"
	ActionDispute           Action = "dispute"
	ActionView              Action = "view"
	ActionListByParticipant Action = "list_by_participant"
	ActionListByStatus      Action = "list_by_status"
	ActionStats             Action = "stats"
	ActionExport            Action = "export"
)

// Subject is what an action is performed on. For list_by_participant only
// BuyerID is set, holding the queried user.
type Subject struct {
	BuyerID  int64
	SellerID int64
}

// SubjectOf returns the participants of a transaction
func SubjectOf(tx *entity.EscrowTransaction) Subject {
	return Subject{BuyerID: tx.BuyerID, SellerID: tx.SellerID}
}

type rule func(c entity.Caller, s Subject) bool

func roles(allowed ...entity.Role) rule {
	return func(c entity.Caller, _ Subject) bool {
		for _, r := range allowed {
			if c.Role == r {
				return true
			}
		}
		return false
	}
}

func anyOf(rules ...rule) rule {
	return func(c entity.Caller, s Subject) bool {
		for _, r := range rules {
			if r(c, s) {
				return true
			}
		}
		return false
	}
}

func isBuyer(c entity.Caller, s Subject) bool {
	return !c.IsSystem() && c.ID == s.BuyerID
}

func isParticipant(c entity.Caller, s Subject) bool {
	return !c.IsSystem() && (c.ID == s.BuyerID || c.ID == s.SellerID)
}

func admins(c entity.Caller, _ Subject) bool {
	return c.IsAdmin()
}

var privileged = anyOf(admins, roles(entity.RoleSystem))

var authorizationTable = map[Action]rule{
	ActionCreate:            isBuyer,
	ActionRecordAssessment:  privileged,
	ActionAssessmentTimeout: roles(entity.RoleSystem),
	ActionApprove:           admins,
	ActionReject:            admins,
	ActionManualReview:      admins,
	ActionReanalyze:         privileged,
	ActionComplete:          isBuyer,
	ActionDispute:           isParticipant,
	ActionView:              anyOf(isParticipant, admins),
	ActionListByParticipant: anyOf(isBuyer, admins),
	ActionListByStatus:      admins,
	ActionStats:             admins,
	ActionExport:            admins,
}

// Authorize returns entity.ErrForbidden unless the caller may perform action on s
func Authorize(c entity.Caller, action Action, s Subject) error {
	allowed, ok := authorizationTable[action]
	if !ok || !allowed(c, s) {
		return fmt.Errorf("%w: %s (id %d) may not %s", entity.ErrForbidden, c.Role, c.ID, action)
	}
	return nil
}
