package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/garyjia/escrow-engine/internal/application/dispatcher"
	"github.com/garyjia/escrow-engine/internal/application/port"
	"github.com/garyjia/escrow-engine/internal/application/workflow"
	"github.com/garyjia/escrow-engine/internal/domain/entity"
	"github.com/garyjia/escrow-engine/internal/domain/event"
	"github.com/garyjia/escrow-engine/internal/domain/risk"
	domainwf "github.com/garyjia/escrow-engine/internal/domain/workflow"
)

// NotificationService turns lifecycle events into notifications
type NotificationService interface {
	// Register subscribes the service to lifecycle events
	Register(d dispatcher.Dispatcher)

	// HandleEvent builds and sends the notification for one event
	HandleEvent(ctx context.Context, evt *event.Event) error
}

type notificationServiceImpl struct {
	txRepo   port.TransactionRepository
	notifier port.Notifier
	policy   risk.Policy
	logger   Logger
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(
	txRepo port.TransactionRepository,
	notifier port.Notifier,
	policy risk.Policy,
	logger Logger,
) NotificationService {
	return &notificationServiceImpl{
		txRepo:   txRepo,
		notifier: notifier,
		policy:   policy,
		logger:   logger,
	}
}

func (s *notificationServiceImpl) Register(d dispatcher.Dispatcher) {
	for _, t := range []event.Type{
		event.TypeStatusChanged,
		event.TypeAssessmentRecorded,
		event.TypeManualReviewRequired,
	} {
		d.SubscribeNamed(t, "notification", s.HandleEvent)
	}
}

func (s *notificationServiceImpl) HandleEvent(ctx context.Context, evt *event.Event) error {
	tx, err := s.txRepo.GetByID(ctx, evt.TransactionID)
	if err != nil {
		s.logger.Error("Failed to get transaction", "error", err, "transaction_id", evt.TransactionID)
		return fmt.Errorf("get transaction: %w", err)
	}
	if tx == nil {
		return nil
	}

	n := s.build(ctx, evt, tx)
	if n == nil {
		return nil
	}

	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.Error("Failed to send notification",
			"error", err,
			"transaction_id", tx.ID,
			"event_type", evt.Type,
		)
		return fmt.Errorf("send notification: %w", err)
	}

	s.logger.Info("Notification sent",
		"transaction_id", tx.ID,
		"event_type", evt.Type,
		"severity", n.Severity,
	)
	return nil
}

func (s *notificationServiceImpl) build(ctx context.Context, evt *event.Event, tx *entity.EscrowTransaction) *entity.Notification {
	fields := map[string]string{
		"Transaction": strconv.FormatInt(tx.ID, 10),
		"Amount":      tx.Amount.StringFixed(2),
		"Status":      tx.Status,
		"AI status":   tx.AIStatus,
	}

	switch evt.Type {
	case event.TypeStatusChanged:
		severity := entity.SeverityInfo
		if tx.Status == entity.StatusDisputed || tx.Status == entity.StatusCancelled {
			severity = entity.SeverityWarning
		}
		if tx.DisputeReason != "" {
			fields["Dispute reason"] = tx.DisputeReason
		}
		return &entity.Notification{
			TransactionID: tx.ID,
			Title:         fmt.Sprintf("Escrow #%d is now %s", tx.ID, tx.Status),
			Body: fmt.Sprintf("Transaction #%d moved from %s to %s.",
				tx.ID, evt.GetPayloadString(event.KeyPreviousStatus), evt.GetPayloadString(event.KeyNewStatus)),
			Severity:   severity,
			Recipients: []int64{tx.BuyerID, tx.SellerID},
			Fields:     fields,
		}

	case event.TypeAssessmentRecorded:
		score := int(evt.GetPayloadInt(event.KeyRiskScore))
		fields["Risk score"] = strconv.Itoa(score)
		fields["Risk band"] = string(s.policy.Band(score))
		severity := s.policy.Severity(score)
		body := fmt.Sprintf("Risk assessment for #%d: score %d, ai status %s.", tx.ID, score, tx.AIStatus)
		if tx.AIDecision != nil {
			fields["Recommendation"] = tx.AIDecision.Recommendation
		}
		if evt.GetPayloadBool(event.KeyConflict) {
			severity = entity.SeverityCritical
			body += " The recommendation disagrees with the score band; admin review required."
		}
		return &entity.Notification{
			TransactionID: tx.ID,
			Title:         fmt.Sprintf("Escrow #%d assessed", tx.ID),
			Body:          body,
			Severity:      severity,
			Fields:        fields,
			Actions:       adminActions(ctx, tx),
		}

	case event.TypeManualReviewRequired:
		fields["Reason"] = evt.GetPayloadString(event.KeyReason)
		return &entity.Notification{
			TransactionID: tx.ID,
			Title:         fmt.Sprintf("Escrow #%d needs manual review", tx.ID),
			Body:          fmt.Sprintf("Transaction #%d was routed to manual review.", tx.ID),
			Severity:      entity.SeverityWarning,
			Fields:        fields,
			Actions:       adminActions(ctx, tx),
		}
	}

	return nil
}

// adminActions offers approve and reject on flagged or manually reviewed
// transactions, limited to what the lifecycle currently permits
func adminActions(ctx context.Context, tx *entity.EscrowTransaction) []string {
	switch tx.AIStatus {
	case entity.AIStatusFlagged, entity.AIStatusManualReview:
	default:
		return nil
	}

	machine, err := workflow.BuildEscrowStateMachine(tx)
	if err != nil {
		return nil
	}

	var actions []string
	for _, trigger := range machine.PermittedTriggers(ctx) {
		switch trigger {
		case domainwf.TriggerApprove, domainwf.TriggerReject:
			actions = append(actions, trigger.Action())
		}
	}
	return actions
}
