package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/escrow-engine/internal/application/dispatcher"
	"github.com/garyjia/escrow-engine/internal/application/port"
	"github.com/garyjia/escrow-engine/internal/domain/entity"
	"github.com/garyjia/escrow-engine/internal/domain/event"
	"github.com/garyjia/escrow-engine/internal/domain/risk"
	domainwf "github.com/garyjia/escrow-engine/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{}) {}
func (nopLogger) Error(string, ...interface{}) {}

// engineImpl is the concrete implementation of EscrowEngine
type engineImpl struct {
	txRepo      port.TransactionRepository
	historyRepo port.HistoryRepository
	catalog     port.ProductCatalog
	txManager   port.TransactionManager
	dispatcher  dispatcher.Dispatcher
	metrics     port.EngineMetrics
	policy      risk.Policy
	logger      Logger
	now         func() time.Time
	newTag      func() string
}

// EngineOption configures the escrow engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher used after each committed transition
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithMetrics records transitions and risk scores
func WithMetrics(m port.EngineMetrics) EngineOption {
	return func(e *engineImpl) {
		e.metrics = m
	}
}

// WithRiskPolicy overrides the default 30/70 risk bands
func WithRiskPolicy(p risk.Policy) EngineOption {
	return func(e *engineImpl) {
		e.policy = p
	}
}

// WithLogger sets the engine logger
func WithLogger(l Logger) EngineOption {
	return func(e *engineImpl) {
		e.logger = l
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// NewEngine creates a new escrow engine
func NewEngine(
	txRepo port.TransactionRepository,
	historyRepo port.HistoryRepository,
	catalog port.ProductCatalog,
	txManager port.TransactionManager,
	opts ...EngineOption,
) EscrowEngine {
	e := &engineImpl{
		txRepo:      txRepo,
		historyRepo: historyRepo,
		catalog:     catalog,
		txManager:   txManager,
		policy:      risk.DefaultPolicy(),
		logger:      nopLogger{},
		now:         time.Now,
		newTag:      uuid.NewString,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Create opens a pending escrow and queues its first risk assessment
func (e *engineImpl) Create(ctx context.Context, caller entity.Caller, in CreateInput) (*entity.EscrowTransaction, error) {
	if err := Authorize(caller, ActionCreate, Subject{BuyerID: in.BuyerID, SellerID: in.SellerID}); err != nil {
		e.observe(ActionCreate, err)
		return nil, err
	}

	if err := e.validateCreate(ctx, in); err != nil {
		e.observe(ActionCreate, err)
		return nil, err
	}

	now := e.now()
	tx := &entity.EscrowTransaction{
		BuyerID:               in.BuyerID,
		SellerID:              in.SellerID,
		ProductID:             in.ProductID,
		Amount:                in.Amount,
		Status:                entity.StatusPending,
		AIStatus:              entity.AIStatusProcessing,
		RiskScore:             0,
		AssessmentTag:         e.newTag(),
		AssessmentRequestedAt: &now,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := e.txRepo.Create(txCtx, tx); err != nil {
			return fmt.Errorf("failed to create transaction: %w", err)
		}
		return e.historyRepo.Create(txCtx, &entity.TransactionHistory{
			TransactionID: tx.ID,
			Action:        string(ActionCreate),
			ActorID:       caller.ID,
			ActorRole:     string(caller.Role),
			NewStatus:     tx.Status,
			NewAIStatus:   tx.AIStatus,
			Timestamp:     now,
		})
	})
	if err != nil {
		e.observe(ActionCreate, err)
		e.logger.Error("Failed to create escrow transaction", "buyer_id", in.BuyerID, "seller_id", in.SellerID, "error", err)
		return nil, err
	}

	e.observe(ActionCreate, nil)
	e.logger.Info("Escrow transaction created",
		"transaction_id", tx.ID,
		"buyer_id", tx.BuyerID,
		"seller_id", tx.SellerID,
		"amount", tx.Amount.String(),
	)

	created := event.NewEvent(event.TypeTransactionCreated, tx.ID, actorPayload(caller, ActionCreate))
	e.publish(ctx,
		created,
		event.NewEventWithCorrelation(event.TypeAssessmentRequested, tx.ID, map[string]interface{}{
			event.KeyAssessmentTag: tx.AssessmentTag,
		}, created.CorrelationID),
	)

	return tx.Clone(), nil
}

func (e *engineImpl) validateCreate(ctx context.Context, in CreateInput) error {
	switch {
	case in.BuyerID <= 0 || in.SellerID <= 0:
		return fmt.Errorf("%w: buyer and seller are required", entity.ErrValidation)
	case in.BuyerID == in.SellerID:
		return fmt.Errorf("%w: buyer and seller must differ", entity.ErrValidation)
	case !in.Amount.IsPositive():
		return fmt.Errorf("%w: amount must be positive", entity.ErrValidation)
	case in.Amount.Exponent() < -entity.AmountScale && !in.Amount.Equal(in.Amount.Truncate(entity.AmountScale)):
		return fmt.Errorf("%w: amount %s has more than %d decimal places", entity.ErrValidation, in.Amount, entity.AmountScale)
	case in.ProductID <= 0:
		return fmt.Errorf("%w: product is required", entity.ErrValidation)
	}

	product, err := e.catalog.GetByID(ctx, in.ProductID)
	if err != nil {
		return fmt.Errorf("failed to load product %d: %w", in.ProductID, err)
	}
	if product == nil {
		return fmt.Errorf("%w: product %d does not exist", entity.ErrValidation, in.ProductID)
	}
	if product.SellerID != in.SellerID {
		return fmt.Errorf("%w: product %d is not sold by user %d", entity.ErrValidation, in.ProductID, in.SellerID)
	}
	return nil
}

// RecordAssessment stores a risk verdict for the outstanding assessment
func (e *engineImpl) RecordAssessment(ctx context.Context, caller entity.Caller, id int64, in AssessmentInput) (*entity.EscrowTransaction, error) {
	var conflict bool

	return e.transition(ctx, caller, id, transitionSpec{
		action: ActionRecordAssessment,
		check: func(tx *entity.EscrowTransaction) error {
			if in.Tag != "" && in.Tag != tx.AssessmentTag {
				return fmt.Errorf("%w: %w: transaction %d", entity.ErrInvalidState, entity.ErrStaleAssessment, id)
			}
			return risk.ValidateAssessment(in.RiskScore, in.Confidence)
		},
		apply: func(tx *entity.EscrowTransaction, now time.Time) {
			tx.AIStatus = e.policy.AIStatusFor(in.Recommendation, in.RiskScore)
			tx.RiskScore = in.RiskScore
			tx.AIDecision = &entity.AIDecision{
				Recommendation: in.Recommendation,
				Confidence:     in.Confidence,
				Reasons:        append([]string{}, in.Reasons...),
				Timestamp:      now,
			}
			conflict = e.policy.Conflicts(in.Recommendation, in.RiskScore)
		},
		events: func(after *entity.EscrowTransaction, payload map[string]interface{}) []*event.Event {
			if e.metrics != nil {
				e.metrics.ObserveRiskScore(after.RiskScore)
			}
			payload[event.KeyConflict] = conflict
			return []*event.Event{event.NewEvent(event.TypeAssessmentRecorded, after.ID, payload)}
		},
	})
}

// AdminProcess applies an admin verdict: approve, reject or manual_review
func (e *engineImpl) AdminProcess(ctx context.Context, caller entity.Caller, id int64, action string, note string) (*entity.EscrowTransaction, error) {
	var spec transitionSpec
	note = strings.TrimSpace(note)

	stamp := func(tx *entity.EscrowTransaction, now time.Time) {
		by := caller.ID
		tx.ApprovedBy = &by
		tx.ApprovedAt = &now
		tx.AdminNote = note
	}

	switch action {
	case entity.AdminActionApprove:
		spec = transitionSpec{
			action: ActionApprove,
			apply: func(tx *entity.EscrowTransaction, now time.Time) {
				tx.Status = entity.StatusActive
				tx.AIStatus = entity.AIStatusApproved
				stamp(tx, now)
			},
		}
	case entity.AdminActionReject:
		spec = transitionSpec{
			action: ActionReject,
			apply: func(tx *entity.EscrowTransaction, now time.Time) {
				tx.Status = entity.StatusCancelled
				tx.AIStatus = entity.AIStatusFlagged
				stamp(tx, now)
			},
		}
	case entity.AdminActionManualReview:
		spec = transitionSpec{
			action: ActionManualReview,
			apply: func(tx *entity.EscrowTransaction, now time.Time) {
				tx.AIStatus = entity.AIStatusManualReview
				stamp(tx, now)
			},
			events: func(after *entity.EscrowTransaction, payload map[string]interface{}) []*event.Event {
				payload[event.KeyReason] = note
				return []*event.Event{event.NewEvent(event.TypeManualReviewRequired, after.ID, payload)}
			},
		}
	default:
		return nil, fmt.Errorf("%w: unknown admin action %q", entity.ErrValidation, action)
	}

	spec.note = note
	return e.transition(ctx, caller, id, spec)
}

// Reanalyze discards the current verdict and queues a fresh assessment
func (e *engineImpl) Reanalyze(ctx context.Context, caller entity.Caller, id int64) (*entity.EscrowTransaction, error) {
	return e.transition(ctx, caller, id, transitionSpec{
		action: ActionReanalyze,
		apply: func(tx *entity.EscrowTransaction, now time.Time) {
			tx.AIStatus = entity.AIStatusProcessing
			tx.RiskScore = 0
			tx.AIDecision = nil
			tx.AssessmentTag = e.newTag()
			tx.AssessmentRequestedAt = &now
		},
		events: func(after *entity.EscrowTransaction, _ map[string]interface{}) []*event.Event {
			return []*event.Event{event.NewEvent(event.TypeAssessmentRequested, after.ID, map[string]interface{}{
				event.KeyAssessmentTag: after.AssessmentTag,
			})}
		},
	})
}

// Complete releases an active escrow on behalf of its buyer
func (e *engineImpl) Complete(ctx context.Context, caller entity.Caller, id int64, note string) (*entity.EscrowTransaction, error) {
	note = strings.TrimSpace(note)
	return e.transition(ctx, caller, id, transitionSpec{
		action: ActionComplete,
		note:   note,
		apply: func(tx *entity.EscrowTransaction, now time.Time) {
			by := caller.ID
			tx.Status = entity.StatusCompleted
			tx.CompletedBy = &by
			tx.CompletedAt = &now
			tx.CompletionNote = note
		},
	})
}

// Dispute freezes a pending or active escrow at the request of a participant
func (e *engineImpl) Dispute(ctx context.Context, caller entity.Caller, id int64, reason string) (*entity.EscrowTransaction, error) {
	reason = strings.TrimSpace(reason)
	return e.transition(ctx, caller, id, transitionSpec{
		action: ActionDispute,
		note:   reason,
		check: func(*entity.EscrowTransaction) error {
			if reason == "" {
				return fmt.Errorf("%w: dispute reason is required", entity.ErrValidation)
			}
			return nil
		},
		apply: func(tx *entity.EscrowTransaction, now time.Time) {
			by := caller.ID
			tx.Status = entity.StatusDisputed
			tx.DisputedBy = &by
			tx.DisputedAt = &now
			tx.DisputeReason = reason
		},
	})
}

func (e *engineImpl) FallbackToManualReview(ctx context.Context, id int64, tag string, reason string) (*entity.EscrowTransaction, error) {
	if reason == "" {
		reason = entity.ErrAssessmentUnavailable.Error()
	}

	return e.transition(ctx, entity.SystemCaller, id, transitionSpec{
		action: ActionAssessmentTimeout,
		note:   reason,
		check: func(tx *entity.EscrowTransaction) error {
			if tag != "" && tag != tx.AssessmentTag {
				return fmt.Errorf("%w: %w: transaction %d", entity.ErrInvalidState, entity.ErrStaleAssessment, id)
			}
			return nil
		},
		apply: func(tx *entity.EscrowTransaction, now time.Time) {
			tx.AIStatus = entity.AIStatusManualReview
			tx.AIDecision = &entity.AIDecision{
				Recommendation: entity.RecommendationManualReview,
				Reasons:        []string{reason},
				Timestamp:      now,
			}
		},
		events: func(after *entity.EscrowTransaction, payload map[string]interface{}) []*event.Event {
			if e.metrics != nil {
				e.metrics.ObserveFallback(reason)
			}
			payload[event.KeyReason] = reason
			return []*event.Event{event.NewEvent(event.TypeManualReviewRequired, after.ID, payload)}
		},
	})
}

// Get returns one transaction visible to the caller
func (e *engineImpl) Get(ctx context.Context, caller entity.Caller, id int64) (*entity.EscrowTransaction, error) {
	tx, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(caller, ActionView, SubjectOf(tx)); err != nil {
		return nil, err
	}
	return tx, nil
}

// History returns the audit trail of a transaction, oldest first
func (e *engineImpl) History(ctx context.Context, caller entity.Caller, id int64) ([]*entity.TransactionHistory, error) {
	if _, err := e.Get(ctx, caller, id); err != nil {
		return nil, err
	}

	history, err := e.historyRepo.ListByTransactionID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list history for transaction %d: %w", id, err)
	}
	return history, nil
}

// GetStats counts transactions by status
func (e *engineImpl) GetStats(ctx context.Context, caller entity.Caller) (*entity.Stats, error) {
	if err := Authorize(caller, ActionStats, Subject{}); err != nil {
		return nil, err
	}

	stats, err := e.txRepo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count transactions: %w", err)
	}
	return stats, nil
}

// ListByStatus returns transactions with an exact status, newest first
func (e *engineImpl) ListByStatus(ctx context.Context, caller entity.Caller, status string) ([]*entity.EscrowTransaction, error) {
	if err := Authorize(caller, ActionListByStatus, Subject{}); err != nil {
		return nil, err
	}
	if !entity.ValidStatus(status) {
		return nil, fmt.Errorf("%w: unknown status %q", entity.ErrValidation, status)
	}

	list, err := e.txRepo.ListByStatus(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions by status: %w", err)
	}
	return list, nil
}

// ListByParticipant returns transactions where userID is buyer or seller, newest first
func (e *engineImpl) ListByParticipant(ctx context.Context, caller entity.Caller, userID int64) ([]*entity.EscrowTransaction, error) {
	if err := Authorize(caller, ActionListByParticipant, Subject{BuyerID: userID}); err != nil {
		return nil, err
	}

	list, err := e.txRepo.ListByParticipant(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for user %d: %w", userID, err)
	}
	return list, nil
}

// transitionSpec describes one state-changing operation
type transitionSpec struct {
	action Action
	note   string

	// check runs after authorization and the state machine, before apply
	check func(tx *entity.EscrowTransaction) error

	// apply mutates a copy of the loaded record
	apply func(tx *entity.EscrowTransaction, now time.Time)

	// events returns the events published after commit in addition to
	// status_changed. payload is a fresh copy of the actor payload.
	events func(after *entity.EscrowTransaction, payload map[string]interface{}) []*event.Event
}

// transition is the single read-modify-write path for every state change:
// load, authorize, fire the state machine, check, apply, conditional write plus
// history in one DB transaction, then publish events.
func (e *engineImpl) transition(ctx context.Context, caller entity.Caller, id int64, spec transitionSpec) (*entity.EscrowTransaction, error) {
	after, before, err := e.execute(ctx, caller, id, spec)
	e.observe(spec.action, err)
	if err != nil {
		e.logger.Error("Escrow transition failed",
			"transaction_id", id,
			"action", spec.action,
			"actor_id", caller.ID,
			"actor_role", caller.Role,
			"error", err,
		)
		return nil, err
	}

	e.logger.Info("Escrow transition applied",
		"transaction_id", id,
		"action", spec.action,
		"actor_id", caller.ID,
		"status", after.Status,
		"ai_status", after.AIStatus,
	)

	var events []*event.Event
	if before.Status != after.Status {
		payload := actorPayload(caller, spec.action)
		payload[event.KeyPreviousStatus] = before.Status
		payload[event.KeyNewStatus] = after.Status
		events = append(events, event.NewEvent(event.TypeStatusChanged, id, payload))
	}
	if spec.events != nil {
		payload := actorPayload(caller, spec.action)
		payload[event.KeyNewStatus] = after.Status
		payload[event.KeyAIStatus] = after.AIStatus
		payload[event.KeyRiskScore] = after.RiskScore
		events = append(events, spec.events(after, payload)...)
	}
	e.publish(ctx, events...)

	return after.Clone(), nil
}

func (e *engineImpl) execute(ctx context.Context, caller entity.Caller, id int64, spec transitionSpec) (after, before *entity.EscrowTransaction, err error) {
	before, err = e.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	if err := Authorize(caller, spec.action, SubjectOf(before)); err != nil {
		return nil, nil, err
	}

	machine, err := BuildEscrowStateMachine(before)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", entity.ErrInvalidState, err)
	}
	if err := machine.Fire(ctx, triggerFor(spec.action)); err != nil {
		if errors.Is(err, domainwf.ErrInvalidTransition) || errors.Is(err, domainwf.ErrGuardFailed) {
			return nil, nil, fmt.Errorf("%w: cannot %s transaction %d in status %s (ai status %s)",
				entity.ErrInvalidState, spec.action, id, before.Status, before.AIStatus)
		}
		return nil, nil, err
	}

	if spec.check != nil {
		if err := spec.check(before); err != nil {
			return nil, nil, err
		}
	}

	now := e.now()
	after = before.Clone()
	spec.apply(after, now)
	after.UpdatedAt = now

	if after.Status != machine.State().String() {
		return nil, nil, fmt.Errorf("transition %s produced status %s, state machine expects %s", spec.action, after.Status, machine.State())
	}

	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := e.txRepo.Update(txCtx, after, before.Version); err != nil {
			if errors.Is(err, entity.ErrVersionConflict) {
				return fmt.Errorf("%w: %w: transaction %d changed concurrently", entity.ErrInvalidState, err, id)
			}
			return fmt.Errorf("failed to update transaction %d: %w", id, err)
		}

		return e.historyRepo.Create(txCtx, &entity.TransactionHistory{
			TransactionID:    id,
			Action:           triggerFor(spec.action).Action(),
			ActorID:          caller.ID,
			ActorRole:        string(caller.Role),
			PreviousStatus:   before.Status,
			NewStatus:        after.Status,
			PreviousAIStatus: before.AIStatus,
			NewAIStatus:      after.AIStatus,
			Note:             spec.note,
			Timestamp:        now,
		})
	})
	if err != nil {
		return nil, nil, err
	}

	return after, before, nil
}

func (e *engineImpl) load(ctx context.Context, id int64) (*entity.EscrowTransaction, error) {
	tx, err := e.txRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction %d: %w", id, err)
	}
	if tx == nil {
		return nil, fmt.Errorf("%w: transaction %d", entity.ErrNotFound, id)
	}
	return tx, nil
}

func (e *engineImpl) publish(ctx context.Context, events ...*event.Event) {
	if e.dispatcher == nil {
		return
	}
	for _, evt := range events {
		e.dispatcher.DispatchAsync(ctx, evt)
	}
}

func (e *engineImpl) observe(action Action, err error) {
	if e.metrics == nil {
		return
	}
	e.metrics.ObserveTransition(string(action), resultLabel(err))
}

// resultLabel maps an engine error to a low-cardinality metric label
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, entity.ErrNotFound):
		return "not_found"
	case errors.Is(err, entity.ErrForbidden):
		return "forbidden"
	case errors.Is(err, entity.ErrStaleAssessment):
		return "stale"
	case errors.Is(err, entity.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, entity.ErrValidation):
		return "validation"
	default:
		return "error"
	}
}

func actorPayload(caller entity.Caller, action Action) map[string]interface{} {
	return map[string]interface{}{
		event.KeyAction:    string(action),
		event.KeyActorID:   caller.ID,
		event.KeyActorRole: string(caller.Role),
	}
}

var _ EscrowEngine = (*engineImpl)(nil)
