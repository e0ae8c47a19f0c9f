package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/escrow-engine/internal/application/dispatcher"
	"github.com/garyjia/escrow-engine/internal/application/port"
	"github.com/garyjia/escrow-engine/internal/application/workflow"
	"github.com/garyjia/escrow-engine/internal/domain/entity"
	"github.com/garyjia/escrow-engine/internal/domain/event"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// AssessmentService runs risk assessments requested by the engine
type AssessmentService interface {
	// Register subscribes the service to assessment requests
	Register(d dispatcher.Dispatcher)

	// Assess scores one transaction and records the verdict, or falls back
	// to manual review when the assessor fails or times out
	Assess(ctx context.Context, transactionID int64, tag string) error
}

type assessmentServiceImpl struct {
	engine   workflow.EscrowEngine
	txRepo   port.TransactionRepository
	catalog  port.ProductCatalog
	assessor port.RiskAssessor
	metrics  port.EngineMetrics
	timeout  time.Duration
	logger   Logger
}

// NewAssessmentService creates a new AssessmentService. assessor and metrics may be nil.
func NewAssessmentService(
	engine workflow.EscrowEngine,
	txRepo port.TransactionRepository,
	catalog port.ProductCatalog,
	assessor port.RiskAssessor,
	metrics port.EngineMetrics,
	timeout time.Duration,
	logger Logger,
) AssessmentService {
	return &assessmentServiceImpl{
		engine:   engine,
		txRepo:   txRepo,
		catalog:  catalog,
		assessor: assessor,
		metrics:  metrics,
		timeout:  timeout,
		logger:   logger,
	}
}

func (s *assessmentServiceImpl) Register(d dispatcher.Dispatcher) {
	d.SubscribeNamed(event.TypeAssessmentRequested, "risk-assessment", func(ctx context.Context, evt *event.Event) error {
		return s.Assess(ctx, evt.TransactionID, evt.GetPayloadString(event.KeyAssessmentTag))
	})
}

func (s *assessmentServiceImpl) Assess(ctx context.Context, transactionID int64, tag string) error {
	tx, err := s.txRepo.GetByID(ctx, transactionID)
	if err != nil {
		s.logger.Error("Failed to load transaction for assessment", "transaction_id", transactionID, "error", err)
		return fmt.Errorf("get transaction: %w", err)
	}
	if tx == nil {
		s.logger.Info("Assessment requested for unknown transaction", "transaction_id", transactionID)
		return nil
	}
	if tx.AIStatus != entity.AIStatusProcessing || tx.AssessmentTag != tag {
		s.logger.Info("Assessment request superseded, skipping",
			"transaction_id", transactionID,
			"ai_status", tx.AIStatus,
		)
		return nil
	}

	if s.assessor == nil {
		return s.fallback(ctx, tx, "risk assessor not configured")
	}

	req, err := s.buildRequest(ctx, tx)
	if err != nil {
		s.logger.Error("Failed to build assessment request", "transaction_id", transactionID, "error", err)
		return s.fallback(ctx, tx, "risk assessment context unavailable")
	}

	assessCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	result, err := s.assessor.Assess(assessCtx, req)
	if s.metrics != nil {
		s.metrics.ObserveAssessmentDuration(time.Since(start))
	}
	if err != nil {
		reason := fmt.Sprintf("%s: %v", entity.ErrAssessmentUnavailable, err)
		switch {
		case errors.Is(assessCtx.Err(), context.DeadlineExceeded):
			reason = "risk assessment timed out"
		case errors.Is(err, entity.ErrAssessmentUnavailable):
			reason = err.Error()
		}
		s.logger.Error("Risk assessment failed", "transaction_id", transactionID, "error", err)
		return s.fallback(ctx, tx, reason)
	}

	_, err = s.engine.RecordAssessment(ctx, entity.SystemCaller, transactionID, workflow.AssessmentInput{
		Tag:            tag,
		RiskScore:      result.RiskScore,
		Recommendation: result.Recommendation,
		Confidence:     result.Confidence,
		Reasons:        result.Reasons,
	})
	switch {
	case err == nil:
		s.logger.Info("Risk assessment recorded",
			"transaction_id", transactionID,
			"risk_score", result.RiskScore,
			"recommendation", result.Recommendation,
		)
		return nil
	case errors.Is(err, entity.ErrValidation):
		s.logger.Error("Risk assessor returned an invalid result", "transaction_id", transactionID, "error", err)
		return s.fallback(ctx, tx, "risk assessor returned an invalid result")
	case errors.Is(err, entity.ErrInvalidState):
		// Reanalyzed, decided or timed out while the assessor was running.
		s.logger.Info("Discarding late risk assessment", "transaction_id", transactionID, "error", err)
		return nil
	default:
		return fmt.Errorf("record assessment: %w", err)
	}
}

func (s *assessmentServiceImpl) fallback(ctx context.Context, tx *entity.EscrowTransaction, reason string) error {
	_, err := s.engine.FallbackToManualReview(ctx, tx.ID, tx.AssessmentTag, reason)
	if err != nil {
		if errors.Is(err, entity.ErrInvalidState) {
			s.logger.Info("Manual review fallback no longer applies", "transaction_id", tx.ID, "error", err)
			return nil
		}
		s.logger.Error("Manual review fallback failed", "transaction_id", tx.ID, "error", err)
		return fmt.Errorf("fallback to manual review: %w", err)
	}

	s.logger.Info("Transaction routed to manual review", "transaction_id", tx.ID, "reason", reason)
	return nil
}

func (s *assessmentServiceImpl) buildRequest(ctx context.Context, tx *entity.EscrowTransaction) (*port.AssessmentRequest, error) {
	product, err := s.catalog.GetByID(ctx, tx.ProductID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}

	buyerHistory, err := s.priorTransactions(ctx, tx.BuyerID, tx.ID)
	if err != nil {
		return nil, err
	}
	sellerHistory, err := s.priorTransactions(ctx, tx.SellerID, tx.ID)
	if err != nil {
		return nil, err
	}

	return &port.AssessmentRequest{
		Tag:           tx.AssessmentTag,
		Transaction:   tx,
		Product:       product,
		BuyerHistory:  buyerHistory,
		SellerHistory: sellerHistory,
	}, nil
}

func (s *assessmentServiceImpl) priorTransactions(ctx context.Context, userID, excludeID int64) ([]*entity.EscrowTransaction, error) {
	list, err := s.txRepo.ListByParticipant(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list transactions of user %d: %w", userID, err)
	}

	prior := make([]*entity.EscrowTransaction, 0, len(list))
	for _, t := range list {
		if t.ID != excludeID {
			prior = append(prior, t)
		}
	}
	return prior, nil
}
