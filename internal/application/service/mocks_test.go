package service

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/garyjia/escrow-engine/internal/application/port"
	"github.com/garyjia/escrow-engine/internal/application/workflow"
	"github.com/garyjia/escrow-engine/internal/domain/entity"
)

type mockLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (m *mockLogger) Info(msg string, _ ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, msg)
}

func (m *mockLogger) Error(msg string, _ ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

type mockEngine struct {
	workflow.EscrowEngine

	recordFunc   func(ctx context.Context, caller entity.Caller, id int64, in workflow.AssessmentInput) (*entity.EscrowTransaction, error)
	fallbackFunc func(ctx context.Context, id int64, tag, reason string) (*entity.EscrowTransaction, error)
	statsFunc    func(ctx context.Context, caller entity.Caller) (*entity.Stats, error)
	listFunc     func(ctx context.Context, caller entity.Caller, status string) ([]*entity.EscrowTransaction, error)
}

func (m *mockEngine) RecordAssessment(ctx context.Context, caller entity.Caller, id int64, in workflow.AssessmentInput) (*entity.EscrowTransaction, error) {
	return m.recordFunc(ctx, caller, id, in)
}

func (m *mockEngine) FallbackToManualReview(ctx context.Context, id int64, tag, reason string) (*entity.EscrowTransaction, error) {
	return m.fallbackFunc(ctx, id, tag, reason)
}

func (m *mockEngine) GetStats(ctx context.Context, caller entity.Caller) (*entity.Stats, error) {
	return m.statsFunc(ctx, caller)
}

func (m *mockEngine) ListByStatus(ctx context.Context, caller entity.Caller, status string) ([]*entity.EscrowTransaction, error) {
	return m.listFunc(ctx, caller, status)
}

type mockTxRepo struct {
	port.TransactionRepository

	getByIDFunc           func(ctx context.Context, id int64) (*entity.EscrowTransaction, error)
	listByParticipantFunc func(ctx context.Context, userID int64) ([]*entity.EscrowTransaction, error)
}

func (m *mockTxRepo) GetByID(ctx context.Context, id int64) (*entity.EscrowTransaction, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockTxRepo) ListByParticipant(ctx context.Context, userID int64) ([]*entity.EscrowTransaction, error) {
	if m.listByParticipantFunc != nil {
		return m.listByParticipantFunc(ctx, userID)
	}
	return nil, nil
}

type mockCatalog struct{}

func (mockCatalog) GetByID(ctx context.Context, id int64) (*entity.Product, error) {
	return &entity.Product{ID: id, SellerID: 2, Title: "Account"}, nil
}

type mockAssessor struct {
	assessFunc func(ctx context.Context, req *port.AssessmentRequest) (*port.AssessmentResult, error)
}

func (m *mockAssessor) Assess(ctx context.Context, req *port.AssessmentRequest) (*port.AssessmentResult, error) {
	return m.assessFunc(ctx, req)
}

type mockNotifier struct {
	mu   sync.Mutex
	sent []*entity.Notification
	err  error
}

func (m *mockNotifier) Notify(ctx context.Context, n *entity.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, n)
	return nil
}

type mockReportWriter struct {
	report *port.Report
}

func (m *mockReportWriter) Write(ctx context.Context, w io.Writer, r *port.Report) error {
	m.report = r
	_, err := w.Write([]byte("report"))
	return err
}

func (m *mockReportWriter) ContentType() string { return "application/test" }

func (m *mockReportWriter) Extension() string { return "test" }

type mockMetrics struct {
	durations []time.Duration
}

func (m *mockMetrics) ObserveTransition(string, string) {}
func (m *mockMetrics) ObserveRiskScore(int) {}
func (m *mockMetrics) ObserveFallback(string) {}
func (m *mockMetrics) ObserveAssessmentDuration(d time.Duration) {
	m.durations = append(m.durations, d)
}
