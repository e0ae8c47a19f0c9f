package service

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/garyjia/escrow-engine/internal/application/dispatcher"
	"github.com/garyjia/escrow-engine/internal/domain/entity"
	"github.com/garyjia/escrow-engine/internal/domain/event"
	"github.com/garyjia/escrow-engine/internal/domain/risk"
)

func notifiedTx() *entity.EscrowTransaction {
	return &entity.EscrowTransaction{
		ID:        5,
		BuyerID:   1,
		SellerID:  2,
		Amount:    decimal.RequireFromString("149.5"),
		Status:    entity.StatusDisputed,
		AIStatus:  entity.AIStatusFlagged,
		RiskScore: 85,
		AIDecision: &entity.AIDecision{
			Recommendation: "approve",
		},
		DisputeReason: "credentials do not work",
	}
}

func TestNotificationService_HandleEvent(t *testing.T) {
	tests := []struct {
		name           string
		evt            *event.Event
		wantSeverity   string
		wantRecipients int
		wantField      string
		wantValue      string
	}{
		{
			name: "status change goes to participants",
			evt: event.NewEvent(event.TypeStatusChanged, 5, map[string]interface{}{
				event.KeyPreviousStatus: "active",
				event.KeyNewStatus:      "disputed",
			}),
			wantSeverity:   entity.SeverityWarning,
			wantRecipients: 2,
			wantField:      "Dispute reason",
			wantValue:      "credentials do not work",
		},
		{
			name: "high risk assessment is critical",
			evt: event.NewEvent(event.TypeAssessmentRecorded, 5, map[string]interface{}{
				event.KeyRiskScore: 85,
			}),
			wantSeverity: entity.SeverityCritical,
			wantField:    "Risk band",
			wantValue:    "high",
		},
		{
			name: "conflicting low risk assessment is critical",
			evt: event.NewEvent(event.TypeAssessmentRecorded, 5, map[string]interface{}{
				event.KeyRiskScore: 10,
				event.KeyConflict:  true,
			}),
			wantSeverity: entity.SeverityCritical,
			wantField:    "Amount",
			wantValue:    "149.50",
		},
		{
			name: "manual review carries reason",
			evt: event.NewEvent(event.TypeManualReviewRequired, 5, map[string]interface{}{
				event.KeyReason: "risk assessment timed out",
			}),
			wantSeverity: entity.SeverityWarning,
			wantField:    "Reason",
			wantValue:    "risk assessment timed out",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notifier := &mockNotifier{}
			repo := &mockTxRepo{getByIDFunc: func(ctx context.Context, id int64) (*entity.EscrowTransaction, error) {
				return notifiedTx(), nil
			}}
			svc := NewNotificationService(repo, notifier, risk.DefaultPolicy(), &mockLogger{})

			if err := svc.HandleEvent(context.Background(), tt.evt); err != nil {
				t.Fatalf("HandleEvent() error = %v", err)
			}
			if len(notifier.sent) != 1 {
				t.Fatalf("sent %d notifications, want 1", len(notifier.sent))
			}
			n := notifier.sent[0]
			if n.Severity != tt.wantSeverity {
				t.Errorf("Severity = %q, want %q", n.Severity, tt.wantSeverity)
			}
			if len(n.Recipients) != tt.wantRecipients {
				t.Errorf("Recipients = %v, want %d", n.Recipients, tt.wantRecipients)
			}
			if got := n.Fields[tt.wantField]; got != tt.wantValue {
				t.Errorf("Fields[%q] = %q, want %q", tt.wantField, got, tt.wantValue)
			}
		})
	}
}

func TestNotificationService_OffersAdminActions(t *testing.T) {
	tests := []struct {
		name     string
		status   string
		aiStatus string
		want     int
	}{
		{"pending flagged", entity.StatusPending, entity.AIStatusFlagged, 2},
		{"pending manual review", entity.StatusPending, entity.AIStatusManualReview, 2},
		{"pending approved", entity.StatusPending, entity.AIStatusApproved, 0},
		{"already disputed", entity.StatusDisputed, entity.AIStatusFlagged, 0},
		{"active manual review", entity.StatusActive, entity.AIStatusManualReview, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := notifiedTx()
			tx.Status = tt.status
			tx.AIStatus = tt.aiStatus

			notifier := &mockNotifier{}
			repo := &mockTxRepo{getByIDFunc: func(ctx context.Context, id int64) (*entity.EscrowTransaction, error) {
				return tx, nil
			}}
			svc := NewNotificationService(repo, notifier, risk.DefaultPolicy(), &mockLogger{})

			evt := event.NewEvent(event.TypeManualReviewRequired, 5, nil)
			if err := svc.HandleEvent(context.Background(), evt); err != nil {
				t.Fatalf("HandleEvent() error = %v", err)
			}
			if got := len(notifier.sent[0].Actions); got != tt.want {
				t.Errorf("Actions = %v, want %d entries", notifier.sent[0].Actions, tt.want)
			}
		})
	}
}

func TestNotificationService_NotifierError(t *testing.T) {
	notifier := &mockNotifier{err: errors.New("lark unavailable")}
	repo := &mockTxRepo{getByIDFunc: func(ctx context.Context, id int64) (*entity.EscrowTransaction, error) {
		return notifiedTx(), nil
	}}
	logger := &mockLogger{}
	svc := NewNotificationService(repo, notifier, risk.DefaultPolicy(), logger)

	err := svc.HandleEvent(context.Background(), event.NewEvent(event.TypeManualReviewRequired, 5, nil))
	if err == nil {
		t.Fatal("expected error from notifier")
	}
	if len(logger.errors) != 1 {
		t.Errorf("logged %d errors, want 1", len(logger.errors))
	}
}

func TestNotificationService_Register(t *testing.T) {
	d := dispatcher.NewDispatcher()
	notifier := &mockNotifier{}
	repo := &mockTxRepo{getByIDFunc: func(ctx context.Context, id int64) (*entity.EscrowTransaction, error) {
		return notifiedTx(), nil
	}}
	NewNotificationService(repo, notifier, risk.DefaultPolicy(), &mockLogger{}).Register(d)

	if got := len(d.ListHandlers(event.TypeStatusChanged)); got != 1 {
		t.Fatalf("status_changed handlers = %d, want 1", got)
	}
	if got := len(d.ListHandlers(event.TypeTransactionCreated)); got != 0 {
		t.Errorf("created handlers = %d, want 0", got)
	}

	if err := d.Dispatch(context.Background(), event.NewEvent(event.TypeStatusChanged, 5, nil)); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if len(notifier.sent) != 1 {
		t.Errorf("sent %d notifications, want 1", len(notifier.sent))
	}
}

func TestReportService_Export(t *testing.T) {
	older := &entity.EscrowTransaction{ID: 1, Status: entity.StatusPending}
	newer := &entity.EscrowTransaction{ID: 2, Status: entity.StatusActive}
	newer.CreatedAt = older.CreatedAt.Add(1)

	var mu sync.Mutex
	var queried []string
	engine := &mockEngine{
		statsFunc: func(ctx context.Context, caller entity.Caller) (*entity.Stats, error) {
			return &entity.Stats{Pending: 1, Active: 1}, nil
		},
		listFunc: func(ctx context.Context, caller entity.Caller, status string) ([]*entity.EscrowTransaction, error) {
			mu.Lock()
			queried = append(queried, status)
			mu.Unlock()
			switch status {
			case entity.StatusPending:
				return []*entity.EscrowTransaction{older}, nil
			case entity.StatusActive:
				return []*entity.EscrowTransaction{newer}, nil
			}
			return nil, nil
		},
	}
	writer := &mockReportWriter{}
	svc := NewReportService(engine, writer, &mockLogger{})
	admin := entity.Caller{ID: 100, Role: entity.RoleAdmin}

	var buf bytes.Buffer
	if err := svc.Export(context.Background(), admin, "", &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if buf.String() != "report" {
		t.Errorf("body = %q", buf.String())
	}
	if len(queried) != 5 {
		t.Errorf("queried statuses = %v, want all five", queried)
	}
	if len(writer.report.Transactions) != 2 || writer.report.Transactions[0].ID != 2 {
		t.Errorf("transactions not ordered newest first: %+v", writer.report.Transactions)
	}

	queried = nil
	if err := svc.Export(context.Background(), admin, entity.StatusPending, &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if len(queried) != 1 {
		t.Errorf("queried statuses = %v, want only pending", queried)
	}

	err := svc.Export(context.Background(), entity.Caller{ID: 1, Role: entity.RoleUser}, "", &buf)
	if !errors.Is(err, entity.ErrForbidden) {
		t.Errorf("Export() by user error = %v, want %v", err, entity.ErrForbidden)
	}
}
