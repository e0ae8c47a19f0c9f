package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/escrow-engine/internal/application/port"
	"github.com/garyjia/escrow-engine/internal/application/workflow"
	"github.com/garyjia/escrow-engine/internal/domain/entity"
)

func pendingTx() *entity.EscrowTransaction {
	return &entity.EscrowTransaction{
		ID:            7,
		BuyerID:       1,
		SellerID:      2,
		ProductID:     10,
		Status:        entity.StatusPending,
		AIStatus:      entity.AIStatusProcessing,
		AssessmentTag: "tag-a",
	}
}

func TestAssessmentService_Assess(t *testing.T) {
	tests := []struct {
		name         string
		tx           *entity.EscrowTransaction
		tag          string
		assessor     port.RiskAssessor
		recordErr    error
		wantRecorded bool
		wantFallback string
		wantErr      bool
	}{
		{
			name: "records assessor verdict",
			tx:   pendingTx(),
			tag:  "tag-a",
			assessor: &mockAssessor{assessFunc: func(ctx context.Context, req *port.AssessmentRequest) (*port.AssessmentResult, error) {
				return &port.AssessmentResult{RiskScore: 12, Recommendation: "approve", Confidence: 90}, nil
			}},
			wantRecorded: true,
		},
		{
			name: "assessor failure falls back",
			tx:   pendingTx(),
			tag:  "tag-a",
			assessor: &mockAssessor{assessFunc: func(ctx context.Context, req *port.AssessmentRequest) (*port.AssessmentResult, error) {
				return nil, errors.New("rate limited")
			}},
			wantFallback: "risk assessment unavailable: rate limited",
		},
		{
			name: "assessor timeout falls back",
			tx:   pendingTx(),
			tag:  "tag-a",
			assessor: &mockAssessor{assessFunc: func(ctx context.Context, req *port.AssessmentRequest) (*port.AssessmentResult, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			}},
			wantFallback: "risk assessment timed out",
		},
		{
			name:         "missing assessor falls back",
			tx:           pendingTx(),
			tag:          "tag-a",
			wantFallback: "risk assessor not configured",
		},
		{
			name: "invalid verdict falls back",
			tx:   pendingTx(),
			tag:  "tag-a",
			assessor: &mockAssessor{assessFunc: func(ctx context.Context, req *port.AssessmentRequest) (*port.AssessmentResult, error) {
				return &port.AssessmentResult{RiskScore: 400}, nil
			}},
			recordErr:    fmt.Errorf("%w: risk score 400 out of range", entity.ErrValidation),
			wantRecorded: true,
			wantFallback: "risk assessor returned an invalid result",
		},
		{
			name: "late verdict is dropped",
			tx:   pendingTx(),
			tag:  "tag-a",
			assessor: &mockAssessor{assessFunc: func(ctx context.Context, req *port.AssessmentRequest) (*port.AssessmentResult, error) {
				return &port.AssessmentResult{RiskScore: 12}, nil
			}},
			recordErr:    fmt.Errorf("%w: reanalyzed", entity.ErrInvalidState),
			wantRecorded: true,
		},
		{
			name: "superseded tag is skipped",
			tx:   pendingTx(),
			tag:  "tag-old",
			assessor: &mockAssessor{assessFunc: func(ctx context.Context, req *port.AssessmentRequest) (*port.AssessmentResult, error) {
				t.Fatal("assessor should not be called")
				return nil, nil
			}},
		},
		{
			name: "unknown transaction is skipped",
			tag:  "tag-a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var recorded bool
			var fallbackReason string

			engine := &mockEngine{
				recordFunc: func(ctx context.Context, caller entity.Caller, id int64, in workflow.AssessmentInput) (*entity.EscrowTransaction, error) {
					recorded = true
					assert.Equal(t, entity.SystemCaller, caller)
					assert.Equal(t, tt.tag, in.Tag)
					return tt.tx, tt.recordErr
				},
				fallbackFunc: func(ctx context.Context, id int64, tag, reason string) (*entity.EscrowTransaction, error) {
					fallbackReason = reason
					assert.Equal(t, "tag-a", tag)
					return tt.tx, nil
				},
			}
			repo := &mockTxRepo{getByIDFunc: func(ctx context.Context, id int64) (*entity.EscrowTransaction, error) {
				return tt.tx, nil
			}}

			svc := NewAssessmentService(engine, repo, mockCatalog{}, tt.assessor, nil, 20*time.Millisecond, &mockLogger{})
			err := svc.Assess(context.Background(), 7, tt.tag)

			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantRecorded, recorded)
			assert.Equal(t, tt.wantFallback, fallbackReason)
		})
	}
}

func TestAssessmentService_RequestExcludesCurrentTransaction(t *testing.T) {
	tx := pendingTx()
	var got *port.AssessmentRequest
	metrics := &mockMetrics{}

	repo := &mockTxRepo{
		getByIDFunc: func(ctx context.Context, id int64) (*entity.EscrowTransaction, error) { return tx, nil },
		listByParticipantFunc: func(ctx context.Context, userID int64) ([]*entity.EscrowTransaction, error) {
			return []*entity.EscrowTransaction{tx, {ID: 3, BuyerID: userID, SellerID: 9}}, nil
		},
	}
	assessor := &mockAssessor{assessFunc: func(ctx context.Context, req *port.AssessmentRequest) (*port.AssessmentResult, error) {
		got = req
		return &port.AssessmentResult{RiskScore: 5, Recommendation: "approve"}, nil
	}}
	engine := &mockEngine{recordFunc: func(ctx context.Context, caller entity.Caller, id int64, in workflow.AssessmentInput) (*entity.EscrowTransaction, error) {
		return tx, nil
	}}

	svc := NewAssessmentService(engine, repo, mockCatalog{}, assessor, metrics, time.Second, &mockLogger{})
	require.NoError(t, svc.Assess(context.Background(), tx.ID, tx.AssessmentTag))

	require.NotNil(t, got)
	assert.Equal(t, "tag-a", got.Tag)
	require.Len(t, got.BuyerHistory, 1)
	assert.Equal(t, int64(3), got.BuyerHistory[0].ID)
	require.Len(t, got.SellerHistory, 1)
	assert.Equal(t, int64(10), got.Product.ID)
	assert.Len(t, metrics.durations, 1)
}

func TestAssessmentService_FallbackLostRaceIsNotAnError(t *testing.T) {
	engine := &mockEngine{fallbackFunc: func(ctx context.Context, id int64, tag, reason string) (*entity.EscrowTransaction, error) {
		return nil, fmt.Errorf("%w: admin already decided", entity.ErrInvalidState)
	}}
	repo := &mockTxRepo{getByIDFunc: func(ctx context.Context, id int64) (*entity.EscrowTransaction, error) {
		return pendingTx(), nil
	}}

	svc := NewAssessmentService(engine, repo, mockCatalog{}, nil, nil, time.Second, &mockLogger{})
	assert.NoError(t, svc.Assess(context.Background(), 7, "tag-a"))
}
