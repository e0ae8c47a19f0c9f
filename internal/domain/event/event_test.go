package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestType_IsValid(t *testing.T) {
	tests := []struct {
		name      string
		eventType Type
		want      bool
	}{
		{"created", TypeTransactionCreated, true},
		{"assessment requested", TypeAssessmentRequested, true},
		{"status changed", TypeStatusChanged, true},
		{"manual review", TypeManualReviewRequired, true},
		{"unknown", Type("transaction.refunded"), false},
		{"empty", Type(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.eventType.IsValid())
		})
	}
}

func TestNewEvent(t *testing.T) {
	e := NewEvent(TypeTransactionCreated, 42, nil)

	require.NotNil(t, e)
	assert.NotEmpty(t, e.ID)
	assert.NotEmpty(t, e.CorrelationID)
	assert.NotEqual(t, e.ID, e.CorrelationID)
	assert.Equal(t, int64(42), e.TransactionID)
	assert.NotNil(t, e.Payload)
	assert.False(t, e.Timestamp.IsZero())
}

func TestNewEventWithCorrelation(t *testing.T) {
	parent := NewEvent(TypeAssessmentRequested, 7, nil)
	child := NewEventWithCorrelation(TypeAssessmentRecorded, 7, nil, parent.CorrelationID)

	assert.Equal(t, parent.CorrelationID, child.CorrelationID)
	assert.NotEqual(t, parent.ID, child.ID)
}

func TestEvent_WithPayloadDoesNotMutate(t *testing.T) {
	original := NewEvent(TypeStatusChanged, 1, map[string]interface{}{KeyNewStatus: "active"})
	updated := original.WithPayload(KeyActorID, int64(9))

	assert.Equal(t, int64(9), updated.GetPayloadInt(KeyActorID))
	assert.Equal(t, "active", updated.GetPayloadString(KeyNewStatus))
	_, exists := original.Payload[KeyActorID]
	assert.False(t, exists)
	assert.Equal(t, original.ID, updated.ID)
}

func TestEvent_PayloadAccessors(t *testing.T) {
	e := NewEvent(TypeAssessmentRecorded, 1, map[string]interface{}{
		KeyRiskScore: float64(85),
		KeyAIStatus:  "flagged",
		KeyConflict:  true,
		"count":      3,
	})

	assert.Equal(t, int64(85), e.GetPayloadInt(KeyRiskScore))
	assert.Equal(t, int64(3), e.GetPayloadInt("count"))
	assert.Equal(t, "flagged", e.GetPayloadString(KeyAIStatus))
	assert.True(t, e.GetPayloadBool(KeyConflict))
	assert.Equal(t, "", e.GetPayloadString(KeyRiskScore))
	assert.Equal(t, int64(0), e.GetPayloadInt("missing"))
	assert.False(t, e.GetPayloadBool("missing"))
}
