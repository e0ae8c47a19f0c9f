package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/escrow-engine/internal/application/port"
	"github.com/garyjia/escrow-engine/internal/domain/entity"
)

func chatServer(t *testing.T, status int, content string, seen *map[string]interface{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"upstream exploded","type":"server_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-4o-mini",
			"choices": []map[string]interface{}{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": content},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func request() *port.AssessmentRequest {
	return &port.AssessmentRequest{
		Tag: "tag-1",
		Transaction: &entity.EscrowTransaction{
			ID:       7,
			BuyerID:  1,
			SellerID: 2,
			Amount:   decimal.RequireFromString("150.00"),
		},
		Product: &entity.Product{ID: 10, SellerID: 2, Title: "Rare skin", Price: decimal.RequireFromString("100.00")},
		BuyerHistory: []*entity.EscrowTransaction{
			{ID: 3, Status: entity.StatusDisputed},
			{ID: 4, Status: entity.StatusCompleted},
		},
	}
}

func TestRiskAssessor_Assess(t *testing.T) {
	var body map[string]interface{}
	srv := chatServer(t, http.StatusOK,
		`{"risk_score": 64.6, "recommendation": "manual_review", "confidence": 0.8, "reasons": ["price well above listing"]}`,
		&body)

	a := NewRiskAssessor(Config{APIKey: "test", BaseURL: srv.URL, Model: "gpt-4o-mini"}, nil, zap.NewNop())
	got, err := a.Assess(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, 65, got.RiskScore)
	assert.Equal(t, "manual_review", got.Recommendation)
	assert.Equal(t, 80, got.Confidence)
	assert.Equal(t, []string{"price well above listing"}, got.Reasons)

	assert.Equal(t, "gpt-4o-mini", body["model"])
	messages, ok := body["messages"].([]interface{})
	require.True(t, ok)
	require.Len(t, messages, 2)
	user := messages[1].(map[string]interface{})["content"].(string)
	assert.Contains(t, user, "Rare skin")
	assert.Contains(t, user, "deviation from listing: 50.0%")
	assert.Contains(t, user, "Buyer history: 2 prior transactions, 1 disputed, 0 cancelled.")
}

func TestRiskAssessor_AssessExtractsWrappedJSON(t *testing.T) {
	srv := chatServer(t, http.StatusOK,
		"Here you go:\n```json\n{\"risk_score\": 12, \"recommendation\": \"approve\", \"confidence\": 93, \"reasons\": [\"a {quoted} brace\"]}\n```",
		nil)

	a := NewRiskAssessor(Config{APIKey: "test", BaseURL: srv.URL, Model: "m"}, nil, zap.NewNop())
	got, err := a.Assess(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, 12, got.RiskScore)
	assert.Equal(t, 93, got.Confidence)
	assert.Equal(t, []string{"a {quoted} brace"}, got.Reasons)
}

func TestRiskAssessor_AssessFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		content string
	}{
		{name: "upstream error", status: http.StatusInternalServerError},
		{name: "unparseable content", status: http.StatusOK, content: "I cannot help with that."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := chatServer(t, tt.status, tt.content, nil)
			a := NewRiskAssessor(Config{APIKey: "test", BaseURL: srv.URL, Model: "m"}, nil, zap.NewNop())

			got, err := a.Assess(context.Background(), request())
			require.Error(t, err)
			assert.Nil(t, got)
			assert.True(t, errors.Is(err, entity.ErrAssessmentUnavailable))
		})
	}
}

func TestRiskAssessor_RejectsEmptyRequest(t *testing.T) {
	a := NewRiskAssessor(Config{APIKey: "test", Model: "m"}, nil, zap.NewNop())
	_, err := a.Assess(context.Background(), &port.AssessmentRequest{})
	assert.Error(t, err)
}

func TestLoadPrompts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
risk_assessment:
  temperature: 0.3
  system: "custom system"
`), 0o644))

	prompts, err := LoadPrompts(path)
	require.NoError(t, err)
	assert.Equal(t, float32(0.3), prompts.RiskAssessment.Temperature)
	assert.Equal(t, "custom system", prompts.RiskAssessment.System)
	assert.Equal(t, DefaultPrompts().RiskAssessment.UserTemplate, prompts.RiskAssessment.UserTemplate)
	assert.Equal(t, 512, prompts.RiskAssessment.MaxTokens)
}

func TestLoadPrompts_Errors(t *testing.T) {
	_, err := LoadPrompts(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("risk_assessment:\n  user_template: \"{{.Amount\"\n"), 0o644))
	_, err = LoadPrompts(path)
	assert.Error(t, err)
}

func TestExtractJSON(t *testing.T) {
	assert.Equal(t, `{"a":{"b":1}}`, extractJSON(`noise {"a":{"b":1}} trailing }`))
	assert.Equal(t, "", extractJSON("no json here"))
	assert.Equal(t, "", extractJSON(`{"unterminated": 1`))
}
