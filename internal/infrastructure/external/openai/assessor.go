package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	openai "github.com/sashabaranov/go-openai"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/garyjia/escrow-engine/internal/application/port"
	"github.com/garyjia/escrow-engine/internal/domain/entity"
)

// Config holds the chat completion settings of the assessor
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
}

// RiskAssessor implements port.RiskAssessor with an OpenAI chat completion
type RiskAssessor struct {
	client      *openai.Client
	prompts     *PromptConfig
	model       string
	temperature float32
	maxTokens   int
	logger      *zap.Logger
}

// NewRiskAssessor creates an assessor. A nil prompts value selects DefaultPrompts.
func NewRiskAssessor(cfg Config, prompts *PromptConfig, logger *zap.Logger) *RiskAssessor {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if prompts == nil {
		prompts = DefaultPrompts()
	}

	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = prompts.RiskAssessment.Temperature
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = prompts.RiskAssessment.MaxTokens
	}

	return &RiskAssessor{
		client:      openai.NewClientWithConfig(clientCfg),
		prompts:     prompts,
		model:       cfg.Model,
		temperature: temperature,
		maxTokens:   maxTokens,
		logger:      logger,
	}
}

// participantSummary condenses a participant's prior transactions for the prompt
type participantSummary struct {
	Total     int
	Disputed  int
	Cancelled int
}

type promptData struct {
	Amount         string
	ProductTitle   string
	ListPrice      string
	PriceDeviation string
	Buyer          participantSummary
	Seller         participantSummary
}

// rawResult tolerates fractional numbers and 0..1 confidences from the model
type rawResult struct {
	RiskScore      float64  `json:"risk_score"`
	Recommendation string   `json:"recommendation"`
	Confidence     float64  `json:"confidence"`
	Reasons        []string `json:"reasons"`
}

// Assess scores the transaction in req
func (a *RiskAssessor) Assess(ctx context.Context, req *port.AssessmentRequest) (*port.AssessmentResult, error) {
	if req == nil || req.Transaction == nil {
		return nil, errors.New("assessment request has no transaction")
	}

	a.logger.Debug("Assessing escrow transaction",
		zap.Int64("transaction_id", req.Transaction.ID),
		zap.String("amount", req.Transaction.Amount.String()))

	prompt, err := renderTemplate(a.prompts.RiskAssessment.UserTemplate, buildPromptData(req))
	if err != nil {
		return nil, err
	}

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.model,
		Temperature: a.temperature,
		MaxTokens:   a.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: a.prompts.RiskAssessment.System,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		a.logger.Error("OpenAI API call failed", zap.Int64("transaction_id", req.Transaction.ID), zap.Error(err))
		return nil, fmt.Errorf("%w: OpenAI API call failed: %w", entity.ErrAssessmentUnavailable, err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no response from OpenAI", entity.ErrAssessmentUnavailable)
	}

	content := resp.Choices[0].Message.Content
	result, err := parseResult(content)
	if err != nil {
		a.logger.Error("Failed to parse OpenAI response",
			zap.Error(err),
			zap.String("content", content))
		return nil, fmt.Errorf("%w: failed to parse response: %w", entity.ErrAssessmentUnavailable, err)
	}

	a.logger.Info("Risk assessment completed",
		zap.Int64("transaction_id", req.Transaction.ID),
		zap.Int("risk_score", result.RiskScore),
		zap.String("recommendation", result.Recommendation),
		zap.Int("confidence", result.Confidence))

	return result, nil
}

func buildPromptData(req *port.AssessmentRequest) promptData {
	tx := req.Transaction
	data := promptData{
		Amount:         tx.Amount.StringFixed(2),
		ProductTitle:   "unknown product",
		ListPrice:      "unknown",
		PriceDeviation: "0",
		Buyer:          summarize(req.BuyerHistory),
		Seller:         summarize(req.SellerHistory),
	}

	if p := req.Product; p != nil {
		data.ProductTitle = p.Title
		data.ListPrice = p.Price.StringFixed(2)
		if p.Price.IsPositive() {
			data.PriceDeviation = tx.Amount.Sub(p.Price).
				Div(p.Price).
				Mul(decimal.NewFromInt(100)).
				StringFixed(1)
		}
	}
	return data
}

func summarize(history []*entity.EscrowTransaction) participantSummary {
	s := participantSummary{Total: len(history)}
	for _, tx := range history {
		switch tx.Status {
		case entity.StatusDisputed:
			s.Disputed++
		case entity.StatusCancelled:
			s.Cancelled++
		}
	}
	return s
}

func parseResult(content string) (*port.AssessmentResult, error) {
	var raw rawResult
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		// Fallback: try to extract JSON from markdown code blocks
		jsonStr := extractJSON(content)
		if jsonStr == "" {
			return nil, err
		}
		if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
			return nil, err
		}
	}

	confidence := raw.Confidence
	if confidence > 0 && confidence < 1 {
		confidence *= 100
	}

	return &port.AssessmentResult{
		RiskScore:      int(math.Round(raw.RiskScore)),
		Recommendation: raw.Recommendation,
		Confidence:     int(math.Round(confidence)),
		Reasons:        raw.Reasons,
	}, nil
}

// extractJSON returns the first balanced JSON object in content
func extractJSON(content string) string {
	start := -1
	for i := 0; i < len(content); i++ {
		if content[i] == '{' {
			start = i
			break
		}
	}
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escapeNext := false
	for i := start; i < len(content); i++ {
		c := content[i]
		if escapeNext {
			escapeNext = false
			continue
		}
		if c == '\\' {
			escapeNext = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}
	return ""
}

var _ port.RiskAssessor = (*RiskAssessor)(nil)
