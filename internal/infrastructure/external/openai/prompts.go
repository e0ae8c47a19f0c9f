package openai

import (
	"bytes"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

// PromptSpec is one prompt with its model parameters
type PromptSpec struct {
	Temperature  float32 `yaml:"temperature"`
	MaxTokens    int     `yaml:"max_tokens"`
	System       string  `yaml:"system"`
	UserTemplate string  `yaml:"user_template"`
}

// PromptConfig holds the prompts used by the risk assessor
type PromptConfig struct {
	RiskAssessment PromptSpec `yaml:"risk_assessment"`
}

const defaultSystemPrompt = `You are a fraud analyst for an online marketplace that holds buyer funds in escrow.
Score how risky it is to release funds for the transaction you are given.
Respond with ONLY a JSON object, no markdown.`

const defaultUserTemplate = `Assess this escrow transaction.

Transaction:
- Amount: {{.Amount}}
- Product: {{.ProductTitle}} (listed at {{.ListPrice}})
- Price deviation from listing: {{.PriceDeviation}}%

Buyer history: {{.Buyer.Total}} prior transactions, {{.Buyer.Disputed}} disputed, {{.Buyer.Cancelled}} cancelled.
Seller history: {{.Seller.Total}} prior transactions, {{.Seller.Disputed}} disputed, {{.Seller.Cancelled}} cancelled.

Return JSON with this exact structure:
{
  "risk_score": integer 0-100 (0 = safe, 100 = certain fraud),
  "recommendation": one of "approve", "flag", "reject", "manual_review",
  "confidence": integer 0-100,
  "reasons": [short strings explaining the score]
}`

// DefaultPrompts returns the built-in prompts used when no prompts file is configured
func DefaultPrompts() *PromptConfig {
	return &PromptConfig{
		RiskAssessment: PromptSpec{
			Temperature:  0.1,
			MaxTokens:    512,
			System:       defaultSystemPrompt,
			UserTemplate: defaultUserTemplate,
		},
	}
}

// LoadPrompts loads prompt configuration from a YAML file.
// Fields missing from the file keep their built-in values.
func LoadPrompts(promptsPath string) (*PromptConfig, error) {
	data, err := os.ReadFile(promptsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}

	prompts := DefaultPrompts()
	if err := yaml.Unmarshal(data, prompts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prompts: %w", err)
	}

	if _, err := template.New("check").Parse(prompts.RiskAssessment.UserTemplate); err != nil {
		return nil, fmt.Errorf("invalid risk_assessment.user_template: %w", err)
	}
	return prompts, nil
}

// renderTemplate renders a template with provided data
func renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("prompt").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}
