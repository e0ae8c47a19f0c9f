package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/garyjia/escrow-engine/internal/application/port"
	"github.com/garyjia/escrow-engine/internal/config"
	"github.com/garyjia/escrow-engine/internal/domain/entity"
	"github.com/garyjia/escrow-engine/internal/domain/risk"
	"github.com/garyjia/escrow-engine/internal/infrastructure/external/openai"
)

// check-assessor sends one sample escrow transaction to the configured
// OpenAI-compatible endpoint and prints the parsed risk verdict.
func main() {
	configPath := flag.String("config", "", "Path to config.yaml (empty for defaults and environment)")
	apiKey := flag.String("key", "", "OpenAI API key (overrides config and OPENAI_API_KEY)")
	amount := flag.String("amount", "450.00", "Escrow amount of the sample transaction")
	price := flag.String("price", "500.00", "Listing price of the sample product")
	timeout := flag.Duration("timeout", 30*time.Second, "API call timeout")
	verbose := flag.Bool("verbose", false, "Verbose output")
	flag.Parse()

	var logger *zap.Logger
	var err error
	if *verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *apiKey != "" {
		cfg.OpenAI.APIKey = *apiKey
	}
	if cfg.OpenAI.APIKey == "" {
		fmt.Fprintf(os.Stderr, "ERROR: OPENAI_API_KEY not set and no --key flag provided\n")
		fmt.Fprintf(os.Stderr, "Usage: check-assessor --key sk-... [--amount 450.00] [--price 500.00]\n")
		os.Exit(1)
	}

	escrowAmount, err := decimal.NewFromString(*amount)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: invalid --amount: %v\n", err)
		os.Exit(1)
	}
	listPrice, err := decimal.NewFromString(*price)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: invalid --price: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("=== Risk Assessor Check ===")
	fmt.Println("Configuration:")
	fmt.Printf("  Model: %s\n", cfg.OpenAI.Model)
	if cfg.OpenAI.BaseURL != "" {
		fmt.Printf("  Base URL: %s\n", cfg.OpenAI.BaseURL)
	}
	fmt.Printf("  API key length: %d chars\n", len(cfg.OpenAI.APIKey))
	fmt.Printf("  Timeout: %v\n", *timeout)
	fmt.Println()

	prompts := openai.DefaultPrompts()
	if cfg.OpenAI.PromptsPath != "" {
		prompts, err = openai.LoadPrompts(cfg.OpenAI.PromptsPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: Failed to load prompts: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("✓ Prompts loaded from %s\n", cfg.OpenAI.PromptsPath)
	}

	var assessor port.RiskAssessor = openai.NewRiskAssessor(openai.Config{
		APIKey:      cfg.OpenAI.APIKey,
		BaseURL:     cfg.OpenAI.BaseURL,
		Model:       cfg.OpenAI.Model,
		Temperature: cfg.OpenAI.Temperature,
		MaxTokens:   cfg.OpenAI.MaxTokens,
	}, prompts, logger)

	req := sampleRequest(escrowAmount, listPrice)
	fmt.Println("Sample transaction:")
	fmt.Printf("  Product: %s (listed at %s)\n", req.Product.Title, req.Product.Price.StringFixed(2))
	fmt.Printf("  Amount: %s\n", req.Transaction.Amount.StringFixed(2))
	fmt.Printf("  Buyer history: %d, seller history: %d\n", len(req.BuyerHistory), len(req.SellerHistory))
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	result, err := assessor.Assess(ctx, req)
	duration := time.Since(start)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ ERROR: assessment failed after %v\n", duration)
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		fmt.Fprintf(os.Stderr, "Possible causes:\n")
		fmt.Fprintf(os.Stderr, "  1. Invalid or expired API key\n")
		fmt.Fprintf(os.Stderr, "  2. Network connectivity issue or wrong base URL\n")
		fmt.Fprintf(os.Stderr, "  3. Model returned a reply that is not the expected JSON\n")
		os.Exit(1)
	}

	fmt.Printf("✓ Received verdict in %v\n\n", duration)

	policy := risk.Policy{LowThreshold: cfg.Risk.LowThreshold, HighThreshold: cfg.Risk.HighThreshold}
	fmt.Println("=== Assessment Result ===")
	fmt.Printf("Risk score: %d (%s band)\n", result.RiskScore, policy.Band(result.RiskScore))
	fmt.Printf("Recommendation: %s\n", result.Recommendation)
	fmt.Printf("Confidence: %d%%\n", result.Confidence)
	fmt.Printf("Resulting ai_status: %s\n", policy.AIStatusFor(result.Recommendation, result.RiskScore))
	if policy.Conflicts(result.Recommendation, result.RiskScore) {
		fmt.Println("⚠ Recommendation conflicts with the score band")
	}
	if err := risk.ValidateAssessment(result.RiskScore, result.Confidence); err != nil {
		fmt.Printf("⚠ Result would be rejected: %v\n", err)
	}

	fmt.Println("\n=== Full Response (JSON) ===")
	jsonBytes, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(jsonBytes))
}

func sampleRequest(amount, price decimal.Decimal) *port.AssessmentRequest {
	now := time.Now().UTC()
	product := &entity.Product{
		ID:        1,
		SellerID:  2,
		Title:     "Level 80 game account with rare skins",
		Price:     price,
		Status:    entity.ProductStatusActive,
		CreatedAt: now.Add(-72 * time.Hour),
	}
	tx := &entity.EscrowTransaction{
		ID:        1,
		BuyerID:   1,
		SellerID:  2,
		ProductID: product.ID,
		Amount:    amount,
		Status:    entity.StatusPending,
		AIStatus:  entity.AIStatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	completed := &entity.EscrowTransaction{
		ID:        9,
		BuyerID:   3,
		SellerID:  2,
		Amount:    decimal.RequireFromString("120.00"),
		Status:    entity.StatusCompleted,
		CreatedAt: now.Add(-240 * time.Hour),
		UpdatedAt: now.Add(-200 * time.Hour),
	}
	return &port.AssessmentRequest{
		Tag:           "check-assessor",
		Transaction:   tx,
		Product:       product,
		SellerHistory: []*entity.EscrowTransaction{completed},
	}
}
