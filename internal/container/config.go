// Package container provides dependency injection and lifecycle management
// for the escrow engine following Clean Architecture principles.
package container

import (
	"fmt"
	"time"

	"github.com/garyjia/escrow-engine/internal/domain/risk"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// OpenAI risk assessor configuration
	OpenAI OpenAIConfig

	// Risk banding and assessment timing
	Risk RiskConfig

	// Lark notification configuration
	Lark LarkConfig

	// Redis idempotency store configuration
	Redis RedisConfig

	// Worker configuration
	Worker WorkerConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration

	// BusyTimeout is how long a writer waits on a locked database
	BusyTimeout time.Duration

	// MigrationsDir overrides the embedded migrations when set
	MigrationsDir string
}

// OpenAIConfig holds OpenAI API settings.
// An empty APIKey disables the assessor; every request then falls back to manual review.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	PromptsPath string
}

// RiskConfig holds the band policy and the assessment deadline.
type RiskConfig struct {
	Policy            risk.Policy
	AssessmentTimeout time.Duration
}

// LarkConfig holds Lark API settings. Without credentials alerts are only logged.
type LarkConfig struct {
	AppID       string
	AppSecret   string
	AdminChatID string
	BaseURL     string
	// CardActions starts the long-connection adapter for card button clicks
	CardActions bool
	Admins      map[string]int64 // Lark open_id to admin user id
}

// RedisConfig holds the idempotency store settings. An empty Addr disables idempotency keys.
type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	IdempotencyTTL time.Duration
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	// Stale assessment sweeper settings
	SweepInterval       time.Duration
	SweepStaleAfter     time.Duration
	SweepBatchSize      int
	SweepProcessTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/escrow.db",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			BusyTimeout:     5 * time.Second,
		},
		OpenAI: OpenAIConfig{
			Model:       "gpt-4o-mini",
			Temperature: 0.1,
			MaxTokens:   600,
		},
		Risk: RiskConfig{
			Policy:            risk.DefaultPolicy(),
			AssessmentTimeout: 30 * time.Second,
		},
		Redis: RedisConfig{
			IdempotencyTTL: 24 * time.Hour,
		},
		Worker: WorkerConfig{
			SweepInterval:       time.Minute,
			SweepStaleAfter:     5 * time.Minute,
			SweepBatchSize:      50,
			SweepProcessTimeout: 30 * time.Second,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if err := c.Risk.Policy.Validate(); err != nil {
		return fmt.Errorf("risk policy: %w", err)
	}
	if c.Risk.AssessmentTimeout <= 0 {
		return fmt.Errorf("risk.assessment_timeout must be positive")
	}

	if c.Worker.SweepInterval <= 0 || c.Worker.SweepStaleAfter <= 0 || c.Worker.SweepBatchSize <= 0 {
		return fmt.Errorf("sweeper interval, stale_after and batch size must be positive")
	}

	return nil
}
