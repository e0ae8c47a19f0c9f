package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Risk     RiskConfig     `mapstructure:"risk"`
	Lark     LarkConfig     `mapstructure:"lark"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Mode         string        `mapstructure:"mode"` // gin mode: debug, release, test
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
	MigrationsDir   string        `mapstructure:"migrations_dir"` // empty runs the embedded migrations
}

// OpenAIConfig holds OpenAI API configuration
type OpenAIConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	PromptsPath string  `mapstructure:"prompts_path"`
}

// RiskConfig holds risk banding and assessment timing
type RiskConfig struct {
	LowThreshold      int           `mapstructure:"low_threshold"`
	HighThreshold     int           `mapstructure:"high_threshold"`
	AssessmentTimeout time.Duration `mapstructure:"assessment_timeout"`
	StaleAfter        time.Duration `mapstructure:"stale_after"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
	SweepBatchSize    int           `mapstructure:"sweep_batch_size"`
}

// LarkConfig holds Lark API configuration
type LarkConfig struct {
	AppID       string `mapstructure:"app_id"`
	AppSecret   string `mapstructure:"app_secret"`
	AdminChatID string `mapstructure:"admin_chat_id"`
	BaseURL     string `mapstructure:"base_url"`
	// CardActions accepts approve/reject button clicks over the Lark long connection
	CardActions bool        `mapstructure:"card_actions"`
	Admins      []LarkAdmin `mapstructure:"admins"`
}

// LarkAdmin maps a Lark user to the platform admin id their card clicks act as
type LarkAdmin struct {
	OpenID string `mapstructure:"open_id"`
	UserID int64  `mapstructure:"user_id"`
}

// RedisConfig holds the idempotency store connection
type RedisConfig struct {
	Addr           string        `mapstructure:"addr"`
	Password       string        `mapstructure:"password"`
	DB             int           `mapstructure:"db"`
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load reads .env (if present), then the YAML file at configPath, then the environment.
// An empty configPath uses defaults and environment only.
func Load(configPath string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("ESCROW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.mode", "release")

	// Database defaults
	v.SetDefault("database.path", "data/escrow.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.busy_timeout", 5*time.Second)
	v.SetDefault("database.migrations_dir", "")

	// OpenAI defaults
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.temperature", 0.1)
	v.SetDefault("openai.max_tokens", 600)
	v.SetDefault("openai.prompts_path", "")

	// Risk defaults
	v.SetDefault("risk.low_threshold", 30)
	v.SetDefault("risk.high_threshold", 70)
	v.SetDefault("risk.assessment_timeout", 30*time.Second)
	v.SetDefault("risk.stale_after", 5*time.Minute)
	v.SetDefault("risk.sweep_interval", time.Minute)
	v.SetDefault("risk.sweep_batch_size", 50)

	// Lark defaults
	v.SetDefault("lark.app_id", "")
	v.SetDefault("lark.app_secret", "")
	v.SetDefault("lark.admin_chat_id", "")
	v.SetDefault("lark.base_url", "")
	v.SetDefault("lark.card_actions", false)

	// Redis defaults
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.idempotency_ttl", 24*time.Hour)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds the conventional names of sensitive credentials
func bindEnvVars(v *viper.Viper) error {
	bindings := map[string][]string{
		"openai.api_key":  {"ESCROW_OPENAI_API_KEY", "OPENAI_API_KEY"},
		"openai.base_url": {"ESCROW_OPENAI_BASE_URL", "OPENAI_BASE_URL"},
		"lark.app_id":     {"ESCROW_LARK_APP_ID", "LARK_APP_ID"},
		"lark.app_secret": {"ESCROW_LARK_APP_SECRET", "LARK_APP_SECRET"},
		"redis.addr":      {"ESCROW_REDIS_ADDR", "REDIS_ADDR"},
		"redis.password":  {"ESCROW_REDIS_PASSWORD", "REDIS_PASSWORD"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Risk.LowThreshold <= 0 || c.Risk.HighThreshold > 100 || c.Risk.LowThreshold >= c.Risk.HighThreshold {
		return fmt.Errorf("risk thresholds must satisfy 0 < low < high <= 100 (low: %d, high: %d)",
			c.Risk.LowThreshold, c.Risk.HighThreshold)
	}
	if c.Risk.AssessmentTimeout <= 0 {
		return fmt.Errorf("risk.assessment_timeout must be positive")
	}
	if c.Risk.StaleAfter <= 0 {
		return fmt.Errorf("risk.stale_after must be positive")
	}
	if c.Risk.SweepInterval <= 0 {
		return fmt.Errorf("risk.sweep_interval must be positive")
	}
	if c.Risk.SweepBatchSize <= 0 {
		return fmt.Errorf("risk.sweep_batch_size must be positive")
	}

	if c.Redis.Addr != "" && c.Redis.IdempotencyTTL <= 0 {
		return fmt.Errorf("redis.idempotency_ttl must be positive")
	}

	// Lark is optional, but a partial configuration is a mistake
	larkSet := 0
	for _, s := range []string{c.Lark.AppID, c.Lark.AppSecret, c.Lark.AdminChatID} {
		if s != "" {
			larkSet++
		}
	}
	if larkSet != 0 && larkSet != 3 {
		return fmt.Errorf("lark.app_id, lark.app_secret and lark.admin_chat_id must be set together")
	}
	if c.Lark.CardActions {
		if larkSet == 0 {
			return fmt.Errorf("lark.card_actions requires lark credentials")
		}
		if len(c.Lark.Admins) == 0 {
			return fmt.Errorf("lark.card_actions requires at least one entry in lark.admins")
		}
		for i, admin := range c.Lark.Admins {
			if admin.OpenID == "" || admin.UserID <= 0 {
				return fmt.Errorf("lark.admins[%d] needs open_id and a positive user_id", i)
			}
		}
	}

	return nil
}
