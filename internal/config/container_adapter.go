package config

import (
	"github.com/garyjia/escrow-engine/internal/container"
	"github.com/garyjia/escrow-engine/internal/domain/risk"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			BusyTimeout:     c.Database.BusyTimeout,
			MigrationsDir:   c.Database.MigrationsDir,
		},
		OpenAI: container.OpenAIConfig{
			APIKey:      c.OpenAI.APIKey,
			BaseURL:     c.OpenAI.BaseURL,
			Model:       c.OpenAI.Model,
			Temperature: c.OpenAI.Temperature,
			MaxTokens:   c.OpenAI.MaxTokens,
			PromptsPath: c.OpenAI.PromptsPath,
		},
		Risk: container.RiskConfig{
			Policy: risk.Policy{
				LowThreshold:  c.Risk.LowThreshold,
				HighThreshold: c.Risk.HighThreshold,
			},
			AssessmentTimeout: c.Risk.AssessmentTimeout,
		},
		Lark: container.LarkConfig{
			AppID:       c.Lark.AppID,
			AppSecret:   c.Lark.AppSecret,
			AdminChatID: c.Lark.AdminChatID,
			BaseURL:     c.Lark.BaseURL,
			CardActions: c.Lark.CardActions,
			Admins:      larkAdmins(c.Lark.Admins),
		},
		Redis: container.RedisConfig{
			Addr:           c.Redis.Addr,
			Password:       c.Redis.Password,
			DB:             c.Redis.DB,
			IdempotencyTTL: c.Redis.IdempotencyTTL,
		},
		Worker: container.WorkerConfig{
			SweepInterval:       c.Risk.SweepInterval,
			SweepStaleAfter:     c.Risk.StaleAfter,
			SweepBatchSize:      c.Risk.SweepBatchSize,
			SweepProcessTimeout: c.Risk.AssessmentTimeout,
		},
	}
}

func larkAdmins(admins []LarkAdmin) map[string]int64 {
	if len(admins) == 0 {
		return nil
	}
	out := make(map[string]int64, len(admins))
	for _, a := range admins {
		out[a.OpenID] = a.UserID
	}
	return out
}
