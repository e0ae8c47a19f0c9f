package lark

import (
	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"go.uber.org/zap"
)

// Config holds Lark client configuration
type Config struct {
	AppID       string
	AppSecret   string
	AdminChatID string // Group chat receiving escrow alerts
	BaseURL     string // Overrides the open platform endpoint, empty for the default
}

// Enabled reports whether credentials and a destination chat are configured
func (c Config) Enabled() bool {
	return c.AppID != "" && c.AppSecret != "" && c.AdminChatID != ""
}

// NewSDKClient creates a Lark SDK client with token caching
func NewSDKClient(cfg Config) *lark.Client {
	opts := []lark.ClientOptionFunc{
		lark.WithLogLevel(larkcore.LogLevelInfo),
		lark.WithEnableTokenCache(true),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, lark.WithOpenBaseUrl(cfg.BaseURL))
	}
	return lark.NewClient(cfg.AppID, cfg.AppSecret, opts...)
}

// NewNotifierFromConfig wires the SDK client, message API and notifier together
func NewNotifierFromConfig(cfg Config, logger *zap.Logger) *Notifier {
	return NewNotifier(NewMessageAPI(NewSDKClient(cfg), logger), cfg.AdminChatID, logger)
}
