// Package websocket provides long-connection adapters for external event sources.
// It translates protocol-specific callbacks into engine operations.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	larkevent "github.com/larksuite/oapi-sdk-go/v3/event"
	larkdispatcher "github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"
	"go.uber.org/zap"

	"github.com/garyjia/escrow-engine/internal/domain/entity"
	infraLark "github.com/garyjia/escrow-engine/internal/infrastructure/external/lark"
)

// EventTypeCardAction is the callback Lark sends when a card button is clicked
const EventTypeCardAction = "card.action.trigger"

// AdminProcessor applies an admin decision to a pending transaction
type AdminProcessor interface {
	AdminProcess(ctx context.Context, caller entity.Caller, id int64, action string, note string) (*entity.EscrowTransaction, error)
}

// LarkAdapterConfig holds configuration for the Lark long-connection adapter.
type LarkAdapterConfig struct {
	AppID     string
	AppSecret string
	// Admins maps Lark open_ids to the admin user ids they act as.
	// Clicks from anyone else are ignored.
	Admins map[string]int64
}

// LarkAdapter listens for card button callbacks over the Lark WebSocket
// connection and applies them as admin decisions.
type LarkAdapter struct {
	appID     string
	appSecret string
	admins    map[string]int64
	engine    AdminProcessor
	logger    *zap.Logger

	wsClient *larkws.Client
	mu       sync.RWMutex
	started  bool
}

// NewLarkAdapter creates a new Lark card action adapter.
func NewLarkAdapter(cfg LarkAdapterConfig, engine AdminProcessor, logger *zap.Logger) *LarkAdapter {
	admins := make(map[string]int64, len(cfg.Admins))
	for openID, id := range cfg.Admins {
		admins[openID] = id
	}
	return &LarkAdapter{
		appID:     cfg.AppID,
		appSecret: cfg.AppSecret,
		admins:    admins,
		engine:    engine,
		logger:    logger,
	}
}

// Start opens the WebSocket connection and blocks until ctx is cancelled or the client fails.
func (a *LarkAdapter) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return fmt.Errorf("adapter already started")
	}

	// Verification token and encrypt key are not used in WebSocket mode
	sdkDispatcher := larkdispatcher.NewEventDispatcher("", "")
	sdkDispatcher.OnCustomizedEvent(EventTypeCardAction, a.HandleCardAction)

	a.wsClient = larkws.NewClient(
		a.appID,
		a.appSecret,
		larkws.WithEventHandler(sdkDispatcher),
	)

	a.started = true
	a.mu.Unlock()

	a.logger.Info("Starting Lark card action adapter",
		zap.String("app_id", a.appID),
		zap.Int("admins", len(a.admins)))

	if err := a.wsClient.Start(ctx); err != nil {
		a.mu.Lock()
		a.started = false
		a.mu.Unlock()
		a.logger.Error("Lark WebSocket client error", zap.Error(err))
		return fmt.Errorf("websocket client error: %w", err)
	}

	return nil
}

// Stop marks the adapter stopped. The SDK client itself ends when the Start context is cancelled.
func (a *LarkAdapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return nil
	}

	a.started = false
	a.logger.Info("Lark card action adapter stopped")
	return nil
}

// IsRunning returns whether the adapter is currently running.
func (a *LarkAdapter) IsRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.started
}

// cardActionEvent is the part of a card.action.trigger callback the adapter reads
type cardActionEvent struct {
	Header struct {
		EventType string `json:"event_type"`
	} `json:"header"`
	Event struct {
		Operator struct {
			OpenID string `json:"open_id"`
		} `json:"operator"`
		Action struct {
			Value map[string]interface{} `json:"value"`
		} `json:"action"`
	} `json:"event"`
}

// errIgnored marks callbacks that are dropped without touching the engine
var errIgnored = errors.New("card action ignored")

// HandleCardAction applies one button click. Unknown operators and malformed
// values are logged and dropped; engine rejections are returned to the SDK.
func (a *LarkAdapter) HandleCardAction(ctx context.Context, evt *larkevent.EventReq) error {
	caller, id, action, err := a.parse(evt.Body)
	if errors.Is(err, errIgnored) {
		a.logger.Warn("Ignoring Lark card action", zap.Error(err))
		return nil
	}
	if err != nil {
		a.logger.Error("Failed to parse Lark card action",
			zap.Error(err),
			zap.Int("body_length", len(evt.Body)))
		return fmt.Errorf("failed to parse card action: %w", err)
	}

	tx, err := a.engine.AdminProcess(ctx, caller, id, action, "via Lark card")
	if err != nil {
		a.logger.Error("Lark card action rejected",
			zap.Int64("transaction_id", id),
			zap.String("action", action),
			zap.Int64("admin_id", caller.ID),
			zap.Error(err))
		return err
	}

	a.logger.Info("Lark card action applied",
		zap.Int64("transaction_id", id),
		zap.String("action", action),
		zap.Int64("admin_id", caller.ID),
		zap.String("status", tx.Status))
	return nil
}

func (a *LarkAdapter) parse(body []byte) (entity.Caller, int64, string, error) {
	var evt cardActionEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return entity.Caller{}, 0, "", err
	}

	openID := evt.Event.Operator.OpenID
	adminID, ok := a.admins[openID]
	if !ok {
		return entity.Caller{}, 0, "", fmt.Errorf("%w: operator %q is not a mapped admin", errIgnored, openID)
	}

	value := evt.Event.Action.Value
	action, _ := value[infraLark.ActionValueAction].(string)
	rawID, _ := value[infraLark.ActionValueTransactionID].(string)
	id, err := strconv.ParseInt(rawID, 10, 64)
	if action == "" || err != nil || id <= 0 {
		return entity.Caller{}, 0, "", fmt.Errorf("%w: button value %v is not an escrow action", errIgnored, value)
	}

	return entity.Caller{ID: adminID, Role: entity.RoleAdmin}, id, action, nil
}
