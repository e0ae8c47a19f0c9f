package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/escrow-engine/internal/config"
	"github.com/garyjia/escrow-engine/internal/domain/entity"
	infraLark "github.com/garyjia/escrow-engine/internal/infrastructure/external/lark"
)

// check-notifier posts a sample escrow alert to the configured Lark admin
// chat, first as an interactive card and then as plain text.
func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config.yaml")
	chatID := flag.String("chat", "", "Override the admin chat id")
	severity := flag.String("severity", entity.SeverityWarning, "Severity of the sample alert (info, warning, critical)")
	dryRun := flag.Bool("dry-run", false, "Print the payloads without sending")
	flag.Parse()

	fmt.Println("=== Lark Notification Check ===")
	fmt.Println()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *chatID != "" {
		cfg.Lark.AdminChatID = *chatID
	}

	larkCfg := infraLark.Config{
		AppID:       cfg.Lark.AppID,
		AppSecret:   cfg.Lark.AppSecret,
		AdminChatID: cfg.Lark.AdminChatID,
		BaseURL:     cfg.Lark.BaseURL,
	}

	note := sampleNotification(*severity)

	fmt.Println("[Step 1] Rendering payloads...")
	cardPayload, err := infraLark.BuildCard(note)
	if err != nil {
		log.Fatalf("Failed to build card: %v", err)
	}
	textPayload, err := infraLark.BuildText(note)
	if err != nil {
		log.Fatalf("Failed to build text: %v", err)
	}
	fmt.Printf("✓ Card payload: %d bytes\n", len(cardPayload))
	fmt.Printf("✓ Text payload: %d bytes\n", len(textPayload))

	if *dryRun {
		fmt.Println("\nCard:")
		fmt.Println(cardPayload)
		fmt.Println("\nText:")
		fmt.Println(textPayload)
		return
	}

	if !larkCfg.Enabled() {
		fmt.Fprintln(os.Stderr, "ERROR: lark.app_id, lark.app_secret and lark.admin_chat_id must all be set")
		os.Exit(1)
	}
	fmt.Printf("\nApp ID: %s\n", mask(larkCfg.AppID))
	fmt.Printf("Admin chat: %s\n", larkCfg.AdminChatID)

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	messenger := infraLark.NewMessageAPI(infraLark.NewSDKClient(larkCfg), logger)

	fmt.Println("\n[Step 2] Sending interactive card...")
	msgID, err := messenger.SendMessage(ctx, infraLark.ReceiveIDTypeChatID, larkCfg.AdminChatID, infraLark.MsgTypeInteractive, cardPayload)
	if err != nil {
		fmt.Printf("✗ Card rejected: %v\n", err)
	} else {
		fmt.Printf("✓ Card sent! message_id: %s\n", msgID)
	}

	fmt.Println("\n[Step 3] Sending plain text...")
	msgID, err = messenger.SendMessage(ctx, infraLark.ReceiveIDTypeChatID, larkCfg.AdminChatID, infraLark.MsgTypeText, textPayload)
	if err != nil {
		fmt.Printf("✗ Text rejected: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Text sent! message_id: %s\n", msgID)

	fmt.Println("\n✅ Lark notification check passed")
}

func sampleNotification(severity string) *entity.Notification {
	return &entity.Notification{
		Title:    "Escrow check: high risk transaction",
		Body:     "This is a test alert sent by check-notifier. No action is required.",
		Severity: severity,
		Fields: map[string]string{
			"Transaction":    "#0",
			"Amount":         "450.00",
			"Status":         entity.StatusPending,
			"AI status":      entity.AIStatusFlagged,
			"Risk score":     "82",
			"Recommendation": entity.RecommendationFlag,
			"Reason":         "Amount far below listing price; new buyer account",
		},
	}
}

func mask(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
