package lark

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/escrow-engine/internal/application/port"
	"github.com/garyjia/escrow-engine/internal/domain/entity"
)

// Notifier implements port.Notifier by posting cards to the admin chat
type Notifier struct {
	sender MessageSender
	chatID string
	logger *zap.Logger
}

// NewNotifier creates a notifier posting to chatID
func NewNotifier(sender MessageSender, chatID string, logger *zap.Logger) *Notifier {
	return &Notifier{
		sender: sender,
		chatID: chatID,
		logger: logger,
	}
}

// Notify posts n as an interactive card, falling back to plain text if the card is rejected
func (n *Notifier) Notify(ctx context.Context, note *entity.Notification) error {
	if note == nil {
		return errors.New("notification cannot be nil")
	}
	if n.chatID == "" {
		return errors.New("admin chat id is not configured")
	}

	content, err := BuildCard(note)
	if err != nil {
		return err
	}

	messageID, cardErr := n.sender.SendMessage(ctx, ReceiveIDTypeChatID, n.chatID, MsgTypeInteractive, content)
	if cardErr == nil {
		n.logger.Info("Escrow notification sent",
			zap.Int64("transaction_id", note.TransactionID),
			zap.String("severity", note.Severity),
			zap.String("message_id", messageID))
		return nil
	}

	n.logger.Warn("Card message rejected, retrying as text",
		zap.Int64("transaction_id", note.TransactionID),
		zap.Error(cardErr))

	text, err := BuildText(note)
	if err != nil {
		return err
	}
	if _, err := n.sender.SendMessage(ctx, ReceiveIDTypeChatID, n.chatID, MsgTypeText, text); err != nil {
		return fmt.Errorf("failed to send notification for transaction %d: %w", note.TransactionID, err)
	}
	return nil
}

// LogNotifier writes notifications to the log. It stands in when Lark is not configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-only notifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the notification
func (l *LogNotifier) Notify(_ context.Context, note *entity.Notification) error {
	if note == nil {
		return errors.New("notification cannot be nil")
	}

	fields := []zap.Field{
		zap.Int64("transaction_id", note.TransactionID),
		zap.String("title", note.Title),
		zap.String("severity", note.Severity),
		zap.Int64s("recipients", note.Recipients),
	}
	for _, name := range orderedFields(note.Fields) {
		fields = append(fields, zap.String(name, note.Fields[name]))
	}
	l.logger.Info("Escrow notification", fields...)
	return nil
}

var (
	_ port.Notifier = (*Notifier)(nil)
	_ port.Notifier = (*LogNotifier)(nil)
)
