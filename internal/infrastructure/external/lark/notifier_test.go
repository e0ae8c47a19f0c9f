package lark

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/escrow-engine/internal/domain/entity"
)

type sentMessage struct {
	receiveIDType string
	receiveID     string
	msgType       string
	content       string
}

type mockSender struct {
	sent    []sentMessage
	failFor map[string]error
}

func (m *mockSender) SendMessage(ctx context.Context, receiveIDType, receiveID, msgType, content string) (string, error) {
	if err := m.failFor[msgType]; err != nil {
		return "", err
	}
	m.sent = append(m.sent, sentMessage{receiveIDType, receiveID, msgType, content})
	return "om_1", nil
}

func notification() *entity.Notification {
	return &entity.Notification{
		TransactionID: 7,
		Title:         "Escrow #7 needs manual review",
		Body:          "Recommendation conflicts with the risk score.",
		Severity:      entity.SeverityCritical,
		Recipients:    []int64{1, 2},
		Fields: map[string]string{
			"Reason":      "approve with score 88",
			"Transaction": "#7",
			"Amount":      "150.00",
			"Zeta":        "last",
		},
	}
}

func TestNotifier_SendsCardToAdminChat(t *testing.T) {
	sender := &mockSender{}
	n := NewNotifier(sender, "oc_admin", zap.NewNop())

	require.NoError(t, n.Notify(context.Background(), notification()))
	require.Len(t, sender.sent, 1)

	msg := sender.sent[0]
	assert.Equal(t, ReceiveIDTypeChatID, msg.receiveIDType)
	assert.Equal(t, "oc_admin", msg.receiveID)
	assert.Equal(t, MsgTypeInteractive, msg.msgType)

	var c card
	require.NoError(t, json.Unmarshal([]byte(msg.content), &c))
	assert.Equal(t, "red", c.Header.Template)
	assert.Equal(t, "Escrow #7 needs manual review", c.Header.Title.Content)
	require.Len(t, c.Elements, 2)
	fields := c.Elements[1].Fields
	require.Len(t, fields, 4)
	assert.Equal(t, "**Transaction**\n#7", fields[0].Text.Content)
	assert.Equal(t, "**Amount**\n150.00", fields[1].Text.Content)
	assert.Equal(t, "**Reason**\napprove with score 88", fields[2].Text.Content)
	assert.False(t, fields[2].IsShort)
	assert.Equal(t, "**Zeta**\nlast", fields[3].Text.Content)
}

func TestBuildCard_ActionButtons(t *testing.T) {
	note := notification()
	note.Actions = []string{entity.AdminActionApprove, entity.AdminActionReject, entity.AdminActionManualReview}

	content, err := BuildCard(note)
	require.NoError(t, err)

	var c card
	require.NoError(t, json.Unmarshal([]byte(content), &c))
	require.Len(t, c.Elements, 3)

	actions := c.Elements[2]
	assert.Equal(t, "action", actions.Tag)
	require.Len(t, actions.Actions, 3)
	assert.Equal(t, "Approve", actions.Actions[0].Text.Content)
	assert.Equal(t, "primary", actions.Actions[0].Type)
	assert.Equal(t, "danger", actions.Actions[1].Type)
	assert.Equal(t, "Manual review", actions.Actions[2].Text.Content)
	assert.Equal(t, map[string]string{
		ActionValueTransactionID: "7",
		ActionValueAction:        entity.AdminActionReject,
	}, actions.Actions[1].Value)

	note.TransactionID = 0
	content, err = BuildCard(note)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(content), &c))
	assert.Len(t, c.Elements, 2, "buttons need a transaction id")
}

func TestNotifier_FallsBackToText(t *testing.T) {
	sender := &mockSender{failFor: map[string]error{MsgTypeInteractive: errors.New("card rejected")}}
	n := NewNotifier(sender, "oc_admin", zap.NewNop())

	require.NoError(t, n.Notify(context.Background(), notification()))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, MsgTypeText, sender.sent[0].msgType)

	var body map[string]string
	require.NoError(t, json.Unmarshal([]byte(sender.sent[0].content), &body))
	assert.Contains(t, body["text"], "Escrow #7 needs manual review")
	assert.Contains(t, body["text"], "Amount: 150.00")
}

func TestNotifier_Errors(t *testing.T) {
	boom := errors.New("lark down")
	sender := &mockSender{failFor: map[string]error{MsgTypeInteractive: boom, MsgTypeText: boom}}

	err := NewNotifier(sender, "oc_admin", zap.NewNop()).Notify(context.Background(), notification())
	assert.ErrorIs(t, err, boom)

	err = NewNotifier(&mockSender{}, "", zap.NewNop()).Notify(context.Background(), notification())
	assert.Error(t, err)

	err = NewNotifier(&mockSender{}, "oc_admin", zap.NewNop()).Notify(context.Background(), nil)
	assert.Error(t, err)
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier(zap.NewNop())
	assert.NoError(t, n.Notify(context.Background(), notification()))
	assert.Error(t, n.Notify(context.Background(), nil))
}

func TestConfig_Enabled(t *testing.T) {
	assert.False(t, Config{}.Enabled())
	assert.False(t, Config{AppID: "a", AppSecret: "b"}.Enabled())
	assert.True(t, Config{AppID: "a", AppSecret: "b", AdminChatID: "oc"}.Enabled())
}
