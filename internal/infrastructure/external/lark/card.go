package lark

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/garyjia/escrow-engine/internal/domain/entity"
)

// Card header colours by severity
var headerTemplates = map[string]string{
	entity.SeverityInfo:     "blue",
	entity.SeverityWarning:  "orange",
	entity.SeverityCritical: "red",
}

// Field order on the card. Unlisted fields follow alphabetically.
var fieldOrder = []string{
	"Transaction",
	"Amount",
	"Status",
	"AI status",
	"Risk score",
	"Risk band",
	"Recommendation",
	"Dispute reason",
	"Reason",
}

type cardText struct {
	Tag     string `json:"tag"`
	Content string `json:"content"`
}

type cardField struct {
	IsShort bool     `json:"is_short"`
	Text    cardText `json:"text"`
}

type cardButton struct {
	Tag   string            `json:"tag"`
	Text  cardText          `json:"text"`
	Type  string            `json:"type"`
	Value map[string]string `json:"value"`
}

type cardElement struct {
	Tag     string       `json:"tag"`
	Text    *cardText    `json:"text,omitempty"`
	Fields  []cardField  `json:"fields,omitempty"`
	Actions []cardButton `json:"actions,omitempty"`
}

// Keys of a button value, echoed back in card.action.trigger callbacks
const (
	ActionValueTransactionID = "transaction_id"
	ActionValueAction        = "action"
)

var buttonStyles = map[string]string{
	entity.AdminActionApprove:      "primary",
	entity.AdminActionReject:       "danger",
	entity.AdminActionManualReview: "default",
}

type card struct {
	Config struct {
		WideScreenMode bool `json:"wide_screen_mode"`
	} `json:"config"`
	Header struct {
		Template string   `json:"template"`
		Title    cardText `json:"title"`
	} `json:"header"`
	Elements []cardElement `json:"elements"`
}

// BuildCard renders a notification as an interactive card payload
func BuildCard(n *entity.Notification) (string, error) {
	var c card
	c.Config.WideScreenMode = true
	c.Header.Template = headerTemplates[n.Severity]
	if c.Header.Template == "" {
		c.Header.Template = "blue"
	}
	c.Header.Title = cardText{Tag: "plain_text", Content: n.Title}

	if n.Body != "" {
		c.Elements = append(c.Elements, cardElement{
			Tag:  "div",
			Text: &cardText{Tag: "lark_md", Content: n.Body},
		})
	}

	if fields := orderedFields(n.Fields); len(fields) > 0 {
		el := cardElement{Tag: "div"}
		for _, name := range fields {
			el.Fields = append(el.Fields, cardField{
				IsShort: name != "Reason" && name != "Dispute reason",
				Text: cardText{
					Tag:     "lark_md",
					Content: fmt.Sprintf("**%s**\n%s", name, n.Fields[name]),
				},
			})
		}
		c.Elements = append(c.Elements, el)
	}

	if len(n.Actions) > 0 && n.TransactionID > 0 {
		el := cardElement{Tag: "action"}
		for _, action := range n.Actions {
			style := buttonStyles[action]
			if style == "" {
				style = "default"
			}
			el.Actions = append(el.Actions, cardButton{
				Tag:  "button",
				Text: cardText{Tag: "plain_text", Content: buttonLabel(action)},
				Type: style,
				Value: map[string]string{
					ActionValueTransactionID: strconv.FormatInt(n.TransactionID, 10),
					ActionValueAction:        action,
				},
			})
		}
		c.Elements = append(c.Elements, el)
	}

	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal card content: %w", err)
	}
	return string(data), nil
}

// BuildText renders a notification as a plain text message payload
func BuildText(n *entity.Notification) (string, error) {
	text := n.Title
	if n.Body != "" {
		text += "\n" + n.Body
	}
	for _, name := range orderedFields(n.Fields) {
		text += fmt.Sprintf("\n%s: %s", name, n.Fields[name])
	}

	data, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", fmt.Errorf("failed to marshal text content: %w", err)
	}
	return string(data), nil
}

func buttonLabel(action string) string {
	label := strings.ReplaceAll(action, "_", " ")
	if label == "" {
		return label
	}
	return strings.ToUpper(label[:1]) + label[1:]
}

func orderedFields(fields map[string]string) []string {
	if len(fields) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, name := range fieldOrder {
		if _, ok := fields[name]; ok {
			out = append(out, name)
			seen[name] = true
		}
	}

	var rest []string
	for name := range fields {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}
