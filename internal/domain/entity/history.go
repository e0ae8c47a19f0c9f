package entity

import "time"

// TransactionHistory is one row of a transaction's audit trail.
type TransactionHistory struct {
	ID               int64     `json:"id"`
	TransactionID    int64     `json:"transaction_id"`
	Action           string    `json:"action"`
	ActorID          int64     `json:"actor_id"`
	ActorRole        string    `json:"actor_role"`
	PreviousStatus   string    `json:"previous_status"`
	NewStatus        string    `json:"new_status"`
	PreviousAIStatus string    `json:"previous_ai_status"`
	NewAIStatus      string    `json:"new_ai_status"`
	Note             string    `json:"note,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// Notification is a message for participants or the admin desk.
type Notification struct {
	TransactionID int64             `json:"transaction_id"`
	Title         string            `json:"title"`
	Body          string            `json:"body"`
	Severity      string            `json:"severity"`
	Recipients    []int64           `json:"recipients,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
	// Actions lists the admin actions the desk may take from the message itself
	Actions []string `json:"actions,omitempty"`
}

// Notification severities
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)
