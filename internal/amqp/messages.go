package amqp

import (
	"encoding/json"
	"time"

	"fintrack/internal/notify"
)

// SettlementMessage announces that an optimistic mutation settled.
type SettlementMessage struct {
	MutationID string    `json:"mutation_id"`
	Operation  string    `json:"operation"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewSettlementMessage converts a notification into its wire form
func NewSettlementMessage(n notify.Notification) *SettlementMessage {
	msg := &SettlementMessage{
		MutationID: n.MutationID,
		Operation:  string(n.Operation),
		Outcome:    string(n.Kind),
		Timestamp:  n.At,
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if n.Err != nil {
		msg.Error = n.Err.Error()
	}
	return msg
}

// RoutingKey is <prefix>.<operation>.<outcome>, e.g. ledger.save_budget.failure
func (m *SettlementMessage) RoutingKey(prefix string) string {
	return prefix + "." + m.Operation + "." + m.Outcome
}

// ToJSON converts the message to JSON bytes
func (m *SettlementMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SettlementMessageFromJSON creates a message from JSON bytes
func SettlementMessageFromJSON(data []byte) (*SettlementMessage, error) {
	var msg SettlementMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
