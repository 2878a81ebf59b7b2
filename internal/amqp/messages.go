package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// LedgerChangeMessage announces that the local ledger changed and a push is
// due. It carries no transaction data; consumers read the ledger itself.
type LedgerChangeMessage struct {
	ID        uuid.UUID `json:"id"`
	Operation string    `json:"operation"`
	Serial    string    `json:"serial_number,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewLedgerChangeMessage creates a message with a fresh id.
func NewLedgerChangeMessage(operation, serial string) *LedgerChangeMessage {
	return &LedgerChangeMessage{
		ID:        uuid.New(),
		Operation: operation,
		Serial:    serial,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerChangeMessageFromJSON decodes a message and checks it names an operation.
func LedgerChangeMessageFromJSON(data []byte) (*LedgerChangeMessage, error) {
	var msg LedgerChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Operation == "" {
		return nil, errors.New("ledger change message without operation")
	}
	return &msg, nil
}
