package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Entities that produce mutation events.
const (
	EntityClient      = "client"
	EntityTransaction = "transaction"
)

// Mutation actions.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// MutationMessage announces a successful write against the remote API.
// Consumers refetch what they need; the message carries no record body.
type MutationMessage struct {
	MessageID string    `json:"message_id,omitempty"`
	Entity    string    `json:"entity"`
	Action    string    `json:"action"`
	ID        int64     `json:"id,omitempty"`
	Date      string    `json:"date,omitempty"` // operation date of a transaction, when known
	Timestamp time.Time `json:"timestamp"`
}

// NewMutationMessage stamps a message with a fresh ID and the current time.
func NewMutationMessage(entity, action string, id int64, date string) *MutationMessage {
	return &MutationMessage{
		MessageID: uuid.NewString(),
		Entity:    entity,
		Action:    action,
		ID:        id,
		Date:      date,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *MutationMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// MutationMessageFromJSON decodes a message, rejecting bodies with no entity
// or action.
func MutationMessageFromJSON(data []byte) (*MutationMessage, error) {
	var msg MutationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Entity == "" || msg.Action == "" {
		return nil, errors.New("mutation message missing entity or action")
	}
	return &msg, nil
}
