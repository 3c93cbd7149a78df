package models

import (
	"encoding/json"
	"time"

	"github.com/wayposthq/waypost/internal/idgen"
)

type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

func NewEvent(eventType string, data json.RawMessage, now time.Time) Event {
	return Event{
		ID:        idgen.Event(),
		Type:      eventType,
		Data:      data,
		Timestamp: now,
	}
}

// eventPayload fixes the wire field order and the timestamp format. The
// signature covers these exact bytes, so the serialization must be stable.
type eventPayload struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

// Payload returns the canonical request body for the event: a compact JSON
// object with id, type, data, and an RFC 3339 UTC timestamp.
func (e *Event) Payload() ([]byte, error) {
	return json.Marshal(eventPayload{
		ID:        e.ID,
		Type:      e.Type,
		Data:      e.Data,
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
	})
}

func (e *Event) Clone() Event {
	clone := *e
	clone.Data = append(json.RawMessage(nil), e.Data...)
	return clone
}
