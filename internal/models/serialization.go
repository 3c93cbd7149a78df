package models

import (
	"encoding"
	"encoding/json"
	"slices"
	"strings"
)

// ============================== Interface assertions ==============================

var _ encoding.BinaryMarshaler = &EventTypes{}
var _ encoding.BinaryUnmarshaler = &EventTypes{}
var _ json.Unmarshaler = &EventTypes{}

var _ encoding.BinaryMarshaler = &Headers{}
var _ encoding.BinaryUnmarshaler = &Headers{}

// ============================== EventTypes ==============================

// EventTypes is an endpoint's subscription list. The "*" element subscribes
// to every event type; an empty list subscribes to none.
type EventTypes []string

func (t EventTypes) Matches(eventType string) bool {
	return slices.Contains(t, "*") || slices.Contains(t, eventType)
}

// Validate checks the subscription against the configured type registry.
// An empty registry accepts any subscription.
func (t EventTypes) Validate(knownTypes []string) error {
	if len(knownTypes) == 0 {
		return nil
	}
	for _, eventType := range t {
		if eventType == "*" {
			continue
		}
		if !slices.Contains(knownTypes, eventType) {
			return ErrInvalidEventTypes
		}
	}
	return nil
}

func (t *EventTypes) MarshalBinary() ([]byte, error) {
	return []byte(strings.Join(*t, ",")), nil
}

func (t *EventTypes) UnmarshalBinary(data []byte) error {
	if len(data) == 0 {
		*t = EventTypes{}
		return nil
	}
	*t = strings.Split(string(data), ",")
	return nil
}

func (t *EventTypes) UnmarshalJSON(data []byte) error {
	if string(data) == `"*"` {
		*t = EventTypes{"*"}
		return nil
	}
	var arr []string
	if err := json.Unmarshal(data, &arr); err != nil {
		return ErrInvalidEventTypesFormat
	}
	// The subscription is a set: drop repeats, keep first-seen order.
	deduped := arr[:0]
	for _, eventType := range arr {
		if !slices.Contains(deduped, eventType) {
			deduped = append(deduped, eventType)
		}
	}
	*t = deduped
	return nil
}

// ============================== Headers ==============================

type Headers map[string]string

func (h *Headers) MarshalBinary() ([]byte, error) {
	if h == nil || len(*h) == 0 {
		return nil, nil
	}
	return json.Marshal(h)
}

func (h *Headers) UnmarshalBinary(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, h)
}
