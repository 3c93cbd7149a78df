package testutil

import (
	"encoding/json"
	"time"

	"github.com/wayposthq/waypost/internal/idgen"
	"github.com/wayposthq/waypost/internal/models"
)

// ============================== Mock Event ==============================

var EventFactory = &mockEventFactory{}

type mockEventFactory struct {
}

func (f *mockEventFactory) Any(opts ...func(*models.Event)) models.Event {
	event := models.Event{
		ID:        idgen.Event(),
		Type:      TestEventTypes[0],
		Data:      json.RawMessage(`{"mykey":"myvalue"}`),
		Timestamp: time.Now(),
	}

	for _, opt := range opts {
		opt(&event)
	}

	return event
}

func (f *mockEventFactory) AnyPointer(opts ...func(*models.Event)) *models.Event {
	event := f.Any(opts...)
	return &event
}

func (f *mockEventFactory) WithID(id string) func(*models.Event) {
	return func(event *models.Event) {
		event.ID = id
	}
}

func (f *mockEventFactory) WithType(eventType string) func(*models.Event) {
	return func(event *models.Event) {
		event.Type = eventType
	}
}

func (f *mockEventFactory) WithData(data json.RawMessage) func(*models.Event) {
	return func(event *models.Event) {
		event.Data = data
	}
}

func (f *mockEventFactory) WithTimestamp(timestamp time.Time) func(*models.Event) {
	return func(event *models.Event) {
		event.Timestamp = timestamp
	}
}
