package models

import (
	"encoding/json"

	"github.com/wayposthq/waypost/internal/mqs"
)

type TaskTelemetry struct {
	TraceID string `json:"trace_id"`
	SpanID  string `json:"span_id"`
}

// AttemptTask represents one queued delivery attempt. The payload carries only
// the delivery ID; the worker reloads state from the store so the queue never
// holds stale copies.
type AttemptTask struct {
	DeliveryID string         `json:"delivery_id"`
	Manual     bool           `json:"manual,omitempty"`
	Telemetry  *TaskTelemetry `json:"telemetry,omitempty"`
}

var _ mqs.IncomingMessage = &AttemptTask{}

func (t *AttemptTask) FromMessage(msg *mqs.Message) error {
	return json.Unmarshal(msg.Body, t)
}

func (t *AttemptTask) ToMessage() (*mqs.Message, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return &mqs.Message{Body: data}, nil
}

func NewAttemptTask(deliveryID string) AttemptTask {
	return AttemptTask{DeliveryID: deliveryID}
}

// NewManualAttemptTask creates a task for an operator-requested retry.
func NewManualAttemptTask(deliveryID string) AttemptTask {
	task := NewAttemptTask(deliveryID)
	task.Manual = true
	return task
}
