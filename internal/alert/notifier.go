package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/wayposthq/waypost/internal/models"
)

const (
	TopicConsecutiveFailures = "alert.endpoint.consecutive_failures"
	TopicEndpointDisabled    = "alert.endpoint.disabled"
)

// Notifier sends alert payloads to the configured callback.
type Notifier interface {
	Notify(ctx context.Context, alert any) error
}

// AlertEndpoint is the endpoint view embedded in alert payloads. It carries
// no signing secrets.
type AlertEndpoint struct {
	ID         string            `json:"id"`
	URL        string            `json:"url"`
	EventTypes models.EventTypes `json:"event_types"`
	Active     bool              `json:"active"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

func AlertEndpointFromEndpoint(e *models.Endpoint) AlertEndpoint {
	return AlertEndpoint{
		ID:         e.ID,
		URL:        e.URL,
		EventTypes: e.EventTypes,
		Active:     e.Active,
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
	}
}

// ConsecutiveFailures is the streak snapshot carried in alert payloads.
type ConsecutiveFailures struct {
	Current   int64 `json:"current"`
	Limit     int64 `json:"limit"`
	Threshold int   `json:"threshold"`
}

type ConsecutiveFailureData struct {
	Endpoint            AlertEndpoint       `json:"endpoint"`
	Delivery            *models.Delivery    `json:"delivery,omitempty"`
	ConsecutiveFailures ConsecutiveFailures `json:"consecutive_failures"`
}

type ConsecutiveFailureAlert struct {
	Topic     string                 `json:"topic"`
	Timestamp time.Time              `json:"timestamp"`
	Data      ConsecutiveFailureData `json:"data"`
}

func NewConsecutiveFailureAlert(data ConsecutiveFailureData) ConsecutiveFailureAlert {
	return ConsecutiveFailureAlert{
		Topic:     TopicConsecutiveFailures,
		Timestamp: time.Now(),
		Data:      data,
	}
}

type EndpointDisabledData struct {
	Endpoint   AlertEndpoint    `json:"endpoint"`
	Delivery   *models.Delivery `json:"delivery,omitempty"`
	DisabledAt time.Time        `json:"disabled_at"`
	Reason     string           `json:"reason"`
}

type EndpointDisabledAlert struct {
	Topic     string               `json:"topic"`
	Timestamp time.Time            `json:"timestamp"`
	Data      EndpointDisabledData `json:"data"`
}

func NewEndpointDisabledAlert(data EndpointDisabledData) EndpointDisabledAlert {
	return EndpointDisabledAlert{
		Topic:     TopicEndpointDisabled,
		Timestamp: time.Now(),
		Data:      data,
	}
}

type NotifierOption func(*httpNotifier)

// NotifierWithTimeout bounds the alert request. Zero restores the default
// 30 seconds.
func NotifierWithTimeout(timeout time.Duration) NotifierOption {
	return func(n *httpNotifier) {
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		n.client.Timeout = timeout
	}
}

func NotifierWithBearerToken(token string) NotifierOption {
	return func(n *httpNotifier) {
		n.bearerToken = token
	}
}

type httpNotifier struct {
	client      *http.Client
	callbackURL string
	bearerToken string
}

var _ Notifier = &httpNotifier{}

func NewHTTPNotifier(callbackURL string, opts ...NotifierOption) Notifier {
	n := &httpNotifier{
		client:      &http.Client{Timeout: 30 * time.Second},
		callbackURL: callbackURL,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *httpNotifier) Notify(ctx context.Context, alert any) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.callbackURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+n.bearerToken)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("alert callback failed with status %d", resp.StatusCode)
	}
	return nil
}
