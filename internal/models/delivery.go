package models

import (
	"time"

	"github.com/wayposthq/waypost/internal/idgen"
)

type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusRetrying  DeliveryStatus = "retrying"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryStatusPending, DeliveryStatusRetrying, DeliveryStatusDelivered, DeliveryStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether the status is final. Terminal deliveries are never
// attempted again except through an explicit operator retry.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryStatusDelivered || s == DeliveryStatusFailed
}

// Machine-readable failure codes recorded on deliveries.
const (
	ErrorCodeEndpointGone       = "endpoint_gone"
	ErrorCodePayloadTooLarge    = "payload_too_large"
	ErrorCodeUnexpectedRedirect = "unexpected_redirect"
	ErrorCodeRequestFailed      = "request_failed"
	ErrorCodeTimeout            = "timeout"
	ErrorCodeHTTPStatus         = "http_status"
)

type Delivery struct {
	ID            string            `json:"id" redis:"id"`
	EndpointID    string            `json:"endpoint_id" redis:"endpoint_id"`
	Event         Event             `json:"event" redis:"-"`
	Status        DeliveryStatus    `json:"status" redis:"status"`
	Attempts      int               `json:"attempts" redis:"attempts"`
	ErrorCode     string            `json:"error_code,omitempty" redis:"error_code"`
	Error         string            `json:"error,omitempty" redis:"error"`
	Response      *DeliveryResponse `json:"response,omitempty" redis:"-"`
	DurationMS    int64             `json:"duration_ms" redis:"duration_ms"`
	LastAttemptAt *time.Time        `json:"last_attempt_at,omitempty" redis:"last_attempt_at"`
	NextRetryAt   *time.Time        `json:"next_retry_at,omitempty" redis:"next_retry_at"`
	CreatedAt     time.Time         `json:"created_at" redis:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at" redis:"updated_at"`
}

// DeliveryResponse is a snapshot of the receiver's HTTP response. Body is
// truncated at capture time, so it may be a prefix of the original.
type DeliveryResponse struct {
	StatusCode int     `json:"status_code"`
	Body       string  `json:"body,omitempty"`
	Headers    Headers `json:"headers,omitempty"`
}

func NewDelivery(event Event, endpointID string, now time.Time) Delivery {
	return Delivery{
		ID:         idgen.Delivery(),
		EndpointID: endpointID,
		Event:      event,
		Status:     DeliveryStatusPending,
		Attempts:   0,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (d *Delivery) Clone() *Delivery {
	clone := *d
	clone.Event = d.Event.Clone()
	if d.Response != nil {
		response := *d.Response
		if d.Response.Headers != nil {
			response.Headers = make(Headers, len(d.Response.Headers))
			for k, v := range d.Response.Headers {
				response.Headers[k] = v
			}
		}
		clone.Response = &response
	}
	if d.LastAttemptAt != nil {
		lastAttemptAt := *d.LastAttemptAt
		clone.LastAttemptAt = &lastAttemptAt
	}
	if d.NextRetryAt != nil {
		nextRetryAt := *d.NextRetryAt
		clone.NextRetryAt = &nextRetryAt
	}
	return &clone
}

// RetryConfig controls the exponential backoff schedule for failed deliveries.
// Endpoints without one inherit the service-wide defaults.
type RetryConfig struct {
	MaxRetries      int     `json:"max_retries"`
	InitialInterval int     `json:"initial_delay_seconds"`
	MaxInterval     int     `json:"max_delay_seconds"`
	Multiplier      float64 `json:"backoff_multiplier"`
}

func (c *RetryConfig) Validate() error {
	if c.MaxRetries < 0 || c.InitialInterval < 1 || c.MaxInterval < c.InitialInterval || c.Multiplier < 1 {
		return ErrInvalidRetryConfig
	}
	return nil
}

func (c *RetryConfig) InitialDelay() time.Duration {
	return time.Duration(c.InitialInterval) * time.Second
}

func (c *RetryConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxInterval) * time.Second
}
