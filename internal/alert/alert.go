// Package alert watches consecutive delivery failures per endpoint. It
// notifies a callback URL as an endpoint approaches its failure limit and
// disables the endpoint once the limit is reached.
package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/wayposthq/waypost/internal/logging"
	"github.com/wayposthq/waypost/internal/models"
	"go.uber.org/zap"
)

const DisableReasonConsecutiveFailures = "consecutive_failures"

// Monitor consumes attempt outcomes. Implementations must tolerate being
// called concurrently from every delivery worker.
type Monitor interface {
	HandleAttempt(ctx context.Context, attempt AttemptResult) error
}

// AttemptResult is one finished HTTP attempt as seen by the monitor.
type AttemptResult struct {
	Endpoint  *models.Endpoint
	Delivery  *models.Delivery
	Success   bool
	Timestamp time.Time
}

// EndpointStore is the slice of the store the monitor needs to flip an
// endpoint off.
type EndpointStore interface {
	RetrieveEndpoint(ctx context.Context, endpointID string) (*models.Endpoint, error)
	UpsertEndpoint(ctx context.Context, endpoint models.Endpoint) error
}

// Config holds the failure monitoring policy.
type Config struct {
	// AutoDisableFailureCount is the consecutive failure count at which the
	// endpoint is disabled. Zero turns monitoring off.
	AutoDisableFailureCount int
	// Thresholds are percentages of AutoDisableFailureCount at which to
	// notify. Defaults to 50, 70, 90, 100.
	Thresholds []int
	// DebounceInterval is the minimum gap between notifications for the same
	// endpoint. The disable notification is never debounced.
	DebounceInterval time.Duration
	// CallbackURL receives alert payloads. Empty means track and disable
	// without notifying.
	CallbackURL string
	// BearerToken, when set, is sent on alert callbacks.
	BearerToken string
}

type monitor struct {
	logger    *logging.Logger
	endpoints EndpointStore
	tracker   FailureTracker
	evaluator *Evaluator
	notifier  Notifier
	limit     int
	debounce  time.Duration
	now       func() time.Time
}

type MonitorOption func(*monitor)

// WithNotifier replaces the HTTP notifier built from Config.CallbackURL.
func WithNotifier(notifier Notifier) MonitorOption {
	return func(m *monitor) {
		m.notifier = notifier
	}
}

func WithClock(now func() time.Time) MonitorOption {
	return func(m *monitor) {
		m.now = now
	}
}

// NewMonitor builds a monitor from the policy in cfg. A zero
// AutoDisableFailureCount yields a monitor that ignores every attempt.
func NewMonitor(logger *logging.Logger, endpoints EndpointStore, tracker FailureTracker, cfg Config, opts ...MonitorOption) Monitor {
	if cfg.AutoDisableFailureCount <= 0 {
		return NewNopMonitor()
	}
	m := &monitor{
		logger:    logger,
		endpoints: endpoints,
		tracker:   tracker,
		evaluator: NewEvaluator(cfg.AutoDisableFailureCount, cfg.Thresholds),
		limit:     cfg.AutoDisableFailureCount,
		debounce:  cfg.DebounceInterval,
		now:       time.Now,
	}
	if cfg.CallbackURL != "" {
		notifierOpts := []NotifierOption{}
		if cfg.BearerToken != "" {
			notifierOpts = append(notifierOpts, NotifierWithBearerToken(cfg.BearerToken))
		}
		m.notifier = NewHTTPNotifier(cfg.CallbackURL, notifierOpts...)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *monitor) HandleAttempt(ctx context.Context, attempt AttemptResult) error {
	if attempt.Success {
		return m.tracker.ResetFailures(ctx, attempt.Endpoint.ID)
	}

	state, err := m.tracker.IncrFailures(ctx, attempt.Endpoint.ID)
	if err != nil {
		return fmt.Errorf("failed to track endpoint failure: %w", err)
	}

	if state.Failures >= int64(m.limit) {
		return m.disable(ctx, attempt, state)
	}

	level, hit := m.evaluator.Level(state.Failures)
	if !hit {
		return nil
	}
	if !state.LastAlertAt.IsZero() && m.now().Sub(state.LastAlertAt) < m.debounce {
		return nil
	}

	if err := m.notify(ctx, NewConsecutiveFailureAlert(ConsecutiveFailureData{
		Endpoint: AlertEndpointFromEndpoint(attempt.Endpoint),
		Delivery: attempt.Delivery,
		ConsecutiveFailures: ConsecutiveFailures{
			Current:   state.Failures,
			Limit:     int64(m.limit),
			Threshold: level,
		},
	})); err != nil {
		return err
	}
	return m.tracker.MarkAlerted(ctx, attempt.Endpoint.ID, attempt.Timestamp, level)
}

func (m *monitor) disable(ctx context.Context, attempt AttemptResult, state FailureState) error {
	endpoint, err := m.endpoints.RetrieveEndpoint(ctx, attempt.Endpoint.ID)
	if err != nil {
		return fmt.Errorf("failed to retrieve endpoint for disabling: %w", err)
	}
	if !endpoint.Active {
		// A concurrent attempt already flipped it.
		return nil
	}
	disabledAt := m.now()
	endpoint.Active = false
	endpoint.UpdatedAt = disabledAt
	if err := m.endpoints.UpsertEndpoint(ctx, *endpoint); err != nil {
		return fmt.Errorf("failed to disable endpoint: %w", err)
	}
	m.logger.Ctx(ctx).Audit("endpoint disabled after consecutive failures",
		zap.String("endpoint_id", endpoint.ID),
		zap.Int64("consecutive_failures", state.Failures),
		zap.Int("limit", m.limit))

	if err := m.notify(ctx, NewEndpointDisabledAlert(EndpointDisabledData{
		Endpoint:   AlertEndpointFromEndpoint(endpoint),
		Delivery:   attempt.Delivery,
		DisabledAt: disabledAt,
		Reason:     DisableReasonConsecutiveFailures,
	})); err != nil {
		return err
	}
	return m.tracker.MarkAlerted(ctx, attempt.Endpoint.ID, attempt.Timestamp, 100)
}

func (m *monitor) notify(ctx context.Context, alert any) error {
	if m.notifier == nil {
		return nil
	}
	if err := m.notifier.Notify(ctx, alert); err != nil {
		return fmt.Errorf("failed to send alert: %w", err)
	}
	return nil
}

type nopMonitor struct{}

// NewNopMonitor returns a monitor that ignores every attempt.
func NewNopMonitor() Monitor {
	return nopMonitor{}
}

func (nopMonitor) HandleAttempt(context.Context, AttemptResult) error { return nil }
