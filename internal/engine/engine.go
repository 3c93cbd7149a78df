// Package engine assembles the delivery pipeline into one lifecycle-scoped
// service: construct it, Start it, dispatch events through it, Stop it. The
// API layer talks to the engine instead of wiring scheduler, consumer, and
// store by hand.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/wayposthq/waypost/internal/alert"
	"github.com/wayposthq/waypost/internal/attempt"
	"github.com/wayposthq/waypost/internal/attemptmq"
	"github.com/wayposthq/waypost/internal/claims"
	"github.com/wayposthq/waypost/internal/consumer"
	"github.com/wayposthq/waypost/internal/dispatch"
	"github.com/wayposthq/waypost/internal/dmetrics"
	"github.com/wayposthq/waypost/internal/eventtracer"
	"github.com/wayposthq/waypost/internal/logging"
	"github.com/wayposthq/waypost/internal/models"
	"github.com/wayposthq/waypost/internal/mqs"
	"github.com/wayposthq/waypost/internal/redis"
	"github.com/wayposthq/waypost/internal/scheduler"
	"github.com/wayposthq/waypost/internal/stats"
	"github.com/wayposthq/waypost/internal/store"
	"github.com/wayposthq/waypost/internal/store/driver"
	"github.com/wayposthq/waypost/internal/verify"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrEngineStopped is returned for work submitted before Start or after Stop.
var ErrEngineStopped = errors.New("engine is not running")

const (
	DefaultConcurrency     = 8
	DefaultShutdownTimeout = 30 * time.Second
)

type Engine struct {
	logger          *logging.Logger
	store           driver.Store
	queueConfig     *mqs.QueueConfig
	redisClient     redis.Cmdable
	eventTypes      []string
	concurrency     int
	queueDepth      int64
	pollInterval    time.Duration
	retryConfig     models.RetryConfig
	maxPayloadSize  int64
	rotationWindow  time.Duration
	verifyTolerance time.Duration
	senderOpts      []attempt.SenderOption
	alertMonitor    alert.Monitor
	meter           dmetrics.Metrics
	shutdownTimeout time.Duration
	intakeOnly      bool

	attemptMQ  *attemptmq.AttemptMQ
	sched      scheduler.Scheduler
	dispatcher *dispatch.Dispatcher
	retrier    *attempt.Retrier
	handler    consumer.MessageHandler

	started   atomic.Bool
	stopped   atomic.Bool
	cancelRun context.CancelFunc
	done      chan struct{}
	mqCleanup func()
}

type Option func(*Engine)

func WithLogger(logger *logging.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithStore(s driver.Store) Option {
	return func(e *Engine) {
		e.store = s
	}
}

func WithQueueConfig(queueConfig *mqs.QueueConfig) Option {
	return func(e *Engine) {
		e.queueConfig = queueConfig
	}
}

// WithRedisClient backs claims and the retry delay store with Redis so
// multiple delivery processes can share them.
func WithRedisClient(redisClient redis.Cmdable) Option {
	return func(e *Engine) {
		e.redisClient = redisClient
	}
}

// WithEventTypes restricts dispatch to a known set of event types. Empty
// means any type is accepted.
func WithEventTypes(eventTypes []string) Option {
	return func(e *Engine) {
		e.eventTypes = eventTypes
	}
}

func WithConcurrency(concurrency int) Option {
	return func(e *Engine) {
		e.concurrency = concurrency
	}
}

func WithQueueDepth(depth int64) Option {
	return func(e *Engine) {
		e.queueDepth = depth
	}
}

func WithPollInterval(interval time.Duration) Option {
	return func(e *Engine) {
		e.pollInterval = interval
	}
}

func WithRetryConfig(retryConfig models.RetryConfig) Option {
	return func(e *Engine) {
		e.retryConfig = retryConfig
	}
}

func WithMaxPayloadSize(maxPayloadSize int64) Option {
	return func(e *Engine) {
		e.maxPayloadSize = maxPayloadSize
	}
}

func WithRotationWindow(rotationWindow time.Duration) Option {
	return func(e *Engine) {
		e.rotationWindow = rotationWindow
	}
}

func WithVerifyTolerance(tolerance time.Duration) Option {
	return func(e *Engine) {
		e.verifyTolerance = tolerance
	}
}

// WithSenderOptions configures the outbound HTTP sender (timeout, headers,
// user agent, redirects).
func WithSenderOptions(opts ...attempt.SenderOption) Option {
	return func(e *Engine) {
		e.senderOpts = opts
	}
}

func WithAlertMonitor(monitor alert.Monitor) Option {
	return func(e *Engine) {
		e.alertMonitor = monitor
	}
}

func WithMetrics(meter dmetrics.Metrics) Option {
	return func(e *Engine) {
		e.meter = meter
	}
}

// WithShutdownTimeout bounds how long Stop waits for in-flight attempts.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		e.shutdownTimeout = timeout
	}
}

// WithIntakeOnly starts the engine without attempt workers or the retry pump.
// Dispatches and manual retries are still enqueued; a separate delivery
// process consuming the same queue executes them. Requires a shared queue and
// Redis so that process sees the tasks, claims, and parked retries.
func WithIntakeOnly() Option {
	return func(e *Engine) {
		e.intakeOnly = true
	}
}

func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		concurrency:     DefaultConcurrency,
		queueDepth:      scheduler.DefaultMaxDepth,
		pollInterval:    scheduler.DefaultPollInterval,
		retryConfig:     models.RetryConfig{MaxRetries: 5, InitialInterval: 1, MaxInterval: 3600, Multiplier: 2},
		maxPayloadSize:  attempt.DefaultMaxPayloadSize,
		rotationWindow:  attempt.DefaultRotationWindow,
		verifyTolerance: verify.DefaultTolerance,
		shutdownTimeout: DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.retryConfig.Validate(); err != nil {
		return nil, err
	}
	if e.logger == nil {
		e.logger = logging.NopLogger()
	}
	if e.store == nil {
		e.store = store.NewMemStore()
	}
	if e.meter == nil {
		e.meter, _ = dmetrics.New()
	}
	if e.alertMonitor == nil {
		e.alertMonitor = alert.NewNopMonitor()
	}

	e.attemptMQ = attemptmq.New(attemptmq.WithQueue(e.queueConfig))

	schedOpts := []scheduler.Option{
		scheduler.WithMaxDepth(e.queueDepth),
		scheduler.WithPollInterval(e.pollInterval),
		scheduler.WithLogger(e.logger),
	}
	if e.redisClient != nil {
		schedOpts = append(schedOpts, scheduler.WithDelayBackend(scheduler.NewRedisDelay(e.redisClient)))
	}
	e.sched = scheduler.New(e.attemptMQ, schedOpts...)

	attemptClaims := claims.New(e.redisClient)
	sender := attempt.NewSender(e.senderOpts...)
	eventTracer := eventtracer.NewEventTracer()

	e.handler = attempt.NewMessageHandler(
		e.logger,
		e.store,
		e.store,
		e.sched,
		attemptClaims,
		sender,
		eventTracer,
		attempt.WithDefaultRetryConfig(e.retryConfig),
		attempt.WithMaxPayloadSize(e.maxPayloadSize),
		attempt.WithRotationWindow(e.rotationWindow),
		attempt.WithMetrics(e.meter),
		attempt.WithAlertMonitor(e.alertMonitor),
	)
	e.dispatcher = dispatch.New(e.logger, e.store, e.sched, eventTracer,
		dispatch.WithEventTypes(e.eventTypes),
		dispatch.WithMetrics(e.meter),
	)
	e.retrier = attempt.NewRetrier(e.logger, e.store, attemptClaims, e.sched)

	return e, nil
}

// Start brings up the queue, the retry pump, and the attempt workers. It
// returns once the pipeline is accepting work.
func (e *Engine) Start(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return errors.New("engine already started")
	}

	mqCleanup, err := e.attemptMQ.Init(ctx)
	if err != nil {
		return err
	}
	e.mqCleanup = mqCleanup

	// The run context outlives the Start caller's ctx; Stop cancels it.
	runCtx, cancel := context.WithCancel(context.Background())
	e.cancelRun = cancel
	e.done = make(chan struct{})

	if e.intakeOnly {
		go func() {
			defer close(e.done)
			<-runCtx.Done()
		}()
		e.logger.Ctx(ctx).Info("engine started in intake-only mode",
			zap.Int64("queue_depth", e.queueDepth))
		return nil
	}

	subscription, err := e.attemptMQ.Subscribe(ctx)
	if err != nil {
		cancel()
		mqCleanup()
		return err
	}

	csm := consumer.New(subscription, e.handler,
		consumer.WithName("attempt"),
		consumer.WithConcurrency(e.concurrency),
		consumer.WithLogger(e.logger),
	)

	go func() {
		defer close(e.done)
		g, gctx := errgroup.WithContext(runCtx)
		g.Go(func() error {
			return e.sched.Monitor(gctx)
		})
		g.Go(func() error {
			return csm.Run(gctx)
		})
		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			e.logger.Ctx(runCtx).Error("engine pipeline stopped", zap.Error(err))
		}
	}()

	e.logger.Ctx(ctx).Info("engine started",
		zap.Int("concurrency", e.concurrency),
		zap.Int64("queue_depth", e.queueDepth))
	return nil
}

// Stop refuses new work, stops intake, and waits for in-flight attempts to
// finish. It returns early when ctx or the shutdown timeout expires; the
// queue teardown still runs.
func (e *Engine) Stop(ctx context.Context) error {
	if !e.started.Load() {
		return nil
	}
	if !e.stopped.CompareAndSwap(false, true) {
		return nil
	}

	e.cancelRun()

	ctx, cancel := context.WithTimeout(ctx, e.shutdownTimeout)
	defer cancel()

	var err error
	select {
	case <-e.done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	e.mqCleanup()
	e.logger.Ctx(ctx).Info("engine stopped", zap.Error(err))
	return err
}

func (e *Engine) running() bool {
	return e.started.Load() && !e.stopped.Load()
}

// Dispatch fans an event out to every matching endpoint. See
// dispatch.Dispatcher for the fan-out semantics.
func (e *Engine) Dispatch(ctx context.Context, eventType string, data json.RawMessage) (*dispatch.Result, error) {
	if !e.running() {
		return nil, ErrEngineStopped
	}
	return e.dispatcher.Dispatch(ctx, eventType, data)
}

// RetryDelivery resets a delivery for a fresh attempt. It reports false when
// the delivery is already delivered.
func (e *Engine) RetryDelivery(ctx context.Context, deliveryID string) (bool, error) {
	if !e.running() {
		return false, ErrEngineStopped
	}
	return e.retrier.Retry(ctx, deliveryID)
}

// Stats aggregates delivery counters for one endpoint.
func (e *Engine) Stats(ctx context.Context, endpointID string) (stats.DeliveryStats, error) {
	return stats.Compute(ctx, e.store, endpointID)
}

// Store exposes the backing store for the API layer's endpoint and delivery
// reads and writes.
func (e *Engine) Store() driver.Store {
	return e.store
}

// Depth reports attempt tasks admitted but not yet finished.
func (e *Engine) Depth() int64 {
	return e.sched.Depth()
}

// Done closes when the pipeline goroutines have exited. Before Stop is
// called, that only happens if the pipeline dies. Valid after Start.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// VerifySignature checks an inbound signature against our own scheme using
// the engine's verify tolerance.
func (e *Engine) VerifySignature(secret string, body []byte, signatureHeader, timestampHeader string) bool {
	return verify.Native(secret, body, signatureHeader, timestampHeader, verify.WithTolerance(e.verifyTolerance))
}
