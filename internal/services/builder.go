// Package services assembles workers for the configured service type. A
// singular process runs the admin API and the delivery engine together;
// split deployments run an api process (intake only) and a delivery process
// that share Redis and the attempt queue.
package services

import (
	"context"
	"fmt"
	"net/http"

	"github.com/wayposthq/waypost/internal/alert"
	"github.com/wayposthq/waypost/internal/apirouter"
	"github.com/wayposthq/waypost/internal/attempt"
	"github.com/wayposthq/waypost/internal/config"
	"github.com/wayposthq/waypost/internal/engine"
	"github.com/wayposthq/waypost/internal/logging"
	"github.com/wayposthq/waypost/internal/publishmq"
	"github.com/wayposthq/waypost/internal/redis"
	"github.com/wayposthq/waypost/internal/store"
	"github.com/wayposthq/waypost/internal/worker"
	"go.uber.org/zap"
)

// ServiceBuilder constructs workers based on service configuration.
type ServiceBuilder struct {
	ctx        context.Context
	cfg        *config.Config
	logger     *logging.Logger
	supervisor *worker.Supervisor

	services []*serviceInstance
}

// serviceInstance groups the cleanup functions of one built service.
type serviceInstance struct {
	name         string
	cleanupFuncs []func(context.Context, *logging.LoggerWithCtx)
}

func (s *serviceInstance) onCleanup(fn func(context.Context, *logging.LoggerWithCtx)) {
	s.cleanupFuncs = append(s.cleanupFuncs, fn)
}

func NewServiceBuilder(ctx context.Context, cfg *config.Config, logger *logging.Logger) *ServiceBuilder {
	return &ServiceBuilder{
		ctx:        ctx,
		cfg:        cfg,
		logger:     logger,
		supervisor: worker.NewSupervisor(logger),
		services:   []*serviceInstance{},
	}
}

func (b *ServiceBuilder) newServiceInstance(name string) *serviceInstance {
	svc := &serviceInstance{name: name}
	b.services = append(b.services, svc)
	return svc
}

// BuildWorkers builds the workers for the configured service type and
// returns the supervisor that runs them.
func (b *ServiceBuilder) BuildWorkers() (*worker.Supervisor, error) {
	service := b.cfg.MustGetService()
	b.logger.Debug("building workers", zap.String("service", service.String()))

	switch service {
	case config.ServiceTypeSingular, config.ServiceTypeAPI:
		if err := b.BuildAPIWorkers(); err != nil {
			return nil, err
		}
	case config.ServiceTypeDelivery:
		if err := b.BuildDeliveryWorkers(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown service type %q", service)
	}

	return b.supervisor, nil
}

// BuildAPIWorkers sets up the API service: the delivery engine (intake-only
// when the delivery service runs separately), the HTTP server, and the
// optional publish queue consumer.
func (b *ServiceBuilder) BuildAPIWorkers() error {
	b.logger.Debug("building api service workers")
	svc := b.newServiceInstance("api")

	intakeOnly := b.cfg.MustGetService() == config.ServiceTypeAPI
	eng, err := b.buildEngine(svc, intakeOnly)
	if err != nil {
		return err
	}
	b.supervisor.Register(NewEngineWorker(eng, b.logger))

	b.logger.Debug("creating http server", zap.Int("port", b.cfg.APIPort))
	router := apirouter.NewRouter(apirouter.RouterConfig{
		ServiceName:       b.cfg.OpenTelemetry.GetServiceName(),
		APIKey:            b.cfg.APIKey,
		GinMode:           b.cfg.GinMode,
		EventTypes:        b.cfg.EventTypes,
		AllowInsecureHTTP: b.cfg.AllowInsecureHTTP,
		HealthHandler:     HealthHandler(b.supervisor),
	}, b.logger, eng)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", b.cfg.APIPort),
		Handler: router,
	}
	b.supervisor.Register(NewHTTPServerWorker(httpServer, b.logger))

	if queueConfig := b.cfg.MQ.PublishQueueConfig(); queueConfig != nil {
		b.logger.Debug("initializing publish queue consumer")
		publishMQ := publishmq.New(publishmq.WithQueue(queueConfig))
		cleanupPublishMQ, err := publishMQ.Init(b.ctx)
		if err != nil {
			b.logger.Error("publish queue initialization failed", zap.Error(err))
			return err
		}
		svc.onCleanup(func(ctx context.Context, logger *logging.LoggerWithCtx) {
			cleanupPublishMQ()
		})

		handler := publishmq.NewMessageHandler(b.logger, eng)
		b.supervisor.Register(NewConsumerWorker(
			"publish-consumer",
			publishMQ.Subscribe,
			handler,
			b.cfg.PublishConcurrency,
			b.logger,
		))
	}

	b.logger.Info("api service workers built")
	return nil
}

// BuildDeliveryWorkers sets up the delivery service: a full engine consuming
// the attempt queue.
func (b *ServiceBuilder) BuildDeliveryWorkers() error {
	b.logger.Debug("building delivery service workers")
	svc := b.newServiceInstance("delivery")

	eng, err := b.buildEngine(svc, false)
	if err != nil {
		return err
	}
	b.supervisor.Register(NewEngineWorker(eng, b.logger))

	b.logger.Info("delivery service workers built")
	return nil
}

// buildEngine assembles and starts an engine from the service configuration.
// Its Stop is registered as a cleanup so a build or run failure elsewhere
// still tears it down; EngineWorker normally stops it first.
func (b *ServiceBuilder) buildEngine(svc *serviceInstance, intakeOnly bool) (*engine.Engine, error) {
	var redisClient redis.Client
	if b.cfg.Redis.Configured() {
		b.logger.Debug("initializing redis client")
		client, err := redis.NewClient(b.ctx, b.cfg.Redis.ToConfig())
		if err != nil {
			b.logger.Error("redis client initialization failed", zap.Error(err))
			return nil, err
		}
		redisClient = client
		svc.onCleanup(func(ctx context.Context, logger *logging.LoggerWithCtx) {
			if err := client.Close(); err != nil {
				logger.Error("error closing redis client", zap.Error(err))
			}
		})
	}

	st, err := b.buildStore(svc, redisClient)
	if err != nil {
		return nil, err
	}

	opts := []engine.Option{
		engine.WithLogger(b.logger),
		engine.WithStore(st),
		engine.WithQueueConfig(b.cfg.MQ.AttemptQueueConfig()),
		engine.WithEventTypes(b.cfg.EventTypes),
		engine.WithConcurrency(b.cfg.WorkerConcurrency),
		engine.WithQueueDepth(int64(b.cfg.QueueDepth)),
		engine.WithRetryConfig(b.cfg.RetryConfig()),
		engine.WithMaxPayloadSize(b.cfg.MaxPayloadSize),
		engine.WithRotationWindow(b.cfg.RotationWindow()),
		engine.WithVerifyTolerance(b.cfg.VerifyTolerance()),
		engine.WithSenderOptions(
			attempt.WithTimeout(b.cfg.DeliveryTimeout()),
			attempt.WithUserAgent(b.cfg.HTTPUserAgent),
			attempt.WithSignatureHeader(b.cfg.SignatureHeader),
			attempt.WithTimestampHeader(b.cfg.TimestampHeader),
			attempt.WithDeliveryIDHeader(b.cfg.DeliveryIDHeader),
			attempt.WithFollowRedirects(b.cfg.RedirectsAllowed),
		),
	}
	if redisClient != nil {
		opts = append(opts, engine.WithRedisClient(redisClient))
	}
	if intakeOnly {
		opts = append(opts, engine.WithIntakeOnly())
	} else {
		// Failure monitoring lives with the attempt workers.
		monitor := alert.NewMonitor(b.logger, st, alert.NewTracker(redisClient), alert.Config{
			AutoDisableFailureCount: b.cfg.Alert.AutoDisableFailureCount,
			DebounceInterval:        b.cfg.Alert.DebounceInterval(),
			CallbackURL:             b.cfg.Alert.CallbackURL,
			BearerToken:             b.cfg.Alert.BearerToken,
		})
		opts = append(opts, engine.WithAlertMonitor(monitor))
	}

	eng, err := engine.New(opts...)
	if err != nil {
		b.logger.Error("engine assembly failed", zap.Error(err))
		return nil, err
	}
	if err := eng.Start(b.ctx); err != nil {
		b.logger.Error("engine start failed", zap.Error(err))
		return nil, err
	}
	svc.onCleanup(func(ctx context.Context, logger *logging.LoggerWithCtx) {
		if err := eng.Stop(ctx); err != nil {
			logger.Error("error stopping engine", zap.Error(err))
		}
	})
	return eng, nil
}

func (b *ServiceBuilder) buildStore(svc *serviceInstance, redisClient redis.Client) (store.Store, error) {
	b.logger.Debug("creating store", zap.String("driver", b.cfg.StorageDriver))
	switch b.cfg.StorageDriver {
	case config.StorageDriverPostgres:
		driverOpts, err := store.MakeDriverOpts(b.ctx, store.Config{Postgres: b.cfg.PostgresURL})
		if err != nil {
			b.logger.Error("store driver configuration failed", zap.Error(err))
			return nil, err
		}
		svc.onCleanup(func(ctx context.Context, logger *logging.LoggerWithCtx) {
			if err := driverOpts.Close(); err != nil {
				logger.Error("error closing store", zap.Error(err))
			}
		})
		return store.New(b.ctx, driverOpts)
	case config.StorageDriverRedis:
		return store.New(b.ctx, store.DriverOpts{Redis: redisClient})
	default:
		return store.NewMemStore(), nil
	}
}

// Cleanup runs all registered cleanup functions, newest-first within each
// service so the engine stops before its backends close.
func (b *ServiceBuilder) Cleanup(ctx context.Context) {
	logger := b.logger.Ctx(ctx)
	for _, svc := range b.services {
		logger.Debug("cleaning up service", zap.String("service", svc.name))
		for i := len(svc.cleanupFuncs) - 1; i >= 0; i-- {
			svc.cleanupFuncs[i](ctx, &logger)
		}
	}
}
