// Package server assembles the progress monitor, its listeners and sinks, and
// the HTTP API into a runnable service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/progress-monitor/internal/api"
	"github.com/JakeFAU/progress-monitor/internal/config"
	"github.com/JakeFAU/progress-monitor/internal/metrics"
	"github.com/JakeFAU/progress-monitor/internal/progress"
	progresssinks "github.com/JakeFAU/progress-monitor/internal/progress/sinks"
	memorystorage "github.com/JakeFAU/progress-monitor/internal/storage/memory"
	pgstore "github.com/JakeFAU/progress-monitor/internal/storage/postgres"
	"github.com/JakeFAU/progress-monitor/internal/store"
	"github.com/JakeFAU/progress-monitor/internal/telemetry"
)

// Version is stamped at build time.
var Version = "dev"

// App contains the application's dependencies.
type App struct {
	cfg          config.Config
	configPath   string
	logger       *zap.Logger
	monitor      *progress.Monitor
	hub          *progress.Hub
	stream       *api.EventStream
	apiServer    *api.Server
	registry     *prometheus.Registry
	transfers    store.TransferRepository
	pgStore      *pgstore.TransferStore
	pubsubClient *pubsub.Client
	tracer       *sdktrace.TracerProvider
}

// Build creates the application's dependencies. configPath is only used to
// watch the metering section for changes and may be empty.
func Build(ctx context.Context, cfg config.Config, configPath string, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		registry:   prometheus.NewRegistry(),
	}
	app.logger.Info("building application dependencies", zap.Int("port", cfg.Server.Port))

	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	app.monitor = progress.NewMonitor(
		progress.WithLogger(logger.Named("monitor")),
		progress.WithPolicy(cfg.Metering.Policy()),
	)
	progress.SetDefault(app.monitor)

	steps := []func(context.Context) error{
		app.setupDatabase,
		app.setupTracing,
		app.setupProgress,
		app.setupWatch,
		app.setupAPI,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			app.closeInfrastructure(ctx)
			return nil, err
		}
	}
	return app, nil
}

// Monitor returns the monitor instrumented code reports to.
func (a *App) Monitor() *progress.Monitor { return a.monitor }

// Transfers returns the transfer history repository.
func (a *App) Transfers() store.TransferRepository { return a.transfers }

// Handler returns the HTTP API.
func (a *App) Handler() http.Handler { return a.apiServer.Handler() }

func (a *App) setupDatabase(ctx context.Context) error {
	switch a.cfg.DB.Driver {
	case "postgres":
		pg, err := pgstore.NewTransferStore(ctx, pgstore.Config{
			DSN:             a.cfg.DB.DSN,
			Table:           a.cfg.DB.Table,
			MaxConns:        a.cfg.DB.MaxConns,
			MinConns:        a.cfg.DB.MinConns,
			MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
		})
		if err != nil {
			return fmt.Errorf("transfer store init failed: %w", err)
		}
		a.pgStore = pg
		if a.cfg.DB.EnsureSchema {
			if err := pg.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("transfer schema init failed: %w", err)
			}
		}
		a.transfers = pg
		a.logger.Info("postgres transfer store initialized", zap.String("table", a.cfg.DB.Table))
	default:
		a.transfers = memorystorage.NewTransferStore()
		a.logger.Info("using in-memory transfer store")
	}
	return nil
}

func (a *App) setupTracing(ctx context.Context) error {
	if !a.cfg.Tracing.Enabled {
		return nil
	}
	tp, err := telemetry.InitTracerProvider(ctx, a.cfg.Tracing.ServiceName, Version)
	if err != nil {
		return fmt.Errorf("tracer init failed: %w", err)
	}
	a.tracer = tp
	a.monitor.AddListener(telemetry.NewSpanListener(tp))
	a.logger.Info("span listener enabled", zap.String("service", a.cfg.Tracing.ServiceName))
	return nil
}

func (a *App) setupProgress(ctx context.Context) error {
	sinks := a.cfg.Progress.Sinks
	var sinkList []progress.Sink
	if sinks.Log {
		sinkList = append(sinkList, progresssinks.NewLogSink(a.logger.Named("progress_log")))
		a.logger.Debug("added progress log sink")
	}
	if sinks.Prometheus {
		promSink, err := progresssinks.NewPrometheusSink(a.registry)
		if err != nil {
			return fmt.Errorf("prometheus sink init failed: %w", err)
		}
		sinkList = append(sinkList, promSink)
		a.logger.Debug("added progress prometheus sink")
	}
	if sinks.Store && a.transfers != nil {
		sinkList = append(sinkList, progresssinks.NewStoreSink(a.transfers, a.logger.Named("progress_store")))
		a.logger.Debug("added progress store sink")
	}
	if sinks.PubSub {
		client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("pubsub client init failed: %w", err)
		}
		a.pubsubClient = client
		pubSink, err := progresssinks.NewPubSubSink(client.Topic(a.cfg.PubSub.TopicName), a.logger.Named("progress_pubsub"))
		if err != nil {
			return fmt.Errorf("pubsub sink init failed: %w", err)
		}
		sinkList = append(sinkList, pubSink)
		a.logger.Info("pubsub sink initialized",
			zap.String("project", a.cfg.PubSub.ProjectID),
			zap.String("topic", a.cfg.PubSub.TopicName),
		)
	}

	a.stream = api.NewEventStream(a.logger.Named("stream"))
	a.monitor.AddListener(a.stream)

	if len(sinkList) == 0 {
		a.logger.Warn("no progress sinks configured")
		return nil
	}
	hubCfg := progress.HubConfig{
		BufferSize:      a.cfg.Progress.Hub.BufferSize,
		MaxBatchEvents:  a.cfg.Progress.Hub.MaxBatchEvents,
		MaxBatchWait:    a.cfg.Progress.Hub.MaxBatchWait,
		SinkTimeout:     a.cfg.Progress.Hub.SinkTimeout,
		CoalesceUpdates: a.cfg.Progress.Hub.CoalesceUpdates,
		BaseContext:     context.WithoutCancel(ctx),
		Logger:          a.logger.Named("progress_hub"),
	}
	a.hub = progress.NewHub(hubCfg, sinkList...)
	if err := metrics.RegisterHub(a.registry, a.hub); err != nil {
		_ = a.hub.Close(ctx)
		a.hub = nil
		return fmt.Errorf("hub metrics init failed: %w", err)
	}
	a.monitor.AddListener(a.hub)
	a.logger.Info("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
		zap.Duration("sink_timeout", hubCfg.SinkTimeout),
		zap.Bool("coalesce_updates", hubCfg.CoalesceUpdates),
	)
	return nil
}

func (a *App) setupWatch(context.Context) error {
	if !a.cfg.Metering.Watch || a.configPath == "" {
		return nil
	}
	if err := config.WatchMetering(a.configPath, a.logger.Named("config"), func(m config.MeteringConfig) {
		a.monitor.SetMeteringPolicy(m.Policy())
	}); err != nil {
		return fmt.Errorf("config watch failed: %w", err)
	}
	a.logger.Info("watching metering config", zap.String("file", a.configPath))
	return nil
}

func (a *App) setupAPI(context.Context) error {
	httpMetrics, err := metrics.NewHTTP(a.registry)
	if err != nil {
		return fmt.Errorf("http metrics init failed: %w", err)
	}
	opts := api.Options{
		Sources:     a.monitor,
		Transfers:   a.transfers,
		Gatherer:    a.registry,
		HTTPMetrics: httpMetrics,
		Stream:      a.stream,
		Auth:        a.cfg.Auth,
		Logger:      a.logger.Named("api"),
	}
	if a.pgStore != nil {
		opts.Ready = a.pgStore
	}
	a.apiServer = api.NewServer(opts)
	return nil
}

// Run listens on the configured port and serves until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.Server.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return a.Serve(ctx, ln)
}

// Serve handles HTTP on ln until ctx is canceled, then shuts down gracefully
// and releases every dependency.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: a.cfg.Server.ReadHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.shutdownTimeout())
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})
	runErr := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.shutdownTimeout())
	defer cancel()
	return errors.Join(runErr, a.Close(closeCtx))
}

func (a *App) shutdownTimeout() time.Duration {
	if a.cfg.Server.ShutdownTimeout > 0 {
		return a.cfg.Server.ShutdownTimeout
	}
	return 10 * time.Second
}

// Close flushes pending progress events and releases dependencies.
func (a *App) Close(ctx context.Context) error {
	err := a.closeInfrastructure(ctx)
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return err
}

func (a *App) closeInfrastructure(ctx context.Context) error {
	var errs []error
	if a.hub != nil {
		a.monitor.RemoveListener(a.hub)
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.pgStore != nil {
		a.pgStore.Close()
	}
	return errors.Join(errs...)
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
