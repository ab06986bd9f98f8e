// Package main implements the gytheio worker process. It loads one worker
// configuration, connects to NATS and runs a single component until it is
// signalled to stop.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/Alfresco/gytheio-sub001/component"
	"github.com/Alfresco/gytheio-sub001/config"
	"github.com/Alfresco/gytheio-sub001/content"
	"github.com/Alfresco/gytheio-sub001/health"
	"github.com/Alfresco/gytheio-sub001/metric"
	"github.com/Alfresco/gytheio-sub001/natsclient"
	"github.com/Alfresco/gytheio-sub001/pkg/retry"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "gytheio-worker"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cli, err := parseFlags(args, stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if err := validateFlags(cli); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cli.ShowVersion {
		_, _ = fmt.Fprintf(stdout, "%s version %s (%s)\n", appName, Version, BuildTime)
		return nil
	}

	cfg, err := config.Load(cli.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cli.LogLevel != "" {
		cfg.Log.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		cfg.Log.Format = cli.LogFormat
	}

	logger := setupLogger(stdout, cfg.Log.Level, cfg.Log.Format, cfg.Component.Name)
	slog.SetDefault(logger)

	if cli.Validate {
		logger.Info("Configuration is valid", "config_path", cli.ConfigPath)
		return nil
	}

	logger.Info("Starting worker",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cli.ConfigPath,
		"worker_type", cfg.Worker.Type,
		"mode", cfg.Component.Mode)

	return serve(ctx, cfg, logger)
}

// serve wires the worker and blocks until ctx is done.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	registry := metric.NewMetricsRegistry()

	client, err := natsclient.NewClient(cfg.NATS.URL(),
		clientOptions(cfg.NATS, cfg.Component.Name, logger, registry.CoreMetrics())...)
	if err != nil {
		return fmt.Errorf("create NATS client: %w", err)
	}
	if err := connect(ctx, client, cfg.NATS.Timeout.Std(), logger); err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.Close(closeCtx); err != nil {
			logger.Warn("NATS close failed", "error", err)
		}
	}()

	sources, err := buildHandlers(ctx, cfg.Handlers.Source, client, registry, logger)
	if err != nil {
		return fmt.Errorf("source handlers: %w", err)
	}
	defer sources.close(logger)

	var targetRegistry content.Handler
	if len(cfg.Handlers.Target) > 0 {
		targets, err := buildHandlers(ctx, cfg.Handlers.Target, client, registry, logger)
		if err != nil {
			return fmt.Errorf("target handlers: %w", err)
		}
		defer targets.close(logger)
		targetRegistry = targets.registry
	}

	processor, err := buildProcessor(cfg.Worker, sources.registry, targetRegistry, logger)
	if err != nil {
		return err
	}

	tr, err := buildTransport(ctx, cfg.Component, client)
	if err != nil {
		return fmt.Errorf("create transport: %w", err)
	}

	comp, err := component.New(componentConfig(cfg.Component), processor, component.Dependencies{
		Transport:       tr,
		MetricsRegistry: registry,
		Logger:          logger,
	})
	if err != nil {
		return err
	}
	if err := comp.Initialize(); err != nil {
		return err
	}

	monitor := newMonitor(cfg, comp, client, sources.registry, targetRegistry)
	servers, err := startServers(cfg, registry, monitor, logger)
	if err != nil {
		return err
	}
	defer stopServers(servers, logger)

	if err := comp.Start(ctx); err != nil {
		return fmt.Errorf("start component: %w", err)
	}
	meta := comp.Meta()
	logger.Info("Worker started",
		"component_type", meta.Type,
		"request_kind", meta.RequestKind,
		"request_subject", cfg.Component.RequestSubject,
		"reply_subject", cfg.Component.ReplySubject)

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	if err := comp.Stop(cfg.Component.StopTimeout.Std()); err != nil {
		logger.Error("Component stop failed", "error", err)
		return err
	}
	flow := comp.DataFlow()
	logger.Info("Worker stopped",
		"last_request_id", comp.LastRequestID(),
		"messages_per_second", flow.MessagesPerSecond,
		"error_rate", flow.ErrorRate)
	return nil
}

// connect dials NATS, retrying while the server is not reachable yet.
func connect(ctx context.Context, client *natsclient.Client, timeout time.Duration, logger *slog.Logger) error {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	policy := retry.Startup()
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn("NATS not reachable, retrying",
			"url", client.URL(), "attempt", attempt, "delay", delay, "error", err)
	}
	return retry.Do(ctx, policy, func(ctx context.Context) error {
		connectCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return client.Connect(connectCtx)
	})
}

func newMonitor(
	cfg *config.Config,
	comp component.Discoverable,
	client *natsclient.Client,
	sources, targets content.Handler,
) *health.Monitor {
	monitor := health.NewMonitor(cfg.Health.CheckTimeout.Std())
	monitor.Register("component", func(context.Context) health.Status {
		return health.FromComponentHealth(comp.Meta().Name, comp.Health())
	})
	monitor.Register("nats", func(context.Context) health.Status {
		if client.IsHealthy() {
			return health.NewHealthy("nats", "Connected to "+client.URL())
		}
		return health.NewUnhealthy("nats", "Connection "+client.Status().String())
	})
	monitor.Register("sources", handlerCheck("sources", sources))
	if targets != nil {
		monitor.Register("targets", handlerCheck("targets", targets))
	}
	return monitor
}

func handlerCheck(name string, h content.Handler) health.Check {
	return func(ctx context.Context) health.Status {
		if h.IsAvailable(ctx) {
			return health.NewHealthy(name, "Content handlers available")
		}
		return health.NewDegraded(name, "No content handler available")
	}
}

// startServers starts the metrics and health listeners. Equal ports share
// one listener; port 0 disables a listener.
func startServers(cfg *config.Config, registry *metric.MetricsRegistry, monitor *health.Monitor, logger *slog.Logger) ([]*metric.Server, error) {
	healthFunc := func() (bool, any) {
		st := monitor.Evaluate(context.Background(), cfg.Component.Name)
		return !st.IsUnhealthy(), st
	}

	withLogger := metric.WithServerLogger(logger)
	var servers []*metric.Server
	switch {
	case cfg.Metrics.Port > 0 && cfg.Metrics.Port == cfg.Health.Port:
		servers = append(servers, metric.NewServer(cfg.Metrics.Port, registry, healthFunc, withLogger))
	default:
		if cfg.Metrics.Port > 0 {
			servers = append(servers, metric.NewServer(cfg.Metrics.Port, registry, nil, withLogger))
		}
		if cfg.Health.Port > 0 {
			servers = append(servers, metric.NewServer(cfg.Health.Port, registry, healthFunc, withLogger))
		}
	}

	for i, s := range servers {
		if err := s.Start(); err != nil {
			stopServers(servers[:i], logger)
			return nil, fmt.Errorf("start HTTP server: %w", err)
		}
		logger.Info("HTTP server listening", "addr", s.Addr())
	}
	return servers, nil
}

func stopServers(servers []*metric.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, s := range servers {
		if err := s.Stop(ctx); err != nil {
			logger.Warn("HTTP server stop failed", "addr", s.Addr(), "error", err)
		}
	}
}
