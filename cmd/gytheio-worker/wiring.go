package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/Alfresco/gytheio-sub001/component"
	"github.com/Alfresco/gytheio-sub001/config"
	"github.com/Alfresco/gytheio-sub001/content"
	"github.com/Alfresco/gytheio-sub001/content/file"
	"github.com/Alfresco/gytheio-sub001/content/objectstore"
	"github.com/Alfresco/gytheio-sub001/errors"
	"github.com/Alfresco/gytheio-sub001/metric"
	"github.com/Alfresco/gytheio-sub001/natsclient"
	"github.com/Alfresco/gytheio-sub001/transport"
	"github.com/Alfresco/gytheio-sub001/transport/natstransport"
	"github.com/Alfresco/gytheio-sub001/worker"
	"github.com/Alfresco/gytheio-sub001/worker/ffmpeg"
	"github.com/Alfresco/gytheio-sub001/worker/hash"
)

// cleaner is implemented by handlers that own local files.
type cleaner interface {
	Cleanup() error
}

// handlerSet is one configured handler list plus whatever must be cleaned
// up on shutdown.
type handlerSet struct {
	registry *content.Registry
	cleanup  []cleaner
}

func (s *handlerSet) close(logger *slog.Logger) {
	for _, c := range s.cleanup {
		if err := c.Cleanup(); err != nil {
			logger.Warn("Handler cleanup failed", "error", err)
		}
	}
}

// buildHandlers creates the handlers of cfgs in order. The NATS client is
// only needed for objectstore entries.
func buildHandlers(
	ctx context.Context,
	cfgs []config.HandlerConfig,
	client *natsclient.Client,
	registry *metric.MetricsRegistry,
	logger *slog.Logger,
) (*handlerSet, error) {
	set := &handlerSet{registry: content.NewRegistry()}
	for i, hc := range cfgs {
		h, err := buildHandler(ctx, hc, client, registry, logger)
		if err != nil {
			set.close(logger)
			return nil, fmt.Errorf("handler %d (%s): %w", i, hc.Type, err)
		}
		set.registry.Register(h)
		if c, ok := h.(cleaner); ok {
			set.cleanup = append(set.cleanup, c)
		}
	}
	return set, nil
}

func buildHandler(
	ctx context.Context,
	hc config.HandlerConfig,
	client *natsclient.Client,
	registry *metric.MetricsRegistry,
	logger *slog.Logger,
) (content.Handler, error) {
	switch hc.Type {
	case config.HandlerFile:
		return file.New(hc.Root)
	case config.HandlerTemp:
		return file.NewTemp(hc.Prefix)
	case config.HandlerObjectStore:
		if client == nil {
			return nil, errors.WrapInvalid(errors.ErrNoConnection, "Worker", "buildHandler", "open object store "+hc.Bucket)
		}
		opts := []objectstore.Option{
			objectstore.WithMetrics(registry),
			objectstore.WithLogger(logger),
		}
		if hc.SpoolDir != "" {
			opts = append(opts, objectstore.WithSpoolDir(hc.SpoolDir))
		}
		return objectstore.Open(ctx, client, hc.Bucket, opts...)
	default:
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Worker", "buildHandler", "unknown handler type "+hc.Type)
	}
}

// buildProcessor creates the worker selected by cfg and the processor
// adapting it to the component.
func buildProcessor(cfg config.WorkerConfig, sources, targets content.Handler, logger *slog.Logger) (component.Processor, error) {
	switch cfg.Type {
	case config.WorkerHash:
		return worker.NewHashProcessor(hash.New(sources, logger)), nil
	case config.WorkerFFmpeg:
		if targets == nil {
			return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Worker", "buildProcessor", "target handlers")
		}
		opts := []ffmpeg.Option{
			ffmpeg.WithBinary(cfg.FFmpeg.Binary),
			ffmpeg.WithProbeBinary(cfg.FFmpeg.ProbeBinary),
			ffmpeg.WithLogger(logger),
		}
		if cfg.FFmpeg.WorkDir != "" {
			opts = append(opts, ffmpeg.WithWorkDir(cfg.FFmpeg.WorkDir))
		}
		w := ffmpeg.New(sources, targets, opts...)
		return worker.NewTransformProcessor(w, cfg.Defaults.Options()), nil
	default:
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Worker", "buildProcessor", "unknown worker type "+cfg.Type)
	}
}

// buildTransport selects the NATS transport for the configured mode.
func buildTransport(ctx context.Context, cfg config.ComponentConfig, client *natsclient.Client) (transport.Transport, error) {
	switch cfg.Mode {
	case config.ModeJetStream:
		return natstransport.NewJetStream(ctx, client, natstransport.StreamConfig{
			Name:          cfg.Stream,
			Subjects:      []string{cfg.RequestSubject},
			Durable:       cfg.Durable,
			AckWait:       cfg.AckWait.Std(),
			MaxAckPending: cfg.MaxAckPending,
		})
	case config.ModeCore, "":
		return natstransport.NewCore(client, cfg.QueueGroup), nil
	default:
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Worker", "buildTransport", "unknown mode "+cfg.Mode)
	}
}

// clientOptions translates the NATS section into client options.
func clientOptions(cfg config.NATSConfig, name string, logger *slog.Logger, metrics *metric.Metrics) []natsclient.ClientOption {
	clientName := cfg.Name
	if clientName == "" {
		clientName = name
	}
	opts := []natsclient.ClientOption{
		natsclient.WithName(clientName),
		natsclient.WithLogger(natsclient.NewSlogLogger(logger)),
		natsclient.WithMaxReconnects(cfg.MaxReconnects),
	}
	if d := cfg.ReconnectWait.Std(); d > 0 {
		opts = append(opts, natsclient.WithReconnectWait(d))
	}
	if d := cfg.Timeout.Std(); d > 0 {
		opts = append(opts, natsclient.WithTimeout(d))
	}
	if cfg.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.Token))
	}
	if cfg.TLS.Enabled {
		opts = append(opts, natsclient.WithTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.CAFile))
	}
	if metrics != nil {
		var connectedOnce atomic.Bool
		opts = append(opts, natsclient.WithHealthChangeCallback(func(healthy bool) {
			if !healthy {
				metrics.NATSConnected.Set(0)
				return
			}
			metrics.NATSConnected.Set(1)
			if connectedOnce.Swap(true) {
				metrics.NATSReconnects.Inc()
			}
		}))
	}
	return opts
}

func componentConfig(cfg config.ComponentConfig) component.Config {
	return component.Config{
		Name:             cfg.Name,
		RequestAddress:   cfg.RequestSubject,
		ReplyAddress:     cfg.ReplySubject,
		PublishTimeout:   cfg.PublishTimeout.Std(),
		ProgressInterval: cfg.ProgressInterval.Std(),
	}
}
