package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alfresco/gytheio-sub001/config"
	"github.com/Alfresco/gytheio-sub001/content"
	"github.com/Alfresco/gytheio-sub001/content/file"
	"github.com/Alfresco/gytheio-sub001/errors"
	"github.com/Alfresco/gytheio-sub001/message"
	"github.com/Alfresco/gytheio-sub001/metric"
	"github.com/Alfresco/gytheio-sub001/natsclient"
	"github.com/Alfresco/gytheio-sub001/worker"
)

const workerYAML = `
component:
  name: hasher
  request_subject: gytheio.hash.requests
  reply_subject: gytheio.hash.replies
worker:
  type: hash
handlers:
  source:
    - type: temp
metrics:
  port: 0
health:
  port: 0
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.yaml")
	require.NoError(t, os.WriteFile(path, []byte(workerYAML), 0o600))
	return path
}

func TestParseFlags(t *testing.T) {
	var stderr bytes.Buffer
	cli, err := parseFlags([]string{"-c", "worker.json", "--debug", "--log-format=text", "--validate"}, &stderr)
	require.NoError(t, err)
	assert.Equal(t, "worker.json", cli.ConfigPath)
	assert.Equal(t, "debug", cli.LogLevel)
	assert.Equal(t, "text", cli.LogFormat)
	assert.True(t, cli.Validate)

	_, err = parseFlags([]string{"--no-such-flag"}, &stderr)
	assert.Error(t, err)
}

func TestValidateFlags(t *testing.T) {
	path := writeConfig(t)

	assert.NoError(t, validateFlags(&CLIConfig{ConfigPath: path}))
	assert.NoError(t, validateFlags(&CLIConfig{ShowVersion: true}))
	assert.ErrorContains(t, validateFlags(&CLIConfig{ConfigPath: path + ".missing"}), "not found")
	assert.ErrorContains(t, validateFlags(&CLIConfig{ConfigPath: path, LogLevel: "trace"}), "log level")
	assert.ErrorContains(t, validateFlags(&CLIConfig{ConfigPath: path, LogFormat: "xml"}), "log format")
}

func TestRun_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"--version"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), appName+" version "+Version)
}

func TestRun_Help(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"--help"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "--config")
}

func TestRun_ValidateOnly(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"--config", writeConfig(t), "--validate"}, &stdout, &stderr)
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &line))
	assert.Equal(t, "Configuration is valid", line["msg"])
	assert.Equal(t, "hasher", line["worker"])
}

func TestSetupLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(&buf, "warn", "text", "hasher")
	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=shown")
	assert.Contains(t, out, "service="+appName)
}

func TestBuildHandlers(t *testing.T) {
	logger := setupLogger(&bytes.Buffer{}, "error", "json", "test")
	root := t.TempDir()

	set, err := buildHandlers(context.Background(), []config.HandlerConfig{
		{Type: config.HandlerFile, Root: root},
		{Type: config.HandlerTemp, Prefix: "gytheio"},
	}, nil, metric.NewMetricsRegistry(), logger)
	require.NoError(t, err)
	require.Equal(t, 2, set.registry.Len())
	require.Len(t, set.cleanup, 2)

	temp := set.registry.Handlers()[1].(*file.Handler)
	assert.True(t, temp.IsTemp())
	assert.DirExists(t, temp.Root())

	ref, err := set.registry.CreateContentReference(context.Background(), "in.txt", "text/plain")
	require.NoError(t, err)
	assert.True(t, set.registry.IsSupported(ref))

	set.close(logger)
	assert.NoDirExists(t, temp.Root())
	assert.DirExists(t, root, "non-temp roots are kept")
}

func TestBuildHandlers_ObjectStoreNeedsConnection(t *testing.T) {
	logger := setupLogger(&bytes.Buffer{}, "error", "json", "test")

	_, err := buildHandlers(context.Background(), []config.HandlerConfig{
		{Type: config.HandlerTemp},
		{Type: config.HandlerObjectStore, Bucket: "media"},
	}, nil, metric.NewMetricsRegistry(), logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler 1 (objectstore)")
	assert.True(t, errors.IsInvalid(err))
}

func TestBuildProcessor(t *testing.T) {
	logger := setupLogger(&bytes.Buffer{}, "error", "json", "test")
	sources := content.NewRegistry()

	p, err := buildProcessor(config.WorkerConfig{Type: config.WorkerHash}, sources, nil, logger)
	require.NoError(t, err)
	assert.Equal(t, message.KindHashRequest, p.RequestKind())
	assert.IsType(t, &worker.HashProcessor{}, p)

	_, err = buildProcessor(config.WorkerConfig{Type: config.WorkerFFmpeg}, sources, nil, logger)
	assert.True(t, errors.IsInvalid(err))

	cfg := config.Default().Worker
	cfg.Type = config.WorkerFFmpeg
	p, err = buildProcessor(cfg, sources, content.NewRegistry(), logger)
	require.NoError(t, err)
	assert.Equal(t, message.KindTransformationRequest, p.RequestKind())

	_, err = buildProcessor(config.WorkerConfig{Type: "ocr"}, sources, nil, logger)
	assert.True(t, errors.IsInvalid(err))
}

func TestBuildTransport_UnknownMode(t *testing.T) {
	_, err := buildTransport(context.Background(), config.ComponentConfig{Mode: "kafka"}, nil)
	assert.True(t, errors.IsInvalid(err))
}

func TestClientOptions(t *testing.T) {
	cfg := config.Default().NATS
	cfg.Username, cfg.Password = "worker", "secret"
	cfg.TLS = config.NATSTLSConfig{Enabled: true, CAFile: "ca.pem"}

	logger := setupLogger(&bytes.Buffer{}, "error", "json", "test")
	opts := clientOptions(cfg, "hasher", logger, metric.NewMetrics())
	client, err := natsclient.NewClient(cfg.URL(), opts...)
	require.NoError(t, err)
	assert.Equal(t, "nats://localhost:4222", client.URL())
}

func TestComponentConfig(t *testing.T) {
	cfg := config.Default().Component
	cfg.Name = "hasher"
	cfg.RequestSubject = "gytheio.hash.requests"
	cfg.ReplySubject = "gytheio.hash.replies"

	cc := componentConfig(cfg)
	assert.Equal(t, "hasher", cc.Name)
	assert.Equal(t, "gytheio.hash.requests", cc.RequestAddress)
	assert.Equal(t, "gytheio.hash.replies", cc.ReplyAddress)
	assert.Equal(t, cfg.PublishTimeout.Std(), cc.PublishTimeout)
	assert.Equal(t, time.Second, cc.ProgressInterval)
	require.NoError(t, cc.Validate())
}

func TestHandlerCheck(t *testing.T) {
	ctx := context.Background()

	empty := handlerCheck("sources", content.NewRegistry())(ctx)
	assert.True(t, empty.IsDegraded())

	h, err := file.New(t.TempDir())
	require.NoError(t, err)
	ok := handlerCheck("sources", content.NewRegistry(h))(ctx)
	assert.True(t, ok.IsHealthy())
}
