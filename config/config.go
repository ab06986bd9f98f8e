package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/Alfresco/gytheio-sub001/message"
)

// Transport modes
const (
	ModeCore      = "core"      // core NATS subjects with a queue group
	ModeJetStream = "jetstream" // durable JetStream pull consumer
)

// Worker types
const (
	WorkerHash   = "hash"
	WorkerFFmpeg = "ffmpeg"
)

// Content handler types
const (
	HandlerFile        = "file"
	HandlerTemp        = "temp"
	HandlerObjectStore = "objectstore"
)

// Config represents the complete worker process configuration
type Config struct {
	NATS      NATSConfig      `json:"nats"`
	Component ComponentConfig `json:"component"`
	Worker    WorkerConfig    `json:"worker"`
	Handlers  HandlersConfig  `json:"handlers"`
	Metrics   MetricsConfig   `json:"metrics"`
	Health    HealthConfig    `json:"health"`
	Log       LogConfig       `json:"log"`
}

// NATSConfig defines NATS connection settings
type NATSConfig struct {
	URLs          []string      `json:"urls,omitempty"`
	Name          string        `json:"name,omitempty"`
	MaxReconnects int           `json:"max_reconnects,omitempty"`
	ReconnectWait Duration      `json:"reconnect_wait,omitempty"`
	Timeout       Duration      `json:"timeout,omitempty"`
	Username      string        `json:"username,omitempty"`
	Password      string        `json:"password,omitempty"`
	Token         string        `json:"token,omitempty"`
	TLS           NATSTLSConfig `json:"tls,omitempty"`
}

// NATSTLSConfig for secure NATS connections
type NATSTLSConfig struct {
	Enabled  bool   `json:"enabled"`
	CertFile string `json:"cert_file,omitempty"`
	KeyFile  string `json:"key_file,omitempty"`
	CAFile   string `json:"ca_file,omitempty"`
}

// URL returns the comma-joined server list accepted by nats.Connect.
func (n NATSConfig) URL() string {
	return strings.Join(n.URLs, ",")
}

// ComponentConfig binds the component to its subjects
type ComponentConfig struct {
	Name             string   `json:"name"`
	RequestSubject   string   `json:"request_subject"`
	ReplySubject     string   `json:"reply_subject,omitempty"`     // default when a request has no replyTo
	QueueGroup       string   `json:"queue_group,omitempty"`
	Mode             string   `json:"mode,omitempty"`
	Stream           string   `json:"stream,omitempty"`
	Durable          string   `json:"durable,omitempty"`
	AckWait          Duration `json:"ack_wait,omitempty"`          // jetstream redelivery deadline, extended while a request runs
	MaxAckPending    int      `json:"max_ack_pending,omitempty"`   // requests in flight across the pool, 0 = server default
	PublishTimeout   Duration `json:"publish_timeout,omitempty"`
	StopTimeout      Duration `json:"stop_timeout,omitempty"`
	ProgressInterval Duration `json:"progress_interval,omitempty"` // minimum spacing of IN_PROGRESS replies
}

// WorkerConfig selects the worker implementation
type WorkerConfig struct {
	Type     string         `json:"type"`
	FFmpeg   FFmpegConfig   `json:"ffmpeg,omitempty"`
	Defaults DefaultOptions `json:"defaults,omitempty"`
}

// FFmpegConfig locates the encoder binaries
type FFmpegConfig struct {
	Binary      string `json:"binary,omitempty"`
	ProbeBinary string `json:"probe_binary,omitempty"`
	WorkDir     string `json:"work_dir,omitempty"`
}

// DefaultOptions are transformation options applied beneath every request.
type DefaultOptions struct {
	Temporal *message.TemporalOptions  `json:"temporal,omitempty"`
	Crop     *message.CropOptions      `json:"crop,omitempty"`
	Resize   *message.ResizeOptions    `json:"resize,omitempty"`
	Image    *message.ImageOptions     `json:"image,omitempty"`
	Pages    *message.PageRangeOptions `json:"pages,omitempty"`
}

// Options builds the options bag of the configured defaults.
func (d DefaultOptions) Options() *message.Options {
	opts := message.NewOptions()
	if d.Temporal != nil {
		opts.Set(*d.Temporal)
	}
	if d.Crop != nil {
		opts.Set(*d.Crop)
	}
	if d.Resize != nil {
		opts.Set(*d.Resize)
	}
	if d.Image != nil {
		opts.Set(*d.Image)
	}
	if d.Pages != nil {
		opts.Set(*d.Pages)
	}
	return opts
}

// HandlersConfig lists content handlers in selection order
type HandlersConfig struct {
	Source []HandlerConfig `json:"source"`
	Target []HandlerConfig `json:"target,omitempty"`
}

// HandlerConfig configures one content handler
type HandlerConfig struct {
	Type     string `json:"type"`
	Root     string `json:"root,omitempty"`   // file
	Prefix   string `json:"prefix,omitempty"` // temp
	Bucket   string `json:"bucket,omitempty"` // objectstore
	SpoolDir string `json:"spool_dir,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint. Port 0 disables it.
type MetricsConfig struct {
	Port int `json:"port"`
}

// HealthConfig configures the health endpoint. Port 0 disables it. When
// it equals the metrics port both are served by one listener.
type HealthConfig struct {
	Port         int      `json:"port"`
	CheckTimeout Duration `json:"check_timeout,omitempty"`
}

// LogConfig configures the process logger
type LogConfig struct {
	Level  string `json:"level,omitempty"`
	Format string `json:"format,omitempty"`
}

// Default returns the configuration every loaded file is layered on.
func Default() *Config {
	return &Config{
		NATS: NATSConfig{
			URLs:          []string{"nats://localhost:4222"},
			MaxReconnects: -1,
			ReconnectWait: Duration(2 * time.Second),
			Timeout:       Duration(5 * time.Second),
		},
		Component: ComponentConfig{
			Mode:             ModeCore,
			AckWait:          Duration(30 * time.Second),
			PublishTimeout:   Duration(5 * time.Second),
			StopTimeout:      Duration(30 * time.Second),
			ProgressInterval: Duration(time.Second),
		},
		Worker: WorkerConfig{
			FFmpeg: FFmpegConfig{
				Binary:      "ffmpeg",
				ProbeBinary: "ffprobe",
			},
		},
		Metrics: MetricsConfig{Port: 9090},
		Health:  HealthConfig{Port: 9090, CheckTimeout: Duration(2 * time.Second)},
		Log:     LogConfig{Level: "info", Format: "json"},
	}
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	if len(c.NATS.URLs) == 0 {
		return errors.New("nats.urls is required")
	}

	if c.Component.Name == "" {
		return errors.New("component.name is required")
	}
	if c.Component.RequestSubject == "" {
		return errors.New("component.request_subject is required")
	}
	for field, subject := range map[string]string{
		"component.request_subject": c.Component.RequestSubject,
		"component.reply_subject":   c.Component.ReplySubject,
	} {
		if subject != "" && !isValidSubject(subject) {
			return fmt.Errorf("%s %q is not a valid NATS subject", field, subject)
		}
	}

	switch c.Component.Mode {
	case ModeCore:
	case ModeJetStream:
		if c.Component.Stream == "" {
			return errors.New("component.stream is required in jetstream mode")
		}
	default:
		return fmt.Errorf("component.mode %q must be %q or %q", c.Component.Mode, ModeCore, ModeJetStream)
	}
	if c.Component.AckWait < 0 || c.Component.MaxAckPending < 0 || c.Component.ProgressInterval < 0 {
		return errors.New("component.ack_wait, max_ack_pending and progress_interval must not be negative")
	}

	switch c.Worker.Type {
	case WorkerHash:
	case WorkerFFmpeg:
		if len(c.Handlers.Target) == 0 {
			return errors.New("handlers.target is required for the ffmpeg worker")
		}
	default:
		return fmt.Errorf("worker.type %q must be %q or %q", c.Worker.Type, WorkerHash, WorkerFFmpeg)
	}

	if len(c.Handlers.Source) == 0 {
		return errors.New("handlers.source is required")
	}
	for i, h := range c.Handlers.Source {
		if err := h.Validate(); err != nil {
			return fmt.Errorf("handlers.source[%d]: %w", i, err)
		}
	}
	for i, h := range c.Handlers.Target {
		if err := h.Validate(); err != nil {
			return fmt.Errorf("handlers.target[%d]: %w", i, err)
		}
	}

	if err := validatePort("metrics.port", c.Metrics.Port); err != nil {
		return err
	}
	if err := validatePort("health.port", c.Health.Port); err != nil {
		return err
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("log.format %q must be json or text", c.Log.Format)
	}

	if c.NATS.TLS.Enabled && (c.NATS.TLS.CertFile == "") != (c.NATS.TLS.KeyFile == "") {
		return errors.New("nats.tls.cert_file and nats.tls.key_file must be set together")
	}
	return nil
}

// Validate checks a handler entry
func (h HandlerConfig) Validate() error {
	switch h.Type {
	case HandlerFile:
		if h.Root == "" {
			return errors.New("root is required for file handlers")
		}
	case HandlerTemp:
	case HandlerObjectStore:
		if h.Bucket == "" {
			return errors.New("bucket is required for objectstore handlers")
		}
		if !isValidSubject(h.Bucket) || strings.Contains(h.Bucket, ".") {
			return fmt.Errorf("bucket %q must be alphanumeric with dashes and underscores", h.Bucket)
		}
	default:
		return fmt.Errorf("type %q must be one of file, temp, objectstore", h.Type)
	}
	return nil
}

func validatePort(field string, port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("%s %d out of range", field, port)
	}
	return nil
}

// isValidSubject checks if a string is valid as a NATS subject.
// Valid characters are alphanumeric, dots, dashes, underscores and the
// wildcards * and >.
func isValidSubject(s string) bool {
	if s == "" || strings.HasPrefix(s, ".") || strings.HasSuffix(s, ".") || strings.Contains(s, "..") {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) &&
			r != '-' && r != '_' && r != '.' && r != '*' && r != '>' {
			return false
		}
	}
	return true
}

// String returns a JSON representation of the config with secrets masked
func (c *Config) String() string {
	masked := *c
	if masked.NATS.Password != "" {
		masked.NATS.Password = "***"
	}
	if masked.NATS.Token != "" {
		masked.NATS.Token = "***"
	}
	data, _ := json.MarshalIndent(&masked, "", "  ")
	return string(data)
}
