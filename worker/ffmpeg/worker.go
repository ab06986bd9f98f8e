// Package ffmpeg implements a transform worker that runs the ffmpeg
// command-line encoder.
package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Alfresco/gytheio-sub001/content"
	"github.com/Alfresco/gytheio-sub001/errors"
	"github.com/Alfresco/gytheio-sub001/message"
	"github.com/Alfresco/gytheio-sub001/worker"
)

// Result detail keys.
const (
	DetailDuration = "duration" // seconds of media encoded, when known
	DetailSize     = "size"
	DetailElapsed  = "elapsed"
)

// Option configures a Worker.
type Option func(*Worker)

// WithBinary overrides the ffmpeg binary.
func WithBinary(binary string) Option {
	return func(w *Worker) {
		if binary != "" {
			w.ffmpeg = binary
		}
	}
}

// WithProbeBinary overrides the ffprobe binary.
func WithProbeBinary(binary string) Option {
	return func(w *Worker) {
		if binary != "" {
			w.ffprobe = binary
		}
	}
}

// WithWorkDir sets where encoder output is spooled before upload.
func WithWorkDir(dir string) Option {
	return func(w *Worker) {
		w.workDir = dir
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// Worker transforms the first source into every target with ffmpeg.
type Worker struct {
	sources content.Handler
	targets content.Handler
	ffmpeg  string
	ffprobe string
	workDir string
	logger  *slog.Logger
}

var _ worker.TransformWorker = (*Worker)(nil)

// New creates a worker reading through sources and writing through targets.
func New(sources, targets content.Handler, opts ...Option) *Worker {
	w := &Worker{
		sources: sources,
		targets: targets,
		ffmpeg:  "ffmpeg",
		ffprobe: "ffprobe",
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("worker", "ffmpeg")
	return w
}

// Transform encodes sources[0] once per target. Progress runs from 0 to 1
// across all targets. Each target gets one result: its written reference,
// or the target with the error it failed with. An error is returned only
// when the request is unusable or every target failed.
func (w *Worker) Transform(ctx context.Context, sources, targets []content.Reference, options *message.Options, progress worker.ProgressFunc) ([]message.Result, error) {
	if len(sources) == 0 || len(targets) == 0 {
		return nil, errors.TransformFailure(fmt.Errorf("no source or target"), "FFmpegWorker", "Transform", "validate references")
	}
	if progress == nil {
		progress = func(float64) {}
	}
	if len(sources) > 1 {
		w.logger.Warn("Ignoring extra sources", "count", len(sources)-1)
	}

	src := sources[0]
	if !w.sources.IsSupported(src) {
		return nil, errors.UnsupportedReference("FFmpegWorker", "Transform", src.URI())
	}
	if !slices.ContainsFunc(targets, w.targets.IsSupported) {
		return nil, errors.UnsupportedReference("FFmpegWorker", "Transform", targets[0].URI())
	}

	input, err := w.sources.GetFile(ctx, src)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := content.ReleaseFile(w.sources, src, input); err != nil {
			w.logger.Warn("Failed to release source file", "path", input, "error", err)
		}
	}()

	total := w.expectedDuration(ctx, input, options)

	results := make([]message.Result, 0, len(targets))
	var firstErr error
	failed := 0
	for i, target := range targets {
		base, share := float64(i)/float64(len(targets)), 1/float64(len(targets))

		var result message.Result
		if w.targets.IsSupported(target) {
			result, err = w.encode(ctx, input, target, options, total, func(p float64) {
				progress(base + p*share)
			})
		} else {
			err = errors.UnsupportedReference("FFmpegWorker", "Transform", target.URI())
		}
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			failed++
			w.logger.Warn("Target failed", "target", target.URI(), "error", err)
			result = message.Result{
				ContentReference: target,
				Details: map[string]string{
					worker.DetailError:     err.Error(),
					worker.DetailErrorKind: errors.Kind(err),
				},
			}
		}
		results = append(results, result)
	}
	if failed == len(targets) {
		return nil, firstErr
	}
	progress(1)
	return results, nil
}

// expectedDuration is the output length used to turn encoder timestamps
// into progress. Zero disables intermediate progress.
func (w *Worker) expectedDuration(ctx context.Context, input string, options *message.Options) time.Duration {
	probe, err := Probe(ctx, w.ffprobe, input)
	if err != nil {
		w.logger.Warn("Probe failed, progress limited to completion", "input", input, "error", err)
		return 0
	}

	seconds := probe.DurationSeconds()
	if temporal, ok := message.Lookup[message.TemporalOptions](options); ok {
		seconds -= temporal.OffsetSeconds
		if temporal.DurationSeconds > 0 && temporal.DurationSeconds < seconds {
			seconds = temporal.DurationSeconds
		}
	}
	if image, ok := message.Lookup[message.ImageOptions](options); ok && image.SingleFrame {
		return 0
	}
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

func (w *Worker) encode(ctx context.Context, input string, target content.Reference, options *message.Options, total time.Duration, progress worker.ProgressFunc) (message.Result, error) {
	dir, err := os.MkdirTemp(w.workDir, "ffmpeg-")
	if err != nil {
		return message.Result{}, errors.IO(err, "FFmpegWorker", "encode", "create work directory")
	}
	defer os.RemoveAll(dir)

	output := filepath.Join(dir, "output"+outputExtension(target))
	args := BuildArgs(input, output, options)
	w.logger.Debug("Running ffmpeg", "binary", w.ffmpeg, "args", args)

	started := time.Now()
	if err := w.run(ctx, args, total, progress); err != nil {
		return message.Result{}, err
	}

	info, err := os.Stat(output)
	if err != nil {
		return message.Result{}, errors.TransformFailure(err, "FFmpegWorker", "encode", "locate encoder output")
	}

	ref, err := w.targets.PutFile(ctx, output, target)
	if err != nil {
		return message.Result{}, err
	}

	details := map[string]string{
		DetailSize:    strconv.FormatInt(info.Size(), 10),
		DetailElapsed: formatSeconds(time.Since(started).Seconds()),
	}
	if total > 0 {
		details[DetailDuration] = formatSeconds(total.Seconds())
	}
	return message.Result{ContentReference: ref, Details: details}, nil
}

func (w *Worker) run(ctx context.Context, args []string, total time.Duration, progress worker.ProgressFunc) error {
	cmd := commandContext(ctx, w.ffmpeg, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.TransformFailure(err, "FFmpegWorker", "run", "stdout pipe")
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return errors.TransformFailure(err, "FFmpegWorker", "run", "start ffmpeg")
	}

	parser := progressParser{total: total}
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if p, ok := parser.parse(scanner.Text()); ok {
			progress(p)
		}
	}
	scanErr := scanner.Err()

	if err := cmd.Wait(); err != nil {
		return errors.TransformFailure(
			fmt.Errorf("%w: %s", err, tail(stderr.String(), 512)), "FFmpegWorker", "run", "ffmpeg exit")
	}
	if scanErr != nil {
		return errors.TransformFailure(scanErr, "FFmpegWorker", "run", "read progress")
	}
	return nil
}

// outputExtension picks the container extension from the target URI, or
// from its media type when the URI has none.
func outputExtension(target content.Reference) string {
	if ext := path.Ext(target.URI()); ext != "" && !strings.ContainsAny(ext, "/?#") {
		return ext
	}
	if exts, err := mime.ExtensionsByType(target.MediaType()); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
