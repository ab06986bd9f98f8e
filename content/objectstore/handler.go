// Package objectstore provides a content handler backed by a NATS JetStream
// ObjectStore bucket. References are "objectstore://<bucket>/<key>" URIs.
package objectstore

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Alfresco/gytheio-sub001/content"
	"github.com/Alfresco/gytheio-sub001/errors"
	"github.com/Alfresco/gytheio-sub001/metric"
	"github.com/Alfresco/gytheio-sub001/natsclient"
)

// Scheme is the URI scheme produced and consumed by Handler.
const Scheme = "objectstore"

// Bucket is the subset of jetstream.ObjectStore used by Handler.
type Bucket interface {
	Put(ctx context.Context, meta jetstream.ObjectMeta, reader io.Reader) (*jetstream.ObjectInfo, error)
	Get(ctx context.Context, name string, opts ...jetstream.GetObjectOpt) (jetstream.ObjectResult, error)
	Delete(ctx context.Context, name string) error
	Status(ctx context.Context) (jetstream.ObjectStoreStatus, error)
}

var _ Bucket = (jetstream.ObjectStore)(nil)

// Handler stores content as objects in one bucket.
type Handler struct {
	bucket   Bucket
	name     string
	spoolDir string
	ownSpool bool
	metrics  *handlerMetrics
	logger   *slog.Logger
}

var (
	_ content.Handler      = (*Handler)(nil)
	_ content.FileReleaser = (*Handler)(nil)
)

// Option configures a Handler.
type Option func(*handlerOptions)

type handlerOptions struct {
	registry *metric.MetricsRegistry
	spoolDir string
	logger   *slog.Logger
}

// WithMetrics registers operation metrics with registry.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(o *handlerOptions) { o.registry = registry }
}

// WithSpoolDir sets the directory GetFile downloads into.
func WithSpoolDir(dir string) Option {
	return func(o *handlerOptions) { o.spoolDir = dir }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *handlerOptions) { o.logger = logger }
}

// New creates a handler over an open bucket named name.
func New(bucket Bucket, name string, opts ...Option) (*Handler, error) {
	if bucket == nil || name == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "ObjectStoreHandler", "New", "bucket")
	}

	o := handlerOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	h := &Handler{bucket: bucket, name: name, logger: o.logger}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	h.logger = h.logger.With("handler", "objectstore", "bucket", name)

	m, err := newHandlerMetrics(o.registry, name)
	if err != nil {
		return nil, errors.WrapInvalid(err, "ObjectStoreHandler", "New", "register metrics")
	}
	h.metrics = m

	if o.spoolDir != "" {
		if err := os.MkdirAll(o.spoolDir, 0o755); err != nil {
			return nil, errors.IO(err, "ObjectStoreHandler", "New", "create spool directory")
		}
		h.spoolDir = o.spoolDir
	} else {
		dir, err := os.MkdirTemp("", "gytheio-objectstore-")
		if err != nil {
			return nil, errors.IO(err, "ObjectStoreHandler", "New", "create spool directory")
		}
		h.spoolDir = dir
		h.ownSpool = true
	}

	return h, nil
}

// Open opens (creating if needed) the named bucket through client.
func Open(ctx context.Context, client *natsclient.Client, name string, opts ...Option) (*Handler, error) {
	obs, err := client.ObjectStore(ctx, name)
	if err != nil {
		return nil, errors.IO(err, "ObjectStoreHandler", "Open", "open bucket")
	}
	return New(obs, name, opts...)
}

// Bucket returns the bucket name.
func (h *Handler) Bucket() string {
	return h.name
}

// URIFor builds the reference URI of key in bucket.
func URIFor(bucket, key string) string {
	return (&url.URL{Scheme: Scheme, Host: bucket, Path: "/" + key}).String()
}

// ParseURI splits an "objectstore:" URI into bucket and key.
func ParseURI(uri string) (bucket, key string, ok bool) {
	u, err := url.Parse(uri)
	if err != nil || !strings.EqualFold(u.Scheme, Scheme) || u.Host == "" {
		return "", "", false
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", false
	}
	return u.Host, key, true
}

// IsSupported reports whether ref names an object in this bucket.
func (h *Handler) IsSupported(ref content.Reference) bool {
	_, ok := h.resolve(ref)
	return ok
}

func (h *Handler) resolve(ref content.Reference) (string, bool) {
	bucket, key, ok := ParseURI(ref.URI())
	if !ok || bucket != h.name {
		return "", false
	}
	return key, true
}

func (h *Handler) mustResolve(ref content.Reference, method string) (string, error) {
	key, ok := h.resolve(ref)
	if !ok {
		return "", errors.UnsupportedReference("ObjectStoreHandler", method, ref.URI())
	}
	return key, nil
}

// CreateContentReference stores an empty object under a fresh key that
// keeps the prefix and suffix of name.
func (h *Handler) CreateContentReference(ctx context.Context, name, mediaType string) (ref content.Reference, err error) {
	start := time.Now()
	defer func() { h.metrics.observe("create", start, err) }()

	prefix, suffix := content.SplitName(name)
	key := prefix + "-" + uuid.NewString() + suffix

	meta := jetstream.ObjectMeta{Name: key}
	if mediaType != "" {
		meta.Headers = map[string][]string{"Content-Type": {mediaType}}
	}
	if _, err = h.bucket.Put(ctx, meta, strings.NewReader("")); err != nil {
		return content.Reference{}, errors.IO(err, "ObjectStoreHandler", "CreateContentReference", "allocate object")
	}
	return content.NewReference(URIFor(h.name, key), mediaType), nil
}

// GetFile downloads the object into the spool directory and returns the
// local path.
func (h *Handler) GetFile(ctx context.Context, ref content.Reference) (p string, err error) {
	key, err := h.mustResolve(ref, "GetFile")
	if err != nil {
		return "", err
	}
	start := time.Now()
	defer func() { h.metrics.observe("get_file", start, err) }()

	res, err := h.bucket.Get(ctx, key)
	if err != nil {
		return "", errors.IO(err, "ObjectStoreHandler", "GetFile", "get object")
	}
	defer res.Close()

	f, err := os.CreateTemp(h.spoolDir, "*-"+spoolName(key))
	if err != nil {
		return "", errors.IO(err, "ObjectStoreHandler", "GetFile", "create spool file")
	}
	n, copyErr := io.Copy(f, res)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(f.Name())
		return "", errors.IO(stderrors.Join(copyErr, closeErr), "ObjectStoreHandler", "GetFile", "download object")
	}
	h.metrics.transferred("read", n)
	return f.Name(), nil
}

// GetInputStream streams the object.
func (h *Handler) GetInputStream(ctx context.Context, ref content.Reference) (rc io.ReadCloser, err error) {
	key, err := h.mustResolve(ref, "GetInputStream")
	if err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() { h.metrics.observe("get_stream", start, err) }()

	res, err := h.bucket.Get(ctx, key)
	if err != nil {
		return nil, errors.IO(err, "ObjectStoreHandler", "GetInputStream", "get object")
	}
	return &countingReadCloser{ReadCloser: res, done: func(n int64) { h.metrics.transferred("read", n) }}, nil
}

// PutFile uploads the local file at path into ref.
func (h *Handler) PutFile(ctx context.Context, path string, ref content.Reference) (content.Reference, error) {
	if _, err := h.mustResolve(ref, "PutFile"); err != nil {
		return ref, err
	}
	src, err := os.Open(path)
	if err != nil {
		return ref, errors.IO(err, "ObjectStoreHandler", "PutFile", "open source file")
	}
	defer src.Close()
	return h.PutInputStream(ctx, src, ref)
}

// PutInputStream uploads r into ref, replacing the previous object.
func (h *Handler) PutInputStream(ctx context.Context, r io.Reader, ref content.Reference) (_ content.Reference, err error) {
	key, err := h.mustResolve(ref, "PutInputStream")
	if err != nil {
		return ref, err
	}
	start := time.Now()
	defer func() { h.metrics.observe("put", start, err) }()

	meta := jetstream.ObjectMeta{Name: key}
	if mt := ref.MediaType(); mt != "" {
		meta.Headers = map[string][]string{"Content-Type": {mt}}
	}
	info, err := h.bucket.Put(ctx, meta, r)
	if err != nil {
		return ref, errors.IO(err, "ObjectStoreHandler", "PutInputStream", "put object")
	}
	size := int64(info.Size)
	h.metrics.transferred("write", size)
	return ref.WithSize(size), nil
}

// Delete removes the object. Missing objects are not an error.
func (h *Handler) Delete(ctx context.Context, ref content.Reference) (err error) {
	key, err := h.mustResolve(ref, "Delete")
	if err != nil {
		return err
	}
	start := time.Now()
	defer func() { h.metrics.observe("delete", start, err) }()

	if err = h.bucket.Delete(ctx, key); err != nil && !stderrors.Is(err, jetstream.ErrObjectNotFound) {
		return errors.IO(err, "ObjectStoreHandler", "Delete", "delete object")
	}
	return nil
}

// IsAvailable queries the bucket status.
func (h *Handler) IsAvailable(ctx context.Context) bool {
	if _, err := h.bucket.Status(ctx); err != nil {
		h.logger.Debug("Bucket unavailable", "error", err)
		return false
	}
	return true
}

// ReleaseFile removes a file returned by GetFile. Paths outside the spool
// directory are ignored.
func (h *Handler) ReleaseFile(_ content.Reference, path string) error {
	rel, err := filepath.Rel(h.spoolDir, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil
	}
	if err := os.Remove(path); err != nil && !stderrors.Is(err, os.ErrNotExist) {
		return errors.IO(err, "ObjectStoreHandler", "ReleaseFile", "remove spool file")
	}
	return nil
}

// Cleanup removes downloaded spool files. A spool directory passed with
// WithSpoolDir is emptied but kept.
func (h *Handler) Cleanup() error {
	if h.ownSpool {
		if err := os.RemoveAll(h.spoolDir); err != nil {
			return errors.IO(err, "ObjectStoreHandler", "Cleanup", "remove spool directory")
		}
		return nil
	}
	entries, err := os.ReadDir(h.spoolDir)
	if err != nil {
		return errors.IO(err, "ObjectStoreHandler", "Cleanup", "read spool directory")
	}
	var errs []error
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(h.spoolDir, e.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.IO(stderrors.Join(errs...), "ObjectStoreHandler", "Cleanup", "empty spool directory")
	}
	return nil
}

// spoolName keeps the last key segment so tools relying on the file
// extension still see it.
func spoolName(key string) string {
	name := path.Base(key)
	return strings.Map(func(r rune) rune {
		if r == '*' || r == '\\' {
			return '_'
		}
		return r
	}, name)
}

type countingReadCloser struct {
	io.ReadCloser
	n    int64
	done func(int64)
}

func (c *countingReadCloser) Read(p []byte) (int, error) {
	n, err := c.ReadCloser.Read(p)
	c.n += int64(n)
	return n, err
}

func (c *countingReadCloser) Close() error {
	if c.done != nil {
		c.done(c.n)
		c.done = nil
	}
	if err := c.ReadCloser.Close(); err != nil {
		return fmt.Errorf("close object reader: %w", err)
	}
	return nil
}
