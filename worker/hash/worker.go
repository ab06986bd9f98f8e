// Package hash implements a digest worker over content handlers.
package hash

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	gohash "hash"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/Alfresco/gytheio-sub001/content"
	"github.com/Alfresco/gytheio-sub001/errors"
	"github.com/Alfresco/gytheio-sub001/worker"
)

// Supported algorithm names. Lookups ignore case and dashes, so "sha256"
// selects SHA-256.
const (
	MD5    = "MD5"
	SHA1   = "SHA-1"
	SHA256 = "SHA-256"
	SHA384 = "SHA-384"
	SHA512 = "SHA-512"
	BLAKE3 = "BLAKE3"
)

var algorithms = map[string]func() gohash.Hash{
	normalize(MD5):    md5.New,
	normalize(SHA1):   sha1.New,
	normalize(SHA256): sha256.New,
	normalize(SHA384): sha512.New384,
	normalize(SHA512): sha512.New,
	normalize(BLAKE3): func() gohash.Hash { return blake3.New() },
}

func normalize(algorithm string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(algorithm), "-", ""))
}

// Algorithms lists the supported algorithm names.
func Algorithms() []string {
	names := []string{MD5, SHA1, SHA256, SHA384, SHA512, BLAKE3}
	sort.Strings(names)
	return names
}

// Worker computes digests of content read through a handler.
type Worker struct {
	source content.Handler
	logger *slog.Logger
}

var _ worker.HashWorker = (*Worker)(nil)

// New creates a digest worker reading sources through source, typically a
// content.Registry.
func New(source content.Handler, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{source: source, logger: logger.With("worker", "hash")}
}

// IsAlgorithmSupported reports whether algorithm can be computed.
func (w *Worker) IsAlgorithmSupported(algorithm string) bool {
	_, ok := algorithms[normalize(algorithm)]
	return ok
}

// GenerateHashes digests every source independently. Per-reference failures
// are collected into a worker.ReferenceErrors.
func (w *Worker) GenerateHashes(ctx context.Context, sources []content.Reference, algorithm string) (map[string]string, error) {
	newHash, ok := algorithms[normalize(algorithm)]
	if !ok {
		return nil, errors.AlgorithmUnsupported("HashWorker", "GenerateHashes", algorithm)
	}

	digests := make(map[string]string, len(sources))
	failures := worker.ReferenceErrors{}
	for _, src := range sources {
		digest, err := w.digest(ctx, src, newHash())
		if err != nil {
			w.logger.Debug("Digest failed", "uri", src.URI(), "algorithm", algorithm, "error", err)
			failures[src.URI()] = err
			continue
		}
		digests[src.URI()] = digest
	}

	if len(failures) > 0 {
		return digests, failures
	}
	return digests, nil
}

func (w *Worker) digest(ctx context.Context, ref content.Reference, h gohash.Hash) (string, error) {
	if !w.source.IsSupported(ref) {
		return "", errors.UnsupportedReference("HashWorker", "digest", ref.URI())
	}
	rc, err := w.source.GetInputStream(ctx, ref)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	if _, err := io.Copy(h, &contextReader{ctx: ctx, r: rc}); err != nil {
		return "", errors.IO(err, "HashWorker", "digest", fmt.Sprintf("read %s", ref.URI()))
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// contextReader stops a long read once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
