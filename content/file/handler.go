// Package file provides a content handler backed by a local directory.
package file

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/Alfresco/gytheio-sub001/content"
	"github.com/Alfresco/gytheio-sub001/errors"
)

// Scheme is the URI scheme produced and consumed by Handler.
const Scheme = "file"

// Handler reads and writes references under a single root directory.
// References are "file:" URIs with absolute paths.
type Handler struct {
	root string
	temp bool
}

var _ content.Handler = (*Handler)(nil)

// New creates a handler rooted at dir. The directory is created if missing.
func New(dir string) (*Handler, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "FileHandler", "New", "root directory")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.WrapInvalid(err, "FileHandler", "New", "resolve root directory")
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, errors.IO(err, "FileHandler", "New", "create root directory")
	}
	return &Handler{root: filepath.Clean(abs)}, nil
}

// NewTemp creates a handler rooted in a fresh directory below the OS temp
// directory. The directory name starts with prefix.
func NewTemp(prefix string) (*Handler, error) {
	if prefix == "" {
		prefix = "gytheio"
	}
	dir, err := os.MkdirTemp("", prefix+"-")
	if err != nil {
		return nil, errors.IO(err, "FileHandler", "NewTemp", "create temp directory")
	}
	h, err := New(dir)
	if err != nil {
		return nil, err
	}
	h.temp = true
	return h, nil
}

// Root returns the absolute root directory.
func (h *Handler) Root() string {
	return h.root
}

// IsTemp reports whether the handler was created by NewTemp.
func (h *Handler) IsTemp() bool {
	return h.temp
}

// URIFor builds the reference URI of a local path.
func URIFor(path string) string {
	return (&url.URL{Scheme: Scheme, Path: filepath.ToSlash(path)}).String()
}

// PathFor extracts the local path of a "file:" URI.
func PathFor(uri string) (string, bool) {
	u, err := url.Parse(uri)
	if err != nil || !strings.EqualFold(u.Scheme, Scheme) {
		return "", false
	}
	p := u.Path
	if p == "" {
		p = u.Opaque
	}
	if p == "" {
		return "", false
	}
	return filepath.Clean(filepath.FromSlash(p)), true
}

// IsSupported reports whether ref is a "file:" URI below the root.
func (h *Handler) IsSupported(ref content.Reference) bool {
	_, ok := h.resolve(ref)
	return ok
}

func (h *Handler) resolve(ref content.Reference) (string, bool) {
	p, ok := PathFor(ref.URI())
	if !ok || !filepath.IsAbs(p) {
		return "", false
	}
	rel, err := filepath.Rel(h.root, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return p, true
}

func (h *Handler) mustResolve(ref content.Reference, method string) (string, error) {
	p, ok := h.resolve(ref)
	if !ok {
		return "", errors.UnsupportedReference("FileHandler", method, ref.URI())
	}
	return p, nil
}

// CreateContentReference allocates an empty file whose name keeps the
// prefix and suffix of name.
func (h *Handler) CreateContentReference(_ context.Context, name, mediaType string) (content.Reference, error) {
	prefix, suffix := content.SplitName(name)
	f, err := os.CreateTemp(h.root, sanitize(prefix)+"-*"+sanitize(suffix))
	if err != nil {
		return content.Reference{}, errors.IO(err, "FileHandler", "CreateContentReference", "allocate file")
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		return content.Reference{}, errors.IO(err, "FileHandler", "CreateContentReference", "close file")
	}
	return content.NewReference(URIFor(path), mediaType), nil
}

// GetFile returns the local path of ref. The file must exist.
func (h *Handler) GetFile(_ context.Context, ref content.Reference) (string, error) {
	p, err := h.mustResolve(ref, "GetFile")
	if err != nil {
		return "", err
	}
	info, err := os.Stat(p)
	if err != nil {
		return "", errors.IO(err, "FileHandler", "GetFile", "stat file")
	}
	if info.IsDir() {
		return "", errors.IO(fmt.Errorf("%s is a directory", p), "FileHandler", "GetFile", "stat file")
	}
	return p, nil
}

// GetInputStream opens ref for reading.
func (h *Handler) GetInputStream(_ context.Context, ref content.Reference) (io.ReadCloser, error) {
	p, err := h.mustResolve(ref, "GetInputStream")
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, errors.IO(err, "FileHandler", "GetInputStream", "open file")
	}
	return f, nil
}

// PutFile copies the file at path into ref.
func (h *Handler) PutFile(ctx context.Context, path string, ref content.Reference) (content.Reference, error) {
	if _, err := h.mustResolve(ref, "PutFile"); err != nil {
		return ref, err
	}
	src, err := os.Open(path)
	if err != nil {
		return ref, errors.IO(err, "FileHandler", "PutFile", "open source file")
	}
	defer src.Close()
	return h.PutInputStream(ctx, src, ref)
}

// PutInputStream writes r to ref, replacing any previous content. The write
// goes to a sibling temp file first and is renamed into place.
func (h *Handler) PutInputStream(_ context.Context, r io.Reader, ref content.Reference) (content.Reference, error) {
	p, err := h.mustResolve(ref, "PutInputStream")
	if err != nil {
		return ref, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return ref, errors.IO(err, "FileHandler", "PutInputStream", "create parent directory")
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".put-*")
	if err != nil {
		return ref, errors.IO(err, "FileHandler", "PutInputStream", "create staging file")
	}
	written, copyErr := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmp.Name())
		return ref, errors.IO(stderrors.Join(copyErr, closeErr), "FileHandler", "PutInputStream", "write content")
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		_ = os.Remove(tmp.Name())
		return ref, errors.IO(err, "FileHandler", "PutInputStream", "rename staging file")
	}
	return ref.WithSize(written), nil
}

// Delete removes the file of ref. Missing files are not an error.
func (h *Handler) Delete(_ context.Context, ref content.Reference) error {
	p, err := h.mustResolve(ref, "Delete")
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return errors.IO(err, "FileHandler", "Delete", "remove file")
	}
	return nil
}

// IsAvailable reports whether the root directory exists and is a directory.
func (h *Handler) IsAvailable(_ context.Context) bool {
	info, err := os.Stat(h.root)
	return err == nil && info.IsDir()
}

// Cleanup removes the root directory of a temp handler.
func (h *Handler) Cleanup() error {
	if !h.temp {
		return nil
	}
	if err := os.RemoveAll(h.root); err != nil {
		return errors.IO(err, "FileHandler", "Cleanup", "remove temp directory")
	}
	return nil
}

// sanitize keeps a generated file name on a single path segment.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '*':
			return '_'
		}
		return r
	}, s)
}
