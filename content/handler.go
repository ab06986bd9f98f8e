package content

import (
	"context"
	"io"
)

// Handler performs create/read/write/delete against the references it
// supports. Callers select a handler by asking IsSupported, never by its
// concrete type.
//
// Implementations must be safe for concurrent use.
type Handler interface {
	// IsSupported reports whether the handler can operate on ref.
	IsSupported(ref Reference) bool

	// CreateContentReference allocates a new backing location whose name
	// keeps the prefix and suffix of name.
	CreateContentReference(ctx context.Context, name, mediaType string) (Reference, error)

	// GetFile returns a local file path holding the payload of ref.
	GetFile(ctx context.Context, ref Reference) (string, error)

	// GetInputStream opens the payload of ref for reading.
	GetInputStream(ctx context.Context, ref Reference) (io.ReadCloser, error)

	// PutFile copies the local file at path into ref and returns ref with
	// its size updated.
	PutFile(ctx context.Context, path string, ref Reference) (Reference, error)

	// PutInputStream copies r into ref and returns ref with its size updated.
	PutInputStream(ctx context.Context, r io.Reader, ref Reference) (Reference, error)

	// Delete removes the payload of ref.
	Delete(ctx context.Context, ref Reference) error

	// IsAvailable probes the backend without side effects.
	IsAvailable(ctx context.Context) bool
}

// FileReleaser is implemented by handlers whose GetFile returns a local
// copy of the payload. ReleaseFile removes that copy.
type FileReleaser interface {
	ReleaseFile(ref Reference, path string) error
}

// ReleaseFile hands a path obtained from h.GetFile back to h. It does
// nothing for handlers whose GetFile returns the backing file itself.
func ReleaseFile(h Handler, ref Reference, path string) error {
	if r, ok := h.(FileReleaser); ok {
		return r.ReleaseFile(ref, path)
	}
	return nil
}
