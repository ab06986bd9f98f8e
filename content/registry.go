package content

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/Alfresco/gytheio-sub001/errors"
)

// Registry holds handlers in registration order and dispatches each
// operation to the first handler that supports the reference.
//
// Registry itself implements Handler, so a worker can be given one Registry
// for sources and another for targets.
type Registry struct {
	mu       sync.RWMutex
	handlers []Handler
}

var (
	_ Handler      = (*Registry)(nil)
	_ FileReleaser = (*Registry)(nil)
)

// NewRegistry creates a registry holding the given handlers in order.
func NewRegistry(handlers ...Handler) *Registry {
	r := &Registry{}
	for _, h := range handlers {
		r.Register(h)
	}
	return r
}

// Register appends a handler. Nil handlers are ignored.
func (r *Registry) Register(h Handler) {
	if h == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, h)
}

// Handlers returns the registered handlers in order.
func (r *Registry) Handlers() []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Handler(nil), r.handlers...)
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Select returns the first handler supporting ref.
func (r *Registry) Select(ref Reference) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, h := range r.handlers {
		if h.IsSupported(ref) {
			return h, nil
		}
	}
	return nil, errors.UnsupportedReference("Registry", "Select", ref.URI())
}

// IsSupported reports whether any registered handler supports ref.
func (r *Registry) IsSupported(ref Reference) bool {
	_, err := r.Select(ref)
	return err == nil
}

// CreateContentReference creates the reference on the first available handler.
func (r *Registry) CreateContentReference(ctx context.Context, name, mediaType string) (Reference, error) {
	for _, h := range r.Handlers() {
		if h.IsAvailable(ctx) {
			return h.CreateContentReference(ctx, name, mediaType)
		}
	}
	return Reference{}, errors.IO(
		fmt.Errorf("no available handler among %d registered", r.Len()),
		"Registry", "CreateContentReference", "select handler")
}

// GetFile implements Handler.
func (r *Registry) GetFile(ctx context.Context, ref Reference) (string, error) {
	h, err := r.Select(ref)
	if err != nil {
		return "", err
	}
	return h.GetFile(ctx, ref)
}

// GetInputStream implements Handler.
func (r *Registry) GetInputStream(ctx context.Context, ref Reference) (io.ReadCloser, error) {
	h, err := r.Select(ref)
	if err != nil {
		return nil, err
	}
	return h.GetInputStream(ctx, ref)
}

// PutFile implements Handler.
func (r *Registry) PutFile(ctx context.Context, path string, ref Reference) (Reference, error) {
	h, err := r.Select(ref)
	if err != nil {
		return ref, err
	}
	return h.PutFile(ctx, path, ref)
}

// PutInputStream implements Handler.
func (r *Registry) PutInputStream(ctx context.Context, in io.Reader, ref Reference) (Reference, error) {
	h, err := r.Select(ref)
	if err != nil {
		return ref, err
	}
	return h.PutInputStream(ctx, in, ref)
}

// Delete implements Handler.
func (r *Registry) Delete(ctx context.Context, ref Reference) error {
	h, err := r.Select(ref)
	if err != nil {
		return err
	}
	return h.Delete(ctx, ref)
}

// ReleaseFile releases path through the handler supporting ref.
func (r *Registry) ReleaseFile(ref Reference, path string) error {
	h, err := r.Select(ref)
	if err != nil {
		return err
	}
	return ReleaseFile(h, ref, path)
}

// IsAvailable reports whether at least one handler is available.
func (r *Registry) IsAvailable(ctx context.Context) bool {
	for _, h := range r.Handlers() {
		if h.IsAvailable(ctx) {
			return true
		}
	}
	return false
}
