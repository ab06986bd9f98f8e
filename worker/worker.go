// Package worker defines the worker capabilities a component can host and
// the processors that adapt them to a component's request kind.
//
// Workers resolve every reference through their configured content
// handlers and report failures as typed errors from the errors package.
// They hold no per-request state.
package worker

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Alfresco/gytheio-sub001/content"
	"github.com/Alfresco/gytheio-sub001/message"
)

// ProgressFunc reports the progress of the running request as a fraction
// in [0,1]. It runs synchronously on the worker's goroutine.
type ProgressFunc func(progress float64)

// HashWorker computes content digests.
type HashWorker interface {
	// GenerateHashes returns hex digests keyed by reference URI. When only
	// some references fail the returned error is a ReferenceErrors and the
	// map holds the digests that succeeded.
	GenerateHashes(ctx context.Context, sources []content.Reference, algorithm string) (map[string]string, error)

	IsAlgorithmSupported(algorithm string) bool
}

// TransformWorker transforms source content into target references.
type TransformWorker interface {
	// Transform writes the transformed sources to targets and returns one
	// result per produced reference. Option kinds the worker does not
	// understand are ignored.
	Transform(ctx context.Context, sources, targets []content.Reference, options *message.Options, progress ProgressFunc) ([]message.Result, error)
}

// ReferenceErrors maps reference URIs to the error each one failed with.
type ReferenceErrors map[string]error

func (e ReferenceErrors) Error() string {
	uris := make([]string, 0, len(e))
	for uri := range e {
		uris = append(uris, uri)
	}
	sort.Strings(uris)

	parts := make([]string, 0, len(uris))
	for _, uri := range uris {
		parts = append(parts, fmt.Sprintf("%s: %v", uri, e[uri]))
	}
	return fmt.Sprintf("%d reference(s) failed: %s", len(e), strings.Join(parts, "; "))
}

// Unwrap exposes the per-reference errors to errors.Is and errors.As.
func (e ReferenceErrors) Unwrap() []error {
	errs := make([]error, 0, len(e))
	for _, err := range e {
		errs = append(errs, err)
	}
	return errs
}
