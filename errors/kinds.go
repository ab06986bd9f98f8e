package errors

import (
	"errors"
	"fmt"
)

// Domain error taxonomy. Every error raised by handlers, workers, the codec
// and transports wraps exactly one of these so the dispatcher can report the
// kind in a FAILED reply.
var (
	ErrUnsupportedReference = errors.New("unsupported content reference")
	ErrIO                   = errors.New("content i/o failure")
	ErrDeserialization      = errors.New("message deserialization failed")
	ErrAlgorithmUnsupported = errors.New("algorithm unsupported")
	ErrTransformFailure     = errors.New("transformation failed")
	ErrMessaging            = errors.New("messaging failure")
)

// Kind names reported on the wire.
const (
	KindUnsupportedReference = "UnsupportedReference"
	KindIO                   = "IO"
	KindDeserialization      = "Deserialization"
	KindAlgorithmUnsupported = "AlgorithmUnsupported"
	KindTransformFailure     = "TransformFailure"
	KindMessaging            = "Messaging"
	KindUnknown              = "Unknown"
)

var kindTable = []struct {
	sentinel error
	kind     string
}{
	{ErrUnsupportedReference, KindUnsupportedReference},
	{ErrIO, KindIO},
	{ErrDeserialization, KindDeserialization},
	{ErrAlgorithmUnsupported, KindAlgorithmUnsupported},
	{ErrTransformFailure, KindTransformFailure},
	{ErrMessaging, KindMessaging},
}

// Kind returns the taxonomy name of err, or KindUnknown.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, entry := range kindTable {
		if errors.Is(err, entry.sentinel) {
			return entry.kind
		}
	}
	return KindUnknown
}

// Sentinel returns the taxonomy sentinel named kind, or nil for an
// unknown name.
func Sentinel(kind string) error {
	for _, entry := range kindTable {
		if entry.kind == kind {
			return entry.sentinel
		}
	}
	return nil
}

// kindError attaches a taxonomy sentinel to a cause without losing either.
type kindError struct {
	kind  error
	cause error
}

func (e *kindError) Error() string {
	if e.cause == nil {
		return e.kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.kind.Error(), e.cause.Error())
}

func (e *kindError) Unwrap() []error {
	if e.cause == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.cause}
}

// WithKind marks cause as belonging to the given taxonomy sentinel.
// Both errors.Is(result, kind) and errors.Is(result, cause) hold.
func WithKind(kind, cause error) error {
	if cause != nil && errors.Is(cause, kind) {
		return cause
	}
	return &kindError{kind: kind, cause: cause}
}

// UnsupportedReference reports a handler/reference scheme mismatch.
func UnsupportedReference(component, method, uri string) error {
	return WrapInvalid(
		fmt.Errorf("%w: %s", ErrUnsupportedReference, uri),
		component, method, "reference support check")
}

// IO wraps a backend read/write/delete failure.
func IO(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return WrapTransient(WithKind(ErrIO, err), component, method, action)
}

// Deserialization wraps a malformed or unrecognised wire message failure.
func Deserialization(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return WrapInvalid(WithKind(ErrDeserialization, err), component, method, action)
}

// AlgorithmUnsupported reports an unknown hash or transform algorithm.
func AlgorithmUnsupported(component, method, algorithm string) error {
	return WrapInvalid(
		fmt.Errorf("%w: %s", ErrAlgorithmUnsupported, algorithm),
		component, method, "algorithm lookup")
}

// TransformFailure wraps an external tool failure or unexpected output.
func TransformFailure(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return WrapFatal(WithKind(ErrTransformFailure, err), component, method, action)
}

// Messaging wraps a transport send failure.
func Messaging(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return WrapTransient(WithKind(ErrMessaging, err), component, method, action)
}
