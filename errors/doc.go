// Package errors provides standardized error handling for gytheio workers.
//
// # Classification
//
// Errors carry one of three classes, inherited from the framework's
// ClassifiedError pattern:
//
//   - Transient: backend or transport hiccups (connection loss, I/O timeouts)
//   - Invalid: bad input (undecodable messages, unsupported references)
//   - Fatal: unrecoverable for this request (external tool failure)
//
// Wrapping follows the "component.method: action failed: cause" pattern:
//
//	return errors.WrapTransient(err, "FileHandler", "GetFile", "open file")
//
// # Taxonomy
//
// Independently of the class, every domain error wraps one sentinel of the
// taxonomy so it can be named in a FAILED reply:
//
//	ErrUnsupportedReference  handler/reference scheme mismatch
//	ErrIO                    backend read/write/delete failure
//	ErrDeserialization       malformed or unrecognised wire message
//	ErrAlgorithmUnsupported  unknown hash algorithm
//	ErrTransformFailure      external tool failure or unexpected output
//	ErrMessaging             transport send failure
//
// Kind maps an error chain to the wire name of its sentinel:
//
//	reply.Error = &message.Failure{Kind: errors.Kind(err), Message: err.Error()}
//
// The helpers IO, Deserialization, TransformFailure and Messaging combine a
// sentinel with the matching class in one call.
package errors
