// Package content defines the content reference abstraction: a
// location-transparent handle to a binary payload, and the Handler
// capability interface implemented by each storage backend.
//
// Backends coexist. A Registry evaluates handlers in order and routes every
// operation to the first one whose IsSupported accepts the reference:
//
//	sources := content.NewRegistry(fileHandler, objectStoreHandler)
//	targets := content.NewRegistry(tempHandler)
//
//	ref, err := targets.CreateContentReference(ctx, "clip.mp4", "video/mp4")
//	path, err := sources.GetFile(ctx, sourceRef)
//
// Operations on a reference no handler supports fail with
// errors.ErrUnsupportedReference before any I/O takes place.
//
// Concrete handlers live in content/file (local and temp directories) and
// content/objectstore (NATS JetStream ObjectStore buckets).
package content
