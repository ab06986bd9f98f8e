// Package component hosts a worker behind a transport.
//
// A Component binds one Processor to one Transport. It subscribes to a
// request address, decodes each message with the message codec, and runs
// requests of its processor's kind one at a time. Every accepted request
// produces a reply stream on the request's replyTo address, or on the
// configured default:
//
//	STARTED -> IN_PROGRESS* -> COMPLETE | FAILED
//
// Progress is clamped to [0,1] and never reported lower than before. A
// worker error produces a FAILED reply carrying the error kind. Messages
// that cannot be decoded, or carry another request kind, are logged,
// counted and dropped without a reply.
//
// # Lifecycle
//
// Components follow the Initialize/Start/Stop pattern:
//
//	comp, err := component.New(component.Config{
//		Name:           "hash-worker",
//		RequestAddress: "gytheio.hash.requests",
//		ReplyAddress:   "gytheio.hash.replies",
//	}, worker.NewHashProcessor(hasher), component.Dependencies{
//		Transport:       natstransport.NewCore(client, "hash-workers"),
//		MetricsRegistry: registry,
//		Logger:          logger,
//	})
//	if err != nil {
//		return err
//	}
//	if err := comp.Initialize(); err != nil {
//		return err
//	}
//	if err := comp.Start(ctx); err != nil {
//		return err
//	}
//	defer comp.Stop(30 * time.Second)
//
// Cancelling the Start context never cancels the request in flight.
package component
