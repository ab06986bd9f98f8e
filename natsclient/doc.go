// Package natsclient wraps the NATS Go client with a circuit breaker and the
// small set of operations the dispatch layer needs: core publish and queue
// subscriptions, JetStream streams with durable pull consumers, and
// ObjectStore buckets for content.
//
// Connection lifecycle runs Disconnected, Connecting, Connected and
// Reconnecting. After a threshold of consecutive failures (default 5) the
// circuit opens and every operation fails fast with ErrCircuitOpen until the
// backoff elapses. The backoff doubles each time the circuit reopens, capped
// by WithMaxBackoff.
//
// # Basic Usage
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//		natsclient.WithName("hash-worker"),
//		natsclient.WithLogger(natsclient.NewSlogLogger(logger)),
//	)
//	if err != nil {
//		return err
//	}
//	if err := client.Connect(ctx); err != nil {
//		return err
//	}
//	defer client.Close(ctx)
//
//	_, err = client.QueueSubscribe(ctx, "gytheio.hash.requests", "hash-workers",
//		func(ctx context.Context, data []byte) {
//			// handle request
//		})
//
// # Testing
//
// TestClient starts a real NATS server with testcontainers:
//
//	tc := natsclient.NewTestClient(t, natsclient.WithJetStream())
//	obs, err := tc.Client.ObjectStore(ctx, "content")
package natsclient
