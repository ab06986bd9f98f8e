// Package retry runs an operation with exponential backoff.
//
// The worker binary uses it to wait for NATS while a deployment starts;
// the request path itself never retries. Errors classified as invalid or
// fatal by the errors package stop the loop at once:
//
//	err := retry.Do(ctx, retry.Startup(), func(ctx context.Context) error {
//		return client.Connect(ctx)
//	})
//
// Presets:
//
//   - DefaultConfig: 3 attempts, 100ms to 5s
//   - Startup: 30 attempts, 200ms to 10s
package retry
