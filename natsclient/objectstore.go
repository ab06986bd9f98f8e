package natsclient

import (
	"context"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Alfresco/gytheio-sub001/errors"
)

// ObjectStore returns the bucket, creating it when it does not exist
func (c *Client) ObjectStore(ctx context.Context, bucket string) (jetstream.ObjectStore, error) {
	js, err := c.JetStream()
	if err != nil {
		return nil, err
	}

	obs, err := js.ObjectStore(ctx, bucket)
	if err == nil {
		return obs, nil
	}

	obs, err = js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Bucket:      bucket,
		Description: "gytheio content",
	})
	if err != nil && isAlreadyExistsError(err) {
		obs, err = js.ObjectStore(ctx, bucket)
	}
	if err != nil {
		c.recordFailure()
		return nil, errors.WrapTransient(err, "Client", "ObjectStore", "open bucket "+bucket)
	}

	c.resetCircuit()
	return obs, nil
}
