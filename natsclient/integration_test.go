//go:build integration

package natsclient

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_QueueSubscribeSharesLoad(t *testing.T) {
	tc := NewTestClient(t)
	ctx := context.Background()

	received := make(chan string, 10)
	for _, name := range []string{"a", "b"} {
		name := name
		_, err := tc.Client.QueueSubscribe(ctx, "work.hash", "workers", func(context.Context, []byte) {
			received <- name
		})
		require.NoError(t, err)
	}

	require.NoError(t, tc.Client.Publish(ctx, "work.hash", []byte("one")))

	select {
	case <-received:
	case <-time.After(5 * time.Second):
		t.Fatal("message not delivered")
	}

	select {
	case extra := <-received:
		t.Fatalf("message delivered twice, second to %s", extra)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestIntegration_ConsumeStream(t *testing.T) {
	tc := NewTestClient(t, WithJetStream())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := tc.Client.EnsureStream(ctx, jetstream.StreamConfig{
		Name:     "REQUESTS",
		Subjects: []string{"requests.>"},
	})
	require.NoError(t, err)

	got := make(chan []byte, 1)
	require.NoError(t, tc.Client.ConsumeStream(ctx, ConsumerConfig{
		Stream:  "REQUESTS",
		Durable: "hash-workers",
		Subject: "requests.hash",
	}, func(_ context.Context, data []byte) { got <- data }))

	require.NoError(t, tc.Client.PublishToStream(ctx, "requests.hash", []byte(`{"x":1}`)))

	select {
	case data := <-got:
		assert.JSONEq(t, `{"x":1}`, string(data))
	case <-ctx.Done():
		t.Fatal("stream message not consumed")
	}
}

func TestIntegration_ObjectStore(t *testing.T) {
	tc := NewTestClient(t, WithJetStream())
	ctx := context.Background()

	obs, err := tc.Client.ObjectStore(ctx, "content")
	require.NoError(t, err)

	_, err = obs.Put(ctx, jetstream.ObjectMeta{Name: "a.txt"}, bytes.NewReader([]byte("hello")))
	require.NoError(t, err)

	again, err := tc.Client.ObjectStore(ctx, "content")
	require.NoError(t, err)

	res, err := again.Get(ctx, "a.txt")
	require.NoError(t, err)
	defer res.Close()
	data, err := io.ReadAll(res)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}
