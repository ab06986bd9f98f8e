package natsclient

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alfresco/gytheio-sub001/errors"
)

type countingReporter struct {
	calls atomic.Int32
}

func (r *countingReporter) InProgress() error {
	r.calls.Add(1)
	return nil
}

func TestConsumerConfig_AckWait(t *testing.T) {
	var cfg ConsumerConfig
	assert.Equal(t, DefaultAckWait, cfg.ackWait())
	assert.Equal(t, 10*time.Second, cfg.progressInterval())

	cfg.AckWait = 90 * time.Second
	assert.Equal(t, 90*time.Second, cfg.ackWait())
	assert.Equal(t, 30*time.Second, cfg.progressInterval())
}

func TestKeepAlive_ExtendsUntilStopped(t *testing.T) {
	r := &countingReporter{}
	stop := keepAlive(r, 10*time.Millisecond, NewSlogLogger(nil))

	assert.Eventually(t, func() bool { return r.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	stop()

	after := r.calls.Load()
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, after, r.calls.Load(), "no InProgress after stop")
}

func TestKeepAlive_ZeroIntervalIsNoop(t *testing.T) {
	r := &countingReporter{}
	stop := keepAlive(r, 0, NewSlogLogger(nil))
	time.Sleep(20 * time.Millisecond)
	stop()
	assert.Zero(t, r.calls.Load())
}

func TestConsumeStream_RequiresNames(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	err = client.ConsumeStream(context.Background(), ConsumerConfig{Stream: "REQ"}, func(context.Context, []byte) {})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}
