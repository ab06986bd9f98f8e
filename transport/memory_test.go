package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alfresco/gytheio-sub001/errors"
)

func collect(t *testing.T, m *Memory, address string) (<-chan string, Subscription) {
	t.Helper()
	ch := make(chan string, 64)
	sub, err := m.Subscribe(context.Background(), address, func(_ context.Context, data []byte) {
		ch <- string(data)
	})
	require.NoError(t, err)
	return ch, sub
}

func receive(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return ""
	}
}

func TestMemory_FanOutInOrder(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	a, _ := collect(t, m, "replies")
	b, _ := collect(t, m, "replies")
	other, _ := collect(t, m, "elsewhere")

	ctx := context.Background()
	for _, msg := range []string{"one", "two", "three"} {
		require.NoError(t, m.Publish(ctx, "replies", []byte(msg)))
	}

	for _, ch := range []<-chan string{a, b} {
		assert.Equal(t, "one", receive(t, ch))
		assert.Equal(t, "two", receive(t, ch))
		assert.Equal(t, "three", receive(t, ch))
	}
	assert.Empty(t, other)
}

func TestMemory_PublishWithoutSubscribers(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	assert.NoError(t, m.Publish(context.Background(), "nobody", []byte("x")))
}

func TestMemory_CopiesData(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ch, _ := collect(t, m, "a")

	data := []byte("abc")
	require.NoError(t, m.Publish(context.Background(), "a", data))
	data[0] = 'X'
	assert.Equal(t, "abc", receive(t, ch))
}

func TestMemory_HandlerCanPublish(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	replies, _ := collect(t, m, "replies")
	_, err := m.Subscribe(ctx, "requests", func(ctx context.Context, data []byte) {
		_ = m.Publish(ctx, "replies", append([]byte("re:"), data...))
	})
	require.NoError(t, err)

	require.NoError(t, m.Publish(ctx, "requests", []byte("ping")))
	assert.Equal(t, "re:ping", receive(t, replies))
}

func TestMemory_Unsubscribe(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	ch, sub := collect(t, m, "a")
	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, m.Publish(context.Background(), "a", []byte("late")))

	select {
	case v := <-ch:
		t.Fatalf("unexpected delivery %q", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemory_Close(t *testing.T) {
	m := NewMemory()
	_, _ = collect(t, m, "a")
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	err := m.Publish(context.Background(), "a", []byte("x"))
	assert.ErrorIs(t, err, errors.ErrMessaging)

	_, err = m.Subscribe(context.Background(), "a", func(context.Context, []byte) {})
	assert.ErrorIs(t, err, errors.ErrMessaging)
}

func TestMemory_PublishHonoursContext(t *testing.T) {
	m := NewMemory()
	m.buffer = 1
	defer m.Close()

	block := make(chan struct{})
	var once sync.Once
	_, err := m.Subscribe(context.Background(), "slow", func(context.Context, []byte) {
		once.Do(func() { <-block })
	})
	require.NoError(t, err)
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var publishErr error
	for i := 0; i < 3 && publishErr == nil; i++ {
		publishErr = m.Publish(ctx, "slow", []byte("x"))
	}
	assert.ErrorIs(t, publishErr, errors.ErrMessaging)
	assert.ErrorIs(t, publishErr, context.DeadlineExceeded)
}

func TestMemory_NilHandler(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	_, err := m.Subscribe(context.Background(), "a", nil)
	assert.True(t, errors.IsInvalid(err))
}
