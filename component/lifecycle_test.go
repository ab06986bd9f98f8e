package component

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alfresco/gytheio-sub001/message"
	"github.com/Alfresco/gytheio-sub001/transport"
)

func newIdleComponent(t *testing.T) *Component {
	t.Helper()
	tr := transport.NewMemory()
	t.Cleanup(func() { _ = tr.Close() })
	comp, err := New(Config{Name: "lifecycle", RequestAddress: requestAddress, ReplyAddress: replyAddress},
		&scriptedProcessor{kind: message.KindHashRequest}, Dependencies{Transport: tr})
	require.NoError(t, err)
	return comp
}

func TestLifecycle_Compliance(t *testing.T) {
	tests := []struct {
		name string
		test func(t *testing.T, comp *Component)
	}{
		{"StartStop", func(t *testing.T, comp *Component) {
			require.NoError(t, comp.Initialize())
			require.NoError(t, comp.Start(context.Background()))
			assert.Equal(t, StateStarted, comp.State())
			assert.True(t, comp.Health().Healthy)
			require.NoError(t, comp.Stop(5*time.Second))
			assert.Equal(t, StateStopped, comp.State())
			assert.False(t, comp.Health().Healthy)
		}},
		{"DoubleStart", func(t *testing.T, comp *Component) {
			require.NoError(t, comp.Initialize())
			require.NoError(t, comp.Start(context.Background()))
			assert.NoError(t, comp.Start(context.Background()))
			assert.NoError(t, comp.Stop(5*time.Second))
		}},
		{"DoubleStop", func(t *testing.T, comp *Component) {
			require.NoError(t, comp.Initialize())
			require.NoError(t, comp.Start(context.Background()))
			assert.NoError(t, comp.Stop(5*time.Second))
			assert.NoError(t, comp.Stop(5*time.Second))
		}},
		{"StopWithoutStart", func(t *testing.T, comp *Component) {
			assert.NoError(t, comp.Stop(5*time.Second))
		}},
		{"StartWithoutInit", func(t *testing.T, comp *Component) {
			err := comp.Start(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), "not initialized")
		}},
		{"RestartAfterStop", func(t *testing.T, comp *Component) {
			require.NoError(t, comp.Initialize())
			require.NoError(t, comp.Start(context.Background()))
			require.NoError(t, comp.Stop(5*time.Second))
			require.NoError(t, comp.Start(context.Background()))
			assert.Equal(t, StateStarted, comp.State())
			assert.NoError(t, comp.Stop(5*time.Second))
		}},
		{"CancelledContext", func(t *testing.T, comp *Component) {
			require.NoError(t, comp.Initialize())
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			err := comp.Start(ctx)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "context")
			assert.Equal(t, StateInitialized, comp.State())
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.test(t, newIdleComponent(t))
		})
	}
}

func TestLifecycle_ConcurrentStartStop(t *testing.T) {
	comp := newIdleComponent(t)
	require.NoError(t, comp.Initialize())

	var wg sync.WaitGroup
	errs := make([]error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			errs[idx] = comp.Start(context.Background())
		}(i)
	}
	for i := 20; i < 40; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			time.Sleep(5 * time.Millisecond)
			errs[idx] = comp.Stop(5 * time.Second)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.NoError(t, comp.Stop(5*time.Second))
}

func TestLifecycle_StopWaitsForRequestInFlight(t *testing.T) {
	proc := &scriptedProcessor{kind: message.KindHashRequest, release: make(chan struct{})}
	tr := transport.NewMemory()
	defer tr.Close()
	comp, err := New(Config{Name: "lifecycle", RequestAddress: requestAddress, ReplyAddress: replyAddress},
		proc, Dependencies{Transport: tr})
	require.NoError(t, err)
	require.NoError(t, comp.Initialize())
	require.NoError(t, comp.Start(context.Background()))

	data, err := message.EncodeRequest(hashRequest())
	require.NoError(t, err)
	require.NoError(t, tr.Publish(context.Background(), requestAddress, data))
	require.Eventually(t, func() bool { return proc.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	err = comp.Stop(20 * time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "in flight")

	close(proc.release)
	assert.Eventually(t, func() bool {
		return comp.processMu.TryLock() && func() bool { comp.processMu.Unlock(); return true }()
	}, 2*time.Second, 5*time.Millisecond)
}

func TestLifecycle_StateReadableWhileStopWaits(t *testing.T) {
	proc := &scriptedProcessor{kind: message.KindHashRequest, release: make(chan struct{})}
	tr := transport.NewMemory()
	defer tr.Close()
	comp, err := New(Config{Name: "lifecycle", RequestAddress: requestAddress, ReplyAddress: replyAddress},
		proc, Dependencies{Transport: tr})
	require.NoError(t, err)
	require.NoError(t, comp.Initialize())
	require.NoError(t, comp.Start(context.Background()))

	data, err := message.EncodeRequest(hashRequest())
	require.NoError(t, err)
	require.NoError(t, tr.Publish(context.Background(), requestAddress, data))
	require.Eventually(t, func() bool { return proc.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	stopped := make(chan error, 1)
	go func() { stopped <- comp.Stop(10 * time.Second) }()

	read := make(chan State, 1)
	require.Eventually(t, func() bool { return comp.State() == StateStopped }, time.Second, 5*time.Millisecond)
	go func() {
		_ = comp.Health()
		read <- comp.State()
	}()
	select {
	case st := <-read:
		assert.Equal(t, StateStopped, st)
	case <-time.After(time.Second):
		t.Fatal("State blocked while Stop waited for the request")
	}

	close(proc.release)
	select {
	case err := <-stopped:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the request finished")
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "created", StateCreated.String())
	assert.Equal(t, "started", StateStarted.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "unknown", State(42).String())
}
