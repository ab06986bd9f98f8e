package component

import (
	"context"
	"time"
)

// State is the lifecycle position of a Component.
type State int

// Lifecycle states, in the order a Component normally passes through them.
const (
	StateCreated State = iota
	StateInitialized
	StateStarted
	StateStopped
	StateFailed
)

var stateNames = [...]string{"created", "initialized", "started", "stopped", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Discoverable is what the process exposes about a component to its
// health endpoint and logs.
type Discoverable interface {
	Meta() Metadata
	Health() HealthStatus
	DataFlow() FlowMetrics
}

// LifecycleComponent adds the Initialize / Start / Stop cycle. Initialize
// does no I/O; Start subscribes; Stop unsubscribes and waits up to timeout
// for the request in flight.
type LifecycleComponent interface {
	Discoverable
	Initialize() error
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
}

// Metadata names a component and the request kind it serves
type Metadata struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Version     string `json:"version"`
	RequestKind string `json:"request_kind,omitempty"`
}

// HealthStatus is a point-in-time view of a component.
type HealthStatus struct {
	Healthy    bool          `json:"healthy"`
	LastCheck  time.Time     `json:"last_check"`
	ErrorCount int           `json:"error_count"`
	LastError  string        `json:"last_error,omitempty"`
	Uptime     time.Duration `json:"uptime"`

	// Zero until the first request is accepted.
	LastRequestID string    `json:"last_request_id,omitempty"`
	LastRequestAt time.Time `json:"last_request_at,omitempty"`
}

// FlowMetrics are request rates averaged since Start.
type FlowMetrics struct {
	MessagesPerSecond float64   `json:"messages_per_second"`
	ErrorRate         float64   `json:"error_rate"`
	LastActivity      time.Time `json:"last_activity"`
}
