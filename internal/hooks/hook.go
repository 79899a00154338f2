package hooks

import (
	"context"
	"time"
)

// Hook handles events it is registered for.
type Hook interface {
	Execute(ctx context.Context, event Event) error
	Type() string
	ID() string
}

// Notifier is what the recorder publishes through. A nil *HookManager is a
// valid Notifier that drops everything.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// Config controls the manager's execution pool.
type Config struct {
	// Timeout bounds each hook execution.
	Timeout time.Duration
	// Concurrency caps hooks running at once.
	Concurrency int
	// StdioFormat enables a catch-all stdio hook: "json", "env" or "".
	StdioFormat string
}

// DefaultConfig returns a 30s timeout and a pool of 10.
func DefaultConfig() Config {
	return Config{
		Timeout:     30 * time.Second,
		Concurrency: 10,
	}
}
