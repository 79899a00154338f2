package hooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// HookManager routes events to registered hooks and runs them on a bounded
// pool of goroutines.
type HookManager struct {
	mu        sync.RWMutex
	hooks     map[EventType][]Hook
	stdioHook *StdioHook
	closed    bool

	timeout time.Duration
	slots   chan struct{}
	wg      sync.WaitGroup
	logger  *slog.Logger
}

// Stats is a snapshot of the manager's registrations.
type Stats struct {
	TotalHooks   int
	ByEvent      map[EventType]int
	StdioEnabled bool
	PoolSize     int
}

// NewHookManager builds a manager; zero Config fields take DefaultConfig
// values.
func NewHookManager(cfg Config, logger *slog.Logger) *HookManager {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}

	hm := &HookManager{
		hooks:   make(map[EventType][]Hook),
		timeout: cfg.Timeout,
		slots:   make(chan struct{}, cfg.Concurrency),
		logger:  logger,
	}
	if cfg.StdioFormat != "" {
		if err := hm.EnableStdioOutput(cfg.StdioFormat); err != nil {
			logger.Warn("stdio hook output not enabled", "error", err)
		}
	}
	return hm
}

// RegisterHook subscribes hook to eventType.
func (hm *HookManager) RegisterHook(eventType EventType, hook Hook) error {
	if hook == nil {
		return errors.New("cannot register nil hook")
	}
	if _, ok := ParseEventType(string(eventType)); !ok {
		return fmt.Errorf("unknown event type %q", eventType)
	}

	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.hooks[eventType] = append(hm.hooks[eventType], hook)
	hm.logger.Info("Hook registered",
		"event_type", eventType,
		"hook_type", hook.Type(),
		"hook_id", hook.ID())
	return nil
}

// UnregisterHook removes the hook with hookID from eventType.
func (hm *HookManager) UnregisterHook(eventType EventType, hookID string) bool {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	hooks := hm.hooks[eventType]
	for i, h := range hooks {
		if h.ID() == hookID {
			hm.hooks[eventType] = append(hooks[:i:i], hooks[i+1:]...)
			return true
		}
	}
	return false
}

// EnableStdioOutput mirrors every event to stderr in format "json" or "env".
func (hm *HookManager) EnableStdioOutput(format string) error {
	if format != FormatJSON && format != FormatEnv {
		return fmt.Errorf("unsupported stdio format: %s", format)
	}
	hm.mu.Lock()
	hm.stdioHook = NewStdioHook("stdio", format)
	hm.mu.Unlock()
	return nil
}

// Notify implements Notifier. Hooks run in the background; the call never
// blocks on hook execution.
func (hm *HookManager) Notify(ctx context.Context, event Event) {
	if hm == nil {
		return
	}

	hm.mu.RLock()
	if hm.closed {
		hm.mu.RUnlock()
		return
	}
	hooks := make([]Hook, 0, len(hm.hooks[event.Type])+1)
	hooks = append(hooks, hm.hooks[event.Type]...)
	if hm.stdioHook != nil {
		hooks = append(hooks, hm.stdioHook)
	}
	hm.wg.Add(len(hooks))
	hm.mu.RUnlock()

	if len(hooks) == 0 {
		return
	}
	hm.logger.Debug("Triggering event", "event", event.String(), "hook_count", len(hooks))

	// Hooks outlive the caller's request scope but keep its values.
	ctx = context.WithoutCancel(ctx)
	for _, h := range hooks {
		go hm.run(ctx, h, event)
	}
}

func (hm *HookManager) run(ctx context.Context, h Hook, event Event) {
	defer hm.wg.Done()
	hm.slots <- struct{}{}
	defer func() { <-hm.slots }()

	ctx, cancel := context.WithTimeout(ctx, hm.timeout)
	defer cancel()

	start := time.Now()
	err := h.Execute(ctx, event)
	attrs := []any{
		"hook_type", h.Type(),
		"hook_id", h.ID(),
		"event_type", event.Type,
		"duration_ms", time.Since(start).Milliseconds(),
	}
	if err != nil {
		hm.logger.Error("Hook execution failed", append(attrs, "error", err)...)
		return
	}
	hm.logger.Debug("Hook executed", attrs...)
}

// Stats returns current registration counts.
func (hm *HookManager) Stats() Stats {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	st := Stats{
		ByEvent:      make(map[EventType]int, len(hm.hooks)),
		StdioEnabled: hm.stdioHook != nil,
		PoolSize:     cap(hm.slots),
	}
	for et, hooks := range hm.hooks {
		st.ByEvent[et] = len(hooks)
		st.TotalHooks += len(hooks)
	}
	return st
}

// Close stops accepting events and waits for running hooks to finish.
func (hm *HookManager) Close() error {
	if hm == nil {
		return nil
	}
	hm.mu.Lock()
	hm.closed = true
	hm.mu.Unlock()
	hm.wg.Wait()
	return nil
}
