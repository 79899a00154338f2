package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"
)

// EnvPrefix prefixes every variable handed to shell hooks.
const EnvPrefix = "JAMREC_"

// ShellHook runs a command with the event in its environment and, when
// enabled, as JSON on stdin.
type ShellHook struct {
	id       string
	command  string
	args     []string
	env      []string
	passJSON bool
	timeout  time.Duration
}

// NewShellHook runs script through /bin/sh.
func NewShellHook(id, script string) *ShellHook {
	return NewShellHookWithCommand(id, "/bin/sh", []string{script})
}

// NewShellHookWithCommand runs command with args directly.
func NewShellHookWithCommand(id, command string, args []string) *ShellHook {
	return &ShellHook{id: id, command: command, args: args}
}

func (h *ShellHook) SetPassJSON(passJSON bool) *ShellHook {
	h.passJSON = passJSON
	return h
}

// SetTimeout bounds this hook tighter than the manager timeout.
func (h *ShellHook) SetTimeout(d time.Duration) *ShellHook {
	h.timeout = d
	return h
}

func (h *ShellHook) SetEnv(env []string) *ShellHook {
	h.env = env
	return h
}

// Execute runs the command until it exits or ctx ends.
func (h *ShellHook) Execute(ctx context.Context, event Event) error {
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, h.command, h.args...)
	// Children that inherit stdout must not hold Execute past cancellation.
	cmd.WaitDelay = time.Second
	cmd.Env = append(os.Environ(), h.env...)
	cmd.Env = append(cmd.Env, eventEnv(event)...)

	if h.passJSON {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("shell hook %s: marshal event: %w", h.id, err)
		}
		cmd.Stdin = strings.NewReader(string(payload) + "\n")
	}

	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("shell hook %s: %w (output: %s)", h.id, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (h *ShellHook) Type() string { return "shell" }
func (h *ShellHook) ID() string   { return h.id }

// eventEnv flattens an event into JAMREC_* assignments; data keys are
// upper-cased and emitted in sorted order.
func eventEnv(event Event) []string {
	env := []string{
		EnvPrefix + "EVENT_ID=" + event.ID,
		EnvPrefix + "EVENT_TYPE=" + string(event.Type),
		fmt.Sprintf("%sTIMESTAMP=%d", EnvPrefix, event.Timestamp),
	}
	if event.SessionDir != "" {
		env = append(env, EnvPrefix+"SESSION_DIR="+event.SessionDir)
	}
	keys := make([]string, 0, len(event.Data))
	for k := range event.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s%s=%v", EnvPrefix, strings.ToUpper(k), event.Data[k]))
	}
	return env
}
