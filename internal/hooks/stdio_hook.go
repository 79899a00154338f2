package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Stdio output formats.
const (
	FormatJSON = "json"
	FormatEnv  = "env"
)

// StdioHook writes each event as one "JAMREC_EVENT: {...}" line (json) or
// as a block of JAMREC_* assignments (env).
type StdioHook struct {
	id     string
	format string

	mu  sync.Mutex
	out io.Writer
}

// NewStdioHook writes to stderr so events never mix with command output.
func NewStdioHook(id, format string) *StdioHook {
	return &StdioHook{id: id, format: format, out: os.Stderr}
}

func (h *StdioHook) SetOutput(w io.Writer) *StdioHook {
	h.mu.Lock()
	h.out = w
	h.mu.Unlock()
	return h
}

func (h *StdioHook) Execute(_ context.Context, event Event) error {
	var text string
	switch h.format {
	case FormatJSON:
		b, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("stdio hook %s: marshal event: %w", h.id, err)
		}
		text = EnvPrefix + "EVENT: " + string(b) + "\n"
	case FormatEnv:
		text = "# jamrec event: " + string(event.Type) + "\n" + strings.Join(eventEnv(event), "\n") + "\n\n"
	default:
		return fmt.Errorf("stdio hook %s: unsupported format: %s", h.id, h.format)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := io.WriteString(h.out, text); err != nil {
		return fmt.Errorf("stdio hook %s: write: %w", h.id, err)
	}
	return nil
}

func (h *StdioHook) Type() string { return "stdio" }
func (h *StdioHook) ID() string   { return h.id }
