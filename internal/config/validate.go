package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/alxayo/go-jamrec/internal/hooks"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateRecording(); err != nil {
		return err
	}
	if err := c.validateListeners(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.validateHooks()
}

func (c *Config) validateRecording() error {
	if c.Recording.FrameSizeSamples < 0 {
		return fmt.Errorf("recording.frame_size_samples must be positive, got %d", c.Recording.FrameSizeSamples)
	}
	if c.Recording.MaxChannels < 0 || c.Recording.MaxChannels > 1<<16 {
		return fmt.Errorf("recording.max_channels must be between 1 and 65536, got %d", c.Recording.MaxChannels)
	}
	return nil
}

func (c *Config) validateListeners() error {
	if _, _, err := net.SplitHostPort(c.Ingest.ListenAddr); err != nil {
		return fmt.Errorf("ingest.listen_addr: %w", err)
	}
	if c.Ingest.QueueSize < 0 {
		return fmt.Errorf("ingest.queue_size must be positive, got %d", c.Ingest.QueueSize)
	}
	if c.Metrics.ListenAddr != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.ListenAddr); err != nil {
			return fmt.Errorf("metrics.listen_addr: %w", err)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("logging.format: unsupported format %q", c.Logging.Format)
	}
	return nil
}

func (c *Config) validateHooks() error {
	if c.HooksRuntime.Concurrency < 0 {
		return errors.New("hooks_runtime.concurrency must be positive")
	}
	if c.HooksRuntime.Timeout != "" {
		if _, err := time.ParseDuration(c.HooksRuntime.Timeout); err != nil {
			return fmt.Errorf("hooks_runtime.timeout: %w", err)
		}
	}

	seen := make(map[string]bool, len(c.Hooks))
	for i, h := range c.Hooks {
		if seen[h.ID] {
			return fmt.Errorf("hooks[%d]: duplicate id %q", i, h.ID)
		}
		seen[h.ID] = true

		if len(h.Events) == 0 {
			return fmt.Errorf("hooks[%d] %s: at least one event is required", i, h.ID)
		}
		for _, e := range h.Events {
			if _, ok := hooks.ParseEventType(e); !ok {
				return fmt.Errorf("hooks[%d] %s: unknown event %q", i, h.ID, e)
			}
		}
		if h.Timeout != "" {
			if _, err := time.ParseDuration(h.Timeout); err != nil {
				return fmt.Errorf("hooks[%d] %s: timeout: %w", i, h.ID, err)
			}
		}

		switch h.Type {
		case "shell":
			if h.Command == "" {
				return fmt.Errorf("hooks[%d] %s: shell hook requires command", i, h.ID)
			}
			for k := range h.Env {
				if k == "" || strings.ContainsAny(k, "= ") {
					return fmt.Errorf("hooks[%d] %s: invalid env name %q", i, h.ID, k)
				}
			}
		case "webhook":
			u, err := url.Parse(h.URL)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				return fmt.Errorf("hooks[%d] %s: webhook requires an http(s) url, got %q", i, h.ID, h.URL)
			}
		case "stdio":
			if h.Format != hooks.FormatJSON && h.Format != hooks.FormatEnv {
				return fmt.Errorf("hooks[%d] %s: stdio format must be json or env, got %q", i, h.ID, h.Format)
			}
			if h.Output != "stderr" && h.Output != "stdout" {
				return fmt.Errorf("hooks[%d] %s: stdio output must be stderr or stdout, got %q", i, h.ID, h.Output)
			}
		default:
			return fmt.Errorf("hooks[%d] %s: unsupported type %q", i, h.ID, h.Type)
		}
	}
	return nil
}
