package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	var err error
	if strings.TrimSpace(c.Recording.BaseDir) == "" {
		c.Recording.BaseDir = defaultBaseDir
	}
	if c.Recording.BaseDir, err = expandPath(strings.TrimSpace(c.Recording.BaseDir)); err != nil {
		return fmt.Errorf("recording.base_dir: %w", err)
	}
	if c.Recording.FrameSizeSamples == 0 {
		c.Recording.FrameSizeSamples = defaultFrameSizeSamples
	}
	if c.Recording.MaxChannels == 0 {
		c.Recording.MaxChannels = defaultMaxChannels
	}

	c.Ingest.ListenAddr = strings.TrimSpace(c.Ingest.ListenAddr)
	if c.Ingest.ListenAddr == "" {
		c.Ingest.ListenAddr = defaultIngestAddr
	}
	if c.Ingest.QueueSize == 0 {
		c.Ingest.QueueSize = defaultQueueSize
	}
	c.Metrics.ListenAddr = strings.TrimSpace(c.Metrics.ListenAddr)

	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))

	if c.HooksRuntime.Concurrency == 0 {
		c.HooksRuntime.Concurrency = defaultHookConcurrency
	}
	for i := range c.Hooks {
		h := &c.Hooks[i]
		h.ID = strings.TrimSpace(h.ID)
		h.Type = strings.ToLower(strings.TrimSpace(h.Type))
		h.Format = strings.ToLower(strings.TrimSpace(h.Format))
		h.Output = strings.ToLower(strings.TrimSpace(h.Output))
		if h.Type == "stdio" && h.Output == "" {
			h.Output = "stderr"
		}
		if h.ID == "" {
			h.ID = fmt.Sprintf("%s-%d", h.Type, i+1)
		}
		for j, e := range h.Events {
			h.Events[j] = strings.ToLower(strings.TrimSpace(e))
		}
		if h.Type == "shell" && h.Command != "" {
			if h.Command, err = expandPath(h.Command); err != nil {
				return fmt.Errorf("hooks[%d].command: %w", i, err)
			}
		}
	}
	return nil
}
