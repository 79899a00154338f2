package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Recording controls where and how sessions are written.
type Recording struct {
	BaseDir          string `toml:"base_dir"`
	FrameSizeSamples int    `toml:"frame_size_samples"`
	MaxChannels      int    `toml:"max_channels"`
}

// Ingest configures the producer listener.
type Ingest struct {
	ListenAddr string `toml:"listen_addr"`
	QueueSize  int    `toml:"queue_size"`
}

// Metrics configures the Prometheus endpoint. An empty address disables it.
type Metrics struct {
	ListenAddr string `toml:"listen_addr"`
}

// Logging configures log output. An empty format picks text on a terminal
// and JSON otherwise.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Hook declares one event hook.
type Hook struct {
	ID     string   `toml:"id"`
	Type   string   `toml:"type"` // shell, webhook or stdio
	Events []string `toml:"events"`

	// shell
	Command  string            `toml:"command"`
	Args     []string          `toml:"args"`
	PassJSON bool              `toml:"pass_json"`
	Env      map[string]string `toml:"env"`

	// webhook
	URL     string            `toml:"url"`
	Headers map[string]string `toml:"headers"`

	// stdio
	Format string `toml:"format"`
	Output string `toml:"output"` // stderr (default) or stdout

	Timeout string `toml:"timeout"`
}

// HooksRuntime configures the hook execution pool.
type HooksRuntime struct {
	Concurrency int    `toml:"concurrency"`
	Timeout     string `toml:"timeout"`
}

// Config is the whole jamrec configuration.
type Config struct {
	Recording    Recording    `toml:"recording"`
	Ingest       Ingest       `toml:"ingest"`
	Metrics      Metrics      `toml:"metrics"`
	Logging      Logging      `toml:"logging"`
	Hooks        []Hook       `toml:"hooks"`
	HooksRuntime HooksRuntime `toml:"hooks_runtime"`
}

// DefaultConfigPath returns the absolute path of the per-user config file.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/jamrec/config.toml")
}

// Load resolves, parses, normalizes and validates a configuration. It
// returns the config, the resolved path and whether that file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolvedPath, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("jamrec.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath applies the config path rules ("~" expansion, absolute) to a
// path given on the command line.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a commented sample configuration to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	if _, err := f.WriteString(sampleConfig); err != nil {
		_ = f.Close()
		return fmt.Errorf("write sample config: %w", err)
	}
	return f.Close()
}

// HookTimeout returns h's timeout, falling back to the runtime default.
func (c *Config) HookTimeout(h Hook) time.Duration {
	if d, err := time.ParseDuration(h.Timeout); err == nil && d > 0 {
		return d
	}
	if d, err := time.ParseDuration(c.HooksRuntime.Timeout); err == nil && d > 0 {
		return d
	}
	return defaultHookTimeout
}
