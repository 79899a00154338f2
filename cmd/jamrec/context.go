package main

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/alxayo/go-jamrec/internal/config"
	"github.com/alxayo/go-jamrec/internal/logger"
)

type commandContext struct {
	configFlag    *string
	logLevelFlag  *string
	logFormatFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag, logFormatFlag *string) *commandContext {
	return &commandContext{
		configFlag:    configFlag,
		logLevelFlag:  logLevelFlag,
		logFormatFlag: logFormatFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// applyLogging resolves the log level as flag, then JAMREC_LOG_LEVEL, then
// the config file; the format likewise.
func (c *commandContext) applyLogging(cfg *config.Config) error {
	logger.Init()

	level := strings.TrimSpace(*c.logLevelFlag)
	if level == "" {
		level = os.Getenv("JAMREC_LOG_LEVEL")
	}
	if level == "" {
		level = cfg.Logging.Level
	}
	if err := logger.SetLevel(level); err != nil {
		return fmt.Errorf("log level: %w", err)
	}

	format := strings.TrimSpace(*c.logFormatFlag)
	if format == "" && os.Getenv("JAMREC_LOG_FORMAT") == "" {
		format = cfg.Logging.Format
	}
	if format != "" {
		if err := logger.SetFormat(format); err != nil {
			return fmt.Errorf("log format: %w", err)
		}
	}
	return nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
