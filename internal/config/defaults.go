package config

import "time"

const (
	defaultBaseDir          = "~/.local/share/jamrec/recordings"
	defaultFrameSizeSamples = 128
	defaultMaxChannels      = 150
	defaultIngestAddr       = "127.0.0.1:22150"
	defaultQueueSize        = 4096
	defaultMetricsAddr      = "127.0.0.1:9464"
	defaultLogLevel         = "info"
	defaultHookConcurrency  = 10
	defaultHookTimeout      = 30 * time.Second
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Recording: Recording{
			BaseDir:          defaultBaseDir,
			FrameSizeSamples: defaultFrameSizeSamples,
			MaxChannels:      defaultMaxChannels,
		},
		Ingest: Ingest{
			ListenAddr: defaultIngestAddr,
			QueueSize:  defaultQueueSize,
		},
		Metrics: Metrics{
			ListenAddr: defaultMetricsAddr,
		},
		Logging: Logging{
			Level: defaultLogLevel,
		},
		HooksRuntime: HooksRuntime{
			Concurrency: defaultHookConcurrency,
			Timeout:     defaultHookTimeout.String(),
		},
	}
}
