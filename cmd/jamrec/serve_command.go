package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/alxayo/go-jamrec/internal/config"
	"github.com/alxayo/go-jamrec/internal/hooks"
	"github.com/alxayo/go-jamrec/internal/ingest"
	"github.com/alxayo/go-jamrec/internal/logger"
	"github.com/alxayo/go-jamrec/internal/recorder"
)

const shutdownTimeout = 5 * time.Second

type serveOptions struct {
	baseDir       string
	listenAddr    string
	metricsAddr   string
	frameSize     int
	stdioEvents   string
	disableMetric bool
}

func newServeCommand(ctx *commandContext) *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Record sessions delivered on the ingest socket until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := opts.apply(cmd, cfg); err != nil {
				return err
			}
			sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(sigCtx, cfg, opts.stdioEvents)
		},
	}
	cmd.Flags().StringVar(&opts.baseDir, "base-dir", "", "Recording base directory (overrides recording.base_dir)")
	cmd.Flags().StringVar(&opts.listenAddr, "listen", "", "Ingest listen address (overrides ingest.listen_addr)")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-listen", "", "Prometheus listen address (overrides metrics.listen_addr)")
	cmd.Flags().BoolVar(&opts.disableMetric, "no-metrics", false, "Do not serve /metrics")
	cmd.Flags().IntVar(&opts.frameSize, "frame-size", 0, "Samples per channel per frame (overrides recording.frame_size_samples)")
	cmd.Flags().StringVar(&opts.stdioEvents, "stdio-events", "", "Mirror every event to stderr: json|env")
	return cmd
}

// apply folds explicitly set flags into cfg.
func (o serveOptions) apply(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("base-dir") {
		dir, err := config.ExpandPath(o.baseDir)
		if err != nil {
			return fmt.Errorf("--base-dir: %w", err)
		}
		cfg.Recording.BaseDir = dir
	}
	if cmd.Flags().Changed("listen") {
		cfg.Ingest.ListenAddr = o.listenAddr
	}
	if cmd.Flags().Changed("metrics-listen") {
		cfg.Metrics.ListenAddr = o.metricsAddr
	}
	if o.disableMetric {
		cfg.Metrics.ListenAddr = ""
	}
	if cmd.Flags().Changed("frame-size") {
		if o.frameSize <= 0 {
			return errors.New("--frame-size must be positive")
		}
		cfg.Recording.FrameSizeSamples = o.frameSize
	}
	switch o.stdioEvents {
	case "", hooks.FormatJSON, hooks.FormatEnv:
	default:
		return fmt.Errorf("--stdio-events: unsupported format %q", o.stdioEvents)
	}
	return nil
}

func runServe(ctx context.Context, cfg *config.Config, stdioEvents string) error {
	log := logger.Logger().With("component", "cli")

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	hm, err := newHookManager(cfg, stdioEvents, logger.Logger().With("component", "hooks"))
	if err != nil {
		return err
	}
	defer hm.Close()

	rec, err := recorder.New(recorder.Config{
		BaseDir:     cfg.Recording.BaseDir,
		FrameSize:   cfg.Recording.FrameSizeSamples,
		MaxChannels: cfg.Recording.MaxChannels,
		QueueSize:   cfg.Ingest.QueueSize,
		Logger:      logger.Logger(),
		Notifier:    hm,
		Metrics:     recorder.NewMetrics(reg),
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := rec.Close(); err != nil {
			log.Warn("failed to release base directory lock", "error", err)
		}
	}()

	runErr := make(chan error, 1)
	go func() { runErr <- rec.Run(context.Background()) }()

	in := ingest.New(ingest.Config{ListenAddr: cfg.Ingest.ListenAddr, Logger: logger.Logger()}, rec)
	if err := in.Start(); err != nil {
		quitRecorder(rec, shutdownTimeout, log)
		return err
	}

	var metricsSrv *http.Server
	if cfg.Metrics.ListenAddr != "" {
		metricsSrv, err = startMetricsServer(cfg.Metrics.ListenAddr, reg, log)
		if err != nil {
			_ = in.Stop()
			quitRecorder(rec, shutdownTimeout, log)
			return err
		}
	}

	log.Info("jamrec started",
		"version", version,
		"base_dir", rec.BaseDir(),
		"ingest_addr", in.Addr().String(),
		"frame_size", rec.FrameSize())

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-runErr:
		log.Error("recorder loop exited", "error", err)
	}

	if err := in.Stop(); err != nil {
		log.Error("ingest stop error", "error", err)
	}
	quitRecorder(rec, shutdownTimeout, log)
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return nil
}

// drainer is the part of *recorder.Recorder needed at shutdown.
type drainer interface {
	Quit(ctx context.Context) error
}

// quitRecorder drains and finalizes the current session. Past timeout it
// logs and keeps waiting: open files are never abandoned, and the base
// directory lock is only released once the loop has exited.
func quitRecorder(rec drainer, timeout time.Duration, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	err := rec.Quit(ctx)
	if err == nil {
		log.Info("recorder stopped cleanly")
		return
	}
	log.Warn("recorder still finalizing, waiting", "error", err, "waited", timeout.String())
	// Retry so a quit that never made it into a full queue is sent.
	_ = rec.Quit(context.Background())
	log.Info("recorder stopped")
}

func startMetricsServer(addr string, reg *prometheus.Registry, log *slog.Logger) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "error", err)
		}
	}()
	log.Info("metrics listening", "addr", ln.Addr().String())
	return srv, nil
}

// newHookManager builds the hook manager from the [[hooks]] tables.
func newHookManager(cfg *config.Config, stdioEvents string, log *slog.Logger) (*hooks.HookManager, error) {
	hm := hooks.NewHookManager(hooks.Config{
		Timeout:     cfg.HookTimeout(config.Hook{}),
		Concurrency: cfg.HooksRuntime.Concurrency,
		StdioFormat: stdioEvents,
	}, log)

	for _, h := range cfg.Hooks {
		hook, err := buildHook(h, cfg.HookTimeout(h))
		if err != nil {
			_ = hm.Close()
			return nil, err
		}
		for _, name := range h.Events {
			et, ok := hooks.ParseEventType(name)
			if !ok {
				_ = hm.Close()
				return nil, fmt.Errorf("hook %s: unknown event %q", h.ID, name)
			}
			if err := hm.RegisterHook(et, hook); err != nil {
				_ = hm.Close()
				return nil, err
			}
		}
	}
	return hm, nil
}

// buildHook turns one [[hooks]] entry into a hook.
func buildHook(h config.Hook, timeout time.Duration) (hooks.Hook, error) {
	switch h.Type {
	case "shell":
		env := make([]string, 0, len(h.Env))
		for k, v := range h.Env {
			env = append(env, k+"="+v)
		}
		sort.Strings(env)
		return hooks.NewShellHookWithCommand(h.ID, h.Command, h.Args).
			SetPassJSON(h.PassJSON).
			SetTimeout(timeout).
			SetEnv(env), nil
	case "webhook":
		wh := hooks.NewWebhookHook(h.ID, h.URL, timeout)
		for k, v := range h.Headers {
			wh.AddHeader(k, v)
		}
		return wh, nil
	case "stdio":
		sh := hooks.NewStdioHook(h.ID, h.Format)
		if h.Output == "stdout" {
			sh.SetOutput(os.Stdout)
		}
		return sh, nil
	}
	return nil, fmt.Errorf("hook %s: unsupported type %q", h.ID, h.Type)
}
