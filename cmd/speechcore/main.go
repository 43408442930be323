// Package main implements the speechcore command. It plays one audio file
// through a pump and processor session and logs what the processor reports.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/c360/speechcore/audio"
	"github.com/c360/speechcore/audio/stream"
	"github.com/c360/speechcore/capability"
	"github.com/c360/speechcore/component"
	"github.com/c360/speechcore/componentregistry"
	"github.com/c360/speechcore/config"
	"github.com/c360/speechcore/health"
	"github.com/c360/speechcore/metric"
	"github.com/c360/speechcore/session"
	"github.com/c360/speechcore/site"
	"github.com/c360/speechcore/threadservice"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "speechcore"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, logger, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	cfg, err := initializeConfiguration(cliCfg)
	if err != nil {
		return err
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runSession(ctx, cfg, logger, cliCfg.ShutdownTimeout)
}

// initializeCLI loads .env, parses flags and sets up logging
func initializeCLI() (*CLIConfig, *slog.Logger, bool, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, nil, false, fmt.Errorf("load .env: %w", err)
	}

	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, nil, true, nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting speechcore",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	return cliCfg, logger, false, nil
}

// loadDotEnv reads path into the environment when it exists. Variables that
// are already set win.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// initializeConfiguration loads configuration, applies flag overrides and validates
func initializeConfiguration(cliCfg *CLIConfig) (*config.Config, error) {
	loader := config.NewLoader()
	loader.EnableValidation(false)
	if cliCfg.ConfigPath != "" {
		loader.AddLayer(cliCfg.ConfigPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	applyFlagOverrides(cfg, cliCfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func applyFlagOverrides(cfg *config.Config, cliCfg *CLIConfig) {
	if cliCfg.InputPath != "" {
		cfg.Input.Path = cliCfg.InputPath
	}
	if cliCfg.InputKind != "" {
		cfg.Input.Kind = cliCfg.InputKind
	}
	if cliCfg.MetricsPort > 0 {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Port = cliCfg.MetricsPort
	}
}

// runtimeDeps bundles the long-lived objects a session run needs
type runtimeDeps struct {
	metrics  *metric.MetricsRegistry
	registry *component.Registry
	ts       *threadservice.Service
	root     capability.Handle[any]
}

func setupRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*runtimeDeps, error) {
	metricsRegistry := metric.NewMetricsRegistry()

	ts := threadservice.New(
		threadservice.WithLogger(logger),
		threadservice.WithMetrics(metricsRegistry),
		threadservice.WithQueueSize(cfg.Runtime.UserLaneQueue, cfg.Runtime.BackgroundLaneQueue),
	)
	if err := ts.Start(ctx); err != nil {
		return nil, fmt.Errorf("start thread service: %w", err)
	}

	services := site.NewServiceRegistry()
	tsHandle := capability.New[threadservice.ThreadService](ts)
	defer tsHandle.Release()
	if err := site.AddService(services, tsHandle); err != nil {
		_ = ts.Stop(cfg.Runtime.StopTimeout.Std())
		return nil, fmt.Errorf("register thread service: %w", err)
	}

	registry := component.NewRegistry(component.Dependencies{
		MetricsRegistry: metricsRegistry,
		Logger:          logger,
		Services:        services,
	})
	if err := componentregistry.Register(registry); err != nil {
		_ = ts.Stop(cfg.Runtime.StopTimeout.Std())
		return nil, fmt.Errorf("register components: %w", err)
	}
	logger.Debug("Components registered",
		"factories", registry.ListComponentTypes(),
		"capabilities", len(capability.Defined()))

	return &runtimeDeps{
		metrics:  metricsRegistry,
		registry: registry,
		ts:       ts,
		root:     capability.New[any](services),
	}, nil
}

func (d *runtimeDeps) close(timeout time.Duration) {
	d.root.Release()
	if err := d.ts.Stop(timeout); err != nil {
		slog.Warn("Thread service did not stop cleanly", "error", err)
	}
}

// openSource creates the configured input through its "<kind>-source" factory.
// The caller owns the returned handle.
func openSource(registry *component.Registry, input config.InputConfig) (capability.Handle[audio.Source], error) {
	raw, err := json.Marshal(stream.FileConfig{
		Path:          input.Path,
		SampleRate:    input.SampleRate,
		BitsPerSample: input.BitsPerSample,
		Channels:      input.Channels,
	})
	if err != nil {
		return capability.Handle[audio.Source]{}, err
	}
	name := input.Kind + "-source"
	h, ok := component.CreateObjectWithConfig[audio.Source](registry, name, raw)
	if !ok {
		return capability.Handle[audio.Source]{}, fmt.Errorf("open %s input %q", name, input.Path)
	}
	return h, nil
}

func runSession(ctx context.Context, cfg *config.Config, logger *slog.Logger, shutdownTimeout time.Duration) error {
	deps, err := setupRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(cfg.Runtime.StopTimeout.Std())

	source, err := openSource(deps.registry, cfg.Input)
	if err != nil {
		return err
	}
	defer source.Release()

	h, err := session.New(deps.registry, source, session.Config{
		Pump:               cfg.Pump.Factory,
		PumpConfig:         cfg.PumpJSON(),
		Processor:          cfg.Processor.Factory,
		ProcessorConfig:    cfg.ProcessorJSON(),
		RealTimePercentage: cfg.Input.RealTimePercentage,
	},
		session.WithParent(deps.root.Weak()),
		session.WithLogger(logger),
		session.WithMetrics(deps.metrics),
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	defer h.Release()
	s := h.Get()
	connectLogging(s, logger)
	monitor := newMonitor(deps.ts, s)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Enabled {
		server := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, deps.metrics)
		server.Handle("/health", monitor.Handler(appName))
		g.Go(func() error {
			if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return server.Stop(stopCtx)
		})
	}

	// With metrics enabled the process keeps serving after the session ends,
	// until a signal arrives.
	g.Go(func() error {
		if err := s.Start(gctx); err != nil {
			return fmt.Errorf("start session: %w", err)
		}
		select {
		case <-s.Done():
			slog.Info("Session finished", "session_id", s.ID())
			return nil
		case <-gctx.Done():
		}

		slog.Info("Shutdown signal received, stopping session", "timeout", shutdownTimeout)
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.Stop(stopCtx); err != nil {
			return fmt.Errorf("stop session: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	final := monitor.AggregateHealth(appName)
	slog.Info("speechcore shutdown complete", "health", final.Status)
	if status, ok := monitor.Get("session"); ok && status.IsUnhealthy() {
		return fmt.Errorf("session failed: %s", status.Message)
	}
	return nil
}

// newMonitor tracks the thread service lanes and the session's outcome
func newMonitor(ts *threadservice.Service, s *session.Session) *health.Monitor {
	monitor := health.NewMonitor()
	monitor.Probe("threadservice", func() health.Status {
		if state := ts.State(); state != component.StateStarted {
			return health.NewUnhealthy("threadservice", state.String())
		}
		return health.NewHealthy("threadservice", component.StateStarted.String())
	})
	monitor.Probe("user-lane", func() health.Status {
		return health.FromLaneStats("user-lane", ts.Stats().User)
	})
	monitor.Probe("background-lane", func() health.Status {
		return health.FromLaneStats("background-lane", ts.Stats().Background)
	})

	monitor.UpdateHealthy("session", "created")
	s.SessionStarted.Connect(func(session.Event) {
		monitor.UpdateHealthy("session", "streaming")
	})
	s.Canceled.Connect(func(e session.CanceledEvent) {
		monitor.Update("session", health.FromCancellation("session", e.Info))
	})
	return monitor
}

func connectLogging(s *session.Session, logger *slog.Logger) {
	s.SessionStarted.Connect(func(e session.Event) {
		logger.Info("Session started", "session_id", e.SessionID)
	})
	s.Level.Connect(func(e session.LevelEvent) {
		logger.Info("Audio level",
			"session_id", e.SessionID,
			"peak", e.Level.Peak,
			"rms", e.Level.RMS,
			"dbfs", e.Level.DBFS(),
			"duration", e.Level.Duration)
	})
	s.Canceled.Connect(func(e session.CanceledEvent) {
		logger.Info("Session canceled",
			"session_id", e.SessionID,
			"reason", e.Info.Reason,
			"code", e.Info.Code)
	})
	s.SessionStopped.Connect(func(e session.Event) {
		logger.Info("Session stopped", "session_id", e.SessionID)
	})
}
