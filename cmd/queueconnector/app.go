package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/illmade-knight/go-queueconnector/pkg/connector"
	"github.com/illmade-knight/go-queueconnector/pkg/microservice"
	"github.com/illmade-knight/go-queueconnector/pkg/sink"
	"github.com/rs/zerolog"
)

// app is a validated connector configuration ready to run.
type app struct {
	file   *FileConfig
	source *connector.Config
	sink   *sink.Config
	logger zerolog.Logger
}

func prepare(configPath string, environ []string, pretty bool, out io.Writer) (*app, error) {
	fc, err := loadFileConfig(configPath, environ)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(fc.LogLevel, pretty, out)
	if err != nil {
		return nil, err
	}
	source, err := connector.LoadConfig(fc.Source)
	if err != nil {
		return nil, fmt.Errorf("invalid source configuration: %w", err)
	}
	sinkCfg, err := sink.LoadConfig(fc.Sink)
	if err != nil {
		return nil, fmt.Errorf("invalid sink configuration: %w", err)
	}
	return &app{file: fc, source: source, sink: sinkCfg, logger: logger}, nil
}

func newLogger(level string, pretty bool, out io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Str("service", "queueconnector").Logger(), nil
}

// run wires the adapter, sink, controller and runner, serves the operational
// endpoints and blocks until a termination signal arrives.
func (a *app) run(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := a.logger.With().Str("transport", a.source.Transport).Logger()

	client, err := connector.NewQueueClient(ctx, a.source, logger)
	if err != nil {
		return fmt.Errorf("failed to create queue client: %w", err)
	}
	defer a.closeWithTimeout("queue client", client.Close)

	downstream, err := sink.New(ctx, a.sink, logger)
	if err != nil {
		return fmt.Errorf("failed to create sink: %w", err)
	}
	defer a.closeWithTimeout("sink", downstream.Close)

	metrics := connector.NewMetrics("queueconnector")
	controller, err := connector.NewController(a.source.ControllerConfig(), client, downstream, metrics, logger)
	if err != nil {
		return err
	}
	runner := connector.NewRunner(connector.RunnerConfig{
		BackoffIncrement: a.file.Runner.BackoffIncrement,
		MaxBackoff:       a.file.Runner.MaxBackoff,
	}, controller, logger)

	server := microservice.NewBaseServer(logger, a.file.HTTPPort, runner.Running, metrics.Registry())
	if err := server.Start(); err != nil {
		return err
	}
	defer a.closeWithTimeout("http server", server.Shutdown)

	runner.Run(ctx)
	logger.Info().Msg("Shutdown signal received, cleaning up.")
	return nil
}

func (a *app) closeWithTimeout(name string, closeFn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), a.file.Runner.ShutdownTimeout)
	defer cancel()
	if err := closeFn(ctx); err != nil {
		a.logger.Error().Err(err).Str("resource", name).Msg("Error during shutdown.")
	}
}
