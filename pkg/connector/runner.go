package connector

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Poller is anything that can run one poll cycle.
type Poller interface {
	Process(ctx context.Context) (Status, error)
}

// RunnerConfig controls the backoff between empty or failed cycles.
type RunnerConfig struct {
	BackoffIncrement time.Duration
	MaxBackoff       time.Duration
}

// NewRunnerDefaults returns the default backoff schedule: 1s steps up to 5s.
func NewRunnerDefaults() RunnerConfig {
	return RunnerConfig{BackoffIncrement: time.Second, MaxBackoff: 5 * time.Second}
}

// Runner is the scheduler that drives a Poller. READY polls again immediately;
// BACKOFF and errors sleep for a linearly increasing, capped delay.
type Runner struct {
	cfg     RunnerConfig
	poller  Poller
	logger  zerolog.Logger
	running atomic.Bool
	sleep   func(ctx context.Context, d time.Duration) bool
}

// NewRunner creates a Runner.
func NewRunner(cfg RunnerConfig, poller Poller, logger zerolog.Logger) *Runner {
	def := NewRunnerDefaults()
	if cfg.BackoffIncrement <= 0 {
		cfg.BackoffIncrement = def.BackoffIncrement
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	return &Runner{
		cfg:    cfg,
		poller: poller,
		logger: logger.With().Str("component", "Runner").Logger(),
		sleep:  sleepContext,
	}
}

// Running reports whether Run is currently looping.
func (r *Runner) Running() bool { return r.running.Load() }

// Run polls until ctx is cancelled. A cycle already in progress when ctx is
// cancelled runs to completion. Cycle errors are logged, never returned.
func (r *Runner) Run(ctx context.Context) {
	r.running.Store(true)
	defer r.running.Store(false)
	r.logger.Info().Dur("backoff_increment", r.cfg.BackoffIncrement).Dur("max_backoff", r.cfg.MaxBackoff).Msg("Runner started.")

	cycleCtx := context.WithoutCancel(ctx)
	consecutive := 0
	for ctx.Err() == nil {
		status, err := r.poller.Process(cycleCtx)
		if err != nil {
			r.logger.Error().Err(err).Msg("Poll cycle failed.")
		}
		if err == nil && status == Ready {
			consecutive = 0
			continue
		}

		consecutive++
		delay := r.Backoff(consecutive)
		r.logger.Debug().Int("consecutive", consecutive).Dur("delay", delay).Msg("Backing off.")
		if !r.sleep(ctx, delay) {
			break
		}
	}
	r.logger.Info().Msg("Runner stopped.")
}

// Backoff is the delay after the given number of consecutive non-ready cycles.
func (r *Runner) Backoff(consecutive int) time.Duration {
	d := time.Duration(consecutive) * r.cfg.BackoffIncrement
	if d > r.cfg.MaxBackoff || d <= 0 {
		return r.cfg.MaxBackoff
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
