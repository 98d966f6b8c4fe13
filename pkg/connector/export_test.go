package connector

import (
	"context"
	"time"
)

// SetSleep replaces the runner's backoff sleep for tests.
func (r *Runner) SetSleep(fn func(ctx context.Context, d time.Duration) bool) {
	r.sleep = fn
}
