// Package dispatcher runs a pool of independent workers and stops them
// together.
package dispatcher

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Runner is a blocking unit of work, typically a *worker.Worker.
type Runner interface {
	Run(ctx context.Context) error
}

// Dispatcher fans work out to a fixed set of runners.
type Dispatcher struct {
	runners []Runner
	logger  *zap.Logger
}

// New creates a Dispatcher.
func New(runners []Runner, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{runners: runners, logger: logger}
}

// Run starts every runner and blocks until all return. The first runner
// error cancels the others and is returned.
func (d *Dispatcher) Run(ctx context.Context) error {
	if len(d.runners) == 0 {
		return fmt.Errorf("no workers configured")
	}
	g, gctx := errgroup.WithContext(ctx)
	for i, r := range d.runners {
		g.Go(func() error {
			if err := r.Run(gctx); err != nil {
				d.logger.Error("worker stopped with error", zap.Int("worker", i), zap.Error(err))
				return fmt.Errorf("worker %d: %w", i, err)
			}
			d.logger.Debug("worker stopped", zap.Int("worker", i))
			return nil
		})
	}
	return g.Wait()
}
