package process

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
)

type Controller struct {
	stopped atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *slog.Logger
}

func NewController(parent context.Context, logger *slog.Logger) *Controller {
	ctx, cancel := context.WithCancel(parent)
	return &Controller{
		ctx:    ctx,
		cancel: cancel,
		logger: logger.With(slog.String("component", "process")),
	}
}

// Stop requests every component to finish. Later calls are no-ops.
func (c *Controller) Stop() {
	if c.stopped.Swap(true) {
		return
	}
	c.logger.Info("Stop requested")
	c.cancel()
}

func (c *Controller) StopRequested() bool {
	return c.stopped.Load() || c.ctx.Err() != nil
}

// Context is cancelled once a stop is requested.
func (c *Controller) Context() context.Context {
	return c.ctx
}

// NotifySignals stops the controller on the first of sigs to arrive,
// SIGINT or SIGTERM when none are given. The returned function releases
// the signal handler.
func (c *Controller) NotifySignals(sigs ...os.Signal) func() {
	if len(sigs) == 0 {
		sigs = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, sigs...)

	done := make(chan struct{})
	go func() {
		select {
		case s := <-sig:
			c.logger.Info("Received signal", slog.String("signal", s.String()))
			c.Stop()
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sig)
		close(done)
	}
}
