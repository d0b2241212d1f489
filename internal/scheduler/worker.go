package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/angeloszaimis/service-monitor/internal/metrics"
	"github.com/angeloszaimis/service-monitor/internal/scanner"
)

const DefaultInterval = 3 * time.Second

// GroupScanner checks every member of one group.
type GroupScanner interface {
	Scan(ctx context.Context, groupID string)
}

type Options struct {
	// Interval between two passes of the same worker. Defaults to 3s.
	Interval time.Duration
	// PoolSize is the number of workers sharing the slot table.
	PoolSize int
	Clock    clock.Clock
	Metrics  *metrics.Metrics
}

// Worker owns one slot of a SlotTable and scans its group once per interval.
type Worker struct {
	id        int
	slot      int
	table     *SlotTable
	scanner   GroupScanner
	stop      scanner.StopSignal
	rebalance scanner.RebalanceSignal
	opts      Options
	logger    *slog.Logger

	deadline time.Time
}

func NewWorker(
	id int,
	table *SlotTable,
	groups GroupScanner,
	stop scanner.StopSignal,
	rebalance scanner.RebalanceSignal,
	opts Options,
	logger *slog.Logger,
) *Worker {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = 1
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Worker{
		id:        id,
		slot:      id,
		table:     table,
		scanner:   groups,
		stop:      stop,
		rebalance: rebalance,
		opts:      opts,
		logger:    logger.With(slog.String("component", "scheduler"), slog.Int("worker", id)),
		deadline:  opts.Clock.Now().Add(opts.Interval),
	}
}

func (w *Worker) Slot() int {
	return w.slot
}

// Run ticks until ctx is done or a stop or rebalance is requested. The
// first pass runs one interval after the worker was created.
func (w *Worker) Run(ctx context.Context) error {
	w.opts.Metrics.AddWorkers(1)
	defer w.opts.Metrics.AddWorkers(-1)

	w.logger.Info("Worker started", slog.Int("slot", w.slot))
	defer w.logger.Info("Worker stopped", slog.Int("slot", w.slot))

	for !w.halted(ctx) {
		if !w.wait(ctx, w.step(ctx)) {
			break
		}
	}
	return nil
}

// step runs a pass once the deadline is reached and returns how long to
// wait before the next step.
func (w *Worker) step(ctx context.Context) time.Duration {
	if remaining := w.deadline.Sub(w.opts.Clock.Now()); remaining > 0 {
		return remaining
	}

	w.RunPass(ctx)
	w.deadline = w.opts.Clock.Now().Add(w.opts.Interval)
	return w.opts.Interval
}

// RunPass scans the current group and rotates to the next slot when the
// pool cannot hold every group at once.
func (w *Worker) RunPass(ctx context.Context) {
	groupID, ok := w.table.Group(w.slot)
	if !ok {
		w.logger.Debug("No group assigned")
		return
	}

	w.logger.Info("Running pass",
		slog.Int("slot", w.slot),
		slog.String("group", groupID))
	w.scanner.Scan(ctx, groupID)

	if w.table.Len() <= w.opts.PoolSize {
		return
	}
	if w.halted(ctx) {
		return
	}

	previous := w.slot
	w.slot = w.table.Rotate(w.slot)
	w.logger.Debug("Rotated slot",
		slog.Int("from", previous),
		slog.Int("to", w.slot),
		slog.String("group", groupID))
}

func (w *Worker) wait(ctx context.Context, d time.Duration) bool {
	timer := w.opts.Clock.Timer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (w *Worker) halted(ctx context.Context) bool {
	return ctx.Err() != nil || w.stop.StopRequested() || w.rebalance.NeedsRebalance()
}
