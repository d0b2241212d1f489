package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/angeloszaimis/service-monitor/internal/metrics"
	"github.com/angeloszaimis/service-monitor/internal/scanner"
	"github.com/angeloszaimis/service-monitor/internal/scheduler"
)

const (
	DefaultMaxWorkers = 4
	defaultIdleWait   = time.Second
)

// Assigner provides the groups this node owns and signals when they change.
type Assigner interface {
	AssignedGroups(worker int) []string
	NeedsRebalance() bool
	Acknowledge()
}

type Options struct {
	MaxWorkers int
	Interval   time.Duration
	// IdleWait is how often an idle pool looks for an assignment.
	IdleWait time.Duration
	Clock    clock.Clock
	Metrics  *metrics.Metrics
}

type Manager struct {
	assigner Assigner
	scanner  scheduler.GroupScanner
	stop     scanner.StopSignal
	opts     Options
	logger   *slog.Logger

	generations atomic.Int64
}

func NewManager(
	assigner Assigner,
	groups scheduler.GroupScanner,
	stop scanner.StopSignal,
	opts Options,
	logger *slog.Logger,
) *Manager {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = DefaultMaxWorkers
	}
	if opts.IdleWait <= 0 {
		opts.IdleWait = defaultIdleWait
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Manager{
		assigner: assigner,
		scanner:  groups,
		stop:     stop,
		opts:     opts,
		logger:   logger.With(slog.String("component", "pool")),
	}
}

// Generations counts the worker pools started so far.
func (m *Manager) Generations() int64 {
	return m.generations.Load()
}

// Run keeps a worker pool alive until ctx is done or a stop is requested.
func (m *Manager) Run(ctx context.Context) error {
	for !m.stopping(ctx) {
		m.assigner.Acknowledge()
		groups := m.assigner.AssignedGroups(0)

		if len(groups) == 0 {
			m.logger.Info("No groups assigned, waiting")
			m.idle(ctx)
			continue
		}

		if err := m.runWorkers(ctx, groups); err != nil {
			return fmt.Errorf("worker pool: %w", err)
		}
	}

	m.logger.Info("Worker pool stopped")
	return nil
}

func (m *Manager) runWorkers(ctx context.Context, groups []string) error {
	size := min(m.opts.MaxWorkers, len(groups))
	table := scheduler.NewSlotTable(groups, size)
	generation := m.generations.Add(1)

	m.logger.Info("Starting workers",
		slog.Int64("generation", generation),
		slog.Int("workers", size),
		slog.Int("groups", len(groups)))

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < size; i++ {
		w := scheduler.NewWorker(i, table, m.scanner, m.stop, m.assigner, scheduler.Options{
			Interval: m.opts.Interval,
			PoolSize: size,
			Clock:    m.opts.Clock,
			Metrics:  m.opts.Metrics,
		}, m.logger)
		g.Go(func() error {
			return w.Run(gctx)
		})
	}

	return g.Wait()
}

// idle waits until the assignment changes or the pool must stop.
func (m *Manager) idle(ctx context.Context) {
	ticker := m.opts.Clock.Ticker(m.opts.IdleWait)
	defer ticker.Stop()

	for !m.stopping(ctx) && !m.assigner.NeedsRebalance() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Manager) stopping(ctx context.Context) bool {
	return ctx.Err() != nil || m.stop.StopRequested()
}
