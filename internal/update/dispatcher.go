package update

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/eapache/queue"

	"github.com/angeloszaimis/service-monitor/internal/circuitbreaker"
	"github.com/angeloszaimis/service-monitor/internal/instance"
	"github.com/angeloszaimis/service-monitor/internal/metrics"
	"github.com/angeloszaimis/service-monitor/internal/registry"
)

// Submitter accepts status change events without blocking.
type Submitter interface {
	Submit(ev instance.StatusChangeEvent)
}

// Options tunes delivery. Zero values select the defaults.
type Options struct {
	MaxAttempts      int
	InitialInterval  time.Duration
	MaxInterval      time.Duration
	BreakerThreshold int
	BreakerTimeout   time.Duration
	DrainTimeout     time.Duration
	// HighWater is the backlog size that triggers a warning. Submit never
	// blocks or drops past it.
	HighWater int
	Clock     clock.Clock
	Metrics   *metrics.Metrics
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.InitialInterval <= 0 {
		o.InitialInterval = 100 * time.Millisecond
	}
	if o.MaxInterval <= 0 {
		o.MaxInterval = 2 * time.Second
	}
	if o.BreakerThreshold <= 0 {
		o.BreakerThreshold = 3
	}
	if o.BreakerTimeout <= 0 {
		o.BreakerTimeout = 10 * time.Second
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = 5 * time.Second
	}
	if o.HighWater <= 0 {
		o.HighWater = 1024
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	return o
}

// Dispatcher is the update pipeline between the scanners and the registry.
type Dispatcher struct {
	writer  registry.StatusWriter
	opts    Options
	breaker *circuitbreaker.CircuitBreaker
	logger  *slog.Logger

	mutex   sync.Mutex
	pending *queue.Queue
	wake    chan struct{}
	done    chan struct{}
}

func NewDispatcher(writer registry.StatusWriter, opts Options, logger *slog.Logger) *Dispatcher {
	opts = opts.withDefaults()
	return &Dispatcher{
		writer:  writer,
		opts:    opts,
		breaker: circuitbreaker.New(opts.BreakerThreshold, opts.BreakerTimeout, opts.Clock),
		logger:  logger.With(slog.String("component", "update")),
		pending: queue.New(),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Submit enqueues ev for delivery.
func (d *Dispatcher) Submit(ev instance.StatusChangeEvent) {
	d.mutex.Lock()
	d.pending.Add(ev)
	n := d.pending.Length()
	d.mutex.Unlock()

	d.opts.Metrics.SetPendingUpdates(n)
	if n == d.opts.HighWater {
		d.logger.Warn("Update backlog is growing",
			slog.Int("pending", n),
			slog.String("instance", ev.Key))
	}

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of events not yet written.
func (d *Dispatcher) Pending() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.pending.Length()
}

// Start runs the delivery loop until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	go d.run(ctx)
}

// Done is closed once the loop has exited and the queue was drained.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

func (d *Dispatcher) run(ctx context.Context) {
	d.logger.Info("Update dispatcher started")
	defer close(d.done)
	defer d.logger.Info("Update dispatcher stopped")

	for {
		select {
		case <-ctx.Done():
			d.drain()
			return
		case <-d.wake:
		}

		for {
			ev, ok := d.peek()
			if !ok {
				break
			}

			if !d.breaker.Allow() {
				if !d.sleep(ctx, d.breaker.RetryIn()) {
					d.drain()
					return
				}
				continue
			}

			if err := d.deliver(ctx, ev); err != nil {
				if ctx.Err() != nil {
					d.drain()
					return
				}
				d.breaker.RecordFailure()
				d.opts.Metrics.RecordFailedUpdate()
				d.logger.Warn("Status update failed, keeping it queued",
					slog.String("instance", ev.Key),
					slog.String("status", ev.Status.String()),
					slog.String("breaker", d.breaker.State().String()),
					slog.Any("err", err))
				continue
			}

			d.breaker.RecordSuccess()
			d.pop()
		}
	}
}

// deliver writes one event with exponential backoff. A missing instance is
// not retried: the registry no longer knows it, so the event is dropped.
func (d *Dispatcher) deliver(ctx context.Context, ev instance.StatusChangeEvent) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = d.opts.InitialInterval
	policy.MaxInterval = d.opts.MaxInterval
	policy.MaxElapsedTime = 0

	op := func() error {
		err := d.writer.UpdateStatus(ctx, ev.Key, ev.Status)
		if errors.Is(err, registry.ErrNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(d.opts.MaxAttempts-1)), ctx))
	if errors.Is(err, registry.ErrNotFound) {
		d.logger.Warn("Dropping status update for unknown instance", slog.String("instance", ev.Key))
		return nil
	}
	if err != nil {
		return err
	}

	d.logger.Info("Status updated",
		slog.String("instance", ev.Key),
		slog.String("old_status", ev.Previous.String()),
		slog.String("new_status", ev.Status.String()))
	return nil
}

// drain makes one bounded best-effort attempt at every queued event.
func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.DrainTimeout)
	defer cancel()

	for {
		ev, ok := d.peek()
		if !ok {
			return
		}
		if err := d.writer.UpdateStatus(ctx, ev.Key, ev.Status); err != nil && !errors.Is(err, registry.ErrNotFound) {
			d.logger.Error("Status update lost on shutdown",
				slog.String("instance", ev.Key),
				slog.String("status", ev.Status.String()),
				slog.Any("err", err))
		}
		d.pop()
	}
}

func (d *Dispatcher) sleep(ctx context.Context, wait time.Duration) bool {
	if wait <= 0 {
		return ctx.Err() == nil
	}
	timer := d.opts.Clock.Timer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (d *Dispatcher) peek() (instance.StatusChangeEvent, bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.pending.Length() == 0 {
		return instance.StatusChangeEvent{}, false
	}
	return d.pending.Peek().(instance.StatusChangeEvent), true
}

func (d *Dispatcher) pop() {
	d.mutex.Lock()
	d.pending.Remove()
	n := d.pending.Length()
	d.mutex.Unlock()

	d.opts.Metrics.SetPendingUpdates(n)
}
