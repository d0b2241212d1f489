package scanner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/angeloszaimis/service-monitor/internal/instance"
	"github.com/angeloszaimis/service-monitor/internal/metrics"
	"github.com/angeloszaimis/service-monitor/internal/probe"
	"github.com/angeloszaimis/service-monitor/internal/registry"
	"github.com/angeloszaimis/service-monitor/internal/update"
)

const (
	// upAttempts is the probe budget of an instance currently UP: one
	// failure is enough to report it DOWN.
	upAttempts = 1
	// recoveryAttempts is the probe budget of an instance not UP, giving it
	// several chances to prove it recovered.
	recoveryAttempts = 3
)

// StopSignal reports a process-wide stop request.
type StopSignal interface {
	StopRequested() bool
}

// RebalanceSignal reports that group assignment must be recomputed.
type RebalanceSignal interface {
	NeedsRebalance() bool
}

type Options struct {
	// RetryCount caps the probe budget of any instance. Defaults to 3.
	RetryCount int
	// DefaultTimeout applies to instances without a connect timeout.
	DefaultTimeout time.Duration
	Metrics        *metrics.Metrics
	Clock          clock.Clock
}

type Scanner struct {
	registry  registry.Reader
	prober    probe.Prober
	updates   update.Submitter
	stop      StopSignal
	rebalance RebalanceSignal
	opts      Options
	logger    *slog.Logger
}

func New(
	reg registry.Reader,
	prober probe.Prober,
	updates update.Submitter,
	stop StopSignal,
	rebalance RebalanceSignal,
	opts Options,
	logger *slog.Logger,
) *Scanner {
	if opts.RetryCount < 1 {
		opts.RetryCount = recoveryAttempts
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = instance.DefaultConnectTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Scanner{
		registry:  reg,
		prober:    prober,
		updates:   updates,
		stop:      stop,
		rebalance: rebalance,
		opts:      opts,
		logger:    logger.With(slog.String("component", "scanner")),
	}
}

// Scan checks every member of groupID once.
func (s *Scanner) Scan(ctx context.Context, groupID string) {
	start := s.opts.Clock.Now()

	members, err := s.registry.ListMembers(ctx, groupID)
	if err != nil {
		s.logger.Warn("Cannot list group members",
			slog.String("group", groupID),
			slog.Any("err", err))
		return
	}

	for _, member := range members {
		if s.halted(ctx) {
			break
		}
		s.check(ctx, groupID, member)
	}

	elapsed := s.opts.Clock.Since(start)
	s.opts.Metrics.RecordScan(groupID, len(members), elapsed)
	s.logger.Info("Scanned group",
		slog.String("group", groupID),
		slog.Int("members", len(members)),
		slog.Duration("duration", elapsed))
}

func (s *Scanner) check(ctx context.Context, groupID, member string) {
	inst, err := s.registry.Instance(ctx, groupID, member)
	if errors.Is(err, registry.ErrNotFound) {
		return
	}
	if err != nil {
		s.logger.Warn("Cannot read instance",
			slog.String("instance", instance.Key(groupID, member)),
			slog.Any("err", err))
		return
	}
	if !inst.Checkable() {
		return
	}

	budget := s.budget(inst.Status)
	status, attempts := s.probe(ctx, inst, budget)

	s.logger.Info("Checked service",
		slog.String("instance", inst.Key()),
		slog.String("address", inst.Address()),
		slog.String("old_status", inst.Status.String()),
		slog.String("new_status", status.String()),
		slog.Int("attempts", attempts),
		slog.Int("max_attempts", budget))
	s.opts.Metrics.RecordStatus(inst.Key(), inst.Status)

	if status == inst.Status {
		return
	}

	ev := instance.StatusChangeEvent{
		Key:       inst.Key(),
		Status:    status,
		Previous:  inst.Status,
		Attempts:  attempts,
		Timestamp: s.opts.Clock.Now(),
	}
	s.updates.Submit(ev)
	s.opts.Metrics.RecordTransition(ev)
}

// probe runs up to budget connect attempts and stops at the first success.
func (s *Scanner) probe(ctx context.Context, inst instance.Instance, budget int) (instance.Status, int) {
	target := probe.TargetOf(inst)
	timeout := inst.Timeout(s.opts.DefaultTimeout)

	attempts := 0
	for attempts < budget {
		if attempts > 0 && s.halted(ctx) {
			break
		}
		attempts++

		reachable := s.prober.Check(ctx, target, timeout, inst.Status)
		s.opts.Metrics.RecordProbe(inst.Key(), reachable)
		if reachable {
			return instance.StatusUp, attempts
		}

		s.logger.Debug("Cannot connect to service",
			slog.String("instance", inst.Key()),
			slog.Int("attempt", attempts),
			slog.Int("max_attempts", budget))
	}
	return instance.StatusDown, attempts
}

func (s *Scanner) budget(current instance.Status) int {
	budget := recoveryAttempts
	if current == instance.StatusUp {
		budget = upAttempts
	}
	if budget > s.opts.RetryCount {
		budget = s.opts.RetryCount
	}
	return budget
}

func (s *Scanner) halted(ctx context.Context) bool {
	return ctx.Err() != nil || s.stop.StopRequested() || s.rebalance.NeedsRebalance()
}
