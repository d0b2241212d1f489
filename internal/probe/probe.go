package probe

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/angeloszaimis/service-monitor/internal/instance"
)

// MinTimeout is the floor applied to every requested connect timeout.
const MinTimeout = time.Second

// Target is the endpoint a probe connects to.
type Target struct {
	Host string
	Port int
}

func (t Target) String() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// TargetOf returns the probe target of an instance snapshot.
func TargetOf(inst instance.Instance) Target {
	return Target{Host: inst.Host, Port: inst.Port}
}

// Prober checks whether a target accepts TCP connections. current is the
// last known status of the target and only affects logging.
type Prober interface {
	Check(ctx context.Context, target Target, timeout time.Duration, current instance.Status) bool
}

// Func adapts a plain function to the Prober interface.
type Func func(ctx context.Context, target Target, timeout time.Duration, current instance.Status) bool

func (f Func) Check(ctx context.Context, target Target, timeout time.Duration, current instance.Status) bool {
	return f(ctx, target, timeout, current)
}

// TCPProbe is the production Prober.
type TCPProbe struct {
	logger *slog.Logger
}

// New creates a TCP probe logging through logger.
func New(logger *slog.Logger) *TCPProbe {
	if logger == nil {
		logger = slog.Default()
	}
	return &TCPProbe{logger: logger.With(slog.String("component", "probe"))}
}

// EffectiveTimeout clamps a requested timeout to MinTimeout.
func EffectiveTimeout(timeout time.Duration) time.Duration {
	if timeout < MinTimeout {
		return MinTimeout
	}
	return timeout
}

// failure logs a failed check at error level unless the target is already
// known to be DOWN, which keeps sustained outages from flooding the log.
func (p *TCPProbe) failure(current instance.Status, msg string, target Target, attrs ...any) {
	if current == instance.StatusDown {
		return
	}
	attrs = append([]any{slog.String("target", target.String())}, attrs...)
	p.logger.Error(msg, attrs...)
}
