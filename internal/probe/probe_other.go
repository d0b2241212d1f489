//go:build !linux

package probe

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/angeloszaimis/service-monitor/internal/instance"
)

// Check performs one bounded connect to target.
func (p *TCPProbe) Check(ctx context.Context, target Target, timeout time.Duration, current instance.Status) bool {
	if ctx.Err() != nil {
		return false
	}
	timeout = EffectiveTimeout(timeout)

	if net.ParseIP(target.Host).To4() == nil {
		p.failure(current, "invalid ipv4 address", target)
		return false
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.Dial("tcp4", target.String())
	if err != nil {
		p.failure(current, "connect failed", target, slog.Duration("timeout", timeout), slog.Any("err", err))
		return false
	}
	conn.Close()
	return true
}
