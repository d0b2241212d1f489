//go:build ignore

// Flapper is a TCP endpoint for exercising the monitor by hand. It accepts
// connections for -up, closes its listener for -down, and repeats, so a
// monitored instance pointing at it keeps moving between UP and DOWN.
//
// Usage:
//
//	go run scripts/flapper.go -addr 127.0.0.1:8081 -up 10s -down 5s
package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8081", "listen address")
	up := flag.Duration("up", 10*time.Second, "how long to accept connections")
	down := flag.Duration("down", 5*time.Second, "how long to stay closed")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	for {
		l, err := net.Listen("tcp", *addr)
		if err != nil {
			logger.Error("Cannot listen", slog.String("addr", *addr), slog.Any("err", err))
			os.Exit(1)
		}
		logger.Info("Accepting connections", slog.String("addr", *addr), slog.Duration("for", *up))

		go accept(l, logger)

		if !sleep(ctx, *up) {
			l.Close()
			return
		}

		l.Close()
		logger.Info("Listener closed", slog.Duration("for", *down))

		if !sleep(ctx, *down) {
			return
		}
	}
}

func accept(l net.Listener, logger *slog.Logger) {
	for {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		logger.Debug("Accepted probe", slog.String("from", conn.RemoteAddr().String()))
		conn.Close()
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
