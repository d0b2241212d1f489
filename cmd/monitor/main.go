package main

import (
	"errors"
	"log/slog"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		if !errors.Is(err, errUnreachable) {
			slog.Error("monitor failed", slog.Any("err", err))
		}
		os.Exit(1)
	}
}
