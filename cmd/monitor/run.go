package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/angeloszaimis/service-monitor/config"
	"github.com/angeloszaimis/service-monitor/internal/balance"
	"github.com/angeloszaimis/service-monitor/internal/handler"
	"github.com/angeloszaimis/service-monitor/internal/httpserver"
	"github.com/angeloszaimis/service-monitor/internal/metrics"
	"github.com/angeloszaimis/service-monitor/internal/pool"
	"github.com/angeloszaimis/service-monitor/internal/probe"
	"github.com/angeloszaimis/service-monitor/internal/process"
	"github.com/angeloszaimis/service-monitor/internal/scanner"
	"github.com/angeloszaimis/service-monitor/internal/update"
	"github.com/angeloszaimis/service-monitor/pkg/logger"
)

func newRunCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the monitor until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			log := logger.New(logger.Options{
				Level:       cfg.Logging.Level,
				AddSource:   true,
				Environment: cfg.Server.Environment,
				Output:      cmd.OutOrStdout(),
			})

			proc := process.NewController(cmd.Context(), log)
			release := proc.NotifySignals()
			defer release()

			return runMonitor(proc, cfg, log)
		},
	}
}

// runMonitor wires every component and blocks until proc is stopped or one
// of them fails.
func runMonitor(proc *process.Controller, cfg *config.Config, log *slog.Logger) error {
	ctx := proc.Context()
	m := metrics.New()

	reg, err := openRegistry(ctx, cfg.Registry, log)
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	defer reg.Close()

	dispatcher := update.NewDispatcher(reg, update.Options{
		HighWater: cfg.Monitor.UpdateBuffer,
		Metrics:   m,
	}, log)
	dispatcher.Start(ctx)

	balancer := balance.NewController(reg, balance.Options{
		NodeID:          cfg.Balance.NodeID,
		Peers:           cfg.Balance.Peers,
		VirtualNodes:    cfg.Balance.VirtualNodes,
		RefreshInterval: cfg.Balance.Refresh(),
	}, log)
	if err := balancer.Refresh(ctx); err != nil {
		log.Warn("Initial group refresh failed, retrying on the next interval", slog.Any("err", err))
	}

	groupScanner := scanner.New(reg, probe.New(log), dispatcher, proc, balancer, scanner.Options{
		RetryCount:     cfg.Monitor.RetryCount,
		DefaultTimeout: cfg.Monitor.Timeout(),
		Metrics:        m,
	}, log)

	workers := pool.NewManager(balancer, groupScanner, proc, pool.Options{
		MaxWorkers: cfg.Monitor.MaxWorkers,
		Interval:   cfg.Monitor.Interval(),
		Metrics:    m,
	}, log)

	status := handler.NewStatusHandler(log, cfg.Balance.NodeID, m, balancer, proc, dispatcher, workers)
	srv, err := httpserver.New(cfg.Server.Address, status.Routes(), log)
	if err != nil {
		return fmt.Errorf("create status server: %w", err)
	}

	log.Info("Monitor started",
		slog.String("node", cfg.Balance.NodeID),
		slog.String("registry", cfg.Registry.Backend),
		slog.Int("max_workers", cfg.Monitor.MaxWorkers),
		slog.Duration("scan_interval", cfg.Monitor.Interval()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return balancer.Run(gctx) })
	g.Go(func() error { return workers.Run(gctx) })
	g.Go(func() error { return srv.Run(gctx) })

	err = g.Wait()
	proc.Stop()
	<-dispatcher.Done()

	log.Info("Monitor stopped")
	return err
}
