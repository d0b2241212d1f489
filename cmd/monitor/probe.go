package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/angeloszaimis/service-monitor/internal/instance"
	"github.com/angeloszaimis/service-monitor/internal/probe"
	"github.com/angeloszaimis/service-monitor/pkg/logger"
)

var errUnreachable = errors.New("unreachable")

func newProbeCommand() *cobra.Command {
	var (
		timeout time.Duration
		level   string
	)

	cmd := &cobra.Command{
		Use:   "probe <host:port>",
		Short: "Run one TCP liveness probe and exit 0 if the endpoint is reachable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			host, port, err := instance.ParseMember(args[0])
			if err != nil {
				return err
			}

			log := logger.New(logger.Options{
				Level:       level,
				Environment: "cli",
				Output:      cmd.ErrOrStderr(),
			})

			target := probe.Target{Host: host, Port: port}
			effective := probe.EffectiveTimeout(timeout)
			if !probe.New(log).Check(cmd.Context(), target, effective, instance.StatusUp) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s unreachable\n", target)
				return errUnreachable
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s reachable\n", target)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", instance.DefaultConnectTimeout, "connect timeout, at least 1s")
	cmd.Flags().StringVar(&level, "log-level", "error", "log level of probe diagnostics")

	return cmd
}
