package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "monitor",
		Short:         "Distributed TCP health monitor for registered service groups",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (default: ./config/config.yaml or ./config.yaml)")

	root.AddCommand(
		newRunCommand(&configPath),
		newProbeCommand(),
	)

	return root
}
