package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "portal",
		Short:        "Hospital staff portal: live doctor queue service",
		Long:         "portal serves the live queue API that lets one staff member run a rotating queue of on-duty doctors while every viewer follows along.",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newStatusCmd(),
		newHistoryCmd(),
	)
	return rootCmd
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
