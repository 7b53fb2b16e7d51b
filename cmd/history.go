package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var (
		flags remoteFlags
		limit int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List finished queue sessions, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			history, err := flags.client().History(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("fetch queue history: %w", err)
			}
			if flags.asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(history)
			}
			if len(history) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "history: none")
				return nil
			}
			for _, h := range history {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%d/%d\t%s\n",
					h.EndTime.Format(time.RFC3339),
					h.Status,
					h.RunnerName,
					h.CompletedDoctors,
					h.TotalDoctors,
					time.Duration(h.Duration)*time.Second,
				)
			}
			return nil
		},
	}
	flags.bind(cmd)
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum sessions to list (server default when 0)")
	return cmd
}
