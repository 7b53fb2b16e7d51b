package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"hospital-portal/client"
	"hospital-portal/models"
)

type remoteFlags struct {
	server string
	token  string
	asJSON bool
}

func (f *remoteFlags) bind(cmd *cobra.Command) {
	v := viper.New()
	v.SetDefault("PORTAL_URL", "http://localhost:5000")
	v.AutomaticEnv()

	cmd.Flags().StringVar(&f.server, "server", v.GetString("PORTAL_URL"), "portal base URL (env PORTAL_URL)")
	cmd.Flags().StringVar(&f.token, "token", v.GetString("PORTAL_TOKEN"), "bearer token (env PORTAL_TOKEN)")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "print raw JSON")
}

func (f *remoteFlags) client() *client.Client {
	return client.New(f.server, client.WithToken(f.token))
}

func newStatusCmd() *cobra.Command {
	var flags remoteFlags
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the live queue of a running portal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, err := flags.client().Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("fetch queue status: %w", err)
			}
			if flags.asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(status)
			}
			writeStatus(cmd, status)
			return nil
		},
	}
	flags.bind(cmd)
	return cmd
}

func writeStatus(cmd *cobra.Command, status models.QueueStatus) {
	out := cmd.OutOrStdout()
	if !status.IsRunning {
		_, _ = fmt.Fprintln(out, "queue: idle")
		return
	}
	_, _ = fmt.Fprintf(out, "queue: running (runner: %s)\n", status.RunnerName)
	if status.ElapsedTime != nil {
		_, _ = fmt.Fprintf(out, "elapsed: %s\n", time.Duration(*status.ElapsedTime)*time.Second)
	}
	for i, d := range status.Doctors {
		marker := " "
		if i == status.CurrentIndex {
			marker = ">"
		}
		_, _ = fmt.Fprintf(out, "%s %d) %s\n", marker, i+1, d.Name)
	}
}
