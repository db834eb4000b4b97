package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/askbuild/ask/internal/config"
	"github.com/askbuild/ask/internal/lockfile"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report whether a daemon currently owns this project's database",
		RunE: func(cmd *cobra.Command, args []string) error {
			projectDir, _ := cmd.Flags().GetString("project-dir")
			cfg, err := config.Load(cmd.Flags(), projectDir)
			if err != nil {
				return err
			}

			running, pid := lockfile.Probe(projectDir)
			if !running {
				fmt.Fprintf(cmd.OutOrStdout(), "no daemon running for %s\n", cfg.DatabasePath)
				return nil
			}
			info, err := lockfile.Read(projectDir)
			if err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "daemon running, pid %d\n", pid)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "daemon running, pid %d, database %s, started %s\n",
				info.PID, info.Database, info.StartedAt.Format("2006-01-02T15:04:05Z07:00"))
			return nil
		},
	}
	config.BindFlags(cmd.Flags())
	return cmd
}
