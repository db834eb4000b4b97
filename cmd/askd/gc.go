package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/askbuild/ask/internal/builtin"
	"github.com/askbuild/ask/internal/config"
	"github.com/askbuild/ask/internal/db"
	"github.com/askbuild/ask/internal/qa"
)

func newGCCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Recheck every recorded answer against live state and drop what's stale",
		RunE: func(cmd *cobra.Command, args []string) error {
			projectDir, _ := cmd.Flags().GetString("project-dir")
			cfg, err := config.Load(cmd.Flags(), projectDir)
			if err != nil {
				return err
			}

			database, err := db.Open(cfg.DatabasePath, db.OpenFlags{})
			if err != nil {
				return err
			}
			defer database.Close()

			reg := qa.NewRegistry()
			builtin.RegisterAll(reg)

			if err := database.RecheckAll(reg.All()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "gc complete")
			return nil
		},
	}
	config.BindFlags(cmd.Flags())
	return cmd
}
