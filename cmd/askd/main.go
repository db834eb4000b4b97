// Command askd hosts the engine as a build daemon/CLI: it wires
// configuration, logging, the dependency database, and the dispatch
// loop together, and exposes run/status/gc as cobra subcommands.
// The CLI is an ambient convenience over the library packages, not
// part of the engine itself.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is set at build time via -ldflags.
	Version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "askd",
	Short: "Incremental build engine daemon",
	Long: `askd hosts the ask build engine: a Question/Answer/Rule dispatch
loop backed by a persistent, SQLite-tracked dependency database.

Commands:
  run     Ask a root question and dispatch until it settles
  status  Report the current state of a running database
  gc      Recheck every recorded answer and drop what's now stale`,
}

func init() {
	rootCmd.PersistentFlags().String("project-dir", ".", "project directory to look for .ask.yaml in")
}

func main() {
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newGCCmd())
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the askd version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
			return nil
		},
	}
}
