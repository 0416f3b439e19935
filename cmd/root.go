package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pgdelta/pgdelta/cmd/apply"
	"github.com/pgdelta/pgdelta/cmd/plan"
	"github.com/pgdelta/pgdelta/internal/logger"
	"github.com/pgdelta/pgdelta/internal/version"
)

var debug bool

var RootCmd = &cobra.Command{
	Use:   "pgdelta",
	Short: "Declarative PostgreSQL schema migration tool",
	Long: fmt.Sprintf(`pgdelta plans and applies PostgreSQL schema migrations from a declarative
desired state: you describe the schema you want as plain CREATE statements,
pgdelta computes the ALTERs that get you there.

Version: %s@%s %s %s

Commands:
  plan    Generate a migration plan
  apply   Apply the desired schema state

Use "pgdelta [command] --help" for more information about a command.`,
		version.App(), GitCommit, platform(), BuildDate),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Configure(debug)
	},
}

func init() {
	RootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	RootCmd.AddCommand(plan.PlanCmd)
	RootCmd.AddCommand(apply.ApplyCmd)
	RootCmd.AddCommand(VersionCmd)
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
