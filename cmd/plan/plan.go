package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pgdelta/pgdelta/cmd/util"
	"github.com/pgdelta/pgdelta/internal/diff"
	"github.com/pgdelta/pgdelta/internal/ir"
	migplan "github.com/pgdelta/pgdelta/internal/plan"
)

var (
	planHost            string
	planPort            int
	planDB              string
	planUser            string
	planPassword        string
	planSchema          string
	planFile            string
	planFormat          string
	planNoConcurrent    bool
	planApplicationName string
)

var PlanCmd = &cobra.Command{
	Use:   "plan",
	Short: "Generate a migration plan without applying it",
	Long: "Compare the desired schema state (from --file, a SQL file or a directory of SQL files) " +
		"with the current state of a database schema and print the statements that would " +
		"bring the database to the desired state.",
	PreRunE: util.PreRunEWithEnvVars(&planDB, &planUser, &planHost, &planPort),
	RunE:    runPlan,
}

func init() {
	PlanCmd.Flags().StringVar(&planHost, "host", "localhost", "Database server host")
	PlanCmd.Flags().IntVar(&planPort, "port", 5432, "Database server port")
	PlanCmd.Flags().StringVar(&planDB, "db", "", "Database name (required)")
	PlanCmd.Flags().StringVar(&planUser, "user", "", "Database user name (required)")
	PlanCmd.Flags().StringVar(&planPassword, "password", "", "Database password (optional)")
	PlanCmd.Flags().StringVar(&planSchema, "schema", "public", "Schema name")
	PlanCmd.Flags().StringVar(&planFile, "file", "", "Path to desired state SQL file or directory (required)")
	PlanCmd.Flags().StringVar(&planFormat, "format", "human", "Output format: human, json, sql")
	PlanCmd.Flags().BoolVar(&planNoConcurrent, "no-concurrent-index", false, "Build and drop indexes without CONCURRENTLY")
	PlanCmd.Flags().StringVar(&planApplicationName, "application-name", "pgdelta", "Application name for the database connection")

	PlanCmd.MarkFlagRequired("file")
}

// Config carries everything needed to produce a plan; the apply command
// reuses it.
type Config struct {
	Host                string
	Port                int
	DB                  string
	User                string
	Password            string
	Schema              string
	File                string
	ApplicationName     string
	NoConcurrentIndexes bool
}

// Generate parses the desired state, introspects the target schema over
// a read-only connection, and diffs the two.
func Generate(ctx context.Context, config *Config) (*migplan.Plan, error) {
	ddl, err := LoadDesiredState(config.File)
	if err != nil {
		return nil, err
	}

	desired, err := ir.NewParser(config.Schema).ParseDDL(ddl)
	if err != nil {
		return nil, fmt.Errorf("failed to parse desired state: %w", err)
	}

	conn, err := util.Connect(&util.ConnectionConfig{
		Host:            config.Host,
		Port:            config.Port,
		Database:        config.DB,
		User:            config.User,
		Password:        config.Password,
		SSLMode:         "prefer",
		ApplicationName: config.ApplicationName,
	})
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	current, err := ir.NewInspector(conn).Build(ctx, config.Schema)
	if err != nil {
		return nil, fmt.Errorf("failed to introspect schema %q: %w", config.Schema, err)
	}

	return diff.Diff(desired, current, diff.Options{
		NoConcurrentIndexes: config.NoConcurrentIndexes,
	})
}

func runPlan(cmd *cobra.Command, args []string) error {
	p, err := Generate(cmd.Context(), &Config{
		Host:                planHost,
		Port:                planPort,
		DB:                  planDB,
		User:                planUser,
		Password:            planPassword,
		Schema:              planSchema,
		File:                planFile,
		ApplicationName:     planApplicationName,
		NoConcurrentIndexes: planNoConcurrent,
	})
	if err != nil {
		return err
	}

	switch planFormat {
	case "json":
		out, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
	case "sql":
		fmt.Fprintln(cmd.OutOrStdout(), strings.Join(p.Statements(), "\n"))
	case "human":
		fmt.Fprint(cmd.OutOrStdout(), p.Text())
	default:
		return fmt.Errorf("unknown format %q (expected human, json, or sql)", planFormat)
	}
	return nil
}
