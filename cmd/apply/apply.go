package apply

import (
	"bufio"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	planCmd "github.com/pgdelta/pgdelta/cmd/plan"
	"github.com/pgdelta/pgdelta/cmd/util"
	"github.com/pgdelta/pgdelta/internal/apply"
	"github.com/pgdelta/pgdelta/internal/logger"
)

var (
	applyHost            string
	applyPort            int
	applyDB              string
	applyUser            string
	applyPassword        string
	applySchema          string
	applyFile            string
	applyAutoApprove     bool
	applyDryRun          bool
	applyNoConcurrent    bool
	applyLockTimeout     time.Duration
	applyApplicationName string
)

var ApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply the desired schema state to a database",
	Long: "Compare the desired state (from --file) with the current state of a database " +
		"schema and execute the statements that close the gap. The run holds a " +
		"cluster-wide advisory lock so two migrations never interleave.",
	PreRunE: util.PreRunEWithEnvVars(&applyDB, &applyUser, &applyHost, &applyPort),
	RunE:    runApply,
}

func init() {
	ApplyCmd.Flags().StringVar(&applyHost, "host", "localhost", "Database server host")
	ApplyCmd.Flags().IntVar(&applyPort, "port", 5432, "Database server port")
	ApplyCmd.Flags().StringVar(&applyDB, "db", "", "Database name (required)")
	ApplyCmd.Flags().StringVar(&applyUser, "user", "", "Database user name (required)")
	ApplyCmd.Flags().StringVar(&applyPassword, "password", "", "Database password (optional)")
	ApplyCmd.Flags().StringVar(&applySchema, "schema", "public", "Schema name")
	ApplyCmd.Flags().StringVar(&applyFile, "file", "", "Path to desired state SQL file or directory (required)")
	ApplyCmd.Flags().BoolVar(&applyAutoApprove, "auto-approve", false, "Apply changes without prompting for approval")
	ApplyCmd.Flags().BoolVar(&applyDryRun, "dry-run", false, "Show the plan without applying changes")
	ApplyCmd.Flags().BoolVar(&applyNoConcurrent, "no-concurrent-index", false, "Build and drop indexes without CONCURRENTLY")
	ApplyCmd.Flags().DurationVar(&applyLockTimeout, "lock-timeout", 30*time.Second, "Maximum time to wait for the migration lock")
	ApplyCmd.Flags().StringVar(&applyApplicationName, "application-name", "pgdelta", "Application name for the database connection")

	ApplyCmd.MarkFlagRequired("file")
}

func runApply(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	p, err := planCmd.Generate(ctx, &planCmd.Config{
		Host:                applyHost,
		Port:                applyPort,
		DB:                  applyDB,
		User:                applyUser,
		Password:            applyPassword,
		Schema:              applySchema,
		File:                applyFile,
		ApplicationName:     applyApplicationName,
		NoConcurrentIndexes: applyNoConcurrent,
	})
	if err != nil {
		return err
	}

	if !p.HasChanges {
		fmt.Fprintln(cmd.OutOrStdout(), "No changes to apply. Database schema is already up to date.")
		return nil
	}

	fmt.Fprint(cmd.OutOrStdout(), p.Text())
	if applyDryRun {
		return nil
	}

	if !applyAutoApprove {
		fmt.Fprint(cmd.OutOrStdout(), "\nDo you want to apply these changes? (yes/no): ")
		reader := bufio.NewReader(cmd.InOrStdin())
		response, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read user input: %w", err)
		}
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "yes" && response != "y" {
			fmt.Fprintln(cmd.OutOrStdout(), "Apply cancelled.")
			return nil
		}
	}

	conn, err := util.Connect(&util.ConnectionConfig{
		Host:            applyHost,
		Port:            applyPort,
		Database:        applyDB,
		User:            applyUser,
		Password:        applyPassword,
		SSLMode:         "prefer",
		ApplicationName: applyApplicationName,
	})
	if err != nil {
		return err
	}
	defer conn.Close()

	lock, err := apply.AcquireLock(ctx, conn, "pgdelta:"+applyDB, applyLockTimeout)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			logger.Get().Warn("failed to release migration lock", "error", err)
		}
	}()

	fmt.Fprintln(cmd.OutOrStdout(), "\nApplying changes...")
	if err := apply.NewExecutor(conn).Execute(ctx, p); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Changes applied successfully!")
	return nil
}
