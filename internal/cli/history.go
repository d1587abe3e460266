package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/geodesymiami/minsar-sub000/internal/store"
)

func newHistoryCmd() *cobra.Command {
	var (
		flagRun   string
		flagLimit int
		flagDB    string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs and their job submissions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath := cfg.HistoryDB
			if cmd.Flags().Changed("db") {
				dbPath = flagDB
			}
			if dbPath == "" {
				return fmt.Errorf("no history database configured (set history_db or pass --db)")
			}

			st, err := store.NewSQLiteStore(dbPath, logger)
			if err != nil {
				return fmt.Errorf("opening history store: %w", err)
			}
			defer st.Close()
			if err := st.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrating history store: %w", err)
			}

			if flagRun != "" {
				return printRunDetail(cmd.Context(), st, flagRun)
			}
			return printRuns(cmd.Context(), st, flagLimit)
		},
	}

	cmd.Flags().StringVar(&flagRun, "run", "", "Show one run with its job submissions")
	cmd.Flags().IntVar(&flagLimit, "limit", 20, "Maximum number of runs to list")
	cmd.Flags().StringVar(&flagDB, "db", "", "History database path (default from config)")

	return cmd
}

func printRuns(ctx context.Context, st store.Store, limit int) error {
	runs, err := st.ListRuns(ctx, limit)
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println("No recorded runs.")
		return nil
	}

	fmt.Printf("%-41s  %-10s  %-6s  %-20s  %s\n", "RUN", "OUTCOME", "GROUPS", "STARTED", "WORKDIR")
	for _, r := range runs {
		fmt.Printf("%-41s  %-10s  %-6d  %-20s  %s\n",
			r.ID, r.Outcome, r.Groups, r.StartedAt.Format(time.RFC3339), r.WorkDir)
	}
	return nil
}

func printRunDetail(ctx context.Context, st store.Store, runID string) error {
	run, err := st.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("getting run: %w", err)
	}
	if run == nil {
		return fmt.Errorf("run %s not found", runID)
	}

	fmt.Printf("Run: %s\n", run.ID)
	fmt.Printf("  Workdir: %s\n", run.WorkDir)
	fmt.Printf("  Outcome: %s\n", run.Outcome)
	fmt.Printf("  Started: %s\n", run.StartedAt.Format(time.RFC3339))
	if run.FinishedAt != nil {
		fmt.Printf("  Finished: %s\n", run.FinishedAt.Format(time.RFC3339))
	}

	groups, err := st.ListGroupsByRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("listing groups: %w", err)
	}
	if len(groups) > 0 {
		fmt.Println("  Groups:")
		for _, g := range groups {
			fmt.Printf("    - %s: %s (%d jobs)\n", g.Label, g.Outcome, g.Jobs)
		}
	}

	jobs, err := st.ListJobsByRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("listing jobs: %w", err)
	}
	if len(jobs) == 0 {
		return nil
	}

	fmt.Println("  Jobs:")
	fmt.Printf("    %-36s  %-10s  %-10s  %-8s  %s\n", "SCRIPT", "STATE", "SCHEDULER", "ATTEMPT", "GROUP")
	for _, j := range jobs {
		fmt.Printf("    %-36s  %-10s  %-10s  %-8d  %s\n",
			j.Unit.Name(), j.State, j.SchedulerID, j.Attempt, j.GroupLabel)
	}
	return nil
}
