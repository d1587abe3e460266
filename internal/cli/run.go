package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/geodesymiami/minsar-sub000/internal/admission"
	"github.com/geodesymiami/minsar-sub000/internal/catalog"
	"github.com/geodesymiami/minsar-sub000/internal/config"
	"github.com/geodesymiami/minsar-sub000/internal/driver"
	"github.com/geodesymiami/minsar-sub000/internal/monitor"
	"github.com/geodesymiami/minsar-sub000/internal/planner"
	"github.com/geodesymiami/minsar-sub000/internal/sched"
	"github.com/geodesymiami/minsar-sub000/internal/server"
	"github.com/geodesymiami/minsar-sub000/internal/store"
	"github.com/geodesymiami/minsar-sub000/internal/submit"
	"github.com/geodesymiami/minsar-sub000/pkg/model"
)

func newRunCmd() *cobra.Command {
	var (
		flagStart        string
		flagStop         string
		flagStep         string
		flagJobFile      string
		flagQueue        string
		flagRandomize    bool
		flagPollInterval time.Duration
		flagStatusAddr   string
		flagNoDB         bool
	)

	cmd := &cobra.Command{
		Use:   "run [workdir]",
		Short: "Submit and monitor the job groups of a processing run",
		Long: `Plans the requested step range over the run_NN_* scripts in the working
directory and executes it group by group: a step's jobs are submitted
under the site admission limits, polled until they drain, resubmitted
with escalated walltime on timeout, and validated before the next step
starts. A failed or cancelled job aborts the run.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workDir, err := resolveWorkDir(args)
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("queue") {
				cfg.Queue = flagQueue
			}
			if cmd.Flags().Changed("randomize") {
				cfg.Randomize = flagRandomize
			}
			if cmd.Flags().Changed("poll-interval") {
				cfg.PollInterval = config.Duration(flagPollInterval)
			}
			if cmd.Flags().Changed("status-addr") {
				cfg.StatusAddr = flagStatusAddr
			}

			req := planner.Request{
				Start:   model.ParseStepSelector(flagStart),
				Stop:    model.ParseStepSelector(flagStop),
				Only:    model.ParseStepSelector(flagStep),
				JobFile: flagJobFile,
			}
			return runPipeline(cmd.Context(), workDir, req, flagNoDB)
		},
	}

	cmd.Flags().StringVar(&flagStart, "start", "", "First step to run (number or stage name)")
	cmd.Flags().StringVar(&flagStop, "stop", "", "Last step to run (number or stage name)")
	cmd.Flags().StringVar(&flagStep, "step", "", "Run exactly one step (number or stage name)")
	cmd.Flags().StringVar(&flagJobFile, "job-file", "", "Submit a single job script instead of a step range")
	cmd.Flags().StringVar(&flagQueue, "queue", "", "Partition for scripts without a -p directive")
	cmd.Flags().BoolVar(&flagRandomize, "randomize", false, "Shuffle submission order within each step")
	cmd.Flags().DurationVar(&flagPollInterval, "poll-interval", 60*time.Second, "Delay between scheduler state sweeps")
	cmd.Flags().StringVar(&flagStatusAddr, "status-addr", "", "Serve the status API on this address (e.g. :8642)")
	cmd.Flags().BoolVar(&flagNoDB, "no-db", false, "Disable run-history recording")

	return cmd
}

// runPipeline wires the orchestration components together and executes
// one request under signal-aware cancellation.
func runPipeline(ctx context.Context, workDir string, req planner.Request, noDB bool) error {
	logger.Info("run starting", "workdir", workDir)

	cat := catalog.New(workDir)
	if cfg.Queue != "" {
		cat.Defaults.QueueClass = cfg.Queue
	}

	policy, err := cfg.WalltimePolicy()
	if err != nil {
		return err
	}

	client := sched.NewSlurmClient(sched.SlurmConfig{
		SbatchBin: cfg.SbatchBin,
		SacctBin:  cfg.SacctBin,
		SqueueBin: cfg.SqueueBin,
	}, logger)
	state := admission.NewState(cfg.Limits)
	controller := admission.NewController(state, client, logger)
	coordinator := submit.NewCoordinator(cat, controller, submit.Config{
		Randomize:     cfg.Randomize,
		RetryInterval: cfg.RetryInterval.Std(),
	}, logger)
	loop := monitor.NewLoop(client, controller, state, policy, monitor.Config{
		PollInterval: cfg.PollInterval.Std(),
	}, logger)

	drv := driver.New(planner.New(cat, cat.Aliases, logger), coordinator, loop, logger)
	if cfg.HookCommand != "" {
		drv.SetHook(driver.NewCommandHook(cfg.HookCommand, logger))
	}

	var st *store.SQLiteStore
	var recorder *store.HistoryRecorder
	if cfg.HistoryDB != "" && !noDB {
		st, err = store.NewSQLiteStore(cfg.HistoryDB, logger)
		if err != nil {
			return fmt.Errorf("opening history store: %w", err)
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return fmt.Errorf("migrating history store: %w", err)
		}
		recorder = store.NewHistoryRecorder(st, workDir, logger)
		drv.SetRecorder(recorder)
		loop.SetObserver(recorder)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.StatusAddr != "" {
		// Assign through typed locals so a disabled store stays a nil
		// interface inside the server.
		var hist store.Store
		if st != nil {
			hist = st
		}
		var progress server.ProgressSource
		if recorder != nil {
			progress = recorder
		}
		srv := server.New(cfg.StatusAddr, hist, progress, state, logger)
		go func() {
			if err := srv.Start(ctx); err != nil {
				logger.Error("status server stopped", "error", err)
			}
		}()
	}

	return drv.Run(ctx, req)
}
