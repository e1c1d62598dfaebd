package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/ossim/internal/config"
	"github.com/me/ossim/internal/server"
	"github.com/me/ossim/internal/simulation"
	"github.com/me/ossim/internal/sink"
	"github.com/me/ossim/internal/store"
	"github.com/me/ossim/internal/tracing"
	"github.com/me/ossim/pkg/model"
)

func newRunCmd() *cobra.Command {
	var (
		configPath  string
		dbPath      string
		noStore     bool
		monitorAddr string
		traceFile   string

		jobs         int
		simultaneous int
		timeLimit    time.Duration
		interval     time.Duration
		lifetime     time.Duration
		seed         int64
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one scheduler simulation",
		Long: `Runs a simulation until every job has terminated or the time limit
expires. Flags override values from --config.

Exit status: 0 completed, 2 time limit exceeded, 3 resource failure,
1 any other failure.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sim := config.DefaultSimConfig()
			if configPath != "" {
				var err error
				if sim, err = config.LoadFile(configPath); err != nil {
					return err
				}
			}

			flags := cmd.Flags()
			if flags.Changed("jobs") {
				sim.TotalJobs = jobs
			}
			if flags.Changed("simultaneous") {
				sim.MaxConcurrent = simultaneous
			}
			if flags.Changed("time-limit") {
				sim.Timeout = timeLimit
			}
			if flags.Changed("interval") {
				sim.AdmitInterval = interval
			}
			if flags.Changed("lifetime") {
				sim.MaxLifetime = lifetime
			}
			if flags.Changed("seed") {
				sim.Seed = seed
			}
			if sim.Seed == 0 {
				sim.Seed = time.Now().UnixNano()
			}

			shutdownTracing, err := tracing.Init("ossim", server.Version, traceFile)
			if err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}
			defer shutdownTracing(context.Background())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			b := simulation.MakeBuilder().WithConfig(sim).WithLogger(logger)

			var st store.Store
			if !noStore {
				sqlStore, err := openStore(ctx, dbPath)
				if err != nil {
					return model.NewResourceError("open run store", err)
				}
				defer sqlStore.Close()
				st = sqlStore
				b = b.WithStore(st)
			}

			if monitorAddr != "" {
				live := sink.NewLive()
				b = b.WithLive(live)
				stopMonitor := startMonitor(monitorAddr, st, live)
				defer stopMonitor()
			}

			s, err := b.Build()
			if err != nil {
				return err
			}

			run, err := s.Run(ctx)
			printRunSummary(cmd.OutOrStdout(), run)
			return err
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML simulation config")
	cmd.Flags().StringVar(&dbPath, "db", "", "Run store path (default ~/.ossim/ossim.db, or "+config.EnvDBPath+")")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "Do not record the run")
	cmd.Flags().StringVar(&monitorAddr, "monitor", "", "Serve the monitor API on this address while running")
	cmd.Flags().StringVar(&traceFile, "trace-file", "", "Write dispatch spans as JSON to this file (\"-\" for stdout)")
	cmd.Flags().IntVarP(&jobs, "jobs", "n", 0, "Total number of jobs to admit")
	cmd.Flags().IntVarP(&simultaneous, "simultaneous", "s", 0, "Maximum live jobs at once")
	cmd.Flags().DurationVarP(&timeLimit, "time-limit", "t", 0, "Wall-clock safety budget")
	cmd.Flags().DurationVarP(&interval, "interval", "i", 0, "Minimum simulated time between admissions")
	cmd.Flags().DurationVar(&lifetime, "lifetime", 0, "Upper bound of a job's simulated lifetime")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Random seed for worker outcomes (0 picks one)")
	return cmd
}

// openStore opens and migrates the SQLite run store. An empty path falls
// back to OSSIM_DB and then ~/.ossim/ossim.db.
func openStore(ctx context.Context, path string) (*store.SQLiteStore, error) {
	if path == "" {
		path = os.Getenv(config.EnvDBPath)
	}
	path, err := config.ResolveDBPath(path)
	if err != nil {
		return nil, err
	}
	st, err := store.NewSQLiteStore(path, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	logger.Debug("database ready", "path", path)
	return st, nil
}

// startMonitor serves the monitor API in the background and returns a
// function that shuts it down.
func startMonitor(addr string, st store.Store, live *sink.Live) func() {
	cfg := config.DefaultServerConfig()
	cfg.Addr = addr
	srv := server.New(cfg, st, logger, server.WithLive(live))
	httpServer := &http.Server{Addr: addr, Handler: srv.Handler()}

	go func() {
		logger.Info("monitor listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("monitor failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Warn("monitor shutdown", "error", err)
		}
	}
}

func printRunSummary(w io.Writer, run *model.Run) {
	if run == nil {
		return
	}
	fmt.Fprintf(w, "Run:         %s\n", run.ID)
	fmt.Fprintf(w, "  State:     %s\n", run.State)
	fmt.Fprintf(w, "  Jobs:      %d admitted, %d terminated\n", run.Admitted, run.Terminated)
	fmt.Fprintf(w, "  Dispatch:  %s quanta, %s messages\n", humanize.Comma(int64(run.Dispatches)), humanize.Comma(run.Messages))
	fmt.Fprintf(w, "  Clock:     %s\n", run.FinalClock)
	if run.FinishedAt != nil {
		fmt.Fprintf(w, "  Wall time: %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}
	if run.ExitReason != "" {
		fmt.Fprintf(w, "  Reason:    %s\n", run.ExitReason)
	}
}
