// Command pinaht runs assessment scenarios and serves their stored results.
package main

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

	"github.com/Harshitk-cp/pinaht/internal/api"
	"github.com/Harshitk-cp/pinaht/internal/buildconfig"
	"github.com/Harshitk-cp/pinaht/internal/config"
	"github.com/Harshitk-cp/pinaht/internal/domain"
	"github.com/Harshitk-cp/pinaht/internal/scenario"
	"github.com/Harshitk-cp/pinaht/internal/service"
	"github.com/Harshitk-cp/pinaht/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:           "pinaht",
		Short:         "Fact-graph driven assessment runner",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.Load()
		},
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); defaults to LOG_LEVEL")

	logger := func() (*zap.Logger, error) {
		if logLevel == "" {
			logLevel = config.LogLevel()
		}
		return newLogger(logLevel)
	}

	cmd.AddCommand(runCmd(logger), serveCmd(logger), migrateCmd(logger))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), buildconfig.String())
		},
	})
	return cmd
}

func runCmd(newLog func() (*zap.Logger, error)) *cobra.Command {
	var (
		scenarioPath string
		typesPath    string
		maxIter      int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a scenario to completion and store its report",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLog()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if scenarioPath == "" {
				scenarioPath = config.ScenarioPath()
			}
			if scenarioPath == "" {
				return errors.New("--scenario is required")
			}
			if typesPath == "" {
				typesPath = config.TypesPath()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			schema, err := loadSchema(typesPath)
			if err != nil {
				return err
			}
			sc, err := scenario.Load(scenarioPath, schema)
			if err != nil {
				return err
			}
			runs, pool, err := openRuns(ctx, logger)
			if err != nil {
				return err
			}
			if pool != nil {
				defer pool.Close()
			}

			svc := service.NewRunService(runs, schema, runnerConfig(maxIter), logger)
			report, runErr := svc.Execute(ctx, sc)
			if report != nil {
				printReport(cmd.OutOrStdout(), report)
			}
			if runErr != nil && !errors.Is(runErr, context.Canceled) {
				return runErr
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&scenarioPath, "scenario", "s", "", "Scenario file (YAML)")
	cmd.Flags().StringVar(&typesPath, "types", "", "Type schema file (YAML); built-in schema if empty")
	cmd.Flags().IntVar(&maxIter, "max-iter", 0, "Iteration ceiling; defaults to MAX_ITERATIONS")
	return cmd
}

func printReport(w io.Writer, r *domain.RunReport) {
	s := r.Summary()
	fmt.Fprintf(w, "run %s: %s after %d iterations (%d facts, %d nodes)\n",
		s.ID, s.State, s.Iterations, s.FactCount, s.NodeCount)
	for _, f := range r.Facts {
		fmt.Fprintf(w, "%*s%s%s %s\n", 2*f.Depth, "", slotPrefix(f.Slot), f.Type, f.Rendered)
	}
	for _, g := range r.Goals {
		fmt.Fprintf(w, "goal %s: score=%.3f reached=%t\n", g.Name, g.Score, g.Reached)
	}
}

func slotPrefix(slot string) string {
	if slot == "" {
		return ""
	}
	return slot + ": "
}

func serveCmd(newLog func() (*zap.Logger, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the run export API",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLog()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			schema, err := loadSchema(config.TypesPath())
			if err != nil {
				return err
			}
			runs, pool, err := openRuns(ctx, logger)
			if err != nil {
				return err
			}
			var db api.Pinger
			if pool != nil {
				defer pool.Close()
				db = pool
			}

			svc := service.NewRunService(runs, schema, runnerConfig(0), logger)
			app := api.NewApp(svc, db, api.Options{
				APIToken:       config.APIToken(),
				RateLimitRPS:   config.RateLimitRPS(),
				RateLimitBurst: config.RateLimitBurst(),
			}, logger)

			expirer := service.NewExpirerService(runs, config.RunRetention(), logger)
			if config.RunRetention() > 0 {
				expirer.Start()
				defer expirer.Stop()
			}

			addr := config.ServerAddr()
			srv := &http.Server{
				Addr:              addr,
				Handler:           app.Router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Info("server starting", zap.String("addr", addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				app.Limiter.Run(gctx, time.Minute)
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				logger.Info("shutting down server")
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})

			if err := g.Wait(); err != nil {
				return err
			}
			logger.Info("server stopped")
			return nil
		},
	}
}

func migrateCmd(newLog func() (*zap.Logger, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the SQL migrations to DATABASE_URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLog()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			dbURL := config.DatabaseURL()
			if dbURL == "" {
				return errors.New("DATABASE_URL is required")
			}
			pool, err := connect(cmd.Context(), dbURL)
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := store.Migrate(cmd.Context(), pool, config.MigrationsPath())
			if err != nil {
				return err
			}
			logger.Info("migrations applied", zap.Strings("files", applied))
			return nil
		},
	}
}
