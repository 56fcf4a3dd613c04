// newspulse ingests market news feeds, scores headline sentiment per ticker
// and serves the aggregate over HTTP.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/newspulse/api"
	"github.com/seenimoa/newspulse/internal/config"
	"github.com/seenimoa/newspulse/internal/logger"
	"github.com/seenimoa/newspulse/internal/storage"
	"github.com/seenimoa/newspulse/pkg/models"
	"github.com/seenimoa/newspulse/pkg/utils"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config and logger, set by PersistentPreRunE.
var (
	cfg *config.Config
	log *logrus.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "newspulse",
	Short: "newspulse: scheduled news ingestion with per-ticker sentiment",
	Long: `newspulse fetches RSS/Atom/JSON feeds on a schedule, stores each new
article once under its feed's ticker with a headline sentiment score,
and serves windowed sentiment and recent articles over HTTP.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			cfg.Logging.Level = lvl
		}
		log = logger.NewWithOutput(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(statusCmd)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	// Skip config loading.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("newspulse %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Serve Command ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingestion scheduler and the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		migrate, _ := cmd.Flags().GetBool("migrate")
		a, err := newApp(ctx, cfg, log, migrate)
		if err != nil {
			return err
		}
		defer a.Close()

		srv := api.NewServer(cfg, api.Options{
			Scheduler: a.sched,
			Reader:    a.store,
			Logger:    log,
			Version:   version,
		})
		a.sched.OnPass(srv.PassCompleted)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return ignoreCanceled(a.sched.Run(gctx))
		})
		g.Go(func() error {
			return srv.ListenAndServe(gctx, cfg.Addr())
		})
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().Bool("migrate", true, "create the database schema on startup")
}

// --- Ingest Command ---

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run a single ingestion pass over the configured feeds and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := newApp(ctx, cfg, log, true)
		if err != nil {
			return err
		}
		defer a.Close()

		report := a.orch.RunPass(ctx, models.OriginCLI)

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
		} else {
			printReport(cmd, report)
		}

		if strict, _ := cmd.Flags().GetBool("strict"); strict && report.Failed() > 0 {
			return fmt.Errorf("%d of %d feeds failed", report.Failed(), len(report.Feeds))
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().Bool("json", false, "print the pass report as JSON")
	ingestCmd.Flags().Bool("strict", false, "exit non-zero if any feed fails")
}

func printReport(cmd *cobra.Command, r *models.PassReport) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Pass %s (%s) %s\n", r.ID, r.Origin, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	for _, f := range r.Feeds {
		status := "ok"
		if !f.OK() {
			status = f.ErrorKind + " failure: " + f.Error
		}
		fmt.Fprintf(out, "  %-8s %-50s items=%-3d new=%-3d dup=%-3d skipped=%-3d defaulted=%-3d %s\n",
			f.Feed.Ticker, f.Feed.URL, f.Items, f.Inserted, f.Duplicates, f.Skipped, f.Defaulted, status)
	}
	fmt.Fprintf(out, "Inserted %d articles, %d feeds failed\n", r.Inserted(), r.Failed())
}

// --- Migrate Command ---

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Storage.Driver != storage.DriverPostgres {
			return fmt.Errorf("migrate requires the %s driver, configured driver is %s", storage.DriverPostgres, cfg.Storage.Driver)
		}
		ctx, stop := signalContext()
		defer stop()

		pg, err := storage.OpenPostgres(ctx, storageOptions(cfg, false))
		if err != nil {
			return err
		}
		defer pg.Close()

		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		log.Info("schema is up to date")
		return nil
	},
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "═══════════════════════════════════════")
		fmt.Fprintln(out, "  newspulse: System Status")
		fmt.Fprintln(out, "═══════════════════════════════════════")
		fmt.Fprintf(out, "  Version:       %s (%s)\n", version, commit)
		fmt.Fprintf(out, "  Time (UTC):    %s\n", utils.FormatUTC(utils.NowUTC()))
		fmt.Fprintln(out)

		fmt.Fprintln(out, "  Configuration:")
		fmt.Fprintf(out, "    Interval:      %s\n", cfg.Scheduler.Interval)
		fmt.Fprintf(out, "    Trigger Mode:  %s\n", cfg.Scheduler.TriggerMode)
		fmt.Fprintf(out, "    Fetch Timeout: %s\n", cfg.Fetch.Timeout)
		fmt.Fprintf(out, "    Storage:       %s\n", cfg.Storage.Driver)
		fmt.Fprintf(out, "    API Server:    %s\n", cfg.Addr())
		fmt.Fprintln(out)

		fmt.Fprintf(out, "  Feeds (%d):\n", len(cfg.Feeds))
		for _, f := range cfg.Feeds {
			fmt.Fprintf(out, "    %-8s %s\n", f.Ticker, f.URL)
		}
		fmt.Fprintln(out)

		fmt.Fprintln(out, "  Secrets:")
		for _, k := range config.CheckSecrets(cfg) {
			status := "not set"
			if k.IsSet {
				status = fmt.Sprintf("set (%s: %s)", k.Source, k.Masked)
			}
			fmt.Fprintf(out, "    %-25s %s\n", k.Name+":", status)
		}
		fmt.Fprintln(out, "═══════════════════════════════════════")
		return nil
	},
}
