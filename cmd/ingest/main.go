// Command ingest is the Burrito League operations CLI.
//
// Usage:
//
//	burrito-ingest migrate
//	burrito-ingest poll
//	burrito-ingest poll --force
//	burrito-ingest geocode
//	burrito-ingest geocode --dry-run
//	burrito-ingest chapters --unresolved
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/albapepper/burrito-league/internal/config"
	"github.com/albapepper/burrito-league/internal/db"
	"github.com/albapepper/burrito-league/internal/geocode"
	"github.com/albapepper/burrito-league/internal/poll"
	"github.com/albapepper/burrito-league/internal/provider/strava"
	"github.com/albapepper/burrito-league/internal/segments"
	"github.com/albapepper/burrito-league/internal/sentry"
	"github.com/albapepper/burrito-league/internal/sheet"
	"github.com/albapepper/burrito-league/internal/snapshot"
	"github.com/albapepper/burrito-league/internal/store"
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:   "burrito-ingest",
		Short: "Burrito League polling and maintenance CLI",
	}

	root.AddCommand(migrateCmd())
	root.AddCommand(pollCmd())
	root.AddCommand(geocodeCmd())
	root.AddCommand(chaptersCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// migrate command
// --------------------------------------------------------------------------

func migrateCmd() *cobra.Command {
	var printOnly bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			if printOnly {
				fmt.Fprint(cmd.OutOrStdout(), db.Schema())
				return nil
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := db.Migrate(ctx, cfg.DatabaseURL); err != nil {
				return err
			}
			logger.Info("Schema applied")
			return nil
		},
	}
	cmd.Flags().BoolVar(&printOnly, "print", false, "Print the schema instead of applying it")
	return cmd
}

// --------------------------------------------------------------------------
// poll command
// --------------------------------------------------------------------------

func pollCmd() *cobra.Command {
	var (
		force  bool
		source string
	)
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Fetch every chapter leaderboard and record admitted snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := poll.Options{Source: snapshot.Source(source), Force: force}
			if force {
				opts.Source = snapshot.SourceManual
			}
			if !opts.Source.Valid() {
				return fmt.Errorf("invalid --source %q", source)
			}
			return runWithDB(func(ctx context.Context, cfg *config.Config, st *store.Store) error {
				resolver, err := segments.NewResolver(cfg.SegmentTablesFile, logger)
				if err != nil {
					return err
				}
				o := poll.New(sheet.NewClient(cfg.SheetCSVURL, logger), resolver,
					strava.FromConfig(ctx, cfg, logger), st, logger)

				ctx, cancel := context.WithTimeout(ctx, cfg.PollTimeout)
				defer cancel()

				res, err := o.Run(ctx, opts)
				if err != nil {
					sentry.CaptureException(err, map[string]string{"op": "poll", "source": string(opts.Source)}, logger)
					return err
				}
				logger.Info("Poll finished",
					"poll_run_id", res.PollRunID,
					"duration", res.Duration.Round(time.Millisecond),
					"summary", res.Summary())
				return writeJSON(cmd, res)
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Admit every snapshot with data regardless of history (source=manual)")
	cmd.Flags().StringVar(&source, "source", string(snapshot.SourceManual), "Run source: scheduled, manual or build")
	return cmd
}

// --------------------------------------------------------------------------
// geocode command
// --------------------------------------------------------------------------

func geocodeCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "geocode",
		Short: "Geocode sheet cities that have no coordinates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithDB(func(ctx context.Context, cfg *config.Config, st *store.Store) error {
				resolver, err := segments.NewResolver(cfg.SegmentTablesFile, logger)
				if err != nil {
					return err
				}
				p := geocode.NewPrePoller(sheet.NewClient(cfg.SheetCSVURL, logger), resolver,
					geocode.NewClient(cfg.NominatimBaseURL, cfg.GeocodeUserAgent, logger), st, logger)

				if dryRun {
					missing, total, err := p.Missing(ctx)
					if err != nil {
						return err
					}
					logger.Info("Missing coordinates", "sheet_chapters", total, "new_cities", len(missing))
					w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
					fmt.Fprintln(w, "CITY\tSTATE\tCOUNTRY\tQUERY")
					for _, ch := range missing {
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ch.City, ch.State, ch.Country,
							geocode.Query(ch.City, ch.State, ch.Country))
					}
					return w.Flush()
				}

				res, err := p.Run(ctx)
				if err != nil {
					return err
				}
				logger.Info("Geocode finished", "summary", res.Summary())
				return writeJSON(cmd, res)
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List cities that would be geocoded without calling the geocoder")
	return cmd
}

// --------------------------------------------------------------------------
// chapters command
// --------------------------------------------------------------------------

func chaptersCmd() *cobra.Command {
	var unresolved bool
	cmd := &cobra.Command{
		Use:   "chapters",
		Short: "Print sheet chapters with their resolved segments",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			// Only the sheet and the tables are needed; no database.
			url := os.Getenv("SHEET_CSV_URL")
			if url == "" {
				url = config.DefaultSheetCSVURL
			}
			resolver, err := segments.NewResolver(os.Getenv("SEGMENT_TABLES_FILE"), logger)
			if err != nil {
				return err
			}
			records, err := sheet.NewClient(url, logger).Fetch(ctx)
			if err != nil {
				return err
			}
			chapters := resolver.BuildChapters(records)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "LOCATION\tSEGMENT NAME\tSEGMENT\tSTATUS")
			valid := 0
			for _, ch := range chapters {
				if ch.Valid() {
					valid++
					if unresolved {
						continue
					}
				}
				id := "-"
				if ch.SegmentID != 0 {
					id = fmt.Sprint(ch.SegmentID)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ch.DisplayLocation, ch.SegmentName, id, ch.Status)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			suggestions := resolver.Suggest(chapters)
			for _, s := range suggestions {
				fmt.Fprintf(cmd.OutOrStdout(), "did you mean %q for %q? (segment %d, distance %d)\n",
					s.Candidate, s.City, s.SegmentID, s.Distance)
			}
			logger.Info("Chapters resolved",
				"total", len(chapters), "valid", valid,
				"need_segment", len(chapters)-valid, "suggestions", len(suggestions))
			return nil
		},
	}
	cmd.Flags().BoolVar(&unresolved, "unresolved", false, "Only print chapters without a verified segment")
	return cmd
}

// --------------------------------------------------------------------------
// Shared setup
// --------------------------------------------------------------------------

// runWithDB handles config loading, error tracking, DB connection and
// context cancellation.
func runWithDB(fn func(ctx context.Context, cfg *config.Config, st *store.Store) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := sentry.Init(sentry.Config{
		DSN:         cfg.SentryDSN,
		Environment: cfg.Environment,
		ServerName:  "burrito-ingest",
	}, logger); err != nil {
		logger.Warn("Sentry initialization failed", "error", err)
	}
	defer sentry.Flush(2 * time.Second)

	pool, err := db.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, cfg, store.New(pool.Pool))
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
