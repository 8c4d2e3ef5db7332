package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"road-metrics-monitor/internal/api"
	"road-metrics-monitor/internal/batch"
	"road-metrics-monitor/internal/config"
	"road-metrics-monitor/internal/db"
	"road-metrics-monitor/internal/parser"
	"road-metrics-monitor/internal/seed"
)

var (
	cfg      *config.Config
	dbPath   string
	database *db.Database
	log      zerolog.Logger
)

func main() {
	cfg = config.Load()
	log = newLogger(cfg)

	rootCmd := &cobra.Command{
		Use:   "road-metrics",
		Short: "Road Metrics Monitor - road defect ingestion and aggregation",
		Long: `A service for ingesting geotagged road-defect reports from field
vehicles into SQLite and periodically recomputing derived views (aggregate
counts, geographic heatmaps, per-vehicle statistics, daily/weekly reports)
for a dashboard to consume.`,
	}

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", cfg.DBPath, "Path to SQLite database")

	rootCmd.AddCommand(serverCmd())
	rootCmd.AddCommand(batchCmd())
	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(statsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	if cfg.LogFormat == "console" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return logger
}

// initDB initializes database connection
func initDB() error {
	var err error
	database, err = db.New(dbPath)
	return err
}

// serverCmd starts the REST API server with the background batch runner
func serverCmd() *cobra.Command {
	var addr string
	var noBatch bool

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the REST API server and scheduled batch runner",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initDB(); err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			pipeline := batch.New(database, log)
			server := api.NewServer(database, pipeline, log)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if !noBatch {
				runner := batch.NewRunner(pipeline, cfg.BatchInterval, log)
				go func() {
					_ = runner.Start(ctx)
				}()
			}

			httpServer := &http.Server{Addr: addr, Handler: server.Router()}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = httpServer.Shutdown(shutdownCtx)
			}()

			log.Info().Str("addr", addr).Str("db", dbPath).Msg("server listening")
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", cfg.ListenAddr, "Listen address")
	cmd.Flags().BoolVar(&noBatch, "no-batch", false, "Disable the scheduled batch runner")
	return cmd
}

// batchCmd runs the aggregation pipeline
func batchCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run the aggregation pipeline once, or on an interval",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initDB(); err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			pipeline := batch.New(database, log)

			if interval > 0 {
				ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				runner := batch.NewRunner(pipeline, interval, log)
				if err := runner.Start(ctx); err != context.Canceled {
					return err
				}
				return nil
			}

			result, err := pipeline.Run(context.Background())
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(result)
			return err
		},
	}

	cmd.Flags().DurationVarP(&interval, "interval", "i", 0, "Run on this interval instead of once (e.g. 1h)")
	return cmd
}

// ingestCmd ingests defect reports from files
func ingestCmd() *cobra.Command {
	var format string
	var validate bool

	cmd := &cobra.Command{
		Use:   "ingest [file...]",
		Short: "Ingest defect reports from files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initDB(); err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			p := parser.NewParser(format)
			totalRecords := 0
			totalErrors := 0

			for _, file := range args {
				fmt.Printf("Processing %s...\n", file)
				start := time.Now()

				records, err := p.ParseFile(file)
				if err != nil {
					fmt.Printf("  Error: %v\n", err)
					totalErrors++
					continue
				}

				if validate {
					valid := records[:0]
					for i := range records {
						if errs := parser.ValidateDefect(&records[i]); len(errs) == 0 {
							valid = append(valid, records[i])
						} else {
							totalErrors++
						}
					}
					records = valid
				}

				now := time.Now().UTC()
				for i := range records {
					if records[i].Timestamp.IsZero() {
						records[i].Timestamp = now
					}
				}

				count, err := database.InsertDefectBatch(context.Background(), records)
				if err != nil {
					fmt.Printf("  Database error: %v\n", err)
					continue
				}

				elapsed := time.Since(start)
				fmt.Printf("  Inserted %d records in %v (%.0f records/sec)\n",
					count, elapsed, float64(count)/elapsed.Seconds())
				totalRecords += int(count)
			}

			fmt.Printf("\nTotal: %d records ingested", totalRecords)
			if totalErrors > 0 {
				fmt.Printf(", %d errors", totalErrors)
			}
			fmt.Println()

			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "csv", "File format (csv, json)")
	cmd.Flags().BoolVarP(&validate, "validate", "v", true, "Validate records before inserting")
	return cmd
}

// seedCmd populates the database with sample data
func seedCmd() *cobra.Command {
	var count int
	var vehicleCount int

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate the database with sample defect data",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initDB(); err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			rng := rand.New(rand.NewSource(time.Now().UnixNano()))
			start := time.Now()

			inserted, err := seed.Populate(context.Background(), database, rng, count, vehicleCount)
			if err != nil {
				return fmt.Errorf("seeding error: %w", err)
			}

			fmt.Printf("Seeded %d defects across up to %d vehicles in %v\n",
				inserted, vehicleCount, time.Since(start))
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "c", 50, "Number of defects to generate")
	cmd.Flags().IntVarP(&vehicleCount, "vehicles", "n", 20, "Number of distinct vehicle IDs")
	return cmd
}

// statsCmd shows database statistics
func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initDB(); err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			stats, err := database.GetStats(context.Background())
			if err != nil {
				return fmt.Errorf("error getting stats: %w", err)
			}

			fmt.Println("Road Metrics Monitor Statistics")
			fmt.Println("===============================")
			fmt.Printf("  Defect Reports:  %d\n", stats.TotalDefects)
			fmt.Printf("  Vehicles:        %d\n", stats.TotalVehicles)
			fmt.Printf("  Metric Entries:  %d\n", stats.MetricEntries)
			fmt.Printf("  Database:        %s\n", dbPath)

			return nil
		},
	}
}
