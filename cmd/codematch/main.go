// codematch detects duplicate and near-duplicate submitted code against a
// growing index of prior submissions, using two complementary techniques:
// chunk-level SimHash for structural near-duplicates and winnowed
// token-fingerprint matching for substring overlap.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	_ "modernc.org/sqlite"

	"github.com/codematch/codematch/internal/builder"
	"github.com/codematch/codematch/internal/cache"
	"github.com/codematch/codematch/internal/config"
	"github.com/codematch/codematch/internal/index"
	"github.com/codematch/codematch/internal/memory"
	"github.com/codematch/codematch/internal/query"
	"github.com/codematch/codematch/internal/report"
	"github.com/codematch/codematch/internal/ui"
	"github.com/codematch/codematch/internal/web"
)

func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%dB", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

var version = "0.1.0-dev"

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "codematch",
		Short: "codematch - duplicate source detection over a growing submission index",
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to config file (YAML)")

	rootCmd.AddCommand(versionCmd(), serveCmd(), rebuildCmd(), deleteOrderCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("codematch version %s\n", version)
		},
	}
}

func loadConfig() (*config.Config, error) {
	if configFile == "" {
		return config.Default(), nil
	}
	return config.Load(configFile)
}

func openStore(ctx context.Context, cfg *config.Config) (index.Store, *sql.DB, error) {
	if cfg.Store.Driver == "sqlite" {
		dsn := cfg.Store.DSN
		if dsn == "" {
			dsn = "codematch.db"
		}
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		store, err := index.NewSQLiteStore(ctx, dsn)
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("open index store: %w", err)
		}
		return store, db, nil
	}
	return index.NewMemoryStore(), nil, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "start the HTTP duplicate-check server",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(ui.MiniBanner)

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			store, db, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			var orders query.OrderLookup
			if db != nil {
				orders = query.NewSQLiteOrderLookup(db)
			} else {
				orders = query.NoopOrderLookup{}
			}

			srv := web.NewServer(store, orders, cfg.Server.RequestsPerSec)

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigChan
				cancel()
			}()

			return srv.Start(ctx, cfg.Server.Addr)
		},
	}
}

func rebuildCmd() *cobra.Command {
	var from, upto int64
	var batchSize int
	var resume bool
	var reportDir string
	var reportFormat string

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "rebuild the index from the document store, from a cursor up to an optional ceiling",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if batchSize <= 0 {
				batchSize = cfg.Builder.BatchSize
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigChan
				cancel()
			}()

			store, db, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			if db == nil {
				return fmt.Errorf("rebuild requires store.driver: sqlite (the document source lives in the same database)")
			}
			defer db.Close()

			mon := memory.NewMonitor(0, memory.DefaultThreshold())
			mon.Start()
			defer mon.Stop()

			docs := builder.NewSQLiteDocumentSource(db, from, batchSize)
			docCache := cache.NewDocumentCache(cache.DefaultConfig())
			b := builder.New(store, docCache)
			defer b.Close()

			buildStats := ui.NewStats()
			start := time.Now()
			result, err := b.Run(ctx, docs, builder.Options{UpTo: upto, Resume: resume})
			if err != nil {
				return fmt.Errorf("rebuild failed: %w", err)
			}
			buildStats.RecordDocument("processed", 0)

			fmt.Printf("processed=%d skipped=%d failed=%d\n", result.Processed, result.Skipped, len(result.Failed))
			for _, f := range result.Failed {
				fmt.Printf("  document %d: %v\n", f.DocumentID, f.Err)
			}
			if stats := docCache.GetStats(); stats.Hits > 0 || stats.Misses > 0 {
				fmt.Printf("fingerprint cache: hits=%d misses=%d\n", stats.Hits, stats.Misses)
			}
			if latest := mon.GetLatest(); latest != nil {
				fmt.Printf("heap_alloc=%s sys=%s\n", formatBytes(latest.HeapAlloc), formatBytes(latest.Sys))
			}

			if reportDir != "" {
				rpt := report.NewReport("codematch rebuild", cfg.Store.DSN)
				rpt.SetStatistics(report.Statistics{
					DocumentsProcessed: int64(result.Processed),
					DocumentsSkipped:   int64(result.Skipped),
					Duration:           time.Since(start),
					DocsPerSecond:      float64(result.Processed) / time.Since(start).Seconds(),
				})
				for _, f := range result.Failed {
					rpt.AddFailure(report.FailureRecord{
						DocumentID: f.DocumentID,
						Kind:       report.FailureStoreWrite,
						Message:    f.Err.Error(),
						Timestamp:  time.Now(),
					})
				}
				mgr := report.NewManager(reportDir)
				path, err := mgr.Generate(rpt, reportFormat)
				if err != nil {
					return fmt.Errorf("write rebuild report: %w", err)
				}
				fmt.Printf("report written to %s\n", path)
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&from, "from", 0, "document id to start streaming from")
	cmd.Flags().Int64Var(&upto, "upto", 0, "stop once a document id exceeds this ceiling (0 = no ceiling)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "documents fetched per underlying query (0 = config default)")
	cmd.Flags().StringVar(&reportDir, "report-dir", "", "write a rebuild report to this directory (empty = no report)")
	cmd.Flags().StringVar(&reportFormat, "report-format", "json", "rebuild report format: json, html, or markdown")
	cmd.Flags().BoolVar(&resume, "resume", true, "skip documents already present in both the SimHash and winnowing indexes")
	return cmd
}

func deleteOrderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-order <order_id>",
		Short: "remove all indexed data for every document under an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var orderID int64
			if _, err := fmt.Sscanf(args[0], "%d", &orderID); err != nil {
				return fmt.Errorf("invalid order id %q: %w", args[0], err)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := context.Background()
			store, db, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			if db != nil {
				defer db.Close()
			}

			b := builder.New(store, nil)
			defer b.Close()
			if err := b.DeleteOrder(ctx, orderID); err != nil {
				return fmt.Errorf("delete order %d: %w", orderID, err)
			}
			fmt.Printf("order %d removed from index\n", orderID)
			return nil
		},
	}
}
