package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tinytelemetry/bundlelens/internal/analysis"
	"github.com/tinytelemetry/bundlelens/internal/archive"
	"github.com/tinytelemetry/bundlelens/internal/duckdb"
	"github.com/tinytelemetry/bundlelens/internal/ingest"
	"github.com/tinytelemetry/bundlelens/internal/logparse"
	"github.com/tinytelemetry/bundlelens/internal/logsource"
	"github.com/tinytelemetry/bundlelens/internal/metadata"
	"github.com/tinytelemetry/bundlelens/internal/model"
	"github.com/tinytelemetry/bundlelens/internal/patterns"
	"github.com/tinytelemetry/bundlelens/internal/publish"
	"github.com/tinytelemetry/bundlelens/internal/report"
	"github.com/tinytelemetry/bundlelens/internal/scan"
	"github.com/tinytelemetry/bundlelens/internal/timestamp"
)

// runEnv is what every subcommand sets up first: config, logger, a context
// cancelled on SIGINT/SIGTERM.
type runEnv struct {
	cfg     appConfig
	ctx     context.Context
	cleanup func()
}

func setup(cmd *cobra.Command) (*runEnv, error) {
	cfg, err := loadConfig(cmd, time.Now())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cleanupLogger := configureRuntimeLogger(cfg.Output)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	if cfg.ConfigPath != "" {
		log.Printf("bundlelens: config %s", cfg.ConfigPath)
	}
	return &runEnv{cfg: cfg, ctx: ctx, cleanup: func() {
		stop()
		cleanupLogger()
	}}, nil
}

func loadLibrary(cfg appConfig) (*patterns.Library, error) {
	lib := patterns.Default()
	if cfg.PatternsFile != "" {
		var err error
		if lib, err = patterns.LoadFile(cfg.PatternsFile); err != nil {
			return nil, err
		}
	}
	return lib.WithOverrides(cfg.HistogramMode), nil
}

func openStore(cfg appConfig) (*duckdb.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	store, err := duckdb.NewStore(cfg.DBPath, cfg.QueryTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize DuckDB: %w", err)
	}
	return store, nil
}

func request(cfg appConfig, lib *patterns.Library) analysis.Request {
	return analysis.Request{
		Library: lib,
		Window:  cfg.Window,
		Filter:  analysis.Filter{Nodes: cfg.Nodes, Types: cfg.TypeList},
	}
}

// writeReport saves the document, archives it when configured and prints
// its summary.
func writeReport(cmd *cobra.Command, env *runEnv, lib *patterns.Library, engine string, workers int, r model.AnalysisReport) error {
	cfg := env.cfg
	doc := report.Build(r, report.Options{
		Window:        cfg.Window,
		ReferenceYear: cfg.ReferenceYear,
		Parallel:      workers,
		Engine:        engine,
		NodeFilter:    cfg.Nodes,
		TypeFilter:    cfg.TypeList,
		HistogramMode: cfg.HistogramMode,
		Solutions:     lib.Solutions(),
	})
	if err := report.Save(doc, cfg.Output); err != nil {
		return err
	}
	if err := archiveRun(env, cfg.Output); err != nil {
		log.Printf("bundlelens: %v", err)
	}
	if err := publishRun(env, doc, engine); err != nil {
		log.Printf("bundlelens: %v", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), report.RenderSummary(doc))
	fmt.Fprintf(cmd.OutOrStdout(), "\n    report written to %s\n\n", cfg.Output)
	return nil
}

func archiveRun(env *runEnv, files ...string) error {
	cfg := env.cfg
	a, err := archive.New(archive.Config{
		Dir:      cfg.ArchiveDir,
		KeepLast: cfg.ArchiveKeepLast,
		S3: archive.S3Config{
			BucketURL:    cfg.ArchiveBucketURL,
			Endpoint:     cfg.ArchiveS3Endpoint,
			Region:       cfg.ArchiveS3Region,
			AccessKey:    cfg.ArchiveS3AccessKey,
			SecretKey:    cfg.ArchiveS3SecretKey,
			SessionToken: cfg.ArchiveS3Token,
			UseSSL:       cfg.ArchiveS3UseSSL,
		},
	})
	if err != nil || a == nil {
		return err
	}
	_, err = a.Store(env.ctx, files...)
	return err
}

func publishRun(env *runEnv, doc *report.Document, engine string) error {
	cfg := env.cfg
	p, err := publish.New(publish.Config{
		URL:      cfg.OpenSearchURL,
		Username: cfg.OpenSearchUser,
		Password: cfg.OpenSearchPassword,
		Index:    cfg.OpenSearchIndex,
	})
	if err != nil || p == nil {
		return err
	}
	_, err = p.Publish(env.ctx, doc, engine+"-"+doc.AnalysisConfig.GeneratedAt)
	return err
}

func newAnalyzeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <bundle-dir>",
		Short: "Scan raw log files in a support bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd)
			if err != nil {
				return err
			}
			defer env.cleanup()
			return runAnalyze(cmd, env, args[0])
		},
	}
}

func runAnalyze(cmd *cobra.Command, env *runEnv, root string) error {
	cfg := env.cfg
	lib, err := loadLibrary(cfg)
	if err != nil {
		return err
	}

	paths, err := logsource.Discover(root, logparse.IsCandidateLogFile)
	if err != nil {
		return fmt.Errorf("discover log files: %w", err)
	}
	log.Printf("bundlelens: %d candidate log files under %s", len(paths), root)

	extractor := timestamp.NewExtractor(cfg.ReferenceYear)
	cache, err := metadata.NewRangeCache(cfg.MetadataCacheSize)
	if err != nil {
		return err
	}
	builder := metadata.NewBuilder(extractor, metadata.BuilderConfig{MaxLineSize: cfg.MaxLineSize, Cache: cache})
	ranges, err := builder.BuildAll(env.ctx, paths, cfg.Parallel)
	if err != nil {
		return err
	}

	engine := scan.NewEngine(extractor, scan.EngineConfig{MaxLineSize: cfg.MaxLineSize})
	agg := &analysis.LineScanAggregator{
		Ranges:    ranges,
		MatchMode: cfg.MatchMode,
		Scheduler: analysis.NewScheduler(engine, cfg.Parallel),
	}
	started := time.Now()
	r, err := agg.Aggregate(env.ctx, request(cfg, lib))
	if err != nil {
		return err
	}
	log.Printf("bundlelens: line scan finished in %s", time.Since(started).Round(time.Millisecond))
	return writeReport(cmd, env, lib, "line-scan", cfg.Parallel, r)
}

type stageOptions struct {
	Parquet string
	Export  string
	Restage bool
}

func newStageCommand() *cobra.Command {
	opts := &stageOptions{}
	cmd := &cobra.Command{
		Use:   "stage [bundle-dir]",
		Short: "Load log lines into the DuckDB store",
		Long: `Stage reads every candidate log file under bundle-dir and stores one row
per line in DuckDB so "columnar" can aggregate without re-reading files.
Pre-extracted Parquet rows can be loaded with --parquet instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && opts.Parquet == "" && opts.Export == "" {
				return fmt.Errorf("need a bundle directory, --parquet or --export")
			}
			env, err := setup(cmd)
			if err != nil {
				return err
			}
			defer env.cleanup()
			root := ""
			if len(args) > 0 {
				root = args[0]
			}
			return runStage(cmd, env, root, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Parquet, "parquet", "", "import rows from Parquet files matching this glob")
	cmd.Flags().StringVar(&opts.Export, "export", "", "export staged rows to this Parquet file")
	cmd.Flags().BoolVar(&opts.Restage, "restage", false, "re-read files already staged")
	return cmd
}

func runStage(cmd *cobra.Command, env *runEnv, root string, opts *stageOptions) error {
	cfg := env.cfg
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	if root != "" {
		paths, err := logsource.Discover(root, logparse.IsCandidateLogFile)
		if err != nil {
			return fmt.Errorf("discover log files: %w", err)
		}
		files := make([]model.LogFileRef, len(paths))
		for i, p := range paths {
			files[i] = logparse.Classify(p)
		}
		res, err := ingest.StageFiles(env.ctx, store, timestamp.NewExtractor(cfg.ReferenceYear), files, ingest.StageConfig{
			Workers:     cfg.Parallel,
			MaxLineSize: cfg.MaxLineSize,
			Restage:     opts.Restage,
			Buffer: duckdb.InsertBufferConfig{
				BatchSize:      cfg.InsertBatchSize,
				FlushInterval:  cfg.InsertFlushInterval,
				FlushQueueSize: cfg.InsertFlushQueue,
			},
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "staged %d files (%d skipped, %d failed), %d rows\n", res.Files, res.Skipped, res.Failed, res.Rows)
	}

	if opts.Parquet != "" {
		n, err := store.ImportParquet(env.ctx, opts.Parquet)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "imported %d rows from %s\n", n, opts.Parquet)
	}

	if err := store.Checkpoint(); err != nil {
		log.Printf("bundlelens: checkpoint: %v", err)
	}

	if opts.Export != "" {
		if err := store.ExportParquet(env.ctx, opts.Export); err != nil {
			return err
		}
		fmt.Fprintf(out, "exported staged rows to %s\n", opts.Export)
		if err := archiveRun(env, opts.Export); err != nil {
			log.Printf("bundlelens: %v", err)
		}
	}
	return nil
}

func newColumnarCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "columnar",
		Short: "Aggregate patterns over rows staged in DuckDB",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := setup(cmd)
			if err != nil {
				return err
			}
			defer env.cleanup()
			return runColumnar(cmd, env)
		},
	}
}

func runColumnar(cmd *cobra.Command, env *runEnv) error {
	cfg := env.cfg
	lib, err := loadLibrary(cfg)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	agg := &analysis.ColumnarAggregator{Store: store, Lister: store, Workers: cfg.MaxConcurrentReads}
	started := time.Now()
	r, err := agg.Aggregate(env.ctx, request(cfg, lib))
	if err != nil {
		return err
	}
	log.Printf("bundlelens: columnar aggregation finished in %s", time.Since(started).Round(time.Millisecond))
	return writeReport(cmd, env, lib, "columnar", model.ClampParallel(cfg.MaxConcurrentReads), r)
}
