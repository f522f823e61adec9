package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tinytelemetry/bundlelens/internal/logparse"
	"github.com/tinytelemetry/bundlelens/internal/metadata"
	"github.com/tinytelemetry/bundlelens/internal/model"
)

const (
	defaultParallel            = model.DefaultParallel
	defaultAPIAddr             = "127.0.0.1:3000"
	defaultOutput              = "bundlelens-report.json"
	defaultQueryTimeout        = model.DefaultQueryTimeout
	defaultMaxConcurrentReads  = 8
	defaultInsertBatchSize     = 2000
	defaultInsertFlushInterval = 100 * time.Millisecond
	defaultInsertFlushQueue    = 64
	defaultMetadataCacheSize   = 4096
	defaultMaxLineSize         = 1 << 20
	defaultArchiveKeepLast     = 20

	// windowLayout is the MMDD HH:MM form accepted by --from-time/--to-time.
	windowLayout = "0102 15:04"
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	PatternsFile        string        `mapstructure:"patterns-file"`
	Parallel            int           `mapstructure:"parallel"`
	ReferenceYear       int           `mapstructure:"reference-year"`
	FromTime            string        `mapstructure:"from-time"`
	ToTime              string        `mapstructure:"to-time"`
	WindowMatch         string        `mapstructure:"window-match"`
	HistogramMode       []string      `mapstructure:"histogram-mode"`
	Nodes               []string      `mapstructure:"nodes"`
	Types               []string      `mapstructure:"types"`
	Output              string        `mapstructure:"output"`
	DBPath              string        `mapstructure:"db-path"`
	QueryTimeout        time.Duration `mapstructure:"query-timeout"`
	MaxConcurrentReads  int           `mapstructure:"max-concurrent-queries"`
	InsertBatchSize     int           `mapstructure:"insert-batch-size"`
	InsertFlushInterval time.Duration `mapstructure:"insert-flush-interval"`
	InsertFlushQueue    int           `mapstructure:"insert-flush-queue-size"`
	MetadataCacheSize   int           `mapstructure:"metadata-cache-size"`
	MaxLineSize         int           `mapstructure:"max-line-size"`
	APIAddr             string        `mapstructure:"api-addr"`
	ArchiveDir          string        `mapstructure:"archive-dir"`
	ArchiveKeepLast     int           `mapstructure:"archive-keep-last"`
	ArchiveBucketURL    string        `mapstructure:"archive-bucket-url"`
	ArchiveS3Endpoint   string        `mapstructure:"archive-s3-endpoint"`
	ArchiveS3Region     string        `mapstructure:"archive-s3-region"`
	ArchiveS3AccessKey  string        `mapstructure:"archive-s3-access-key"`
	ArchiveS3SecretKey  string        `mapstructure:"archive-s3-secret-key"`
	ArchiveS3Token      string        `mapstructure:"archive-s3-session-token"`
	ArchiveS3UseSSL     bool          `mapstructure:"archive-s3-use-ssl"`
	OpenSearchURL       string        `mapstructure:"opensearch-url"`
	OpenSearchUser      string        `mapstructure:"opensearch-username"`
	OpenSearchPassword  string        `mapstructure:"opensearch-password"`
	OpenSearchIndex     string        `mapstructure:"opensearch-index"`
	ConfigPath          string        `mapstructure:"-"` // not from config file

	// Derived after validation.
	Window    model.Window        `mapstructure:"-"`
	MatchMode metadata.MatchMode  `mapstructure:"-"`
	TypeList  []model.ProcessType `mapstructure:"-"`
}

// registerFlags declares every config key as a persistent flag on root.
func registerFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "config file (default is $HOME/.config/bundlelens/config.yml)")
	flags.String("patterns-file", "", "pattern library YAML (default: built-in library)")
	flags.IntP("parallel", "p", defaultParallel, "number of parallel scan workers (1-20)")
	flags.Int("reference-year", 0, "year assumed for timestamps without one (default: current year)")
	flags.String("from-time", "", `window start as "MMDD HH:MM" (default: Jan 1 00:00)`)
	flags.String("to-time", "", `window end as "MMDD HH:MM" (default: Dec 31 23:59)`)
	flags.String("window-match", string(metadata.MatchBounds), "file selection against the window (bounds|overlap)")
	flags.StringSlice("histogram-mode", nil, "replace the pattern library with these expressions")
	flags.StringSlice("nodes", nil, "only analyze these nodes")
	flags.StringSlice("types", nil, "only analyze these process types (pg, ts, ms, ybc, yba)")
	flags.StringP("output", "o", defaultOutput, "report output path")
	flags.String("db-path", "", "DuckDB file for staged rows (default $HOME/.local/share/bundlelens/bundlelens.duckdb)")
	flags.Duration("query-timeout", defaultQueryTimeout, "timeout for each column-store query")
	flags.Int("max-concurrent-queries", defaultMaxConcurrentReads, "concurrent column-store pattern queries")
	flags.Int("insert-batch-size", defaultInsertBatchSize, "rows per staging insert batch")
	flags.Duration("insert-flush-interval", defaultInsertFlushInterval, "staging flush interval")
	flags.Int("insert-flush-queue-size", defaultInsertFlushQueue, "pending staging batches before backpressure")
	flags.Int("metadata-cache-size", defaultMetadataCacheSize, "cached file time ranges")
	flags.Int("max-line-size", defaultMaxLineSize, "longest line read before truncation, in bytes")
	flags.String("api-addr", defaultAPIAddr, "HTTP API listen address for serve")
	flags.String("archive-dir", "", "keep a timestamped copy of every report in this directory")
	flags.Int("archive-keep-last", defaultArchiveKeepLast, "archived runs to keep")
	flags.String("archive-bucket-url", "", "also upload archived runs to s3://bucket/prefix")
	flags.String("archive-s3-endpoint", "", "S3-compatible endpoint for archive uploads")
	flags.String("archive-s3-region", "", "S3 region for archive uploads")
	flags.Bool("archive-s3-use-ssl", true, "use https for a bare archive-s3-endpoint")
	flags.String("opensearch-url", "", "also index report cells into this OpenSearch cluster")
	flags.String("opensearch-index", "bundlelens-reports", "OpenSearch index for report cells")
}

func loadConfig(cmd *cobra.Command, now time.Time) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	defaultDBPath := filepath.Join(home, ".local", "share", "bundlelens", "bundlelens.duckdb")

	v := viper.New()
	v.SetEnvPrefix("BUNDLELENS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("parallel", defaultParallel)
	v.SetDefault("reference-year", 0)
	v.SetDefault("window-match", string(metadata.MatchBounds))
	v.SetDefault("output", defaultOutput)
	v.SetDefault("db-path", defaultDBPath)
	v.SetDefault("query-timeout", defaultQueryTimeout)
	v.SetDefault("max-concurrent-queries", defaultMaxConcurrentReads)
	v.SetDefault("insert-batch-size", defaultInsertBatchSize)
	v.SetDefault("insert-flush-interval", defaultInsertFlushInterval)
	v.SetDefault("insert-flush-queue-size", defaultInsertFlushQueue)
	v.SetDefault("metadata-cache-size", defaultMetadataCacheSize)
	v.SetDefault("max-line-size", defaultMaxLineSize)
	v.SetDefault("api-addr", defaultAPIAddr)
	v.SetDefault("archive-keep-last", defaultArchiveKeepLast)
	v.SetDefault("archive-s3-use-ssl", true)
	// Credentials come from env or the config file only.
	v.SetDefault("archive-s3-access-key", "")
	v.SetDefault("archive-s3-secret-key", "")
	v.SetDefault("archive-s3-session-token", "")
	v.SetDefault("opensearch-username", "")
	v.SetDefault("opensearch-password", "")

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return cfg, err
	}
	if err := v.BindPFlags(cmd.InheritedFlags()); err != nil {
		return cfg, err
	}

	configPath := v.GetString("config")
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "bundlelens", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()

	// Expand ~ in db-path
	if strings.HasPrefix(cfg.DBPath, "~/") {
		cfg.DBPath = filepath.Join(home, cfg.DBPath[2:])
	}
	if cfg.DBPath == "" {
		cfg.DBPath = defaultDBPath
	}

	return cfg, cfg.validate(now)
}

// validate checks ranges and fills the derived fields.
func (cfg *appConfig) validate(now time.Time) error {
	if cfg.Parallel < model.MinParallel || cfg.Parallel > model.MaxParallel {
		return fmt.Errorf("invalid parallel: %d (want %d-%d)", cfg.Parallel, model.MinParallel, model.MaxParallel)
	}
	if cfg.ReferenceYear == 0 {
		cfg.ReferenceYear = now.Year()
	}
	if cfg.ReferenceYear < 1970 || cfg.ReferenceYear > 9999 {
		return fmt.Errorf("invalid reference-year: %d", cfg.ReferenceYear)
	}

	mode, err := metadata.ParseMatchMode(cfg.WindowMatch)
	if err != nil {
		return err
	}
	cfg.MatchMode = mode

	w, err := parseWindow(cfg.FromTime, cfg.ToTime, cfg.ReferenceYear)
	if err != nil {
		return err
	}
	cfg.Window = w

	cfg.TypeList = nil
	for _, t := range cfg.Types {
		cfg.TypeList = append(cfg.TypeList, logparse.ParseProcessTypes(t)...)
	}
	return nil
}

// parseWindow turns the MMDD HH:MM bounds into a window within year.
// Empty bounds default to the edges of the year.
func parseWindow(from, to string, year int) (model.Window, error) {
	w := model.YearWindow(year)
	if from != "" {
		t, err := parseWindowTime(from, year)
		if err != nil {
			return w, fmt.Errorf("invalid from-time: %w", err)
		}
		w.Start = t
	}
	if to != "" {
		t, err := parseWindowTime(to, year)
		if err != nil {
			return w, fmt.Errorf("invalid to-time: %w", err)
		}
		w.End = t
	}
	if w.Start.After(w.End) {
		return w, fmt.Errorf("from-time %s is after to-time %s",
			w.Start.Format(model.TimeLayout), w.End.Format(model.TimeLayout))
	}
	return w, nil
}

func parseWindowTime(s string, year int) (time.Time, error) {
	t, err := time.Parse(windowLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%q: want %q", s, "MMDD HH:MM")
	}
	out := time.Date(year, t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
	if out.Month() != t.Month() {
		return time.Time{}, fmt.Errorf("%q: no such day in %d", s, year)
	}
	return out, nil
}
