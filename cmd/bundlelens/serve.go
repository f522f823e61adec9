package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/tinytelemetry/bundlelens/internal/duckdb"
	"github.com/tinytelemetry/bundlelens/internal/httpserver"
	"github.com/tinytelemetry/bundlelens/internal/report"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the last report over HTTP",
		Long: `Serve exposes the report at --output on /api/report and per-pattern
histograms on /api/histogram. The report is re-read on every request.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := setup(cmd)
			if err != nil {
				return err
			}
			defer env.cleanup()
			return runServe(env)
		},
	}
}

func runServe(env *runEnv) error {
	cfg := env.cfg

	var rows httpserver.RowCounter
	staged := false
	if _, err := os.Stat(cfg.DBPath); err == nil {
		store, err := duckdb.NewStore(cfg.DBPath, cfg.QueryTimeout)
		if err != nil {
			return fmt.Errorf("failed to initialize DuckDB: %w", err)
		}
		defer store.Close()
		rows = store
		staged = true
	}

	output := cfg.Output
	srv := httpserver.NewServer(cfg.APIAddr, func() (*report.Document, error) {
		return report.Load(output)
	}, rows)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP API: %w", err)
	}
	printStartupBanner(cfg, staged)
	log.Printf("httpserver: listening on %s", cfg.APIAddr)

	<-env.ctx.Done()
	log.Printf("httpserver: shutting down")
	return srv.Stop()
}

func printStartupBanner(cfg appConfig, staged bool) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	var lines []string
	lines = append(lines, "")
	lines = append(lines, cyan.Bold(true).Render("    bundlelens")+"  "+dim.Render("v"+version))
	lines = append(lines, dim.Render("    ─────────────────────────────────"))
	lines = append(lines, "")
	lines = append(lines, bold.Render("    Serving"))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", check, cyan.Render(cfg.APIAddr)))
	lines = append(lines, fmt.Sprintf("    %s  Report         %s", check, dim.Render(shortenPath(cfg.Output))))
	if staged {
		lines = append(lines, fmt.Sprintf("    %s  Staged rows    %s", check, dim.Render(shortenPath(cfg.DBPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Staged rows    %s", dot, dim.Render("none")))
	}
	lines = append(lines, "")
	lines = append(lines, dim.Render("    Press Ctrl+C to stop"))
	lines = append(lines, "")

	fmt.Println(strings.Join(lines, "\n"))
}

// shortenPath replaces the home directory prefix with ~.
func shortenPath(p string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if rel, err := filepath.Rel(home, p); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.Join("~", rel)
	}
	return p
}
