package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/go-scrape-products/config"
	"github.com/aluiziolira/go-scrape-products/models"
	"github.com/aluiziolira/go-scrape-products/scraper"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type options struct {
	baseURL         string
	sectionsFile    string
	outputDir       string
	outputFormat    string
	recordPolicy    string
	sectionPolicy   string
	batchSize       int
	timeout         time.Duration
	maxRetries      int
	retryBackoff    time.Duration
	retryBackoffMax time.Duration
	cacheSize       int
	metricsAddr     string
	envFile         string
	verbose         bool
}

func main() {
	defaultCfg := config.DefaultConfig()
	var opts options

	flag.StringVar(&opts.baseURL, "base-url", defaultCfg.BaseURL, "Base URL the section paths are resolved against")
	flag.StringVar(&opts.sectionsFile, "sections", "", "YAML file with the section catalogue (default: built-in six sections)")
	flag.StringVar(&opts.outputDir, "output-dir", defaultCfg.OutputDir, "Directory the section files are written to")
	flag.StringVar(&opts.outputFormat, "format", defaultCfg.OutputFormat, "Output format: csv, json, or dual")
	flag.StringVar(&opts.recordPolicy, "record-policy", defaultCfg.RecordPolicy, "On a malformed card: abort or skip")
	flag.StringVar(&opts.sectionPolicy, "section-policy", defaultCfg.SectionPolicy, "On a failed section: abort or continue")
	flag.IntVar(&opts.batchSize, "batch-size", defaultCfg.BatchSize, "Records buffered before each write")
	flag.DurationVar(&opts.timeout, "timeout", defaultCfg.Timeout, "Per-request timeout")
	flag.IntVar(&opts.maxRetries, "max-retries", defaultCfg.MaxRetries, "Retry attempts for transient fetch failures")
	flag.DurationVar(&opts.retryBackoff, "retry-backoff", defaultCfg.RetryBackoff, "Initial retry backoff")
	flag.DurationVar(&opts.retryBackoffMax, "retry-backoff-max", defaultCfg.RetryBackoffMax, "Maximum retry backoff")
	flag.IntVar(&opts.cacheSize, "cache-size", defaultCfg.CacheSize, "Pages kept in the in-memory response cache (0 disables)")
	flag.StringVar(&opts.metricsAddr, "metrics-addr", defaultCfg.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	flag.StringVar(&opts.envFile, "env-file", ".env", "Optional dotenv file with SCRAPER_* variables")
	flag.BoolVar(&opts.verbose, "v", false, "Enable verbose logging")

	flag.Parse()

	logger, level := newLogger(opts.verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if loaded, err := config.LoadEnvFile(opts.envFile); err != nil {
		slog.Error("loading env file", slog.String("path", opts.envFile), slog.Any("error", err))
		os.Exit(1)
	} else if loaded {
		slog.Debug("env file loaded", slog.String("path", opts.envFile))
	}

	cfg, err := buildConfig(opts, explicitFlags())
	if err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("starting scrape",
		slog.String("base_url", cfg.BaseURL),
		slog.Int("sections", len(cfg.Sections)),
		slog.String("output_dir", cfg.OutputDir),
		slog.String("record_policy", cfg.RecordPolicy),
		slog.String("section_policy", cfg.SectionPolicy),
	)

	s, err := scraper.NewScraper(cfg)
	if err != nil {
		slog.Error("initialising scraper", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, stopping after the current section")
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" && s.Metrics != nil {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	result, runErr := s.Run(ctx)

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(result)

	if runErr != nil {
		slog.Error("scraping failed", slog.Any("error", runErr))
		os.Exit(1)
	}
}

func explicitFlags() map[string]bool {
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	return set
}

// buildConfig layers SCRAPER_* environment values over the defaults and
// explicitly set flags over both.
func buildConfig(opts options, explicit map[string]bool) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if explicit["base-url"] {
		cfg.BaseURL = opts.baseURL
	}
	if explicit["output-dir"] {
		cfg.OutputDir = opts.outputDir
	}
	if explicit["format"] {
		cfg.OutputFormat = opts.outputFormat
	}
	if explicit["record-policy"] {
		cfg.RecordPolicy = opts.recordPolicy
	}
	if explicit["section-policy"] {
		cfg.SectionPolicy = opts.sectionPolicy
	}
	if explicit["batch-size"] {
		cfg.BatchSize = opts.batchSize
	}
	if explicit["timeout"] {
		cfg.Timeout = opts.timeout
	}
	if explicit["max-retries"] {
		cfg.MaxRetries = opts.maxRetries
	}
	if explicit["retry-backoff"] {
		cfg.RetryBackoff = opts.retryBackoff
	}
	if explicit["retry-backoff-max"] {
		cfg.RetryBackoffMax = opts.retryBackoffMax
	}
	if explicit["cache-size"] {
		cfg.CacheSize = opts.cacheSize
	}
	if explicit["metrics-addr"] {
		cfg.MetricsAddr = opts.metricsAddr
	}
	if opts.verbose {
		cfg.Verbose = true
	}

	sectionsFile := opts.sectionsFile
	if !explicit["sections"] {
		if value, ok := config.EnvString("SCRAPER_SECTIONS"); ok {
			sectionsFile = value
		}
	}
	if sectionsFile != "" {
		sections, err := config.LoadSections(sectionsFile)
		if err != nil {
			return nil, err
		}
		cfg.Sections = sections
	}

	cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)
	cfg.RecordPolicy = strings.ToLower(cfg.RecordPolicy)
	cfg.SectionPolicy = strings.ToLower(cfg.SectionPolicy)
	return cfg, nil
}

func applyEnv(cfg *config.Config) error {
	stringVars := map[string]*string{
		"SCRAPER_BASE_URL":       &cfg.BaseURL,
		"SCRAPER_OUTPUT_DIR":     &cfg.OutputDir,
		"SCRAPER_FORMAT":         &cfg.OutputFormat,
		"SCRAPER_RECORD_POLICY":  &cfg.RecordPolicy,
		"SCRAPER_SECTION_POLICY": &cfg.SectionPolicy,
		"SCRAPER_METRICS_ADDR":   &cfg.MetricsAddr,
		"SCRAPER_USER_AGENT":     &cfg.UserAgent,
	}
	for key, dst := range stringVars {
		if value, ok := config.EnvString(key); ok {
			*dst = value
		}
	}

	ints := map[string]*int{
		"SCRAPER_BATCH_SIZE":  &cfg.BatchSize,
		"SCRAPER_MAX_RETRIES": &cfg.MaxRetries,
		"SCRAPER_CACHE_SIZE":  &cfg.CacheSize,
	}
	for key, dst := range ints {
		value, ok, err := config.EnvInt(key)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		if ok {
			*dst = value
		}
	}

	durations := map[string]*time.Duration{
		"SCRAPER_TIMEOUT":           &cfg.Timeout,
		"SCRAPER_RETRY_BACKOFF":     &cfg.RetryBackoff,
		"SCRAPER_RETRY_BACKOFF_MAX": &cfg.RetryBackoffMax,
	}
	for key, dst := range durations {
		value, ok, err := config.EnvDuration(key)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		if ok {
			*dst = value
		}
	}
	return nil
}

func printSummary(result *models.ScraperResult) {
	if result == nil {
		return
	}
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Scrape complete")

	for _, sr := range result.Sections {
		status := "ok"
		if !sr.OK() {
			status = "FAILED"
		}
		fmt.Printf("  %-10s %-6s %4d written, %d skipped -> %s\n", sr.Name, status, sr.Written, sr.Skipped, sr.OutputPath)
		if sr.Err != nil {
			fmt.Printf("             %v\n", sr.Err)
		}
	}

	duration := result.EndTime.Sub(result.StartTime)
	itemsPerSec := 0.0
	if duration.Seconds() > 0 {
		itemsPerSec = float64(result.TotalCount) / duration.Seconds()
	}

	fmt.Printf("  Total items:   %d\n", result.TotalCount)
	fmt.Printf("  Requests:      %d\n", result.RequestCount)
	fmt.Printf("  Errors:        %d\n", result.ErrorCount)
	fmt.Printf("  Retries:       %d\n", result.RetryCount)
	if result.CacheHits > 0 {
		fmt.Printf("  Cache hits:    %d\n", result.CacheHits)
	}
	fmt.Printf("  Failed URLs:   %d\n", len(result.FailedURLs))
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", result.ErrorsByType)
	}
	fmt.Printf("  Duration:      %v\n", duration)
	fmt.Printf("  Items/sec:     %.2f\n", itemsPerSec)
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
