package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-products/config"
	"github.com/aluiziolira/go-scrape-products/models"
	"github.com/aluiziolira/go-scrape-products/parser"
	"github.com/aluiziolira/go-scrape-products/pipeline"
)

// WriterFactory opens the output for one section.
type WriterFactory func(format, path string) (pipeline.OutputWriter, error)

// Scraper runs the configured sections one after another: fetch the listing
// page, extract its product cards, write them to the section's output.
type Scraper struct {
	cfg       *config.Config
	fetcher   Fetcher
	newWriter WriterFactory
	Metrics   *Metrics

	mu           sync.Mutex
	failedURLs   []string
	errorsByType map[string]int
}

// NewScraper builds a scraper backed by a colly fetcher.
func NewScraper(cfg *config.Config) (*Scraper, error) {
	metrics := NewMetrics()
	fetcher, err := NewCollyFetcher(cfg, metrics)
	if err != nil {
		return nil, err
	}
	return newScraper(cfg, fetcher, metrics), nil
}

// NewScraperWithFetcher builds a scraper around a caller-supplied fetcher.
func NewScraperWithFetcher(cfg *config.Config, fetcher Fetcher) *Scraper {
	return newScraper(cfg, fetcher, NewMetrics())
}

func newScraper(cfg *config.Config, fetcher Fetcher, metrics *Metrics) *Scraper {
	return &Scraper{
		cfg:          cfg,
		fetcher:      fetcher,
		newWriter:    pipeline.NewWriter,
		Metrics:      metrics,
		errorsByType: make(map[string]int),
	}
}

// Run processes every configured section in order. With the abort section
// policy the first failing section ends the run and later sections are not
// attempted; with continue every section is attempted and the failures are
// returned joined. The result is populated in both cases.
func (s *Scraper) Run(ctx context.Context) (*models.ScraperResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	result := &models.ScraperResult{StartTime: time.Now()}
	var errs []error
	for _, section := range s.cfg.Sections {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		sr, err := s.RunSection(ctx, section)
		result.Sections = append(result.Sections, sr)
		result.TotalCount += sr.Written
		if err == nil {
			continue
		}
		errs = append(errs, err)
		if s.cfg.SectionPolicy != config.SectionPolicyContinue {
			break
		}
	}
	s.finish(result)
	return result, errors.Join(errs...)
}

// RunSection fetches, extracts and writes a single section. The output file
// is only created once the page has been retrieved and parsed.
func (s *Scraper) RunSection(ctx context.Context, section config.Section) (sr *models.SectionResult, err error) {
	sr = &models.SectionResult{
		Name:       section.Name,
		OutputPath: filepath.Join(s.cfg.OutputDir, section.Output),
		StartTime:  time.Now(),
	}
	logger := slog.With(slog.String("section", section.Name))
	defer func() {
		sr.EndTime = time.Now()
		if err != nil {
			err = fmt.Errorf("section %s: %w", section.Name, err)
			sr.Err = err
			s.Metrics.IncSection("failed")
			logger.Error("section failed", slog.Any("error", err))
			return
		}
		s.Metrics.IncSection("ok")
		logger.Info("section written",
			slog.String("output", sr.OutputPath),
			slog.Int("products", sr.Written),
			slog.Int("skipped", sr.Skipped),
			slog.Duration("duration", sr.EndTime.Sub(sr.StartTime)),
		)
	}()

	sectionURL, err := s.cfg.SectionURL(section)
	if err != nil {
		return sr, err
	}
	sr.URL = sectionURL
	logger.Info("scraping section", slog.String("url", sectionURL))

	body, err := s.fetcher.Fetch(ctx, sectionURL)
	if err != nil {
		s.recordTransportFailure(sectionURL, err)
		return sr, err
	}

	doc, err := parser.ParsePage(bytes.NewReader(body))
	if err != nil {
		return sr, err
	}

	writer, err := s.newWriter(s.cfg.OutputFormat, sr.OutputPath)
	if err != nil {
		return sr, fmt.Errorf("create writer: %w", err)
	}
	defer func() {
		if closeErr := writer.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close writer: %w", closeErr))
		}
		if err == nil {
			if validateErr := writer.Validate(); validateErr != nil {
				err = fmt.Errorf("validate output: %w", validateErr)
			}
		}
	}()

	p := pipeline.NewPipeline(writer, s.cfg)
	defer p.Close()

	stats, err := p.Consume(ctx, parser.ExtractProducts(doc))
	sr.Written = stats.Written
	sr.Skipped = stats.Skipped
	sr.RecordErrors = stats.RecordErrors
	s.Metrics.AddProducts(stats.Written)
	for _, recordErr := range stats.RecordErrors {
		s.Metrics.IncRecordFailure(parser.ErrorKind(recordErr))
	}
	if err != nil {
		var recordErr *parser.RecordError
		if errors.As(err, &recordErr) {
			s.Metrics.IncRecordFailure(parser.ErrorKind(err))
		}
		return sr, err
	}
	return sr, nil
}

func (s *Scraper) recordTransportFailure(url string, err error) {
	category := errorTypeLabel(err)
	s.mu.Lock()
	s.errorsByType[category]++
	s.failedURLs = append(s.failedURLs, url)
	s.mu.Unlock()
}

func (s *Scraper) finish(result *models.ScraperResult) {
	result.EndTime = time.Now()

	s.mu.Lock()
	result.FailedURLs = make([]string, len(s.failedURLs))
	copy(result.FailedURLs, s.failedURLs)
	result.ErrorsByType = make(map[string]int, len(s.errorsByType))
	for k, v := range s.errorsByType {
		result.ErrorsByType[k] = v
	}
	s.mu.Unlock()

	if stats, ok := s.fetcher.(interface{ Stats() FetchStats }); ok {
		fs := stats.Stats()
		result.RequestCount = fs.Requests
		result.ErrorCount = fs.Errors
		result.RetryCount = fs.Retries
		result.CacheHits = fs.CacheHits
	} else {
		result.ErrorCount = len(result.FailedURLs)
	}
}
