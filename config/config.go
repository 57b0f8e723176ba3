package config

import (
	"fmt"
	"net/url"
	"time"
)

// Record failure policies.
const (
	RecordPolicyAbort = "abort"
	RecordPolicySkip  = "skip"
)

// Section failure policies.
const (
	SectionPolicyAbort    = "abort"
	SectionPolicyContinue = "continue"
)

// Config holds scraper configuration.
type Config struct {
	BaseURL         string
	Sections        []Section
	OutputDir       string
	OutputFormat    string // csv, json, or dual
	RecordPolicy    string // abort or skip
	SectionPolicy   string // abort or continue
	BatchSize       int
	Timeout         time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration
	CacheSize       int
	UserAgent       string
	Verbose         bool
	MetricsAddr     string
}

// DefaultConfig returns defaults that reproduce the reference run over the
// webscraper.io test shop.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:         "https://webscraper.io/test-sites/e-commerce/",
		Sections:        DefaultSections(),
		OutputDir:       ".",
		OutputFormat:    "csv",
		RecordPolicy:    RecordPolicyAbort,
		SectionPolicy:   SectionPolicyAbort,
		BatchSize:       64,
		Timeout:         30 * time.Second,
		MaxRetries:      0,
		RetryBackoff:    200 * time.Millisecond,
		RetryBackoffMax: 2 * time.Second,
		CacheSize:       0,
		UserAgent:       "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		Verbose:         false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if err := validateSections(c.Sections); err != nil {
		return err
	}

	if c.OutputDir == "" {
		return fmt.Errorf("output dir cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.RecordPolicy != RecordPolicyAbort && c.RecordPolicy != RecordPolicySkip {
		return fmt.Errorf("record policy must be %s or %s", RecordPolicyAbort, RecordPolicySkip)
	}
	if c.SectionPolicy != SectionPolicyAbort && c.SectionPolicy != SectionPolicyContinue {
		return fmt.Errorf("section policy must be %s or %s", SectionPolicyAbort, SectionPolicyContinue)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache size cannot be negative")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}

// SectionURL resolves a section path against the base URL.
func (c *Config) SectionURL(s Section) (string, error) {
	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	ref, err := url.Parse(s.Path)
	if err != nil {
		return "", fmt.Errorf("parse section path %q: %w", s.Path, err)
	}
	return base.ResolveReference(ref).String(), nil
}
