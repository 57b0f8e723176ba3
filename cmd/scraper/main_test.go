package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-products/config"
)

func TestBuildConfigPrecedence(t *testing.T) {
	t.Setenv("SCRAPER_MAX_RETRIES", "3")
	t.Setenv("SCRAPER_TIMEOUT", "5s")
	t.Setenv("SCRAPER_RECORD_POLICY", "SKIP")

	opts := options{maxRetries: 1, outputDir: "out"}
	cfg, err := buildConfig(opts, map[string]bool{"max-retries": true, "output-dir": true})
	if err != nil {
		t.Fatalf("buildConfig: %v", err)
	}

	if cfg.MaxRetries != 1 {
		t.Fatalf("flag should win over env: max retries = %d", cfg.MaxRetries)
	}
	if cfg.Timeout != 5*time.Second {
		t.Fatalf("env should win over default: timeout = %v", cfg.Timeout)
	}
	if cfg.RecordPolicy != config.RecordPolicySkip {
		t.Fatalf("record policy = %q, want skip", cfg.RecordPolicy)
	}
	if cfg.OutputDir != "out" {
		t.Fatalf("output dir = %q", cfg.OutputDir)
	}
	if cfg.SectionPolicy != config.SectionPolicyAbort || cfg.BatchSize != 64 {
		t.Fatalf("unset values should keep defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestBuildConfigInvalidEnv(t *testing.T) {
	t.Setenv("SCRAPER_BATCH_SIZE", "many")

	if _, err := buildConfig(options{}, map[string]bool{}); err == nil {
		t.Fatalf("expected error for invalid SCRAPER_BATCH_SIZE")
	}
}

func TestBuildConfigSectionsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sections.yaml")
	content := "sections:\n  - name: phones\n    path: more/phones/\n    output: phones.csv\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write sections: %v", err)
	}

	cfg, err := buildConfig(options{sectionsFile: path}, map[string]bool{"sections": true})
	if err != nil {
		t.Fatalf("buildConfig: %v", err)
	}
	if len(cfg.Sections) != 1 || cfg.Sections[0].Output != "phones.csv" {
		t.Fatalf("sections = %+v", cfg.Sections)
	}
}
