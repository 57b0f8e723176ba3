package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"

	"github.com/aluiziolira/go-scrape-products/config"
	"github.com/aluiziolira/go-scrape-products/models"
	"github.com/aluiziolira/go-scrape-products/parser"
)

var (
	// ErrPipelineClosed is returned when Consume is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
)

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(products []models.Product) error
	Close() error
	Validate() error
}

// Stats summarises one Consume call.
type Stats struct {
	Written      int
	Skipped      int
	RecordErrors []error
}

// Pipeline applies the record failure policy, validates records, and writes
// them to the output in batches, preserving page order.
type Pipeline struct {
	writer    OutputWriter
	batchSize int
	policy    string

	metrics metrics

	mu     sync.Mutex // guards closed
	closed bool
}

// NewPipeline builds a pipeline for one section's output.
func NewPipeline(writer OutputWriter, cfg *config.Config) *Pipeline {
	batchSize := 64
	policy := config.RecordPolicyAbort
	if cfg != nil {
		if cfg.BatchSize > 0 {
			batchSize = cfg.BatchSize
		}
		if cfg.RecordPolicy != "" {
			policy = cfg.RecordPolicy
		}
	}
	return &Pipeline{
		writer:    writer,
		batchSize: batchSize,
		policy:    policy,
		metrics:   newMetrics(),
	}
}

// Consume drains records into the writer. Under the skip policy failed records
// are counted and collected in Stats.RecordErrors. Under the abort policy the
// first failure stops consumption, the unflushed batch is discarded and the
// error is returned; batches flushed earlier remain written.
func (p *Pipeline) Consume(ctx context.Context, records iter.Seq2[models.Product, error]) (Stats, error) {
	var stats Stats
	if p.isClosed() {
		return stats, ErrPipelineClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}

	batch := make([]models.Product, 0, p.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.writer.Write(batch); err != nil {
			return fmt.Errorf("write batch: %w", err)
		}
		stats.Written += len(batch)
		batch = batch[:0]
		return nil
	}

	for product, err := range records {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return stats, ctxErr
		}
		if err == nil {
			err = p.prepare(product)
		}
		if err != nil {
			kind := parser.ErrorKind(err)
			p.metrics.addSkipped(kind)
			if p.policy != config.RecordPolicySkip {
				return stats, fmt.Errorf("extract record: %w", err)
			}
			slog.Warn("skipping malformed record",
				slog.String("kind", kind),
				slog.Any("error", err),
			)
			stats.Skipped++
			stats.RecordErrors = append(stats.RecordErrors, err)
			continue
		}

		batch = append(batch, product)
		p.metrics.incrementProcessed()
		if len(batch) >= p.batchSize {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}

	if err := flush(); err != nil {
		return stats, err
	}
	return stats, nil
}

// Close prevents more submissions. The writer is owned by the caller.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

func (p *Pipeline) prepare(product models.Product) error {
	if err := parser.ValidateProduct(product); err != nil {
		return err
	}
	return nil
}

func (p *Pipeline) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type metrics struct {
	mu        sync.Mutex
	processed int64
	skipped   map[string]int
}

func newMetrics() metrics {
	return metrics{
		skipped: make(map[string]int),
	}
}

func (m *metrics) incrementProcessed() {
	m.mu.Lock()
	m.processed++
	m.mu.Unlock()
}

func (m *metrics) addSkipped(kind string) {
	m.mu.Lock()
	m.skipped[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copySkipped := make(map[string]int, len(m.skipped))
	for k, v := range m.skipped {
		copySkipped[k] = v
	}

	return map[string]interface{}{
		"processed_products": m.processed,
		"skipped_records":    copySkipped,
	}
}
