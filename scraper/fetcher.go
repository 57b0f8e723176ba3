package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-scrape-products/config"
	"github.com/gocolly/colly/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Fetcher retrieves the raw content of one listing page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FetchStats is a snapshot of fetcher counters.
type FetchStats struct {
	Requests  int
	Errors    int
	Retries   int
	CacheHits int
}

const (
	ctxKeyStart  = "start"
	ctxKeyBody   = "body"
	ctxKeyStatus = "status"
)

// CollyFetcher issues one blocking GET per page through a synchronous colly
// collector, with optional retries and an LRU response cache.
type CollyFetcher struct {
	cfg       *config.Config
	collector *colly.Collector
	cache     *lru.Cache[string, []byte]
	metrics   *Metrics

	requestCount int64
	errorCount   int64
	retryCount   int64
	cacheHits    int64

	handlersOnce sync.Once
}

// NewCollyFetcher builds a fetcher restricted to the base URL's host.
func NewCollyFetcher(cfg *config.Config, metrics *Metrics) (*CollyFetcher, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	f := &CollyFetcher{
		cfg:       cfg,
		collector: collector,
		metrics:   metrics,
	}
	if cfg.CacheSize > 0 {
		cache, err := lru.New[string, []byte](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create response cache: %w", err)
		}
		f.cache = cache
	}
	f.configureHandlers()
	return f, nil
}

// Fetch returns the body of rawURL. Failures are returned as *TransportError.
func (f *CollyFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if f.cache != nil {
		if body, ok := f.cache.Get(rawURL); ok {
			atomic.AddInt64(&f.cacheHits, 1)
			f.metrics.IncCacheHit()
			slog.Debug("serving page from cache", slog.String("url", rawURL))
			return body, nil
		}
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, &TransportError{URL: rawURL, Err: err}
		}

		body, err := f.fetchOnce(rawURL)
		if err == nil {
			if f.cache != nil {
				f.cache.Add(rawURL, body)
			}
			return body, nil
		}

		if attempt >= f.cfg.MaxRetries || !retryable(err) {
			return nil, err
		}

		atomic.AddInt64(&f.retryCount, 1)
		f.metrics.IncRetries()
		delay := f.backoff(attempt + 1)
		slog.Debug("retrying request",
			slog.String("url", rawURL),
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.Any("error", err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, &TransportError{URL: rawURL, Err: ctx.Err()}
		case <-timer.C:
		}
	}
}

// Stats returns a snapshot of the fetcher counters.
func (f *CollyFetcher) Stats() FetchStats {
	return FetchStats{
		Requests:  int(atomic.LoadInt64(&f.requestCount)),
		Errors:    int(atomic.LoadInt64(&f.errorCount)),
		Retries:   int(atomic.LoadInt64(&f.retryCount)),
		CacheHits: int(atomic.LoadInt64(&f.cacheHits)),
	}
}

func (f *CollyFetcher) fetchOnce(rawURL string) ([]byte, error) {
	reqCtx := colly.NewContext()
	if err := f.collector.Request(http.MethodGet, rawURL, nil, reqCtx, nil); err != nil {
		atomic.AddInt64(&f.errorCount, 1)
		status, _ := reqCtx.GetAny(ctxKeyStatus).(int)
		classified := classifyError(err, status)
		f.metrics.IncError(errorTypeLabel(classified))
		return nil, &TransportError{URL: rawURL, StatusCode: status, Err: classified}
	}

	body, ok := reqCtx.GetAny(ctxKeyBody).([]byte)
	if !ok {
		atomic.AddInt64(&f.errorCount, 1)
		return nil, &TransportError{URL: rawURL, Err: errors.New("no response body")}
	}
	return body, nil
}

func (f *CollyFetcher) configureHandlers() {
	f.handlersOnce.Do(func() {
		f.collector.OnRequest(func(r *colly.Request) {
			r.Ctx.Put(ctxKeyStart, time.Now())
			atomic.AddInt64(&f.requestCount, 1)
			f.metrics.IncRequest("started")
			slog.Debug("fetching page", slog.String("url", r.URL.String()))
		})

		f.collector.OnResponse(func(r *colly.Response) {
			r.Ctx.Put(ctxKeyBody, r.Body)
			f.observe(r)
			f.metrics.IncRequest("completed")
		})

		f.collector.OnError(func(r *colly.Response, err error) {
			statusCode := 0
			if r != nil {
				statusCode = r.StatusCode
				if r.Ctx != nil {
					r.Ctx.Put(ctxKeyStatus, statusCode)
				}
				f.observe(r)
			}
			url := ""
			if r != nil && r.Request != nil && r.Request.URL != nil {
				url = r.Request.URL.String()
			}
			slog.Error("request error",
				slog.String("url", url),
				slog.Int("status", statusCode),
				slog.Any("error", err),
			)
		})
	})
}

func (f *CollyFetcher) observe(r *colly.Response) {
	if r.Ctx == nil {
		return
	}
	if start, ok := r.Ctx.GetAny(ctxKeyStart).(time.Time); ok {
		f.metrics.ObserveDuration(time.Since(start))
	}
}

func (f *CollyFetcher) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := f.cfg.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max := f.cfg.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}
