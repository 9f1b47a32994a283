// Package collyfetcher retrieves toolinfo documents with gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/toolhub-crawler/internal/crawler"
	"github.com/JakeFAU/toolhub-crawler/internal/toolinfo"
)

const (
	defaultTimeout     = 15 * time.Second
	defaultMaxBodySize = 10 << 20
	defaultUserAgent   = "toolhub-crawler/1.0"
	maxRedirects       = 10
)

// hopsKey carries the per-fetch redirect counter on the request context.
type hopsKey struct{}

// Config controls collector behavior.
type Config struct {
	UserAgent   string
	Timeout     time.Duration
	MaxBodySize int
	// Headers are added to every request.
	Headers http.Header
}

// Fetcher implements crawler.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	logger        *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. Targets are revisited on every run and error
// statuses are delivered as responses so their codes can be recorded.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = defaultMaxBodySize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.ParseHTTPErrorResponse(),
		colly.MaxBodySize(cfg.MaxBodySize),
	)
	c.WithTransport(newHTTPTransport())
	c.SetRedirectHandler(trackRedirect)
	return &Fetcher{cfg: cfg, baseCollector: c, logger: logger}
}

// Fetch GETs url and decodes the body when the status is 2xx. Only transport
// failures are returned as errors.
func (f *Fetcher) Fetch(ctx context.Context, url string) (crawler.FetchResponse, error) {
	result := crawler.FetchResponse{URL: url}
	var fetchErr error
	hops := new(atomic.Int32)
	start := time.Now()
	collector := f.buildCollector(context.WithValue(ctx, hopsKey{}, hops))
	f.configureCollectorHooks(collector, start, &result, &fetchErr)

	err := f.runCollector(ctx, collector, url, &fetchErr)
	result.Redirected = hops.Load() > 0
	if err != nil {
		result.Duration = time.Since(start)
		return result, err
	}
	f.decode(&result)
	f.logger.Debug("toolinfo fetched",
		zap.String("url", url),
		zap.String("final_url", result.FinalURL),
		zap.Bool("redirected", result.Redirected),
		zap.Int("status_code", result.StatusCode),
		zap.Bool("valid", result.Valid),
		zap.Int("records", len(result.Records)),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

func (f *Fetcher) buildCollector(ctx context.Context) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.UserAgent = f.cfg.UserAgent
	collector.Context = ctx
	collector.SetRequestTimeout(f.cfg.Timeout)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	start time.Time,
	result *crawler.FetchResponse,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "application/json")
		for key, values := range f.cfg.Headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		result.FinalURL = r.Request.URL.String()
		result.StatusCode = r.StatusCode
		result.Body = append([]byte(nil), r.Body...)
		result.Duration = time.Since(start)
		if r.Headers != nil {
			result.Headers = r.Headers.Clone()
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result.StatusCode = r.StatusCode
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		// The collector shares ctx, so Visit returns promptly; wait for it
		// before the hooks' targets are handed back.
		<-done
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

// trackRedirect counts followed hops on the request context and stops after
// maxRedirects, returning the last response.
func trackRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return http.ErrUseLastResponse
	}
	if hops, ok := req.Context().Value(hopsKey{}).(*atomic.Int32); ok {
		hops.Add(1)
	}
	if last := via[len(via)-1]; req.URL.Host != last.URL.Host {
		req.Header.Del("Authorization")
	}
	return nil
}

// decode fills Records and Valid for 2xx responses.
func (f *Fetcher) decode(result *crawler.FetchResponse) {
	if result.StatusCode < http.StatusOK || result.StatusCode >= http.StatusMultipleChoices {
		return
	}
	records, err := toolinfo.Decode(result.Body)
	if err != nil {
		result.ParseErr = err
		return
	}
	result.Records = records
	result.Valid = true
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
