// Package collyfetcher implements document.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/docresolver/internal/document"
)

const defaultTimeout = 30 * time.Second

// ErrBodyTruncated is returned when a response body was cut short, either by
// the body size cap or by a connection that closed before Content-Length.
var ErrBodyTruncated = errors.New("response body truncated")

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// Proxy is an optional proxy URL; when empty the environment is consulted.
	Proxy string
	// InsecureSkipVerify disables TLS certificate verification. Mirror hosts
	// commonly serve broken intermediate chains, so the resolver turns this on.
	InsecureSkipVerify bool
	// MaxBodyBytes caps response bodies; zero means unlimited.
	MaxBodyBytes int
	Headers      http.Header
}

// Waiter delays a request until it may be sent.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Fetcher implements document.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	limiter       Waiter
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. limiter may be nil.
func New(cfg Config, limiter Waiter) (*Fetcher, error) {
	transport, err := newHTTPTransport(cfg)
	if err != nil {
		return nil, err
	}
	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true
	c.MaxBodySize = cfg.MaxBodyBytes
	c.WithTransport(transport)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		limiter:       limiter,
	}, nil
}

// Fetch executes a single HTTP GET using Colly.
func (f *Fetcher) Fetch(ctx context.Context, request document.FetchRequest) (document.FetchResponse, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, request.URL); err != nil {
			return document.FetchResponse{}, err
		}
	}
	var (
		result   document.FetchResponse
		fetchErr error
	)
	collector := f.buildCollector(request, time.Now(), &result, &fetchErr)
	if err := f.runCollector(ctx, collector, request.URL, &fetchErr); err != nil {
		return document.FetchResponse{}, err
	}
	return result, nil
}

func (f *Fetcher) buildCollector(
	request document.FetchRequest,
	start time.Time,
	result *document.FetchResponse,
	fetchErr *error,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := f.cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	collector.SetRequestTimeout(timeout)
	f.configureCollectorHooks(collector, request, start, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	request document.FetchRequest,
	start time.Time,
	result *document.FetchResponse,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		f.copyHeaders(request, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		if err := f.checkComplete(r); err != nil {
			*fetchErr = err
			return
		}
		var headers http.Header
		if r.Headers != nil {
			headers = r.Headers.Clone()
		}
		*result = document.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    headers,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) checkComplete(r *colly.Response) error {
	if f.cfg.MaxBodyBytes > 0 && len(r.Body) >= f.cfg.MaxBodyBytes {
		return fmt.Errorf("%w: reached %d byte limit", ErrBodyTruncated, f.cfg.MaxBodyBytes)
	}
	if r.Headers == nil {
		return nil
	}
	raw := r.Headers.Get("Content-Length")
	if raw == "" {
		return nil
	}
	want, err := strconv.Atoi(raw)
	if err != nil || want <= len(r.Body) {
		return nil
	}
	return fmt.Errorf("%w: got %d of %d bytes", ErrBodyTruncated, len(r.Body), want)
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
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

func (f *Fetcher) copyHeaders(request document.FetchRequest, r *colly.Request) {
	for _, src := range []http.Header{f.cfg.Headers, request.Headers} {
		for key, values := range src {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	}
}

func newHTTPTransport(cfg Config) (*http.Transport, error) {
	proxy := http.ProxyFromEnvironment
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		proxy = http.ProxyURL(proxyURL)
	}
	return &http.Transport{
		Proxy: proxy,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		// #nosec G402 -- verification is disabled only when configured for mirror hosts.
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify},
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}, nil
}
