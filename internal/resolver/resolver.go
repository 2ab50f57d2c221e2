// Package resolver turns an identifier into document content by walking the
// mirror directory until one mirror yields a valid document.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/docresolver/internal/document"
	"github.com/JakeFAU/docresolver/internal/extract"
	"github.com/JakeFAU/docresolver/internal/metrics"
	"github.com/JakeFAU/docresolver/internal/mirror"
	"github.com/JakeFAU/docresolver/internal/pdfmeta"
)

// DefaultMaxMirrorAttempts bounds the mirrors tried by one attempt.
const DefaultMaxMirrorAttempts = 16

// Fetch stages reported to metrics.
const (
	stageMirrorPage = "mirror_page"
	stageContent    = "content"
	stageRender     = "render"
)

// Config controls Resolver behavior.
type Config struct {
	// ContentType must match the content response's Content-Type exactly.
	ContentType string
	// Extensions mark an http identifier as a direct content URL.
	Extensions        []string
	MaxMirrorAttempts int
	Headers           http.Header
}

// Resolver runs resolutions against its own mirror directory. It is not safe
// for concurrent use.
type Resolver struct {
	fetcher  document.Fetcher
	renderer document.Renderer
	gate     RenderGate
	mirrors  *mirror.Directory
	hasher   document.Hasher
	retry    RetryPolicy
	cfg      Config
	logger   *zap.Logger
	sleep    func(context.Context, time.Duration) error
}

// RenderGate decides whether a mirror page is worth a headless render.
type RenderGate interface {
	ShouldRender(resp document.FetchResponse) bool
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithRenderer enables a headless render of mirror pages with no extractable link.
func WithRenderer(renderer document.Renderer) Option {
	return func(r *Resolver) { r.renderer = renderer }
}

// WithRenderGate limits headless renders to pages the gate accepts.
func WithRenderGate(gate RenderGate) Option {
	return func(r *Resolver) { r.gate = gate }
}

// WithRetryPolicy replaces the default outer retry policy.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(r *Resolver) {
		if policy != nil {
			r.retry = policy
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New constructs a Resolver that owns mirrors.
func New(fetcher document.Fetcher, mirrors *mirror.Directory, hasher document.Hasher, cfg Config, opts ...Option) *Resolver {
	if cfg.ContentType == "" {
		cfg.ContentType = document.DefaultContentType
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = document.DefaultContentExtensions
	}
	if cfg.MaxMirrorAttempts <= 0 {
		cfg.MaxMirrorAttempts = DefaultMaxMirrorAttempts
	}
	if mirrors == nil {
		mirrors = mirror.NewDirectory(nil)
	}
	r := &Resolver{
		fetcher: fetcher,
		mirrors: mirrors,
		hasher:  hasher,
		retry:   NewExponentialRetryPolicy(0, 0, 0),
		cfg:     cfg,
		logger:  zap.NewNop(),
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("resolver")
	return r
}

// Mirrors returns the mirrors still in rotation.
func (r *Resolver) Mirrors() []string {
	return r.mirrors.List()
}

// Resolve fetches the document for raw. Not-found errors are returned without
// retrying; other failures are retried according to the retry policy.
func (r *Resolver) Resolve(ctx context.Context, raw string) (document.FetchResult, error) {
	id := document.NewIdentifierWithExtensions(raw, r.cfg.Extensions)
	var lastErr error
	for attempt := 0; ; attempt++ {
		result, err := r.attempt(ctx, id)
		if err == nil {
			metrics.ObserveResolution(string(id.Kind()), "success")
			return result, nil
		}
		lastErr = err
		if !r.retry.ShouldRetry(err, attempt+1) {
			break
		}
		delay := r.retry.Backoff(attempt)
		r.logger.Warn("resolution attempt failed, retrying",
			zap.String("identifier", id.Raw()),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if err := r.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}
	metrics.ObserveResolution(string(id.Kind()), document.KindOf(lastErr).String())
	return document.FetchResult{}, lastErr
}

func (r *Resolver) attempt(ctx context.Context, id document.Identifier) (document.FetchResult, error) {
	r.transition(id, StateStart, StateClassifying)
	if id.Kind() == document.KindDirectURL {
		r.transition(id, StateClassifying, StateFetchingContent)
		return r.resolveDirect(ctx, id)
	}
	r.transition(id, StateClassifying, StateLocatingMirror)

	var lastErr error
	for tried := 0; ; tried++ {
		if err := ctx.Err(); err != nil {
			r.transition(id, StateLocatingMirror, StateFailed)
			return document.FetchResult{}, fmt.Errorf("resolve %s: %w", id.Raw(), err)
		}
		if tried >= r.cfg.MaxMirrorAttempts {
			r.transition(id, StateLocatingMirror, StateFailed)
			return document.FetchResult{}, &document.NotFoundError{
				Identifier: id.Raw(),
				Err:        fmt.Errorf("mirror attempt limit %d reached: %w", r.cfg.MaxMirrorAttempts, lastErr),
			}
		}
		base, err := r.mirrors.Current()
		if err != nil {
			r.transition(id, StateLocatingMirror, StateFailed)
			return document.FetchResult{}, &document.NotFoundError{Identifier: id.Raw(), Err: err}
		}

		result, err := r.tryMirror(ctx, id, base)
		if err == nil {
			r.transition(id, StateValidating, StateSuccess)
			return result, nil
		}
		if ctx.Err() != nil {
			r.transition(id, StateFetchingMirrorPage, StateFailed)
			return document.FetchResult{}, fmt.Errorf("resolve %s: %w", id.Raw(), ctx.Err())
		}
		lastErr = err
		r.logger.Warn("mirror failed",
			zap.String("identifier", id.Raw()),
			zap.String("mirror", base),
			zap.Error(err),
		)
		r.transition(id, StateRetryWithNextMirror, StateLocatingMirror)
		metrics.ObserveMirrorRotation()
		if rotateErr := r.mirrors.Rotate(); rotateErr != nil {
			r.transition(id, StateLocatingMirror, StateFailed)
			return document.FetchResult{}, &document.NotFoundError{
				Identifier: id.Raw(),
				Err:        errors.Join(rotateErr, err),
			}
		}
	}
}

func (r *Resolver) resolveDirect(ctx context.Context, id document.Identifier) (document.FetchResult, error) {
	result, err := r.fetchContent(ctx, id, id.Raw(), "")
	switch {
	case err == nil:
		r.transition(id, StateValidating, StateSuccess)
		return result, nil
	case errors.Is(err, document.ErrUnexpectedContentType):
		r.transition(id, StateValidating, StateFailed)
		return document.FetchResult{}, &document.NotFoundError{Identifier: id.Raw(), Err: err}
	default:
		r.transition(id, StateFetchingContent, StateFailed)
		return document.FetchResult{}, err
	}
}

func (r *Resolver) tryMirror(ctx context.Context, id document.Identifier, base string) (document.FetchResult, error) {
	pageURL := strings.TrimRight(base, "/") + "/" + id.Raw()
	r.transition(id, StateLocatingMirror, StateFetchingMirrorPage)
	page, err := r.fetch(ctx, stageMirrorPage, pageURL)
	if err != nil {
		return document.FetchResult{}, document.NewSiteAccessError(pageURL, err)
	}

	r.transition(id, StateFetchingMirrorPage, StateExtractingLink)
	path, ok := extract.FindDirectLink(page.Body).First()
	if !ok {
		if extract.LooksLikeCaptcha(page.Body) {
			return document.FetchResult{}, document.NewCaptchaNeededError(pageURL)
		}
		path, ok = r.renderLink(ctx, id, pageURL, page)
		if !ok {
			return document.FetchResult{}, document.NewSiteAccessError(pageURL, document.ErrNoLink)
		}
	}

	contentURL := extract.Absolute(path, base)
	if i := strings.IndexByte(contentURL, '#'); i >= 0 {
		contentURL = contentURL[:i]
	}
	r.transition(id, StateExtractingLink, StateFetchingContent)
	return r.fetchContent(ctx, id, contentURL, base)
}

// renderLink retries extraction on the browser-rendered DOM.
func (r *Resolver) renderLink(
	ctx context.Context,
	id document.Identifier,
	pageURL string,
	page document.FetchResponse,
) (string, bool) {
	if r.renderer == nil {
		return "", false
	}
	if r.gate != nil && !r.gate.ShouldRender(page) {
		r.logger.Debug("page not eligible for headless render",
			zap.String("identifier", id.Raw()),
			zap.String("url", pageURL),
		)
		return "", false
	}
	start := time.Now()
	rendered, err := r.renderer.Render(ctx, document.FetchRequest{URL: pageURL, Headers: r.cfg.Headers})
	metrics.ObserveFetch(stageRender, pageURL, len(rendered.Body), time.Since(start))
	if err != nil {
		r.logger.Warn("headless render failed",
			zap.String("identifier", id.Raw()),
			zap.String("url", pageURL),
			zap.Error(err),
		)
		return "", false
	}
	return extract.FindDirectLink(rendered.Body).First()
}

func (r *Resolver) fetchContent(
	ctx context.Context,
	id document.Identifier,
	contentURL string,
	base string,
) (document.FetchResult, error) {
	resp, err := r.fetch(ctx, stageContent, contentURL)
	if err != nil {
		return document.FetchResult{}, document.NewSiteAccessError(contentURL, err)
	}

	r.transition(id, StateFetchingContent, StateValidating)
	if got := resp.ContentType(); got != r.cfg.ContentType {
		return document.FetchResult{}, document.NewSiteAccessError(
			contentURL,
			fmt.Errorf("%w: got %q, want %q", document.ErrUnexpectedContentType, got, r.cfg.ContentType),
		)
	}

	hash, err := r.hasher.Hash(resp.Body)
	if err != nil {
		return document.FetchResult{}, fmt.Errorf("hash content: %w", err)
	}
	return document.FetchResult{
		Identifier:  id,
		Content:     resp.Body,
		SourceURL:   contentURL,
		DerivedName: DeriveName(resp.Body, hash),
		Hash:        hash,
		Mirror:      base,
	}, nil
}

func (r *Resolver) fetch(ctx context.Context, stage, rawURL string) (document.FetchResponse, error) {
	start := time.Now()
	resp, err := r.fetcher.Fetch(ctx, document.FetchRequest{URL: rawURL, Headers: r.cfg.Headers})
	metrics.ObserveFetch(stage, rawURL, len(resp.Body), time.Since(start))
	if err != nil {
		return document.FetchResponse{}, fmt.Errorf("%s fetch: %w", stage, err)
	}
	return resp, nil
}

func (r *Resolver) transition(id document.Identifier, from, to State) {
	r.logger.Debug("state transition",
		zap.String("identifier", id.Raw()),
		zap.Stringer("from", from),
		zap.Stringer("state", to),
	)
}

// DeriveName names content after its embedded PDF title, falling back to the
// content hash.
func DeriveName(content []byte, hash string) string {
	if title, ok := pdfmeta.Title(content); ok {
		if name := pdfmeta.FileName(title); name != "" {
			return name + ".pdf"
		}
	}
	return hash + ".pdf"
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
