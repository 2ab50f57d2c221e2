package collyfetcher

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/docresolver/internal/document"
)

func TestFetcherBuildCollector(t *testing.T) {
	t.Parallel()

	f, err := New(Config{UserAgent: "coverage-agent", Timeout: time.Second}, nil)
	require.NoError(t, err)

	collector := f.buildCollector(document.FetchRequest{URL: "https://example.com"}, time.Unix(0, 0), &document.FetchResponse{}, new(error))
	assert.Equal(t, "coverage-agent", collector.UserAgent)
	assert.True(t, collector.AllowURLRevisit)
	assert.True(t, collector.IgnoreRobotsTxt)
}

func TestNewRejectsBadProxy(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Proxy: "://bad"}, nil)
	require.Error(t, err)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f, err := New(Config{Headers: http.Header{"Accept": {"*/*"}}}, nil)
	require.NoError(t, err)
	req := document.FetchRequest{
		URL:     "https://example.com",
		Headers: http.Header{"X-Trace": {"yes"}},
	}
	var result document.FetchResponse
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, req, time.Unix(0, 0), &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	assert.Equal(t, "yes", collyReq.Headers.Get("X-Trace"))
	assert.Equal(t, "*/*", collyReq.Headers.Get("Accept"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("body"),
		Headers:    &http.Header{"Content-Type": {"application/pdf"}},
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com/x.pdf")},
	})
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, "body", string(result.Body))
	assert.Equal(t, "application/pdf", result.ContentType())
	assert.Equal(t, "https://example.com/x.pdf", result.URL)

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")
}

func TestCopyHeadersHandlesNil(t *testing.T) {
	t.Parallel()

	f, err := New(Config{}, nil)
	require.NoError(t, err)
	collyReq := &colly.Request{Headers: &http.Header{}}
	f.copyHeaders(document.FetchRequest{}, collyReq)
	assert.Empty(t, *collyReq.Headers)
}

func TestFetchAgainstSelfSignedServer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "docresolver-test", r.UserAgent())
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	t.Cleanup(srv.Close)

	waiter := &countingWaiter{}
	f, err := New(Config{UserAgent: "docresolver-test", InsecureSkipVerify: true, Timeout: 5 * time.Second}, waiter)
	require.NoError(t, err)

	for range 2 {
		resp, err := f.Fetch(context.Background(), document.FetchRequest{URL: srv.URL + "/paper.pdf"})
		require.NoError(t, err)
		assert.Equal(t, "%PDF-1.4", string(resp.Body))
		assert.Equal(t, "application/pdf", resp.ContentType())
	}
	assert.Equal(t, 2, waiter.calls)
}

func TestFetchVerifiesCertificatesWhenConfigured(t *testing.T) {
	t.Parallel()

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	f, err := New(Config{Timeout: 5 * time.Second}, nil)
	require.NoError(t, err)
	_, err = f.Fetch(context.Background(), document.FetchRequest{URL: srv.URL})
	require.Error(t, err)
}

func TestFetchReturnsErrorOnHTTPFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	f, err := New(Config{Timeout: 5 * time.Second}, nil)
	require.NoError(t, err)
	_, err = f.Fetch(context.Background(), document.FetchRequest{URL: srv.URL + "/missing"})
	require.Error(t, err)
}

func TestFetchRejectsBodyAtSizeLimit(t *testing.T) {
	t.Parallel()

	pdf := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("0"), 4096)...)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(pdf)
	}))
	t.Cleanup(srv.Close)

	f, err := New(Config{Timeout: 5 * time.Second, MaxBodyBytes: 1024}, nil)
	require.NoError(t, err)
	resp, err := f.Fetch(context.Background(), document.FetchRequest{URL: srv.URL + "/big.pdf"})
	require.ErrorIs(t, err, ErrBodyTruncated)
	assert.Empty(t, resp.Body)

	f, err = New(Config{Timeout: 5 * time.Second, MaxBodyBytes: 8192}, nil)
	require.NoError(t, err)
	resp, err = f.Fetch(context.Background(), document.FetchRequest{URL: srv.URL + "/big.pdf"})
	require.NoError(t, err)
	assert.Len(t, resp.Body, len(pdf))
}

func TestCheckComplete(t *testing.T) {
	t.Parallel()

	f, err := New(Config{MaxBodyBytes: 10}, nil)
	require.NoError(t, err)
	tests := []struct {
		name    string
		body    string
		length  string
		wantErr bool
	}{
		{name: "complete", body: "%PDF", length: "4"},
		{name: "no length", body: "%PDF"},
		{name: "bad length", body: "%PDF", length: "abc"},
		{name: "short of content length", body: "%PDF", length: "9", wantErr: true},
		{name: "at cap", body: "0123456789", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			headers := http.Header{}
			if tt.length != "" {
				headers.Set("Content-Length", tt.length)
			}
			err := f.checkComplete(&colly.Response{Body: []byte(tt.body), Headers: &headers})
			if tt.wantErr {
				require.ErrorIs(t, err, ErrBodyTruncated)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestFetchStopsWhenWaiterFails(t *testing.T) {
	t.Parallel()

	waitErr := errors.New("limited")
	f, err := New(Config{}, &countingWaiter{err: waitErr})
	require.NoError(t, err)
	_, err = f.Fetch(context.Background(), document.FetchRequest{URL: "http://127.0.0.1:1"})
	require.ErrorIs(t, err, waitErr)
}

func TestFetchHonorsContextCancellation(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	f, err := New(Config{Timeout: 5 * time.Second}, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = f.Fetch(ctx, document.FetchRequest{URL: srv.URL})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

type countingWaiter struct {
	calls int
	err   error
}

func (w *countingWaiter) Wait(context.Context, string) error {
	w.calls++
	return w.err
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
