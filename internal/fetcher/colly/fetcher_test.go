package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/toolhub-crawler/internal/crawler"
	"github.com/JakeFAU/toolhub-crawler/internal/toolinfo"
)

func newToolinfoServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/list.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"name":"a"},{"name":"b"}]`))
	})
	mux.HandleFunc("/single.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"name":"hay-tools-directory"}`))
	})
	mux.HandleFunc("/html", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>Not JSON!"))
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/list.json", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/hop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/moved", http.StatusFound)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"name":"root"}`))
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "oops", http.StatusInternalServerError)
	})
	mux.HandleFunc("/agent", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seen-Agent", r.UserAgent())
		w.Header().Set("X-Seen-Accept", r.Header.Get("Accept"))
		w.Header().Set("X-Seen-Trace", r.Header.Get("X-Trace"))
		_, _ = w.Write([]byte(`[]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchDecodesToolList(t *testing.T) {
	t.Parallel()
	srv := newToolinfoServer(t)
	f := New(Config{Timeout: time.Second}, nil)

	resp, err := f.Fetch(context.Background(), srv.URL+"/list.json")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, resp.Valid)
	require.False(t, resp.Redirected)
	require.Equal(t, srv.URL+"/list.json", resp.FinalURL)
	require.Equal(t, []toolinfo.RawToolInfo{{"name": "a"}, {"name": "b"}}, resp.Records)
	require.Equal(t, "application/json", resp.Headers.Get("Content-Type"))
}

func TestFetchWrapsSingleObject(t *testing.T) {
	t.Parallel()
	srv := newToolinfoServer(t)
	f := New(Config{}, nil)

	resp, err := f.Fetch(context.Background(), srv.URL+"/single.json")
	require.NoError(t, err)
	require.True(t, resp.Valid)
	require.Len(t, resp.Records, 1)
	require.Equal(t, "hay-tools-directory", resp.Records[0]["name"])
}

func TestFetchRevisitsSameURL(t *testing.T) {
	t.Parallel()
	srv := newToolinfoServer(t)
	f := New(Config{}, nil)

	for i := 0; i < 2; i++ {
		resp, err := f.Fetch(context.Background(), srv.URL+"/list.json")
		require.NoError(t, err)
		require.True(t, resp.Valid)
	}
}

func TestFetchReportsUnusableResponses(t *testing.T) {
	t.Parallel()
	srv := newToolinfoServer(t)
	f := New(Config{}, nil)

	tests := []struct {
		path   string
		status int
		parse  bool
	}{
		{"/html", http.StatusOK, true},
		{"/missing", http.StatusNotFound, false},
		{"/broken", http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		resp, err := f.Fetch(context.Background(), srv.URL+tt.path)
		require.NoError(t, err, tt.path)
		require.Equal(t, tt.status, resp.StatusCode, tt.path)
		require.False(t, resp.Valid, tt.path)
		require.Empty(t, resp.Records, tt.path)
		if tt.parse {
			require.Error(t, resp.ParseErr, tt.path)
		} else {
			require.NoError(t, resp.ParseErr, tt.path)
		}
	}
}

func TestFetchDetectsRedirect(t *testing.T) {
	t.Parallel()
	srv := newToolinfoServer(t)
	f := New(Config{}, nil)

	resp, err := f.Fetch(context.Background(), srv.URL+"/moved")
	require.NoError(t, err)
	require.True(t, resp.Redirected)
	require.Equal(t, srv.URL+"/list.json", resp.FinalURL)
	require.True(t, resp.Valid)
	require.Len(t, resp.Records, 2)
}

func TestFetchCountsRedirectHops(t *testing.T) {
	t.Parallel()
	srv := newToolinfoServer(t)
	f := New(Config{}, nil)

	resp, err := f.Fetch(context.Background(), srv.URL+"/hop")
	require.NoError(t, err)
	require.True(t, resp.Redirected)
	require.Equal(t, srv.URL+"/list.json", resp.FinalURL)
	require.True(t, resp.Valid)
}

func TestFetchBareHostIsNotRedirect(t *testing.T) {
	t.Parallel()
	srv := newToolinfoServer(t)
	f := New(Config{}, nil)

	target, err := crawler.NormalizeURL(srv.URL)
	require.NoError(t, err)
	resp, err := f.Fetch(context.Background(), target)
	require.NoError(t, err)
	require.Equal(t, srv.URL+"/", resp.FinalURL)
	require.False(t, resp.Redirected)
	require.True(t, resp.Valid)
	require.Equal(t, "root", resp.Records[0]["name"])
}

func TestTrackRedirect(t *testing.T) {
	t.Parallel()
	hops := new(atomic.Int32)
	ctx := context.WithValue(context.Background(), hopsKey{}, hops)
	first, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://a.example/toolinfo.json", nil)
	require.NoError(t, err)
	next, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://b.example/toolinfo.json", nil)
	require.NoError(t, err)
	next.Header.Set("Authorization", "Bearer secret")

	require.NoError(t, trackRedirect(next, []*http.Request{first}))
	require.Equal(t, int32(1), hops.Load())
	require.Empty(t, next.Header.Get("Authorization"))

	via := make([]*http.Request, maxRedirects)
	for i := range via {
		via[i] = first
	}
	require.ErrorIs(t, trackRedirect(next, via), http.ErrUseLastResponse)
	require.Equal(t, int32(1), hops.Load())
}

func TestFetchSendsConfiguredHeaders(t *testing.T) {
	t.Parallel()
	srv := newToolinfoServer(t)
	f := New(Config{UserAgent: "toolhub-test", Headers: http.Header{"X-Trace": {"yes"}}}, nil)

	resp, err := f.Fetch(context.Background(), srv.URL+"/agent")
	require.NoError(t, err)
	require.Equal(t, "toolhub-test", resp.Headers.Get("X-Seen-Agent"))
	require.Equal(t, "application/json", resp.Headers.Get("X-Seen-Accept"))
	require.Equal(t, "yes", resp.Headers.Get("X-Seen-Trace"))
}

func TestFetchTransportError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	target := srv.URL + "/toolinfo.json"
	srv.Close()

	f := New(Config{Timeout: time.Second}, nil)
	resp, err := f.Fetch(context.Background(), target)
	require.Error(t, err)
	require.Equal(t, 0, resp.StatusCode)
	require.False(t, resp.Valid)
	require.Equal(t, target, resp.URL)
}

func TestFetchHonorsCanceledContext(t *testing.T) {
	t.Parallel()
	srv := newToolinfoServer(t)
	f := New(Config{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := f.Fetch(ctx, srv.URL+"/list.json")
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, resp.Valid)
	require.Empty(t, resp.Records)
}

func TestFetchCanceledMidRequest(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	f := New(Config{Timeout: 5 * time.Second}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	resp, err := f.Fetch(ctx, srv.URL+"/slow.json")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 0, resp.StatusCode)
	require.False(t, resp.Valid)
}

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()
	f := New(Config{}, nil)
	require.Equal(t, defaultUserAgent, f.cfg.UserAgent)
	require.Equal(t, defaultTimeout, f.cfg.Timeout)
	require.Equal(t, defaultMaxBodySize, f.cfg.MaxBodySize)
	require.True(t, f.baseCollector.AllowURLRevisit)
	require.True(t, f.baseCollector.ParseHTTPErrorResponse)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()
	f := New(Config{Headers: http.Header{"X-Trace": {"yes"}}}, nil)
	var result crawler.FetchResponse
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, time.Now(), &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	require.Equal(t, "yes", collyReq.Headers.Get("X-Trace"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusCreated,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com/other.json")},
	})
	require.Equal(t, http.StatusCreated, result.StatusCode)
	require.Equal(t, "body", string(result.Body))
	require.Equal(t, "ok", result.Headers.Get("X-Resp"))
	require.Equal(t, "https://example.com/other.json", result.FinalURL)
	require.False(t, result.Redirected)

	hooks.onError(&colly.Response{StatusCode: 0}, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
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
