package sourcemap

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/posthog/cymbal/pkg/smcache"
	"github.com/posthog/cymbal/pkg/symboldata"
	"github.com/posthog/cymbal/pkg/symbolstore"
	"github.com/posthog/cymbal/pkg/symbolstore/storage"
	"github.com/posthog/cymbal/pkg/test/fixtures"
	"github.com/posthog/cymbal/pkg/util/bytesize"
)

type artifactServer struct {
	*httptest.Server

	mu   sync.Mutex
	hits map[string]int
}

func newArtifactServer(t *testing.T, routes map[string]http.HandlerFunc) *artifactServer {
	t.Helper()
	s := &artifactServer{hits: make(map[string]int)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.mu.Unlock()
		h, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *artifactServer) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *artifactServer) TotalHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, h := range s.hits {
		n += h
	}
	return n
}

func serveBytes(b []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(b)
	}
}

func testConfig() Config {
	return Config{
		AllowInternalIPs: true,
		Timeout:          5 * time.Second,
		MaxFetchBytes:    1 * bytesize.MiB,
		UserAgent:        "cymbal-test",
		MaxRetries:       2,
		MinBackoff:       time.Millisecond,
		MaxBackoff:       5 * time.Millisecond,
		MaxRedirects:     3,
	}
}

func newTestProvider(t *testing.T, cfg Config, store storage.Store) *Provider {
	t.Helper()
	p, err := New(log.NewNopLogger(), cfg, store, prometheus.NewRegistry())
	require.NoError(t, err)
	return p
}

func requireCache(t *testing.T, set symbolstore.SymbolSet) *smcache.Cache {
	t.Helper()
	c, ok := set.(*smcache.Cache)
	require.True(t, ok, "unexpected symbol set type %T", set)
	return c
}

func assertResolves(t *testing.T, c *smcache.Cache) {
	t.Helper()
	require.True(t, c.HasMap())
	tok, ok := c.Lookup(smcache.Position{Line: 0, Column: 30})
	require.True(t, ok)
	assert.Equal(t, fixtures.OriginalFile, tok.File)
	assert.Equal(t, uint32(1), tok.Line)
	assert.Equal(t, uint32(9), tok.Column)
}

// sourceWithoutDirective returns the minified code without its map directive.
func sourceWithoutDirective() []byte {
	line, _, _ := bytes.Cut(fixtures.Minified, []byte("\n"))
	return append(append([]byte(nil), line...), '\n')
}

func TestFetch_RelativeDirective(t *testing.T) {
	userAgent := make(chan string, 1)
	srv := newArtifactServer(t, map[string]http.HandlerFunc{
		"/static/" + fixtures.ChunkName: func(w http.ResponseWriter, r *http.Request) {
			userAgent <- r.Header.Get("User-Agent")
			_, _ = w.Write(fixtures.Minified)
		},
		"/static/" + fixtures.MapName: serveBytes(fixtures.Map),
	})
	p := newTestProvider(t, testConfig(), nil)

	set, err := p.Fetch(context.Background(), 1, srv.URL+"/static/"+fixtures.ChunkName)
	require.NoError(t, err)
	assertResolves(t, requireCache(t, set))
	assert.Equal(t, 1, srv.Hits("/static/"+fixtures.ChunkName))
	assert.Equal(t, 1, srv.Hits("/static/"+fixtures.MapName))
	assert.Equal(t, "cymbal-test", <-userAgent)
}

func TestFetch_HeaderDiscovery(t *testing.T) {
	for _, header := range []string{"SourceMap", "X-SourceMap"} {
		t.Run(header, func(t *testing.T) {
			srv := newArtifactServer(t, map[string]http.HandlerFunc{
				"/static/app.js": func(w http.ResponseWriter, _ *http.Request) {
					w.Header().Set(header, "/maps/app.js.map")
					_, _ = w.Write(sourceWithoutDirective())
				},
				"/maps/app.js.map": serveBytes(fixtures.Map),
			})
			p := newTestProvider(t, testConfig(), nil)

			set, err := p.Fetch(context.Background(), 1, srv.URL+"/static/app.js")
			require.NoError(t, err)
			assertResolves(t, requireCache(t, set))
			assert.Equal(t, 1, srv.Hits("/maps/app.js.map"))
		})
	}
}

func TestFetch_InlineMap(t *testing.T) {
	src := append(sourceWithoutDirective(), []byte("//# sourceMappingURL=data:application/json;charset=utf-8;base64,"+base64.StdEncoding.EncodeToString(fixtures.Map)+"\n")...)
	srv := newArtifactServer(t, map[string]http.HandlerFunc{
		"/app.js": serveBytes(src),
	})
	p := newTestProvider(t, testConfig(), nil)

	set, err := p.Fetch(context.Background(), 1, srv.URL+"/app.js")
	require.NoError(t, err)
	assertResolves(t, requireCache(t, set))
	assert.Equal(t, 1, srv.TotalHits())
}

func TestFetch_SourceWithoutMap(t *testing.T) {
	srv := newArtifactServer(t, map[string]http.HandlerFunc{
		"/app.js": serveBytes(sourceWithoutDirective()),
	})
	p := newTestProvider(t, testConfig(), nil)

	set, err := p.Fetch(context.Background(), 1, srv.URL+"/app.js")
	require.NoError(t, err)
	c := requireCache(t, set)
	assert.False(t, c.HasMap())
	_, ok := c.Lookup(smcache.Position{Line: 0, Column: 30})
	assert.False(t, ok)
	assert.NotNil(t, c.GeneratedContext(smcache.Position{Line: 0, Column: 30}))
}

func TestFetch_ForbiddenDestinations(t *testing.T) {
	srv := newArtifactServer(t, map[string]http.HandlerFunc{
		"/app.js": serveBytes(fixtures.Minified),
	})
	cfg := testConfig()
	cfg.AllowInternalIPs = false
	p := newTestProvider(t, cfg, nil)

	localhost := strings.Replace(srv.URL, "127.0.0.1", "localhost", 1)
	for _, ref := range []string{
		srv.URL + "/app.js",
		localhost + "/app.js",
		"http://[::1]/app.js",
		"http://10.0.0.8/app.js",
		"http://169.254.169.254/latest/meta-data/",
		"http://100.64.1.1/app.js",
		"http://0.0.0.0/app.js",
		"file:///etc/passwd",
		"ftp://example.com/app.js",
		"//example.com/app.js",
	} {
		t.Run(ref, func(t *testing.T) {
			_, err := p.Fetch(context.Background(), 1, ref)
			var forbidden *symbolstore.ForbiddenDestinationError
			require.ErrorAs(t, err, &forbidden)
			assert.False(t, symbolstore.IsRetryable(err))
		})
	}
	assert.Equal(t, 0, srv.TotalHits())
}

func TestFetch_MapWithForbiddenScheme(t *testing.T) {
	src := append(sourceWithoutDirective(), []byte("//# sourceMappingURL=file:///etc/app.js.map\n")...)
	srv := newArtifactServer(t, map[string]http.HandlerFunc{
		"/app.js": serveBytes(src),
	})
	p := newTestProvider(t, testConfig(), nil)

	_, err := p.Fetch(context.Background(), 1, srv.URL+"/app.js")
	var forbidden *symbolstore.ForbiddenDestinationError
	require.ErrorAs(t, err, &forbidden)
	assert.Equal(t, "file:///etc/app.js.map", forbidden.URL)
	assert.Equal(t, 1, srv.TotalHits())
}

func TestFetch_HTTPErrors(t *testing.T) {
	t.Run("not found is not retried", func(t *testing.T) {
		srv := newArtifactServer(t, nil)
		p := newTestProvider(t, testConfig(), nil)

		_, err := p.Fetch(context.Background(), 1, srv.URL+"/missing.js")
		var fetchErr *symbolstore.FetchError
		require.ErrorAs(t, err, &fetchErr)
		assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
		assert.False(t, symbolstore.IsRetryable(err))
		assert.Equal(t, 1, srv.Hits("/missing.js"))
	})

	t.Run("server errors are retried", func(t *testing.T) {
		var mu sync.Mutex
		calls := 0
		srv := newArtifactServer(t, map[string]http.HandlerFunc{
			"/app.js": func(w http.ResponseWriter, _ *http.Request) {
				mu.Lock()
				calls++
				n := calls
				mu.Unlock()
				if n < 3 {
					w.WriteHeader(http.StatusServiceUnavailable)
					return
				}
				_, _ = w.Write(sourceWithoutDirective())
			},
		})
		p := newTestProvider(t, testConfig(), nil)

		_, err := p.Fetch(context.Background(), 1, srv.URL+"/app.js")
		require.NoError(t, err)
		assert.Equal(t, 3, srv.Hits("/app.js"))
	})

	t.Run("retries are bounded", func(t *testing.T) {
		srv := newArtifactServer(t, map[string]http.HandlerFunc{
			"/app.js": func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
		})
		cfg := testConfig()
		cfg.MaxRetries = 1
		p := newTestProvider(t, cfg, nil)

		_, err := p.Fetch(context.Background(), 1, srv.URL+"/app.js")
		var fetchErr *symbolstore.FetchError
		require.ErrorAs(t, err, &fetchErr)
		assert.Equal(t, http.StatusBadGateway, fetchErr.StatusCode)
		assert.True(t, symbolstore.IsRetryable(err))
		assert.Equal(t, 2, srv.Hits("/app.js"))
	})

	t.Run("map failure fails the fetch", func(t *testing.T) {
		srv := newArtifactServer(t, map[string]http.HandlerFunc{
			"/" + fixtures.ChunkName: serveBytes(fixtures.Minified),
		})
		p := newTestProvider(t, testConfig(), nil)

		_, err := p.Fetch(context.Background(), 1, srv.URL+"/"+fixtures.ChunkName)
		var fetchErr *symbolstore.FetchError
		require.ErrorAs(t, err, &fetchErr)
		assert.Equal(t, srv.URL+"/"+fixtures.MapName, fetchErr.URL)
	})

	t.Run("body too large", func(t *testing.T) {
		srv := newArtifactServer(t, map[string]http.HandlerFunc{
			"/app.js": serveBytes(bytes.Repeat([]byte("x"), 2048)),
		})
		cfg := testConfig()
		cfg.MaxFetchBytes = 1 * bytesize.KiB
		p := newTestProvider(t, cfg, nil)

		_, err := p.Fetch(context.Background(), 1, srv.URL+"/app.js")
		require.ErrorIs(t, err, symbolstore.ErrBodyTooLarge)
		assert.False(t, symbolstore.IsRetryable(err))
		assert.Equal(t, 1, srv.Hits("/app.js"))
	})
}

func TestFetch_InvalidMap(t *testing.T) {
	srv := newArtifactServer(t, map[string]http.HandlerFunc{
		"/" + fixtures.ChunkName: serveBytes(fixtures.Minified),
		"/" + fixtures.MapName:   serveBytes([]byte("{not json")),
	})
	p := newTestProvider(t, testConfig(), nil)

	_, err := p.Fetch(context.Background(), 1, srv.URL+"/"+fixtures.ChunkName)
	var parseErr *symbolstore.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, srv.URL+"/"+fixtures.MapName, parseErr.URL)
	assert.False(t, symbolstore.IsRetryable(err))
}

func TestFetch_Store(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewFromConfig(storage.Config{Backend: storage.BackendMemory})
	require.NoError(t, err)

	srv := newArtifactServer(t, map[string]http.HandlerFunc{
		"/" + fixtures.ChunkName: serveBytes(fixtures.Minified),
		"/" + fixtures.MapName:   serveBytes(fixtures.Map),
	})
	ref := srv.URL + "/" + fixtures.ChunkName

	p := newTestProvider(t, testConfig(), store)
	_, err = p.Fetch(ctx, 1, ref)
	require.NoError(t, err)
	require.Equal(t, 2, srv.TotalHits())
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.storeWrites.WithLabelValues(statusSuccess)))

	blob, err := store.Get(ctx, storage.ObjectName(1, ref))
	require.NoError(t, err)
	data, err := symboldata.Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, fixtures.Minified, data.Source)
	assert.Equal(t, fixtures.Map, data.Map)

	// A fresh provider finds the pair in the store.
	p = newTestProvider(t, testConfig(), store)
	set, err := p.Fetch(ctx, 1, ref)
	require.NoError(t, err)
	assertResolves(t, requireCache(t, set))
	assert.Equal(t, 2, srv.TotalHits())
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.storeLookups.WithLabelValues(storeHit)))

	// Other teams do not share stored data.
	_, err = p.Fetch(ctx, 2, ref)
	require.NoError(t, err)
	assert.Equal(t, 4, srv.TotalHits())
}

func TestFetch_CorruptStoredDataRefetched(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewFromConfig(storage.Config{Backend: storage.BackendMemory})
	require.NoError(t, err)

	srv := newArtifactServer(t, map[string]http.HandlerFunc{
		"/" + fixtures.ChunkName: serveBytes(fixtures.Minified),
		"/" + fixtures.MapName:   serveBytes(fixtures.Map),
	})
	ref := srv.URL + "/" + fixtures.ChunkName
	require.NoError(t, store.Put(ctx, storage.ObjectName(1, ref), []byte("garbage")))

	p := newTestProvider(t, testConfig(), store)
	set, err := p.Fetch(ctx, 1, ref)
	require.NoError(t, err)
	assertResolves(t, requireCache(t, set))
	assert.Equal(t, 2, srv.TotalHits())
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.storeLookups.WithLabelValues(storeError)))

	blob, err := store.Get(ctx, storage.ObjectName(1, ref))
	require.NoError(t, err)
	_, err = symboldata.Decode(blob)
	require.NoError(t, err)
}

func TestFetch_CanceledWhileRetrying(t *testing.T) {
	srv := newArtifactServer(t, map[string]http.HandlerFunc{
		"/app.js": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		},
	})
	cfg := testConfig()
	cfg.MaxRetries = 100
	cfg.MinBackoff = time.Second
	cfg.MaxBackoff = time.Second
	p := newTestProvider(t, cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := p.Fetch(ctx, 1, srv.URL+"/app.js")
	require.Error(t, err)
	assert.Equal(t, 1, srv.Hits("/app.js"))
}

func TestMapReference(t *testing.T) {
	for _, tt := range []struct {
		name   string
		header http.Header
		body   string
		want   string
	}{
		{name: "none", body: "var a=1;\n"},
		{name: "directive", body: "var a=1;\n//# sourceMappingURL=a.js.map\n", want: "a.js.map"},
		{name: "legacy directive", body: "var a=1;\n//@ sourceMappingURL=a.js.map", want: "a.js.map"},
		{name: "last directive wins", body: "//# sourceMappingURL=old.map\nvar a=1;\n//# sourceMappingURL=new.map\n", want: "new.map"},
		{name: "crlf", body: "var a=1;\r\n//# sourceMappingURL=a.js.map\r\n", want: "a.js.map"},
		{name: "block comment", body: "var a=1;\n/*//# sourceMappingURL=a.css.map */", want: "a.css.map"},
		{name: "header", header: http.Header{"Sourcemap": {"h.map"}}, body: "//# sourceMappingURL=a.js.map", want: "h.map"},
		{name: "legacy header", header: http.Header{"X-Sourcemap": {"x.map"}}, want: "x.map"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			header := tt.header
			if header == nil {
				header = http.Header{}
			}
			assert.Equal(t, tt.want, mapReference(header, []byte(tt.body)))
		})
	}
}

func TestDecodeDataURL(t *testing.T) {
	for _, tt := range []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "base64", in: "data:application/json;base64," + base64.StdEncoding.EncodeToString([]byte(`{"version":3}`)), want: `{"version":3}`},
		{name: "base64 with charset", in: "data:application/json;charset=utf-8;base64," + base64.StdEncoding.EncodeToString([]byte(`{"a":1}`)), want: `{"a":1}`},
		{name: "percent encoded", in: "data:application/json,%7B%22version%22%3A3%7D", want: `{"version":3}`},
		{name: "missing comma", in: "data:application/json;base64", wantErr: true},
		{name: "bad base64", in: "data:application/json;base64,!!!", wantErr: true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			require.True(t, isDataURL(tt.in))
			got, err := decodeDataURL(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestIsInternal(t *testing.T) {
	for _, tt := range []struct {
		addr string
		want bool
	}{
		{"127.0.0.1", true},
		{"10.1.2.3", true},
		{"172.16.0.1", true},
		{"192.168.1.1", true},
		{"169.254.169.254", true},
		{"100.64.0.1", true},
		{"0.0.0.0", true},
		{"::1", true},
		{"fd00::1", true},
		{"fe80::1", true},
		{"::ffff:127.0.0.1", true},
		{"8.8.8.8", false},
		{"100.128.0.1", false},
		{"2606:4700:4700::1111", false},
	} {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.want, isInternal(netip.MustParseAddr(tt.addr)))
		})
	}
}
