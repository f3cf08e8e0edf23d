// Package sourcemap implements a symbolstore.Provider that fetches minified
// JavaScript and its source map over HTTP.
package sourcemap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/backoff"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/posthog/cymbal/pkg/smcache"
	"github.com/posthog/cymbal/pkg/symboldata"
	"github.com/posthog/cymbal/pkg/symbolstore"
	"github.com/posthog/cymbal/pkg/symbolstore/storage"
)

// Kind is the cache namespace of this provider.
const Kind = "sourcemap"

// Provider fetches a source, discovers its map and parses both into a
// smcache.Cache. Fetched pairs are persisted to the symbol data store so later
// fetches of the same reference avoid the network.
type Provider struct {
	logger  log.Logger
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	store   storage.Store
	metrics *metrics
}

func New(logger log.Logger, cfg Config, store storage.Store, reg prometheus.Registerer) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if store == nil {
		store = storage.NewNullStore()
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	p := &Provider{
		logger:  logger,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, cfg.Burst),
		store:   store,
		metrics: newMetrics(reg),
	}

	dialer := &net.Dialer{
		Timeout:   cfg.Timeout,
		KeepAlive: 30 * time.Second,
		Control:   p.controlDial,
	}
	// Proxy is left nil: with a proxy the dialer would only ever see the
	// proxy's address.
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	p.client = &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > cfg.MaxRedirects {
				return fmt.Errorf("stopped after %d redirects", cfg.MaxRedirects)
			}
			return p.checkURL(req.URL)
		},
	}
	return p, nil
}

func (p *Provider) Fetch(ctx context.Context, teamID int, ref string) (symbolstore.SymbolSet, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, &symbolstore.ForbiddenDestinationError{URL: ref}
	}
	if err = p.checkURL(u); err != nil {
		return nil, err
	}

	name := storage.ObjectName(teamID, ref)
	if c, ok := p.fromStore(ctx, name, ref); ok {
		return c, nil
	}

	data, mapURL, err := p.fetchSourceAndMap(ctx, u)
	if err != nil {
		return nil, err
	}
	c, err := smcache.FromSourceAndMap(data)
	if err != nil {
		return nil, &symbolstore.ParseError{URL: mapURL, Err: err}
	}

	status := statusSuccess
	if err = p.store.Put(ctx, name, symboldata.Encode(data)); err != nil {
		status = storeError
		level.Warn(p.logger).Log("msg", "failed to store symbol data", "ref", ref, "err", err)
	}
	p.metrics.storeWrites.WithLabelValues(status).Inc()
	return c, nil
}

func (p *Provider) fromStore(ctx context.Context, name, ref string) (*smcache.Cache, bool) {
	blob, err := p.store.Get(ctx, name)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		p.metrics.storeLookups.WithLabelValues(storeMiss).Inc()
		return nil, false
	case err != nil:
		p.metrics.storeLookups.WithLabelValues(storeError).Inc()
		level.Warn(p.logger).Log("msg", "failed to read stored symbol data", "ref", ref, "err", err)
		return nil, false
	}

	data, err := symboldata.Decode(blob)
	if err == nil {
		var c *smcache.Cache
		if c, err = smcache.FromSourceAndMap(data); err == nil {
			p.metrics.storeLookups.WithLabelValues(storeHit).Inc()
			return c, true
		}
	}
	p.metrics.storeLookups.WithLabelValues(storeError).Inc()
	level.Warn(p.logger).Log("msg", "discarding unreadable stored symbol data", "ref", ref, "err", err)
	return nil, false
}

// fetchSourceAndMap returns the source at u, its map if one is announced,
// and the location the map was read from.
func (p *Provider) fetchSourceAndMap(ctx context.Context, u *url.URL) (symboldata.SourceAndMap, string, error) {
	src, header, err := p.get(ctx, u)
	if err != nil {
		return symboldata.SourceAndMap{}, "", err
	}
	data := symboldata.SourceAndMap{Source: src}

	ref := mapReference(header, src)
	if ref == "" {
		level.Debug(p.logger).Log("msg", "source has no source map", "url", u)
		return data, u.String(), nil
	}
	if isDataURL(ref) {
		if data.Map, err = decodeDataURL(ref); err != nil {
			return symboldata.SourceAndMap{}, "", &symbolstore.ParseError{URL: u.String(), Err: fmt.Errorf("inline source map: %w", err)}
		}
		return data, u.String(), nil
	}

	rel, err := url.Parse(ref)
	if err != nil {
		return symboldata.SourceAndMap{}, "", &symbolstore.ParseError{URL: u.String(), Err: fmt.Errorf("source map reference %q: %w", ref, err)}
	}
	mapURL := u.ResolveReference(rel)
	if err = p.checkURL(mapURL); err != nil {
		return symboldata.SourceAndMap{}, "", err
	}
	if data.Map, _, err = p.get(ctx, mapURL); err != nil {
		return symboldata.SourceAndMap{}, "", err
	}
	return data, mapURL.String(), nil
}

// get performs a GET request, retrying retryable failures with backoff.
func (p *Provider) get(ctx context.Context, u *url.URL) ([]byte, http.Header, error) {
	backOff := backoff.New(ctx, backoff.Config{
		MinBackoff: p.cfg.MinBackoff,
		MaxBackoff: p.cfg.MaxBackoff,
		MaxRetries: p.cfg.MaxRetries + 1,
	})

	var lastErr error
	for backOff.Ongoing() {
		body, header, err := p.doRequest(ctx, u)
		if err == nil {
			return body, header, nil
		}
		lastErr = err
		if !symbolstore.IsRetryable(err) {
			break
		}
		level.Debug(p.logger).Log("msg", "retrying request", "url", u, "attempt", backOff.NumRetries()+1, "err", err)
		backOff.Wait()
	}
	if lastErr == nil {
		lastErr = &symbolstore.FetchError{URL: u.String(), Err: backOff.Err()}
	}
	return nil, nil, lastErr
}

func (p *Provider) doRequest(ctx context.Context, u *url.URL) (body []byte, header http.Header, err error) {
	start := time.Now()
	defer func() {
		p.metrics.requestDuration.WithLabelValues(requestStatus(err)).Observe(time.Since(start).Seconds())
	}()

	if err = p.limiter.Wait(ctx); err != nil {
		return nil, nil, &symbolstore.FetchError{URL: u.String(), Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, nil, &symbolstore.FetchError{URL: u.String(), Err: err}
	}
	if p.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", p.cfg.UserAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		var forbidden *symbolstore.ForbiddenDestinationError
		if errors.As(err, &forbidden) {
			return nil, nil, &symbolstore.ForbiddenDestinationError{URL: u.String(), Addr: forbidden.Addr}
		}
		return nil, nil, &symbolstore.FetchError{URL: u.String(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, nil, &symbolstore.FetchError{URL: u.String(), StatusCode: resp.StatusCode}
	}

	limit := int64(p.cfg.MaxFetchBytes)
	if resp.ContentLength > limit {
		return nil, nil, &symbolstore.FetchError{URL: u.String(), Err: symbolstore.ErrBodyTooLarge}
	}
	body, err = io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, nil, &symbolstore.FetchError{URL: u.String(), Err: fmt.Errorf("read response body: %w", err)}
	}
	if int64(len(body)) > limit {
		return nil, nil, &symbolstore.FetchError{URL: u.String(), Err: symbolstore.ErrBodyTooLarge}
	}
	p.metrics.fetchedBytes.Observe(float64(len(body)))
	return body, resp.Header, nil
}
