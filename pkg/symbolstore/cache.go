package symbolstore

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/posthog/cymbal/pkg/util"
)

// FetchFunc produces the symbol set for a key on a cache miss.
type FetchFunc func(ctx context.Context) (SymbolSet, error)

var errNoSymbolSet = errors.New("provider returned no symbol set")

// entry is in exactly one state: pending (in the pending map, done open),
// ready (in the ready LRU) or failed (in the failed LRU). done is closed once
// set or err is final.
type entry struct {
	done  chan struct{}
	set   SymbolSet
	err   error
	size  int
	until time.Time // zero means the failure never expires
}

func (e *entry) valid(now time.Time) bool {
	return e.until.IsZero() || now.Before(e.until)
}

// SymbolSetCache is a byte-bounded LRU of symbol sets with negative caching
// and at most one in-flight fetch per key. It is safe for concurrent use.
type SymbolSetCache struct {
	logger   log.Logger
	cfg      Config
	maxBytes int
	metrics  *cacheMetrics
	now      func() time.Time

	mu      sync.Mutex
	ready   *simplelru.LRU[Key, *entry]
	failed  *simplelru.LRU[Key, *entry]
	pending map[Key]*entry
	held    int
}

func NewSymbolSetCache(logger log.Logger, cfg Config, reg prometheus.Registerer) (*SymbolSetCache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	maxBytes := math.MaxInt
	if uint64(cfg.MaxBytes) < uint64(math.MaxInt) {
		maxBytes = int(cfg.MaxBytes)
	}
	c := &SymbolSetCache{
		logger:   logger,
		cfg:      cfg,
		maxBytes: maxBytes,
		metrics:  newCacheMetrics(reg),
		now:      time.Now,
		pending:  make(map[Key]*entry),
	}
	var err error
	if c.ready, err = simplelru.NewLRU[Key, *entry](math.MaxInt, c.onEvict); err != nil {
		return nil, err
	}
	if c.failed, err = simplelru.NewLRU[Key, *entry](cfg.MaxFailedEntries, nil); err != nil {
		return nil, err
	}
	return c, nil
}

// GetOrFetch returns the symbol set cached for key, calling fetch on a miss.
// Concurrent callers for the same key share a single fetch. The fetch runs
// detached from ctx: cancelling ctx only abandons this caller's wait.
func (c *SymbolSetCache) GetOrFetch(ctx context.Context, key Key, fetch FetchFunc) (SymbolSet, error) {
	c.mu.Lock()
	if e, ok := c.ready.Get(key); ok {
		c.mu.Unlock()
		c.metrics.lookups.WithLabelValues(resultHit).Inc()
		return e.set, nil
	}
	if e, ok := c.failed.Get(key); ok {
		if e.valid(c.now()) {
			c.mu.Unlock()
			c.metrics.lookups.WithLabelValues(resultNegativeHit).Inc()
			return nil, e.err
		}
		c.failed.Remove(key)
	}
	e, inflight := c.pending[key]
	if !inflight {
		e = &entry{done: make(chan struct{})}
		c.pending[key] = e
		c.updateGauges()
	}
	c.mu.Unlock()

	if inflight {
		c.metrics.lookups.WithLabelValues(resultShared).Inc()
	} else {
		c.metrics.lookups.WithLabelValues(resultMiss).Inc()
		go c.fetch(context.WithoutCancel(ctx), key, e, fetch)
	}

	select {
	case <-e.done:
		return e.set, e.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *SymbolSetCache) fetch(ctx context.Context, key Key, e *entry, fetch FetchFunc) {
	start := time.Now()
	set, err := safeFetch(ctx, fetch)
	if err == nil && set == nil {
		err = errNoSymbolSet
	}

	status := statusSuccess
	if err != nil {
		status = statusError
		var p *util.PanicError
		if errors.As(err, &p) {
			status = statusPanic
		}
		level.Debug(c.logger).Log("msg", "symbol set fetch failed", "key", key, "err", err)
	}
	c.metrics.fetchDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())

	c.complete(key, e, set, err)
}

func safeFetch(ctx context.Context, fetch FetchFunc) (set SymbolSet, err error) {
	err = util.RecoverPanic(func() error {
		set, err = fetch(ctx)
		return err
	})()
	if err != nil {
		set = nil
	}
	return set, err
}

func (c *SymbolSetCache) complete(key Key, e *entry, set SymbolSet, err error) {
	c.mu.Lock()
	delete(c.pending, key)
	if err == nil {
		e.set = set
		e.size = set.Size()
		c.ready.Add(key, e)
		c.held += e.size
		c.evict()
	} else {
		e.err = err
		if ttl, ok := c.cfg.failureTTL(err); ok && !isCanceled(err) {
			if ttl > 0 {
				e.until = c.now().Add(ttl)
			}
			c.failed.Add(key, e)
		}
	}
	c.updateGauges()
	c.mu.Unlock()

	close(e.done)
}

// evict removes least recently used sets until the quota is met. The most
// recently inserted set always stays, even if it alone exceeds the quota.
func (c *SymbolSetCache) evict() {
	for c.held > c.maxBytes && c.ready.Len() > 1 {
		key, _, ok := c.ready.RemoveOldest()
		if !ok {
			return
		}
		c.metrics.evictions.Inc()
		level.Debug(c.logger).Log("msg", "evicted symbol set", "key", key, "held_bytes", c.held)
	}
}

func (c *SymbolSetCache) onEvict(_ Key, e *entry) {
	c.held -= e.size
}

func (c *SymbolSetCache) updateGauges() {
	c.metrics.heldBytes.Set(float64(c.held))
	c.metrics.entries.WithLabelValues("ready").Set(float64(c.ready.Len()))
	c.metrics.entries.WithLabelValues("failed").Set(float64(c.failed.Len()))
	c.metrics.entries.WithLabelValues("pending").Set(float64(len(c.pending)))
}

// Remove drops the ready or failed entry for key. A fetch in flight for key is
// not affected and will still store its result.
func (c *SymbolSetCache) Remove(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready.Remove(key)
	c.failed.Remove(key)
	c.updateGauges()
}

// Purge drops every ready and failed entry.
func (c *SymbolSetCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready.Purge()
	c.failed.Purge()
	c.updateGauges()
}

// Len returns the number of ready symbol sets.
func (c *SymbolSetCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready.Len()
}

// HeldBytes returns the accounted size of all ready symbol sets.
func (c *SymbolSetCache) HeldBytes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.held
}

// Contains reports whether a ready set is cached for key without touching its
// recency.
func (c *SymbolSetCache) Contains(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready.Contains(key)
}
