// Package catalog dispatches raw frames to the resolver registered for their
// platform.
package catalog

import (
	"context"
	"errors"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/posthog/cymbal/pkg/frames"
)

// FrameResolver resolves raw frames of a single platform.
type FrameResolver interface {
	Resolve(ctx context.Context, teamID int, raw *frames.RawFrame) (*frames.Frame, error)
}

type Catalog struct {
	logger      log.Logger
	concurrency int
	metrics     *metrics

	mu        sync.RWMutex
	resolvers map[frames.Platform]FrameResolver
}

// NewCatalog returns an empty catalog. concurrency bounds the number of frames
// ResolveAll resolves at once.
func NewCatalog(logger log.Logger, concurrency int, reg prometheus.Registerer) *Catalog {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Catalog{
		logger:      logger,
		concurrency: concurrency,
		metrics:     newMetrics(reg),
		resolvers:   make(map[frames.Platform]FrameResolver),
	}
}

// Register makes r handle frames of platform, replacing any previous resolver.
func (c *Catalog) Register(platform frames.Platform, r FrameResolver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolvers[platform] = r
}

func (c *Catalog) resolver(platform frames.Platform) (FrameResolver, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.resolvers[platform]
	return r, ok
}

// Resolve resolves a single frame. A frame whose position has no mapping is
// returned unresolved without an error.
func (c *Catalog) Resolve(ctx context.Context, teamID int, raw *frames.RawFrame) (*frames.Frame, error) {
	r, ok := c.resolver(raw.Platform)
	if !ok {
		c.metrics.frames.WithLabelValues(string(raw.Platform), outcomeUnsupported).Inc()
		return nil, &UnsupportedPlatformError{Platform: raw.Platform}
	}
	f, err := r.Resolve(ctx, teamID, raw)
	c.metrics.frames.WithLabelValues(string(raw.Platform), outcome(f, err)).Inc()
	return f, err
}

// ResolveAll resolves frames concurrently, preserving their order. Frames that
// fail to resolve are returned unresolved with the failure recorded, so a stack
// never loses frames. Only cancellation of ctx makes ResolveAll fail.
func (c *Catalog) ResolveAll(ctx context.Context, teamID int, raws []*frames.RawFrame) ([]*frames.Frame, error) {
	out := make([]*frames.Frame, len(raws))
	g := errgroup.Group{}
	g.SetLimit(c.concurrency)
	for i, raw := range raws {
		g.Go(func() error {
			f, err := c.Resolve(ctx, teamID, raw)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				level.Debug(c.logger).Log("msg", "failed to resolve frame", "team_id", teamID, "platform", raw.Platform, "source", raw.SourceURL, "err", err)
				f = frames.Unresolved(raw, err.Error())
			}
			out[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func outcome(f *frames.Frame, err error) string {
	var resolveErr *ResolveError
	switch {
	case err == nil && f.Resolved:
		return outcomeResolved
	case err == nil:
		return outcomeDegraded
	case errors.As(err, &resolveErr) && resolveErr.Kind == PositionUnresolvable:
		return outcomeUnresolvable
	default:
		return outcomeUnavailable
	}
}
