package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/posthog/cymbal/pkg/frames"
	"github.com/posthog/cymbal/pkg/smcache"
	"github.com/posthog/cymbal/pkg/symbolstore"
)

const reasonNoMapping = "no source map mapping for position"

var errNoLocation = errors.New("frame has no source location")

type mappingCache interface {
	Lookup(smcache.Position) (smcache.Token, bool)
	GeneratedContext(smcache.Position) *smcache.Context
}

// JavaScriptResolver resolves minified JavaScript frames through a provider
// of smcache.Cache symbol sets, usually a symbolstore.Caching.
type JavaScriptResolver struct {
	provider symbolstore.Provider
}

func NewJavaScriptResolver(provider symbolstore.Provider) *JavaScriptResolver {
	return &JavaScriptResolver{provider: provider}
}

func (r *JavaScriptResolver) Resolve(ctx context.Context, teamID int, raw *frames.RawFrame) (*frames.Frame, error) {
	if raw.SourceURL == "" || raw.Line < 1 {
		return nil, &ResolveError{Kind: PositionUnresolvable, Err: errNoLocation}
	}

	set, err := r.provider.Fetch(ctx, teamID, raw.SourceURL)
	if err != nil {
		return nil, &ResolveError{Kind: ArtifactsUnavailable, Err: err}
	}
	c, ok := set.(mappingCache)
	if !ok {
		return nil, &ResolveError{Kind: ArtifactsUnavailable, Err: fmt.Errorf("unexpected symbol set %T", set)}
	}

	// Clients report 1-based lines; columns are passed through unchanged.
	pos := smcache.Position{Line: raw.Line - 1, Column: raw.Column}
	tok, ok := c.Lookup(pos)
	if !ok {
		return frames.Degraded(raw, reasonNoMapping, c.GeneratedContext(pos)), nil
	}
	return frames.FromToken(raw, tok), nil
}
