package symbolstore

import "context"

// Caching wraps a Provider with a SymbolSetCache. It is itself a Provider, so
// callers cannot tell a cached provider from an uncached one.
type Caching struct {
	kind  string
	inner Provider
	cache *SymbolSetCache
}

// NewCaching returns a caching Provider. kind namespaces the cache keys of
// inner and must be unique among providers sharing cache.
func NewCaching(kind string, inner Provider, cache *SymbolSetCache) *Caching {
	return &Caching{kind: kind, inner: inner, cache: cache}
}

func (c *Caching) Fetch(ctx context.Context, teamID int, ref string) (SymbolSet, error) {
	key := Key{TeamID: teamID, Kind: c.kind, Ref: ref}
	return c.cache.GetOrFetch(ctx, key, func(ctx context.Context) (SymbolSet, error) {
		return c.inner.Fetch(ctx, teamID, ref)
	})
}

// Invalidate drops whatever is cached for ref under teamID.
func (c *Caching) Invalidate(teamID int, ref string) {
	c.cache.Remove(Key{TeamID: teamID, Kind: c.kind, Ref: ref})
}
