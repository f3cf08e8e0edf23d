// Package symbolstore fetches symbol sets (source + source map pairs and
// similar artifacts) through pluggable providers and caches them in a
// byte-bounded, single-flight cache shared by the whole process.
package symbolstore

import (
	"context"
	"fmt"
)

// SymbolSet is a parsed artifact that can answer lookups. Implementations
// must be immutable once returned by a Provider.
type SymbolSet interface {
	// Size is the approximate number of bytes held by the set.
	Size() int
}

// Provider fetches and parses the symbol set named by ref for a team.
type Provider interface {
	Fetch(ctx context.Context, teamID int, ref string) (SymbolSet, error)
}

// Key identifies a cached symbol set. Kind names the provider, so providers
// sharing a cache never see each other's entries.
type Key struct {
	TeamID int
	Kind   string
	Ref    string
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%s/%s", k.TeamID, k.Kind, k.Ref)
}
