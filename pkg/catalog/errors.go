package catalog

import (
	"errors"
	"fmt"

	"github.com/posthog/cymbal/pkg/frames"
	"github.com/posthog/cymbal/pkg/symbolstore"
)

// ErrUnsupportedPlatform is matched by UnsupportedPlatformError.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

type UnsupportedPlatformError struct {
	Platform frames.Platform
}

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("unsupported platform: %q", e.Platform)
}

func (e *UnsupportedPlatformError) Is(target error) bool {
	return target == ErrUnsupportedPlatform
}

type ResolveErrorKind int

const (
	// ArtifactsUnavailable means the source or map could not be obtained.
	ArtifactsUnavailable ResolveErrorKind = iota
	// PositionUnresolvable means the frame itself cannot be resolved,
	// whatever artifacts are available.
	PositionUnresolvable
)

func (k ResolveErrorKind) String() string {
	switch k {
	case ArtifactsUnavailable:
		return "artifacts unavailable"
	case PositionUnresolvable:
		return "position unresolvable"
	default:
		return fmt.Sprintf("ResolveErrorKind(%d)", int(k))
	}
}

type ResolveError struct {
	Kind ResolveErrorKind
	Err  error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }

// Retryable reports whether resolving the same frame later may succeed.
func (e *ResolveError) Retryable() bool {
	return e.Kind == ArtifactsUnavailable && symbolstore.IsRetryable(e.Err)
}
