package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/posthog/cymbal/pkg/frames"
)

const maxRequestBodyBytes = 8 << 20

// Resolver resolves a stack of raw frames for a team.
type Resolver interface {
	ResolveAll(ctx context.Context, teamID int, raws []*frames.RawFrame) ([]*frames.Frame, error)
}

type ResolveRequest struct {
	TeamID int                `json:"team_id"`
	Frames []*frames.RawFrame `json:"frames"`
}

type ResolveResponse struct {
	Frames []*frames.Frame `json:"frames"`
}

type ResolveHandler struct {
	logger   log.Logger
	resolver Resolver
}

func NewResolveHandler(logger log.Logger, resolver Resolver) *ResolveHandler {
	return &ResolveHandler{logger: logger, resolver: resolver}
}

func (h *ResolveHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(&req); err != nil {
		DecodeError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		Error(w, err)
		return
	}

	resolved, err := h.resolver.ResolveAll(r.Context(), req.TeamID, req.Frames)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// The client went away.
			return
		}
		level.Error(h.logger).Log("msg", "failed to resolve frames", "team_id", req.TeamID, "frames", len(req.Frames), "err", err)
		Error(w, err)
		return
	}
	if resolved == nil {
		resolved = []*frames.Frame{}
	}
	MustJSON(w, ResolveResponse{Frames: resolved})
}

func (req *ResolveRequest) validate() error {
	if req.TeamID < 0 {
		return ValidationError{Err: fmt.Errorf("invalid team_id %d", req.TeamID)}
	}
	for i, f := range req.Frames {
		if f == nil {
			return ValidationError{Err: fmt.Errorf("frame %d is null", i)}
		}
	}
	return nil
}
