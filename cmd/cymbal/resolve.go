package main

import (
	"context"
	"fmt"
	"os"

	"github.com/go-kit/log/level"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/posthog/cymbal/pkg/api"
	"github.com/posthog/cymbal/pkg/cymbal"
	"github.com/posthog/cymbal/pkg/frames"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type resolveParams struct {
	*configParams
	TeamID int
	Path   string
}

func addResolveParams(cmd commander) *resolveParams {
	params := &resolveParams{configParams: addConfigParams(cmd)}
	cmd.Flag("team-id", "Team the frames belong to.").Default("0").IntVar(&params.TeamID)
	cmd.Arg("frames", "JSON file holding an array of raw frames, or a resolve request.").Required().ExistingFileVar(&params.Path)
	return params
}

// readFrames accepts either a bare array of frames or a resolve request body.
func readFrames(path string, teamID int) (int, []*frames.RawFrame, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return 0, nil, err
	}
	var raws []*frames.RawFrame
	if err := json.Unmarshal(buf, &raws); err == nil {
		return teamID, raws, nil
	}
	var req api.ResolveRequest
	if err := json.Unmarshal(buf, &req); err != nil {
		return 0, nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if teamID == 0 {
		teamID = req.TeamID
	}
	return teamID, req.Frames, nil
}

func resolve(ctx context.Context, params *resolveParams) error {
	conf, err := params.load()
	if err != nil {
		return err
	}
	teamID, raws, err := readFrames(params.Path, params.TeamID)
	if err != nil {
		return err
	}
	for i, raw := range raws {
		if raw == nil {
			return fmt.Errorf("frame %d is null", i)
		}
	}

	c, err := cymbal.New(conf, logger, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			level.Warn(logger).Log("msg", "failed to close symbol data store", "err", err)
		}
	}()

	level.Debug(logger).Log("msg", "resolving frames", "team_id", teamID, "frames", len(raws))
	resolved, err := c.Catalog().ResolveAll(ctx, teamID, raws)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(output(ctx))
	enc.SetIndent("", "  ")
	return enc.Encode(api.ResolveResponse{Frames: resolved})
}
