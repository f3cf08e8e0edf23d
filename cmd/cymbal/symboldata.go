package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log/level"
	"github.com/olekukonko/tablewriter"

	"github.com/posthog/cymbal/pkg/smcache"
	"github.com/posthog/cymbal/pkg/symboldata"
)

type packParams struct {
	Source string
	Map    string
	Output string
}

func addPackParams(cmd commander) *packParams {
	params := new(packParams)
	cmd.Flag("source", "Minified source file.").Required().ExistingFileVar(&params.Source)
	cmd.Flag("map", "Source map of the minified source. Omit to pack the source alone.").ExistingFileVar(&params.Map)
	cmd.Flag("output", "Container file to write.").Required().StringVar(&params.Output)
	return params
}

func pack(_ context.Context, params *packParams) (err error) {
	var data symboldata.SourceAndMap
	if data.Source, err = os.ReadFile(params.Source); err != nil {
		return err
	}
	if params.Map != "" {
		if data.Map, err = os.ReadFile(params.Map); err != nil {
			return err
		}
	}
	// Refuse to pack what the resolver would not be able to load.
	if _, err = smcache.FromSourceAndMap(data); err != nil {
		return err
	}

	f, err := os.Create(params.Output)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if err = symboldata.Write(f, data); err != nil {
		return err
	}
	level.Info(logger).Log("msg", "symbol data written", "file", params.Output, "size", humanize.Bytes(uint64(symboldata.EncodedSize(data))))
	return nil
}

func inspect(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := symboldata.Read(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	sc, err := smcache.FromSourceAndMap(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	out := output(ctx)
	fmt.Fprintln(out, "file:", path)
	fmt.Fprintln(out, "\t encoded size:", humanize.Bytes(uint64(symboldata.EncodedSize(data))))
	fmt.Fprintln(out, "\t has map:", sc.HasMap())
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Section", "Size", "Bytes"})
	table.Append([]string{"source", humanize.Bytes(uint64(len(data.Source))), humanize.Comma(int64(len(data.Source)))})
	table.Append([]string{"map", humanize.Bytes(uint64(len(data.Map))), humanize.Comma(int64(len(data.Map)))})
	table.Render()
	return nil
}
