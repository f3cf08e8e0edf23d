package main

import (
	"context"

	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/posthog/cymbal/pkg/cymbal"
)

type serveParams struct {
	*configParams
}

func addServeParams(cmd commander) *serveParams {
	return &serveParams{configParams: addConfigParams(cmd)}
}

func serve(ctx context.Context, params *serveParams) error {
	conf, err := params.load()
	if err != nil {
		return err
	}
	if !cfg.verbose {
		logger = serviceLogger(conf)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	c, err := cymbal.New(conf, logger, reg)
	if err != nil {
		return err
	}
	if err := services.StartAndAwaitRunning(ctx, c); err != nil {
		_ = c.Close()
		return err
	}
	level.Info(logger).Log("msg", "cymbal started", "addr", c.Addr())

	go func() {
		<-ctx.Done()
		level.Info(logger).Log("msg", "shutting down")
		c.StopAsync()
	}()
	return c.AwaitTerminated(context.Background())
}
