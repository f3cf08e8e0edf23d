// Package cymbal wires the symbol store, the catalog and the HTTP API into a
// runnable service.
package cymbal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"
	"github.com/grafana/dskit/services"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/posthog/cymbal/pkg/api"
	"github.com/posthog/cymbal/pkg/catalog"
	"github.com/posthog/cymbal/pkg/frames"
	"github.com/posthog/cymbal/pkg/symbolstore"
	"github.com/posthog/cymbal/pkg/symbolstore/sourcemap"
	"github.com/posthog/cymbal/pkg/symbolstore/storage"
)

// Cymbal is the resolution service. It is a dskit service serving the HTTP
// API while running.
type Cymbal struct {
	services.Service

	cfg    Config
	logger log.Logger

	store   storage.Store
	cache   *symbolstore.SymbolSetCache
	catalog *catalog.Catalog

	handler  http.Handler
	server   *http.Server
	listener net.Listener
}

// New builds the service. reg is used both to register metrics and to serve
// them on /metrics.
func New(cfg Config, logger log.Logger, reg *prometheus.Registry) (*Cymbal, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	store, err := storage.NewFromConfig(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open symbol data store: %w", err)
	}
	c, err := newWithStore(cfg, logger, reg, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return c, nil
}

func newWithStore(cfg Config, logger log.Logger, reg *prometheus.Registry, store storage.Store) (*Cymbal, error) {
	cache, err := symbolstore.NewSymbolSetCache(logger, cfg.SymbolStore, reg)
	if err != nil {
		return nil, fmt.Errorf("create symbol set cache: %w", err)
	}
	provider, err := sourcemap.New(logger, cfg.Sourcemap, store, reg)
	if err != nil {
		return nil, fmt.Errorf("create sourcemap provider: %w", err)
	}

	cat := catalog.NewCatalog(logger, cfg.Server.ResolveConcurrency, reg)
	cat.Register(frames.PlatformJavaScriptWeb, catalog.NewJavaScriptResolver(
		symbolstore.NewCaching(sourcemap.Kind, provider, cache),
	))

	c := &Cymbal{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		cache:   cache,
		catalog: cat,
	}

	r := mux.NewRouter()
	r.Use(api.InstrumentMiddleware(logger, reg), api.RecoveryMiddleware(logger))
	api.RegisterRoutes(r, api.Services{
		Logger:   logger,
		Resolver: cat,
		Ready:    c.ready,
	})
	r.Path("/metrics").Methods(http.MethodGet).Handler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	c.handler = r

	c.Service = services.NewBasicService(c.starting, c.running, c.stopping)
	return c, nil
}

// Catalog returns the catalog frames are resolved with.
func (c *Cymbal) Catalog() *catalog.Catalog { return c.catalog }

// Handler returns the HTTP handler of the API.
func (c *Cymbal) Handler() http.Handler { return c.handler }

// Addr returns the address the API listens on once the service is running.
func (c *Cymbal) Addr() net.Addr {
	if c.listener == nil {
		return nil
	}
	return c.listener.Addr()
}

func (c *Cymbal) ready() error {
	if s := c.State(); s != services.Running {
		return fmt.Errorf("service is %s", s)
	}
	return nil
}

func (c *Cymbal) starting(context.Context) error {
	l, err := net.Listen("tcp", c.cfg.Server.HTTPListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", c.cfg.Server.HTTPListenAddress, err)
	}
	c.listener = l
	c.server = &http.Server{Handler: c.handler}
	level.Info(c.logger).Log("msg", "server listening", "addr", l.Addr())
	return nil
}

func (c *Cymbal) running(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		errc <- c.server.Serve(c.listener)
	}()
	select {
	case <-ctx.Done():
		return nil
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (c *Cymbal) stopping(_ error) error {
	var errs *multierror.Error
	if c.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Server.GracefulShutdownTimeout)
		defer cancel()
		if err := c.server.Shutdown(ctx); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("shutdown server: %w", err))
		}
	}
	if err := c.store.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("close symbol data store: %w", err))
	}
	c.cache.Purge()
	level.Info(c.logger).Log("msg", "server stopped")
	return errs.ErrorOrNil()
}

// Close releases the resources of a service that was never started.
func (c *Cymbal) Close() error {
	return c.store.Close()
}
