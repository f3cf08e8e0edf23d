// Package api exposes frame resolution over HTTP.
package api

import (
	"net/http"

	"github.com/go-kit/log"
	"github.com/gorilla/mux"
)

type Services struct {
	Logger   log.Logger
	Resolver Resolver
	Ready    func() error
}

// RegisterRoutes adds the API routes to r.
func RegisterRoutes(r *mux.Router, s Services) {
	if s.Logger == nil {
		s.Logger = log.NewNopLogger()
	}
	h := NewResolveHandler(s.Logger, s.Resolver)
	r.Path("/api/v1/resolve").Methods(http.MethodPost).HandlerFunc(h.Resolve)
	r.Path("/ready").Methods(http.MethodGet).HandlerFunc(readyHandler(s.Ready))
}

func readyHandler(ready func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if ready != nil {
			if err := ready(); err != nil {
				http.Error(w, "not ready: "+err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		_, _ = w.Write([]byte("ready\n"))
	}
}
