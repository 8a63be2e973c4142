package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roidota/roidota/internal/pkg/metrics"
	"github.com/roidota/roidota/pkg/log"
	"github.com/roidota/roidota/pkg/options"
)

// ReadyFunc reports whether the hub can serve traffic.
type ReadyFunc func() bool

// Server exposes health, readiness and metrics endpoints.
type Server struct {
	server  *http.Server
	options *options.HttpOptions
}

// NewServer creates the ops HTTP server. ready may be nil, in which case the
// hub is always reported ready.
func NewServer(opts *options.HttpOptions, ready ReadyFunc) *Server {
	return &Server{
		server: &http.Server{
			Addr:              opts.Addr,
			Handler:           NewRouter(ready, opts.EnableProfiling),
			ReadHeaderTimeout: opts.Timeout,
			WriteTimeout:      opts.Timeout,
		},
		options: opts,
	}
}

// NewRouter builds the route table.
func NewRouter(ready ReadyFunc, profiling bool) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if ready != nil && !ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("broker not connected"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	if profiling {
		d := r.PathPrefix("/debug/pprof").Subrouter()
		d.HandleFunc("/cmdline", pprof.Cmdline)
		d.HandleFunc("/profile", pprof.Profile)
		d.HandleFunc("/symbol", pprof.Symbol)
		d.HandleFunc("/trace", pprof.Trace)
		d.PathPrefix("/").HandlerFunc(pprof.Index)
	}

	return r
}

func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen(s.options.Network, s.server.Addr)
	if err != nil {
		return err
	}
	log.Info("Ops HTTP server listening", "addr", ln.Addr().String(), "profiling", s.options.EnableProfiling)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.options.ShutdownTimeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}
