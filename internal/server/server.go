// Package server is the composition root: it wires the backbone registry
// (internal/backbone), the backend dispatcher (internal/backend) and the
// HTTP framing layer (internal/httpapi) together, and owns the rendezvous
// guard used to await quiescence at shutdown.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/sunsided/yeet-yoink/internal/backbone"
	"github.com/sunsided/yeet-yoink/internal/backend"
	"github.com/sunsided/yeet-yoink/internal/backend/b2"
	"github.com/sunsided/yeet-yoink/internal/backend/local"
	"github.com/sunsided/yeet-yoink/internal/backend/mem"
	"github.com/sunsided/yeet-yoink/internal/backend/s3"
	"github.com/sunsided/yeet-yoink/internal/config"
	"github.com/sunsided/yeet-yoink/internal/errors"
	"github.com/sunsided/yeet-yoink/internal/httpapi"
	"github.com/sunsided/yeet-yoink/internal/rendezvous"
)

// Server is a fully wired yeetyoink node: the backbone registry, the
// backend dispatcher, and an HTTP server exposing /yeet, /yoink/{id} and
// the health routes.
type Server struct {
	cfg   *config.Config
	guard rendezvous.Guard

	registry   *backbone.Registry
	dispatcher *backend.Dispatcher
	httpServer *http.Server
}

// New wires a Server from cfg. A backend construction failure aborts
// startup: New returns it wrapped as "registering backends".
func New(cfg *config.Config) (*Server, error) {
	root := rendezvous.New()

	// The registry is constructed first without a sink: the dispatcher's
	// FileProvider is the registry itself, so the dispatcher can only be
	// built once the registry exists. The registry's command loop
	// tolerates a nil sink (see Registry.runCommandLoop), and SetSink
	// binds the dispatcher onto it immediately below, before any upload
	// can possibly reach ReadyForDistribution.
	registry := backbone.NewRegistry(cfg.TempDir, cfg.Lease(), cfg.Buffer(), nil, root)

	dispatcherBuilder := backend.NewBuilder(registry, root, cfg.Backends)
	for _, factory := range []backend.Factory{
		local.Factory{}, mem.Factory{}, s3.Factory{}, b2.Factory{},
	} {
		if err := dispatcherBuilder.AddBackends(factory); err != nil {
			return nil, errors.Wrap(err, "registering backends")
		}
	}

	dispatcher := dispatcherBuilder.Build(cfg.Buffer())
	registry.SetSink(dispatcher)

	s := &Server{
		cfg:        cfg,
		guard:      root,
		registry:   registry,
		dispatcher: dispatcher,
	}

	metrics := httpapi.NewMetrics(prometheus.DefaultRegisterer)
	router := httpapi.NewRouter(&httpapi.Deps{
		Registry: registry,
		Metrics:  metrics,
	})

	s.httpServer = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	return s, nil
}

// ListenAndServe starts the HTTP server and blocks until it stops.
func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.cfg.ListenAddr).Msg("starting yeetyoink server")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server, closes the backend
// dispatcher's command channel, and awaits quiescence of all spawned
// background work via the rendezvous guard "Cancellation".
func (s *Server) Shutdown(ctx context.Context, drainTimeout time.Duration) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "shutting down http server")
	}

	done := make(chan struct{})
	go func() {
		// The registry must finish draining its command loop — including
		// forwarding any trailing DistributeFile notification into the
		// dispatcher — before the dispatcher's own command channel is
		// closed underneath it; otherwise that forward can land on an
		// already-closed channel.
		s.registry.Close()
		s.registry.Wait()
		if sender, ok := s.dispatcher.GetSender(); ok {
			sender.Close()
		}
		s.guard.AwaitAll()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(drainTimeout):
		return errors.New("timed out waiting for background work to drain")
	}
}
