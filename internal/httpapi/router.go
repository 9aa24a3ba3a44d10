// Package httpapi implements the outer HTTP framing layer: route
// dispatch, header parsing and status mapping live here; the core
// semantics live in internal/backbone and internal/backend.
package httpapi

import (
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/gorilla/mux"

	"github.com/sunsided/yeet-yoink/internal/backbone"
)

// Deps bundles everything a handler needs: the backbone registry for
// buffering and retrieving files, and ambient HTTP metrics. Distribution
// to backends happens through registry.SetSink, not through a handler, so
// Deps carries no direct reference to the backend dispatcher.
type Deps struct {
	Registry     *backbone.Registry
	Metrics      *Metrics
	recentYoinks *lru.Cache[string, struct{}]
}

// NewRouter builds the complete route table.
func NewRouter(deps *Deps) *mux.Router {
	cache, _ := lru.New[string, struct{}](256)
	deps.recentYoinks = cache

	r := mux.NewRouter()
	r.HandleFunc("/yeet", deps.withMetrics("/yeet", deps.handleYeet)).Methods(http.MethodPost)
	r.HandleFunc("/yoink/{id}", deps.withMetrics("/yoink/{id}", deps.handleYoink)).Methods(http.MethodGet)

	for _, path := range []string{"/health", "/startupz", "/readyz", "/livez", "/healthz"} {
		r.HandleFunc(path, deps.withMetrics(path, deps.handleHealth)).Methods(http.MethodGet)
	}

	return r
}

// withMetrics wraps handler with in-flight gauge tracking and request
// counter/duration instrumentation.
func (d *Deps) withMetrics(path string, handler func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Metrics == nil {
			handler(w, r)
			return
		}
		d.Metrics.IncInFlight(path)
		defer d.Metrics.DecInFlight(path)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler(rec, r)
		d.Metrics.Track(r.Method, path, rec.status, time.Since(start))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
