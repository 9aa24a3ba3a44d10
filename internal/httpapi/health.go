package httpapi

import "net/http"

// handleHealth backs every health route. Each route is registered
// separately (not as an alias for another) so a future real check can be
// attached to one without touching the others.
func (d *Deps) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("healthy"))
}
