// Package intake is the gateway's HTTP surface: the notification submission
// endpoint, the publisher listing, the landing page, and the readiness
// probe. Routing is built on gorilla/mux, this codebase's router of choice
// where a service needs more than a flat path switch (see
// services/control-plane/coordinator/main.go's mux.NewRouter() usage).
package intake

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/podcastindex/podping-gateway/internal/apperrors"
	"github.com/podcastindex/podping-gateway/internal/store"
	"github.com/podcastindex/podping-gateway/internal/telemetry"
)

// Deps bundles the collaborators the HTTP handlers need.
type Deps struct {
	Queue  *store.QueueStore
	Auth   *store.AuthStore
	Log    *telemetry.Logger
	Health *HealthReporter
}

// NewRouter builds the gateway's HTTP router.
func NewRouter(deps Deps) http.Handler {
	if deps.Log == nil {
		deps.Log = telemetry.Nop
	}
	h := &handlers{deps: deps}

	r := mux.NewRouter()
	r.HandleFunc("/", h.root).Methods(http.MethodGet)
	r.HandleFunc("/publishers", h.publishers).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)

	return recoverer(deps.Log, r)
}

// recoverer guarantees a single panicking request can never take the whole
// process down, mirroring services/gateway/api/router.go's recoverer.
func recoverer(log *telemetry.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("panic recovered in http handler", map[string]any{"recover": rec, "path": r.URL.Path})
				apperrors.WriteHTTP(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
