// Package statusapi exposes a dependency-health facade as a JSON HTTP
// endpoint: a summary compatible with the original FastAPI
// "/health/dependencies" response shape, enriched with the full
// per-endpoint detail the Go facade tracks.
package statusapi

import (
	"encoding/json"
	"net/http"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	"github.com/go-chi/chi/v5"
)

// Facade is the subset of *dephealth.DepHealth the handler needs;
// declared as an interface so tests can supply a fake.
type Facade interface {
	Health() map[string]bool
	HealthDetails() map[string]dephealth.EndpointStatus
}

// Response is the JSON body returned by Handler.
type Response struct {
	Status       string                            `json:"status"`
	Dependencies map[string]bool                   `json:"dependencies"`
	Details      map[string]dephealth.EndpointStatus `json:"details,omitempty"`
}

// Handler returns an http.Handler serving the dependency-health summary.
// The response is 200 when every dependency is healthy, 503 otherwise;
// an empty dependency set is reported as healthy, matching a process
// that has not yet registered any dependency.
func Handler(facade Facade) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := facade.Health()
		allHealthy := true
		for _, ok := range health {
			if !ok {
				allHealthy = false
				break
			}
		}

		status := "healthy"
		statusCode := http.StatusOK
		if !allHealthy {
			status = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		resp := Response{
			Status:       status,
			Dependencies: health,
			Details:      facade.HealthDetails(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		_ = json.NewEncoder(w).Encode(resp)
	})
}

// Mount attaches Handler at "/health/dependencies" on an existing chi
// router, for services that already compose their HTTP surface with
// go-chi.
func Mount(r chi.Router, facade Facade) {
	r.Get("/health/dependencies", Handler(facade).ServeHTTP)
}
