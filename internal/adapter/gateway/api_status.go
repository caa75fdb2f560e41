package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"roleroute/internal/domain"
	"roleroute/internal/usecase/health"
)

// StatusResponse is the JSON body returned by GET /api/v1/status.
type StatusResponse struct {
	Service     ServiceStatus                    `json:"service"`
	Catalog     CatalogStatus                    `json:"catalog"`
	Providers   map[string]health.ProviderHealth `json:"providers,omitempty"`
	Invocations map[domain.Status]int            `json:"invocations,omitempty"`
}

// ServiceStatus holds service overview info.
type ServiceStatus struct {
	Name          string `json:"name"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// CatalogStatus summarizes the active catalog.
type CatalogStatus struct {
	Roles       int    `json:"roles"`
	Tools       int    `json:"tools"`
	DefaultRole string `json:"default_role"`
}

// RegisterRESTHandlers registers HTTP REST endpoints on the gateway server.
func RegisterRESTHandlers(s *Server, deps HandlerDeps) {
	startTime := time.Now()

	authMiddleware := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			token := r.URL.Query().Get("token")
			if token == "" {
				token = r.Header.Get("Authorization")
				if len(token) > 7 && token[:7] == "Bearer " {
					token = token[7:]
				}
			}
			if _, err := s.auth.Authenticate(token); err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}

	s.RegisterHTTPRoute("/api/v1/status", authMiddleware(statusHandler(deps, startTime)))
}

// statusHandler returns an HTTP handler for GET /api/v1/status.
func statusHandler(deps HandlerDeps, startTime time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		snap := deps.Registry.Snapshot()
		tools := 0
		for _, role := range snap.Roles() {
			tools += len(role.Tools())
		}

		resp := StatusResponse{
			Service: ServiceStatus{
				Name:          "roleroute",
				UptimeSeconds: int64(time.Since(startTime).Seconds()),
			},
			Catalog: CatalogStatus{
				Roles:       len(snap.Roles()),
				Tools:       tools,
				DefaultRole: snap.DefaultRole().ID,
			},
		}
		if deps.Health != nil {
			resp.Providers = deps.Health.Snapshot()
		}
		if deps.Audit != nil {
			if counts, err := deps.Audit.CountByStatus(r.Context()); err == nil {
				resp.Invocations = counts
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}
