package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/louisbranch/certtrail/internal/services/audit/retention"
	"github.com/louisbranch/certtrail/internal/services/audit/signing"
	"github.com/louisbranch/certtrail/internal/services/audit/storage/sqlite"
)

// Server exposes the audit trail over HTTP: the append path for business
// collaborators and the read/trigger admin surface.
type Server struct {
	store     *sqlite.Store
	signer    *signing.Service
	retention *retention.Service
	grant     *AdminGrantConfig
}

// NewServer wires the HTTP surface. grant may be nil, which disables
// admin grant verification.
func NewServer(store *sqlite.Store, signer *signing.Service, retentionSvc *retention.Service, grant *AdminGrantConfig) *Server {
	return &Server{
		store:     store,
		signer:    signer,
		retention: retentionSvc,
		grant:     grant,
	}
}

// Routes builds the service router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/v1/audit", func(r chi.Router) {
		if s.grant != nil {
			r.Use(s.grant.Middleware)
		}

		r.Post("/entries", s.handleAppendEntry)
		r.Get("/entries", s.handleListEntries)
		r.Get("/entries/{id}", s.handleGetEntry)
		r.Get("/entities/{entityType}/{entityID}/entries", s.handleListByEntity)
		r.Get("/statistics", s.handleStatistics)

		r.Post("/validate/chain", s.handleValidateChain)
		r.Post("/validate/integrity", s.handleValidateIntegrity)

		r.Get("/signing", s.handleSigningStatus)

		r.Route("/retention", func(r chi.Router) {
			r.Get("/policy", s.handleRetentionPolicy)
			r.Get("/statistics", s.handleRetentionStatistics)
			r.Get("/compliance", s.handleComplianceReport)
			r.Post("/cleanup", s.handleCleanup)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
