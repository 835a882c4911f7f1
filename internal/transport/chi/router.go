package chi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdesk/internal/metrics"
)

// NewRouter mounts the server handlers behind the standard middleware chain.
// Routes with a trailing slash are also served without it.
func NewRouter(s *Server, apiKeys []string, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(log))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(log))
	r.Use(BearerAuthMiddleware(apiKeys))
	r.Use(metrics.HTTP)

	r.Post("/upload_pdfs/", s.UploadPDFs)
	r.Post("/upload_pdfs", s.UploadPDFs)
	r.Post("/ask/", s.Ask)
	r.Post("/ask", s.Ask)
	r.Post("/ask/stream", s.AskStream)
	r.Get("/health", s.HealthCheck)
	r.Get("/usage", s.GetUsage)
	r.Get("/metrics", s.Metrics)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed")
	})
	return r
}
