package chi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdesk/internal/domain"
	"github.com/kailas-cloud/ragdesk/internal/logger"
	answeruc "github.com/kailas-cloud/ragdesk/internal/usecase/answer"
	healthuc "github.com/kailas-cloud/ragdesk/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/ragdesk/internal/usecase/ingest"
	usageuc "github.com/kailas-cloud/ragdesk/internal/usecase/usage"
)

const (
	// defaultMaxUploadBytes caps a multipart upload when Config.MaxUploadBytes is unset.
	defaultMaxUploadBytes = 50 << 20
	// maxFormMemory is the in-memory part of a parsed multipart form; the rest spills to disk.
	maxFormMemory = 8 << 20
)

type answerer interface {
	Answer(ctx context.Context, question string) (domain.Answer, error)
	Stream(ctx context.Context, question string, emit answeruc.Emit) error
}

type ingester interface {
	IngestFiles(ctx context.Context, paths []string) ([]ingestuc.FileResult, error)
}

type usageReporter interface {
	GetReport(ctx context.Context, period usageuc.Period) usageuc.Report
}

type healthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// Config holds the server dependencies.
type Config struct {
	Answer         answerer
	Ingest         ingester
	Usage          usageReporter
	Health         healthChecker
	UploadDir      string
	MaxUploadBytes int64
	Logger         *zap.Logger
}

// Server serves the question-answering HTTP API.
type Server struct {
	answer         answerer
	ingest         ingester
	usage          usageReporter
	health         healthChecker
	uploadDir      string
	maxUploadBytes int64
	logger         *zap.Logger
	errorHandlers  []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(cfg Config) *Server {
	s := &Server{
		answer:         cfg.Answer,
		ingest:         cfg.Ingest,
		usage:          cfg.Usage,
		health:         cfg.Health,
		uploadDir:      cfg.UploadDir,
		maxUploadBytes: cfg.MaxUploadBytes,
		logger:         cfg.Logger,
		errorHandlers:  defaultErrorHandlers(),
	}
	if s.maxUploadBytes <= 0 {
		s.maxUploadBytes = defaultMaxUploadBytes
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Ask handles POST /ask/ with form field query.
func (s *Server) Ask(w http.ResponseWriter, r *http.Request) {
	q, ok := formQuery(r)
	if !ok {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "form field query is required")
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	ans, err := s.answer.Answer(ctx, q)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, ans)
}

// UsageResponse is the body of GET /usage.
type UsageResponse struct {
	Period        string       `json:"period"`
	PeriodStartAt *time.Time   `json:"period_start_at,omitempty"`
	PeriodEndAt   *time.Time   `json:"period_end_at,omitempty"`
	Usage         UsageMetrics `json:"usage"`
	Budget        BudgetStatus `json:"budget"`
}

// UsageMetrics reports consumed embedding tokens.
type UsageMetrics struct {
	Tokens int64 `json:"tokens"`
}

// BudgetStatus reports the embedding token budget. A zero limit means unlimited.
type BudgetStatus struct {
	TokensLimit     int64      `json:"tokens_limit"`
	TokensRemaining int64      `json:"tokens_remaining"`
	IsExhausted     bool       `json:"is_exhausted"`
	ResetsAt        *time.Time `json:"resets_at,omitempty"`
}

// GetUsage handles GET /usage?period=day|month|total.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	period, err := usageuc.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	report := s.usage.GetReport(r.Context(), period)

	resp := UsageResponse{
		Period: string(report.Period),
		Usage:  UsageMetrics{Tokens: report.Used},
		Budget: BudgetStatus{
			TokensLimit:     report.Limit,
			TokensRemaining: report.Remaining,
			IsExhausted:     report.Exhausted,
		},
	}
	if report.Start > 0 {
		start := time.UnixMilli(report.Start).UTC()
		end := time.UnixMilli(report.End).UTC()
		resp.PeriodStartAt = &start
		resp.PeriodEndAt = &end
	}
	if report.ResetsAt > 0 {
		resetsAt := time.UnixMilli(report.ResetsAt).UTC()
		resp.Budget.ResetsAt = &resetsAt
	}

	writeJSON(w, http.StatusOK, resp)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// formQuery reads the query field from a urlencoded or multipart body.
// ok is false when the field is absent; a present but blank value is returned as is.
func formQuery(r *http.Request) (string, bool) {
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		err = r.ParseMultipartForm(maxFormMemory)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		return "", false
	}
	v, ok := r.PostForm["query"]
	if !ok || len(v) == 0 {
		return "", false
	}
	return v[0], true
}

func setEmbeddingHeaders(w http.ResponseWriter, usage *domain.EmbeddingUsage) {
	if n, used := usage.Tokens(); used {
		w.Header().Set("X-Embedding-Tokens", strconv.FormatInt(n, 10))
	}
}

func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	return logger.FromContextOr(r.Context(), s.logger)
}

func isClientGone(err error) bool {
	return errors.Is(err, context.Canceled)
}
