package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdesk/internal/domain"
	"github.com/kailas-cloud/ragdesk/internal/logger"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeBadRequest              = "bad_request"
	CodeUnauthorized            = "unauthorized"
	CodeValidationFailed        = "validation_failed"
	CodeNotFound                = "not_found"
	CodeUnsupportedFile         = "unsupported_file"
	CodePayloadTooLarge         = "payload_too_large"
	CodeVectorDimMismatch       = "vector_dim_mismatch"
	CodeRateLimited             = "rate_limited"
	CodeEmbeddingQuotaExceeded  = "embedding_quota_exceeded"
	CodeEmbeddingProviderError  = "embedding_provider_error"
	CodeGenerationProviderError = "generation_provider_error"
	CodeOCRProviderError        = "ocr_provider_error"
	CodeIndexUnavailable        = "index_unavailable"
	CodeInternalError           = "internal_error"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// sentinels maps domain errors to HTTP statuses, first match wins.
var sentinels = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrInvalidInput, http.StatusBadRequest, CodeValidationFailed},
	{domain.ErrNotFound, http.StatusNotFound, CodeNotFound},
	{domain.ErrUnsupportedFile, http.StatusUnsupportedMediaType, CodeUnsupportedFile},
	{domain.ErrVectorDimMismatch, http.StatusBadRequest, CodeVectorDimMismatch},
	{domain.ErrRateLimited, http.StatusTooManyRequests, CodeRateLimited},
	{domain.ErrEmbeddingQuotaExceeded, http.StatusPaymentRequired, CodeEmbeddingQuotaExceeded},
	{domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeEmbeddingProviderError},
	{domain.ErrGenerationProviderError, http.StatusBadGateway, CodeGenerationProviderError},
	{domain.ErrOCRProviderError, http.StatusBadGateway, CodeOCRProviderError},
	{domain.ErrIndexUnavailable, http.StatusServiceUnavailable, CodeIndexUnavailable},
}

func defaultErrorHandlers() []errorHandler {
	handlers := make([]errorHandler, len(sentinels))
	for i, s := range sentinels {
		handlers[i] = sentinelHandler(s.err, s.status, s.code)
	}
	return handlers
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			return s.err.Error()
		}
	}
	return "internal error"
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContextOr(r.Context(), s.logger)
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}
