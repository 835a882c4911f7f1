package chi

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdesk/internal/domain"
)

// ContentTypeNDJSON is the media type of streamed answers.
const ContentTypeNDJSON = "application/x-ndjson"

type tokenFrame struct {
	Type  domain.FrameType `json:"type"`
	Token string           `json:"token"`
}

type sourcesFrame struct {
	Type    domain.FrameType `json:"type"`
	Sources []domain.Source  `json:"sources"`
}

type errorFrame struct {
	Type  domain.FrameType `json:"type"`
	Error string           `json:"error"`
}

func frameBody(f domain.Frame) any {
	switch f.Type {
	case domain.FrameToken:
		return tokenFrame{Type: f.Type, Token: f.Token}
	case domain.FrameSources:
		sources := f.Sources
		if sources == nil {
			sources = []domain.Source{}
		}
		return sourcesFrame{Type: f.Type, Sources: sources}
	default:
		return errorFrame{Type: domain.FrameError, Error: f.Error}
	}
}

// AskStream handles POST /ask/stream. The body is newline-delimited JSON:
// token frames, then one sources frame. A failure ends the stream with one error frame.
func (s *Server) AskStream(w http.ResponseWriter, r *http.Request) {
	q, ok := formQuery(r)
	if !ok {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "form field query is required")
		return
	}

	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", ContentTypeNDJSON)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	emit := func(f domain.Frame) error {
		if err := enc.Encode(frameBody(f)); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	err := s.answer.Stream(r.Context(), q, emit)
	if err == nil {
		return
	}

	log := s.requestLogger(r)
	if isClientGone(err) {
		log.Info("Client left during stream", zap.Error(err))
		return
	}
	log.Warn("Stream failed", zap.Error(err))
	_ = emit(domain.Frame{Type: domain.FrameError, Error: safeDomainMessage(err)})
}
