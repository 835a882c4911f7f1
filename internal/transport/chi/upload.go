package chi

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdesk/internal/domain"
)

// UploadResponse is the body of POST /upload_pdfs/.
type UploadResponse struct {
	UploadID string       `json:"upload_id"`
	Files    []FileResult `json:"files"`
}

// FileResult is the ingestion outcome of one uploaded file.
type FileResult struct {
	Filename         string  `json:"filename"`
	Pages            int     `json:"pages"`
	Chunks           int     `json:"chunks"`
	Indexed          int     `json:"indexed"`
	FailedEmbeddings int     `json:"failed_embeddings"`
	Error            *string `json:"error"`
}

// UploadPDFs handles POST /upload_pdfs/ with one or more multipart files fields.
// Files are stored under the upload directory by sanitized name, then ingested.
// A part whose sanitized name repeats an earlier one is rejected for that file only.
func (s *Server) UploadPDFs(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge,
				fmt.Sprintf("upload exceeds %d bytes", s.maxUploadBytes))
			return
		}
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "at least one file is required in field files")
		return
	}

	uploadID := uuid.NewString()
	log := s.requestLogger(r).With(zap.String("upload_id", uploadID))

	files := make([]FileResult, len(headers))
	paths := make([]string, 0, len(headers))
	slots := make([]int, 0, len(headers))
	seen := make(map[string]struct{}, len(headers))
	for i, fh := range headers {
		name := SanitizeFilename(fh.Filename)
		files[i].Filename = name
		if name == "" {
			files[i].Filename = fh.Filename
			files[i].Error = errorText("invalid file name")
			continue
		}
		// Parts are stored by name, so a repeated name would overwrite the first file.
		if _, dup := seen[name]; dup {
			files[i].Error = errorText("duplicate file name in upload")
			continue
		}
		seen[name] = struct{}{}

		path, err := s.saveUpload(fh, name)
		if err != nil {
			log.Error("Failed to store upload", zap.String("file", name), zap.Error(err))
			files[i].Error = errorText("failed to store file")
			continue
		}
		paths = append(paths, path)
		slots = append(slots, i)
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	results, err := s.ingest.IngestFiles(ctx, paths)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	for j, res := range results {
		f := &files[slots[j]]
		f.Pages = res.Pages
		f.Chunks = res.Chunks
		f.Indexed = res.Indexed
		f.FailedEmbeddings = res.FailedEmbeddings
		if res.Err != nil {
			log.Warn("File ingestion failed", zap.String("file", f.Filename), zap.Error(res.Err))
			f.Error = errorText(safeDomainMessage(res.Err))
		}
	}

	log.Info("Upload processed", zap.Int("files", len(files)), zap.Int("stored", len(paths)))
	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, UploadResponse{UploadID: uploadID, Files: files})
}

// saveUpload writes the part to uploadDir/name through a temporary file.
func (s *Server) saveUpload(fh *multipart.FileHeader, name string) (string, error) {
	if err := os.MkdirAll(s.uploadDir, 0o750); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open part: %w", err)
	}
	defer func() { _ = src.Close() }()

	tmp, err := os.CreateTemp(s.uploadDir, "."+name+".*.part")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	_, copyErr := io.Copy(tmp, src)
	closeErr := tmp.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write %s: %w", name, err)
	}

	dst := filepath.Join(s.uploadDir, name)
	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("rename %s: %w", name, err)
	}
	return dst, nil
}

// SanitizeFilename reduces a client-supplied name to a safe base name.
// Letters, digits, dot, dash, underscore and space are kept, everything else
// becomes an underscore. Returns "" when nothing usable is left.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimSpace(filepath.Base(name))

	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return r
		case r == '.', r == '-', r == '_', r == ' ':
			return r
		default:
			return '_'
		}
	}, name)

	cleaned = strings.TrimLeft(cleaned, ". ")
	if cleaned == "" || strings.Trim(cleaned, "_") == "" {
		return ""
	}
	return cleaned
}

func errorText(s string) *string { return &s }
