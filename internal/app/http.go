package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"folio/internal/auth"
	"folio/internal/content"
	"folio/internal/search"
	"folio/internal/upload"
	"folio/internal/visit"
)

const (
	maxContentBody = 8 << 20
	maxUploadBody  = upload.MaxFileSize + 1<<20
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     *zap.Logger
}

func NewHTTPServer(service *Service, corsOrigin string, logger *zap.Logger) *HTTPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPServer{service: service, corsOrigin: corsOrigin, logger: logger}
}

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	origins := []string{"*"}
	if s.corsOrigin != "" {
		origins = strings.Split(s.corsOrigin, ",")
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "Content-Disposition"},
		MaxAge:         300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Get("/api/ready", s.handleReady)

	r.Route("/api/content", func(r chi.Router) {
		r.Get("/", s.handleGetContent)
		r.Post("/", s.handleSaveContent)
		r.Get("/export", s.handleExport)
		r.Post("/import", s.handleImport)
		r.Get("/history", s.handleHistory)
		r.Post("/history/{hash}/restore", s.handleRestore)
	})
	r.Route("/api/visit", func(r chi.Router) {
		r.Get("/", s.handleListVisits)
		r.Post("/", s.handleLogVisit)
	})
	r.Get("/api/search", s.handleSearch)
	r.Post("/api/upload", s.handleUpload)

	return r
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	ready, checks := s.service.Ready(ctx)
	status, statusCode := "ready", http.StatusOK
	if !ready {
		status, statusCode = "not_ready", http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     ready,
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleGetContent(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.Content(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *HTTPServer) handleSaveContent(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r, maxContentBody)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	updatedAt, err := s.service.SaveContent(r.Context(), auth.BearerToken(r), data)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "updatedAt": updatedAt})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	doc, err := s.service.Export(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	data, err := doc.Marshal()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	setJSONHeaders(w.Header())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", content.ExportFilename(doc.ExportedAt)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *HTTPServer) handleImport(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r, maxContentBody)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	imp, updatedAt, err := s.service.Import(r.Context(), auth.BearerToken(r), data)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"updatedAt": updatedAt,
		"applied": map[string]bool{
			"content":  imp.HasContent(),
			"styles":   imp.HasStyles(),
			"sections": imp.HasSections(),
		},
	})
}

func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	revisions, err := s.service.History(queryInt(r, "limit", 50))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"revisions": revisions})
}

func (s *HTTPServer) handleRestore(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.Restore(r.Context(), auth.BearerToken(r), chi.URLParam(r, "hash"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "updatedAt": snap.UpdatedAt, "snapshot": snap})
}

func (s *HTTPServer) handleLogVisit(w http.ResponseWriter, r *http.Request) {
	var report visit.Report
	if err := decodeBody(r, &report); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	entry := visit.FromRequest(r, report, s.service.now())
	if err := s.service.LogVisit(r.Context(), entry); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *HTTPServer) handleListVisits(w http.ResponseWriter, r *http.Request) {
	entries, err := s.service.Visits(r.Context(), auth.BearerToken(r), queryInt(r, "limit", visit.DefaultLimit))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": entries})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "q is required", nil)
		return
	}
	writeJSON(w, http.StatusOK, s.service.Search(search.Query{
		Text:    q,
		Section: strings.TrimSpace(r.URL.Query().Get("section")),
		Limit:   queryInt(r, "limit", 20),
	}))
}

func (s *HTTPServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	credential := auth.BearerToken(r)
	if credential == "" {
		s.fail(w, r, errUnauthorized)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.fail(w, r, upload.ErrTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "multipart field \"file\" is required", nil)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "could not read file", nil)
		return
	}
	// generic types are sniffed from the bytes
	contentType := header.Header.Get("Content-Type")
	if contentType == "application/octet-stream" {
		contentType = ""
	}
	img := upload.Image{
		Name:        header.Filename,
		ContentType: contentType,
		Data:        data,
	}
	result, err := s.service.Upload(r.Context(), credential, img, r.FormValue("provider"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetReqID(r.Context())
		started := time.Now()
		writer := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		status := writer.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(started).Milliseconds()),
		)
	})
}

func setJSONHeaders(header http.Header) {
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	setJSONHeaders(w.Header())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

// decodeBody decodes a JSON body into target. An empty body leaves target
// untouched.
func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil {
		return nil, errInvalidBody
	}
	defer r.Body.Close()
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, domainError(http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "Request body too large", nil)
		}
		return nil, errInvalidBody
	}
	return data, nil
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
