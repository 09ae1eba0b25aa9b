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
	"github.com/sirupsen/logrus"

	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/auth"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/editor"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/export"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/media"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/rbac"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/reconcile"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/search"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/store"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/util"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     logrus.FieldLogger
}

func NewHTTPServer(service *Service, corsOrigin string, logger logrus.FieldLogger) *HTTPServer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &HTTPServer{service: service, corsOrigin: corsOrigin, logger: logger}
}

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.withMiddleware)
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.Get("/api/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Get("/api/ready", s.handleReady)
	r.Get("/api/posts", s.handleListPosts)
	r.Get("/api/posts/{locale}/{slug}", s.handleGetPost)
	r.Get("/api/search", s.handleSearch)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAction(rbac.ActionWrite))
		r.Route("/api/editor/sessions", func(r chi.Router) {
			r.Post("/", s.handleOpenEditor)
			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", s.handleGetEditor)
				r.Delete("/", s.handleDiscardEditor)
				r.Put("/locales/{locale}", s.handleUpdateTranslation)
				r.Post("/locales/{locale}/media", s.handleAttachMedia)
				r.Get("/media", s.handlePendingMedia)
				r.Post("/save", s.handleSave)
			})
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requireAction(rbac.ActionRead))
		r.Get("/api/documents/{documentID}/revisions", s.handleRevisions)
		r.Get("/api/documents/{documentID}/revisions/{hash}", s.handleRevision)
		r.Get("/api/documents/{documentID}/export", s.handleExport)
	})

	return r
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}
	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleListPosts(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := s.service.ListPosts(r.Context(), strings.TrimSpace(r.URL.Query().Get("locale")), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *HTTPServer) handleGetPost(w http.ResponseWriter, r *http.Request) {
	post, err := s.service.GetPost(r.Context(), chi.URLParam(r, "locale"), chi.URLParam(r, "slug"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	text := strings.TrimSpace(query.Get("q"))
	if text == "" {
		writeError(w, http.StatusBadRequest, "INVALID_QUERY", "q is required", nil)
		return
	}
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))
	writeJSON(w, http.StatusOK, s.service.Search(r.Context(), search.Query{
		Text:   text,
		Locale: strings.TrimSpace(query.Get("locale")),
		Limit:  limit,
		Offset: offset,
	}))
}

func (s *HTTPServer) handleOpenEditor(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DocumentID string `json:"documentId"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	view, err := s.service.OpenEditor(r.Context(), sessionFromContext(r.Context()), body.DocumentID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *HTTPServer) handleGetEditor(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.GetEditor(sessionFromContext(r.Context()), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleUpdateTranslation(w http.ResponseWriter, r *http.Request) {
	var patch TranslationPatch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	view, err := s.service.UpdateTranslation(sessionFromContext(r.Context()), chi.URLParam(r, "sessionID"), chi.URLParam(r, "locale"), patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleAttachMedia(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.service.cfg.MediaMaxBytes
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1<<20)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "MEDIA_TOO_LARGE", "Media exceeds the size limit", nil)
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "multipart field file is required", nil)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "read upload", nil)
		return
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	position := -1
	if raw := strings.TrimSpace(r.FormValue("position")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "position must be an integer", nil)
			return
		}
		position = parsed
	}

	ref, view, err := s.service.AttachMedia(r.Context(), sessionFromContext(r.Context()), chi.URLParam(r, "sessionID"), chi.URLParam(r, "locale"), media.Pending{
		Filename:    header.Filename,
		ContentType: contentType,
		Data:        data,
	}, position)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"reference": ref, "editor": view})
}

func (s *HTTPServer) handlePendingMedia(w http.ResponseWriter, r *http.Request) {
	p, err := s.service.PendingMedia(r.Context(), sessionFromContext(r.Context()), chi.URLParam(r, "sessionID"), r.URL.Query().Get("ref"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	contentType := p.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(p.Data)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(p.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(p.Data)
}

func (s *HTTPServer) handleSave(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.SaveEditor(r.Context(), sessionFromContext(r.Context()), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if result.Uploaded == nil {
		result.Uploaded = []reconcile.Upload{}
	}
	if result.Orphaned == nil {
		result.Orphaned = []string{}
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleDiscardEditor(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DiscardEditor(r.Context(), sessionFromContext(r.Context()), chi.URLParam(r, "sessionID")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleRevisions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := s.service.DocumentHistory(chi.URLParam(r, "documentID"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *HTTPServer) handleRevision(w http.ResponseWriter, r *http.Request) {
	rev, changes, err := s.service.DocumentRevision(chi.URLParam(r, "documentID"), chi.URLParam(r, "hash"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"revision": rev, "changes": changes})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	result, err := s.service.Export(r.Context(), export.Request{
		DocumentID: chi.URLParam(r, "documentID"),
		Locale:     strings.TrimSpace(r.URL.Query().Get("locale")),
		Format:     format,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

// requireAction authenticates the bearer token and checks the caller's role.
func (s *HTTPServer) requireAction(action rbac.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := auth.BearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
				return
			}
			session, err := s.service.SessionFromToken(r.Context(), token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
				return
			}
			if !rbac.Can(session.Role, action) {
				s.loggerFor(r).WithFields(logrus.Fields{
					"user_id": session.UserID,
					"role":    session.Role,
					"action":  action,
				}).Warn("permission denied")
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, session)))
		})
	}
}

func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.loggerFor(r).WithError(err).WithField("code", code).Error("request failed")
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) loggerFor(r *http.Request) logrus.FieldLogger {
	if id, ok := r.Context().Value(requestIDKey{}).(string); ok {
		return s.logger.WithField("request_id", id)
	}
	return s.logger
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = util.NewID("")[:16]
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		if r.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
		} else {
			next.ServeHTTP(writer, r)
		}

		s.logger.WithFields(logrus.Fields{
			"request_id":  requestID,
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      writer.status,
			"duration_ms": time.Since(started).Milliseconds(),
		}).Info("request")
	})
}

type requestIDKey struct{}

type sessionKey struct{}

func sessionFromContext(ctx context.Context) Session {
	session, _ := ctx.Value(sessionKey{}).(Session)
	return session
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
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

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}

	var validationErr *editor.ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Document failed validation", validationErr.Errors
	}
	var uploadErr *reconcile.UploadError
	if errors.As(err, &uploadErr) {
		return http.StatusBadGateway, "UPLOAD_FAILED", "Media upload failed", map[string]any{
			"reference": uploadErr.Reference,
			"filename":  uploadErr.Filename,
		}
	}
	if errors.Is(err, store.ErrSlugConflict) {
		return http.StatusConflict, "SLUG_CONFLICT", "Slug already in use for this locale", nil
	}
	var persistErr *editor.PersistenceError
	if errors.As(err, &persistErr) {
		return http.StatusInternalServerError, "PERSISTENCE_FAILED", "Saving the document failed", nil
	}

	switch {
	case errors.Is(err, editor.ErrSaveInProgress):
		return http.StatusConflict, "SAVE_IN_PROGRESS", "A save is already running", nil
	case errors.Is(err, editor.ErrUnknownLocale):
		return http.StatusNotFound, "UNKNOWN_LOCALE", "Locale not supported", nil
	case errors.Is(err, editor.ErrDocumentNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, media.ErrEmptyPayload):
		return http.StatusBadRequest, "EMPTY_MEDIA", "Media payload is empty", nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest, "UNSUPPORTED_FORMAT", "Format must be pdf or docx", nil
	case errors.Is(err, export.ErrContentUnavailable):
		return http.StatusNotFound, "NOT_FOUND", "Translation not found", nil
	case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export dependency missing", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
