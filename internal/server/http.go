package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/joseph-ayodele/doctext/internal/common"
	"github.com/joseph-ayodele/doctext/internal/export"
	"github.com/joseph-ayodele/doctext/internal/extract"
	"github.com/joseph-ayodele/doctext/internal/repository"
)

// Pinger is satisfied by *repository.DB.
type Pinger interface {
	HealthCheck(ctx context.Context, timeout time.Duration) error
}

// HTTPDeps wires the HTTP API. Attempts, Exports and DB may be nil when no
// ledger is configured.
type HTTPDeps struct {
	Extractor      Extractor
	Attempts       repository.AttemptRepository
	Exports        *export.Service
	DB             Pinger
	MaxUploadBytes int64
	Logger         *slog.Logger
}

type httpAPI struct {
	HTTPDeps
}

// NewHTTPHandler returns the chi router serving the HTTP API.
func NewHTTPHandler(deps HTTPDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	api := &httpAPI{HTTPDeps: deps}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(api.requestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", api.healthz)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/extract", api.extract)
		r.Post("/extractable", api.extractable)
		r.Route("/attempts", func(r chi.Router) {
			r.Get("/", api.listAttempts)
			r.Get("/export.xlsx", api.exportAttempts)
			r.Get("/{id}", api.getAttempt)
		})
	})
	return r
}

func (a *httpAPI) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := chimiddleware.GetReqID(r.Context())
		logger := a.Logger.With("request_id", reqID)
		ctx := common.WithLogger(common.WithRequestID(r.Context(), reqID), logger)

		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))
		logger.Info("http.request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (a *httpAPI) healthz(w http.ResponseWriter, r *http.Request) {
	if a.DB != nil {
		if err := a.DB.HealthCheck(r.Context(), 2*time.Second); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// extract accepts a multipart upload in field "file". ?format=text returns
// the bare text instead of the JSON outcome.
func (a *httpAPI) extract(w http.ResponseWriter, r *http.Request) {
	logger := common.LoggerFromContext(r.Context(), a.Logger)
	if a.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, a.MaxUploadBytes+1<<20)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, fmt.Errorf("%w: upload exceeds %d bytes", common.ErrTooLarge, a.MaxUploadBytes))
			return
		}
		writeError(w, r, fmt.Errorf("%w: invalid multipart form", common.ErrInvalidInput))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: file required", common.ErrInvalidInput))
		return
	}
	defer file.Close()
	if a.MaxUploadBytes > 0 && header.Size > a.MaxUploadBytes {
		writeError(w, r, fmt.Errorf("%w: upload exceeds %d bytes", common.ErrTooLarge, a.MaxUploadBytes))
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: read upload: %v", common.ErrInvalidInput, err))
		return
	}

	mediaType := header.Header.Get("Content-Type")
	if mt := r.FormValue("media_type"); mt != "" {
		mediaType = mt
	}
	name := header.Filename
	if n := r.FormValue("name"); n != "" {
		name = n
	}
	out := a.Extractor.Extract(r.Context(), extract.SourceFile{Name: name, MediaType: mediaType, Data: data})
	logger.Debug("upload extracted", "name", name, "status", out.Status(), "chars", out.Diagnostics.Chars)

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("X-Extraction-Status", string(out.Status()))
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, out.Text)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"text":        out.Text,
		"status":      out.Status(),
		"diagnostics": out.Diagnostics,
	})
}

func (a *httpAPI) extractable(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&body); err != nil {
		writeError(w, r, fmt.Errorf("%w: body must be a JSON object", common.ErrInvalidInput))
		return
	}
	if err := validate(extractableSchema, body); err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", common.ErrInvalidInput, err))
		return
	}
	name, _ := body["name"].(string)
	mediaType, _ := body["media_type"].(string)
	f := extract.SourceFile{Name: name, MediaType: mediaType}
	writeJSON(w, http.StatusOK, map[string]any{
		"extractable": a.Extractor.IsExtractable(f),
		"format":      extract.Classify(f),
	})
}

// queryArgs maps URL query parameters onto the attempts schema's shape.
func queryArgs(r *http.Request) (attemptQuery, error) {
	m := map[string]any{}
	q := r.URL.Query()
	for _, k := range []string{"status", "format", "since"} {
		if v := q.Get(k); v != "" {
			m[k] = v
		}
	}
	for _, k := range []string{"limit", "offset"} {
		if v := q.Get(k); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return attemptQuery{}, fmt.Errorf("%s must be an integer", k)
			}
			m[k] = float64(n)
		}
	}
	return parseAttemptQuery(m)
}

func (a *httpAPI) listAttempts(w http.ResponseWriter, r *http.Request) {
	if a.Attempts == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no ledger configured"})
		return
	}
	q, err := queryArgs(r)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", common.ErrInvalidInput, err))
		return
	}
	rows, err := a.Attempts.List(r.Context(), q.filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	kept := make([]repository.Attempt, 0, len(rows))
	for _, at := range rows {
		if q.since.IsZero() || !at.StartedAt.Before(q.since) {
			kept = append(kept, at)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"attempts": kept, "count": len(kept)})
}

func (a *httpAPI) getAttempt(w http.ResponseWriter, r *http.Request) {
	if a.Attempts == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no ledger configured"})
		return
	}
	id := chi.URLParam(r, "id")
	if err := common.NewValidator().Field("id", id, common.UUID).Error(); err != nil {
		writeError(w, r, err)
		return
	}
	at, err := a.Attempts.Get(r.Context(), uuid.MustParse(id))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, at)
}

func (a *httpAPI) exportAttempts(w http.ResponseWriter, r *http.Request) {
	if a.Exports == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no ledger configured"})
		return
	}
	q, err := queryArgs(r)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", common.ErrInvalidInput, err))
		return
	}
	xlsx, err := a.Exports.ExportAttemptsXLSX(r.Context(), q.filter, q.since)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="attempts.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(xlsx)
}

// writeError maps the error sentinels onto HTTP status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, common.ErrInvalidInput), errors.Is(err, common.ErrValidation):
		code = http.StatusBadRequest
	case errors.Is(err, common.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, common.ErrTooLarge):
		code = http.StatusRequestEntityTooLarge
	}
	body := map[string]string{"error": err.Error()}
	if reqID := common.RequestIDFromContext(r.Context()); reqID != "" {
		body["request_id"] = reqID
	}
	writeJSON(w, code, body)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
