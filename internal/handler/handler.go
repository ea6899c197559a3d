// Package handler is the HTTP adapter around the exam pipeline.
package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pavelanni/examgen/internal/apperr"
	"github.com/pavelanni/examgen/internal/i18n"
	"github.com/pavelanni/examgen/internal/metrics"
	"github.com/pavelanni/examgen/internal/model"
	"github.com/pavelanni/examgen/internal/pipeline"
	"github.com/pavelanni/examgen/internal/storage"
)

// Service runs the exam operations.
type Service interface {
	Generate(ctx context.Context, req model.ExamGenerationRequest) (*pipeline.GenerateResult, error)
	Grade(ctx context.Context, req model.GradingRequest) (model.GradingResult, error)
	AnalyzeImage(ctx context.Context, data []byte) (string, error)
	GenerateKey(ctx context.Context, items []model.AnswerKeyItem) (model.Document, error)
}

// Files serves stored documents.
type Files interface {
	Open(ctx context.Context, name string) (io.ReadCloser, storage.Info, error)
}

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping() error
}

// Config holds the HTTP-facing settings.
type Config struct {
	StaticDir      string
	LangDir        string
	Language       string
	MaxQuestions   int
	MaxUploadBytes int64
	// MaxBodyBytes bounds JSON request bodies; zero selects DefaultMaxBodyBytes.
	MaxBodyBytes   int64
	// TrustProxy takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable it only behind a proxy that sets those headers.
	TrustProxy     bool
	RateLimit      float64
	RateBurst      int
	CORSOrigins    []string
}

// Deps are the handler's collaborators. Health and Metrics may be nil.
type Deps struct {
	Service Service
	Files   Files
	Health  Pinger
	Metrics *metrics.Metrics
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	svc     Service
	files   Files
	health  Pinger
	metrics *metrics.Metrics
	config  Config
}

// New creates a new Handler.
func New(deps Deps, cfg Config) *Handler {
	return &Handler{
		svc:     deps.Service,
		files:   deps.Files,
		health:  deps.Health,
		metrics: deps.Metrics,
		config:  cfg,
	}
}

// DefaultMaxBodyBytes is the JSON body limit when none is configured.
const DefaultMaxBodyBytes = 1 << 20

var filenameRe = regexp.MustCompile(`^[a-z_]+_[0-9a-f]{32}\.(docx|pdf)$`)

// Router builds the full route tree. ctx bounds the rate limiter's
// background cleanup.
func (h *Handler) Router(ctx context.Context) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if h.config.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.config.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))
	if h.metrics != nil {
		r.Use(h.metrics.Middleware)
	}
	r.Use(i18n.Middleware(h.config.Language))

	h.Routes(ctx, r)
	return r
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(ctx context.Context, r chi.Router) {
	r.NotFound(h.handleNotFound)
	r.Get("/", h.handleIndex)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(h.config.StaticDir))))
	r.Handle("/lang/*", http.StripPrefix("/lang/", http.FileServer(http.Dir(h.config.LangDir))))
	r.Get("/files/{filename}", h.handleFile)
	r.Get("/healthz", h.handleHealth)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		if h.config.RateLimit > 0 {
			r.Use(newIPLimiter(ctx, h.config.RateLimit, h.config.RateBurst).Middleware)
		}
		r.Post("/generate", h.handleGenerate)
		r.Post("/grade", h.handleGrade)
		r.Post("/analyze-image", h.handleAnalyzeImage)
		r.Post("/generate-key", h.handleGenerateKey)
	})
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	data, err := os.ReadFile(filepath.Join(h.config.StaticDir, "index.html"))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.ErrorContext(r.Context(), "read index page", "error", err)
		}
		h.handleNotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(data)
}

func (h *Handler) handleNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = io.WriteString(w, "<!DOCTYPE html><html><body><h1>"+i18n.T(r.Context(), "ErrNotFound")+"</h1></body></html>")
}

type generateResponse struct {
	Exam        []model.ExamQuestion `json:"exam"`
	DownloadURL string               `json:"download_url,omitempty"`
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	const op, msgID = "generate", "ErrGenerate"
	req := model.NewGenerationRequest()
	if err := decodeJSON(w, r, h.maxBody(), &req); err != nil {
		h.rejectBody(w, r, op, err)
		return
	}
	if err := req.Validate(h.config.MaxQuestions); err != nil {
		h.badRequest(w, r, op, err)
		return
	}

	res, err := h.svc.Generate(r.Context(), req)
	if err != nil {
		h.serverError(w, r, op, msgID, err)
		return
	}
	resp := generateResponse{Exam: res.Exam.Questions}
	if res.Document != nil {
		resp.DownloadURL = res.Document.URL()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGrade(w http.ResponseWriter, r *http.Request) {
	const op, msgID = "grade", "ErrGrade"
	req := model.NewGradingRequest()
	if err := decodeJSON(w, r, h.maxBody(), &req); err != nil {
		h.rejectBody(w, r, op, err)
		return
	}
	if err := req.Validate(); err != nil {
		h.badRequest(w, r, op, err)
		return
	}

	res, err := h.svc.Grade(r.Context(), req)
	if err != nil {
		h.serverError(w, r, op, msgID, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleAnalyzeImage(w http.ResponseWriter, r *http.Request) {
	const op, msgID = "analyze-image", "ErrAnalyzeImage"
	limit := h.config.MaxUploadBytes
	// Leave room for the multipart envelope around the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, limit+64<<10)

	file, _, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.tooLarge(w, r, op, limit)
			return
		}
		h.badRequest(w, r, op, apperr.Validation(op, "missing file field: %v", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		h.badRequest(w, r, op, apperr.Validation(op, "read upload: %v", err))
		return
	}
	if int64(len(data)) > limit {
		h.tooLarge(w, r, op, limit)
		return
	}
	if _, err := pipeline.DetectImageType(data); err != nil {
		h.badRequest(w, r, op, err)
		return
	}

	result, err := h.svc.AnalyzeImage(r.Context(), data)
	if err != nil {
		h.serverError(w, r, op, msgID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": result})
}

func (h *Handler) handleGenerateKey(w http.ResponseWriter, r *http.Request) {
	const op, msgID = "generate-key", "ErrGenerateKey"
	var items []model.AnswerKeyItem
	if err := decodeJSON(w, r, h.maxBody(), &items); err != nil {
		h.rejectBody(w, r, op, err)
		return
	}

	doc, err := h.svc.GenerateKey(r.Context(), items)
	if err != nil {
		h.serverError(w, r, op, msgID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"download_url": doc.URL()})
}

func (h *Handler) maxBody() int64 {
	if h.config.MaxBodyBytes > 0 {
		return h.config.MaxBodyBytes
	}
	return DefaultMaxBodyBytes
}

func (h *Handler) handleFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	if !filenameRe.MatchString(name) {
		h.handleNotFound(w, r)
		return
	}

	rc, info, err := h.files.Open(r.Context(), name)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			slog.ErrorContext(r.Context(), "open document", "filename", name, "error", err)
		}
		h.handleNotFound(w, r)
		return
	}
	defer rc.Close()

	contentType := info.ContentType
	if contentType == "" {
		if f, ok := model.ParseFormat(filepath.Ext(name)[1:]); ok {
			contentType = f.ContentType()
		}
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	if _, err := io.Copy(w, rc); err != nil {
		slog.WarnContext(r.Context(), "send document", "filename", name, "error", err)
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.Ping(); err != nil {
			slog.ErrorContext(r.Context(), "health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
