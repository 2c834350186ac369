package handlers

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"sync"

	"github.com/samber/lo"

	"github.com/Brownie44l1/mb-classifier-api/internal/advice"
	"github.com/Brownie44l1/mb-classifier-api/internal/model"
	"github.com/Brownie44l1/mb-classifier-api/internal/pipeline"
	"github.com/Brownie44l1/mb-classifier-api/internal/preprocess"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Options tune request handling. They may be swapped at runtime.
type Options struct {
	MaxUploadBytes int64
	BadgeThreshold float64
	CORSOrigin     string
}

// DefaultOptions mirrors the config defaults.
func DefaultOptions() Options {
	return Options{
		MaxUploadBytes: 10 << 20,
		BadgeThreshold: advice.DefaultBadgeThreshold,
		CORSOrigin:     "*",
	}
}

type Handler struct {
	pipeline *pipeline.Pipeline
	page     *template.Template
	mu       sync.RWMutex
	opts     Options
}

func NewHandler(p *pipeline.Pipeline, opts Options) *Handler {
	page := template.Must(template.New("index.html").Funcs(template.FuncMap{
		"percent": func(v float32) string { return fmt.Sprintf("%.1f%%", v*100) },
	}).ParseFS(templatesFS, "templates/index.html"))

	return &Handler{
		pipeline: p,
		page:     page,
		opts:     opts,
	}
}

// SetOptions replaces the handler options, e.g. after a config reload.
func (h *Handler) SetOptions(opts Options) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.opts = opts
}

func (h *Handler) options() Options {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.opts
}

// Routes wires every endpoint and the shared middleware.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("/status", h.Status)
	mux.HandleFunc("/predict", h.Predict)
	mux.HandleFunc("/predict/image", h.PredictFromImage)
	mux.HandleFunc("/predict/dataurl", h.PredictFromDataURL)
	mux.HandleFunc("/{$}", h.Index)

	origin := func() string { return h.options().CORSOrigin }
	return WithRequestID(LogRequests(EnableCORS(origin, mux)))
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Status reports whether the model loaded and, if not, why.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := h.pipeline.Models().Status()
	code := http.StatusOK
	if status.State != model.StateReady {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// Predict classifies an already preprocessed, flattened tensor.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req model.PredictionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	md, err := h.pipeline.Models().Metadata()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if len(req.Image) != md.InputSize() {
		http.Error(w, fmt.Sprintf("Expected %d values, got %d", md.InputSize(), len(req.Image)),
			http.StatusBadRequest)
		return
	}

	result, err := h.pipeline.Models().Classify(r.Context(), req.Image)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, h.response(r.Context(), result))
}

// PredictFromImage classifies an image uploaded as multipart field "image".
func (h *Handler) PredictFromImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	upload, err := h.readUpload(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, _, err := h.pipeline.Reader(r.Context(), upload.reader())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, h.response(r.Context(), result))
}

// PredictFromDataURL classifies an image sent as a base64 data URL.
func (h *Handler) PredictFromDataURL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.options().MaxUploadBytes*4/3+1024)

	var req DataURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Image == "" {
		http.Error(w, advice.NoImageNotice, http.StatusBadRequest)
		return
	}

	_, data, err := preprocess.DecodeDataURL(req.Image)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	result, _, err := h.pipeline.Reader(r.Context(), bytes.NewReader(data))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, h.response(r.Context(), result))
}

func (h *Handler) response(ctx context.Context, result *model.Classification) *PredictionResponse {
	top := result.Top()
	rec := advice.For(top.Class)

	slog.InfoContext(ctx, "Inference result",
		"request_id", RequestID(ctx),
		"class", top.Class,
		"confidence", top.Confidence)

	return &PredictionResponse{
		RequestID:  RequestID(ctx),
		Class:      top.Class,
		Confidence: top.Confidence,
		Predictions: lo.SliceToMap(result.Results, func(p model.Prediction) (string, float32) {
			return p.Class, p.Confidence
		}),
		Results:        advice.Results(result.Results, h.options().BadgeThreshold),
		Recommendation: rec,
		Disclaimer:     rec.Disclaimer,
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = "Prediction failed"
	}

	slog.ErrorContext(r.Context(), "Prediction error",
		"request_id", RequestID(r.Context()),
		"status", code,
		"error", err)

	http.Error(w, msg, code)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrNotLoaded):
		return http.StatusServiceUnavailable
	case errors.Is(err, model.ErrInputSize),
		errors.Is(err, preprocess.ErrUnsupportedFormat),
		errors.Is(err, preprocess.ErrInvalidDataURL):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	buf.WriteTo(w)
}
