package handlers

import (
	"bytes"
	"errors"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/Brownie44l1/mb-classifier-api/internal/advice"
	"github.com/Brownie44l1/mb-classifier-api/internal/model"
	"github.com/Brownie44l1/mb-classifier-api/internal/preprocess"
)

type pageData struct {
	Status   model.Status
	Preview  template.URL
	Filename string
	Warning  string
	Error    string
	Result   *PredictionResponse
}

// Index serves the upload page and, on POST, the page with the ranked
// results, the recommendation for the top class and the disclaimer.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	data := pageData{Status: h.pipeline.Models().Status()}

	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		h.classifyForm(w, r, &data)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var buf bytes.Buffer
	if err := h.page.Execute(&buf, data); err != nil {
		slog.ErrorContext(r.Context(), "Failed to render page", "error", err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

func (h *Handler) classifyForm(w http.ResponseWriter, r *http.Request, data *pageData) {
	upload, err := h.readUpload(w, r)
	if errors.Is(err, errNoImage) {
		data.Warning = advice.NoImageNotice
		return
	}
	if err != nil {
		data.Error = "Error during inference: " + err.Error()
		return
	}

	img, format, err := preprocess.Decode(upload.reader())
	if err != nil {
		data.Error = "Error during inference: " + err.Error()
		return
	}

	data.Filename = upload.filename
	data.Preview = template.URL(preprocess.EncodeDataURL(preprocess.MediaType(format), upload.data))

	result, err := h.pipeline.Image(r.Context(), img)
	if err != nil {
		slog.ErrorContext(r.Context(), "Error during inference",
			"request_id", RequestID(r.Context()),
			"error", err)
		data.Error = "Error during inference: " + err.Error()
		return
	}

	data.Result = h.response(r.Context(), result)
}
