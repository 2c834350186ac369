package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

const formField = "image"

var (
	errNoImage   = errors.New("No image file provided. Use 'image' as the form field name")
	errParseForm = errors.New("Failed to parse form")
	errTooLarge  = errors.New("Image exceeds the upload limit")
)

type upload struct {
	filename string
	data     []byte
}

func (u *upload) reader() io.Reader {
	return bytes.NewReader(u.data)
}

// readUpload pulls the "image" part out of a multipart request, enforcing the
// configured size limit.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (*upload, error) {
	limit := h.options().MaxUploadBytes

	// leave room for the multipart envelope and other fields
	r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errTooLarge
		}
		return nil, fmt.Errorf("%w: %v", errParseForm, err)
	}

	file, header, err := r.FormFile(formField)
	if err != nil {
		return nil, errNoImage
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errParseForm, err)
	}
	if int64(len(data)) > limit {
		return nil, errTooLarge
	}
	if len(data) == 0 {
		return nil, errNoImage
	}

	slog.InfoContext(r.Context(), "Received file",
		"request_id", RequestID(r.Context()),
		"filename", header.Filename,
		"size", len(data))

	return &upload{filename: header.Filename, data: data}, nil
}
