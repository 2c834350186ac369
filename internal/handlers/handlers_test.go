package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/mb-classifier-api/internal/advice"
	"github.com/Brownie44l1/mb-classifier-api/internal/model"
	"github.com/Brownie44l1/mb-classifier-api/internal/pipeline"
	"github.com/Brownie44l1/mb-classifier-api/internal/preprocess"
)

// --- Mock types ---

type MockClassifier struct {
	mock.Mock
	md model.Metadata
}

func (m *MockClassifier) Predict(ctx context.Context, input []float32) ([]float32, error) {
	args := m.Called(ctx, input)
	if scores, ok := args.Get(0).([]float32); ok {
		return scores, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockClassifier) Metadata() model.Metadata { return m.md }

func (m *MockClassifier) Close() error { return nil }

var testMetadata = model.Metadata{
	Labels:      []string{"T1", "T2", "Not Pediatric Medulloblastoma but still bad", "Normal"},
	ImageSize:   4,
	Layout:      model.LayoutNHWC,
	InputShape:  []int64{1, 4, 4, 3},
	OutputShape: []int64{1, 4},
}

// --- Helpers ---

func newTestHandler(t *testing.T, scores []float32, err error) (*Handler, *MockClassifier) {
	t.Helper()

	c := &MockClassifier{md: testMetadata}
	c.On("Predict", mock.Anything, mock.Anything).Return(scores, err).Maybe()

	m := model.NewManager()
	require.NoError(t, m.Load(context.Background(), func(context.Context) (model.Classifier, error) {
		return c, nil
	}))

	return NewHandler(pipeline.New(m, preprocess.Nearest), DefaultOptions()), c
}

func newUnloadedHandler() *Handler {
	return NewHandler(pipeline.New(model.NewManager(), preprocess.Nearest), DefaultOptions())
}

func pngImage(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartRequest(t *testing.T, path, field string, data []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if field != "" {
		fw, err := mw.CreateFormFile(field, "scan.png")
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	} else {
		require.NoError(t, mw.WriteField("note", "nothing attached"))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(h *Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) PredictionResponse {
	t.Helper()
	var resp PredictionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

// --- Tests ---

func TestHealth(t *testing.T) {
	rec := serve(newUnloadedHandler(), httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestStatus(t *testing.T) {
	rec := serve(newUnloadedHandler(), httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"loading"`)

	h, _ := newTestHandler(t, nil, nil)
	rec = serve(h, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Model loaded successfully!")

	rec = serve(h, httptest.NewRequest(http.MethodPost, "/status", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestPredict_Raw(t *testing.T) {
	h, c := newTestHandler(t, []float32{0.05, 0.1, 0.05, 0.8}, nil)

	body, _ := json.Marshal(model.PredictionRequest{Image: make([]float32, 4*4*3)})
	rec := serve(h, httptest.NewRequest(http.MethodPost, "/predict", bytes.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, "Normal", resp.Class)
	assert.InDelta(t, 0.8, resp.Confidence, 1e-6)
	assert.Len(t, resp.Predictions, 4)
	assert.Equal(t, advice.BadgeSuccess, resp.Results[0].Badge)
	assert.Equal(t, advice.BadgeSecondary, resp.Results[1].Badge)
	assert.Contains(t, resp.Recommendation.Summary, "No tumor detected")
	assert.Equal(t, advice.Disclaimer, resp.Disclaimer)
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, resp.RequestID, rec.Header().Get(RequestIDHeader))

	c.AssertNumberOfCalls(t, "Predict", 1)
}

func TestPredict_RawErrors(t *testing.T) {
	h, c := newTestHandler(t, []float32{1, 0, 0, 0}, nil)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/predict", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = serve(h, httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid JSON")

	rec = serve(h, httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(`{"image":[1,2,3]}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Expected 48 values, got 3")

	c.AssertNotCalled(t, "Predict", mock.Anything, mock.Anything)
}

func TestPredict_NotLoaded(t *testing.T) {
	rec := serve(newUnloadedHandler(), httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(`{"image":[]}`)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPredictFromImage(t *testing.T) {
	h, _ := newTestHandler(t, []float32{0.7, 0.2, 0.05, 0.05}, nil)

	rec := serve(h, multipartRequest(t, "/predict/image", "image", pngImage(t)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeResponse(t, rec)
	assert.Equal(t, "T1", resp.Class)
	assert.Equal(t, advice.ClassT1, resp.Recommendation.Class)
	assert.Len(t, resp.Recommendation.Treatments, 3)
	assert.Equal(t, []string{"T1", "T2", "Not Pediatric Medulloblastoma but still bad", "Normal"},
		[]string{resp.Results[0].Class, resp.Results[1].Class, resp.Results[2].Class, resp.Results[3].Class})
}

func TestPredictFromImage_Errors(t *testing.T) {
	h, _ := newTestHandler(t, []float32{1, 0, 0, 0}, nil)

	rec := serve(h, multipartRequest(t, "/predict/image", "", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "No image file provided")

	rec = serve(h, multipartRequest(t, "/predict/image", "image", []byte("not an image")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid image format")

	rec = serve(h, httptest.NewRequest(http.MethodPost, "/predict/image", strings.NewReader("plain")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/predict/image", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestPredictFromImage_TooLarge(t *testing.T) {
	h, _ := newTestHandler(t, []float32{1, 0, 0, 0}, nil)
	opts := DefaultOptions()
	opts.MaxUploadBytes = 16
	h.SetOptions(opts)

	rec := serve(h, multipartRequest(t, "/predict/image", "image", pngImage(t)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "upload limit")
}

func TestPredictFromImage_InferenceFailure(t *testing.T) {
	h, _ := newTestHandler(t, nil, errors.New("onnx exploded"))

	rec := serve(h, multipartRequest(t, "/predict/image", "image", pngImage(t)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Prediction failed")
	assert.NotContains(t, rec.Body.String(), "onnx exploded")
}

func TestPredictFromDataURL(t *testing.T) {
	h, _ := newTestHandler(t, []float32{0.1, 0.1, 0.75, 0.05}, nil)

	body, _ := json.Marshal(DataURLRequest{Image: preprocess.EncodeDataURL("image/png", pngImage(t))})
	rec := serve(h, httptest.NewRequest(http.MethodPost, "/predict/dataurl", bytes.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeResponse(t, rec)
	assert.Equal(t, advice.ClassNotMB, resp.Class)
	assert.Equal(t, "A Tumor but not Medulloblastoma:", resp.Recommendation.Summary)
}

func TestPredictFromDataURL_Errors(t *testing.T) {
	h, _ := newTestHandler(t, []float32{1, 0, 0, 0}, nil)

	rec := serve(h, httptest.NewRequest(http.MethodPost, "/predict/dataurl", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), advice.NoImageNotice)

	rec = serve(h, httptest.NewRequest(http.MethodPost, "/predict/dataurl", strings.NewReader(`{"image":"http://example.com/a.png"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid image data URL")
}

func TestIndex_Get(t *testing.T) {
	h, _ := newTestHandler(t, nil, nil)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Model loaded successfully!")
	assert.Contains(t, rec.Body.String(), `id="image-input"`)
	assert.NotContains(t, rec.Body.String(), `id="result-container"`)
}

func TestIndex_NotLoadedHidesForm(t *testing.T) {
	rec := serve(newUnloadedHandler(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `id="image-input"`)
}

func TestIndex_PostWithoutImage(t *testing.T) {
	h, c := newTestHandler(t, nil, nil)

	rec := serve(h, multipartRequest(t, "/", "", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), advice.NoImageNotice)
	c.AssertNotCalled(t, "Predict", mock.Anything, mock.Anything)
}

func TestIndex_PostWithImage(t *testing.T) {
	h, _ := newTestHandler(t, []float32{0.2, 0.6, 0.1, 0.1}, nil)

	rec := serve(h, multipartRequest(t, "/", "image", pngImage(t)))
	require.Equal(t, http.StatusOK, rec.Code)

	page := rec.Body.String()
	assert.Contains(t, page, `src="data:image/png;base64,`)
	assert.Contains(t, page, "Treatment Recommendations")
	assert.Contains(t, page, "T2 (Tumor &gt;3 cm but still localized in the cerebellum):")
	assert.Contains(t, page, "badge bg-success rounded-pill")
	assert.Contains(t, page, "60.0%")
	assert.Contains(t, page, advice.Disclaimer)
}

func TestIndex_PostInferenceError(t *testing.T) {
	h, _ := newTestHandler(t, nil, errors.New("session closed"))

	rec := serve(h, multipartRequest(t, "/", "image", pngImage(t)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Error during inference: session closed")
}

func TestIndex_UnknownPath(t *testing.T) {
	h, _ := newTestHandler(t, nil, nil)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMiddleware_CORSPreflight(t *testing.T) {
	rec := serve(newUnloadedHandler(), httptest.NewRequest(http.MethodOptions, "/predict/image", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestMiddleware_RequestIDIsPropagated(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "fixed-id")

	rec := serve(newUnloadedHandler(), req)
	assert.Equal(t, "fixed-id", rec.Header().Get(RequestIDHeader))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(model.ErrNotLoaded))
	assert.Equal(t, http.StatusBadRequest, statusFor(model.ErrInputSize))
	assert.Equal(t, http.StatusBadRequest, statusFor(preprocess.ErrInvalidDataURL))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(context.Canceled))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("x")))
}

func TestPredict_NonFiniteScores(t *testing.T) {
	h, _ := newTestHandler(t, []float32{0.1, float32(math.NaN()), 0.8, 0.05}, nil)

	body, _ := json.Marshal(model.PredictionRequest{Image: make([]float32, 4*4*3)})
	rec := serve(h, httptest.NewRequest(http.MethodPost, "/predict", bytes.NewReader(body)))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Prediction failed")
}

func TestWriteJSON_EncodeFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]float64{"score": math.NaN()})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Failed to encode response")
}

func TestMiddleware_CORSFollowsOptions(t *testing.T) {
	h := newUnloadedHandler()
	routes := h.Routes()

	opts := DefaultOptions()
	opts.CORSOrigin = "https://portal.example"
	h.SetOptions(opts)

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/predict/image", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://portal.example", rec.Header().Get("Access-Control-Allow-Origin"))
}
