package model

import (
	"context"
	"time"
)

// Metadata describes the model's labels and tensor shapes. It is read from
// the JSON file shipped next to the model.
type Metadata struct {
	Labels       []string `json:"labels"`
	Classes      []string `json:"classes,omitempty"`
	InputShape   []int64  `json:"input_shape"`
	OutputShape  []int64  `json:"output_shape"`
	ImageSize    int      `json:"image_size"`
	Layout       string   `json:"layout,omitempty"`
	ApplySoftmax bool     `json:"apply_softmax,omitempty"`
}

// Prediction is one class label with the model's confidence for it.
type Prediction struct {
	Class      string  `json:"class"`
	Confidence float32 `json:"confidence"`
}

// Classification is the outcome of one forward pass.
type Classification struct {
	Scores  []float32    `json:"-"`
	Results []Prediction `json:"results"`
}

// Top returns the highest ranked prediction.
func (c *Classification) Top() Prediction {
	if len(c.Results) == 0 {
		return Prediction{}
	}
	return c.Results[0]
}

// PredictionRequest is the body of a raw tensor prediction.
type PredictionRequest struct {
	Image []float32 `json:"image"`
}

// Classifier runs a forward pass over a flattened, preprocessed input tensor.
type Classifier interface {
	Predict(ctx context.Context, input []float32) ([]float32, error)
	Metadata() Metadata
	Close() error
}

// State is the load state of the model.
type State string

const (
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateFailed  State = "failed"
)

// Status reports whether a model is available and why not if it isn't.
type Status struct {
	State    State     `json:"state"`
	Message  string    `json:"message"`
	Labels   []string  `json:"labels,omitempty"`
	LoadedAt time.Time `json:"loaded_at"`
	Loads    uint32    `json:"loads"`
}
