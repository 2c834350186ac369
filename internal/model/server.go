package model

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var ortEnv struct {
	mu          sync.Mutex
	initialized bool
}

// InitRuntime initialises the ONNX Runtime environment once per process.
// libPath may be empty to use the library's default search path.
func InitRuntime(libPath string) error {
	ortEnv.mu.Lock()
	defer ortEnv.mu.Unlock()

	if ortEnv.initialized {
		return nil
	}
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}
	ortEnv.initialized = true
	return nil
}

// ShutdownRuntime destroys the ONNX Runtime environment. Every Server must be
// closed first.
func ShutdownRuntime() error {
	ortEnv.mu.Lock()
	defer ortEnv.mu.Unlock()

	if !ortEnv.initialized {
		return nil
	}
	ortEnv.initialized = false
	return ort.DestroyEnvironment()
}

// ServerConfig locates the model files and names the graph's input and
// output nodes.
type ServerConfig struct {
	ModelPath    string
	MetadataPath string
	InputName    string
	OutputName   string
}

// Server is an ONNX Runtime session with one pre-allocated input tensor and
// one pre-allocated output tensor. Predict calls are serialised because the
// tensors are shared.
type Server struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	metadata     Metadata
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// NewServer loads metadata and opens an inference session. InitRuntime must
// have been called.
func NewServer(cfg ServerConfig) (*Server, error) {
	metadata, err := LoadMetadata(cfg.MetadataPath)
	if err != nil {
		return nil, err
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{cfg.InputName}, []string{cfg.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Server{
		session:      session,
		metadata:     metadata,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// Metadata returns the metadata the session was built from.
func (s *Server) Metadata() Metadata {
	return s.metadata
}

// Predict runs one forward pass and returns a copy of the output scores.
func (s *Server) Predict(ctx context.Context, input []float32) ([]float32, error) {
	if len(input) != s.metadata.InputSize() {
		return nil, fmt.Errorf("%w: expected %d values, got %d", ErrInputSize, s.metadata.InputSize(), len(input))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	copy(s.inputTensor.GetData(), input)

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := s.outputTensor.GetData()
	if len(out) == 0 {
		return nil, ErrEmptyOutput
	}

	scores := make([]float32, len(out))
	copy(scores, out)
	return scores, nil
}

// Close releases both tensors and the session.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if s.inputTensor != nil {
		keep(s.inputTensor.Destroy())
		s.inputTensor = nil
	}
	if s.outputTensor != nil {
		keep(s.outputTensor.Destroy())
		s.outputTensor = nil
	}
	if s.session != nil {
		keep(s.session.Destroy())
		s.session = nil
	}
	return firstErr
}

// Loader returns a function that opens a new Server from cfg, suitable for
// Manager.Load.
func Loader(cfg ServerConfig) func(context.Context) (Classifier, error) {
	return func(ctx context.Context) (Classifier, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s, err := NewServer(cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}
