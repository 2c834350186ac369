package model

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// LoadFunc opens a new Classifier.
type LoadFunc func(ctx context.Context) (Classifier, error)

// PrepareFunc builds the input tensor for the given model metadata.
type PrepareFunc func(Metadata) ([]float32, error)

// Manager owns the active Classifier. Load swaps in a new one and releases
// the old; requests already running against the old one finish first.
// Loads are ordered by when they started: a load that finishes after a
// newer one has been applied is discarded.
type Manager struct {
	mu      sync.RWMutex
	current Classifier
	status  Status
	tickets atomic.Uint64
	applied uint64
}

// NewManager returns a Manager with no model loaded.
func NewManager() *Manager {
	return &Manager{
		status: Status{State: StateLoading, Message: "Loading model..."},
	}
}

// Load opens a classifier with load and makes it current. If load fails the
// previous classifier, if any, stays in service and the status reports the
// failure.
func (m *Manager) Load(ctx context.Context, load LoadFunc) error {
	ticket := m.tickets.Add(1)
	started := time.Now()
	next, err := load(ctx)

	m.mu.Lock()
	if ticket < m.applied {
		m.mu.Unlock()

		slog.Info("Discarding superseded model load", "ticket", ticket)
		if err == nil {
			if cerr := next.Close(); cerr != nil {
				slog.Warn("Failed to release superseded model", "error", cerr)
			}
		}
		return ErrSuperseded
	}
	m.applied = ticket
	m.status.Loads++
	if err != nil {
		m.status.State = StateFailed
		m.status.Message = fmt.Sprintf("Failed to load model: %v", err)
		m.mu.Unlock()

		slog.Error("Error loading model", "error", err)
		return fmt.Errorf("failed to load model: %w", err)
	}

	prev := m.current
	m.current = next
	md := next.Metadata()
	m.status.State = StateReady
	m.status.Message = "Model loaded successfully!"
	m.status.Labels = md.Labels
	m.status.LoadedAt = time.Now()
	m.mu.Unlock()

	slog.Info("Model loaded successfully",
		"labels", md.Labels,
		"input_shape", md.InputShape,
		"output_shape", md.OutputShape,
		"layout", md.Layout,
		"duration", time.Since(started))

	if prev != nil {
		if err := prev.Close(); err != nil {
			slog.Warn("Failed to release previous model", "error", err)
		}
	}

	return nil
}

// Status returns a snapshot of the load status.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.status
}

// Metadata returns the active model's metadata.
func (m *Manager) Metadata() (Metadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current == nil {
		return Metadata{}, ErrNotLoaded
	}
	return m.current.Metadata(), nil
}

// Classify runs input through the active model and ranks the scores against
// its labels.
func (m *Manager) Classify(ctx context.Context, input []float32) (*Classification, error) {
	return m.ClassifyWith(ctx, func(Metadata) ([]float32, error) {
		return input, nil
	})
}

// ClassifyWith builds the input with prepare and runs it, both against the
// same model. A reload cannot swap the model between the two steps.
func (m *Manager) ClassifyWith(ctx context.Context, prepare PrepareFunc) (*Classification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current == nil {
		return nil, ErrNotLoaded
	}

	md := m.current.Metadata()
	input, err := prepare(md)
	if err != nil {
		return nil, err
	}
	if len(input) != md.InputSize() {
		return nil, fmt.Errorf("%w: expected %d values, got %d", ErrInputSize, md.InputSize(), len(input))
	}

	scores, err := m.current.Predict(ctx, input)
	if err != nil {
		return nil, err
	}
	if len(scores) == 0 {
		return nil, ErrEmptyOutput
	}
	for i, v := range scores {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, fmt.Errorf("%w: score %d is %v", ErrNonFiniteScore, i, v)
		}
	}

	slog.Debug("Inference result", "scores", scores)

	if md.ApplySoftmax {
		scores = Softmax(scores)
	}

	return &Classification{
		Scores:  scores,
		Results: Rank(scores, md.Labels),
	}, nil
}

// Close releases the active classifier.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return nil
	}
	err := m.current.Close()
	m.current = nil
	m.status.State = StateLoading
	m.status.Message = "Model released"
	return err
}
