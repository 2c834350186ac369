// Package pipeline chains decoding, preprocessing and inference for one image.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"

	"github.com/Brownie44l1/mb-classifier-api/internal/model"
	"github.com/Brownie44l1/mb-classifier-api/internal/preprocess"
)

// Pipeline classifies images with whatever model the Manager currently holds.
type Pipeline struct {
	models        *model.Manager
	mu            sync.RWMutex
	interpolation preprocess.Interpolation
}

// New returns a Pipeline resizing with the given interpolation.
func New(models *model.Manager, interpolation preprocess.Interpolation) *Pipeline {
	return &Pipeline{models: models, interpolation: interpolation}
}

// SetInterpolation changes the resize filter for subsequent calls.
func (p *Pipeline) SetInterpolation(interpolation preprocess.Interpolation) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.interpolation = interpolation
}

// Models returns the underlying model manager.
func (p *Pipeline) Models() *model.Manager {
	return p.models
}

// Options derives preprocessing options from the active model's metadata.
func (p *Pipeline) Options() (preprocess.Options, error) {
	md, err := p.models.Metadata()
	if err != nil {
		return preprocess.Options{}, err
	}
	return p.optionsFor(md), nil
}

func (p *Pipeline) optionsFor(md model.Metadata) preprocess.Options {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return preprocess.Options{
		Size:          md.ImageSize,
		Layout:        preprocess.Layout(md.Layout),
		Interpolation: p.interpolation,
	}
}

// Image preprocesses img for the active model and runs it through that same
// model.
func (p *Pipeline) Image(ctx context.Context, img image.Image) (*model.Classification, error) {
	return p.models.ClassifyWith(ctx, func(md model.Metadata) ([]float32, error) {
		opts := p.optionsFor(md)

		input, err := preprocess.Tensor(img, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to preprocess image: %w", err)
		}

		slog.DebugContext(ctx, "Running inference on image",
			"width", img.Bounds().Dx(),
			"height", img.Bounds().Dy(),
			"size", opts.Size,
			"layout", opts.Layout)

		return input, nil
	})
}

// Reader decodes an image from r and classifies it. The decoded format name
// is returned alongside the result.
func (p *Pipeline) Reader(ctx context.Context, r io.Reader) (*model.Classification, string, error) {
	img, format, err := preprocess.Decode(r)
	if err != nil {
		return nil, "", err
	}

	result, err := p.Image(ctx, img)
	if err != nil {
		return nil, format, err
	}
	return result, format, nil
}
