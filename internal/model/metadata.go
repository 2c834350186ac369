package model

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
)

const (
	DefaultImageSize = 224

	LayoutNHWC = "nhwc"
	LayoutNCHW = "nchw"

	channels = 3
)

// DefaultLabels are used when the metadata file carries no labels.
var DefaultLabels = []string{"Class 1", "Class 2", "Class 3", "Class 4"}

// LoadMetadata reads and normalises the metadata file at path.
func LoadMetadata(path string) (Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	return ParseMetadata(data)
}

// ParseMetadata decodes metadata JSON, fills in defaults and validates it.
func ParseMetadata(data []byte) (Metadata, error) {
	var md Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}

	md.normalize()
	if err := md.Validate(); err != nil {
		return Metadata{}, err
	}

	return md, nil
}

func (m *Metadata) normalize() {
	if len(m.Labels) == 0 {
		m.Labels = m.Classes
	}
	if len(m.Labels) == 0 {
		m.Labels = slices.Clone(DefaultLabels)
	}
	m.Classes = nil

	if m.ImageSize <= 0 {
		m.ImageSize = imageSizeFromShape(m.InputShape)
	}
	if m.Layout == "" {
		m.Layout = layoutFromShape(m.InputShape)
	}
	if len(m.InputShape) == 0 {
		s := int64(m.ImageSize)
		if m.Layout == LayoutNCHW {
			m.InputShape = []int64{1, channels, s, s}
		} else {
			m.InputShape = []int64{1, s, s, channels}
		}
	}
	if len(m.OutputShape) == 0 {
		m.OutputShape = []int64{1, int64(len(m.Labels))}
	}
}

func layoutFromShape(shape []int64) string {
	if len(shape) == 4 && shape[1] == channels && shape[3] != channels {
		return LayoutNCHW
	}
	return LayoutNHWC
}

func imageSizeFromShape(shape []int64) int {
	if len(shape) != 4 {
		return DefaultImageSize
	}
	if layoutFromShape(shape) == LayoutNCHW {
		return int(shape[2])
	}
	return int(shape[1])
}

// Validate checks that the shapes describe a single RGB image of ImageSize.
func (m Metadata) Validate() error {
	if m.Layout != LayoutNHWC && m.Layout != LayoutNCHW {
		return fmt.Errorf("%w: unknown layout %q", ErrInvalidMetadata, m.Layout)
	}
	if len(m.InputShape) != 4 {
		return fmt.Errorf("%w: input shape %v is not rank 4", ErrInvalidMetadata, m.InputShape)
	}

	s := int64(m.ImageSize)
	want := []int64{1, s, s, channels}
	if m.Layout == LayoutNCHW {
		want = []int64{1, channels, s, s}
	}
	if !slices.Equal(m.InputShape, want) {
		return fmt.Errorf("%w: input shape %v does not match %s image of size %d", ErrInvalidMetadata, m.InputShape, m.Layout, m.ImageSize)
	}

	if m.OutputSize() <= 0 {
		return fmt.Errorf("%w: output shape %v is empty", ErrInvalidMetadata, m.OutputShape)
	}

	return nil
}

// InputSize is the number of float32 values the model expects.
func (m Metadata) InputSize() int {
	return int(product(m.InputShape))
}

// OutputSize is the number of scores the model produces.
func (m Metadata) OutputSize() int {
	return int(product(m.OutputShape))
}

func product(shape []int64) int64 {
	if len(shape) == 0 {
		return 0
	}
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return n
}
