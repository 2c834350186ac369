package model

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockClassifier struct {
	mock.Mock
	md Metadata
}

func newMockClassifier(md Metadata) *MockClassifier {
	md.normalize()
	return &MockClassifier{md: md}
}

func (m *MockClassifier) Predict(ctx context.Context, input []float32) ([]float32, error) {
	args := m.Called(ctx, input)
	if scores, ok := args.Get(0).([]float32); ok {
		return scores, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockClassifier) Metadata() Metadata {
	return m.md
}

func (m *MockClassifier) Close() error {
	args := m.Called()
	return args.Error(0)
}
