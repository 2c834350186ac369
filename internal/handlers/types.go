package handlers

import (
	"github.com/Brownie44l1/mb-classifier-api/internal/advice"
)

// PredictionResponse is the JSON body returned by every predict endpoint.
type PredictionResponse struct {
	RequestID      string                `json:"request_id"`
	Class          string                `json:"class"`
	Confidence     float32               `json:"confidence"`
	Predictions    map[string]float32    `json:"predictions"`
	Results        []advice.Result       `json:"results"`
	Recommendation advice.Recommendation `json:"recommendation"`
	Disclaimer     string                `json:"disclaimer"`
}

// DataURLRequest carries an image the way a browser preview holds it.
type DataURLRequest struct {
	Image string `json:"image"`
}
