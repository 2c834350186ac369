// Package advice maps ranked predictions onto the badges, recommendation text
// and disclaimer shown to the user.
package advice

import (
	"slices"

	"github.com/samber/lo"

	"github.com/Brownie44l1/mb-classifier-api/internal/model"
)

// Class labels with dedicated recommendations.
const (
	ClassT1       = "T1"
	ClassT2       = "T2"
	ClassNotMB    = "Not Pediatric Medulloblastoma but still bad"
	DefaultTitle  = "Treatment Recommendations"
	Disclaimer    = "This is a demo application and not a substitute for professional medical advice."
	NoImageNotice = "Please select an image first."
)

// DefaultBadgeThreshold is the confidence above which a result is highlighted.
const DefaultBadgeThreshold = 0.5

// Badge is the style class attached to one ranked result.
type Badge string

const (
	BadgeSuccess   Badge = "bg-success"
	BadgeSecondary Badge = "bg-secondary"
)

// BadgeFor highlights confidences strictly above threshold.
func BadgeFor(confidence float32, threshold float64) Badge {
	return lo.Ternary(float64(confidence) > threshold, BadgeSuccess, BadgeSecondary)
}

// Result is a ranked prediction with its badge.
type Result struct {
	Class      string  `json:"class"`
	Confidence float32 `json:"confidence"`
	Badge      Badge   `json:"badge"`
}

// Results attaches badges to already ranked predictions.
func Results(preds []model.Prediction, threshold float64) []Result {
	return lo.Map(preds, func(p model.Prediction, _ int) Result {
		return Result{
			Class:      p.Class,
			Confidence: p.Confidence,
			Badge:      BadgeFor(p.Confidence, threshold),
		}
	})
}

// Treatment is one named line of a recommendation.
type Treatment struct {
	Name   string `json:"name"`
	Detail string `json:"detail"`
}

// Recommendation is the fixed feedback block for a top class.
type Recommendation struct {
	Class      string      `json:"class"`
	Title      string      `json:"title"`
	Summary    string      `json:"summary"`
	Treatments []Treatment `json:"treatments,omitempty"`
	Notes      []string    `json:"notes,omitempty"`
	Disclaimer string      `json:"disclaimer"`
}

var recommendations = map[string]Recommendation{
	ClassT1: {
		Summary: "T1 (Tumor ≤3 cm in greatest dimension, confined to the cerebellum):",
		Treatments: []Treatment{
			{
				Name:   "Surgical Resection",
				Detail: "The primary treatment for a localized tumor (T1) is surgical removal of the tumor. Since it is confined to the cerebellum, the goal is to completely remove the tumor if feasible.",
			},
			{
				Name:   "Post-Surgical Radiation Therapy",
				Detail: "After surgery, radiation therapy may be used to target any remaining tumor cells and reduce the risk of recurrence.",
			},
			{
				Name:   "Chemotherapy",
				Detail: "Chemotherapy might be administered, especially for patients who are younger or in cases where the tumor is difficult to remove completely.",
			},
		},
	},
	ClassT2: {
		Summary: "T2 (Tumor >3 cm but still localized in the cerebellum):",
		Treatments: []Treatment{
			{
				Name:   "Surgical Resection",
				Detail: "As with T1, surgery is the primary treatment, although it might be more complex due to the larger tumor size.",
			},
			{
				Name:   "Radiation Therapy",
				Detail: "After surgery, radiation therapy to the entire brain and spinal cord is generally administered to treat any microscopic disease that might be left behind.",
			},
			{
				Name:   "Chemotherapy",
				Detail: "Chemotherapy can be used both during and after radiation, particularly in younger patients or those with high-risk features.",
			},
		},
	},
	ClassNotMB: {
		Summary: "A Tumor but not Medulloblastoma:",
		Notes: []string{
			"No Pediatric Medulloblastoma, but we believe you have another type of tumor. Please consult with a medical professional for more information.",
		},
	},
}

var noTumor = Recommendation{
	Summary: "No tumor detected. Please consult with a medical professional for a complete diagnosis.",
}

// For returns the recommendation for the top ranked class. Any label without
// a dedicated block gets the "no tumor detected" text.
func For(topClass string) Recommendation {
	rec, ok := recommendations[topClass]
	if !ok {
		rec = noTumor
	}

	rec.Treatments = slices.Clone(rec.Treatments)
	rec.Notes = slices.Clone(rec.Notes)
	rec.Class = topClass
	rec.Title = DefaultTitle
	rec.Disclaimer = Disclaimer
	return rec
}
