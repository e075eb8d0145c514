// internal/models/estimate.go
package models

// InvalidImageTitle is the title the estimation service returns when it could
// not make sense of an image.
const InvalidImageTitle = "Invalid Image"

// TextEstimateRequest asks for an estimate from a title and/or description.
type TextEstimateRequest struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// ImageEstimateRequest asks for an estimate from an uploaded image.
type ImageEstimateRequest struct {
	ImageURL    string `json:"imageUrl"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// Estimate is the estimation service response.
type Estimate struct {
	GeneratedTitle       string  `json:"generatedTitle"`
	EstimationConfidence int     `json:"estimationConfidence"`
	Calories             float64 `json:"calories"`
	Protein              float64 `json:"protein"`
	Carbs                float64 `json:"carbs"`
	Fat                  float64 `json:"fat"`
	Error                string  `json:"error,omitempty"`
}

// Nutrition returns the numeric part of the estimate.
func (e *Estimate) Nutrition() *Nutrition {
	if e == nil {
		return nil
	}
	return &Nutrition{
		Calories: e.Calories,
		Protein:  e.Protein,
		Carbs:    e.Carbs,
		Fat:      e.Fat,
	}
}
