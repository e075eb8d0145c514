// internal/models/foodlog.go
package models

import (
	"time"
)

// DateLayout is the layout of FoodLogEntry.Date (local calendar day).
const DateLayout = "2006-01-02"

type EstimationStatus string

const (
	StatusEstimating EstimationStatus = "estimating"
	StatusFinal      EstimationStatus = "final"
	StatusNeedsInput EstimationStatus = "needs_input"
)

type EntrySource string

const (
	SourceManual EntrySource = "manual"
	SourceImage  EntrySource = "image"
	SourceVoice  EntrySource = "voice"
)

// FoodLogEntry is a single logged food. User* fields are what the user typed
// and are never overwritten by estimation; Calories..Fat are the displayed
// values produced by the merge step.
type FoodLogEntry struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Date      string    `json:"date"`

	UserTitle       string   `json:"userTitle,omitempty"`
	UserDescription string   `json:"userDescription,omitempty"`
	UserCalories    *float64 `json:"userCalories,omitempty"`
	UserProtein     *float64 `json:"userProtein,omitempty"`
	UserCarbs       *float64 `json:"userCarbs,omitempty"`
	UserFat         *float64 `json:"userFat,omitempty"`

	GeneratedTitle string  `json:"generatedTitle"`
	Calories       float64 `json:"calories"`
	Protein        float64 `json:"protein"`
	Carbs          float64 `json:"carbs"`
	Fat            float64 `json:"fat"`

	// EstimationConfidence is 0-100. Zero means an estimation is in flight.
	EstimationConfidence int              `json:"estimationConfidence"`
	Status               EstimationStatus `json:"status"`

	ImageURL string      `json:"imageUrl,omitempty"`
	Source   EntrySource `json:"source,omitempty"`

	NeedsAIEstimation bool `json:"-"`
}

// IsEstimating reports whether the entry is a skeleton waiting for estimation.
func (e FoodLogEntry) IsEstimating() bool {
	return e.Status == StatusEstimating || e.EstimationConfidence == 0
}

// HasImage reports whether the entry was created from a captured image.
func (e FoodLogEntry) HasImage() bool {
	return e.ImageURL != ""
}

// DisplayTitle returns the user title when set, otherwise the generated one.
func (e FoodLogEntry) DisplayTitle() string {
	if e.UserTitle != "" {
		return e.UserTitle
	}
	return e.GeneratedTitle
}

// Nutrition holds the four tracked macro values.
type Nutrition struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
}

// DailyTotals aggregates every entry attributed to one date.
type DailyTotals struct {
	Date       string    `json:"date"`
	Entries    int       `json:"entries"`
	Estimating int       `json:"estimating"`
	Totals     Nutrition `json:"totals"`
}

// DailyTargets are the user's per-day goals.
type DailyTargets struct {
	Calories float64 `json:"calories" yaml:"calories"`
	Protein  float64 `json:"protein" yaml:"protein"`
	Carbs    float64 `json:"carbs" yaml:"carbs"`
	Fat      float64 `json:"fat" yaml:"fat"`
}

// DailyProgress is DailyTotals measured against DailyTargets, in percent.
type DailyProgress struct {
	DailyTotals
	Targets DailyTargets `json:"targets"`
	Percent Nutrition    `json:"percent"`
}

// NewDailyProgress computes rounded percentages; a zero target yields zero.
func NewDailyProgress(totals DailyTotals, targets DailyTargets) DailyProgress {
	pct := func(v, target float64) float64 {
		if target <= 0 {
			return 0
		}
		return float64(int(v/target*100 + 0.5))
	}
	return DailyProgress{
		DailyTotals: totals,
		Targets:     targets,
		Percent: Nutrition{
			Calories: pct(totals.Totals.Calories, targets.Calories),
			Protein:  pct(totals.Totals.Protein, targets.Protein),
			Carbs:    pct(totals.Totals.Carbs, targets.Carbs),
			Fat:      pct(totals.Totals.Fat, targets.Fat),
		},
	}
}
