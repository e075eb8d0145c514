// Package nutrition merges user-entered nutrition values with estimated ones.
package nutrition

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gainslog/internal/models"
)

// MaxValue is the largest value accepted for any nutrition field.
const MaxValue = 10000

// Result is the outcome of Merge.
type Result struct {
	Calories float64
	Protein  float64
	Carbs    float64
	Fat      float64

	// User* hold only what the user supplied; nil means the field was blank.
	UserCalories *float64
	UserProtein  *float64
	UserCarbs    *float64
	UserFat      *float64

	NeedsAIEstimation bool
	ValidationErrors  []string
	IsValid           bool
}

// Merge validates the four user strings and combines them with optional
// estimated values. Precedence per field is user value, then ai value, then 0.
// NeedsAIEstimation is false only when all four fields were supplied.
func Merge(calories, protein, carbs, fat string, ai *models.Nutrition) Result {
	var res Result
	var errs []string

	res.UserCalories = parseField("Calories", calories, &errs)
	res.UserProtein = parseField("Protein", protein, &errs)
	res.UserCarbs = parseField("Carbs", carbs, &errs)
	res.UserFat = parseField("Fat", fat, &errs)

	var aiCalories, aiProtein, aiCarbs, aiFat *float64
	if ai != nil {
		aiCalories, aiProtein, aiCarbs, aiFat = &ai.Calories, &ai.Protein, &ai.Carbs, &ai.Fat
	}

	res.Calories = pick(res.UserCalories, aiCalories)
	res.Protein = pick(res.UserProtein, aiProtein)
	res.Carbs = pick(res.UserCarbs, aiCarbs)
	res.Fat = pick(res.UserFat, aiFat)

	res.NeedsAIEstimation = res.UserCalories == nil || res.UserProtein == nil ||
		res.UserCarbs == nil || res.UserFat == nil
	res.ValidationErrors = errs
	res.IsValid = len(errs) == 0
	return res
}

// Nutrition returns the final merged values.
func (r Result) Nutrition() models.Nutrition {
	return models.Nutrition{
		Calories: r.Calories,
		Protein:  r.Protein,
		Carbs:    r.Carbs,
		Fat:      r.Fat,
	}
}

// Apply copies the merged values and user-only values onto e.
func (r Result) Apply(e *models.FoodLogEntry) {
	e.Calories, e.Protein, e.Carbs, e.Fat = r.Calories, r.Protein, r.Carbs, r.Fat
	e.UserCalories, e.UserProtein, e.UserCarbs, e.UserFat = r.UserCalories, r.UserProtein, r.UserCarbs, r.UserFat
	e.NeedsAIEstimation = r.NeedsAIEstimation
}

// UserStrings renders the user-supplied values of e back into the string form
// Merge accepts, so an entry can be re-merged with a fresh estimate.
func UserStrings(e models.FoodLogEntry) (calories, protein, carbs, fat string) {
	return format(e.UserCalories), format(e.UserProtein), format(e.UserCarbs), format(e.UserFat)
}

func parseField(name, raw string, errs *[]string) *float64 {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		*errs = append(*errs, fmt.Sprintf("%s must be a valid number", name))
		return nil
	}
	if v < 0 {
		*errs = append(*errs, fmt.Sprintf("%s cannot be negative", name))
		return nil
	}
	if v > MaxValue {
		*errs = append(*errs, fmt.Sprintf("%s value seems too high (max 10,000)", name))
		return nil
	}
	return &v
}

func pick(user, ai *float64) float64 {
	switch {
	case user != nil:
		return *user
	case ai != nil:
		return *ai
	default:
		return 0
	}
}

func format(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
