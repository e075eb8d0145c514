package reconcile

import (
	"strings"

	"gainslog/internal/models"
)

// DefaultLowConfidenceThreshold marks an estimate as weak enough to redo when
// an edit leaves nutrition incomplete.
const DefaultLowConfidenceThreshold = 50

// Policy decides when an edit goes back to the estimation service.
type Policy struct {
	LowConfidenceThreshold int
}

func DefaultPolicy() Policy {
	return Policy{LowConfidenceThreshold: DefaultLowConfidenceThreshold}
}

// ShouldReestimate reports whether next, the edited version of prev, needs a
// fresh estimate: the title or description text changed, or nutrition is
// still incomplete and prev's confidence is low. A numeric correction on a
// confident entry never does.
func (p Policy) ShouldReestimate(prev, next models.FoodLogEntry, incomplete bool) bool {
	if textChanged(prev, next) {
		return true
	}
	return incomplete && prev.EstimationConfidence < p.LowConfidenceThreshold
}

func textChanged(prev, next models.FoodLogEntry) bool {
	return strings.TrimSpace(prev.UserTitle) != strings.TrimSpace(next.UserTitle) ||
		strings.TrimSpace(prev.UserDescription) != strings.TrimSpace(next.UserDescription)
}
