package alert

import (
	"slices"
	"sort"
)

var DefaultThresholds = []int{50, 70, 90, 100}

// Evaluator maps a consecutive failure count onto the configured threshold
// percentages of the disable limit.
type Evaluator struct {
	limit      int
	thresholds []int
}

func NewEvaluator(limit int, thresholds []int) *Evaluator {
	if len(thresholds) == 0 {
		thresholds = DefaultThresholds
	}
	thresholds = slices.Clone(thresholds)
	sort.Ints(thresholds)
	return &Evaluator{limit: limit, thresholds: thresholds}
}

// Level returns the threshold percentage the failure count lands on exactly,
// so each threshold fires once per failure streak.
func (e *Evaluator) Level(failures int64) (int, bool) {
	for _, threshold := range e.thresholds {
		failuresForThreshold := (int64(e.limit) * int64(threshold)) / 100
		if failuresForThreshold > 0 && failures == failuresForThreshold {
			return threshold, true
		}
	}
	return 0, false
}
