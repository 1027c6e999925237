// File: internal/audit/thresholds.go
package audit

import "sort"

// Verdict is the pass/fail outcome for one scored category.
type Verdict struct {
	Category  string  `json:"category"`
	Score     float64 `json:"score"`
	Threshold float64 `json:"threshold"`
	Passed    bool    `json:"passed"`
}

// CheckThresholds compares category scores against their thresholds. A
// threshold key with no matching score defaults the score to 0: a missing
// category is a failure, not a skip. Pure function; verdicts are ordered by
// category name so output is deterministic.
func CheckThresholds(scores, thresholds map[string]float64) ([]Verdict, bool) {
	categories := make([]string, 0, len(thresholds))
	for category := range thresholds {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	verdicts := make([]Verdict, 0, len(categories))
	allPassed := true
	for _, category := range categories {
		score := scores[category]
		threshold := thresholds[category]
		passed := score >= threshold
		if !passed {
			allPassed = false
		}
		verdicts = append(verdicts, Verdict{
			Category:  category,
			Score:     score,
			Threshold: threshold,
			Passed:    passed,
		})
	}

	return verdicts, allPassed
}
