// File: internal/memory/types.go
package memory

import (
	"math"
	"time"
)

// Phase tags when in a scenario a snapshot was captured.
type Phase string

const (
	PhaseBaseline   Phase = "baseline"
	PhaseDuring     Phase = "during"
	PhaseFinal      Phase = "final"
	PhaseNavigation Phase = "navigation"
)

// Sample is a single point-in-time reading of the page's JavaScript heap.
// Immutable once produced. Invariant: UsedBytes <= TotalBytes <= LimitBytes.
type Sample struct {
	UsedBytes  uint64    `json:"usedHeapBytes"`
	TotalBytes uint64    `json:"totalHeapBytes"`
	LimitBytes uint64    `json:"heapLimitBytes"`
	CapturedAt time.Time `json:"timestamp"`
}

// UsedMB returns the used heap in megabytes, rounded to two decimals.
func (s Sample) UsedMB() float64 {
	return BytesToMB(s.UsedBytes)
}

// Snapshot is a Sample tagged with its capture context within a scenario.
type Snapshot struct {
	Sample
	Phase     Phase  `json:"phase"`
	Iteration int    `json:"iteration,omitempty"`
	Route     string `json:"route,omitempty"`
}

// Severity is a coarse classification of total memory growth.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severity band lower bounds in megabytes, inclusive.
const (
	mediumGrowthMB   = 20.0
	highGrowthMB     = 50.0
	criticalGrowthMB = 100.0
)

// ClassifySeverity maps total growth in MB onto a severity band. Band lower
// bounds are inclusive: exactly 50 MB is high, exactly 100 MB is critical.
func ClassifySeverity(totalGrowthMB float64) Severity {
	switch {
	case totalGrowthMB >= criticalGrowthMB:
		return SeverityCritical
	case totalGrowthMB >= highGrowthMB:
		return SeverityHigh
	case totalGrowthMB >= mediumGrowthMB:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// ActionResult describes heap behavior around one monitored action.
// Created once per monitored action; immutable after creation.
type ActionResult struct {
	InitialMemoryMB float64       `json:"initialMemoryMB"`
	FinalMemoryMB   float64       `json:"finalMemoryMB"`
	PeakMemoryMB    float64       `json:"peakMemoryMB"`
	MemoryGrowthMB  float64       `json:"memoryGrowthMB"`
	AvgDuringMB     float64       `json:"avgMemoryDuringActionMB"`
	ActionDuration  time.Duration `json:"actionDurationMs"`
	Snapshots       []Snapshot    `json:"snapshots"`
	Summary         string        `json:"summary"`

	// ActionErr carries the monitored action's failure, if any. The memory
	// figures above remain valid: they describe the heap at time of failure.
	ActionErr error `json:"-"`
}

// LeakResult describes cumulative memory growth across a navigation sweep.
type LeakResult struct {
	BaselineMemoryMB          float64    `json:"baselineMemoryMB"`
	FinalMemoryMB             float64    `json:"finalMemoryMB"`
	TotalGrowthMB             float64    `json:"totalGrowthMB"`
	GrowthBetweenIterationsMB float64    `json:"growthBetweenIterationsMB"`
	Iterations                int        `json:"iterations"`
	RoutesTested              []string   `json:"routesTested"`
	Passed                    bool       `json:"passed"`
	Severity                  Severity   `json:"severityLevel"`
	AvgMemoryPerIteration     []float64  `json:"avgMemoryPerIteration"`
	Snapshots                 []Snapshot `json:"snapshots"`
}

// BytesToMB converts a byte count to megabytes rounded to two decimals.
func BytesToMB(b uint64) float64 {
	return RoundMB(float64(b) / (1024 * 1024))
}

// RoundMB rounds a megabyte figure to two decimals, the precision all
// reported memory numbers carry.
func RoundMB(mb float64) float64 {
	return math.Round(mb*100) / 100
}
