// Package stats turns a batch of latency samples into an outlier-robust
// summary. The filter is deliberately two-pass: a raw pass whose mean sets
// the outlier threshold, then a filtered pass that produces the reported
// numbers. Computing percentiles in one streaming pass would lose the
// threshold's dependence on the raw mean.
package stats

import (
	"sort"
	"time"

	mstats "github.com/montanaflynn/stats"

	"github.com/netforge/protoperf/pkg/types"
)

const (
	// DefaultOutlierMultiplier and DefaultOutlierFloor are policy knobs,
	// not derived constants; the plan file can override them.
	DefaultOutlierMultiplier = 3.0
	DefaultOutlierFloor      = 10 * time.Millisecond
)

// Engine computes Statistics for measurement batches.
type Engine struct {
	multiplier float64
	floor      time.Duration
}

func NewEngine(multiplier float64, floor time.Duration) *Engine {
	if multiplier <= 0 {
		multiplier = DefaultOutlierMultiplier
	}
	if floor <= 0 {
		floor = DefaultOutlierFloor
	}
	return &Engine{multiplier: multiplier, floor: floor}
}

// Summarize produces the Statistics for one batch. Failed samples count
// toward FailureCount only; all duration fields describe successful samples
// after outlier filtering.
func (e *Engine) Summarize(samples []types.LatencySample) types.Statistics {
	var latencies []time.Duration
	failures := 0
	for _, s := range samples {
		if s.Success {
			latencies = append(latencies, s.Latency)
		} else {
			failures++
		}
	}

	result := types.Statistics{
		Count:        len(samples),
		SuccessCount: len(latencies),
		FailureCount: failures,
	}
	if len(latencies) == 0 {
		return result
	}

	rawMean := mean(latencies)

	threshold := time.Duration(float64(rawMean) * e.multiplier)
	if threshold < e.floor {
		threshold = e.floor
	}

	retained := make([]time.Duration, 0, len(latencies))
	for _, l := range latencies {
		if l <= threshold {
			retained = append(retained, l)
		}
	}

	// The filter must never discard the majority of legitimate data. When
	// it would, fall back to the full successful set.
	filtered := len(retained) < len(latencies)
	if len(retained) < (len(latencies)+1)/2 {
		retained = latencies
		filtered = false
	}

	sorted := make([]time.Duration, len(retained))
	copy(sorted, retained)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	result.Min = sorted[0]
	result.Max = sorted[len(sorted)-1]
	result.Mean = mean(sorted)
	result.Median = sorted[(len(sorted)-1)/2] // lower middle for even counts
	result.P95 = percentile(sorted, 0.95)
	result.P99 = percentile(sorted, 0.99)
	result.StdDev = stddev(sorted)
	result.Filtered = filtered
	return result
}

func mean(latencies []time.Duration) time.Duration {
	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	return sum / time.Duration(len(latencies))
}

// percentile indexes the sorted set at floor(count * p), clamped to the last
// valid index.
func percentile(sorted []time.Duration, p float64) time.Duration {
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func stddev(latencies []time.Duration) time.Duration {
	if len(latencies) < 2 {
		return 0
	}
	values := make(mstats.Float64Data, len(latencies))
	for i, l := range latencies {
		values[i] = float64(l)
	}
	sd, err := mstats.StandardDeviation(values)
	if err != nil {
		return 0
	}
	return time.Duration(sd)
}
