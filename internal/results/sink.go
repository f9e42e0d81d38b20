// Package results collects completed run results into an append-only row
// sequence; this row schema is the entire boundary to downstream report and
// graph tooling.
package results

import (
	"fmt"
	"sync"

	"github.com/netforge/protoperf/pkg/types"
)

// Sink accepts ProtocolRunResult values in arrival order. Rows are
// append-only; nothing is ever edited after Append returns.
type Sink struct {
	mu      sync.RWMutex
	results []types.ProtocolRunResult
	rows    []types.ResultRow
}

func NewSink() *Sink {
	return &Sink{}
}

func (s *Sink) Append(result types.ProtocolRunResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
	s.rows = append(s.rows, rowFromResult(result))
}

// Rows returns a copy of the row sequence in arrival order.
func (s *Sink) Rows() []types.ResultRow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := make([]types.ResultRow, len(s.rows))
	copy(rows, s.rows)
	return rows
}

// Results returns a copy of the full result values, raw samples included.
func (s *Sink) Results() []types.ProtocolRunResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	results := make([]types.ProtocolRunResult, len(s.results))
	copy(results, s.results)
	return results
}

// Compare relates protocols a and b under every profile both were measured
// on: (b.mean - a.mean) / a.mean and the analogous p95 ratio. Profiles where
// either side has no data are skipped.
func (s *Sink) Compare(a, b string) ([]types.Comparison, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byProfile := make(map[types.NetworkProfile]map[string]types.Statistics)
	var order []types.NetworkProfile
	for _, r := range s.results {
		if _, ok := byProfile[r.Profile]; !ok {
			byProfile[r.Profile] = make(map[string]types.Statistics)
			order = append(order, r.Profile)
		}
		byProfile[r.Profile][r.ProtocolName] = r.Stats
	}

	var comparisons []types.Comparison
	for _, profile := range order {
		statsA, okA := byProfile[profile][a]
		statsB, okB := byProfile[profile][b]
		if !okA || !okB {
			continue
		}
		if statsA.NoData() || statsB.NoData() {
			continue
		}
		comparisons = append(comparisons, types.Comparison{
			Profile:   profile,
			ProtocolA: a,
			ProtocolB: b,
			MeanRatio: ratio(statsA.Mean.Seconds(), statsB.Mean.Seconds()),
			P95Ratio:  ratio(statsA.P95.Seconds(), statsB.P95.Seconds()),
		})
	}
	if len(comparisons) == 0 {
		return nil, fmt.Errorf("no shared profiles with data for %q and %q", a, b)
	}
	return comparisons, nil
}

func ratio(a, b float64) float64 {
	if a == 0 {
		return 0
	}
	return (b - a) / a
}

func rowFromResult(r types.ProtocolRunResult) types.ResultRow {
	return types.ResultRow{
		Protocol:      r.ProtocolName,
		DelayMs:       r.Profile.DelayMs,
		LossPercent:   r.Profile.LossPercent,
		BandwidthMbps: r.Profile.BandwidthMbps,
		Requests:      r.Stats.Count,
		Successes:     r.Stats.SuccessCount,
		Failures:      r.Stats.FailureCount,
		MinMs:         r.Stats.MinMs(),
		MaxMs:         r.Stats.MaxMs(),
		MeanMs:        r.Stats.MeanMs(),
		MedianMs:      r.Stats.MedianMs(),
		P95Ms:         r.Stats.P95Ms(),
		P99Ms:         r.Stats.P99Ms(),
		Filtered:      r.Stats.Filtered,
		Degraded:      r.Degraded,
		Missing:       r.Missing,
	}
}
