package types

import "time"

// Statistics is the outlier-robust summary of one measurement batch. All
// duration fields describe the retained (post-filter) successful samples.
// When SuccessCount is zero every duration field is zero and NoData reports
// true; callers must consult it before interpreting the numbers.
type Statistics struct {
	Count        int           `json:"count"`
	SuccessCount int           `json:"successes"`
	FailureCount int           `json:"failures"`
	Min          time.Duration `json:"min_ns"`
	Max          time.Duration `json:"max_ns"`
	Mean         time.Duration `json:"mean_ns"`
	Median       time.Duration `json:"median_ns"`
	P95          time.Duration `json:"p95_ns"`
	P99          time.Duration `json:"p99_ns"`
	StdDev       time.Duration `json:"stddev_ns"`
	Filtered     bool          `json:"filtered"`
}

// NoData reports whether the batch had no successful samples, in which case
// the duration fields are meaningless zeros.
func (s Statistics) NoData() bool {
	return s.SuccessCount == 0
}

// MinMs and friends convert for reporting; the sink's row schema is in
// milliseconds.
func (s Statistics) MinMs() float64    { return durationMs(s.Min) }
func (s Statistics) MaxMs() float64    { return durationMs(s.Max) }
func (s Statistics) MeanMs() float64   { return durationMs(s.Mean) }
func (s Statistics) MedianMs() float64 { return durationMs(s.Median) }
func (s Statistics) P95Ms() float64    { return durationMs(s.P95) }
func (s Statistics) P99Ms() float64    { return durationMs(s.P99) }

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
