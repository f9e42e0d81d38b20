package types

// ProtocolRunResult is the outcome of one (profile, protocol) measurement
// phase. Created by the orchestrator after aggregation and immutable
// thereafter.
type ProtocolRunResult struct {
	Profile      NetworkProfile  `json:"profile"`
	ProtocolName string          `json:"protocol"`
	RawSamples   []LatencySample `json:"raw_samples,omitempty"`
	Stats        Statistics      `json:"stats"`

	// Degraded marks a phase that ended early because the running failure
	// ratio exceeded the plan's abort threshold; the partial data is still
	// reported. Missing marks a condition whose profile could not be applied
	// at all, so the result carries zero samples.
	Degraded bool `json:"degraded,omitempty"`
	Missing  bool `json:"missing,omitempty"`
}

// ResultRow is the flat record the sink exposes to downstream reporting.
// One row per condition x protocol; this schema is the full boundary to the
// excluded graphing/report tooling.
type ResultRow struct {
	Protocol      string  `json:"protocol"`
	DelayMs       uint    `json:"delay_ms"`
	LossPercent   uint    `json:"loss_percent"`
	BandwidthMbps uint    `json:"bandwidth_mbps"`
	Requests      int     `json:"requests"`
	Successes     int     `json:"successes"`
	Failures      int     `json:"failures"`
	MinMs         float64 `json:"min_ms"`
	MaxMs         float64 `json:"max_ms"`
	MeanMs        float64 `json:"mean_ms"`
	MedianMs      float64 `json:"median_ms"`
	P95Ms         float64 `json:"p95_ms"`
	P99Ms         float64 `json:"p99_ms"`
	Filtered      bool    `json:"filtered"`
	Degraded      bool    `json:"degraded,omitempty"`
	Missing       bool    `json:"missing,omitempty"`
}

// Comparison relates two protocols measured under the same profile.
// MeanRatio is (B.mean - A.mean) / A.mean, so positive values mean B was
// slower; P95Ratio is the analogous ratio for p95.
type Comparison struct {
	Profile   NetworkProfile `json:"profile"`
	ProtocolA string         `json:"protocol_a"`
	ProtocolB string         `json:"protocol_b"`
	MeanRatio float64        `json:"mean_ratio"`
	P95Ratio  float64        `json:"p95_ratio"`
}
