package types

import "time"

// LatencySample is a single timed request outcome. Samples are never mutated
// after creation; the sampler produces them and the statistics engine is the
// only consumer.
type LatencySample struct {
	TimestampUnixNanos int64         `json:"timestamp_unix_nanos"`
	Success            bool          `json:"success"`
	Latency            time.Duration `json:"latency_nanos"`
}

// NewSample records a completed request.
func NewSample(success bool, latency time.Duration) LatencySample {
	return LatencySample{
		TimestampUnixNanos: time.Now().UnixNano(),
		Success:            success,
		Latency:            latency,
	}
}

// ExperimentPlan is the ordered set of network profiles and shared phase
// parameters defining one full run. It is built once from configuration and
// not modified afterwards.
type ExperimentPlan struct {
	Profiles            []NetworkProfile
	Protocols           []ProtocolTarget
	WarmupRequests      int
	MeasurementRequests int
	PerRequestTimeout   time.Duration
	StabilizationDelay  time.Duration
	AbortFailureRatio   float64
	OutlierMultiplier   float64
	OutlierFloor        time.Duration
}

// ProtocolTarget names one protocol under test and the endpoint its sampler
// measures.
type ProtocolTarget struct {
	Name     string
	Endpoint string
}
