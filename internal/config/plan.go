package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/netforge/protoperf/pkg/types"
)

// PlanFile is the YAML description of one experiment run: which profiles to
// sweep, which protocols to compare, and the shared phase parameters.
type PlanFile struct {
	ControlURL string `yaml:"control_url"`

	Profiles []ProfileEntry  `yaml:"profiles"`
	Targets  []ProtocolEntry `yaml:"protocols"`

	WarmupRequests      int     `yaml:"warmup_requests"`
	MeasurementRequests int     `yaml:"measurement_requests"`
	PerRequestTimeout   string  `yaml:"per_request_timeout"`
	StabilizationDelay  string  `yaml:"stabilization_delay"`
	AbortFailureRatio   float64 `yaml:"abort_failure_ratio"`

	// Outlier policy. The multiplier and floor are policy knobs, not
	// derived constants, so they are configurable rather than hard-coded.
	OutlierMultiplier float64 `yaml:"outlier_multiplier"`
	OutlierFloor      string  `yaml:"outlier_floor"`

	OutputDir  string `yaml:"output_dir"`
	SQLitePath string `yaml:"sqlite_path"`
	KeepRaw    bool   `yaml:"keep_raw_samples"`
}

type ProfileEntry struct {
	Delay     uint `yaml:"delay"`
	Loss      uint `yaml:"loss"`
	Bandwidth uint `yaml:"bandwidth"`
}

type ProtocolEntry struct {
	Name     string `yaml:"name"`
	Endpoint string `yaml:"endpoint"`
}

const (
	defaultWarmupRequests      = 10
	defaultMeasurementRequests = 100
	defaultPerRequestTimeout   = 30 * time.Second
	defaultStabilizationDelay  = 5 * time.Second
	defaultAbortFailureRatio   = 0.5
	defaultOutlierMultiplier   = 3.0
	defaultOutlierFloor        = 10 * time.Millisecond
)

// LoadPlan reads and validates a plan file, returning the immutable
// ExperimentPlan the orchestrator consumes plus run-level settings.
func LoadPlan(path string) (*PlanFile, *types.ExperimentPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read plan file: %w", err)
	}
	return ParsePlan(data)
}

// ParsePlan builds a plan from raw YAML. Split out from LoadPlan for tests.
func ParsePlan(data []byte) (*PlanFile, *types.ExperimentPlan, error) {
	var pf PlanFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, nil, fmt.Errorf("parse plan file: %w", err)
	}

	plan, err := pf.build()
	if err != nil {
		return nil, nil, err
	}
	return &pf, plan, nil
}

func (pf *PlanFile) build() (*types.ExperimentPlan, error) {
	if len(pf.Profiles) == 0 {
		return nil, fmt.Errorf("plan defines no network profiles")
	}
	if len(pf.Targets) == 0 {
		return nil, fmt.Errorf("plan defines no protocols")
	}

	plan := &types.ExperimentPlan{
		WarmupRequests:      defaultWarmupRequests,
		MeasurementRequests: defaultMeasurementRequests,
		PerRequestTimeout:   defaultPerRequestTimeout,
		StabilizationDelay:  defaultStabilizationDelay,
		AbortFailureRatio:   defaultAbortFailureRatio,
		OutlierMultiplier:   defaultOutlierMultiplier,
		OutlierFloor:        defaultOutlierFloor,
	}

	for i, p := range pf.Profiles {
		profile := types.NetworkProfile{
			DelayMs:       p.Delay,
			LossPercent:   p.Loss,
			BandwidthMbps: p.Bandwidth,
		}
		if err := profile.Validate(); err != nil {
			return nil, fmt.Errorf("profile %d: %w", i, err)
		}
		plan.Profiles = append(plan.Profiles, profile)
	}

	seen := make(map[string]bool)
	for i, t := range pf.Targets {
		if t.Name == "" {
			return nil, fmt.Errorf("protocol %d: name cannot be empty", i)
		}
		if t.Endpoint == "" {
			return nil, fmt.Errorf("protocol %q: endpoint cannot be empty", t.Name)
		}
		if seen[t.Name] {
			return nil, fmt.Errorf("protocol %q listed twice", t.Name)
		}
		seen[t.Name] = true
		plan.Protocols = append(plan.Protocols, types.ProtocolTarget{
			Name:     t.Name,
			Endpoint: t.Endpoint,
		})
	}

	if pf.WarmupRequests < 0 {
		return nil, fmt.Errorf("warmup_requests cannot be negative")
	}
	if pf.WarmupRequests > 0 {
		plan.WarmupRequests = pf.WarmupRequests
	}
	if pf.MeasurementRequests < 0 {
		return nil, fmt.Errorf("measurement_requests cannot be negative")
	}
	if pf.MeasurementRequests > 0 {
		plan.MeasurementRequests = pf.MeasurementRequests
	}

	var err error
	if plan.PerRequestTimeout, err = parsePositive("per_request_timeout", pf.PerRequestTimeout, defaultPerRequestTimeout); err != nil {
		return nil, err
	}
	if plan.StabilizationDelay, err = parseNonNegative("stabilization_delay", pf.StabilizationDelay, defaultStabilizationDelay); err != nil {
		return nil, err
	}
	if plan.OutlierFloor, err = parsePositive("outlier_floor", pf.OutlierFloor, defaultOutlierFloor); err != nil {
		return nil, err
	}

	if pf.AbortFailureRatio < 0 || pf.AbortFailureRatio > 1 {
		return nil, fmt.Errorf("abort_failure_ratio %v out of range 0-1", pf.AbortFailureRatio)
	}
	if pf.AbortFailureRatio > 0 {
		plan.AbortFailureRatio = pf.AbortFailureRatio
	}
	if pf.OutlierMultiplier < 0 {
		return nil, fmt.Errorf("outlier_multiplier cannot be negative")
	}
	if pf.OutlierMultiplier > 0 {
		plan.OutlierMultiplier = pf.OutlierMultiplier
	}

	return plan, nil
}

func parsePositive(name, value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive duration (e.g. 30s)", name, value)
	}
	return d, nil
}

func parseNonNegative(name, value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a duration (e.g. 5s)", name, value)
	}
	return d, nil
}
