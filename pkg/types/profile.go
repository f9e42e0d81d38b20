package types

import "fmt"

// NetworkProfile is one test condition: the impairment parameters applied to
// the interface while a batch of samples is taken. The zero value means "no
// impairment".
type NetworkProfile struct {
	DelayMs       uint `json:"delay" yaml:"delay"`
	LossPercent   uint `json:"loss" yaml:"loss"`
	BandwidthMbps uint `json:"bandwidth" yaml:"bandwidth"` // 0 = unlimited
}

// Equal reports structural equality.
func (p NetworkProfile) Equal(other NetworkProfile) bool {
	return p == other
}

// IsZero reports whether the profile carries no impairment at all.
func (p NetworkProfile) IsZero() bool {
	return p == NetworkProfile{}
}

func (p NetworkProfile) String() string {
	if p.BandwidthMbps > 0 {
		return fmt.Sprintf("delay=%dms loss=%d%% bw=%dmbps", p.DelayMs, p.LossPercent, p.BandwidthMbps)
	}
	return fmt.Sprintf("delay=%dms loss=%d%%", p.DelayMs, p.LossPercent)
}

// Validate checks the parameter ranges before any interface mutation.
func (p NetworkProfile) Validate() error {
	if p.LossPercent > 100 {
		return fmt.Errorf("loss percent %d out of range 0-100", p.LossPercent)
	}
	return nil
}

// ImpairmentState is the control service's view of the interface. Active is
// nil while no profile is applied (the Unset state).
type ImpairmentState struct {
	Interface string          `json:"interface"`
	Active    *NetworkProfile `json:"active,omitempty"`
}

// Applied reports whether a profile is currently applied.
func (s ImpairmentState) Applied() bool {
	return s.Active != nil
}

// Profile returns the active profile, or the zero profile when Unset.
func (s ImpairmentState) Profile() NetworkProfile {
	if s.Active == nil {
		return NetworkProfile{}
	}
	return *s.Active
}
