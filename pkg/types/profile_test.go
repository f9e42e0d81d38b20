package types_test

import (
	"testing"

	"github.com/netforge/protoperf/pkg/types"
)

func TestNetworkProfileValidate(t *testing.T) {
	tests := []struct {
		name    string
		profile types.NetworkProfile
		wantErr bool
	}{
		{"zero profile", types.NetworkProfile{}, false},
		{"typical", types.NetworkProfile{DelayMs: 50, LossPercent: 3, BandwidthMbps: 10}, false},
		{"loss at boundary", types.NetworkProfile{LossPercent: 100}, false},
		{"loss over 100", types.NetworkProfile{LossPercent: 101}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.profile.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNetworkProfileString(t *testing.T) {
	tests := []struct {
		profile types.NetworkProfile
		want    string
	}{
		{types.NetworkProfile{DelayMs: 50, LossPercent: 1}, "delay=50ms loss=1%"},
		{types.NetworkProfile{DelayMs: 50, LossPercent: 1, BandwidthMbps: 10}, "delay=50ms loss=1% bw=10mbps"},
		{types.NetworkProfile{}, "delay=0ms loss=0%"},
	}
	for _, tt := range tests {
		if got := tt.profile.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestImpairmentState(t *testing.T) {
	unset := types.ImpairmentState{Interface: "eth0"}
	if unset.Applied() {
		t.Error("Applied() = true for unset state")
	}
	if !unset.Profile().IsZero() {
		t.Errorf("Profile() = %v for unset state, want zero", unset.Profile())
	}

	active := types.NetworkProfile{DelayMs: 100}
	applied := types.ImpairmentState{Interface: "eth0", Active: &active}
	if !applied.Applied() {
		t.Error("Applied() = false with active profile")
	}
	if !applied.Profile().Equal(active) {
		t.Errorf("Profile() = %v, want %v", applied.Profile(), active)
	}
}
