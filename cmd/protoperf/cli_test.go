package main

import (
	"errors"
	"flag"
	"testing"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantErr  bool
		check    func(*testing.T, *cliConfig)
	}{
		{
			name: "plan with overrides",
			args: []string{"-plan", "plan.yaml", "-control-url", "http://host:8080", "-o", "out", "-v"},
			check: func(t *testing.T, cfg *cliConfig) {
				if cfg.PlanPath != "plan.yaml" {
					t.Errorf("PlanPath = %q", cfg.PlanPath)
				}
				if cfg.ControlURL != "http://host:8080" {
					t.Errorf("ControlURL = %q", cfg.ControlURL)
				}
				if cfg.OutputDir != "out" || !cfg.Verbose {
					t.Errorf("OutputDir = %q, Verbose = %v", cfg.OutputDir, cfg.Verbose)
				}
			},
		},
		{
			name: "short plan flag",
			args: []string{"-f", "plan.yaml"},
			check: func(t *testing.T, cfg *cliConfig) {
				if cfg.PlanPath != "plan.yaml" {
					t.Errorf("PlanPath = %q", cfg.PlanPath)
				}
			},
		},
		{
			name:     "missing plan",
			args:     []string{"-json"},
			wantCode: exitUsage,
			wantErr:  true,
		},
		{
			name:     "json and plain conflict",
			args:     []string{"-plan", "plan.yaml", "-json", "-plain"},
			wantCode: exitUsage,
			wantErr:  true,
		},
		{
			name:     "unknown flag",
			args:     []string{"-bogus"},
			wantCode: exitUsage,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, code, err := parseFlags(tt.args, "test")
			if tt.wantErr {
				if err == nil {
					t.Fatal("parseFlags() error = nil, want error")
				}
				if code != tt.wantCode {
					t.Errorf("code = %d, want %d", code, tt.wantCode)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseFlags() error = %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestParseFlagsVersionAndHelp(t *testing.T) {
	for _, args := range [][]string{{"-version"}, {"-help"}, {"-h"}} {
		cfg, code, err := parseFlags(args, "test")
		if !errors.Is(err, flag.ErrHelp) {
			t.Errorf("parseFlags(%v) error = %v, want flag.ErrHelp", args, err)
		}
		if cfg != nil || code != exitOK {
			t.Errorf("parseFlags(%v) = %v, %d; want nil config and exitOK", args, cfg, code)
		}
	}
}
