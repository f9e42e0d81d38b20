package main

import (
	"flag"
	"fmt"
	"os"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

type cliConfig struct {
	PlanPath   string
	ControlURL string
	OutputDir  string
	JSON       bool
	Plain      bool
	Verbose    bool
	Quiet      bool
}

func parseFlags(args []string, version string) (*cliConfig, int, error) {
	cfg := &cliConfig{}

	flagSet := flag.NewFlagSet("protoperf", flag.ContinueOnError)
	flagSet.SetOutput(os.Stdout)
	flagSet.StringVar(&cfg.PlanPath, "plan", "", "Path to the experiment plan YAML")
	flagSet.StringVar(&cfg.PlanPath, "f", "", "Path to the experiment plan YAML (short)")
	flagSet.StringVar(&cfg.ControlURL, "control-url", "", "Control service URL (overrides plan)")
	flagSet.StringVar(&cfg.OutputDir, "output", "", "Results output directory (overrides plan)")
	flagSet.StringVar(&cfg.OutputDir, "o", "", "Results output directory (short)")
	flagSet.BoolVar(&cfg.JSON, "json", false, "Output results as JSON")
	flagSet.BoolVar(&cfg.Plain, "plain", false, "Plain text output")
	flagSet.BoolVar(&cfg.Verbose, "verbose", false, "Verbose output")
	flagSet.BoolVar(&cfg.Verbose, "v", false, "Verbose output (short)")
	flagSet.BoolVar(&cfg.Quiet, "quiet", false, "Quiet mode (errors only)")
	flagSet.BoolVar(&cfg.Quiet, "q", false, "Quiet mode (errors only) (short)")

	versionFlag := flagSet.Bool("version", false, "Print version")
	help := flagSet.Bool("help", false, "Show help")
	flagSet.BoolVar(help, "h", false, "Show help (short)")

	if err := flagSet.Parse(args); err != nil {
		return nil, exitUsage, err
	}

	if *versionFlag {
		fmt.Printf("protoperf %s\n", version)
		return nil, exitOK, flag.ErrHelp
	}
	if *help {
		flagSet.Usage()
		return nil, exitOK, flag.ErrHelp
	}

	if cfg.PlanPath == "" {
		flagSet.Usage()
		return nil, exitUsage, fmt.Errorf("a plan file is required (-plan)")
	}
	if cfg.JSON && cfg.Plain {
		return nil, exitUsage, fmt.Errorf("-json and -plain are mutually exclusive")
	}
	return cfg, exitOK, nil
}
