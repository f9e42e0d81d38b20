package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/netforge/protoperf/internal/config"
	"github.com/netforge/protoperf/internal/control"
	"github.com/netforge/protoperf/internal/logging"
	"github.com/netforge/protoperf/internal/orchestrator"
	"github.com/netforge/protoperf/internal/results"
)

const version = "1.0.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, code, err := parseFlags(args, version)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return code
	}

	switch {
	case cfg.Quiet:
		logging.Init(logging.LevelError)
	case cfg.Verbose:
		logging.Init(logging.LevelDebug)
	default:
		logging.Init(logging.LevelInfo)
	}
	logger := logging.NewLogger("protoperf")

	planFile, plan, err := config.LoadPlan(cfg.PlanPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitError
	}

	controlURL := planFile.ControlURL
	if cfg.ControlURL != "" {
		controlURL = cfg.ControlURL
	}
	if controlURL == "" {
		fmt.Fprintln(os.Stderr, "Error: no control service URL (set control_url in the plan or pass -control-url)")
		return exitUsage
	}

	client := control.NewClient(controlURL)
	healthCtx, healthCancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = client.Health(healthCtx)
	healthCancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: control service at %s is not reachable: %v\n", controlURL, err)
		return exitError
	}

	runID := uuid.New().String()[:8]
	logger.Info("starting experiment run",
		logging.F("run_id", runID),
		logging.F("control_url", controlURL),
		logging.F("profiles", len(plan.Profiles)),
		logging.F("protocols", len(plan.Protocols)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink := results.NewSink()
	orch := orchestrator.New(plan, client, sink,
		orchestrator.WithRawSamples(planFile.KeepRaw))

	runErr := orch.Run(ctx)
	if runErr != nil {
		logger.Error("run failed", logging.F("error", runErr))
	}

	// Whatever rows exist are still worth keeping, aborted run or not.
	if len(sink.Rows()) > 0 {
		if code := persistResults(cfg, planFile, sink, runID, logger); code != exitOK {
			return code
		}
		if err := printResults(sink, plan, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitError
		}
	}

	if runErr != nil {
		return exitError
	}
	if orch.Phase() == orchestrator.PhaseAborted {
		logger.Warn("run aborted before completion", logging.F("run_id", runID))
		return exitError
	}
	return exitOK
}

func persistResults(cfg *cliConfig, planFile *config.PlanFile, sink *results.Sink, runID string, logger *logging.Logger) int {
	outputDir := planFile.OutputDir
	if cfg.OutputDir != "" {
		outputDir = cfg.OutputDir
	}
	if outputDir != "" {
		if err := results.WriteFiles(sink, outputDir, runID); err != nil {
			fmt.Fprintf(os.Stderr, "Error: writing result files: %v\n", err)
			return exitError
		}
		logger.Info("result files written",
			logging.F("dir", outputDir), logging.F("run_id", runID))
	}

	if planFile.SQLitePath != "" {
		store, err := results.OpenStore(planFile.SQLitePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: opening result store: %v\n", err)
			return exitError
		}
		defer store.Close()
		if err := store.SaveRun(runID, sink.Rows()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: saving run to store: %v\n", err)
			return exitError
		}
		logger.Info("run saved to store",
			logging.F("path", planFile.SQLitePath), logging.F("run_id", runID))
	}
	return exitOK
}
