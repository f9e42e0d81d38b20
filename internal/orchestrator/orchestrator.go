// Package orchestrator drives an experiment plan end to end: applying each
// network profile through the control plane, sampling every protocol under
// it, and aggregating the batches into results.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/netforge/protoperf/internal/control"
	"github.com/netforge/protoperf/internal/logging"
	"github.com/netforge/protoperf/internal/results"
	"github.com/netforge/protoperf/internal/sampler"
	"github.com/netforge/protoperf/internal/stats"
	"github.com/netforge/protoperf/pkg/errors"
	"github.com/netforge/protoperf/pkg/types"
)

// Phase names the orchestrator's position in the run state machine.
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseApplyingProfile Phase = "applying_profile"
	PhaseStabilizing     Phase = "stabilizing"
	PhaseWarmup          Phase = "warmup"
	PhaseMeasuring       Phase = "measuring"
	PhaseAggregating     Phase = "aggregating"
	PhaseCleaning        Phase = "cleaning"
	PhaseDone            Phase = "done"
	PhaseAborted         Phase = "aborted"
)

const (
	// defaultGracePeriod bounds how long an in-flight sample may run after
	// cancellation before its context is cut. Killing requests mid-flight
	// leaks half-open connections, so they get a short window to finish.
	defaultGracePeriod = 5 * time.Second

	// minSamplesBeforeAbort keeps the running failure-ratio check from
	// tripping on the first couple of requests of a phase.
	minSamplesBeforeAbort = 10

	progressEvery = 100
)

// SamplerFactory builds the sampler for one protocol target. Swappable for
// tests.
type SamplerFactory func(target types.ProtocolTarget, timeout time.Duration) (sampler.Sampler, error)

// Orchestrator runs one experiment plan. A single coordinating goroutine
// drives it; the plan and collaborators are fixed at construction.
type Orchestrator struct {
	plan        *types.ExperimentPlan
	controller  control.ControlPlane
	sink        *results.Sink
	engine      *stats.Engine
	newSampler  SamplerFactory
	logger      *logging.Logger
	gracePeriod time.Duration
	keepRaw     bool

	clearOnce sync.Once
	clearErr  error

	mu    sync.RWMutex
	phase Phase
}

type Option func(*Orchestrator)

// WithSamplerFactory replaces the default sampler construction.
func WithSamplerFactory(f SamplerFactory) Option {
	return func(o *Orchestrator) { o.newSampler = f }
}

// WithGracePeriod overrides the cancellation grace period.
func WithGracePeriod(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.gracePeriod = d
		}
	}
}

// WithRawSamples keeps per-request samples on the results instead of
// dropping them after aggregation.
func WithRawSamples(keep bool) Option {
	return func(o *Orchestrator) { o.keepRaw = keep }
}

func New(plan *types.ExperimentPlan, controller control.ControlPlane, sink *results.Sink, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		plan:        plan,
		controller:  controller,
		sink:        sink,
		engine:      stats.NewEngine(plan.OutlierMultiplier, plan.OutlierFloor),
		newSampler:  sampler.New,
		logger:      logging.NewLogger("orchestrator"),
		gracePeriod: defaultGracePeriod,
		phase:       PhaseIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Phase returns the current state machine position.
func (o *Orchestrator) Phase() Phase {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.phase
}

func (o *Orchestrator) setPhase(p Phase) {
	o.mu.Lock()
	o.phase = p
	o.mu.Unlock()
	o.logger.Debug("phase transition", logging.F("phase", string(p)))
}

// Run executes the plan. Cancelling ctx stops new samples immediately,
// gives the in-flight one a bounded grace period, and still performs the
// terminal Clear. Whatever was aggregated before the abort stays in the
// sink. Only a FatalError return means the interface may be left impaired.
func (o *Orchestrator) Run(ctx context.Context) error {
	// Sampling uses its own context so cancellation of the run does not
	// kill the in-flight request outright; it gets the grace period, and
	// the dispatch loops stop starting new samples as soon as ctx is done.
	sampleCtx, stopSampling := context.WithCancel(context.Background())
	defer stopSampling()
	go func() {
		select {
		case <-ctx.Done():
			timer := time.NewTimer(o.gracePeriod)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-sampleCtx.Done():
			}
			stopSampling()
		case <-sampleCtx.Done():
		}
	}()

	aborted := false
	for i, profile := range o.plan.Profiles {
		if ctx.Err() != nil {
			aborted = true
			break
		}

		o.logger.Info("starting condition",
			logging.F("index", i+1),
			logging.F("total", len(o.plan.Profiles)),
			logging.F("profile", profile))

		if err := o.runCondition(ctx, sampleCtx, profile); err != nil {
			if errors.IsFatal(err) {
				o.cleanup()
				return err
			}
			// A misbehaving impairment setting is recoverable by moving
			// on; the condition is reported as missing.
			o.logger.Error("condition failed, skipping",
				logging.F("profile", profile),
				logging.F("error", err))
			o.appendMissing(profile)
		}
	}
	if ctx.Err() != nil {
		aborted = true
	}

	if err := o.cleanup(); err != nil {
		return err
	}

	if aborted {
		o.setPhase(PhaseAborted)
		o.logger.Warn("run aborted, partial results reported",
			logging.F("rows", len(o.sink.Rows())))
	} else {
		o.setPhase(PhaseDone)
		o.logger.Info("run complete", logging.F("rows", len(o.sink.Rows())))
	}
	return nil
}

// runCondition applies one profile and measures every protocol under it.
// On error, protocols measured before the failure have already landed in
// the sink; appendMissing fills in only the rest.
func (o *Orchestrator) runCondition(ctx, sampleCtx context.Context, profile types.NetworkProfile) error {
	o.setPhase(PhaseApplyingProfile)
	if err := o.controller.SetProfile(ctx, profile); err != nil {
		return err
	}

	o.setPhase(PhaseStabilizing)
	if !sleepCtx(ctx, o.plan.StabilizationDelay) {
		return nil // cancelled; cleanup runs from Run
	}

	for _, target := range o.plan.Protocols {
		if ctx.Err() != nil {
			return nil
		}
		if err := o.runProtocol(ctx, sampleCtx, profile, target); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) runProtocol(ctx, sampleCtx context.Context, profile types.NetworkProfile, target types.ProtocolTarget) error {
	s, err := o.newSampler(target, o.plan.PerRequestTimeout)
	if err != nil {
		return errors.ErrConfiguration(fmt.Sprintf("build sampler for %s", target.Name), err)
	}
	defer s.Close()

	o.setPhase(PhaseWarmup)
	o.warmup(ctx, sampleCtx, s)
	if ctx.Err() != nil {
		return nil
	}

	o.setPhase(PhaseMeasuring)
	samples, measureErr := o.measure(ctx, sampleCtx, s, target.Name)
	degraded := measureErr != nil
	if degraded {
		o.logger.Warn("measurement ended early",
			logging.F("protocol", target.Name),
			logging.F("error", measureErr))
	}
	if len(samples) == 0 {
		// Cancelled before the first sample completed; nothing to report.
		return nil
	}

	o.setPhase(PhaseAggregating)
	result := types.ProtocolRunResult{
		Profile:      profile,
		ProtocolName: target.Name,
		Stats:        o.engine.Summarize(samples),
		Degraded:     degraded,
	}
	if o.keepRaw {
		result.RawSamples = samples
	}
	o.sink.Append(result)

	o.logger.Info("protocol measured",
		logging.F("protocol", target.Name),
		logging.F("profile", profile),
		logging.F("successes", result.Stats.SuccessCount),
		logging.F("failures", result.Stats.FailureCount),
		logging.F("mean", result.Stats.Mean),
		logging.F("degraded", degraded))
	return nil
}

// warmup primes connections and congestion state; its samples are
// discarded and its failures never end the phase.
func (o *Orchestrator) warmup(ctx, sampleCtx context.Context, s sampler.Sampler) {
	failures := 0
	for i := 0; i < o.plan.WarmupRequests; i++ {
		if ctx.Err() != nil {
			return
		}
		if sample := s.Sample(sampleCtx); !sample.Success {
			failures++
		}
	}
	if failures > 0 {
		o.logger.Warn("warmup failures",
			logging.F("protocol", s.Name()),
			logging.F("failures", failures),
			logging.F("requests", o.plan.WarmupRequests))
	}
}

// measure issues the measurement requests sequentially, one in flight at a
// time, so every sample is unambiguously attributed to the active profile.
// When the running failure ratio exceeds the plan threshold it ends early
// with an AbortThreshold signal; the partial batch is still returned and
// the caller reports it as degraded.
func (o *Orchestrator) measure(ctx, sampleCtx context.Context, s sampler.Sampler, name string) ([]types.LatencySample, error) {
	samples := make([]types.LatencySample, 0, o.plan.MeasurementRequests)
	failures := 0
	for i := 0; i < o.plan.MeasurementRequests; i++ {
		if ctx.Err() != nil {
			return samples, nil
		}

		sample := s.Sample(sampleCtx)
		samples = append(samples, sample)
		if !sample.Success {
			failures++
		}

		if (i+1)%progressEvery == 0 || i+1 == o.plan.MeasurementRequests {
			o.logger.Info("progress",
				logging.F("protocol", name),
				logging.F("completed", i+1),
				logging.F("total", o.plan.MeasurementRequests),
				logging.F("failures", failures),
				logging.F("latency", sample.Latency))
		}

		issued := len(samples)
		if issued >= minSamplesBeforeAbort &&
			float64(failures)/float64(issued) > o.plan.AbortFailureRatio {
			return samples, errors.ErrAbortThreshold(fmt.Sprintf(
				"%s: %d of %d requests failed, ratio above %.2f",
				name, failures, issued, o.plan.AbortFailureRatio))
		}
	}
	return samples, nil
}

// appendMissing records an empty entry for each protocol of a failed
// condition, so the report shows the attempt. A condition can fail partway
// through its protocols; the ones already measured keep their rows and are
// skipped here, preserving one row per condition and protocol.
func (o *Orchestrator) appendMissing(profile types.NetworkProfile) {
	measured := make(map[string]bool)
	for _, r := range o.sink.Results() {
		if r.Profile == profile {
			measured[r.ProtocolName] = true
		}
	}
	for _, target := range o.plan.Protocols {
		if measured[target.Name] {
			continue
		}
		o.sink.Append(types.ProtocolRunResult{
			Profile:      profile,
			ProtocolName: target.Name,
			Stats:        types.Statistics{},
			Missing:      true,
		})
	}
}

// cleanup performs the run's single terminal Clear. It deliberately uses a
// fresh context: the run context is usually already cancelled when we get
// here, and leaving the interface impaired is the one outcome this system
// must never allow.
func (o *Orchestrator) cleanup() error {
	o.clearOnce.Do(func() {
		o.setPhase(PhaseCleaning)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := o.controller.Clear(ctx); err != nil {
			o.clearErr = errors.ErrFatal("terminal clear failed, interface may still be impaired", err)
			o.logger.Error("terminal clear failed", logging.F("error", err))
			return
		}
		o.logger.Info("impairment cleared")
	})
	return o.clearErr
}

// sleepCtx waits d unless ctx is cancelled first; reports whether the full
// wait happened.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
