package orchestrator_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/netforge/protoperf/internal/orchestrator"
	"github.com/netforge/protoperf/internal/results"
	"github.com/netforge/protoperf/internal/sampler"
	"github.com/netforge/protoperf/pkg/errors"
	"github.com/netforge/protoperf/pkg/types"
)

// fakeControl implements control.ControlPlane with scriptable failures.
type fakeControl struct {
	mu         sync.Mutex
	setCalls   []types.NetworkProfile
	clearCalls int
	setErr     func(types.NetworkProfile) error
	clearErr   error
}

func (f *fakeControl) SetProfile(ctx context.Context, profile types.NetworkProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		if err := f.setErr(profile); err != nil {
			return err
		}
	}
	f.setCalls = append(f.setCalls, profile)
	return nil
}

func (f *fakeControl) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearCalls++
	return f.clearErr
}

func (f *fakeControl) Status(ctx context.Context) (types.NetworkProfile, error) {
	return types.NetworkProfile{}, nil
}

func (f *fakeControl) cleared() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clearCalls
}

// fakeSampler returns scripted samples.
type fakeSampler struct {
	name   string
	sample func(ctx context.Context) types.LatencySample
}

func (s *fakeSampler) Name() string { return s.name }
func (s *fakeSampler) Sample(ctx context.Context) types.LatencySample {
	return s.sample(ctx)
}
func (s *fakeSampler) Close() {}

func okSample(ctx context.Context) types.LatencySample {
	return types.NewSample(true, 10*time.Millisecond)
}

func failSample(ctx context.Context) types.LatencySample {
	return types.NewSample(false, 0)
}

func factoryOf(sample func(ctx context.Context) types.LatencySample) orchestrator.SamplerFactory {
	return func(target types.ProtocolTarget, timeout time.Duration) (sampler.Sampler, error) {
		return &fakeSampler{name: target.Name, sample: sample}, nil
	}
}

func testPlan() *types.ExperimentPlan {
	return &types.ExperimentPlan{
		Profiles: []types.NetworkProfile{
			{DelayMs: 50},
			{DelayMs: 100, LossPercent: 3},
		},
		Protocols: []types.ProtocolTarget{
			{Name: "h2", Endpoint: "https://localhost:8443/health"},
			{Name: "h3", Endpoint: "https://localhost:8444/health"},
		},
		WarmupRequests:      2,
		MeasurementRequests: 20,
		PerRequestTimeout:   time.Second,
		StabilizationDelay:  0,
		AbortFailureRatio:   0.5,
	}
}

func TestRunHappyPath(t *testing.T) {
	controller := &fakeControl{}
	sink := results.NewSink()
	plan := testPlan()

	orch := orchestrator.New(plan, controller, sink,
		orchestrator.WithSamplerFactory(factoryOf(okSample)))

	if err := orch.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := orch.Phase(); got != orchestrator.PhaseDone {
		t.Errorf("Phase() = %v, want %v", got, orchestrator.PhaseDone)
	}

	rows := sink.Rows()
	if len(rows) != 4 {
		t.Fatalf("len(rows) = %d, want 4 (2 profiles x 2 protocols)", len(rows))
	}
	for _, row := range rows {
		if row.Requests != 20 || row.Successes != 20 {
			t.Errorf("%s @ delay=%d: requests=%d successes=%d, want 20/20",
				row.Protocol, row.DelayMs, row.Requests, row.Successes)
		}
		if row.Degraded || row.Missing {
			t.Errorf("%s @ delay=%d flagged degraded=%v missing=%v on clean run",
				row.Protocol, row.DelayMs, row.Degraded, row.Missing)
		}
	}

	// Row order must follow plan order: both protocols under profile 1,
	// then both under profile 2.
	wantOrder := []struct {
		protocol string
		delay    uint
	}{
		{"h2", 50}, {"h3", 50}, {"h2", 100}, {"h3", 100},
	}
	for i, want := range wantOrder {
		if rows[i].Protocol != want.protocol || rows[i].DelayMs != want.delay {
			t.Errorf("rows[%d] = %s @ delay=%d, want %s @ delay=%d",
				i, rows[i].Protocol, rows[i].DelayMs, want.protocol, want.delay)
		}
	}

	if len(controller.setCalls) != 2 {
		t.Errorf("SetProfile called %d times, want 2", len(controller.setCalls))
	}
	if controller.cleared() != 1 {
		t.Errorf("Clear called %d times, want exactly 1", controller.cleared())
	}
}

func TestRunSkipsConditionWhoseProfileFails(t *testing.T) {
	controller := &fakeControl{
		setErr: func(p types.NetworkProfile) error {
			if p.DelayMs == 50 {
				return errors.ErrControlPlane("apply impairment profile", fmt.Errorf("netem refused"))
			}
			return nil
		},
	}
	sink := results.NewSink()
	plan := testPlan()

	orch := orchestrator.New(plan, controller, sink,
		orchestrator.WithSamplerFactory(factoryOf(okSample)))

	if err := orch.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := orch.Phase(); got != orchestrator.PhaseDone {
		t.Errorf("Phase() = %v, want %v", got, orchestrator.PhaseDone)
	}

	rows := sink.Rows()
	if len(rows) != 4 {
		t.Fatalf("len(rows) = %d, want 4 (missing entries included)", len(rows))
	}
	for _, row := range rows {
		wantMissing := row.DelayMs == 50
		if row.Missing != wantMissing {
			t.Errorf("%s @ delay=%d: Missing = %v, want %v",
				row.Protocol, row.DelayMs, row.Missing, wantMissing)
		}
		if wantMissing && row.Requests != 0 {
			t.Errorf("missing row has %d requests, want 0", row.Requests)
		}
		if !wantMissing && row.Successes != 20 {
			t.Errorf("surviving condition has %d successes, want 20", row.Successes)
		}
	}
	if controller.cleared() != 1 {
		t.Errorf("Clear called %d times, want exactly 1", controller.cleared())
	}
}

func TestConditionFailingMidProtocolsKeepsMeasuredRows(t *testing.T) {
	controller := &fakeControl{}
	sink := results.NewSink()
	plan := testPlan()
	plan.Profiles = plan.Profiles[:1]

	// The first protocol measures cleanly; building the second one fails,
	// which ends the condition partway through.
	factory := func(target types.ProtocolTarget, timeout time.Duration) (sampler.Sampler, error) {
		if target.Name == "h3" {
			return nil, fmt.Errorf("unsupported protocol scheme")
		}
		return &fakeSampler{name: target.Name, sample: okSample}, nil
	}

	orch := orchestrator.New(plan, controller, sink,
		orchestrator.WithSamplerFactory(factory))

	if err := orch.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	rows := sink.Rows()
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2 (one per protocol)", len(rows))
	}
	seen := map[string]int{}
	for _, row := range rows {
		seen[row.Protocol]++
	}
	for protocol, count := range seen {
		if count != 1 {
			t.Errorf("protocol %s has %d rows under one profile, want 1", protocol, count)
		}
	}
	if rows[0].Protocol != "h2" || rows[0].Missing || rows[0].Requests != 20 {
		t.Errorf("measured row = %s missing=%v requests=%d, want h2 measured with 20 requests",
			rows[0].Protocol, rows[0].Missing, rows[0].Requests)
	}
	if rows[1].Protocol != "h3" || !rows[1].Missing || rows[1].Requests != 0 {
		t.Errorf("failed row = %s missing=%v requests=%d, want h3 missing with 0 requests",
			rows[1].Protocol, rows[1].Missing, rows[1].Requests)
	}
	if controller.cleared() != 1 {
		t.Errorf("Clear called %d times, want exactly 1", controller.cleared())
	}
}

func TestRunFatalControlErrorStopsRun(t *testing.T) {
	controller := &fakeControl{
		setErr: func(types.NetworkProfile) error {
			return errors.ErrFatal("control service unreachable", fmt.Errorf("connection refused"))
		},
	}
	sink := results.NewSink()

	orch := orchestrator.New(testPlan(), controller, sink,
		orchestrator.WithSamplerFactory(factoryOf(okSample)))

	err := orch.Run(context.Background())
	if err == nil {
		t.Fatal("Run() error = nil, want fatal error")
	}
	if !errors.IsFatal(err) {
		t.Errorf("IsFatal(%v) = false, want true", err)
	}
	if len(sink.Rows()) != 0 {
		t.Errorf("len(rows) = %d, want 0", len(sink.Rows()))
	}
	if controller.cleared() != 1 {
		t.Errorf("Clear called %d times, want exactly 1 (cleanup still owed)", controller.cleared())
	}
}

func TestRunCancellation(t *testing.T) {
	controller := &fakeControl{}
	sink := results.NewSink()
	plan := testPlan()

	ctx, cancel := context.WithCancel(context.Background())
	var sampleCount int
	var mu sync.Mutex
	sample := func(sctx context.Context) types.LatencySample {
		mu.Lock()
		sampleCount++
		n := sampleCount
		mu.Unlock()
		// Cancel mid-measurement of the first protocol; warmup is 2, so
		// this lands on the 5th measurement sample.
		if n == plan.WarmupRequests+5 {
			cancel()
		}
		return types.NewSample(true, time.Millisecond)
	}

	orch := orchestrator.New(plan, controller, sink,
		orchestrator.WithSamplerFactory(factoryOf(sample)),
		orchestrator.WithGracePeriod(10*time.Millisecond))

	if err := orch.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v (abort is not an error)", err)
	}
	if got := orch.Phase(); got != orchestrator.PhaseAborted {
		t.Errorf("Phase() = %v, want %v", got, orchestrator.PhaseAborted)
	}
	if controller.cleared() != 1 {
		t.Errorf("Clear called %d times, want exactly 1", controller.cleared())
	}

	// The partial batch that was in progress is still aggregated.
	rows := sink.Rows()
	if len(rows) != 1 {
		t.Fatalf("len(rows) = %d, want 1 partial row", len(rows))
	}
	if rows[0].Requests != 5 {
		t.Errorf("partial row has %d requests, want 5", rows[0].Requests)
	}
}

func TestRunFailureRatioDegradesPhase(t *testing.T) {
	controller := &fakeControl{}
	sink := results.NewSink()
	plan := testPlan()
	plan.Profiles = plan.Profiles[:1]
	plan.Protocols = plan.Protocols[:1]
	plan.MeasurementRequests = 100

	orch := orchestrator.New(plan, controller, sink,
		orchestrator.WithSamplerFactory(factoryOf(failSample)))

	if err := orch.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	rows := sink.Rows()
	if len(rows) != 1 {
		t.Fatalf("len(rows) = %d, want 1", len(rows))
	}
	row := rows[0]
	if !row.Degraded {
		t.Error("Degraded = false, want true")
	}
	// The ratio check only arms after enough samples, so the phase ends at
	// exactly that point rather than running all 100 requests.
	if row.Requests != 10 {
		t.Errorf("Requests = %d, want 10 (early end, not full batch)", row.Requests)
	}
	if row.Failures != 10 {
		t.Errorf("Failures = %d, want 10", row.Failures)
	}
}

func TestRunTerminalClearFailureIsFatal(t *testing.T) {
	controller := &fakeControl{clearErr: fmt.Errorf("netlink: no such device")}
	sink := results.NewSink()

	orch := orchestrator.New(testPlan(), controller, sink,
		orchestrator.WithSamplerFactory(factoryOf(okSample)))

	err := orch.Run(context.Background())
	if err == nil {
		t.Fatal("Run() error = nil, want fatal error")
	}
	if !errors.IsFatal(err) {
		t.Errorf("IsFatal(%v) = false, want true", err)
	}
	// Results were still collected before the failed clear.
	if len(sink.Rows()) != 4 {
		t.Errorf("len(rows) = %d, want 4", len(sink.Rows()))
	}
}

func TestRunKeepsRawSamplesWhenAsked(t *testing.T) {
	controller := &fakeControl{}
	sink := results.NewSink()
	plan := testPlan()
	plan.Profiles = plan.Profiles[:1]
	plan.Protocols = plan.Protocols[:1]

	orch := orchestrator.New(plan, controller, sink,
		orchestrator.WithSamplerFactory(factoryOf(okSample)),
		orchestrator.WithRawSamples(true))

	if err := orch.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	res := sink.Results()
	if len(res) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(res))
	}
	if len(res[0].RawSamples) != plan.MeasurementRequests {
		t.Errorf("len(RawSamples) = %d, want %d", len(res[0].RawSamples), plan.MeasurementRequests)
	}
}
