package control_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/netforge/protoperf/internal/control"
	"github.com/netforge/protoperf/pkg/errors"
	"github.com/netforge/protoperf/pkg/types"
)

// fakeApplier records apply/remove calls and can be scripted to fail.
type fakeApplier struct {
	mu          sync.Mutex
	applied     []types.NetworkProfile
	removeCalls int
	failApply   bool
	failRemove  bool
}

func (f *fakeApplier) Apply(profile types.NetworkProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failApply {
		return fmt.Errorf("netlink: operation not permitted")
	}
	f.applied = append(f.applied, profile)
	return nil
}

func (f *fakeApplier) Remove() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeCalls += 1
	if f.failRemove {
		return fmt.Errorf("netlink: no such device")
	}
	return nil
}

func (f *fakeApplier) Interface() string { return "eth0" }

func (f *fakeApplier) removed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.removeCalls
}

func TestSetProfileReadYourWrite(t *testing.T) {
	svc := control.NewService(&fakeApplier{})

	profile := types.NetworkProfile{DelayMs: 50, LossPercent: 1, BandwidthMbps: 100}
	if err := svc.SetProfile(profile); err != nil {
		t.Fatalf("SetProfile() error = %v", err)
	}

	state := svc.Status()
	if !state.Applied() {
		t.Fatal("Status().Applied() = false after successful SetProfile")
	}
	if !state.Active.Equal(profile) {
		t.Errorf("Status().Active = %v, want %v", *state.Active, profile)
	}
}

func TestSetProfileReplacesWithoutResidue(t *testing.T) {
	applier := &fakeApplier{}
	svc := control.NewService(applier)

	p1 := types.NetworkProfile{DelayMs: 50}
	p2 := types.NetworkProfile{LossPercent: 5}
	if err := svc.SetProfile(p1); err != nil {
		t.Fatalf("SetProfile(p1) error = %v", err)
	}
	if err := svc.SetProfile(p2); err != nil {
		t.Fatalf("SetProfile(p2) error = %v", err)
	}

	state := svc.Status()
	if !state.Active.Equal(p2) {
		t.Errorf("Status().Active = %v, want %v (p1 must not survive)", *state.Active, p2)
	}
	if got := state.Profile(); got.DelayMs != 0 {
		t.Errorf("Profile().DelayMs = %d, want 0", got.DelayMs)
	}
}

func TestSetProfileInvalidRejectedWithoutApply(t *testing.T) {
	applier := &fakeApplier{}
	svc := control.NewService(applier)

	err := svc.SetProfile(types.NetworkProfile{LossPercent: 150})
	if err == nil {
		t.Fatal("SetProfile() error = nil, want configuration error")
	}
	if !errors.IsConfiguration(err) {
		t.Errorf("IsConfiguration(%v) = false, want true", err)
	}
	if len(applier.applied) != 0 {
		t.Errorf("applier received %d profiles, want 0", len(applier.applied))
	}
	if svc.Status().Applied() {
		t.Error("Status().Applied() = true after rejected profile")
	}
}

func TestSetProfileRollbackOnApplyFailure(t *testing.T) {
	applier := &fakeApplier{failApply: true}
	svc := control.NewService(applier)

	err := svc.SetProfile(types.NetworkProfile{DelayMs: 50})
	if err == nil {
		t.Fatal("SetProfile() error = nil, want control plane error")
	}
	if !errors.IsControlPlane(err) {
		t.Errorf("IsControlPlane(%v) = false, want true", err)
	}
	if applier.removed() == 0 {
		t.Error("rollback Remove() was never called")
	}
	if svc.Status().Applied() {
		t.Error("Status().Applied() = true after failed apply, want unset")
	}
}

func TestClearIdempotent(t *testing.T) {
	applier := &fakeApplier{}
	svc := control.NewService(applier)

	if err := svc.SetProfile(types.NetworkProfile{DelayMs: 20}); err != nil {
		t.Fatalf("SetProfile() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := svc.Clear(); err != nil {
			t.Fatalf("Clear() #%d error = %v", i+1, err)
		}
	}
	if svc.Status().Applied() {
		t.Error("Status().Applied() = true after Clear")
	}
	if applier.removed() != 3 {
		t.Errorf("Remove() called %d times, want 3", applier.removed())
	}
}

func TestStatusConcurrentWithMutations(t *testing.T) {
	svc := control.NewService(&fakeApplier{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				state := svc.Status()
				if state.Active != nil && state.Active.DelayMs != 50 {
					t.Errorf("observed partial state: %v", *state.Active)
					return
				}
			}
		}()
	}
	for i := 0; i < 50; i++ {
		if err := svc.SetProfile(types.NetworkProfile{DelayMs: 50}); err != nil {
			t.Fatalf("SetProfile() error = %v", err)
		}
		if err := svc.Clear(); err != nil {
			t.Fatalf("Clear() error = %v", err)
		}
	}
	wg.Wait()
}

func TestOnStateChangeNotifies(t *testing.T) {
	svc := control.NewService(&fakeApplier{})

	var mu sync.Mutex
	var states []types.ImpairmentState
	svc.OnStateChange(func(s types.ImpairmentState) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	if err := svc.SetProfile(types.NetworkProfile{DelayMs: 30}); err != nil {
		t.Fatalf("SetProfile() error = %v", err)
	}
	if err := svc.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	// Second clear is a no-op and must not notify.
	if err := svc.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(states) != 2 {
		t.Fatalf("listener saw %d notifications, want 2", len(states))
	}
	if !states[0].Applied() || states[1].Applied() {
		t.Errorf("notification order wrong: %v", states)
	}
}

func TestStalledListenerDoesNotBlockStatus(t *testing.T) {
	svc := control.NewService(&fakeApplier{})

	release := make(chan struct{})
	stalled := make(chan struct{})
	svc.OnStateChange(func(types.ImpairmentState) {
		close(stalled)
		<-release
	})

	done := make(chan error, 1)
	go func() {
		done <- svc.SetProfile(types.NetworkProfile{DelayMs: 40})
	}()

	select {
	case <-stalled:
	case <-time.After(2 * time.Second):
		t.Fatal("listener was never invoked")
	}

	// The mutation has committed and the listener is still running.
	// Readers and mutators must not wait on it.
	statusDone := make(chan types.ImpairmentState, 1)
	go func() { statusDone <- svc.Status() }()
	select {
	case state := <-statusDone:
		if !state.Applied() {
			t.Error("Status().Applied() = false while listener runs, want true")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Status() blocked behind a stalled listener")
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("SetProfile() error = %v", err)
	}
}
