// Package control is the network emulation control plane: the only
// sanctioned path to mutate impairment on the target interface.
package control

import (
	"sync"

	"github.com/netforge/protoperf/internal/impair"
	"github.com/netforge/protoperf/internal/logging"
	"github.com/netforge/protoperf/pkg/errors"
	"github.com/netforge/protoperf/pkg/types"
)

// Service owns the ImpairmentState. SetProfile and Clear are serialized by
// an exclusive mutation lock: concurrent conflicting edits to the same
// interface are undefined behavior at the kernel level. Status readers share
// a read lock and always observe a consistent snapshot.
type Service struct {
	applier impair.Applier
	logger  *logging.Logger

	mu    sync.RWMutex
	state types.ImpairmentState

	listeners []func(types.ImpairmentState)
}

func NewService(applier impair.Applier) *Service {
	return &Service{
		applier: applier,
		logger:  logging.NewLogger("control"),
		state: types.ImpairmentState{
			Interface: applier.Interface(),
		},
	}
}

// OnStateChange registers a listener invoked after every successful state
// transition. Register before serving; listeners run outside the lock.
func (s *Service) OnStateChange(fn func(types.ImpairmentState)) {
	s.listeners = append(s.listeners, fn)
}

// SetProfile applies the profile to the interface. The whole old tree is
// removed before the new one is installed, so nothing from a previous
// profile survives. If the apply fails partway, the service restores the
// unset state before returning, so the interface is never left
// half-configured.
func (s *Service) SetProfile(profile types.NetworkProfile) error {
	if err := profile.Validate(); err != nil {
		return errors.ErrConfiguration("invalid network profile", err)
	}

	s.mu.Lock()

	if err := s.applier.Apply(profile); err != nil {
		s.logger.Error("profile apply failed, rolling back",
			logging.F("profile", profile),
			logging.F("error", err))
		if rbErr := s.applier.Remove(); rbErr != nil {
			s.logger.Error("rollback failed, interface state unknown",
				logging.F("error", rbErr))
		}
		s.state.Active = nil
		snapshot := s.snapshotLocked()
		s.mu.Unlock()
		s.notify(snapshot)
		return errors.ErrControlPlane("apply impairment profile", err)
	}

	applied := profile
	s.state.Active = &applied
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Info("profile applied", logging.F("profile", profile))
	s.notify(snapshot)
	return nil
}

// Clear removes all impairment. Idempotent: clearing an already-unset
// interface succeeds with no side effect.
func (s *Service) Clear() error {
	s.mu.Lock()

	if err := s.applier.Remove(); err != nil {
		s.mu.Unlock()
		return errors.ErrControlPlane("clear impairment", err)
	}
	changed := s.state.Active != nil
	s.state.Active = nil
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if changed {
		s.logger.Info("impairment cleared")
		s.notify(snapshot)
	}
	return nil
}

// Status returns a snapshot of the current state. Never mutates; safe to
// call concurrently.
func (s *Service) Status() types.ImpairmentState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state
	if s.state.Active != nil {
		active := *s.state.Active
		snapshot.Active = &active
	}
	return snapshot
}

// snapshotLocked deep-copies the state; callers hold the mutation lock.
func (s *Service) snapshotLocked() types.ImpairmentState {
	snapshot := s.state
	if s.state.Active != nil {
		active := *s.state.Active
		snapshot.Active = &active
	}
	return snapshot
}

// notify runs the listeners with the lock released, so a slow listener
// cannot stall SetProfile, Clear, or Status callers.
func (s *Service) notify(snapshot types.ImpairmentState) {
	for _, fn := range s.listeners {
		fn(snapshot)
	}
}
