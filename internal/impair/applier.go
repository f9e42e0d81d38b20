// Package impair wraps the kernel traffic-control primitives (netem, htb)
// used to add delay, loss, and bandwidth limiting to a network interface.
package impair

import (
	"github.com/netforge/protoperf/pkg/types"
)

// Applier mutates the impairment configuration of one interface. The control
// service is its only caller; it holds the serialization lock, so an Applier
// implementation never sees concurrent calls.
type Applier interface {
	// Apply installs the profile. Implementations perform a full
	// remove-then-add: qdisc trees are not incrementally patchable, and a
	// fresh tree guarantees no residual parameters survive from a previous
	// profile.
	Apply(profile types.NetworkProfile) error

	// Remove deletes all impairment. Calling it when nothing is applied
	// succeeds with no side effect.
	Remove() error

	// Interface returns the name of the interface being managed.
	Interface() string
}
