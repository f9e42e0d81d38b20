package impair

import (
	"fmt"

	"github.com/containernetworking/plugins/pkg/ns"
	"github.com/vishvananda/netlink"

	"github.com/netforge/protoperf/internal/logging"
	"github.com/netforge/protoperf/pkg/types"
)

// Qdisc layout:
//
//	bandwidth == 0:  netem root (handle 1:) with delay+loss
//	bandwidth  > 0:  htb root (handle 1:, default class 1:1) rate-limits,
//	                 netem child (handle 10:) under class 1:1 adds delay+loss
//
// Everything we install hangs off handle 1:, so removal is a single delete
// of that root.
const (
	rootMajor  = 1
	netemMajor = 10

	htbBurstBytes = 32 * 1024
	netemLimit    = 100000 // packets queued in netem before tail drop
)

// NetlinkApplier applies impairment through rtnetlink. An optional netns
// path lets it manage an interface inside a container network namespace.
type NetlinkApplier struct {
	iface  string
	nsPath string
	logger *logging.Logger
}

var _ Applier = (*NetlinkApplier)(nil)

func NewNetlinkApplier(iface, nsPath string) *NetlinkApplier {
	return &NetlinkApplier{
		iface:  iface,
		nsPath: nsPath,
		logger: logging.NewLogger("impair"),
	}
}

func (a *NetlinkApplier) Interface() string { return a.iface }

// Preflight verifies the interface is reachable before the service starts
// accepting requests.
func (a *NetlinkApplier) Preflight() error {
	return a.inNamespace(func() error {
		_, err := netlink.LinkByName(a.iface)
		if err != nil {
			return fmt.Errorf("interface %s: %w", a.iface, err)
		}
		return nil
	})
}

func (a *NetlinkApplier) Apply(profile types.NetworkProfile) error {
	return a.inNamespace(func() error {
		link, err := netlink.LinkByName(a.iface)
		if err != nil {
			return fmt.Errorf("interface %s: %w", a.iface, err)
		}

		if err := removeRoot(link); err != nil {
			return fmt.Errorf("remove existing qdisc tree: %w", err)
		}

		netemParent := uint32(netlink.HANDLE_ROOT)
		if profile.BandwidthMbps > 0 {
			classID, err := addRateLimit(link, profile.BandwidthMbps)
			if err != nil {
				return err
			}
			netemParent = classID
		}

		netem := netlink.NewNetem(
			netlink.QdiscAttrs{
				LinkIndex: link.Attrs().Index,
				Handle:    netemHandle(profile.BandwidthMbps > 0),
				Parent:    netemParent,
			},
			netlink.NetemQdiscAttrs{
				Latency: uint32(profile.DelayMs) * 1000, // netem wants microseconds
				Loss:    float32(profile.LossPercent),
				Limit:   netemLimit,
			},
		)
		if err := netlink.QdiscAdd(netem); err != nil {
			return fmt.Errorf("add netem qdisc on %s: %w", a.iface, err)
		}

		a.logger.Info("impairment applied",
			logging.F("interface", a.iface),
			logging.F("profile", profile))
		return nil
	})
}

func (a *NetlinkApplier) Remove() error {
	return a.inNamespace(func() error {
		link, err := netlink.LinkByName(a.iface)
		if err != nil {
			return fmt.Errorf("interface %s: %w", a.iface, err)
		}
		if err := removeRoot(link); err != nil {
			return fmt.Errorf("remove qdisc tree: %w", err)
		}
		a.logger.Info("impairment removed", logging.F("interface", a.iface))
		return nil
	})
}

// removeRoot deletes our root qdisc if present. The kernel reinstates the
// interface's default qdisc afterwards. A tree we never installed is not an
// error.
func removeRoot(link netlink.Link) error {
	qdiscs, err := netlink.QdiscList(link)
	if err != nil {
		return fmt.Errorf("list qdiscs: %w", err)
	}
	for _, q := range qdiscs {
		attrs := q.Attrs()
		if attrs.Handle != netlink.MakeHandle(rootMajor, 0) {
			continue
		}
		if err := netlink.QdiscDel(q); err != nil {
			return fmt.Errorf("delete qdisc %s: %w", q.Type(), err)
		}
	}
	return nil
}

// addRateLimit installs an htb root whose default class caps the interface
// at the given rate, returning the class handle the netem qdisc attaches to.
func addRateLimit(link netlink.Link, mbps uint) (uint32, error) {
	htb := netlink.NewHtb(netlink.QdiscAttrs{
		LinkIndex: link.Attrs().Index,
		Handle:    netlink.MakeHandle(rootMajor, 0),
		Parent:    netlink.HANDLE_ROOT,
	})
	htb.Defcls = 1
	if err := netlink.QdiscAdd(htb); err != nil {
		return 0, fmt.Errorf("add htb root qdisc: %w", err)
	}

	rate := mbpsToBytesPerSec(mbps)
	classID := netlink.MakeHandle(rootMajor, 1)
	class := netlink.NewHtbClass(
		netlink.ClassAttrs{
			LinkIndex: link.Attrs().Index,
			Handle:    classID,
			Parent:    netlink.MakeHandle(rootMajor, 0),
		},
		netlink.HtbClassAttrs{
			Rate:   rate,
			Ceil:   rate,
			Buffer: htbBurstBytes,
		},
	)
	if err := netlink.ClassAdd(class); err != nil {
		return 0, fmt.Errorf("add htb class: %w", err)
	}
	return classID, nil
}

func netemHandle(underHtb bool) uint32 {
	if underHtb {
		return netlink.MakeHandle(netemMajor, 0)
	}
	return netlink.MakeHandle(rootMajor, 0)
}

// mbpsToBytesPerSec converts the profile's megabits per second to the bytes
// per second htb expects.
func mbpsToBytesPerSec(mbps uint) uint64 {
	return uint64(mbps) * 1000 * 1000 / 8
}

// inNamespace runs fn in the configured network namespace, or inline when no
// namespace path is set.
func (a *NetlinkApplier) inNamespace(fn func() error) error {
	if a.nsPath == "" {
		return fn()
	}
	netns, err := ns.GetNS(a.nsPath)
	if err != nil {
		return fmt.Errorf("enter netns %s: %w", a.nsPath, err)
	}
	defer netns.Close()
	return netns.Do(func(ns.NetNS) error { return fn() })
}
