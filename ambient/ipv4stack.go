//go:build linux

package ambient

import (
	"fmt"
	"net"
	"sync"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// NetlinkIPv4Stack implements dhcpc.IPv4Stack over vishvananda/netlink:
// AddrDel to clear stale addresses, AddrAdd tolerant of EEXIST, and
// RouteDel to clear a stale default route before RouteAdd installs the
// new one. It only ever touches addresses it installed itself.
type NetlinkIPv4Stack struct {
	mu      sync.Mutex
	current map[string]*netlink.Addr // ifID -> address this stack last installed
}

// NewNetlinkIPv4Stack returns a ready-to-use stack.
func NewNetlinkIPv4Stack() *NetlinkIPv4Stack {
	return &NetlinkIPv4Stack{current: make(map[string]*netlink.Addr)}
}

// BeginDynamic implements dhcpc.IPv4Stack: clear any address this stack
// previously installed and bring the link up, readying it for a fresh
// DISCOVER/REQUEST cycle.
func (s *NetlinkIPv4Stack) BeginDynamic(ifID string) error {
	link, err := netlink.LinkByName(ifID)
	if err != nil {
		return fmt.Errorf("ambient: lookup interface %q: %w", ifID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if addr, ok := s.current[ifID]; ok {
		_ = netlink.AddrDel(link, addr)
		delete(s.current, ifID)
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return fmt.Errorf("ambient: set %q up: %w", ifID, err)
	}
	return nil
}

// SetDynamicAddr implements dhcpc.IPv4Stack: installs host/mask on ifID
// and, when gw is non-zero, a default route via gw.
func (s *NetlinkIPv4Stack) SetDynamicAddr(ifID string, host, mask, gw [4]byte) error {
	link, err := netlink.LinkByName(ifID)
	if err != nil {
		return fmt.Errorf("ambient: lookup interface %q: %w", ifID, err)
	}
	addr := &netlink.Addr{IPNet: &net.IPNet{
		IP:   net.IPv4(host[0], host[1], host[2], host[3]),
		Mask: net.IPv4Mask(mask[0], mask[1], mask[2], mask[3]),
	}}

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.current[ifID]; ok {
		_ = netlink.AddrDel(link, old)
	}
	if err := netlink.AddrAdd(link, addr); err != nil && err != unix.EEXIST {
		return fmt.Errorf("ambient: add addr %s to %q: %w", addr, ifID, err)
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return fmt.Errorf("ambient: set %q up: %w", ifID, err)
	}
	s.current[ifID] = addr

	if gw == [4]byte{} {
		return nil
	}
	routes, err := netlink.RouteList(link, unix.AF_INET)
	if err == nil {
		for _, r := range routes {
			if r.Dst == nil {
				route := r
				_ = netlink.RouteDel(&route)
			}
		}
	}
	route := &netlink.Route{
		LinkIndex: link.Attrs().Index,
		Gw:        net.IPv4(gw[0], gw[1], gw[2], gw[3]),
		Dst:       nil,
	}
	if err := netlink.RouteAdd(route); err != nil && err != unix.EEXIST {
		return fmt.Errorf("ambient: add default route via %s on %q: %w", route.Gw, ifID, err)
	}
	return nil
}

// RemoveAll implements dhcpc.IPv4Stack: undoes whatever this stack last
// installed on ifID, used on stop and lease expiry.
func (s *NetlinkIPv4Stack) RemoveAll(ifID string) error {
	link, err := netlink.LinkByName(ifID)
	if err != nil {
		return fmt.Errorf("ambient: lookup interface %q: %w", ifID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	addr, ok := s.current[ifID]
	if !ok {
		return nil
	}
	if err := netlink.AddrDel(link, addr); err != nil {
		return fmt.Errorf("ambient: remove addr from %q: %w", ifID, err)
	}
	delete(s.current, ifID)
	return nil
}

// IsEnabled implements dhcpc.IPv4Stack: reports whether ifID resolves to
// a link that is administratively up.
func (s *NetlinkIPv4Stack) IsEnabled(ifID string) bool {
	link, err := netlink.LinkByName(ifID)
	if err != nil {
		return false
	}
	return link.Attrs().Flags&net.FlagUp != 0
}
