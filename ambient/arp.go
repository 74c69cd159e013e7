//go:build linux

package ambient

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"github.com/soypat/dhcpc/arp"
)

// ethArpFrameLen is the Ethernet header (14 bytes) plus the
// IPv4-over-Ethernet ARP packet (28 bytes) this package ever sends.
const ethArpFrameLen = 14 + 28

var broadcastHW = [6]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// RawARP implements probe.ARP over a per-interface AF_PACKET socket for
// the request/gratuitous send path and netlink's neighbour table for
// the cache lookup. Frames come from the arp package's
// BuildRequest/BuildGratuitous.
type RawARP struct{}

// Probe implements probe.ARP.
func (RawARP) Probe(ifID string, target [4]byte) error {
	return sendARP(ifID, func(buf []byte, hw [6]byte) (arp.Frame, error) {
		return arp.BuildRequest(buf, hw, [4]byte{}, target)
	})
}

// Gratuitous implements probe.ARP.
func (RawARP) Gratuitous(ifID string, addr [4]byte) error {
	return sendARP(ifID, func(buf []byte, hw [6]byte) (arp.Frame, error) {
		return arp.BuildGratuitous(buf, hw, addr)
	})
}

// CacheLookup implements probe.ARP via the kernel neighbour table:
// netlink populates it from the very ARP traffic Probe/Gratuitous
// generate, so no separate userspace cache is needed.
func (RawARP) CacheLookup(ifID string, target [4]byte) (hwAddr [6]byte, found bool, err error) {
	link, err := netlink.LinkByName(ifID)
	if err != nil {
		return hwAddr, false, fmt.Errorf("ambient: lookup interface %q: %w", ifID, err)
	}
	neighs, err := netlink.NeighList(link.Attrs().Index, unix.AF_INET)
	if err != nil {
		return hwAddr, false, fmt.Errorf("ambient: neigh list on %q: %w", ifID, err)
	}
	want := net.IPv4(target[0], target[1], target[2], target[3])
	for _, n := range neighs {
		if !n.IP.Equal(want) {
			continue
		}
		// NUD_INCOMPLETE/NUD_FAILED/NUD_NONE carry no usable hardware
		// address; only a resolved entry counts as USED.
		if n.State&(netlink.NUD_REACHABLE|netlink.NUD_STALE|netlink.NUD_DELAY|netlink.NUD_PROBE|netlink.NUD_PERMANENT|netlink.NUD_NOARP) == 0 {
			continue
		}
		if len(n.HardwareAddr) != 6 {
			continue
		}
		copy(hwAddr[:], n.HardwareAddr)
		return hwAddr, true, nil
	}
	return hwAddr, false, nil
}

// sendARP opens a transient AF_PACKET socket on ifID, builds an ARP
// frame via build, wraps it in a broadcast Ethernet header and sends it.
func sendARP(ifID string, build func(buf []byte, hw [6]byte) (arp.Frame, error)) error {
	ifi, err := net.InterfaceByName(ifID)
	if err != nil {
		return fmt.Errorf("ambient: lookup interface %q: %w", ifID, err)
	}
	var hw [6]byte
	copy(hw[:], ifi.HardwareAddr)

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(unix.ETH_P_ARP)))
	if err != nil {
		return fmt.Errorf("ambient: open AF_PACKET socket: %w", err)
	}
	defer unix.Close(fd)

	buf := make([]byte, ethArpFrameLen)
	copy(buf[0:6], broadcastHW[:])
	copy(buf[6:12], hw[:])
	buf[12], buf[13] = 0x08, 0x06 // EtherType ARP, big-endian

	if _, err := build(buf[14:], hw); err != nil {
		return fmt.Errorf("ambient: build arp frame: %w", err)
	}

	sa := &unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ARP),
		Ifindex:  ifi.Index,
		Halen:    6,
	}
	copy(sa.Addr[:6], broadcastHW[:])
	return unix.Sendto(fd, buf, 0, sa)
}

// htons converts a host-order 16-bit value to network byte order, as
// unix.Socket's protocol argument and SockaddrLinklayer.Protocol both
// require on a little-endian host.
func htons(v int) uint16 {
	return uint16(v)>>8 | uint16(v)<<8
}
