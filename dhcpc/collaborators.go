package dhcpc

import (
	"net/netip"
	"time"

	"github.com/soypat/dhcpc/probe"
	"github.com/soypat/dhcpc/retransmit"
)

// Clock is the external monotonic time source and sleep primitive.
type Clock interface {
	// NowTicks returns a monotonic tick count at 1-second resolution.
	NowTicks() uint32
	Sleep(d time.Duration)
}

// ElapsedSecs computes now-start with a single 32-bit overflow
// correction.
func ElapsedSecs(start, now uint32) uint32 {
	if now >= start {
		return now - start
	}
	return (^uint32(0) - start) + now + 1
}

// ManagedSocket extends the retransmission engine's narrow Socket
// contract with the lifecycle the dispatcher itself owns. Close is kept
// off retransmit.Socket so that package never sees a socket's lifecycle
// at all; only the handler that opened a socket closes it.
type ManagedSocket interface {
	retransmit.Socket
	Close() error
}

// SocketFactory opens the per-interface, per-exchange UDP socket the
// retransmission engine sends/receives on.
type SocketFactory interface {
	// Open binds a UDP socket to ifID and local. local is 0.0.0.0:68 for
	// INIT/SELECTING/REBINDING or the current lease address for RENEWING.
	Open(ifID string, local netip.Addr) (ManagedSocket, error)
}

// IPv4Stack is the external IPv4 address-configuration collaborator.
type IPv4Stack interface {
	BeginDynamic(ifID string) error
	SetDynamicAddr(ifID string, host, mask, gw [4]byte) error
	RemoveAll(ifID string) error
	IsEnabled(ifID string) bool
}

// Interfaces is the external hardware-address lookup collaborator.
type Interfaces interface {
	GetHWAddr(ifID string) ([6]byte, error)
}

// ARP re-exports the probe package's collaborator contract so callers
// assembling a Config only need to import dhcpc.
type ARP = probe.ARP
