//go:build linux

package ambient

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/soypat/dhcpc/dhcpc"
)

// maxPollSlice caps each blocking Recvfrom call so a RecvFrom deadline
// is never overshot by more than one slice.
const maxPollSlice = 200 * time.Millisecond

// UDPSockets is a dhcpc.SocketFactory that opens a raw, interface-bound
// UDP/IPv4 socket per Open call.
type UDPSockets struct {
	// ClientPort is the local port bound on Open; 0 uses 68.
	ClientPort int
}

// Open implements dhcpc.SocketFactory.
func (f UDPSockets) Open(ifID string, local netip.Addr) (dhcpc.ManagedSocket, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	if err != nil {
		return nil, fmt.Errorf("ambient: open udp socket: %w", err)
	}
	ok := false
	defer func() {
		if !ok {
			_ = unix.Close(fd)
		}
	}()

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return nil, fmt.Errorf("ambient: SO_REUSEADDR: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_BROADCAST, 1); err != nil {
		return nil, fmt.Errorf("ambient: SO_BROADCAST: %w", err)
	}
	// SO_BINDTODEVICE is what confines the DISCOVER broadcast and the
	// unicast RENEWING REQUEST to a single interface.
	if err := unix.SetsockoptString(fd, unix.SOL_SOCKET, unix.SO_BINDTODEVICE, ifID); err != nil {
		return nil, fmt.Errorf("ambient: SO_BINDTODEVICE %s: %w", ifID, err)
	}

	port := f.ClientPort
	if port == 0 {
		port = 68
	}
	addr := local.As4()
	sa := &unix.SockaddrInet4{Addr: addr, Port: port}
	if err := unix.Bind(fd, sa); err != nil {
		return nil, fmt.Errorf("ambient: bind %s:%d: %w", local, port, err)
	}

	ok = true
	return &udpSocket{fd: fd, ifID: ifID}, nil
}

// udpSocket implements dhcpc.ManagedSocket. A mutex serializes send/recv
// against Close so the fd is never used after it is released.
type udpSocket struct {
	mu   sync.Mutex
	fd   int
	ifID string
}

// SendTo implements retransmit.Socket.
func (s *udpSocket) SendTo(buf []byte, dst netip.AddrPort) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sa := &unix.SockaddrInet4{Addr: dst.Addr().As4(), Port: int(dst.Port())}
	return unix.Sendto(s.fd, buf, 0, sa)
}

// RecvFrom implements retransmit.Socket, polling in maxPollSlice
// increments via SO_RCVTIMEO so the overall timeout is honored without an
// unbounded blocking Recvfrom call.
func (s *udpSocket) RecvFrom(buf []byte, timeout time.Duration) (int, netip.AddrPort, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, netip.AddrPort{}, os.ErrDeadlineExceeded
		}
		slice := remaining
		if slice > maxPollSlice {
			slice = maxPollSlice
		}
		tv := unix.NsecToTimeval(slice.Nanoseconds())
		if err := unix.SetsockoptTimeval(s.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
			return 0, netip.AddrPort{}, err
		}

		n, from, err := unix.Recvfrom(s.fd, buf, 0)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR) {
				continue
			}
			return 0, netip.AddrPort{}, err
		}
		src := netip.AddrPort{}
		if sa4, ok := from.(*unix.SockaddrInet4); ok {
			src = netip.AddrPortFrom(netip.AddrFrom4(sa4.Addr), uint16(sa4.Port))
		}
		return n, src, nil
	}
}

// SetRecvQueueSize implements retransmit.Socket via SO_RCVBUF, backing
// the receive-queue shrink the engine applies during backoff sleeps.
func (s *udpSocket) SetRecvQueueSize(bytes int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return unix.SetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_RCVBUF, bytes)
}

// Close implements dhcpc.ManagedSocket.
func (s *udpSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return unix.Close(s.fd)
}
