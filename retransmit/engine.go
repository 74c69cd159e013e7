// Package retransmit implements the send-and-wait
// cycles for DISCOVER and REQUEST with randomized
// exponential backoff, peer/xid filtering, and the receive-queue-shrink
// trick during backoff sleeps.
package retransmit

import (
	"errors"
	"net/netip"
	"time"

	"github.com/soypat/dhcpc/dhcpv4"
)

// RXInactivityTimeout is the default per-attempt receive timeout.
const RXInactivityTimeout = 5000 * time.Millisecond

// minRecvQueueBytes is the shrink target applied to the socket's receive
// queue during backoff sleeps.
const minRecvQueueBytes = 576

var (
	// ErrNoOffer is returned by Discover after retries are exhausted with
	// no matching OFFER received.
	ErrNoOffer = errors.New("retransmit: no offer received")
	// ErrNAK is returned by Request when the server responds NAK.
	ErrNAK = errors.New("retransmit: nak received")
	// ErrNoReply is returned by Request after retries are exhausted with
	// no ACK or NAK received.
	ErrNoReply = errors.New("retransmit: no reply received")
)

// Socket is a per-interface, already-bound UDP socket. Engine only sends, receives
// and resizes it; open/bind/close lifecycle is owned by the caller.
type Socket interface {
	SendTo(buf []byte, dst netip.AddrPort) error
	// RecvFrom blocks up to timeout for a datagram, returning the number
	// of bytes read and the sender's address. A timeout returns
	// (0, netip.AddrPort{}, os.ErrDeadlineExceeded) or an equivalent
	// timeout error recognizable via errors.Is.
	RecvFrom(buf []byte, timeout time.Duration) (n int, src netip.AddrPort, err error)
	// SetRecvQueueSize resizes the socket's receive buffer; used to
	// shrink it to the minimum during backoff sleeps so that a broadcast
	// OFFER flood cannot exhaust memory while the client sleeps.
	SetRecvQueueSize(bytes int) error
}

// Sleeper abstracts the OS sleep primitive.
type Sleeper interface{ Sleep(d time.Duration) }

// Engine runs the DISCOVER and REQUEST send-receive cycles over Socket.
type Engine struct {
	Socket               Socket
	Sleeper              Sleeper
	NormalRecvQueueBytes int // restored after each backoff sleep; 0 uses a sane default.

	// RXTimeout is the per-attempt receive deadline. Zero uses
	// RXInactivityTimeout.
	RXTimeout time.Duration
}

func (e *Engine) recvQueueNormalSize() int {
	if e.NormalRecvQueueBytes <= 0 {
		return 1 << 16
	}
	return e.NormalRecvQueueBytes
}

func (e *Engine) rxTimeout() time.Duration {
	if e.RXTimeout <= 0 {
		return RXInactivityTimeout
	}
	return e.RXTimeout
}

// DiscoverParams carries what Discover needs beyond the socket.
type DiscoverParams struct {
	Build   dhcpv4.BuildParams
	XID     uint32
	HWAddr  [6]byte
	Retries int
	Backoff *Backoff
	// ServerPort is the UDP port DHCP servers are contacted on. Zero
	// uses dhcpv4.DefaultServerPort.
	ServerPort uint16
	// BroadcastBitEnabled gates the header's BROADCAST flag: set when
	// the interface has no usable IP configuration yet.
	BroadcastBitEnabled bool
}

func serverPortOrDefault(p uint16) uint16 {
	if p == 0 {
		return dhcpv4.DefaultServerPort
	}
	return p
}

// broadcastAddr returns 255.255.255.255:port, the DISCOVER/broadcast-REQUEST
// destination.
func broadcastAddr(port uint16) netip.AddrPort {
	return netip.AddrPortFrom(netip.AddrFrom4([4]byte{255, 255, 255, 255}), serverPortOrDefault(port))
}

// Discover runs the DISCOVER cycle: build and broadcast
// a DISCOVER, then loop accepting only REPLY datagrams addressed to our
// xid/hwaddr, retrying with backoff on RX timeout, shrinking the socket's
// receive queue while asleep.
func (e *Engine) Discover(p DiscoverParams, out []byte) ([]byte, error) {
	p.Build.Kind = dhcpv4.MsgDiscover
	p.Build.XID = p.XID
	p.Build.HWAddr = p.HWAddr[:]
	p.Build.Broadcast = p.BroadcastBitEnabled

	n, err := dhcpv4.BuildMessage(p.Build, out)
	if err != nil {
		return nil, err
	}
	msg := out[:n]
	dst := broadcastAddr(p.ServerPort)

	recvBuf := make([]byte, 1500)
	for attempt := 0; attempt <= p.Retries; attempt++ {
		if err := e.Socket.SendTo(msg, dst); err != nil {
			return nil, err
		}
		reply, ok := e.receiveMatching(recvBuf, p.XID, p.HWAddr, dhcpv4.MsgOffer)
		if ok {
			return reply, nil
		}
		if attempt < p.Retries {
			e.backoffSleep(p.Backoff)
		}
	}
	return nil, ErrNoOffer
}

// RequestParams carries what Request needs beyond the socket.
type RequestParams struct {
	Build    dhcpv4.BuildParams
	XID      uint32
	HWAddr   [6]byte
	Retries  int
	Backoff  *Backoff
	Unicast  bool
	ServerID [4]byte
	// ServerPort is the UDP port DHCP servers are contacted on. Zero
	// uses dhcpv4.DefaultServerPort.
	ServerPort uint16
	// BroadcastBitEnabled gates the header's BROADCAST flag when
	// broadcasting; irrelevant when Unicast is true.
	BroadcastBitEnabled bool
}

// Request runs the REQUEST cycle: identical framing and
// filtering to Discover, except RENEWING unicasts to server_id and the
// only accepted reply types are ACK and NAK.
func (e *Engine) Request(p RequestParams, out []byte) ([]byte, error) {
	p.Build.Kind = dhcpv4.MsgRequest
	p.Build.XID = p.XID
	p.Build.HWAddr = p.HWAddr[:]
	p.Build.Broadcast = !p.Unicast && p.BroadcastBitEnabled

	n, err := dhcpv4.BuildMessage(p.Build, out)
	if err != nil {
		return nil, err
	}
	msg := out[:n]

	dst := broadcastAddr(p.ServerPort)
	if p.Unicast {
		dst = netip.AddrPortFrom(netip.AddrFrom4(p.ServerID), serverPortOrDefault(p.ServerPort))
	}

	recvBuf := make([]byte, 1500)
	for attempt := 0; attempt <= p.Retries; attempt++ {
		if err := e.Socket.SendTo(msg, dst); err != nil {
			return nil, err
		}
		reply, kind, ok := e.receiveAckOrNak(recvBuf, p.XID, p.HWAddr)
		if ok {
			if kind == dhcpv4.MsgNak {
				return reply, ErrNAK
			}
			return reply, nil
		}
		if attempt < p.Retries {
			e.backoffSleep(p.Backoff)
		}
	}
	return nil, ErrNoReply
}

// backoffSleep shrinks the receive queue, sleeps the backoff's next
// delay, then restores the queue size. A broadcast OFFER flood during
// the sleep is dropped at ingress instead of filling the buffer.
func (e *Engine) backoffSleep(b *Backoff) {
	e.Socket.SetRecvQueueSize(minRecvQueueBytes)
	e.Sleeper.Sleep(b.Next())
	e.Socket.SetRecvQueueSize(e.recvQueueNormalSize())
}

// receiveMatching loops RecvFrom until it sees a REPLY datagram from our
// xid/hwaddr carrying wantKind, or the inactivity timeout elapses.
func (e *Engine) receiveMatching(buf []byte, xid uint32, hw [6]byte, wantKind dhcpv4.MessageType) ([]byte, bool) {
	deadline := time.Now().Add(e.rxTimeout())
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, false
		}
		n, _, err := e.Socket.RecvFrom(buf, remaining)
		if err != nil || n < dhcpv4.MinDecodedSize {
			return nil, false
		}
		data := buf[:n]
		if !matchesExchange(data, xid, hw) {
			continue
		}
		kind, ok := dhcpv4.MessageKind(data)
		if !ok || kind != wantKind {
			continue
		}
		out := make([]byte, n)
		copy(out, data)
		return out, true
	}
}

func (e *Engine) receiveAckOrNak(buf []byte, xid uint32, hw [6]byte) ([]byte, dhcpv4.MessageType, bool) {
	deadline := time.Now().Add(e.rxTimeout())
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, 0, false
		}
		n, _, err := e.Socket.RecvFrom(buf, remaining)
		if err != nil || n < dhcpv4.MinDecodedSize {
			return nil, 0, false
		}
		data := buf[:n]
		if !matchesExchange(data, xid, hw) {
			continue
		}
		kind, ok := dhcpv4.MessageKind(data)
		if !ok || (kind != dhcpv4.MsgAck && kind != dhcpv4.MsgNak) {
			continue
		}
		out := make([]byte, n)
		copy(out, data)
		return out, kind, true
	}
}

// matchesExchange is the receive-loop filter common to Discover
// and Request: op=REPLY, chaddr prefix matches our hardware address, xid
// equals ours.
func matchesExchange(data []byte, xid uint32, hw [6]byte) bool {
	frm, err := dhcpv4.NewFrame(data)
	if err != nil {
		return false
	}
	if frm.Op() != dhcpv4.OpReply {
		return false
	}
	if frm.XID() != xid {
		return false
	}
	got := frm.CHAddrAs6()
	return *got == hw
}
