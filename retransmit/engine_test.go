package retransmit

import (
	"net/netip"
	"testing"
	"time"

	"github.com/soypat/dhcpc/dhcpv4"
)

type fakeSocket struct {
	sent      [][]byte
	replies   [][]byte // popped in order on each RecvFrom call
	recvCalls int
}

func (f *fakeSocket) SendTo(buf []byte, dst netip.AddrPort) error {
	cp := make([]byte, len(buf))
	copy(cp, buf)
	f.sent = append(f.sent, cp)
	return nil
}

func (f *fakeSocket) RecvFrom(buf []byte, timeout time.Duration) (int, netip.AddrPort, error) {
	f.recvCalls++
	if len(f.replies) == 0 {
		return 0, netip.AddrPort{}, errTimeout{}
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	n := copy(buf, reply)
	return n, netip.AddrPort{}, nil
}

func (f *fakeSocket) SetRecvQueueSize(bytes int) error { return nil }

type errTimeout struct{}

func (errTimeout) Error() string   { return "i/o timeout" }
func (errTimeout) Timeout() bool   { return true }
func (errTimeout) Temporary() bool { return true }

type noSleep struct{}

func (noSleep) Sleep(time.Duration) {}

func buildReply(t *testing.T, xid uint32, hw [6]byte, kind dhcpv4.MessageType) []byte {
	t.Helper()
	out := make([]byte, dhcpv4.MinEncodedSize)
	frm, err := dhcpv4.NewFrame(out)
	if err != nil {
		t.Fatal(err)
	}
	frm.ClearHeader()
	frm.SetOp(dhcpv4.OpReply)
	frm.SetXID(xid)
	frm.SetCHAddr(hw[:])
	frm.SetMagicCookie()
	opts := out[:dhcpv4.OptionsOffset]
	opts, err = dhcpv4.AppendOption(opts, dhcpv4.OptMessageType, []byte{byte(kind)})
	if err != nil {
		t.Fatal(err)
	}
	opts = append(opts, byte(dhcpv4.OptEnd))
	return out
}

func TestDiscoverSucceedsOnFirstOffer(t *testing.T) {
	hw := [6]byte{1, 2, 3, 4, 5, 6}
	xid := uint32(0xAABBCCDD)
	sock := &fakeSocket{replies: [][]byte{buildReply(t, xid, hw, dhcpv4.MsgOffer)}}
	e := &Engine{Socket: sock, Sleeper: noSleep{}}

	out := make([]byte, dhcpv4.MinEncodedSize)
	reply, err := e.Discover(DiscoverParams{XID: xid, HWAddr: hw, Retries: 3, Backoff: NewBackoff(1)}, out)
	if err != nil {
		t.Fatal(err)
	}
	kind, ok := dhcpv4.MessageKind(reply)
	if !ok || kind != dhcpv4.MsgOffer {
		t.Fatalf("expected OFFER, got kind=%v ok=%v", kind, ok)
	}
	if len(sock.sent) != 1 {
		t.Errorf("expected exactly one DISCOVER sent, got %d", len(sock.sent))
	}
}

func TestDiscoverExhaustsRetriesReturnsNoOffer(t *testing.T) {
	sock := &fakeSocket{}
	e := &Engine{Socket: sock, Sleeper: noSleep{}}
	out := make([]byte, dhcpv4.MinEncodedSize)
	_, err := e.Discover(DiscoverParams{XID: 1, HWAddr: [6]byte{1, 2, 3, 4, 5, 6}, Retries: 2, Backoff: NewBackoff(1)}, out)
	if err != ErrNoOffer {
		t.Fatalf("expected ErrNoOffer, got %v", err)
	}
	if len(sock.sent) != 3 { // initial + 2 retries
		t.Errorf("expected 3 sends, got %d", len(sock.sent))
	}
}

func TestRequestReturnsNAK(t *testing.T) {
	hw := [6]byte{1, 2, 3, 4, 5, 6}
	xid := uint32(42)
	sock := &fakeSocket{replies: [][]byte{buildReply(t, xid, hw, dhcpv4.MsgNak)}}
	e := &Engine{Socket: sock, Sleeper: noSleep{}}
	out := make([]byte, dhcpv4.MinEncodedSize)
	_, err := e.Request(RequestParams{XID: xid, HWAddr: hw, Retries: 1, Backoff: NewBackoff(1)}, out)
	if err != ErrNAK {
		t.Fatalf("expected ErrNAK, got %v", err)
	}
}

func TestRequestIgnoresMismatchedXID(t *testing.T) {
	hw := [6]byte{1, 2, 3, 4, 5, 6}
	wrongReply := buildReply(t, 999, hw, dhcpv4.MsgAck)
	rightReply := buildReply(t, 42, hw, dhcpv4.MsgAck)
	sock := &fakeSocket{replies: [][]byte{wrongReply, rightReply}}
	e := &Engine{Socket: sock, Sleeper: noSleep{}}
	out := make([]byte, dhcpv4.MinEncodedSize)
	reply, err := e.Request(RequestParams{XID: 42, HWAddr: hw, Retries: 0, Backoff: NewBackoff(1)}, out)
	if err != nil {
		t.Fatal(err)
	}
	kind, _ := dhcpv4.MessageKind(reply)
	if kind != dhcpv4.MsgAck {
		t.Fatalf("expected ACK, got %v", kind)
	}
}

func TestBackoffMonotonicAndBounded(t *testing.T) {
	b := NewBackoff(7)
	prev := time.Duration(0)
	for i := 0; i < 10; i++ {
		d := b.Next()
		if d > maxDelay+maxDelay/10 {
			t.Fatalf("delay %v exceeds bound", d)
		}
		if i > 2 && d < prev/2 { // allow jitter, but should trend upward then plateau
			t.Fatalf("delay %v dropped sharply from %v", d, prev)
		}
		prev = d
	}
}
