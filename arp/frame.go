package arp

import (
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"
)

// NewFrame returns a Frame with data set to buf. An error is returned if
// the buffer is smaller than the IPv4-over-Ethernet ARP packet size (28
// bytes). Callers must ensure the buffer stays alive for the Frame's use.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < sizeHeaderv4 {
		return Frame{}, errShortARP
	}
	return Frame{buf: buf}, nil
}

// Frame is a zero-copy view over an ARP packet buffer, scoped to the
// IPv4-over-Ethernet case this client's address probe needs.
type Frame struct {
	buf []byte
}

// RawData returns the underlying slice backing the frame.
func (f Frame) RawData() []byte { return f.buf }

// Hardware returns the hardware type and address length fields.
func (f Frame) Hardware() (htype uint16, length uint8) {
	return binary.BigEndian.Uint16(f.buf[0:2]), f.hwlen()
}

func (f Frame) hwlen() uint8 { return f.buf[4] }

// SetHardware sets the hardware type and address length fields.
func (f Frame) SetHardware(htype uint16, length uint8) {
	binary.BigEndian.PutUint16(f.buf[0:2], htype)
	f.buf[4] = length
}

// Protocol returns the protocol (EtherType) and address length fields.
func (f Frame) Protocol() (t EtherType, length uint8) {
	return EtherType(binary.BigEndian.Uint16(f.buf[2:4])), f.protolen()
}

func (f Frame) protolen() uint8 { return f.buf[5] }

// SetProtocol sets the protocol (EtherType) and address length fields.
func (f Frame) SetProtocol(t EtherType, length uint8) {
	binary.BigEndian.PutUint16(f.buf[2:4], uint16(t))
	f.buf[5] = length
}

// Operation returns the ARP operation field.
func (f Frame) Operation() Operation { return Operation(binary.BigEndian.Uint16(f.buf[6:8])) }

// SetOperation sets the ARP operation field.
func (f Frame) SetOperation(op Operation) { binary.BigEndian.PutUint16(f.buf[6:8], uint16(op)) }

// Sender4 returns pointers to the 6-byte sender hardware and 4-byte
// sender protocol addresses for an IPv4-over-Ethernet ARP packet.
func (f Frame) Sender4() (hw *[6]byte, proto *[4]byte) {
	return (*[6]byte)(f.buf[8:14]), (*[4]byte)(f.buf[14:18])
}

// Target4 returns pointers to the 6-byte target hardware and 4-byte
// target protocol addresses for an IPv4-over-Ethernet ARP packet.
func (f Frame) Target4() (hw *[6]byte, proto *[4]byte) {
	return (*[6]byte)(f.buf[18:24]), (*[4]byte)(f.buf[24:28])
}

// ClearHeader zeros the fixed (non-variable) header fields.
func (f Frame) ClearHeader() {
	for i := range f.buf[:8] {
		f.buf[i] = 0
	}
}

// Clip returns a Frame whose backing slice is trimmed to exactly the
// IPv4-over-Ethernet ARP packet length, discarding any trailing padding.
func (f Frame) Clip() Frame {
	return Frame{buf: f.buf[:sizeHeaderv4]}
}

// SwapTargetSender exchanges sender and target fields in place, the core
// step in turning a received request into a reply.
func (f Frame) SwapTargetSender() {
	hwTarget, protoTarget := f.Target4()
	hwSender, protoSender := f.Sender4()
	*hwTarget, *hwSender = *hwSender, *hwTarget
	*protoTarget, *protoSender = *protoSender, *protoTarget
}

// ValidateSize reports whether the backing buffer is at least as long as
// the header fields claim it should be.
func (f Frame) ValidateSize() error {
	_, hlen := f.Hardware()
	_, ilen := f.Protocol()
	minLen := 8 + 2*(int(hlen)+int(ilen))
	if len(f.buf) < minLen {
		return errShortARP
	}
	return nil
}

func (f Frame) String() string {
	hwt, _ := f.Hardware()
	ptt, _ := f.Protocol()
	sndhw, sndpt := f.Sender4()
	tgthw, tgtpt := f.Target4()
	var sndstr, tgtstr string
	if ptt == EtherTypeIPv4 {
		sender, _ := netip.AddrFromSlice(sndpt[:])
		target, _ := netip.AddrFromSlice(tgtpt[:])
		sndstr, tgtstr = sender.String(), target.String()
	}
	return fmt.Sprintf("ARP %s HW=(%d,SENDER=%s,TARGET=%s) PROTO=(%#04x,SENDER=%s,TARGET=%s)",
		f.Operation(), hwt, net.HardwareAddr(sndhw[:]), net.HardwareAddr(tgthw[:]), uint16(ptt), sndstr, tgtstr)
}

// BuildRequest fills buf (which must be at least sizeHeaderv4 bytes) with
// an Ethernet/IPv4 ARP request asking "who has targetIP", announcing
// senderHW/senderIP as the requester.
func BuildRequest(buf []byte, senderHW [6]byte, senderIP [4]byte, targetIP [4]byte) (Frame, error) {
	frm, err := NewFrame(buf)
	if err != nil {
		return Frame{}, err
	}
	frm.ClearHeader()
	frm.SetHardware(HTypeEthernet, 6)
	frm.SetProtocol(EtherTypeIPv4, 4)
	frm.SetOperation(OpRequest)
	shw, sip := frm.Sender4()
	*shw, *sip = senderHW, senderIP
	thw, tip := frm.Target4()
	*thw = [6]byte{}
	*tip = targetIP
	return frm.Clip(), nil
}

// BuildGratuitous fills buf with a gratuitous ARP announcement: both
// sender and target protocol addresses are set to announcedIP, which
// advertises ownership of that address to the local segment.
func BuildGratuitous(buf []byte, senderHW [6]byte, announcedIP [4]byte) (Frame, error) {
	frm, err := NewFrame(buf)
	if err != nil {
		return Frame{}, err
	}
	frm.ClearHeader()
	frm.SetHardware(HTypeEthernet, 6)
	frm.SetProtocol(EtherTypeIPv4, 4)
	frm.SetOperation(OpRequest)
	shw, sip := frm.Sender4()
	*shw, *sip = senderHW, announcedIP
	thw, tip := frm.Target4()
	*thw = [6]byte{}
	*tip = announcedIP
	return frm.Clip(), nil
}
