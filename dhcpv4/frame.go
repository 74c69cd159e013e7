package dhcpv4

import (
	"encoding/binary"
	"errors"
)

// Frame is a zero-copy view over a DHCPv4 datagram payload (the UDP
// payload, not including IP/UDP headers). It provides field accessors
// directly over the backing buffer; no allocation happens on access.
type Frame struct {
	buf []byte
}

var (
	errSmallFrame     = errors.New("dhcpv4: frame smaller than fixed header")
	errDHCPBadOption   = errors.New("dhcpv4: option length runs past buffer")
	errNoOptions       = errors.New("dhcpv4: buffer too small to contain options section")
	errOptionNotFit    = errors.New("dhcpv4: option does not fit in remaining buffer")
)

// NewFrame returns a Frame over buf. buf must be at least MinDecodedSize
// bytes; callers building a new message should pass a buffer of at least
// MinEncodedSize bytes so the result meets the RFC 2131 §2 minimum size.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < MinDecodedSize {
		return Frame{}, errSmallFrame
	}
	return Frame{buf: buf}, nil
}

// RawData returns the underlying buffer backing the frame.
func (f Frame) RawData() []byte { return f.buf }

func (f Frame) Op() Op        { return Op(f.buf[0]) }
func (f Frame) SetOp(op Op)   { f.buf[0] = byte(op) }
func (f Frame) HType() uint8  { return f.buf[1] }
func (f Frame) SetHType(h uint8) { f.buf[1] = h }
func (f Frame) HLen() uint8   { return f.buf[2] }
func (f Frame) SetHLen(n uint8)  { f.buf[2] = n }
func (f Frame) Hops() uint8   { return f.buf[3] }

func (f Frame) XID() uint32     { return binary.BigEndian.Uint32(f.buf[4:8]) }
func (f Frame) SetXID(v uint32) { binary.BigEndian.PutUint32(f.buf[4:8], v) }

func (f Frame) Secs() uint16     { return binary.BigEndian.Uint16(f.buf[8:10]) }
func (f Frame) SetSecs(v uint16) { binary.BigEndian.PutUint16(f.buf[8:10], v) }

func (f Frame) Flags() Flags     { return Flags(binary.BigEndian.Uint16(f.buf[10:12])) }
func (f Frame) SetFlags(v Flags) { binary.BigEndian.PutUint16(f.buf[10:12], uint16(v)) }

// CIAddr is the client IP address, filled in by the client in RENEWING,
// REBINDING or when responding while already bound.
func (f Frame) CIAddr() *[4]byte { return (*[4]byte)(f.buf[12:16]) }

// YIAddr is "your" (client) IP address, filled in by the server.
func (f Frame) YIAddr() *[4]byte { return (*[4]byte)(f.buf[16:20]) }

// SIAddr is the next-server-to-use address (bootstrap), mostly unused here.
func (f Frame) SIAddr() *[4]byte { return (*[4]byte)(f.buf[20:24]) }

// GIAddr is the relay agent address.
func (f Frame) GIAddr() *[4]byte { return (*[4]byte)(f.buf[24:28]) }

// CHAddr returns the full 16-byte client hardware address field.
func (f Frame) CHAddr() []byte { return f.buf[28:44] }

// CHAddrAs6 returns the first 6 bytes of the client hardware address field,
// the common case for Ethernet.
func (f Frame) CHAddrAs6() *[6]byte { return (*[6]byte)(f.buf[28:34]) }

func (f Frame) SetCHAddr(hw []byte) {
	chaddr := f.CHAddr()
	for i := range chaddr {
		chaddr[i] = 0
	}
	copy(chaddr, hw)
	f.SetHLen(uint8(len(hw)))
}

func (f Frame) MagicCookie() uint32 {
	return binary.BigEndian.Uint32(f.buf[MagicCookieOffset : MagicCookieOffset+4])
}

func (f Frame) SetMagicCookie() {
	binary.BigEndian.PutUint32(f.buf[MagicCookieOffset:MagicCookieOffset+4], MagicCookie)
}

// ClearHeader zeros the fixed BOOTP header, sname and file fields, leaving
// the magic cookie and options section untouched.
func (f Frame) ClearHeader() {
	for i := range f.buf[:MagicCookieOffset] {
		f.buf[i] = 0
	}
}

// Options returns the raw options slice, from after the magic cookie to
// the end of the backing buffer.
func (f Frame) Options() []byte { return f.buf[OptionsOffset:] }

// ForEachOption walks the options TLV stream calling fn for each option
// found, skipping PAD bytes and stopping at END or buffer exhaustion. If
// fn returns an error the walk stops early and that error is returned.
func (f Frame) ForEachOption(fn func(op OptNum, data []byte) error) error {
	if len(f.buf) < OptionsOffset {
		return errNoOptions
	}
	opts := f.buf[OptionsOffset:]
	for i := 0; i < len(opts); {
		code := OptNum(opts[i])
		if code == OptPad {
			i++
			continue
		}
		if code == OptEnd {
			return nil
		}
		if i+1 >= len(opts) {
			return errDHCPBadOption
		}
		length := int(opts[i+1])
		start := i + 2
		end := start + length
		if end > len(opts) {
			return errDHCPBadOption
		}
		if err := fn(code, opts[start:end]); err != nil {
			return err
		}
		i = end
	}
	return nil
}

// AppendOption appends a single TLV option to dst and returns the grown
// slice. data must be at most 255 bytes.
func AppendOption(dst []byte, op OptNum, data []byte) ([]byte, error) {
	if len(data) > 255 {
		return dst, errOptionNotFit
	}
	dst = append(dst, byte(op), byte(len(data)))
	dst = append(dst, data...)
	return dst, nil
}

// AppendOptionByte appends a single-byte option value.
func AppendOptionByte(dst []byte, op OptNum, v byte) []byte {
	dst, _ = AppendOption(dst, op, []byte{v})
	return dst
}

// AppendOptionUint32 appends a big-endian uint32 option value, used for
// lease/renewal/rebinding times.
func AppendOptionUint32(dst []byte, op OptNum, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	dst, _ = AppendOption(dst, op, tmp[:])
	return dst
}

// AppendOptionIP appends a 4-byte IPv4 address option value.
func AppendOptionIP(dst []byte, op OptNum, addr [4]byte) []byte {
	dst, _ = AppendOption(dst, op, addr[:])
	return dst
}
