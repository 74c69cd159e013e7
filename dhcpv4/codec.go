package dhcpv4

import "encoding/binary"

// BuildParams carries everything BuildMessage needs to know about the
// sending interface, without importing package iface — keeping dhcpv4
// free of any dependency beyond the wire format itself.
type BuildParams struct {
	Kind MessageType
	// XID is the transaction id chosen by the caller for this negotiation.
	XID uint32
	// HWAddr is the interface's hardware (MAC) address, 6 bytes for Ethernet.
	HWAddr []byte
	// Broadcast is set when the interface has no usable IP configuration
	// yet and the reply must be broadcast back.
	Broadcast bool
	// CIAddr is filled into the ciaddr field; only meaningful when
	// renewing, rebinding or releasing an already-assigned address.
	CIAddr [4]byte
	// RequestedAddr is sent as OptRequestedIPAddress when SelectingOrDecline
	// is true.
	RequestedAddr [4]byte
	// SelectingOrDecline controls whether REQUESTED-IP-ADDRESS is emitted
	// (SELECTING, INIT_REBOOT, DECLINE).
	SelectingOrDecline bool
	// ServerID is sent as OptServerIdentifier when IncludeServerID is true.
	ServerID [4]byte
	// IncludeServerID controls whether SERVER-IDENTIFIER is emitted
	// (SELECTING, DECLINE, RELEASE).
	IncludeServerID bool
	// Hostname, if non-empty, is sent as OptHostName.
	Hostname string
	// RequestedOptions are application-requested option codes merged with
	// DefaultParamRequestList.
	RequestedOptions []OptNum
}

// BuildMessage writes a complete DHCPv4 message into out (which must be at
// least MinEncodedSize bytes) per the encode contract: fixed header, magic
// cookie, options, END, and PAD to the RFC 2131 minimum length. It returns
// the number of bytes written: MinEncodedSize when the options end within
// it (the tail is padded up to that size), otherwise the end of the END
// option.
func BuildMessage(p BuildParams, out []byte) (int, error) {
	if len(out) < MinEncodedSize {
		return 0, ErrBufferTooSmall
	}
	frm, err := NewFrame(out[:MinEncodedSize])
	if err != nil {
		return 0, err
	}
	frm.ClearHeader()
	frm.SetOp(OpRequest)
	frm.SetHType(1) // Ethernet
	frm.SetHLen(6)
	frm.SetXID(p.XID)
	if p.Broadcast {
		frm.SetFlags(FlagBroadcast)
	}
	if p.CIAddr != ([4]byte{}) {
		*frm.CIAddr() = p.CIAddr
	}
	frm.SetCHAddr(p.HWAddr)
	frm.SetMagicCookie()

	// Options are assembled into a scratch slice of their own rather than
	// appended directly onto out: out's capacity may be exactly len(out)
	// (the common case, a freshly make()'d buffer), and append() silently
	// reallocates past that point instead of erroring — which would leave
	// out holding only the header while the real option bytes vanished
	// into a detached array. Building into headroom we control and
	// copying back with an explicit length check avoids that.
	opts := make([]byte, OptionsOffset, len(out)+64)
	copy(opts, out[:OptionsOffset])
	opts, err = AppendOption(opts, OptMessageType, []byte{byte(p.Kind)})
	if err != nil {
		return 0, err
	}
	if p.SelectingOrDecline {
		opts = AppendOptionIP(opts, OptRequestedIPAddress, p.RequestedAddr)
	}
	if p.IncludeServerID {
		opts = AppendOptionIP(opts, OptServerIdentifier, p.ServerID)
	}
	if p.Hostname != "" {
		opts, err = AppendOption(opts, OptHostName, []byte(p.Hostname))
		if err != nil {
			return 0, err
		}
	}
	paramList := mergeParamRequestList(p.RequestedOptions)
	paramBytes := make([]byte, len(paramList))
	for i, c := range paramList {
		paramBytes[i] = byte(c)
	}
	opts, err = AppendOption(opts, OptParameterRequestList, paramBytes)
	if err != nil {
		return 0, err
	}
	opts = append(opts, byte(OptEnd))

	n := len(opts)
	if n > len(out) {
		return 0, ErrBufferTooSmall
	}
	copy(out, opts)
	if n < MinEncodedSize {
		for i := n; i < MinEncodedSize; i++ {
			out[i] = byte(OptPad)
		}
		return MinEncodedSize, nil
	}
	return n, nil
}

// mergeParamRequestList merges the system defaults with application
// requested codes. Duplicates are permitted; the recipient is required to
// dedupe per the encode contract.
func mergeParamRequestList(requested []OptNum) []OptNum {
	out := make([]OptNum, 0, len(DefaultParamRequestList)+len(requested))
	out = append(out, DefaultParamRequestList...)
	out = append(out, requested...)
	return out
}

// FindOption implements the decode contract: it verifies the magic cookie
// then scans the TLV stream for code, returning the slice of the option's
// data within buf. A return of (nil, false) means the option is absent, the
// cookie is bad, or the buffer is malformed.
func FindOption(buf []byte, code OptNum) (data []byte, ok bool) {
	frm, err := NewFrame(buf)
	if err != nil {
		return nil, false
	}
	if frm.MagicCookie() != MagicCookie {
		return nil, false
	}
	var found []byte
	err = frm.ForEachOption(func(op OptNum, d []byte) error {
		if op == code {
			found = d
		}
		return nil
	})
	if err != nil || found == nil {
		return nil, false
	}
	return found, true
}

// MessageKind returns the DHCP message type carried by buf, or (0, false)
// if absent or the buffer is malformed.
func MessageKind(buf []byte) (MessageType, bool) {
	data, ok := FindOption(buf, OptMessageType)
	if !ok || len(data) != 1 {
		return 0, false
	}
	return MessageType(data[0]), true
}

// decodeUint32Option is a helper for the several 4-byte big-endian option
// values this client cares about (lease time, T1, T2).
func decodeUint32Option(buf []byte, code OptNum) (uint32, bool) {
	data, ok := FindOption(buf, code)
	if !ok || len(data) != 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(data), true
}

// LeaseTime returns the IP-ADDRESS-LEASE-TIME option value in seconds.
func LeaseTime(buf []byte) (uint32, bool) { return decodeUint32Option(buf, OptIPAddressLeaseTime) }

// RenewalTime returns the RENEWAL-TIME-VALUE (T1) option value in seconds.
func RenewalTime(buf []byte) (uint32, bool) { return decodeUint32Option(buf, OptRenewalTimeValue) }

// RebindingTime returns the REBINDING-TIME-VALUE (T2) option value in seconds.
func RebindingTime(buf []byte) (uint32, bool) { return decodeUint32Option(buf, OptRebindingTimeValue) }

// ServerIdentifier returns the SERVER-IDENTIFIER option value.
func ServerIdentifier(buf []byte) (addr [4]byte, ok bool) {
	data, ok := FindOption(buf, OptServerIdentifier)
	if !ok || len(data) != 4 {
		return addr, false
	}
	copy(addr[:], data)
	return addr, true
}

// SubnetMask returns the SUBNET-MASK option value.
func SubnetMask(buf []byte) (mask [4]byte, ok bool) {
	data, ok := FindOption(buf, OptSubnetMask)
	if !ok || len(data) != 4 {
		return mask, false
	}
	copy(mask[:], data)
	return mask, true
}

// Router returns the first address in the ROUTER option, if present.
func Router(buf []byte) (addr [4]byte, ok bool) {
	data, ok := FindOption(buf, OptRouter)
	if !ok || len(data) < 4 {
		return addr, false
	}
	copy(addr[:], data[:4])
	return addr, true
}
