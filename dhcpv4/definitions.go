// Package dhcpv4 implements the RFC 2131 DHCPv4 wire format: the fixed
// header, the magic cookie, and the TLV options stream. It knows nothing
// about sockets, timers or interface state; it only serializes and parses
// buffers.
package dhcpv4

import "errors"

//go:generate stringer -type=OptNum,Op,MessageType -linecomment -output stringers.go

const (
	sizeSName    = 64  // Server name, part of BOOTP too.
	sizeBootFile = 128 // Boot file name, legacy.
	SizeHeader   = 44

	// MagicCookieOffset is the offset of the 4-byte magic cookie, measured
	// from the start of the UDP payload.
	MagicCookieOffset = SizeHeader + sizeSName + sizeBootFile
	// MagicCookie is the expected value of the magic cookie marking the
	// start of the options section.
	MagicCookie uint32 = 0x63825363
	// OptionsOffset is the offset of the first option TLV, measured from
	// the start of the UDP payload.
	OptionsOffset = MagicCookieOffset + 4

	// MinEncodedSize is the minimum total datagram size the encoder must
	// produce (header + cookie + options + padding), per RFC 2131 §2.
	MinEncodedSize = 300
	// MinDecodedSize is the minimum buffer size the decoder accepts.
	MinDecodedSize = OptionsOffset

	DefaultClientPort = 68
	DefaultServerPort = 67
)

// Op is the BOOTP message op code (first header byte).
type Op uint8

const (
	opUndefined Op = iota // undefined
	OpRequest             // request
	OpReply               // reply
)

// MessageType is the value of the DHCP-MESSAGE-TYPE option (53).
type MessageType uint8

const (
	msgUndefined MessageType = iota // undefined
	MsgDiscover                     // discover
	MsgOffer                        // offer
	MsgRequest                      // request
	MsgDecline                      // decline
	MsgAck                          // ack
	MsgNak                          // nak
	MsgRelease                      // release
	MsgInform                       // inform
)

// OptNum is a DHCP/BOOTP option code.
type OptNum uint8

// Options used by this client. Additional codes may be
// requested by the application via RequestedOptions and are otherwise
// opaque to this package.
const (
	OptPad                  OptNum = 0  // pad
	OptSubnetMask           OptNum = 1  // subnet mask
	OptTimeOffset           OptNum = 2  // time offset
	OptRouter               OptNum = 3  // router
	OptTimeServers          OptNum = 4  // time servers
	OptDNSServers           OptNum = 6  // dns servers
	OptHostName             OptNum = 12 // host name
	OptBroadcastAddress     OptNum = 28 // broadcast address
	OptRequestedIPAddress   OptNum = 50 // requested ip address
	OptIPAddressLeaseTime   OptNum = 51 // ip address lease time
	OptOptionOverload       OptNum = 52 // option overload
	OptMessageType          OptNum = 53 // dhcp message type
	OptServerIdentifier     OptNum = 54 // server identifier
	OptParameterRequestList OptNum = 55 // parameter request list
	OptMessage              OptNum = 56 // message
	OptMaximumMessageSize   OptNum = 57 // maximum message size
	OptRenewalTimeValue     OptNum = 58 // renewal time value
	OptRebindingTimeValue   OptNum = 59 // rebinding time value
	OptClientIdentifier     OptNum = 61 // client identifier
	OptEnd                  OptNum = 255
)

// Flags is the 16-bit BOOTP flags field. Only the high bit is defined.
type Flags uint16

const FlagBroadcast Flags = 0x8000

var (
	ErrBufferTooSmall = errors.New("dhcpv4: buffer too small")
	ErrBadMagicCookie  = errors.New("dhcpv4: missing or bad magic cookie")
	ErrBadOption       = errors.New("dhcpv4: option length exceeds buffer")
	ErrUnknownMsgType  = errors.New("dhcpv4: unknown or missing message type")
)

// DefaultParamRequestList are the option codes the system always asks for,
// regardless of what the application additionally requests.
var DefaultParamRequestList = []OptNum{OptSubnetMask, OptRouter, OptDNSServers, OptTimeOffset}
