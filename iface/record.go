// Package iface implements the per-interface record: state, current
// negotiation, lease timers and last error. Status and last-error are
// published atomically for lock-free status reads; every other field is
// serialized by whatever lock the caller (the dhcpc dispatcher) holds.
package iface

import (
	"sync/atomic"

	"github.com/soypat/dhcpc/dhcpv4"
)

// State is the per-interface DHCP lease state machine state.
type State uint8

const (
	StateNone State = iota
	StateInit
	StateSelecting
	StateRequesting
	StateBound
	StateRenewing
	StateRebinding
	StateInitReboot
	StateLocalLink
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "NONE"
	case StateInit:
		return "INIT"
	case StateSelecting:
		return "SELECTING"
	case StateRequesting:
		return "REQUESTING"
	case StateBound:
		return "BOUND"
	case StateRenewing:
		return "RENEWING"
	case StateRebinding:
		return "REBINDING"
	case StateInitReboot:
		return "INIT_REBOOT"
	case StateLocalLink:
		return "LOCAL_LINK"
	case StateStopping:
		return "STOPPING"
	default:
		return "UNKNOWN"
	}
}

// Status is the lease_status observed by applications via check_status.
type Status uint32

const (
	StatusNone Status = iota
	StatusInProgress
	StatusCfgd
	StatusCfgdNoTimer
	StatusCfgdLocalLink
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusNone:
		return "NONE"
	case StatusInProgress:
		return "IN_PROGRESS"
	case StatusCfgd:
		return "CFGD"
	case StatusCfgdNoTimer:
		return "CFGD_NO_TIMER"
	case StatusCfgdLocalLink:
		return "CFGD_LOCAL_LINK"
	case StatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// HasConfiguredAddress reports whether status represents any state where
// the interface carries an address installed by this client: CFGD,
// CFGD_NO_TIMER or CFGD_LOCAL_LINK.
func HasConfiguredAddress(s Status) bool {
	return s == StatusCfgd || s == StatusCfgdNoTimer || s == StatusCfgdLocalLink
}

// Infinite is the IP_ADDRESS_LEASE_TIME sentinel meaning "no expiry".
const Infinite uint32 = 0xFFFFFFFF

// NoHandle marks an Interface Record as carrying no armed timer.
const NoHandle int = -1

// Record is one managed interface's full state. Every field except
// status/lastErr is serialized by the dispatcher's global mutex; status
// and lastErr are published with atomics so CheckStatus can read them
// lock-free.
type Record struct {
	IfID   string
	HWAddr [6]byte

	State State

	status  atomic.Uint32
	lastErr atomic.Int32

	XIDBase uint32
	XID     uint32

	ServerID  [4]byte
	ReqParams []dhcpv4.OptNum

	// LastMsg is the raw bytes of the most recently accepted OFFER or ACK.
	LastMsg []byte

	NegoStartedAt uint32 // monotonic ticks, seconds resolution

	LeaseSecs, T1Secs, T2Secs uint32

	// TimerHandle is an index-based handle into the timer wheel, or
	// NoHandle. An index rather than a pointer keeps the record and its
	// armed wheel entry free of cyclic references.
	TimerHandle int

	handle int // slot index within the owning Pool, for Release.
}

// NextXID increments and returns the next transaction id for this
// interface, merging the hardware-address-derived base with a
// monotonically increasing low byte. The xid changes between any two
// transmissions that are not bit-identical retransmits.
func (r *Record) NextXID() uint32 {
	r.XID++
	return r.XIDBase | (r.XID & 0xFF)
}

func (r *Record) Status() Status       { return Status(r.status.Load()) }
func (r *Record) SetStatus(s Status)   { r.status.Store(uint32(s)) }
func (r *Record) LastError() ErrCode   { return ErrCode(r.lastErr.Load()) }
func (r *Record) SetLastError(e ErrCode) { r.lastErr.Store(int32(e)) }

// xidBaseFromHWAddr derives the xid base from the least-significant 3
// octets of the hardware address, left-shifted one octet.
func xidBaseFromHWAddr(hw [6]byte) uint32 {
	return uint32(hw[3])<<24 | uint32(hw[4])<<16 | uint32(hw[5])<<8
}
