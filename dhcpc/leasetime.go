package dhcpc

import "github.com/soypat/dhcpc/iface"

// LeaseTimes is the result of a lease-time calculation.
type LeaseTimes struct {
	LeaseSecs, T1Secs, T2Secs uint32
	Infinite                  bool
}

// computeLeaseTimes derives the lease timers from an ACK: T1/T2 come
// from RENEWAL_TIME_VALUE/REBINDING_TIME_VALUE if present, else 0.5 and
// 0.875 of IP_ADDRESS_LEASE_TIME, and the elapsed negotiation seconds
// are subtracted from each. An infinite lease (0xFFFFFFFF) arms no
// timers.
func computeLeaseTimes(leaseSecs, t1 uint32, t1Present bool, t2 uint32, t2Present bool, elapsed uint32) LeaseTimes {
	if leaseSecs == iface.Infinite {
		return LeaseTimes{Infinite: true}
	}
	if !t1Present {
		t1 = leaseSecs / 2
	}
	if !t2Present {
		t2 = uint32(uint64(leaseSecs) * 875 / 1000)
	}

	lt := LeaseTimes{
		LeaseSecs: subtractElapsed(leaseSecs, elapsed),
		T1Secs:    subtractElapsed(t1, elapsed),
		T2Secs:    subtractElapsed(t2, elapsed),
	}
	return lt
}

func subtractElapsed(v, elapsed uint32) uint32 {
	if elapsed >= v {
		return 0
	}
	return v - elapsed
}
