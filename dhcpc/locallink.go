package dhcpc

import (
	"time"

	"github.com/soypat/dhcpc/iface"
	"github.com/soypat/dhcpc/internal"
	"github.com/soypat/dhcpc/probe"
)

const (
	probeWait         = 1 * time.Second
	announceWait      = 2 * time.Second
	maxConflicts      = 10
	rateLimitInterval = 60 * time.Second
	announceNum       = 2
	announceInterval  = 2 * time.Second
)

// candidateLinkLocal picks a pseudo-random address in
// 169.254.1.0-169.254.254.255, seeded from the hardware address' last two
// octets XORed with the current tick.
func candidateLinkLocal(hw [6]byte, tick uint32) [4]byte {
	seed := uint16(hw[4])<<8 | uint16(hw[5])
	seed ^= uint16(tick)
	r := internal.Prand16(seed)

	// Map into [1, 254] for octet 3, full range for octet 4, avoiding the
	// reserved .0 and .255 subnets called out in RFC 3927 §2.1.
	third := byte(1 + r%254)
	fourth := byte(r >> 8)
	return [4]byte{169, 254, third, fourth}
}

// doLocalLink runs RFC 3927 dynamic link-local fallback, entered once
// INIT has exhausted its DHCP negotiation retries with the fallback
// enabled. On success it installs the address and leaves rec
// in StateLocalLink/StatusCfgdLocalLink; on exhausted retries it fails
// the interface with ErrLocalLinkFailed.
func (c *Client) doLocalLink(rec *iface.Record) {
	conflicts := 0
	for attempt := 0; attempt <= c.cfg.LocalLinkMaxRetry; attempt++ {
		if conflicts >= maxConflicts {
			c.clock.Sleep(rateLimitInterval)
		}
		cand := candidateLinkLocal(rec.HWAddr, c.clock.NowTicks()+uint32(attempt))
		result := c.prober.Probe(rec.IfID, cand, probeWait)
		if result == probe.Used {
			conflicts++
			continue
		}

		mask := [4]byte{255, 255, 0, 0}
		if err := c.ipv4.SetDynamicAddr(rec.IfID, cand, mask, [4]byte{}); err != nil {
			c.fail(rec, iface.ErrLocalLinkFailed)
			return
		}

		c.clock.Sleep(announceWait)
		for i := 0; i < announceNum; i++ {
			c.prober.ARP.Gratuitous(rec.IfID, cand)
			if i < announceNum-1 {
				c.clock.Sleep(announceInterval)
			}
		}

		rec.State = iface.StateLocalLink
		rec.SetStatus(iface.StatusCfgdLocalLink)
		c.cfg.metrics().StateChanged(rec.IfID, rec.State.String())
		c.publish(rec)
		return
	}
	c.fail(rec, iface.ErrLocalLinkFailed)
}
