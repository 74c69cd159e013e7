package dhcpc

import (
	"net/netip"
	"time"

	"github.com/soypat/dhcpc/cmdqueue"
	"github.com/soypat/dhcpc/dhcpv4"
	"github.com/soypat/dhcpc/iface"
	"github.com/soypat/dhcpc/probe"
	"github.com/soypat/dhcpc/retransmit"
)

// Delays used by the INIT handler and the pre-acceptance address probe,
// not otherwise tied to a retry schedule.
const (
	nakRetryDelay         = 10 * time.Second
	declineRetryDelay     = 2 * time.Second
	addrValidateProbeWait = 1 * time.Second
)

// handleInit runs the INIT phase: check that the interface is enabled
// and open a socket, clear any existing configuration, then loop
// DISCOVER/REQUEST up to NEGO_RETRIES times, validating the offered
// address when ADDR_VALIDATE_ON is set. On success the interface is
// configured and BOUND; on exhausted retries it falls back to link-local
// selection (if enabled) or reports FAILED.
func (c *Client) handleInit(rec *iface.Record) {
	rec.State = iface.StateInit
	c.publish(rec)

	if !c.ipv4.IsEnabled(rec.IfID) {
		c.fail(rec, iface.ErrInterfaceInvalid)
		return
	}

	sock, err := c.sockets.Open(rec.IfID, netip.IPv4Unspecified())
	if err != nil {
		c.fail(rec, iface.ErrSocketInitFailed)
		return
	}
	defer sock.Close()

	if err := c.ipv4.BeginDynamic(rec.IfID); err != nil {
		c.fail(rec, iface.ErrConfigFailed)
		return
	}

	eng := &retransmit.Engine{Socket: sock, Sleeper: clockSleeper{c.clock}, RXTimeout: c.rxTimeout()}
	buf := make([]byte, dhcpv4.MinEncodedSize)

	for attempt := 0; attempt < c.cfg.NegoRetries; attempt++ {
		rec.State = iface.StateInit
		rec.NegoStartedAt = c.clock.NowTicks()

		offer, serverID, ok := c.doDiscover(rec, eng, buf)
		if !ok {
			continue
		}

		ack, ok := c.doRequestSelecting(rec, eng, buf, serverID, *mustFrame(offer).YIAddr())
		if !ok {
			continue // NAK or timeout already recorded; retry from INIT
		}

		if c.cfg.AddrValidateOn {
			host := *mustFrame(ack).YIAddr()
			result := c.prober.Probe(rec.IfID, host, addrValidateProbeWait)
			if result == probe.Used {
				c.cfg.logger().Warn("offered address already in use, declining",
					"iface", rec.IfID, "addr", netip.AddrFrom4(host).String())
				c.sendDecline(rec, sock, serverID, host)
				rec.SetLastError(iface.ErrAddrInUse)
				c.clock.Sleep(declineRetryDelay)
				continue
			}
		}

		c.onBound(rec, ack)
		return
	}

	if c.cfg.LocalLinkOn {
		c.doLocalLink(rec)
		return
	}
	// Keep whatever protocol error ended the last attempt (NAK, address
	// in use) rather than masking it; a clean record means no OFFER ever
	// arrived.
	lastErr := rec.LastError()
	if lastErr == iface.ErrNone {
		lastErr = iface.ErrNoOffer
	}
	c.fail(rec, lastErr)
}

// doDiscover runs one DISCOVER exchange and extracts the offering
// server's identifier. ok is false if no OFFER arrived within
// DISCOVER_RETRIES.
func (c *Client) doDiscover(rec *iface.Record, eng *retransmit.Engine, buf []byte) (offer []byte, serverID [4]byte, ok bool) {
	rec.State = iface.StateSelecting
	c.cfg.logger().Debug("sending discover", "iface", rec.IfID)
	c.cfg.metrics().RetransmitAttempt(rec.IfID, "discover")
	xid := rec.NextXID()
	params := retransmit.DiscoverParams{
		Build: dhcpv4.BuildParams{
			Hostname:         c.cfg.Hostname,
			RequestedOptions: rec.ReqParams,
		},
		XID:                 xid,
		HWAddr:              rec.HWAddr,
		Retries:             c.cfg.DiscoverRetries,
		Backoff:             retransmit.NewBackoff(backoffSeed(rec, xid)),
		ServerPort:          uint16(c.cfg.ServerPort),
		BroadcastBitEnabled: c.cfg.BroadcastBitEnabled,
	}
	reply, err := eng.Discover(params, buf)
	if err != nil {
		rec.SetLastError(iface.ErrNoOffer)
		return nil, serverID, false
	}
	sid, _ := dhcpv4.ServerIdentifier(reply)
	out := make([]byte, len(reply))
	copy(out, reply)
	return out, sid, true
}

// doRequestSelecting confirms an OFFER with a broadcast REQUEST. A NAK
// sends the interface back to INIT after a >=10s delay; any
// other failure just returns false for the caller's own retry.
func (c *Client) doRequestSelecting(rec *iface.Record, eng *retransmit.Engine, buf []byte, serverID, yiaddr [4]byte) ([]byte, bool) {
	rec.State = iface.StateRequesting
	c.cfg.metrics().RetransmitAttempt(rec.IfID, "request-selecting")
	xid := rec.NextXID()
	params := retransmit.RequestParams{
		Build: dhcpv4.BuildParams{
			Hostname:           c.cfg.Hostname,
			RequestedOptions:   rec.ReqParams,
			SelectingOrDecline: true,
			RequestedAddr:      yiaddr,
			IncludeServerID:    true,
			ServerID:           serverID,
		},
		XID:                 xid,
		HWAddr:              rec.HWAddr,
		Retries:             c.cfg.RequestRetries,
		Backoff:             retransmit.NewBackoff(backoffSeed(rec, xid)),
		Unicast:             false,
		ServerPort:          uint16(c.cfg.ServerPort),
		BroadcastBitEnabled: c.cfg.BroadcastBitEnabled,
	}
	ack, err := eng.Request(params, buf)
	if err == retransmit.ErrNAK {
		c.cfg.logger().Warn("server sent NAK", "iface", rec.IfID)
		rec.SetLastError(iface.ErrNAKReceived)
		rec.State = iface.StateInit
		c.clock.Sleep(nakRetryDelay)
		return nil, false
	}
	if err != nil {
		rec.SetLastError(iface.ErrRXTimeout)
		return nil, false
	}
	out := make([]byte, len(ack))
	copy(out, ack)
	return out, true
}

// onBound installs the address carried by ack, computes lease timers
// and transitions rec to BOUND. Used both by the INIT
// handler's first acquisition and by successful renew/rebind ACKs.
func (c *Client) onBound(rec *iface.Record, ack []byte) {
	host := *mustFrame(ack).YIAddr()
	mask, _ := dhcpv4.SubnetMask(ack)
	gw, _ := dhcpv4.Router(ack)
	if err := c.ipv4.SetDynamicAddr(rec.IfID, host, mask, gw); err != nil {
		c.fail(rec, iface.ErrConfigFailed)
		return
	}

	sid, _ := dhcpv4.ServerIdentifier(ack)
	rec.ServerID = sid
	rec.LastMsg = ack

	lease, _ := dhcpv4.LeaseTime(ack)
	t1, t1ok := dhcpv4.RenewalTime(ack)
	t2, t2ok := dhcpv4.RebindingTime(ack)
	elapsed := ElapsedSecs(rec.NegoStartedAt, c.clock.NowTicks())
	lt := computeLeaseTimes(lease, t1, t1ok, t2, t2ok, elapsed)
	rec.LeaseSecs, rec.T1Secs, rec.T2Secs = lt.LeaseSecs, lt.T1Secs, lt.T2Secs
	rec.State = iface.StateBound

	if lt.Infinite {
		c.cancelTimer(rec)
		rec.SetStatus(iface.StatusCfgdNoTimer)
		c.cfg.metrics().LeaseRenewed(rec.IfID)
		c.publish(rec)
		return
	}

	c.armTimer(rec, lt.T1Secs, cmdqueue.KindT1Expired)
	if rec.TimerHandle == iface.NoHandle {
		rec.SetStatus(iface.StatusCfgdNoTimer)
	} else {
		rec.SetStatus(iface.StatusCfgd)
	}
	rec.SetLastError(iface.ErrNone)
	c.cfg.metrics().LeaseRenewed(rec.IfID)
	c.publish(rec)
}

// fail records a terminal, non-recoverable error for rec. The record
// stays in the active set (only Stop removes it) so
// the application can still observe it via CheckStatus.
func (c *Client) fail(rec *iface.Record, errCode iface.ErrCode) {
	c.cfg.logger().Error("lease acquisition failed", "iface", rec.IfID, "err", errCode.String())
	c.cancelTimer(rec)
	rec.SetLastError(errCode)
	rec.SetStatus(iface.StatusFailed)
	rec.State = iface.StateInit
	c.cfg.metrics().LeaseFailed(rec.IfID)
	c.publish(rec)
}

// sendDecline sends a one-shot, unacknowledged DECLINE for addr to
// 255.255.255.255:67: no retry, no wait for a reply.
func (c *Client) sendDecline(rec *iface.Record, sock retransmit.Socket, serverID, addr [4]byte) {
	buf := make([]byte, dhcpv4.MinEncodedSize)
	n, err := dhcpv4.BuildMessage(dhcpv4.BuildParams{
		Kind:               dhcpv4.MsgDecline,
		XID:                rec.NextXID(),
		HWAddr:             rec.HWAddr[:],
		Broadcast:          true,
		SelectingOrDecline: true,
		RequestedAddr:      addr,
		IncludeServerID:    true,
		ServerID:           serverID,
	}, buf)
	if err != nil {
		return
	}
	dst := netip.AddrPortFrom(netip.AddrFrom4([4]byte{255, 255, 255, 255}), uint16(c.cfg.ServerPort))
	sock.SendTo(buf[:n], dst)
}

// handleRenew runs the RENEWING phase after T1 fired while BOUND.
// It unicasts a REQUEST to the current server_id over a socket bound to
// the leased address.
func (c *Client) handleRenew(rec *iface.Record) {
	rec.State = iface.StateRenewing
	c.publish(rec)
	c.cfg.metrics().RetransmitAttempt(rec.IfID, "renew")
	rec.NegoStartedAt = c.clock.NowTicks()

	host := *mustFrame(rec.LastMsg).YIAddr()
	sock, err := c.sockets.Open(rec.IfID, netip.AddrFrom4(host))
	if err != nil {
		c.onExtendFailure(rec, subtractElapsed(rec.T2Secs, rec.T1Secs), cmdqueue.KindT2Expired, iface.ErrSocketInitFailed)
		return
	}
	defer sock.Close()

	eng := &retransmit.Engine{Socket: sock, Sleeper: clockSleeper{c.clock}, RXTimeout: c.rxTimeout()}
	buf := make([]byte, dhcpv4.MinEncodedSize)
	xid := rec.NextXID()
	params := retransmit.RequestParams{
		Build: dhcpv4.BuildParams{
			Hostname:         c.cfg.Hostname,
			RequestedOptions: rec.ReqParams,
			CIAddr:           host,
		},
		XID:                 xid,
		HWAddr:              rec.HWAddr,
		Retries:             c.cfg.RequestRetries,
		Backoff:             retransmit.NewBackoff(backoffSeed(rec, xid)),
		Unicast:             true,
		ServerID:            rec.ServerID,
		ServerPort:          uint16(c.cfg.ServerPort),
		BroadcastBitEnabled: c.cfg.BroadcastBitEnabled,
	}
	ack, err := eng.Request(params, buf)
	if err != nil {
		errCode := iface.ErrRXTimeout
		if err == retransmit.ErrNAK {
			errCode = iface.ErrNAKReceived
		}
		c.onExtendFailure(rec, subtractElapsed(rec.T2Secs, rec.T1Secs), cmdqueue.KindT2Expired, errCode)
		return
	}
	out := make([]byte, len(ack))
	copy(out, ack)
	c.onBound(rec, out)
	c.cfg.metrics().LeaseRenewed(rec.IfID)
}

// handleRebind runs the REBINDING phase after T2 fired while
// RENEWING. It broadcasts a REQUEST over a socket bound to 0.0.0.0.
func (c *Client) handleRebind(rec *iface.Record) {
	rec.State = iface.StateRebinding
	c.publish(rec)
	c.cfg.metrics().RetransmitAttempt(rec.IfID, "rebind")
	rec.NegoStartedAt = c.clock.NowTicks()

	host := *mustFrame(rec.LastMsg).YIAddr()
	sock, err := c.sockets.Open(rec.IfID, netip.IPv4Unspecified())
	if err != nil {
		c.onExtendFailure(rec, subtractElapsed(rec.LeaseSecs, rec.T2Secs), cmdqueue.KindLeaseExpired, iface.ErrSocketInitFailed)
		return
	}
	defer sock.Close()

	eng := &retransmit.Engine{Socket: sock, Sleeper: clockSleeper{c.clock}, RXTimeout: c.rxTimeout()}
	buf := make([]byte, dhcpv4.MinEncodedSize)
	xid := rec.NextXID()
	params := retransmit.RequestParams{
		Build: dhcpv4.BuildParams{
			Hostname:         c.cfg.Hostname,
			RequestedOptions: rec.ReqParams,
			CIAddr:           host,
		},
		XID:                 xid,
		HWAddr:              rec.HWAddr,
		Retries:             c.cfg.RequestRetries,
		Backoff:             retransmit.NewBackoff(backoffSeed(rec, xid)),
		Unicast:             false,
		ServerPort:          uint16(c.cfg.ServerPort),
		BroadcastBitEnabled: c.cfg.BroadcastBitEnabled,
	}
	ack, err := eng.Request(params, buf)
	if err != nil {
		errCode := iface.ErrRXTimeout
		if err == retransmit.ErrNAK {
			errCode = iface.ErrNAKReceived
		}
		c.onExtendFailure(rec, subtractElapsed(rec.LeaseSecs, rec.T2Secs), cmdqueue.KindLeaseExpired, errCode)
		return
	}
	out := make([]byte, len(ack))
	copy(out, ack)
	c.onBound(rec, out)
	c.cfg.metrics().LeaseRebound(rec.IfID)
}

// onExtendFailure handles a REQUEST during RENEWING or REBINDING that
// failed to produce an ACK: the still-valid lease keeps being used, and
// the next retry is scheduled at half the remaining window, floored at
// MinRetxTime. remaining is the time left, in seconds, until the phase
// nextKind represents would naturally occur. rec.State is left untouched
// (still RENEWING/REBINDING) so the eventually-posted nextKind command
// remains valid in the dispatch table; forcing it back to BOUND here
// would let a stale T1 re-enter handleRenew mid-rebind.
func (c *Client) onExtendFailure(rec *iface.Record, remaining uint32, nextKind cmdqueue.Kind, lastErr iface.ErrCode) {
	rec.SetLastError(lastErr)
	elapsed := ElapsedSecs(rec.NegoStartedAt, c.clock.NowTicks())
	remaining = subtractElapsed(remaining, elapsed)

	floor := uint32(MinRetxTime / time.Second)
	if floor > remaining {
		// Can't even wait out the floor before the real deadline —
		// collapse straight into the next phase.
		c.cancelTimer(rec)
		c.queue.Post(cmdqueue.Command{IfID: rec.IfID, Kind: nextKind})
		c.publish(rec)
		return
	}

	half := remaining / 2
	if half < floor {
		half = floor
	}
	c.armTimer(rec, half, nextKind)
	c.publish(rec)
}

// handleStop runs STOP: best-effort RELEASE if
// the interface currently holds a lease, then tear down timers, the
// configured address, and the interface record itself. STOP is terminal
// regardless of RELEASE's outcome.
func (c *Client) handleStop(rec *iface.Record) {
	rec.State = iface.StateStopping
	if iface.HasConfiguredAddress(rec.Status()) && rec.LastMsg != nil {
		c.sendRelease(rec)
	}
	c.cancelTimer(rec)
	rec.LastMsg = nil
	c.ipv4.RemoveAll(rec.IfID)
	c.pool.Release(rec)
}

// sendRelease sends a one-shot, unacknowledged RELEASE to the current
// server_id. Failure is ignored per RFC 2131.
func (c *Client) sendRelease(rec *iface.Record) {
	host := *mustFrame(rec.LastMsg).YIAddr()
	sock, err := c.sockets.Open(rec.IfID, netip.AddrFrom4(host))
	if err != nil {
		return
	}
	defer sock.Close()

	buf := make([]byte, dhcpv4.MinEncodedSize)
	n, err := dhcpv4.BuildMessage(dhcpv4.BuildParams{
		Kind:            dhcpv4.MsgRelease,
		XID:             rec.NextXID(),
		HWAddr:          rec.HWAddr[:],
		CIAddr:          host,
		IncludeServerID: true,
		ServerID:        rec.ServerID,
	}, buf)
	if err != nil {
		return
	}
	dst := netip.AddrPortFrom(netip.AddrFrom4(rec.ServerID), uint16(c.cfg.ServerPort))
	sock.SendTo(buf[:n], dst)
}

// backoffSeed derives a per-exchange jitter seed from the interface's
// hardware address and the chosen transaction id, so concurrent
// interfaces don't share identical backoff jitter sequences.
func backoffSeed(rec *iface.Record, xid uint32) uint16 {
	return (uint16(rec.HWAddr[4])<<8 | uint16(rec.HWAddr[5])) ^ uint16(xid)
}

// mustFrame views buf as a decoded frame. Only ever called on buffers this
// package itself built or already validated via FindOption/MessageKind,
// so a decode failure here would mean an internal invariant broke.
func mustFrame(buf []byte) dhcpv4.Frame {
	frm, err := dhcpv4.NewFrame(buf)
	if err != nil {
		panic("dhcpc: internal invariant violated: " + err.Error())
	}
	return frm
}
