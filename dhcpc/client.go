// Package dhcpc is the State Machine / Dispatcher (C7): the public client
// API and the per-interface DHCP phase driver that orchestrates the wire
// codec, interface records, timer wheel, command queue, retransmission
// engine and address probe packages.
package dhcpc

import (
	"context"
	"sync"
	"time"

	"github.com/soypat/dhcpc/cmdqueue"
	"github.com/soypat/dhcpc/dhcpv4"
	"github.com/soypat/dhcpc/iface"
	"github.com/soypat/dhcpc/probe"
	"github.com/soypat/dhcpc/timer"
)

// Event is a best-effort state-transition notification delivered via
// Subscribe, a push-model alternative to polling CheckStatus.
type Event struct {
	IfID   string
	State  iface.State
	Status iface.Status
	Err    iface.ErrCode
}

// Client is the DHCPv4 client core. All exported methods are safe for
// concurrent use; Init must be called once before Start/Stop.
type Client struct {
	cfg Config

	sockets SocketFactory
	ipv4    IPv4Stack
	ifaces  Interfaces
	prober  *probe.Prober
	clock   Clock

	// mu serializes all protocol work: it wraps both the dispatcher's
	// handler execution (including blocking socket I/O and sleeps; DHCP
	// timings are human-scale) and the timer goroutine's wheel walk. At
	// most one interface is ever mid-dispatch at a time.
	mu    sync.Mutex
	pool  *iface.Pool
	wheel *timer.Wheel
	queue *cmdqueue.Queue

	subMu sync.Mutex
	subs  []chan Event

	initOnce sync.Once
	cancel   context.CancelFunc
}

// New constructs a Client wired to the given external collaborators.
// Init must still be called before Start/Stop will do anything.
func New(cfg Config, sockets SocketFactory, ipv4 IPv4Stack, ifaces Interfaces, arp ARP, clock Clock) *Client {
	return &Client{
		cfg:     cfg,
		sockets: sockets,
		ipv4:    ipv4,
		ifaces:  ifaces,
		clock:   clock,
		prober:  &probe.Prober{ARP: arp, Sleeper: clockSleeper{clock}},
	}
}

type clockSleeper struct{ c Clock }

func (s clockSleeper) Sleep(d time.Duration) { s.c.Sleep(d) }

// Init sets up the interface pool, timer wheel and command queue, then
// starts the dispatcher and timer goroutines. Subsequent calls are
// no-ops.
func (c *Client) Init() error {
	var err error
	c.initOnce.Do(func() {
		c.pool = iface.NewPool(c.cfg.MaxIfaces)
		c.wheel = timer.NewWheel(c.cfg.MaxIfaces)
		c.queue = cmdqueue.New(c.cfg.MaxIfaces * 4)

		ctx, cancel := context.WithCancel(context.Background())
		c.cancel = cancel
		go c.dispatchLoop(ctx)
		go c.timerLoop(ctx)
	})
	return err
}

// Close stops the dispatcher and timer goroutines. Needed for clean
// process exit and for tests; managed interfaces should be stopped via
// Stop first so their leases are released.
func (c *Client) Close() {
	if c.cancel != nil {
		c.cancel()
	}
}

// Start inserts a new interface record for ifID and enqueues START.
// reqParams are additional option codes the application wants
// surfaced via GetOption.
func (c *Client) Start(ifID string, reqParams []dhcpv4.OptNum) error {
	if len(reqParams) > c.cfg.ParamReqTblSize {
		return iface.ErrParamReqTableTooSmall
	}
	hw, err := c.ifaces.GetHWAddr(ifID)
	if err != nil {
		return iface.ErrHWAddrInvalid
	}

	c.mu.Lock()
	rec, err := c.pool.Acquire(ifID, hw)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	rec.ReqParams = reqParams
	rec.SetStatus(iface.StatusInProgress)
	c.mu.Unlock()

	return c.queue.Post(cmdqueue.Command{IfID: ifID, Kind: cmdqueue.KindStart})
}

// Stop enqueues STOP for ifID. The record is removed once the command
// drains behind any in-flight work for the interface.
func (c *Client) Stop(ifID string) error {
	return c.queue.Post(cmdqueue.Command{IfID: ifID, Kind: cmdqueue.KindStop})
}

// CheckStatus is a lock-free read of the interface's current lease
// status and last error.
func (c *Client) CheckStatus(ifID string) (iface.Status, iface.ErrCode) {
	rec, ok := c.pool.Lookup(ifID)
	if !ok {
		return iface.StatusNone, iface.ErrInterfaceNotManaged
	}
	return rec.Status(), rec.LastError()
}

// GetOption returns the value of option code from the last accepted ACK.
// It requires a configured (CFGD) lease.
func (c *Client) GetOption(ifID string, code dhcpv4.OptNum) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.pool.Lookup(ifID)
	if !ok {
		return nil, iface.ErrInterfaceNotManaged
	}
	if rec.Status() != iface.StatusCfgd {
		return nil, iface.ErrInterfaceNotConfigured
	}
	data, ok := dhcpv4.FindOption(rec.LastMsg, code)
	if !ok {
		return nil, iface.ErrOptionAbsent
	}
	return data, nil
}

// Subscribe registers ch to receive best-effort state-transition events.
// A full channel drops the event rather than blocking the dispatcher.
func (c *Client) Subscribe(ch chan Event) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.subs = append(c.subs, ch)
}

func (c *Client) publish(rec *iface.Record) {
	c.cfg.logger().Info("state transition",
		"iface", rec.IfID, "state", rec.State.String(), "status", rec.Status().String())
	c.cfg.metrics().StateChanged(rec.IfID, rec.State.String())
	ev := Event{IfID: rec.IfID, State: rec.State, Status: rec.Status(), Err: rec.LastError()}
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (c *Client) dispatchLoop(ctx context.Context) {
	for {
		cmd, err := c.queue.Wait(ctx)
		if err != nil {
			return
		}
		c.mu.Lock()
		c.dispatch(cmd)
		c.mu.Unlock()
	}
}

func (c *Client) timerLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			c.wheel.Tick(func(cmd cmdqueue.Command) error { return c.queue.Post(cmd) })
			c.mu.Unlock()
		}
	}
}

// dispatch routes a command to its handler if the interface is in a
// state where the command is meaningful. Caller must hold c.mu.
func (c *Client) dispatch(cmd cmdqueue.Command) {
	rec, ok := c.pool.Lookup(cmd.IfID)
	if !ok {
		return // record already released; drop stale command
	}

	switch cmd.Kind {
	case cmdqueue.KindStart:
		if rec.State == iface.StateNone || rec.State == iface.StateStopping {
			c.handleInit(rec)
		}
	case cmdqueue.KindLeaseExpired:
		// The wheel already unlinked and freed whatever entry fired this
		// command; clear the stale handle now so a later armTimer/cancelTimer
		// on this record never aliases a slot the wheel has since reused for
		// another interface.
		rec.TimerHandle = iface.NoHandle
		if rec.State == iface.StateBound || rec.State == iface.StateRenewing || rec.State == iface.StateRebinding {
			c.handleInit(rec)
		}
	case cmdqueue.KindT1Expired:
		rec.TimerHandle = iface.NoHandle
		if rec.State == iface.StateBound {
			c.handleRenew(rec)
		}
	case cmdqueue.KindT2Expired:
		rec.TimerHandle = iface.NoHandle
		if rec.State == iface.StateRenewing {
			c.handleRebind(rec)
		}
	case cmdqueue.KindStop:
		c.handleStop(rec)
	}
	// other (command, state) pairs are silently dropped.
}

func (c *Client) armTimer(rec *iface.Record, secs uint32, kind cmdqueue.Kind) {
	c.wheel.Cancel(timer.Handle(rec.TimerHandle))
	if secs == 0 {
		secs = 1
	}
	h, err := c.wheel.Arm(secs, cmdqueue.Command{IfID: rec.IfID, Kind: kind})
	if err != nil {
		rec.TimerHandle = iface.NoHandle
		return
	}
	rec.TimerHandle = int(h)
}

func (c *Client) cancelTimer(rec *iface.Record) {
	c.wheel.Cancel(timer.Handle(rec.TimerHandle))
	rec.TimerHandle = iface.NoHandle
}
