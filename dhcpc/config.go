package dhcpc

import (
	"log/slog"
	"time"
)

// Config holds the client's fixed-at-init configuration knobs. All
// fields are read-only once passed to New.
type Config struct {
	MaxIfaces         int
	ParamReqTblSize   int
	NegoRetries       int
	DiscoverRetries   int
	RequestRetries    int
	RXInactivityMS    uint32
	AddrValidateOn    bool
	LocalLinkOn       bool
	LocalLinkMaxRetry int

	BroadcastBitEnabled bool
	ServerPort          int
	ClientPort          int

	// Hostname, if set, is sent as option 12 (HOST_NAME) on every
	// outgoing DISCOVER/REQUEST.
	Hostname string

	// Logger receives structured state-transition, retransmit and error
	// events. A nil Logger is replaced by slog.Default().
	Logger *slog.Logger

	// Metrics is an optional, nil-safe observer updated from the
	// dispatch loop.
	Metrics MetricsSink
}

// DefaultConfig returns the standard parameter set: 3 retries per phase,
// 5s receive inactivity timeout, address validation and link-local
// fallback enabled, ports 67/68.
func DefaultConfig() Config {
	return Config{
		MaxIfaces:           8,
		ParamReqTblSize:     16,
		NegoRetries:         3,
		DiscoverRetries:     3,
		RequestRetries:      3,
		RXInactivityMS:      5000,
		AddrValidateOn:      true,
		LocalLinkOn:         true,
		LocalLinkMaxRetry:   3,
		BroadcastBitEnabled: true,
		ServerPort:          67,
		ClientPort:          68,
	}
}

func (c *Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// MetricsSink is the optional Prometheus-backed observer contract; see
// package metrics for the concrete implementation. A nil MetricsSink is
// always safe to call into via the noop wrapper used internally.
type MetricsSink interface {
	StateChanged(ifID string, state string)
	RetransmitAttempt(ifID, phase string)
	LeaseRenewed(ifID string)
	LeaseRebound(ifID string)
	LeaseFailed(ifID string)
}

type noopMetrics struct{}

func (noopMetrics) StateChanged(string, string)      {}
func (noopMetrics) RetransmitAttempt(string, string) {}
func (noopMetrics) LeaseRenewed(string)              {}
func (noopMetrics) LeaseRebound(string)              {}
func (noopMetrics) LeaseFailed(string)               {}

func (c *Config) metrics() MetricsSink {
	if c.Metrics == nil {
		return noopMetrics{}
	}
	return c.Metrics
}

const (
	// MinRetxTime floors the retry interval when a renew or rebind
	// REQUEST goes unanswered and the remaining lease window is halved.
	MinRetxTime = 300 * time.Second
)

// rxTimeout returns the configured per-attempt receive deadline, used to
// build every retransmit.Engine this package constructs.
func (c *Client) rxTimeout() time.Duration {
	return time.Duration(c.cfg.RXInactivityMS) * time.Millisecond
}
