// Command dhcpc runs the DHCPv4 client against one or more network
// interfaces, with Prometheus metrics exposed over HTTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/soypat/dhcpc/dhcpc"
	"github.com/soypat/dhcpc/ambient"
	"github.com/soypat/dhcpc/dhcpv4"
	"github.com/soypat/dhcpc/metrics"
)

var (
	ifaces      []string
	hostname    string
	metricsAddr string
	clientPort  int
	serverPort  int
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "dhcpc",
	Short: "A DHCPv4 client daemon",
	Long:  `dhcpc negotiates and maintains DHCPv4 leases on one or more network interfaces.`,
	RunE:  run,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringSliceVarP(&ifaces, "iface", "i", nil, "network interface to manage (repeatable)")
	flags.StringVar(&hostname, "hostname", "", "host name sent in option 12 on outgoing DISCOVER/REQUEST")
	flags.StringVar(&metricsAddr, "metrics-addr", ":9281", "address to serve Prometheus metrics on")
	flags.IntVar(&clientPort, "client-port", dhcpv4.DefaultClientPort, "UDP port the client binds to")
	flags.IntVar(&serverPort, "server-port", dhcpv4.DefaultServerPort, "UDP port DHCP servers are contacted on")
	flags.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	_ = rootCmd.MarkFlagRequired("iface")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(logLevel)}))

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	reg := prometheus.NewRegistry()
	sink := metrics.New(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	httpSrv := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", "err", err)
		}
	}()
	defer httpSrv.Close()

	cfg := dhcpc.DefaultConfig()
	cfg.Hostname = hostname
	cfg.ClientPort = clientPort
	cfg.ServerPort = serverPort
	cfg.Logger = logger
	cfg.Metrics = sink
	if len(ifaces) > cfg.MaxIfaces {
		cfg.MaxIfaces = len(ifaces)
	}

	client := dhcpc.New(cfg,
		ambient.UDPSockets{ClientPort: clientPort},
		ambient.NewNetlinkIPv4Stack(),
		ambient.NetlinkInterfaces{},
		ambient.RawARP{},
		ambient.NewSystemClock(),
	)
	if err := client.Init(); err != nil {
		return fmt.Errorf("dhcpc: init: %w", err)
	}
	defer client.Close()

	events := make(chan dhcpc.Event, 16)
	client.Subscribe(events)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-events:
				logger.Info("state change", "iface", ev.IfID, "state", ev.State, "status", ev.Status, "err", ev.Err)
			}
		}
	}()

	for _, ifID := range ifaces {
		if err := client.Start(ifID, nil); err != nil {
			logger.Error("failed to start interface", "iface", ifID, "err", err)
			continue
		}
		logger.Info("managing interface", "iface", ifID)
	}

	<-ctx.Done()

	for _, ifID := range ifaces {
		if err := client.Stop(ifID); err != nil {
			logger.Warn("failed to stop interface", "iface", ifID, "err", err)
		}
	}
	// Give in-flight handlers (RELEASE send, address teardown) a moment
	// to run before the process exits.
	time.Sleep(250 * time.Millisecond)
	return nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
