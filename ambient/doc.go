// Package ambient provides the concrete, Linux-specific collaborators
// dhcpc depends on in the abstract: a monotonic Clock, a
// SocketFactory opening raw UDP sockets bound to one interface, an
// IPv4Stack and Interfaces backed by netlink, and an ARP prober built on
// a raw AF_PACKET socket. Every dhcpc.Client needs one of each to do
// anything; the dhcpc package itself never imports golang.org/x/sys or
// github.com/vishvananda/netlink directly.
package ambient
