//go:build linux

package ambient

import (
	"fmt"

	"github.com/vishvananda/netlink"

	"github.com/soypat/dhcpc/iface"
)

// NetlinkInterfaces implements dhcpc.Interfaces via netlink.LinkByName,
// which sees interfaces that are not administratively up yet, unlike
// net.InterfaceByName.
type NetlinkInterfaces struct{}

// GetHWAddr implements dhcpc.Interfaces.
func (NetlinkInterfaces) GetHWAddr(ifID string) ([6]byte, error) {
	link, err := netlink.LinkByName(ifID)
	if err != nil {
		return [6]byte{}, fmt.Errorf("ambient: lookup interface %q: %w", ifID, err)
	}
	hw := link.Attrs().HardwareAddr
	if len(hw) != 6 {
		return [6]byte{}, iface.ErrHWAddrInvalid
	}
	var out [6]byte
	copy(out[:], hw)
	return out, nil
}
