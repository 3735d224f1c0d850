//go:build linux

package wifi

import (
	"net"

	pkgerrors "github.com/pkg/errors"
	"github.com/vishvananda/netlink"
)

func interfaceIPv4(name string) (net.IP, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to find interface %s", name)
	}
	addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to list addresses of %s", name)
	}
	if len(addrs) == 0 {
		return nil, ErrNoAddress
	}
	return addrs[0].IP, nil
}
