//go:build !linux

package wifi

import (
	"net"

	pkgerrors "github.com/pkg/errors"
)

func interfaceIPv4(name string) (net.IP, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to find interface %s", name)
	}
	addrs, err := ifi.Addrs()
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to list addresses of %s", name)
	}
	for _, a := range addrs {
		if ipn, ok := a.(*net.IPNet); ok && ipn.IP.To4() != nil {
			return ipn.IP, nil
		}
	}
	return nil, ErrNoAddress
}
