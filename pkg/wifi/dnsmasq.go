package wifi

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	pkgerrors "github.com/pkg/errors"
)

// DnsmasqSharedDir is read by the dnsmasq instance NetworkManager starts for
// connections with ipv4.method=shared.
const DnsmasqSharedDir = "/etc/NetworkManager/dnsmasq-shared.d"

const dnsmasqConfName = "followd.conf"

// dnsmasqConf disables the DNS side of the shared dnsmasq so the portal's own
// redirector can own port 53 on the access point address. DHCP keeps running
// and hands out addr as the resolver.
func dnsmasqConf(addr net.IP) []byte {
	return []byte(fmt.Sprintf("# written by followd while the access point is up\nport=0\ndhcp-option=option:dns-server,%s\n", addr.String()))
}

func writeDnsmasqConf(dir string, addr net.IP) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return pkgerrors.Wrapf(err, "failed to create %s", dir)
	}
	p := filepath.Join(dir, dnsmasqConfName)
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, dnsmasqConf(addr), 0o644); err != nil {
		return pkgerrors.Wrapf(err, "failed to write %s", tmp)
	}
	if err := os.Rename(tmp, p); err != nil {
		return pkgerrors.Wrapf(err, "failed to rename %s", tmp)
	}
	return nil
}

func removeDnsmasqConf(dir string) error {
	err := os.Remove(filepath.Join(dir, dnsmasqConfName))
	if err != nil && !os.IsNotExist(err) {
		return pkgerrors.Wrap(err, "failed to remove dnsmasq config")
	}
	return nil
}
