// Package wifi drives the wireless interface through NetworkManager over the
// system D-Bus. It joins networks in station mode and brings up the access
// point used by the configuration portal.
package wifi

import (
	"context"
	"net"
	"sync"

	"github.com/godbus/dbus/v5"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	nmDest            = "org.freedesktop.NetworkManager"
	nmPath            = dbus.ObjectPath("/org/freedesktop/NetworkManager")
	nmIface           = "org.freedesktop.NetworkManager"
	nmDeviceState     = "org.freedesktop.NetworkManager.Device.State"
	nmConnectionIface = "org.freedesktop.NetworkManager.Settings.Connection"

	// NM_DEVICE_STATE_ACTIVATED
	deviceStateActivated uint32 = 100
)

// DefaultAPAddress is the gateway address of the configuration network.
var DefaultAPAddress = net.IPv4(192, 168, 4, 1)

type settings map[string]map[string]dbus.Variant

// busConn is the subset of *dbus.Conn used here.
type busConn interface {
	Object(dest string, path dbus.ObjectPath) dbus.BusObject
}

type connection struct {
	settings dbus.ObjectPath
	active   dbus.ObjectPath
}

func (c connection) empty() bool {
	return c.settings == "" && c.active == ""
}

// NetworkManager controls one wireless interface.
type NetworkManager struct {
	iface  string
	apAddr net.IP
	bus    busConn
	closer func() error

	dnsmasqDir string

	mu      sync.Mutex
	device  dbus.ObjectPath
	station connection
	ap      connection
}

// New connects to the system bus and binds to iface, e.g. wlan0.
func New(iface string) (*NetworkManager, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to connect to system bus")
	}
	nm := newWithBus(iface, conn)
	nm.closer = conn.Close
	return nm, nil
}

func newWithBus(iface string, bus busConn) *NetworkManager {
	return &NetworkManager{
		iface:      iface,
		apAddr:     DefaultAPAddress,
		bus:        bus,
		dnsmasqDir: DnsmasqSharedDir,
	}
}

func (n *NetworkManager) Close() error {
	if n.closer == nil {
		return nil
	}
	return n.closer()
}

func (n *NetworkManager) Interface() string {
	return n.iface
}

func (n *NetworkManager) nm() dbus.BusObject {
	return n.bus.Object(nmDest, nmPath)
}

// deviceLocked resolves and caches the device object path of the interface.
func (n *NetworkManager) deviceLocked(ctx context.Context) (dbus.ObjectPath, error) {
	if n.device != "" {
		return n.device, nil
	}
	var dev dbus.ObjectPath
	err := n.nm().CallWithContext(ctx, nmIface+".GetDeviceByIpIface", 0, n.iface).Store(&dev)
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to find device %s", n.iface)
	}
	n.device = dev
	return dev, nil
}

func (n *NetworkManager) activateLocked(ctx context.Context, s settings) (connection, error) {
	dev, err := n.deviceLocked(ctx)
	if err != nil {
		return connection{}, err
	}
	var c connection
	err = n.nm().CallWithContext(ctx, nmIface+".AddAndActivateConnection", 0,
		s, dev, dbus.ObjectPath("/")).Store(&c.settings, &c.active)
	if err != nil {
		return connection{}, pkgerrors.Wrap(err, "failed to activate connection")
	}
	return c, nil
}

// removeLocked deactivates c and deletes its saved profile.
func (n *NetworkManager) removeLocked(ctx context.Context, c connection) error {
	if c.active != "" {
		err := n.nm().CallWithContext(ctx, nmIface+".DeactivateConnection", 0, c.active).Err
		if err != nil {
			// already gone when the link dropped
			logrus.WithField("path", c.active).Debugf("failed to deactivate connection: %v", err)
		}
	}
	if c.settings != "" {
		err := n.bus.Object(nmDest, c.settings).CallWithContext(ctx, nmConnectionIface+".Delete", 0).Err
		if err != nil {
			return pkgerrors.Wrap(err, "failed to delete connection profile")
		}
	}
	return nil
}

// Connect starts joining ssid. It returns once NetworkManager has accepted
// the request; use Connected to observe the link.
func (n *NetworkManager) Connect(ctx context.Context, ssid, password string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.station.empty() {
		if err := n.removeLocked(ctx, n.station); err != nil {
			logrus.Warnf("failed to remove previous station connection: %v", err)
		}
		n.station = connection{}
	}

	c, err := n.activateLocked(ctx, stationSettings(ssid, password))
	if err != nil {
		return err
	}
	n.station = c

	logrus.WithFields(logrus.Fields{
		"iface": n.iface,
		"ssid":  ssid,
	}).Debug("station connection requested")

	return nil
}

// Connected reports whether the interface is activated in station mode.
func (n *NetworkManager) Connected() bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.station.empty() || !n.ap.empty() {
		return false
	}
	dev, err := n.deviceLocked(context.Background())
	if err != nil {
		return false
	}
	v, err := n.bus.Object(nmDest, dev).GetProperty(nmDeviceState)
	if err != nil {
		logrus.Debugf("failed to read device state: %v", err)
		return false
	}
	state, ok := v.Value().(uint32)
	return ok && state == deviceStateActivated
}

// StartAP broadcasts ssid. An empty password makes an open network. It
// returns the address clients reach the device on.
//
// The shared dnsmasq is told not to serve DNS before the profile is
// activated, leaving port 53 on the returned address free for the caller.
func (n *NetworkManager) StartAP(ssid, password string) (net.IP, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.ap.empty() {
		return n.apAddr, nil
	}

	if err := writeDnsmasqConf(n.dnsmasqDir, n.apAddr); err != nil {
		return nil, err
	}
	c, err := n.activateLocked(context.Background(), apSettings(ssid, password, n.apAddr))
	if err != nil {
		_ = removeDnsmasqConf(n.dnsmasqDir)
		return nil, err
	}
	n.ap = c

	logrus.WithFields(logrus.Fields{
		"iface": n.iface,
		"ssid":  ssid,
		"ip":    n.apAddr.String(),
	}).Info("access point started")

	return n.apAddr, nil
}

// StopAP tears the access point down and removes its profile.
func (n *NetworkManager) StopAP() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.ap.empty() {
		return nil
	}
	err := n.removeLocked(context.Background(), n.ap)
	n.ap = connection{}
	if rmErr := removeDnsmasqConf(n.dnsmasqDir); rmErr != nil {
		logrus.Warnf("%v", rmErr)
	}
	if err != nil {
		return err
	}
	logrus.WithField("iface", n.iface).Info("access point stopped")
	return nil
}

// LocalIP returns the first IPv4 address assigned to the interface.
func (n *NetworkManager) LocalIP() (net.IP, error) {
	return interfaceIPv4(n.iface)
}

func stationSettings(ssid, password string) settings {
	s := settings{
		"connection": {
			"id":          dbus.MakeVariant(ssid),
			"type":        dbus.MakeVariant("802-11-wireless"),
			"autoconnect": dbus.MakeVariant(true),
		},
		"802-11-wireless": {
			"ssid": dbus.MakeVariant([]byte(ssid)),
			"mode": dbus.MakeVariant("infrastructure"),
		},
		"ipv4": {"method": dbus.MakeVariant("auto")},
		"ipv6": {"method": dbus.MakeVariant("auto")},
	}
	if password != "" {
		s["802-11-wireless"]["security"] = dbus.MakeVariant("802-11-wireless-security")
		s["802-11-wireless-security"] = map[string]dbus.Variant{
			"key-mgmt": dbus.MakeVariant("wpa-psk"),
			"psk":      dbus.MakeVariant(password),
		}
	}
	return s
}

func apSettings(ssid, password string, addr net.IP) settings {
	s := settings{
		"connection": {
			"id":          dbus.MakeVariant(ssid),
			"type":        dbus.MakeVariant("802-11-wireless"),
			"autoconnect": dbus.MakeVariant(false),
		},
		"802-11-wireless": {
			"ssid": dbus.MakeVariant([]byte(ssid)),
			"mode": dbus.MakeVariant("ap"),
			"band": dbus.MakeVariant("bg"),
		},
		"ipv4": {
			"method": dbus.MakeVariant("shared"),
			"address-data": dbus.MakeVariant([]map[string]dbus.Variant{{
				"address": dbus.MakeVariant(addr.String()),
				"prefix":  dbus.MakeVariant(uint32(24)),
			}}),
		},
		"ipv6": {"method": dbus.MakeVariant("ignore")},
	}
	if password != "" {
		s["802-11-wireless"]["security"] = dbus.MakeVariant("802-11-wireless-security")
		s["802-11-wireless-security"] = map[string]dbus.Variant{
			"key-mgmt": dbus.MakeVariant("wpa-psk"),
			"psk":      dbus.MakeVariant(password),
		}
	}
	return s
}
