package wifi

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/godbus/dbus/v5"
)

type call struct {
	path   dbus.ObjectPath
	method string
	args   []interface{}
}

type fakeBus struct {
	mu    sync.Mutex
	calls []call
	state uint32
	fail  map[string]error
	seq   int

	onActivate func()
}

func (b *fakeBus) Object(_ string, path dbus.ObjectPath) dbus.BusObject {
	return &fakeObject{bus: b, path: path}
}

func (b *fakeBus) methods() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, c := range b.calls {
		out = append(out, c.method)
	}
	return out
}

type fakeObject struct {
	dbus.BusObject
	bus  *fakeBus
	path dbus.ObjectPath
}

func (o *fakeObject) CallWithContext(_ context.Context, method string, _ dbus.Flags, args ...interface{}) *dbus.Call {
	b := o.bus
	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls = append(b.calls, call{path: o.path, method: method, args: args})
	if err := b.fail[method]; err != nil {
		return &dbus.Call{Err: err}
	}

	switch method {
	case nmIface + ".GetDeviceByIpIface":
		return &dbus.Call{Body: []interface{}{dbus.ObjectPath("/org/freedesktop/NetworkManager/Devices/3")}}
	case nmIface + ".AddAndActivateConnection":
		if b.onActivate != nil {
			b.onActivate()
		}
		b.seq++
		return &dbus.Call{Body: []interface{}{
			dbus.ObjectPath("/org/freedesktop/NetworkManager/Settings/" + string(rune('0'+b.seq))),
			dbus.ObjectPath("/org/freedesktop/NetworkManager/ActiveConnection/" + string(rune('0'+b.seq))),
		}}
	default:
		return &dbus.Call{}
	}
}

func (o *fakeObject) GetProperty(p string) (dbus.Variant, error) {
	o.bus.mu.Lock()
	defer o.bus.mu.Unlock()
	if p != nmDeviceState {
		return dbus.Variant{}, errors.New("unknown property")
	}
	return dbus.MakeVariant(o.bus.state), nil
}

func TestConnect(t *testing.T) {
	bus := &fakeBus{state: deviceStateActivated}
	nm := newWithBus("wlan0", bus)

	if nm.Connected() {
		t.Fatalf("Connected() = true before Connect")
	}
	if err := nm.Connect(context.Background(), "home", "hunter22"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !nm.Connected() {
		t.Errorf("Connected() = false with activated device")
	}

	bus.mu.Lock()
	bus.state = 30 // disconnected
	bus.mu.Unlock()
	if nm.Connected() {
		t.Errorf("Connected() = true with disconnected device")
	}

	var add call
	for _, c := range bus.calls {
		if c.method == nmIface+".AddAndActivateConnection" {
			add = c
		}
	}
	s, ok := add.args[0].(settings)
	if !ok {
		t.Fatalf("AddAndActivateConnection settings type = %T", add.args[0])
	}
	if got := s["802-11-wireless"]["mode"].Value(); got != "infrastructure" {
		t.Errorf("mode = %v, want infrastructure", got)
	}
	if got := s["802-11-wireless-security"]["psk"].Value(); got != "hunter22" {
		t.Errorf("psk = %v", got)
	}
	if got := string(s["802-11-wireless"]["ssid"].Value().([]byte)); got != "home" {
		t.Errorf("ssid = %q", got)
	}
}

func TestConnectReplacesPreviousProfile(t *testing.T) {
	bus := &fakeBus{}
	nm := newWithBus("wlan0", bus)

	for _, ssid := range []string{"a", "b"} {
		if err := nm.Connect(context.Background(), ssid, "password"); err != nil {
			t.Fatal(err)
		}
	}

	want := []string{
		nmIface + ".GetDeviceByIpIface",
		nmIface + ".AddAndActivateConnection",
		nmIface + ".DeactivateConnection",
		nmConnectionIface + ".Delete",
		nmIface + ".AddAndActivateConnection",
	}
	got := bus.methods()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestConnectError(t *testing.T) {
	bus := &fakeBus{fail: map[string]error{nmIface + ".GetDeviceByIpIface": errors.New("no such device")}}
	nm := newWithBus("wlan9", bus)

	if err := nm.Connect(context.Background(), "home", "pw"); err == nil {
		t.Fatalf("Connect() error = nil")
	}
	if nm.Connected() {
		t.Errorf("Connected() = true after failure")
	}
}

func TestAccessPoint(t *testing.T) {
	bus := &fakeBus{state: deviceStateActivated}
	nm := newWithBus("wlan0", bus)
	nm.dnsmasqDir = t.TempDir()

	ip, err := nm.StartAP("ConfigPortal", "")
	if err != nil {
		t.Fatalf("StartAP() error = %v", err)
	}
	if !ip.Equal(net.IPv4(192, 168, 4, 1)) {
		t.Errorf("StartAP() ip = %v", ip)
	}

	s := bus.calls[len(bus.calls)-1].args[0].(settings)
	if got := s["802-11-wireless"]["mode"].Value(); got != "ap" {
		t.Errorf("mode = %v, want ap", got)
	}
	if got := s["ipv4"]["method"].Value(); got != "shared" {
		t.Errorf("ipv4 method = %v, want shared", got)
	}
	if _, ok := s["802-11-wireless-security"]; ok {
		t.Errorf("open network carries security settings")
	}

	// idempotent
	if _, err := nm.StartAP("ConfigPortal", ""); err != nil {
		t.Fatal(err)
	}
	if n := len(bus.methods()); n != 2 {
		t.Errorf("calls after second StartAP = %d, want 2", n)
	}

	if err := nm.StopAP(); err != nil {
		t.Fatalf("StopAP() error = %v", err)
	}
	methods := bus.methods()
	if methods[len(methods)-1] != nmConnectionIface+".Delete" {
		t.Errorf("last call = %s, want Delete", methods[len(methods)-1])
	}
	if err := nm.StopAP(); err != nil {
		t.Fatalf("second StopAP() error = %v", err)
	}
}

func TestConnectedFalseWhileAPActive(t *testing.T) {
	bus := &fakeBus{state: deviceStateActivated}
	nm := newWithBus("wlan0", bus)
	nm.dnsmasqDir = t.TempDir()

	if err := nm.Connect(context.Background(), "home", "pw"); err != nil {
		t.Fatal(err)
	}
	if _, err := nm.StartAP("ConfigPortal", ""); err != nil {
		t.Fatal(err)
	}
	if nm.Connected() {
		t.Errorf("Connected() = true while access point is active")
	}
}

func TestAccessPointDisablesSharedDNS(t *testing.T) {
	bus := &fakeBus{state: deviceStateActivated}
	nm := newWithBus("wlan0", bus)
	nm.dnsmasqDir = filepath.Join(t.TempDir(), "dnsmasq-shared.d")
	conf := filepath.Join(nm.dnsmasqDir, dnsmasqConfName)

	// the file has to exist before NetworkManager spawns dnsmasq
	bus.onActivate = func() {
		if _, err := os.Stat(conf); err != nil {
			t.Errorf("dnsmasq config missing at activation: %v", err)
		}
	}

	if _, err := nm.StartAP("ConfigPortal", ""); err != nil {
		t.Fatalf("StartAP() error = %v", err)
	}
	b, err := os.ReadFile(conf)
	if err != nil {
		t.Fatalf("read dnsmasq config: %v", err)
	}
	lines := strings.Split(string(b), "\n")
	for _, want := range []string{"port=0", "dhcp-option=option:dns-server,192.168.4.1"} {
		found := false
		for _, l := range lines {
			if l == want {
				found = true
			}
		}
		if !found {
			t.Errorf("dnsmasq config missing %q:\n%s", want, b)
		}
	}

	if err := nm.StopAP(); err != nil {
		t.Fatalf("StopAP() error = %v", err)
	}
	if _, err := os.Stat(conf); !os.IsNotExist(err) {
		t.Errorf("dnsmasq config still present after StopAP: %v", err)
	}
}

func TestAccessPointActivationFailureRemovesDnsmasqConf(t *testing.T) {
	bus := &fakeBus{
		state: deviceStateActivated,
		fail:  map[string]error{nmIface + ".AddAndActivateConnection": errors.New("no secrets")},
	}
	nm := newWithBus("wlan0", bus)
	nm.dnsmasqDir = t.TempDir()

	if _, err := nm.StartAP("ConfigPortal", ""); err == nil {
		t.Fatal("StartAP() error = nil, want activation error")
	}
	if _, err := os.Stat(filepath.Join(nm.dnsmasqDir, dnsmasqConfName)); !os.IsNotExist(err) {
		t.Errorf("dnsmasq config left behind: %v", err)
	}
}
