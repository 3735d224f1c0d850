package captive

import (
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/charlie0129/followd/pkg/types"
)

type fakeAP struct {
	starts int
	stops  int
	err    error
}

func (a *fakeAP) StartAP(string, string) (net.IP, error) {
	if a.err != nil {
		return nil, a.err
	}
	a.starts++
	return net.IPv4(127, 0, 0, 1), nil
}

func (a *fakeAP) StopAP() error {
	a.stops++
	return nil
}

func newTestPortal(ap *fakeAP) *Portal {
	return NewPortal(Options{
		AP:       ap,
		SSID:     "ConfigPortal",
		HTTPAddr: "127.0.0.1:0",
		DNSAddr:  "127.0.0.1:0",
	}, &fakeBackend{status: types.Status{WiFiStatus: "Not Connected", FollowerCount: -1, LastError: "None"}})
}

func TestPortalLifecycle(t *testing.T) {
	ap := &fakeAP{}
	p := newTestPortal(ap)

	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	if ap.starts != 1 {
		t.Errorf("access point starts = %d, want 1", ap.starts)
	}

	addr := p.HTTPAddr().String()
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + addr + "/status")
	if err != nil {
		t.Fatalf("GET /status error = %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /status = %d", resp.StatusCode)
	}
	if p.DNSAddr() == nil {
		t.Errorf("DNSAddr() = nil while running")
	}

	if err := p.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if ap.stops != 1 {
		t.Errorf("access point stops = %d, want 1", ap.stops)
	}
	if _, err := client.Get("http://" + addr + "/status"); err == nil {
		t.Errorf("configuration page still reachable after Stop")
	}
	if p.HTTPAddr() != nil || p.DNSAddr() != nil {
		t.Errorf("addresses still set after Stop")
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
}

func TestPortalStartRollsBack(t *testing.T) {
	ap := &fakeAP{}
	p := NewPortal(Options{
		AP:       ap,
		HTTPAddr: "256.0.0.1:0",
		DNSAddr:  "127.0.0.1:0",
	}, &fakeBackend{})

	if err := p.Start(); err == nil {
		t.Fatalf("Start() error = nil with bad listen address")
	}
	if ap.stops != 1 {
		t.Errorf("access point stops = %d, want 1 after rollback", ap.stops)
	}

	ap.err = errors.New("radio busy")
	if err := p.Start(); err == nil {
		t.Fatalf("Start() error = nil with failing access point")
	}
}

func TestDNSBindAddr(t *testing.T) {
	ip := net.IPv4(192, 168, 4, 1)
	tests := []struct {
		addr string
		want string
	}{
		{":53", "192.168.4.1:53"},
		{"0.0.0.0:53", "192.168.4.1:53"},
		{"[::]:5353", "192.168.4.1:5353"},
		{"10.0.0.1:53", "10.0.0.1:53"},
		{"localhost:53", "localhost:53"},
		{"bogus", "bogus"},
	}
	for _, tt := range tests {
		if got := dnsBindAddr(tt.addr, ip); got != tt.want {
			t.Errorf("dnsBindAddr(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

func TestPortalBindsDNSToAccessPointAddress(t *testing.T) {
	ap := &fakeAP{}
	p := NewPortal(Options{
		AP:       ap,
		HTTPAddr: "127.0.0.1:0",
		DNSAddr:  ":0",
	}, &fakeBackend{})

	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() { _ = p.Stop() }()

	udp, ok := p.DNSAddr().(*net.UDPAddr)
	if !ok {
		t.Fatalf("DNSAddr() = %T, want *net.UDPAddr", p.DNSAddr())
	}
	if !udp.IP.Equal(net.IPv4(127, 0, 0, 1)) {
		t.Errorf("redirector bound to %v, want the access point address", udp.IP)
	}
}
