package captive

import (
	"net"
	"testing"

	"github.com/miekg/dns"
)

func TestRedirector(t *testing.T) {
	r := NewRedirector("127.0.0.1:0", net.IPv4(192, 168, 4, 1))
	if err := r.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() { _ = r.Stop() }()

	c := new(dns.Client)
	for _, name := range []string{"example.com.", "connectivitycheck.gstatic.com.", "captive.apple.com."} {
		m := new(dns.Msg)
		m.SetQuestion(name, dns.TypeA)

		resp, _, err := c.Exchange(m, r.Addr().String())
		if err != nil {
			t.Fatalf("Exchange(%s) error = %v", name, err)
		}
		if len(resp.Answer) != 1 {
			t.Fatalf("%s: answers = %d, want 1", name, len(resp.Answer))
		}
		a, ok := resp.Answer[0].(*dns.A)
		if !ok {
			t.Fatalf("%s: answer type = %T", name, resp.Answer[0])
		}
		if !a.A.Equal(net.IPv4(192, 168, 4, 1)) {
			t.Errorf("%s: A = %v", name, a.A)
		}
		if a.Hdr.Name != name {
			t.Errorf("answer name = %q, want %q", a.Hdr.Name, name)
		}
	}

	m := new(dns.Msg)
	m.SetQuestion("example.com.", dns.TypeAAAA)
	resp, _, err := c.Exchange(m, r.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Answer) != 0 {
		t.Errorf("AAAA answers = %d, want 0", len(resp.Answer))
	}
}

func TestRedirectorStopIdempotent(t *testing.T) {
	r := NewRedirector("127.0.0.1:0", net.IPv4(10, 0, 0, 1))
	if err := r.Stop(); err != nil {
		t.Fatalf("Stop() before Start error = %v", err)
	}
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	if err := r.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if r.Addr() != nil {
		t.Errorf("Addr() = %v after Stop", r.Addr())
	}
}
