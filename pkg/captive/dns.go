package captive

import (
	"net"
	"sync"
	"time"

	"github.com/miekg/dns"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const redirectTTL = 60

// Redirector answers every A query with one address, so any hostname a
// client looks up resolves to the device.
type Redirector struct {
	addr string
	ip   net.IP

	mu  sync.Mutex
	srv *dns.Server
	pc  net.PacketConn
}

func NewRedirector(addr string, ip net.IP) *Redirector {
	return &Redirector{addr: addr, ip: ip.To4()}
}

func (r *Redirector) ServeDNS(w dns.ResponseWriter, req *dns.Msg) {
	m := new(dns.Msg)
	m.SetReply(req)
	m.Authoritative = true

	for _, q := range req.Question {
		if q.Qclass != dns.ClassINET {
			continue
		}
		if q.Qtype != dns.TypeA && q.Qtype != dns.TypeANY {
			continue
		}
		m.Answer = append(m.Answer, &dns.A{
			Hdr: dns.RR_Header{
				Name:   q.Name,
				Rrtype: dns.TypeA,
				Class:  dns.ClassINET,
				Ttl:    redirectTTL,
			},
			A: r.ip,
		})
	}

	if err := w.WriteMsg(m); err != nil {
		logrus.Debugf("failed to write dns response: %v", err)
	}
}

// Start binds the UDP socket and serves in the background.
func (r *Redirector) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.srv != nil {
		return nil
	}

	pc, err := net.ListenPacket("udp", r.addr)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to listen on %s", r.addr)
	}

	started := make(chan struct{})
	srv := &dns.Server{
		PacketConn:        pc,
		Handler:           r,
		NotifyStartedFunc: func() { close(started) },
	}
	go func() {
		if err := srv.ActivateAndServe(); err != nil {
			logrus.Errorf("dns redirector stopped: %v", err)
		}
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		_ = pc.Close()
		return pkgerrors.New("dns redirector did not start")
	}

	r.srv = srv
	r.pc = pc
	logrus.WithFields(logrus.Fields{
		"addr": pc.LocalAddr().String(),
		"ip":   r.ip.String(),
	}).Info("dns redirector started")
	return nil
}

// Addr returns the bound address, or nil when stopped.
func (r *Redirector) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pc == nil {
		return nil
	}
	return r.pc.LocalAddr()
}

func (r *Redirector) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.srv == nil {
		return nil
	}
	err := r.srv.Shutdown()
	r.srv = nil
	r.pc = nil
	if err != nil {
		return pkgerrors.Wrap(err, "failed to stop dns redirector")
	}
	logrus.Info("dns redirector stopped")
	return nil
}
