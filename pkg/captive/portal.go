package captive

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 5 * time.Second

// AccessPoint broadcasts the configuration network.
type AccessPoint interface {
	StartAP(ssid, password string) (net.IP, error)
	StopAP() error
}

type Options struct {
	AP       AccessPoint
	SSID     string
	Password string
	HTTPAddr string
	DNSAddr  string
}

// Portal brings up the access point, the DNS redirector and the web server
// together, and tears them down in reverse order.
type Portal struct {
	opts   Options
	server *Server

	mu      sync.Mutex
	running bool
	dns     *Redirector
	httpSrv *http.Server
	httpLn  net.Listener
}

func NewPortal(opts Options, backend Backend) *Portal {
	return &Portal{
		opts:   opts,
		server: NewServer(backend),
	}
}

// Start is a no-op if the portal is already running. A partial start is
// rolled back.
func (p *Portal) Start() (err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}

	ip, err := p.opts.AP.StartAP(p.opts.SSID, p.opts.Password)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to start access point")
	}
	defer func() {
		if err != nil {
			_ = p.opts.AP.StopAP()
		}
	}()

	dnsSrv := NewRedirector(dnsBindAddr(p.opts.DNSAddr, ip), ip)
	if err := dnsSrv.Start(); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = dnsSrv.Stop()
		}
	}()

	ln, err := net.Listen("tcp", p.opts.HTTPAddr)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to listen on %s", p.opts.HTTPAddr)
	}

	p.server.SetAPAddress(ip)
	srv := &http.Server{
		Handler:           p.server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logrus.Infof("configuration page listening on %s", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("configuration page server stopped: %v", err)
		}
	}()

	p.dns = dnsSrv
	p.httpSrv = srv
	p.httpLn = ln
	p.running = true
	return nil
}

// Stop shuts down the web server, the DNS redirector and the access point.
// Once it returns the page is no longer reachable.
func (p *Portal) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return nil
	}
	p.running = false

	var errs []error

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := p.httpSrv.Shutdown(ctx); err != nil {
		errs = append(errs, pkgerrors.Wrap(err, "failed to shut down configuration page"))
	}
	if err := p.dns.Stop(); err != nil {
		errs = append(errs, err)
	}
	if err := p.opts.AP.StopAP(); err != nil {
		errs = append(errs, pkgerrors.Wrap(err, "failed to stop access point"))
	}

	p.httpSrv = nil
	p.httpLn = nil
	p.dns = nil

	return errors.Join(errs...)
}

// dnsBindAddr narrows a wildcard listen address to the access point address,
// so the redirector does not contend for port 53 with resolvers bound to
// other addresses such as 127.0.0.53.
func dnsBindAddr(addr string, ip net.IP) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil || ip == nil {
		return addr
	}
	if host != "" {
		if h := net.ParseIP(host); h == nil || !h.IsUnspecified() {
			return addr
		}
	}
	return net.JoinHostPort(ip.String(), port)
}

// HTTPAddr returns the bound address of the web server, or nil when stopped.
func (p *Portal) HTTPAddr() net.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.httpLn == nil {
		return nil
	}
	return p.httpLn.Addr()
}

// DNSAddr returns the bound address of the DNS redirector, or nil when
// stopped.
func (p *Portal) DNSAddr() net.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dns == nil {
		return nil
	}
	return p.dns.Addr()
}
