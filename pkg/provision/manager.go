// Package provision implements the device's provisioning state machine: it
// decides between stored credentials and the captive portal, handles a
// credential submission, and polls the follower count once connected.
//
// Tick is called by a single host loop. Submit and the read accessors may be
// called from any goroutine; all shared state is guarded by one mutex that is
// never held across network I/O.
package provision

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/followd/pkg/fetch"
	"github.com/charlie0129/followd/pkg/poll"
	"github.com/charlie0129/followd/pkg/prefs"
	"github.com/charlie0129/followd/pkg/types"
)

const (
	DefaultConnectTimeout      = 30 * time.Second
	DefaultConnectPollInterval = 500 * time.Millisecond
)

var (
	// ErrIncomplete is returned by Submit when a required field is empty.
	ErrIncomplete = errors.New("missing form fields")
	// ErrNotProvisioning is returned by Submit outside of AP mode.
	ErrNotProvisioning = errors.New("configuration portal is not active")
	// ErrAlreadyConnected is returned by RestartPortal while online.
	ErrAlreadyConnected = errors.New("already connected")
	// ErrConnecting is returned by RestartPortal while a connection attempt
	// is in flight.
	ErrConnecting = errors.New("connection attempt in progress")
)

// Radio is the station side of the wireless link.
type Radio interface {
	// Connect starts joining the network. It does not wait for the link.
	Connect(ctx context.Context, ssid, password string) error
	// Connected reports the live link state.
	Connected() bool
}

// Portal is the local configuration endpoint: AP broadcast, DNS redirection
// and the HTTP server.
type Portal interface {
	Start() error
	Stop() error
}

// Fetcher retrieves the follower count of an account.
type Fetcher interface {
	Fetch(ctx context.Context, account string) (int, error)
}

type Options struct {
	Store   prefs.Store
	Radio   Radio
	Fetcher Fetcher

	Interval time.Duration
	// DefaultAccount is used when the store holds no account.
	DefaultAccount string

	ConnectTimeout      time.Duration
	ConnectPollInterval time.Duration

	// RestartPortalOnFailure brings the portal back up when the connection
	// with freshly submitted credentials fails.
	RestartPortalOnFailure bool

	// OnPhaseChange is called after every phase transition, outside the lock.
	OnPhaseChange func(from, to types.Phase)
	// OnError is called whenever an error other than ErrorNone is recorded.
	OnError func(kind types.ErrorKind)

	Now func() time.Time
}

type Manager struct {
	store   prefs.Store
	radio   Radio
	fetcher Fetcher
	portal  Portal

	defaultAccount      string
	connectTimeout      time.Duration
	connectPollInterval time.Duration
	restartPortal       bool
	onPhaseChange       func(from, to types.Phase)
	onError             func(kind types.ErrorKind)
	now                 func() time.Time

	mu            sync.Mutex
	phase         types.Phase
	lastErr       types.ErrorKind
	current       types.Credentials
	candidate     types.Credentials
	pending       bool
	portalRunning bool
	schedule      *poll.Schedule
	observer      func(int)
}

func New(opts Options) *Manager {
	m := &Manager{
		store:               opts.Store,
		radio:               opts.Radio,
		fetcher:             opts.Fetcher,
		defaultAccount:      opts.DefaultAccount,
		connectTimeout:      opts.ConnectTimeout,
		connectPollInterval: opts.ConnectPollInterval,
		restartPortal:       opts.RestartPortalOnFailure,
		onPhaseChange:       opts.OnPhaseChange,
		onError:             opts.OnError,
		now:                 opts.Now,
		phase:               types.PhaseIdle,
		schedule:            poll.NewSchedule(opts.Interval),
	}
	if m.connectTimeout <= 0 {
		m.connectTimeout = DefaultConnectTimeout
	}
	if m.connectPollInterval <= 0 {
		m.connectPollInterval = DefaultConnectPollInterval
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// SetPortal attaches the configuration endpoint. It must be called before
// Begin.
func (m *Manager) SetPortal(p Portal) {
	m.portal = p
}

// Begin connects with stored credentials, or starts the portal when there
// are none or the connection fails.
func (m *Manager) Begin(ctx context.Context) error {
	creds, err := prefs.LoadCredentials(m.store)
	if err != nil {
		logrus.Errorf("failed to load stored credentials: %v", err)
		creds = types.Credentials{}
	}
	if creds.Account == "" {
		creds.Account = m.defaultAccount
	}

	if creds.HasNetwork() {
		logrus.WithField("ssid", creds.SSID).Info("found stored Wi-Fi credentials, attempting to connect")
		m.setPhase(types.PhaseConnecting)
		if m.connect(ctx, creds) {
			m.mu.Lock()
			m.current = creds
			m.mu.Unlock()
			m.setPhase(types.PhaseConnected)
			return nil
		}
	} else {
		logrus.Info("no stored Wi-Fi credentials")
	}

	return m.startPortal()
}

// Tick processes a pending submission and then fetches if one is due.
func (m *Manager) Tick(ctx context.Context) {
	m.mu.Lock()
	pending := m.pending
	candidate := m.candidate
	m.pending = false
	m.mu.Unlock()

	if pending {
		m.applyCandidate(ctx, candidate)
	}

	if !m.radio.Connected() {
		return
	}

	m.mu.Lock()
	due := m.schedule.Due(m.now())
	m.mu.Unlock()
	if !due {
		return
	}

	if err := m.fetchOnce(ctx); err != nil && !errors.Is(err, fetch.ErrSkipped) {
		logrus.Warnf("follower fetch failed during loop: %v", err)
	}
	m.mu.Lock()
	m.schedule.MarkAttempt(m.now())
	m.mu.Unlock()
}

func (m *Manager) applyCandidate(ctx context.Context, creds types.Credentials) {
	m.stopPortal()

	m.setPhase(types.PhaseConnecting)
	if !m.connect(ctx, creds) {
		logrus.WithField("ssid", creds.SSID).Error("Wi-Fi connection failed after config submission")
		m.setPhase(types.PhaseIdle)
		if m.restartPortal {
			if err := m.startPortal(); err != nil {
				logrus.Errorf("failed to restart configuration portal: %v", err)
			}
		}
		return
	}

	if err := prefs.SaveCredentials(m.store, creds); err != nil {
		logrus.Errorf("failed to persist credentials: %v", err)
	}

	m.mu.Lock()
	m.current = creds
	m.mu.Unlock()
	m.setPhase(types.PhaseConnected)

	if err := m.fetchOnce(ctx); err != nil && !errors.Is(err, fetch.ErrSkipped) {
		logrus.Warnf("initial follower fetch failed: %v", err)
	}
	m.mu.Lock()
	m.schedule.MarkAttempt(m.now())
	m.mu.Unlock()
}

// connect starts joining the network and waits until the link is up or the
// connect timeout elapses.
func (m *Manager) connect(ctx context.Context, creds types.Credentials) bool {
	log := logrus.WithField("ssid", creds.SSID)
	log.Info("connecting to Wi-Fi")

	ok := m.waitForLink(ctx, creds)
	if !ok {
		log.Error("Wi-Fi connection failed")
		m.setLastError(types.ErrorConnectionFailed)
		return false
	}

	log.Info("Wi-Fi connected")
	m.setLastError(types.ErrorNone)
	return true
}

func (m *Manager) waitForLink(ctx context.Context, creds types.Credentials) bool {
	ctx, cancel := context.WithTimeout(ctx, m.connectTimeout)
	defer cancel()

	if err := m.radio.Connect(ctx, creds.SSID, creds.Password); err != nil {
		logrus.Errorf("failed to start Wi-Fi connection: %v", err)
		return false
	}

	ticker := time.NewTicker(m.connectPollInterval)
	defer ticker.Stop()

	for {
		if m.radio.Connected() {
			return true
		}
		select {
		case <-ctx.Done():
			return m.radio.Connected()
		case <-ticker.C:
		}
	}
}

// fetchOnce runs one fetch for the current account and records the outcome.
func (m *Manager) fetchOnce(ctx context.Context) error {
	m.mu.Lock()
	account := m.current.Account
	m.mu.Unlock()

	log := logrus.WithField("account", account)

	n, err := m.fetcher.Fetch(ctx, account)
	switch {
	case err == nil:
	case errors.Is(err, fetch.ErrSkipped):
		log.Info("no account provided, skipping fetch")
		return err
	case errors.Is(err, fetch.ErrParse):
		log.Errorf("failed to parse profile response: %v", err)
		m.setLastError(types.ErrorParseFailed)
		return err
	default:
		log.Errorf("failed to fetch profile: %v", err)
		m.setLastError(types.ErrorFetchFailed)
		return err
	}

	m.mu.Lock()
	m.schedule.Record(n, m.now())
	m.lastErr = types.ErrorNone
	cb := m.observer
	m.mu.Unlock()

	log.WithField("followers", n).Info("follower count updated")

	if cb != nil {
		cb(n)
	}
	return nil
}

func (m *Manager) startPortal() error {
	if m.portal == nil {
		return errors.New("no configuration portal attached")
	}
	if err := m.portal.Start(); err != nil {
		return err
	}
	m.mu.Lock()
	m.portalRunning = true
	m.mu.Unlock()
	m.setPhase(types.PhaseAPMode)
	logrus.Info("configuration portal started")
	return nil
}

func (m *Manager) stopPortal() {
	m.mu.Lock()
	running := m.portalRunning
	m.portalRunning = false
	m.mu.Unlock()

	if !running || m.portal == nil {
		return
	}
	if err := m.portal.Stop(); err != nil {
		logrus.Errorf("failed to stop configuration portal: %v", err)
		return
	}
	logrus.Info("configuration portal stopped")
}

func (m *Manager) setPhase(p types.Phase) {
	m.mu.Lock()
	from := m.phase
	m.phase = p
	m.mu.Unlock()

	if from == p {
		return
	}
	logrus.WithFields(logrus.Fields{"from": from, "to": p}).Debug("provisioning phase transition")
	if m.onPhaseChange != nil {
		m.onPhaseChange(from, p)
	}
}

func (m *Manager) setLastError(e types.ErrorKind) {
	m.mu.Lock()
	m.lastErr = e
	m.mu.Unlock()

	if e != types.ErrorNone && m.onError != nil {
		m.onError(e)
	}
}
