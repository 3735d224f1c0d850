package provision

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/followd/pkg/prefs"
	"github.com/charlie0129/followd/pkg/types"
)

// Submit queues credentials from the configuration page. They are applied
// on the next Tick. Incomplete submissions change nothing.
func (m *Manager) Submit(creds types.Credentials) error {
	if !creds.Complete() {
		return ErrIncomplete
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != types.PhaseAPMode {
		return ErrNotProvisioning
	}

	m.candidate = creds
	m.pending = true

	logrus.WithFields(logrus.Fields{
		"ssid":    creds.SSID,
		"account": creds.Account,
	}).Info("credentials received")

	return nil
}

// RestartPortal brings the configuration portal back up after a failed
// connection attempt left the device offline.
func (m *Manager) RestartPortal() error {
	m.mu.Lock()
	running := m.portalRunning
	connecting := m.phase == types.PhaseConnecting
	m.mu.Unlock()

	if running {
		return nil
	}
	// the access point shares the interface with the pending station link
	if connecting {
		return ErrConnecting
	}
	if m.radio.Connected() {
		return ErrAlreadyConnected
	}
	return m.startPortal()
}

// Shutdown stops the portal if it is running.
func (m *Manager) Shutdown() {
	m.stopPortal()
}

// FollowerCount returns the last fetched count, or types.UnsetCount.
func (m *Manager) FollowerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.schedule.Count()
}

func (m *Manager) FetchInterval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.schedule.Interval()
}

// SetFetchInterval takes effect on the next schedule comparison.
func (m *Manager) SetFetchInterval(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedule.SetInterval(d)
}

// OnFollowerCountUpdate registers the observer called synchronously after
// every successful fetch. A later call replaces the previous observer.
func (m *Manager) OnFollowerCountUpdate(cb func(count int)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observer = cb
}

func (m *Manager) LastError() types.ErrorKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func (m *Manager) ClearLastError() {
	m.setLastError(types.ErrorNone)
}

func (m *Manager) Phase() types.Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Account returns the account being polled.
func (m *Manager) Account() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.Account
}

// SetAccount switches the polled account without re-provisioning. The new
// account is persisted and fetched on the next tick.
func (m *Manager) SetAccount(account string) error {
	if account == "" {
		return ErrIncomplete
	}
	if err := m.store.PutString(prefs.Namespace, prefs.KeyAccount, account); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.Account = account
	m.schedule.Reset()

	logrus.WithField("account", account).Info("polled account changed")
	return nil
}

// Candidate returns the most recently submitted credentials.
func (m *Manager) Candidate() types.Credentials {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.candidate
}

// PortalRunning reports whether the configuration portal is up.
func (m *Manager) PortalRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.portalRunning
}

// Status is the view served to the configuration page.
func (m *Manager) Status() types.Status {
	wifi := types.WiFiNotConnected
	if m.radio.Connected() {
		wifi = types.WiFiConnected
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return types.Status{
		WiFiStatus:    wifi,
		FollowerCount: m.schedule.Count(),
		LastError:     m.lastErr.String(),
	}
}

// DaemonStatus is Status plus phase and schedule details.
func (m *Manager) DaemonStatus() types.DaemonStatus {
	st := m.Status()

	m.mu.Lock()
	defer m.mu.Unlock()

	ds := types.DaemonStatus{
		Status:   st,
		Phase:    m.phase,
		Account:  m.current.Account,
		Interval: m.schedule.Interval().String(),
	}
	if t := m.schedule.LastAttempt(); !t.IsZero() {
		ds.LastPoll = t.Format(time.RFC3339)
	}
	return ds
}
