package session

import (
	"context"
	"sync"
	"time"

	"github.com/praktikumlab/go-praktikum/logger"
)

// Config holds the timing parameters of the lifecycle manager.
type Config struct {
	// SessionTimeout forces sign-out after this much inactivity.
	SessionTimeout time.Duration
	// WarningTimeout is how long before the timeout the warning raises.
	WarningTimeout time.Duration
	// CheckInterval is the cadence of the inactivity check.
	CheckInterval time.Duration
	// RefreshInterval is the cadence of the token-expiry check.
	RefreshInterval time.Duration
	// RefreshWindow refreshes the token when expiry is this close.
	RefreshWindow time.Duration
	// ActivityThrottle suppresses activity events after a leading call.
	ActivityThrottle time.Duration
}

// DefaultConfig returns the application defaults: 30 minute timeout with a 5
// minute warning window, minute-cadence checks, and a 30 second activity
// throttle.
func DefaultConfig() Config {
	return Config{
		SessionTimeout:   30 * time.Minute,
		WarningTimeout:   5 * time.Minute,
		CheckInterval:    time.Minute,
		RefreshInterval:  time.Minute,
		RefreshWindow:    5 * time.Minute,
		ActivityThrottle: 30 * time.Second,
	}
}

// Manager tracks one user's session lifecycle. All state transitions go
// through the reducer under a single lock, so an activity update always lands
// before the next timeout check observes the state.
type Manager struct {
	cfg    Config
	auth   AuthClient
	lister SessionLister
	log    logger.Logger
	now    func() time.Time

	onWarning func(remaining time.Duration)
	onSignOut func(reason string)

	mu       sync.Mutex
	state    State
	throttle *throttle

	cancel context.CancelFunc
	done   chan struct{}
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithSessionLister overrides the source of the concurrent-session list.
func WithSessionLister(l SessionLister) ManagerOption {
	return func(m *Manager) { m.lister = l }
}

// WithWarningFunc is called once when the session enters the warning window.
func WithWarningFunc(fn func(remaining time.Duration)) ManagerOption {
	return func(m *Manager) { m.onWarning = fn }
}

// WithSignOutFunc is called once when the session is terminated.
func WithSignOutFunc(fn func(reason string)) ManagerOption {
	return func(m *Manager) { m.onSignOut = fn }
}

func withClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager builds a Manager around the given auth client.
func NewManager(cfg Config, auth AuthClient, log logger.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:    cfg,
		auth:   auth,
		lister: staticLister{},
		log:    log.With(map[string]interface{}{"component": "session"}),
		now:    time.Now,
		state:  initialState(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.throttle = newThrottle(cfg.ActivityThrottle, m.now)
	return m
}

// dispatch applies an action while holding the lock.
func (m *Manager) dispatch(a Action) {
	m.state = reduce(m.state, a)
}

// SetSession installs the credential bundle from a sign-in event.
func (m *Manager) SetSession(sess *Session, user *User) {
	m.mu.Lock()
	m.dispatch(Action{Type: ActionSetSession, Session: sess, User: user, Now: m.now()})
	m.mu.Unlock()
	m.throttle.reset()
}

// SignIn authenticates with the auth service and starts tracking the issued
// session.
func (m *Manager) SignIn(ctx context.Context, creds Credentials) error {
	result, err := m.auth.SignIn(ctx, creds)
	if err != nil {
		return err
	}
	m.SetSession(result.Session, result.User)
	m.log.Info("session started for %s", result.User.Email)
	return nil
}

// State returns a copy of the current session state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Activity records a user interaction. Events funnel through the leading-edge
// throttle, so a burst extends the session once.
func (m *Manager) Activity() {
	if !m.throttle.allow() {
		return
	}
	m.ExtendSession()
}

// ExtendSession records the current time as last activity and clears any
// shown warning.
func (m *Manager) ExtendSession() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.IsActive {
		return
	}
	m.dispatch(Action{Type: ActionUpdateActivity, Now: m.now()})
}

// RefreshSession asks the auth service for a new token pair. A refresh
// failure is fatal for the session: it forces a global sign-out rather than
// retrying.
func (m *Manager) RefreshSession(ctx context.Context) error {
	m.mu.Lock()
	if m.state.Session == nil {
		m.mu.Unlock()
		return nil
	}
	refreshToken := m.state.Session.RefreshToken
	user := m.state.User
	m.mu.Unlock()

	result, err := m.auth.RefreshToken(ctx, refreshToken)
	if err != nil {
		m.log.Warn("token refresh failed, signing out: %v", err)
		m.signOut(ctx, ScopeGlobal, "refresh failed")
		return err
	}
	if result.User == nil {
		result.User = user
	}
	m.mu.Lock()
	m.dispatch(Action{Type: ActionSetSession, Session: result.Session, User: result.User, Now: m.now()})
	m.mu.Unlock()
	m.log.Debug("session token refreshed")
	return nil
}

// TerminateSession ends the current session when id is empty: it signs out
// locally and remotely and resets the state. Terminating another session by
// id is a placeholder; no remote revocation API is available.
func (m *Manager) TerminateSession(ctx context.Context, id string) error {
	if id != "" {
		m.log.Debug("remote revocation for session %s is not supported", id)
		return nil
	}
	return m.signOut(ctx, ScopeLocal, "terminated")
}

// TerminateAllSessions signs out of every device session for the identity.
func (m *Manager) TerminateAllSessions(ctx context.Context) error {
	return m.signOut(ctx, ScopeGlobal, "terminated everywhere")
}

// CheckConcurrentSessions populates the informational list of other sessions
// for the signed-in identity.
func (m *Manager) CheckConcurrentSessions(ctx context.Context) error {
	m.mu.Lock()
	user := m.state.User
	m.mu.Unlock()
	if user == nil {
		return nil
	}
	sessions, err := m.lister.List(ctx, user.ID)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.dispatch(Action{Type: ActionSetConcurrentSessions, Sessions: sessions})
	m.mu.Unlock()
	return nil
}

// signOut performs the local+remote sign-out exactly once per session.
func (m *Manager) signOut(ctx context.Context, scope SignOutScope, reason string) error {
	m.mu.Lock()
	if !m.state.IsActive {
		m.mu.Unlock()
		return nil
	}
	m.dispatch(Action{Type: ActionReset})
	m.mu.Unlock()

	err := m.auth.SignOut(ctx, scope)
	if err != nil {
		m.log.Warn("remote sign-out failed: %v", err)
	}
	m.log.Info("session ended: %s", reason)
	if m.onSignOut != nil {
		m.onSignOut(reason)
	}
	return err
}

// Run starts the periodic checks and blocks until ctx is cancelled or Stop is
// called. Both timers stop deterministically on teardown.
func (m *Manager) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()
	defer close(done)

	checkTicker := time.NewTicker(m.cfg.CheckInterval)
	defer checkTicker.Stop()
	refreshTicker := time.NewTicker(m.cfg.RefreshInterval)
	defer refreshTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-checkTicker.C:
			m.checkTimeout(ctx)
		case <-refreshTicker.C:
			m.checkRefresh(ctx)
		}
	}
}

// Stop cancels the timers and waits for the run loop to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// checkTimeout raises the warning inside the warning window and forces
// sign-out once the timeout elapses.
func (m *Manager) checkTimeout(ctx context.Context) {
	m.mu.Lock()
	if !m.state.IsActive || m.state.Session == nil {
		m.mu.Unlock()
		return
	}
	elapsed := m.now().Sub(m.state.LastActivity)
	timedOut := elapsed >= m.cfg.SessionTimeout
	warn := !timedOut && elapsed >= m.cfg.SessionTimeout-m.cfg.WarningTimeout && !m.state.WarningShown
	if warn {
		m.dispatch(Action{Type: ActionShowWarning})
	}
	remaining := m.cfg.SessionTimeout - elapsed
	m.mu.Unlock()

	if timedOut {
		m.signOut(ctx, ScopeLocal, "inactivity timeout")
		return
	}
	if warn {
		m.log.Info("session expires in %s", remaining.Round(time.Second))
		if m.onWarning != nil {
			m.onWarning(remaining)
		}
	}
}

// checkRefresh refreshes the token when expiry is near. A session whose
// inactivity already exceeds the timeout is never refreshed: refreshing would
// reset LastActivity and mask the overdue sign-out, so the check hands off to
// the timeout path instead. This keeps timeout and refresh mutually exclusive
// even when both tickers come due on the same tick.
func (m *Manager) checkRefresh(ctx context.Context) {
	m.mu.Lock()
	if !m.state.IsActive || m.state.Session == nil {
		m.mu.Unlock()
		return
	}
	timedOut := m.now().Sub(m.state.LastActivity) >= m.cfg.SessionTimeout
	expiringSoon := m.state.Session.ExpiresAt.Sub(m.now()) <= m.cfg.RefreshWindow
	m.mu.Unlock()
	if timedOut {
		m.checkTimeout(ctx)
		return
	}
	if !expiringSoon {
		return
	}
	_ = m.RefreshSession(ctx)
}
