// Package session maintains the single source of truth for whether the
// current user's session is still valid: it tracks activity, warns before an
// inactivity timeout, refreshes credentials ahead of expiry, and forces
// sign-out when the user goes idle too long.
package session

import "time"

// Session is the credential bundle issued by the auth service. It is tracked
// independently of the auth service's own token object.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// User identifies the signed-in account.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	// Role is one of admin, dosen, mahasiswa, laboran.
	Role string `json:"role"`
}

// ConcurrentSession describes another known session for the same identity.
// The list is informational only and never enforced.
type ConcurrentSession struct {
	ID           string    `json:"id"`
	Device       string    `json:"device"`
	Location     string    `json:"location"`
	LastActivity time.Time `json:"last_activity"`
	Current      bool      `json:"current"`
}

// State is the process-wide session record.
type State struct {
	Session            *Session
	User               *User
	LastActivity       time.Time
	IsActive           bool
	WarningShown       bool
	ConcurrentSessions []ConcurrentSession
}

// ActionType tags a state transition.
type ActionType string

// The action set mirrors the application's session reducer.
const (
	ActionSetSession            ActionType = "SET_SESSION"
	ActionUpdateActivity        ActionType = "UPDATE_ACTIVITY"
	ActionShowWarning           ActionType = "SHOW_WARNING"
	ActionSetConcurrentSessions ActionType = "SET_CONCURRENT_SESSIONS"
	ActionReset                 ActionType = "RESET"
)

// Action is one tagged state transition input.
type Action struct {
	Type     ActionType
	Session  *Session
	User     *User
	Now      time.Time
	Sessions []ConcurrentSession
}

func initialState() State {
	return State{}
}

// reduce applies one action to the state and returns the next state.
func reduce(s State, a Action) State {
	switch a.Type {
	case ActionSetSession:
		s.Session = a.Session
		s.User = a.User
		s.LastActivity = a.Now
		s.IsActive = true
		s.WarningShown = false
	case ActionUpdateActivity:
		s.LastActivity = a.Now
		s.WarningShown = false
	case ActionShowWarning:
		s.WarningShown = true
	case ActionSetConcurrentSessions:
		s.ConcurrentSessions = a.Sessions
	case ActionReset:
		s = initialState()
	}
	return s
}
