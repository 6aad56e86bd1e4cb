package domain

// SessionEvent names a session lifecycle transition. Used as a log attribute
// and a metrics label.
type SessionEvent string

// Session event constants.
const (
	EventLogin         SessionEvent = "login"
	EventLoginFailed   SessionEvent = "login_failed"
	EventLogout        SessionEvent = "logout"
	EventRefresh       SessionEvent = "refresh"
	EventRefreshFailed SessionEvent = "refresh_failed"
	EventRehydrate     SessionEvent = "rehydrate"
)
