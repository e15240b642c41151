package domain

import "time"

// EventType names a session lifecycle event.
type EventType string

const (
	EventLogin         EventType = "login"
	EventLoginFailed   EventType = "login_failed"
	EventSignup        EventType = "signup"
	EventRefresh       EventType = "refresh"
	EventRefreshFailed EventType = "refresh_failed"
	EventLogout        EventType = "logout"
	EventRestore       EventType = "restore"
)

// Logout reasons carried in Event.Reason.
const (
	ReasonUser          = "user"
	ReasonTimeout       = "timeout"
	ReasonRefreshFailed = "refresh_failed"
	ReasonRestoreFailed = "restore_failed"
)

// Event is a session lifecycle event (device-scoped, optional user/session).
type Event struct {
	ID        int64     `json:"-"`
	Type      EventType `json:"eventType"`
	UserID    string    `json:"userId,omitempty"`
	DeviceID  string    `json:"deviceId,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"createdAt"`
}
