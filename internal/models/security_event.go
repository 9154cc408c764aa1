package models

import "time"

// SecurityEventKind — вид события безопасности для журнала.
type SecurityEventKind string

const (
	EventLoginSucceeded SecurityEventKind = "login_succeeded"
	EventLoginFailed    SecurityEventKind = "login_failed"
	EventRefreshRotated SecurityEventKind = "refresh_rotated"
	EventReplayDetected SecurityEventKind = "replay_detected"
	EventLogout         SecurityEventKind = "logout"
)

// SecurityEvent — запись журнала безопасности.
// UserID может быть пустым (например, вход с неизвестным e-mail).
type SecurityEvent struct {
	ID        string
	Kind      SecurityEventKind
	UserID    string
	JTI       string
	RequestID string
	Detail    string
	At        time.Time
}
