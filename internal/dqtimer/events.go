package dqtimer

import "time"

// EventType is the lifecycle of one disqualification timer as seen by
// control UIs and displays.
type EventType string

const (
	EventStarted   EventType = "started"
	EventWarning   EventType = "warning"
	EventExpired   EventType = "expired"
	EventCancelled EventType = "cancelled"
	EventExecuted  EventType = "executed"
	EventError     EventType = "error"
)

// Event is one timer lifecycle notification, published to the owning
// tenant's broadcast channel.
type Event struct {
	Type             EventType `json:"type"`
	TenantID         string    `json:"tenant_id"`
	TournamentID     string    `json:"tournament_id"`
	MatchID          string    `json:"match_id"`
	Slot             string    `json:"slot"`
	Participant      string    `json:"participant,omitempty"`
	Mode             Mode      `json:"mode,omitempty"`
	ExpiresAt        time.Time `json:"expires_at,omitempty"`
	SecondsRemaining int       `json:"seconds_remaining,omitempty"`
	Reason           string    `json:"reason,omitempty"`
}

// Publisher pushes timer events onto a tenant's broadcast channel. The
// display dispatcher implements this.
type Publisher interface {
	PublishTimerEvent(tenantID string, ev Event)
}
