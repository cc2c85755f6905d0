package display

import (
	"time"

	"github.com/openmat/courtcast/internal/bracket"
	"github.com/openmat/courtcast/internal/bracket/delta"
	"github.com/openmat/courtcast/internal/dqtimer"
)

// Message is the broadcast envelope pushed to every connection in a
// tenant's channel. Type mirrors the delta payload type for state
// updates ("delta" / "none") or marks a timer lifecycle event.
type Message struct {
	Type        string                      `json:"type"`
	Changes     *delta.Payload              `json:"changes,omitempty"`
	FullPayload *bracket.TournamentSnapshot `json:"full_payload,omitempty"`
	Timer       *dqtimer.Event              `json:"timer,omitempty"`
	ContentHash string                      `json:"content_hash,omitempty"`
	Timestamp   time.Time                   `json:"timestamp"`
}

const MessageTimer = "timer"
