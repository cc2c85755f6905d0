// Package fallback decides when the primary push channel shows no sign
// of healthy delivery and ships the full snapshot down a legacy
// out-of-band path instead.
package fallback

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultGraceWindow is how long after a broadcast we wait for an
// acknowledgment before the fallback path kicks in.
const DefaultGraceWindow = 30 * time.Second

// AckWindow is the view of the connection registry the decider needs:
// the last broadcast attempt per tenant and whether anyone caught up.
type AckWindow interface {
	Window(tenantID string) (at time.Time, contentHash string, ok bool)
	HasAckSince(tenantID string, at time.Time, contentHash string) bool
}

// Decider implements the one-sided fallback rule. It never triggers
// early: a tenant only needs fallback once a full grace window has
// elapsed since the last broadcast with no qualifying acknowledgment.
// A tenant with zero connections therefore always ends up needing
// fallback after the window, which lets the out-of-band path reach
// clients that never established the primary channel.
type Decider struct {
	acks  AckWindow
	grace time.Duration
	clock clockwork.Clock
}

func NewDecider(acks AckWindow, grace time.Duration, clock clockwork.Clock) *Decider {
	if grace <= 0 {
		grace = DefaultGraceWindow
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Decider{acks: acks, grace: grace, clock: clock}
}

// GraceWindow returns the configured grace duration.
func (d *Decider) GraceWindow() time.Duration { return d.grace }

// NeedsFallback reports whether the tenant's last broadcast went
// unacknowledged for a full grace window. False when the tenant has
// never broadcast.
func (d *Decider) NeedsFallback(tenantID string) bool {
	at, hash, ok := d.acks.Window(tenantID)
	if !ok {
		return false
	}
	if d.clock.Now().Sub(at) < d.grace {
		return false
	}
	return !d.acks.HasAckSince(tenantID, at, hash)
}
