package display

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/openmat/courtcast/internal/bracket"
	"github.com/openmat/courtcast/internal/bracket/delta"
	"github.com/openmat/courtcast/internal/dqtimer"
)

// Registry is the connection-manager surface the dispatcher fans out
// through.
type Registry interface {
	Broadcast(tenantID string, data []byte)
	SetWindow(tenantID string, at time.Time, contentHash string)
}

// FallbackDecider answers whether the out-of-band path is required for
// a tenant, and how long to wait before asking.
type FallbackDecider interface {
	NeedsFallback(tenantID string) bool
	GraceWindow() time.Duration
}

// FallbackPusher delivers the full snapshot down the legacy path.
type FallbackPusher interface {
	Push(ctx context.Context, snap *bracket.TournamentSnapshot)
}

// Dispatcher stamps outgoing state updates with a content hash and
// timestamp, fans them out to the tenant's channel, records the
// delivery window, and arms the fallback check off the fan-out path.
type Dispatcher struct {
	registry Registry
	decider  FallbackDecider
	pusher   FallbackPusher
	clock    clockwork.Clock
}

func NewDispatcher(registry Registry, decider FallbackDecider, pusher FallbackPusher, clock clockwork.Clock) *Dispatcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Dispatcher{
		registry: registry,
		decider:  decider,
		pusher:   pusher,
		clock:    clock,
	}
}

// Publish sends one state update to the tenant's channel. The delivery
// window is updated unconditionally, even with zero registered
// connections: it records the last attempt, not the last success.
// Errors never reach the caller; downstream delivery degrading must not
// fail the state mutation that triggered it.
func (d *Dispatcher) Publish(ctx context.Context, snap *bracket.TournamentSnapshot, payload *delta.Payload) {
	now := d.clock.Now().UTC()
	hash := ContentHash(snap)

	msg := Message{
		Type:        string(payload.Type),
		FullPayload: snap,
		ContentHash: hash,
		Timestamp:   now,
	}
	if payload.Type == delta.PayloadDelta {
		msg.Changes = payload
	}

	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("tenant_id", snap.TenantID).Msg("marshal broadcast message")
		return
	}

	d.registry.Broadcast(snap.TenantID, data)
	d.registry.SetWindow(snap.TenantID, now, hash)

	go d.watchFallback(ctx, snap)

	log.Debug().
		Str("tenant_id", snap.TenantID).
		Str("delta_type", string(payload.Type)).
		Str("content_hash", hash[:12]).
		Msg("state update published")
}

// PublishTimerEvent pushes a timer lifecycle event onto the tenant's
// channel. Timer events do not move the delivery window; the window
// tracks state updates, which is what displays acknowledge.
func (d *Dispatcher) PublishTimerEvent(tenantID string, ev dqtimer.Event) {
	msg := Message{
		Type:      MessageTimer,
		Timer:     &ev,
		Timestamp: d.clock.Now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenantID).Msg("marshal timer event")
		return
	}
	d.registry.Broadcast(tenantID, data)
}

// watchFallback waits out the grace window and pushes the full snapshot
// down the fallback path if no display acknowledged the broadcast. A
// newer broadcast restarts the tenant's window, in which case this
// check sees a fresh window and stands down.
func (d *Dispatcher) watchFallback(ctx context.Context, snap *bracket.TournamentSnapshot) {
	timer := d.clock.NewTimer(d.decider.GraceWindow())
	defer stopAndDrainTimer(timer)

	select {
	case <-ctx.Done():
		return
	case <-timer.Chan():
	}

	if !d.decider.NeedsFallback(snap.TenantID) {
		return
	}
	log.Warn().
		Str("tenant_id", snap.TenantID).
		Msg("no acknowledgment within grace window, pushing fallback")
	d.pusher.Push(ctx, snap)
}

func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
