// Package dqtimer owns the per-match disqualification countdowns: one
// independent timer per (tenant, tournament, match, slot) key, with a
// warning callback, a terminal callback, and an emergency freeze switch.
package dqtimer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/openmat/courtcast/internal/bracket"
)

const (
	// DefaultWarningThreshold is how long before expiry the warning
	// event fires. Timers shorter than this get no warning.
	DefaultWarningThreshold = 30 * time.Second

	// DefaultActionTimeout bounds the auto-disqualify mutation so a
	// slow match-state collaborator cannot stall the callback.
	DefaultActionTimeout = 10 * time.Second

	// MaxDuration rejects obviously malformed start commands.
	MaxDuration = 24 * time.Hour
)

var (
	// ErrNotFound is returned by Cancel for an absent key. Cancelling
	// a timer that already fired or was never started is not an error
	// condition for callers; they just learn nothing was live.
	ErrNotFound = errors.New("dqtimer: no timer for key")

	// ErrFrozen is returned by Start while the emergency freeze is
	// latched.
	ErrFrozen = errors.New("dqtimer: timers are frozen")
)

// Key identifies one timer. At most one live timer exists per key at
// any instant; starting a second one replaces the first.
type Key struct {
	TenantID     string `json:"tenant_id"`
	TournamentID string `json:"tournament_id"`
	MatchID      string `json:"match_id"`
	Slot         string `json:"slot"`
}

func (k Key) Validate() error {
	if k.TenantID == "" || k.TournamentID == "" || k.MatchID == "" || k.Slot == "" {
		return fmt.Errorf("dqtimer: incomplete key %+v", k)
	}
	return nil
}

// Mode selects the terminal action on expiry.
type Mode string

const (
	ModeNotify         Mode = "notify"
	ModeAutoDisqualify Mode = "auto-disqualify"
)

// MatchStateService is the external match-state collaborator. The
// implementation records a forfeit result (score 0-0, forfeited flag)
// naming winner over loser.
type MatchStateService interface {
	RecordForfeitWinner(ctx context.Context, matchID string, winner, loser bracket.ParticipantRef) error
}

// OpponentLookup resolves the other side of a match, so auto-disqualify
// can name the non-timed-out participant as winner.
type OpponentLookup interface {
	Opponent(ctx context.Context, tenantID, matchID, participantID string) (bracket.ParticipantRef, bool)
}

// RefreshFunc re-publishes a tenant's state after an auto-disqualify
// lands, so displays pick up the forfeit without waiting for the next
// provider sync.
type RefreshFunc func(ctx context.Context, tenantID string)

// Config tunes the scheduler.
type Config struct {
	WarningThreshold time.Duration
	ActionTimeout    time.Duration
}

func DefaultConfig() Config {
	return Config{
		WarningThreshold: DefaultWarningThreshold,
		ActionTimeout:    DefaultActionTimeout,
	}
}

// Scheduler runs the countdowns. Callbacks execute on their own
// goroutines and never block the broadcast path.
type Scheduler struct {
	clock      clockwork.Clock
	publisher  Publisher
	matchState MatchStateService
	opponents  OpponentLookup
	refresh    RefreshFunc
	config     Config

	mu     sync.Mutex
	timers map[Key]*dqTimer
	frozen bool
}

// dqTimer is one live countdown. A callback only acts if the registry
// still maps its key to this exact instance, so stale fires from a
// replaced or cancelled timer are discarded silently.
type dqTimer struct {
	key         Key
	mode        Mode
	participant bracket.ParticipantRef
	duration    time.Duration
	startedAt   time.Time
	expiresAt   time.Time
	warned      bool
	stopCh      chan struct{}
}

func NewScheduler(clock clockwork.Clock, publisher Publisher, matchState MatchStateService, opponents OpponentLookup, refresh RefreshFunc, config Config) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if config.WarningThreshold <= 0 {
		config.WarningThreshold = DefaultWarningThreshold
	}
	if config.ActionTimeout <= 0 {
		config.ActionTimeout = DefaultActionTimeout
	}
	return &Scheduler{
		clock:      clock,
		publisher:  publisher,
		matchState: matchState,
		opponents:  opponents,
		refresh:    refresh,
		config:     config,
		timers:     make(map[Key]*dqTimer),
	}
}

// Start begins a countdown for key, replacing any live timer for the
// same key (the replaced timer's callbacks never fire). It emits a
// "started" event immediately and returns a validation error, with no
// side effects, for malformed commands.
func (s *Scheduler) Start(ctx context.Context, key Key, duration time.Duration, mode Mode, participant bracket.ParticipantRef) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if duration <= 0 || duration > MaxDuration {
		return fmt.Errorf("dqtimer: duration %s out of range", duration)
	}
	if mode != ModeNotify && mode != ModeAutoDisqualify {
		return fmt.Errorf("dqtimer: unknown mode %q", mode)
	}

	now := s.clock.Now()
	t := &dqTimer{
		key:         key,
		mode:        mode,
		participant: participant,
		duration:    duration,
		startedAt:   now,
		expiresAt:   now.Add(duration),
		stopCh:      make(chan struct{}),
	}

	s.mu.Lock()
	if s.frozen {
		s.mu.Unlock()
		return ErrFrozen
	}
	if old, exists := s.timers[key]; exists {
		close(old.stopCh)
		log.Debug().
			Str("match_id", key.MatchID).
			Str("slot", key.Slot).
			Msg("replaced existing dq timer")
	}
	s.timers[key] = t

	var warn clockwork.Timer
	if duration > s.config.WarningThreshold {
		warn = s.clock.NewTimer(duration - s.config.WarningThreshold)
	}
	expire := s.clock.NewTimer(duration)
	s.mu.Unlock()

	go s.run(ctx, t, warn, expire)

	s.publish(Event{
		Type:        EventStarted,
		Mode:        mode,
		ExpiresAt:   t.expiresAt,
		Participant: participant.Name,
	}, key)

	log.Info().
		Str("tenant_id", key.TenantID).
		Str("match_id", key.MatchID).
		Str("slot", key.Slot).
		Dur("duration", duration).
		Str("mode", string(mode)).
		Msg("dq timer started")
	return nil
}

// Cancel clears the timer for key. Both scheduled callbacks are
// stopped, the record is removed, and a "cancelled" event is emitted.
// An absent key returns ErrNotFound with no side effects.
func (s *Scheduler) Cancel(key Key) error {
	s.mu.Lock()
	t, ok := s.timers[key]
	if ok {
		delete(s.timers, key)
		close(t.stopCh)
	}
	s.mu.Unlock()

	if !ok {
		return ErrNotFound
	}

	s.publish(Event{Type: EventCancelled, Participant: t.participant.Name}, key)
	log.Info().
		Str("tenant_id", key.TenantID).
		Str("match_id", key.MatchID).
		Str("slot", key.Slot).
		Msg("dq timer cancelled")
	return nil
}

// FreezeAll is the emergency interrupt: it cancels every live timer
// across all tenants and rejects new starts until Unfreeze.
func (s *Scheduler) FreezeAll() {
	s.mu.Lock()
	s.frozen = true
	keys := make([]Key, 0, len(s.timers))
	for k := range s.timers {
		keys = append(keys, k)
	}
	s.mu.Unlock()

	for _, k := range keys {
		s.Cancel(k)
	}
	log.Warn().Int("cancelled", len(keys)).Msg("all dq timers frozen")
}

// Unfreeze releases the emergency interrupt.
func (s *Scheduler) Unfreeze() {
	s.mu.Lock()
	s.frozen = false
	s.mu.Unlock()
	log.Info().Msg("dq timers unfrozen")
}

// Active returns the number of live timers.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// run waits on the warning and expiry timers for one countdown
// instance. Whichever of cancel/replace/expiry resolves the key first
// under the scheduler lock wins; the losers see a stale instance and
// return silently.
func (s *Scheduler) run(ctx context.Context, t *dqTimer, warn, expire clockwork.Timer) {
	var warnCh <-chan time.Time
	if warn != nil {
		warnCh = warn.Chan()
	}

	for {
		select {
		case <-warnCh:
			warnCh = nil
			if s.current(t) {
				t.warned = true
				s.publish(Event{
					Type:             EventWarning,
					Participant:      t.participant.Name,
					SecondsRemaining: int(s.config.WarningThreshold.Seconds()),
					ExpiresAt:        t.expiresAt,
				}, t.key)
			}

		case <-expire.Chan():
			if warn != nil {
				stopAndDrainTimer(warn)
			}
			if !s.take(t) {
				return
			}
			s.execute(ctx, t)
			return

		case <-t.stopCh:
			stopAndDrainTimer(expire)
			if warn != nil {
				stopAndDrainTimer(warn)
			}
			return

		case <-ctx.Done():
			stopAndDrainTimer(expire)
			if warn != nil {
				stopAndDrainTimer(warn)
			}
			s.mu.Lock()
			if s.timers[t.key] == t {
				delete(s.timers, t.key)
			}
			s.mu.Unlock()
			return
		}
	}
}

// current reports whether t is still the registered instance for its key.
func (s *Scheduler) current(t *dqTimer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers[t.key] == t
}

// take removes t from the registry iff it is still the registered
// instance, claiming the right to run the terminal action.
func (s *Scheduler) take(t *dqTimer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timers[t.key] != t {
		return false
	}
	delete(s.timers, t.key)
	return true
}

func (s *Scheduler) publish(ev Event, key Key) {
	if s.publisher == nil {
		return
	}
	ev.TenantID = key.TenantID
	ev.TournamentID = key.TournamentID
	ev.MatchID = key.MatchID
	ev.Slot = key.Slot
	s.publisher.PublishTimerEvent(key.TenantID, ev)
}

// stopAndDrainTimer stops a timer and drains its channel so a fire that
// raced the Stop cannot leak into a later select.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
