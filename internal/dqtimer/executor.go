package dqtimer

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// execute runs the terminal action for an expired timer. The record has
// already been removed from the registry; whatever happens here, the
// timer is retired and never retried. Failures surface as an "error"
// event for a human to resolve.
//
// Only the match-state mutation runs under ActionTimeout. The refresh
// that follows gets ctx unbounded, so the re-publish keeps its fallback
// watcher alive for the full grace window.
func (s *Scheduler) execute(ctx context.Context, t *dqTimer) {
	if t.mode == ModeNotify {
		s.publish(Event{
			Type:        EventExpired,
			Mode:        ModeNotify,
			Participant: t.participant.Name,
		}, t.key)
		log.Info().
			Str("tenant_id", t.key.TenantID).
			Str("match_id", t.key.MatchID).
			Str("slot", t.key.Slot).
			Msg("dq timer expired (notify)")
		return
	}

	actionCtx, cancel := context.WithTimeout(ctx, s.config.ActionTimeout)
	defer cancel()
	if err := s.autoDisqualify(actionCtx, t); err != nil {
		s.publish(Event{
			Type:        EventError,
			Mode:        ModeAutoDisqualify,
			Participant: t.participant.Name,
			Reason:      err.Error(),
		}, t.key)
		log.Error().
			Err(err).
			Str("tenant_id", t.key.TenantID).
			Str("match_id", t.key.MatchID).
			Msg("auto-disqualify failed")
		return
	}

	s.publish(Event{
		Type:        EventExecuted,
		Mode:        ModeAutoDisqualify,
		Participant: t.participant.Name,
	}, t.key)
	log.Info().
		Str("tenant_id", t.key.TenantID).
		Str("match_id", t.key.MatchID).
		Str("participant", t.participant.Name).
		Msg("auto-disqualify executed")

	if s.refresh != nil {
		s.refresh(ctx, t.key.TenantID)
	}
}

// autoDisqualify records the non-participant as winner via forfeit
// through the match-state collaborator.
func (s *Scheduler) autoDisqualify(ctx context.Context, t *dqTimer) error {
	if t.participant.ID == "" {
		return fmt.Errorf("no participant on auto-disqualify timer")
	}

	winner, ok := s.opponents.Opponent(ctx, t.key.TenantID, t.key.MatchID, t.participant.ID)
	if !ok {
		return fmt.Errorf("opponent of %s not found in match %s", t.participant.ID, t.key.MatchID)
	}

	if err := s.matchState.RecordForfeitWinner(ctx, t.key.MatchID, winner, t.participant); err != nil {
		return fmt.Errorf("record forfeit winner: %w", err)
	}
	return nil
}
