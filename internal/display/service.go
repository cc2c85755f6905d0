// Package display is the delta-computation and reliable-broadcast core:
// it turns full tournament snapshots into minimal ordered updates and
// pushes them to every display in the tenant's channel, with an
// acknowledgment-driven fallback path for unhealthy channels.
package display

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/openmat/courtcast/internal/bracket"
	"github.com/openmat/courtcast/internal/bracket/delta"
	"github.com/openmat/courtcast/internal/bracket/snapshot"
)

// Service is the inbound surface for the match-state collaborator:
// snapshot in, delta broadcast out.
type Service struct {
	store      snapshot.Store
	deltas     *delta.Computer
	dispatcher *Dispatcher

	// One lock per tenant: the delta computer's remembered previous
	// state makes the save→compute→publish pipeline single-writer per
	// tenant. Cross-tenant work stays fully parallel.
	mu          sync.Mutex
	tenantLocks map[string]*sync.Mutex
}

func NewService(store snapshot.Store, deltas *delta.Computer, dispatcher *Dispatcher) *Service {
	return &Service{
		store:       store,
		deltas:      deltas,
		dispatcher:  dispatcher,
		tenantLocks: make(map[string]*sync.Mutex),
	}
}

// OnTournamentStateChanged ingests a new full snapshot: persist it,
// compute the delta against the previous one, and broadcast. Delivery
// problems never propagate back; from the collaborator's perspective
// the state change always succeeds.
func (s *Service) OnTournamentStateChanged(ctx context.Context, snap *bracket.TournamentSnapshot) error {
	if snap == nil || snap.TenantID == "" {
		return fmt.Errorf("display: snapshot missing tenant id")
	}

	lock := s.tenantLock(snap.TenantID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.store.Save(ctx, snap); err != nil {
		// Persistence trouble degrades restart resilience, not live
		// delivery. Keep broadcasting.
		log.Error().Err(err).Str("tenant_id", snap.TenantID).Msg("snapshot save failed")
	}

	payload := s.deltas.Compute(snap)
	s.dispatcher.Publish(ctx, snap, payload)
	return nil
}

// RequestLatest seeds a (re)connecting client with the current
// snapshot plus staleness info. Stale data is still returned; staleness
// is metadata, never a reason to suppress the read.
func (s *Service) RequestLatest(ctx context.Context, tenantID string) (snapshot.Result, error) {
	return s.store.Load(ctx, tenantID)
}

// Refresh re-broadcasts the latest stored snapshot as a full update,
// resetting the delta memory first so every field comes out marked
// changed. Used after an auto-disqualify lands.
func (s *Service) Refresh(ctx context.Context, tenantID string) {
	res, err := s.store.Load(ctx, tenantID)
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenantID).Msg("refresh load failed")
		return
	}
	if res.Snapshot == nil {
		return
	}

	lock := s.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	s.deltas.Forget(tenantID)
	payload := s.deltas.Compute(res.Snapshot)
	s.dispatcher.Publish(ctx, res.Snapshot, payload)
}

// Opponent resolves the other side of a match from the latest snapshot.
// Satisfies the timer scheduler's lookup dependency.
func (s *Service) Opponent(ctx context.Context, tenantID, matchID, participantID string) (bracket.ParticipantRef, bool) {
	res, err := s.store.Load(ctx, tenantID)
	if err != nil || res.Snapshot == nil {
		return bracket.ParticipantRef{}, false
	}
	return res.Snapshot.Opponent(matchID, participantID)
}

func (s *Service) tenantLock(tenantID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.tenantLocks[tenantID]
	if !ok {
		lock = &sync.Mutex{}
		s.tenantLocks[tenantID] = lock
	}
	return lock
}
