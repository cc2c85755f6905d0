package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/openmat/courtcast/internal/bracket"
)

// PGStore persists snapshots as one row per tenant in Postgres. It is a
// drop-in alternative to FileStore for deployments that already run a
// database next to the service.
//
// Expected schema:
//
//	CREATE TABLE tenant_snapshots (
//	    tenant_id  TEXT PRIMARY KEY,
//	    payload    JSONB NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL
//	);
type PGStore struct {
	db        *sql.DB
	staleness time.Duration
	clock     clockwork.Clock
}

func NewPGStore(db *sql.DB, staleness time.Duration, clock clockwork.Clock) *PGStore {
	if staleness <= 0 {
		staleness = DefaultStaleness
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &PGStore{db: db, staleness: staleness, clock: clock}
}

func (s *PGStore) Save(ctx context.Context, snap *bracket.TournamentSnapshot) error {
	if snap == nil || snap.TenantID == "" {
		return fmt.Errorf("snapshot missing tenant id")
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	const q = `
		INSERT INTO tenant_snapshots (tenant_id, payload, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id)
		DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`
	if _, err := s.db.ExecContext(ctx, q, snap.TenantID, payload, snap.Timestamp.UTC()); err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

func (s *PGStore) Load(ctx context.Context, tenantID string) (Result, error) {
	const q = `SELECT payload FROM tenant_snapshots WHERE tenant_id = $1`

	var payload []byte
	err := s.db.QueryRowContext(ctx, q, tenantID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Result{}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("select snapshot: %w", err)
	}

	var snap bracket.TournamentSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return Result{}, fmt.Errorf("decode snapshot: %w", err)
	}

	age := s.clock.Now().Sub(snap.Timestamp)
	return Result{Snapshot: &snap, Stale: age > s.staleness, Age: age}, nil
}
