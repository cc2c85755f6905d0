// Package snapshot persists the latest full tournament snapshot per
// tenant so a restarted process can seed displays without waiting for
// the next live update.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/openmat/courtcast/internal/bracket"
)

// DefaultStaleness is how old a snapshot may be before reads flag it.
const DefaultStaleness = 60 * time.Second

// Result is what Load returns: the snapshot (nil when the tenant has
// never published) plus staleness metadata. Staleness is informational;
// it never suppresses the read.
type Result struct {
	Snapshot *bracket.TournamentSnapshot
	Stale    bool
	Age      time.Duration
}

// Store holds the latest snapshot per tenant. Save replaces the whole
// record atomically; there is no partial update.
type Store interface {
	Save(ctx context.Context, snap *bracket.TournamentSnapshot) error
	Load(ctx context.Context, tenantID string) (Result, error)
}

// FileStore keeps snapshots in memory and mirrors each save to one JSON
// file per tenant under dir.
type FileStore struct {
	dir       string
	staleness time.Duration
	clock     clockwork.Clock

	mu     sync.RWMutex
	latest map[string]*bracket.TournamentSnapshot
}

func NewFileStore(dir string, staleness time.Duration, clock clockwork.Clock) (*FileStore, error) {
	if staleness <= 0 {
		staleness = DefaultStaleness
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &FileStore{
		dir:       dir,
		staleness: staleness,
		clock:     clock,
		latest:    make(map[string]*bracket.TournamentSnapshot),
	}, nil
}

func (s *FileStore) Save(ctx context.Context, snap *bracket.TournamentSnapshot) error {
	if snap == nil || snap.TenantID == "" {
		return fmt.Errorf("snapshot missing tenant id")
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	// Write-then-rename so a crash mid-write never leaves a torn file.
	path := s.path(snap.TenantID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}

	s.mu.Lock()
	s.latest[snap.TenantID] = snap
	s.mu.Unlock()

	log.Debug().
		Str("tenant_id", snap.TenantID).
		Int("matches", len(snap.Matches)).
		Msg("snapshot saved")
	return nil
}

func (s *FileStore) Load(ctx context.Context, tenantID string) (Result, error) {
	s.mu.RLock()
	snap := s.latest[tenantID]
	s.mu.RUnlock()

	if snap == nil {
		loaded, err := s.readFile(tenantID)
		if err != nil {
			return Result{}, err
		}
		if loaded == nil {
			return Result{}, nil
		}
		snap = loaded
		s.mu.Lock()
		if s.latest[tenantID] == nil {
			s.latest[tenantID] = snap
		}
		s.mu.Unlock()
	}

	return s.result(snap), nil
}

func (s *FileStore) result(snap *bracket.TournamentSnapshot) Result {
	age := s.clock.Now().Sub(snap.Timestamp)
	return Result{
		Snapshot: snap,
		Stale:    age > s.staleness,
		Age:      age,
	}
}

func (s *FileStore) readFile(tenantID string) (*bracket.TournamentSnapshot, error) {
	data, err := os.ReadFile(s.path(tenantID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snap bracket.TournamentSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

func (s *FileStore) path(tenantID string) string {
	// Tenant ids come from the bracket provider; flatten anything that
	// would escape the directory.
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '.', ':':
			return '_'
		}
		return r
	}, tenantID)
	return filepath.Join(s.dir, name+".json")
}
