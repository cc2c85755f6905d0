package snapshot

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/openmat/courtcast/internal/bracket"
)

func testSnapshot(tenantID string, at time.Time) *bracket.TournamentSnapshot {
	return &bracket.TournamentSnapshot{
		TenantID:     tenantID,
		TournamentID: "tour-1",
		Stations:     []string{"A"},
		Matches: []bracket.Match{
			{ID: "m1", State: bracket.MatchOpen, Round: 1, PlayOrder: 1},
		},
		Timestamp: at,
	}
}

func TestFileStore_SaveLoadRoundtrip(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store, err := NewFileStore(t.TempDir(), time.Minute, clock)
	require.NoError(t, err)

	ctx := context.Background()
	snap := testSnapshot("t1", clock.Now())
	require.NoError(t, store.Save(ctx, snap))

	res, err := store.Load(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, res.Snapshot)
	require.Equal(t, "t1", res.Snapshot.TenantID)
	require.Len(t, res.Snapshot.Matches, 1)
	require.False(t, res.Stale)
}

func TestFileStore_UnknownTenantIsEmptyResult(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), time.Minute, clockwork.NewFakeClock())
	require.NoError(t, err)

	res, err := store.Load(context.Background(), "nobody")
	require.NoError(t, err)
	require.Nil(t, res.Snapshot)
	require.False(t, res.Stale)
}

func TestFileStore_StalenessFlag(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store, err := NewFileStore(t.TempDir(), time.Minute, clock)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, testSnapshot("t1", clock.Now())))

	res, err := store.Load(ctx, "t1")
	require.NoError(t, err)
	require.False(t, res.Stale)

	clock.Advance(2 * time.Minute)
	res, err = store.Load(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, res.Snapshot, "stale data is still returned")
	require.True(t, res.Stale)
	require.GreaterOrEqual(t, res.Age, 2*time.Minute)
}

func TestFileStore_SurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	clock := clockwork.NewFakeClock()
	ctx := context.Background()

	first, err := NewFileStore(dir, time.Minute, clock)
	require.NoError(t, err)
	require.NoError(t, first.Save(ctx, testSnapshot("t1", clock.Now())))

	// A fresh store over the same directory models a process restart.
	second, err := NewFileStore(dir, time.Minute, clock)
	require.NoError(t, err)
	res, err := second.Load(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, res.Snapshot)
	require.Equal(t, "tour-1", res.Snapshot.TournamentID)
}

func TestFileStore_SaveReplacesWholesale(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store, err := NewFileStore(t.TempDir(), time.Minute, clock)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, testSnapshot("t1", clock.Now())))

	next := testSnapshot("t1", clock.Now())
	next.Matches = []bracket.Match{
		{ID: "m2", State: bracket.MatchUnderway, Round: 2, PlayOrder: 2},
	}
	require.NoError(t, store.Save(ctx, next))

	res, err := store.Load(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, res.Snapshot.Matches, 1)
	require.Equal(t, "m2", res.Snapshot.Matches[0].ID)
}

func TestFileStore_RejectsMissingTenant(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), time.Minute, clockwork.NewFakeClock())
	require.NoError(t, err)

	require.Error(t, store.Save(context.Background(), nil))
	require.Error(t, store.Save(context.Background(), &bracket.TournamentSnapshot{}))
}

func TestFileStore_SanitizesTenantPath(t *testing.T) {
	dir := t.TempDir()
	clock := clockwork.NewFakeClock()
	store, err := NewFileStore(dir, time.Minute, clock)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, testSnapshot("../evil/t:1", clock.Now())))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "snapshot file stays inside the store dir")

	res, err := store.Load(ctx, "../evil/t:1")
	require.NoError(t, err)
	require.NotNil(t, res.Snapshot)
}
