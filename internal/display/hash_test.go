package display

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openmat/courtcast/internal/bracket"
)

func hashSnapshot() *bracket.TournamentSnapshot {
	return &bracket.TournamentSnapshot{
		TenantID: "t1",
		Matches: []bracket.Match{
			{ID: "m2", State: bracket.MatchOpen, Round: 1},
			{ID: "m1", State: bracket.MatchUnderway, Round: 1, Station: "A"},
		},
		Podium:    &bracket.Podium{Ready: false},
		Timestamp: time.Now(),
	}
}

func TestContentHash_Deterministic(t *testing.T) {
	a := hashSnapshot()
	b := hashSnapshot()
	require.Equal(t, ContentHash(a), ContentHash(b))
	require.Len(t, ContentHash(a), 64)
}

func TestContentHash_IgnoresTimestamp(t *testing.T) {
	a := hashSnapshot()
	b := hashSnapshot()
	b.Timestamp = b.Timestamp.Add(time.Hour)
	require.Equal(t, ContentHash(a), ContentHash(b),
		"same tournament state published later hashes identically")
}

func TestContentHash_IgnoresMatchOrder(t *testing.T) {
	a := hashSnapshot()
	b := hashSnapshot()
	b.Matches[0], b.Matches[1] = b.Matches[1], b.Matches[0]
	require.Equal(t, ContentHash(a), ContentHash(b))
}

func TestContentHash_ChangesWithMatches(t *testing.T) {
	a := hashSnapshot()
	b := hashSnapshot()
	b.Matches[0].State = bracket.MatchComplete
	require.NotEqual(t, ContentHash(a), ContentHash(b))
}

func TestContentHash_ChangesWithPodium(t *testing.T) {
	a := hashSnapshot()
	b := hashSnapshot()
	b.Podium = &bracket.Podium{Ready: true, First: &bracket.ParticipantRef{ID: "p1", Name: "Alice"}}
	require.NotEqual(t, ContentHash(a), ContentHash(b))
}

func TestContentHash_NilSnapshot(t *testing.T) {
	require.Empty(t, ContentHash(nil))
}
