package delta

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openmat/courtcast/internal/bracket"
)

func ref(id, name string) *bracket.ParticipantRef {
	return &bracket.ParticipantRef{ID: id, Name: name}
}

func baseSnapshot() *bracket.TournamentSnapshot {
	return &bracket.TournamentSnapshot{
		TenantID: "t1",
		Stations: []string{"A", "B"},
		Matches: []bracket.Match{
			{ID: "m1", State: bracket.MatchUnderway, Station: "A", PlayOrder: 1, Player1: ref("p1", "Alice"), Player2: ref("p2", "Bob")},
			{ID: "m2", State: bracket.MatchOpen, Station: "B", PlayOrder: 2, Player1: ref("p3", "Cara"), Player2: ref("p4", "Dan")},
			{ID: "m3", State: bracket.MatchOpen, PlayOrder: 3, Player1: ref("p5", "Eve"), Player2: ref("p6", "Finn")},
			{ID: "m4", State: bracket.MatchOpen, PlayOrder: 4, Player1: ref("p7", "Gus"), Player2: ref("p8", "Hana")},
		},
	}
}

func clone(s *bracket.TournamentSnapshot) *bracket.TournamentSnapshot {
	out := *s
	out.Matches = make([]bracket.Match, len(s.Matches))
	copy(out.Matches, s.Matches)
	return &out
}

func TestComputeBetween_IdenticalSnapshotsYieldNone(t *testing.T) {
	prev := baseSnapshot()
	next := clone(prev)
	next.Timestamp = prev.Timestamp.Add(time.Minute)

	payload := ComputeBetween(prev, next)
	require.Equal(t, PayloadNone, payload.Type)
	require.Empty(t, payload.Slots)
	require.Empty(t, payload.Queue)
	require.False(t, payload.PodiumChanged)
}

func TestComputeBetween_NilPreviousIsFullDelta(t *testing.T) {
	next := baseSnapshot()
	payload := ComputeBetween(nil, next)
	require.Equal(t, PayloadDelta, payload.Type)

	require.Len(t, payload.Slots, 2)
	for _, slot := range payload.Slots {
		require.Equal(t, SlotNewAssignment, slot.Type)
		require.NotNil(t, slot.Match)
	}
	require.NotEmpty(t, payload.Queue)
	for _, q := range payload.Queue {
		require.Equal(t, QueueNewItem, q.Type)
	}
}

func TestComputeBetween_SlotSwapIsNewAssignment(t *testing.T) {
	prev := baseSnapshot()
	next := clone(prev)
	// m1 finishes on A, m3 moves onto it. Occupant identity wins the
	// precedence even though m1's state changed too.
	next.Matches[0].State = bracket.MatchComplete
	next.Matches[0].Winner = ref("p1", "Alice")
	next.Matches[2].Station = "A"
	next.Matches[2].State = bracket.MatchUnderway

	payload := ComputeBetween(prev, next)
	require.Equal(t, PayloadDelta, payload.Type)

	var slotA *SlotDelta
	for i := range payload.Slots {
		if payload.Slots[i].Station == "A" {
			slotA = &payload.Slots[i]
		}
	}
	require.NotNil(t, slotA)
	require.Equal(t, SlotNewAssignment, slotA.Type)
	require.Equal(t, "m3", slotA.Match.ID)
}

func TestComputeBetween_SlotCleared(t *testing.T) {
	prev := baseSnapshot()
	next := clone(prev)
	next.Matches[0].State = bracket.MatchComplete
	next.Matches[0].Winner = ref("p1", "Alice")

	payload := ComputeBetween(prev, next)
	require.Equal(t, PayloadDelta, payload.Type)

	found := false
	for _, slot := range payload.Slots {
		if slot.Station == "A" {
			found = true
			require.Equal(t, SlotCleared, slot.Type)
			require.Nil(t, slot.Match, "cleared slots carry no match")
		}
	}
	require.True(t, found)
}

func TestComputeBetween_StateChangePrecedesWinner(t *testing.T) {
	prev := baseSnapshot()
	next := clone(prev)
	// Both state and winner change at once; state is checked first.
	next.Matches[1].State = bracket.MatchUnderway
	next.Matches[1].Winner = ref("p3", "Cara")

	payload := ComputeBetween(prev, next)
	for _, slot := range payload.Slots {
		if slot.Station == "B" {
			require.Equal(t, SlotStateChange, slot.Type)
			return
		}
	}
	t.Fatal("no delta emitted for station B")
}

func TestComputeBetween_WinnerDeclared(t *testing.T) {
	prev := baseSnapshot()
	next := clone(prev)
	next.Matches[0].Winner = ref("p1", "Alice")

	payload := ComputeBetween(prev, next)
	require.Len(t, payload.Slots, 1)
	require.Equal(t, SlotWinnerDeclared, payload.Slots[0].Type)
	require.Equal(t, "A", payload.Slots[0].Station)
}

func TestComputeBetween_UnderwayChange(t *testing.T) {
	prev := baseSnapshot()
	next := clone(prev)
	now := time.Now()
	next.Matches[0].UnderwayAt = &now

	payload := ComputeBetween(prev, next)
	require.Len(t, payload.Slots, 1)
	require.Equal(t, SlotUnderwayChange, payload.Slots[0].Type)
}

func TestComputeBetween_QueueShiftIsNewItemPerIndex(t *testing.T) {
	prev := baseSnapshot()
	next := clone(prev)
	// m3 leaves the queue (assigned to a station); m4 shifts from index
	// 1 to index 0.
	next.Matches[2].Station = "A"
	next.Matches[0].State = bracket.MatchComplete
	next.Matches[0].Station = ""

	payload := ComputeBetween(prev, next)
	require.Equal(t, PayloadDelta, payload.Type)

	byIndex := map[int]QueueDelta{}
	for _, q := range payload.Queue {
		byIndex[q.Index] = q
	}

	q0, ok := byIndex[0]
	require.True(t, ok)
	require.Equal(t, QueueNewItem, q0.Type)
	require.Equal(t, "m4", q0.Match.ID)

	q1, ok := byIndex[1]
	require.True(t, ok)
	require.Equal(t, QueueNewItem, q1.Type)
	require.Nil(t, q1.Match, "emptied index renders blank")
}

func TestComputeBetween_QueueItemChange(t *testing.T) {
	prev := baseSnapshot()
	next := clone(prev)
	// Same match at the same index, but the bracket renamed a player.
	next.Matches[2].Player1 = ref("p5", "Evelyn")

	payload := ComputeBetween(prev, next)
	require.Len(t, payload.Queue, 1)
	require.Equal(t, 0, payload.Queue[0].Index)
	require.Equal(t, QueueItemChange, payload.Queue[0].Type)
	require.Equal(t, "m3", payload.Queue[0].Match.ID)
}

func TestComputeBetween_PodiumChange(t *testing.T) {
	prev := baseSnapshot()
	next := clone(prev)
	next.Podium = &bracket.Podium{Ready: true, First: ref("p1", "Alice")}

	payload := ComputeBetween(prev, next)
	require.Equal(t, PayloadDelta, payload.Type)
	require.True(t, payload.PodiumChanged)
	require.NotNil(t, payload.Podium)
	require.Equal(t, "Alice", payload.Podium.First.Name)
}

func TestComputer_RemembersPerTenant(t *testing.T) {
	c := NewComputer()

	first := baseSnapshot()
	payload := c.Compute(first)
	require.Equal(t, PayloadDelta, payload.Type, "first snapshot is a full delta")

	same := clone(first)
	payload = c.Compute(same)
	require.Equal(t, PayloadNone, payload.Type, "unchanged re-publish is none")

	// A different tenant has independent memory.
	other := baseSnapshot()
	other.TenantID = "t2"
	payload = c.Compute(other)
	require.Equal(t, PayloadDelta, payload.Type)
}

func TestComputer_ForgetForcesFullDelta(t *testing.T) {
	c := NewComputer()
	snap := baseSnapshot()

	c.Compute(snap)
	require.Equal(t, PayloadNone, c.Compute(clone(snap)).Type)

	c.Forget("t1")
	payload := c.Compute(clone(snap))
	require.Equal(t, PayloadDelta, payload.Type)
	require.Len(t, payload.Slots, 2)
}
