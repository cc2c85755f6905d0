// Package delta turns consecutive tournament snapshots into the minimal
// ordered change set the display clients render.
package delta

import (
	"sync"
	"time"

	"github.com/openmat/courtcast/internal/bracket"
)

// PayloadType says whether anything changed at all.
type PayloadType string

const (
	PayloadNone  PayloadType = "none"
	PayloadDelta PayloadType = "delta"
)

// SlotChangeType classifies what happened to one "now playing" station
// slot between two snapshots.
type SlotChangeType string

const (
	SlotNoChange       SlotChangeType = "no-change"
	SlotNewAssignment  SlotChangeType = "new-assignment"
	SlotCleared        SlotChangeType = "cleared"
	SlotStateChange    SlotChangeType = "state-change"
	SlotWinnerDeclared SlotChangeType = "winner-declared"
	SlotUnderwayChange SlotChangeType = "underway-change"
)

// QueueChangeType classifies one fixed index of the upcoming queue.
type QueueChangeType string

const (
	QueueNoChange   QueueChangeType = "no-change"
	QueueNewItem    QueueChangeType = "new-item"
	QueueItemChange QueueChangeType = "item-change"
)

// NowPlayingSlots is how many stations render a "now playing" panel.
const NowPlayingSlots = 2

// QueueWindow is the fixed visible queue length: two "next" slots plus
// up to five preview entries for the longer layouts.
const QueueWindow = 7

// SlotDelta describes one station slot. Match is set for every type
// except cleared and no-change.
type SlotDelta struct {
	Station string         `json:"station"`
	Type    SlotChangeType `json:"type"`
	Match   *bracket.Match `json:"match,omitempty"`
}

// QueueDelta describes one fixed queue index.
type QueueDelta struct {
	Index int             `json:"index"`
	Type  QueueChangeType `json:"type"`
	Match *bracket.Match  `json:"match,omitempty"`
}

// Payload is the computed change set. A Payload of type none carries no
// slot, queue, or podium entries; clients never have to special-case an
// empty delta.
type Payload struct {
	Type          PayloadType     `json:"type"`
	Slots         []SlotDelta     `json:"slots,omitempty"`
	Queue         []QueueDelta    `json:"queue,omitempty"`
	PodiumChanged bool            `json:"podium_changed,omitempty"`
	Podium        *bracket.Podium `json:"podium,omitempty"`
}

// Computer remembers the previous snapshot per tenant and diffs each new
// one against it. Compute mutates that memory, so calls for the same
// tenant must be serialized by the caller; the display service holds a
// per-tenant lock around the whole save→compute→publish pipeline.
type Computer struct {
	mu   sync.Mutex
	prev map[string]*bracket.TournamentSnapshot
}

func NewComputer() *Computer {
	return &Computer{prev: make(map[string]*bracket.TournamentSnapshot)}
}

// Compute diffs next against the remembered previous snapshot for the
// tenant and replaces that memory with next. A nil previous snapshot is
// treated as "everything empty", so the first publish comes out as a
// full set of new assignments.
func (c *Computer) Compute(next *bracket.TournamentSnapshot) *Payload {
	c.mu.Lock()
	prev := c.prev[next.TenantID]
	c.prev[next.TenantID] = next
	c.mu.Unlock()
	return ComputeBetween(prev, next)
}

// Forget drops the remembered snapshot for a tenant, forcing the next
// Compute to emit a full delta.
func (c *Computer) Forget(tenantID string) {
	c.mu.Lock()
	delete(c.prev, tenantID)
	c.mu.Unlock()
}

// ComputeBetween is the pure diff: it never fails and treats nil or
// missing slots as empty.
func ComputeBetween(prev, next *bracket.TournamentSnapshot) *Payload {
	out := &Payload{Type: PayloadNone}

	for _, station := range nowPlayingStations(next) {
		var prevMatch *bracket.Match
		if prev != nil {
			prevMatch = prev.OnStation(station)
		}
		nextMatch := next.OnStation(station)
		change := compareSlot(prevMatch, nextMatch)
		if change == SlotNoChange {
			continue
		}
		out.Slots = append(out.Slots, SlotDelta{
			Station: station,
			Type:    change,
			Match:   nextMatch,
		})
	}

	var prevQueue []bracket.Match
	if prev != nil {
		prevQueue = prev.UpcomingQueue(QueueWindow)
	}
	nextQueue := next.UpcomingQueue(QueueWindow)
	for i := 0; i < QueueWindow; i++ {
		change, match := compareQueueIndex(prevQueue, nextQueue, i)
		if change == QueueNoChange {
			continue
		}
		out.Queue = append(out.Queue, QueueDelta{Index: i, Type: change, Match: match})
	}

	var prevPodium *bracket.Podium
	if prev != nil {
		prevPodium = prev.Podium
	}
	if !bracket.PodiumEqual(prevPodium, next.Podium) {
		out.PodiumChanged = true
		out.Podium = next.Podium
	}

	if len(out.Slots) > 0 || len(out.Queue) > 0 || out.PodiumChanged {
		out.Type = PayloadDelta
	}
	return out
}

// nowPlayingStations picks the tenant's display stations: the first two
// station labels of the snapshot.
func nowPlayingStations(s *bracket.TournamentSnapshot) []string {
	if s == nil {
		return nil
	}
	if len(s.Stations) <= NowPlayingSlots {
		return s.Stations
	}
	return s.Stations[:NowPlayingSlots]
}

// compareSlot applies the fixed precedence: occupant identity, then
// lifecycle state, then winner, then the underway timestamp. The first
// difference decides the change type.
func compareSlot(prev, next *bracket.Match) SlotChangeType {
	switch {
	case prev == nil && next == nil:
		return SlotNoChange
	case prev == nil:
		return SlotNewAssignment
	case next == nil:
		return SlotCleared
	case prev.ID != next.ID:
		return SlotNewAssignment
	case prev.State != next.State:
		return SlotStateChange
	case !winnerEqual(prev.Winner, next.Winner):
		return SlotWinnerDeclared
	case !timePtrEqual(prev.UnderwayAt, next.UnderwayAt):
		return SlotUnderwayChange
	}
	return SlotNoChange
}

// compareQueueIndex diffs one fixed queue position. Positions are
// compared by index, not content-addressed: the clients render fixed
// "Next" slots, so a shift shows up as a new item at each moved index.
func compareQueueIndex(prev, next []bracket.Match, i int) (QueueChangeType, *bracket.Match) {
	var prevItem, nextItem *bracket.Match
	if i < len(prev) {
		prevItem = &prev[i]
	}
	if i < len(next) {
		nextItem = &next[i]
	}
	switch {
	case prevItem == nil && nextItem == nil:
		return QueueNoChange, nil
	case nextItem == nil:
		// Slot emptied; rendered as a new (blank) item.
		return QueueNewItem, nil
	case prevItem == nil, prevItem.ID != nextItem.ID:
		return QueueNewItem, nextItem
	case !queueItemEqual(prevItem, nextItem):
		return QueueItemChange, nextItem
	}
	return QueueNoChange, nil
}

func queueItemEqual(a, b *bracket.Match) bool {
	return a.State == b.State &&
		a.Round == b.Round &&
		a.PlayOrder == b.PlayOrder &&
		winnerEqual(a.Player1, b.Player1) &&
		winnerEqual(a.Player2, b.Player2)
}

func winnerEqual(a, b *bracket.ParticipantRef) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID && a.Name == b.Name
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
