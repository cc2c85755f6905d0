package bracket

import (
	"sort"
	"time"
)

// MatchState is the lifecycle state reported by the bracket provider.
type MatchState string

const (
	MatchPending  MatchState = "pending"
	MatchOpen     MatchState = "open"
	MatchUnderway MatchState = "underway"
	MatchComplete MatchState = "complete"
)

// ParticipantRef identifies one side of a match. IDs are opaque strings
// assigned by the external bracket provider.
type ParticipantRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Match is one bracket match as the displays see it. Participants and
// winner stay nil until the bracket provider seeds/decides them.
type Match struct {
	ID         string          `json:"id"`
	State      MatchState      `json:"state"`
	Round      int             `json:"round"`
	Player1    *ParticipantRef `json:"player1,omitempty"`
	Player2    *ParticipantRef `json:"player2,omitempty"`
	Station    string          `json:"station,omitempty"`
	Winner     *ParticipantRef `json:"winner,omitempty"`
	PlayOrder  int             `json:"play_order"`
	Forfeited  bool            `json:"forfeited,omitempty"`
	UnderwayAt *time.Time      `json:"underway_at,omitempty"`
}

// Podium carries the end-of-tournament result block shown once the
// bracket is decided.
type Podium struct {
	Ready  bool            `json:"ready"`
	First  *ParticipantRef `json:"first,omitempty"`
	Second *ParticipantRef `json:"second,omitempty"`
	Third  *ParticipantRef `json:"third,omitempty"`
}

// TournamentSnapshot is the full tournament state for one tenant at one
// instant. Snapshots are immutable once published; the store replaces
// them wholesale.
type TournamentSnapshot struct {
	TenantID     string    `json:"tenant_id"`
	TournamentID string    `json:"tournament_id"`
	Matches      []Match   `json:"matches"`
	Stations     []string  `json:"stations"`
	Podium       *Podium   `json:"podium,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// OnStation returns the match currently occupying the given station, or
// nil. A completed match no longer occupies its station.
func (s *TournamentSnapshot) OnStation(station string) *Match {
	if s == nil || station == "" {
		return nil
	}
	for i := range s.Matches {
		m := &s.Matches[i]
		if m.Station == station && m.State != MatchComplete && m.State != MatchPending {
			return m
		}
	}
	return nil
}

// UpcomingQueue returns the matches that are callable next: open, not yet
// assigned to a station, with both participants known. Ordered by the
// bracket's play-order hint, ties broken by match id, truncated to limit.
func (s *TournamentSnapshot) UpcomingQueue(limit int) []Match {
	if s == nil {
		return nil
	}
	var queue []Match
	for _, m := range s.Matches {
		if m.State == MatchOpen && m.Station == "" && m.Player1 != nil && m.Player2 != nil {
			queue = append(queue, m)
		}
	}
	sort.SliceStable(queue, func(i, j int) bool {
		if queue[i].PlayOrder != queue[j].PlayOrder {
			return queue[i].PlayOrder < queue[j].PlayOrder
		}
		return queue[i].ID < queue[j].ID
	})
	if limit > 0 && len(queue) > limit {
		queue = queue[:limit]
	}
	return queue
}

// Opponent returns the other participant of the given match. ok is false
// when the match is unknown, the participant is not in it, or either side
// is still unseeded.
func (s *TournamentSnapshot) Opponent(matchID, participantID string) (ParticipantRef, bool) {
	if s == nil {
		return ParticipantRef{}, false
	}
	for i := range s.Matches {
		m := &s.Matches[i]
		if m.ID != matchID || m.Player1 == nil || m.Player2 == nil {
			continue
		}
		switch participantID {
		case m.Player1.ID:
			return *m.Player2, true
		case m.Player2.ID:
			return *m.Player1, true
		}
	}
	return ParticipantRef{}, false
}

// PodiumEqual reports whether two podium blocks carry the same result.
func PodiumEqual(a, b *Podium) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Ready == b.Ready &&
		participantEqual(a.First, b.First) &&
		participantEqual(a.Second, b.Second) &&
		participantEqual(a.Third, b.Third)
}

func participantEqual(a, b *ParticipantRef) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID && a.Name == b.Name
}
