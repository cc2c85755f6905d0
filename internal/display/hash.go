package display

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/openmat/courtcast/internal/bracket"
)

// ContentHash fingerprints the semantically meaningful part of a
// snapshot: the match list and the podium. The snapshot timestamp and
// any transport framing are excluded, so identical tournament states
// always hash identically no matter when or how they were published.
func ContentHash(snap *bracket.TournamentSnapshot) string {
	if snap == nil {
		return ""
	}

	matches := make([]bracket.Match, len(snap.Matches))
	copy(matches, snap.Matches)
	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })

	canonical := struct {
		Matches []bracket.Match `json:"matches"`
		Podium  *bracket.Podium `json:"podium,omitempty"`
	}{Matches: matches, Podium: snap.Podium}

	data, err := json.Marshal(canonical)
	if err != nil {
		// Marshalling plain structs cannot fail; keep the signature simple.
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
