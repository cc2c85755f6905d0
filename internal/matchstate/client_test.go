package matchstate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openmat/courtcast/internal/bracket"
)

func TestRecordForfeitWinner(t *testing.T) {
	var gotPath string
	var got forfeitRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewClient(server.URL, time.Second)
	winner := bracket.ParticipantRef{ID: "p2", Name: "Bob"}
	loser := bracket.ParticipantRef{ID: "p1", Name: "Alice"}
	require.NoError(t, c.RecordForfeitWinner(context.Background(), "m1", winner, loser))

	require.Equal(t, "/matches/m1/forfeit", gotPath)
	require.Equal(t, "p2", got.WinnerID)
	require.Equal(t, "p1", got.LoserID)
	require.True(t, got.Forfeited)
	require.Zero(t, got.WinnerScore, "forfeits are recorded 0-0")
	require.Zero(t, got.LoserScore)
}

func TestRecordForfeitWinner_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "match already complete", http.StatusConflict)
	}))
	defer server.Close()

	c := NewClient(server.URL, time.Second)
	err := c.RecordForfeitWinner(context.Background(), "m1", bracket.ParticipantRef{ID: "p2"}, bracket.ParticipantRef{ID: "p1"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "409")
	require.Contains(t, err.Error(), "match already complete")
}

func TestRecordForfeitWinner_Unreachable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", 200*time.Millisecond)
	err := c.RecordForfeitWinner(context.Background(), "m1", bracket.ParticipantRef{ID: "p2"}, bracket.ParticipantRef{ID: "p1"})
	require.Error(t, err)
}
