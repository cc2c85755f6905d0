// Package matchstate is the HTTP client for the match-state
// collaborator, the service that owns match progression. The display
// core only ever asks it to record a forfeit result.
package matchstate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openmat/courtcast/internal/bracket"
)

// DefaultTimeout bounds one mutation so the timer callback that calls
// us can never hang on a slow collaborator.
const DefaultTimeout = 10 * time.Second

// Client talks to the match-state collaborator.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type forfeitRequest struct {
	WinnerID  string `json:"winner_id"`
	LoserID   string `json:"loser_id"`
	Forfeited bool   `json:"forfeited"`
	// Forfeits are recorded 0-0; the winner is decided by the flag,
	// not the score.
	WinnerScore int `json:"winner_score"`
	LoserScore  int `json:"loser_score"`
}

// RecordForfeitWinner marks the match won by forfeit: winner over
// loser, score 0-0, forfeited flag set.
func (c *Client) RecordForfeitWinner(ctx context.Context, matchID string, winner, loser bracket.ParticipantRef) error {
	body, err := json.Marshal(forfeitRequest{
		WinnerID:  winner.ID,
		LoserID:   loser.ID,
		Forfeited: true,
	})
	if err != nil {
		return fmt.Errorf("marshal forfeit request: %w", err)
	}

	url := fmt.Sprintf("%s/matches/%s/forfeit", c.baseURL, matchID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build forfeit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("post forfeit: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("match-state service returned %d: %s", resp.StatusCode, string(respBody))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
