package fallback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openmat/courtcast/internal/bracket"
)

// DefaultPushTimeout bounds one delivery attempt so a slow endpoint
// cannot stall the scheduler goroutine.
const DefaultPushTimeout = 10 * time.Second

// Pusher delivers the full snapshot (never a delta) to the configured
// legacy endpoint. Delivery is strictly best-effort: failures are
// logged, counted, and swallowed.
type Pusher struct {
	endpoint string
	client   *http.Client

	pushes   atomic.Int64
	failures atomic.Int64
}

func NewPusher(endpoint string, timeout time.Duration) *Pusher {
	if timeout <= 0 {
		timeout = DefaultPushTimeout
	}
	return &Pusher{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Push POSTs the snapshot to the fallback endpoint. It never returns an
// error to the caller; the broadcast path must not degrade because the
// fallback path did.
func (p *Pusher) Push(ctx context.Context, snap *bracket.TournamentSnapshot) {
	if p.endpoint == "" || snap == nil {
		return
	}
	p.pushes.Add(1)

	if err := p.push(ctx, snap); err != nil {
		p.failures.Add(1)
		log.Error().
			Err(err).
			Str("tenant_id", snap.TenantID).
			Msg("fallback push failed")
		return
	}

	log.Info().
		Str("tenant_id", snap.TenantID).
		Int("matches", len(snap.Matches)).
		Msg("fallback push delivered")
}

func (p *Pusher) push(ctx context.Context, snap *bracket.TournamentSnapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("post snapshot: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("fallback endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// Counts returns attempted and failed pushes, for the stats endpoint.
func (p *Pusher) Counts() (pushes, failures int64) {
	return p.pushes.Load(), p.failures.Load()
}
