package fallback

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

type fakeAckWindow struct {
	at     time.Time
	hash   string
	ok     bool
	hasAck bool
}

func (f *fakeAckWindow) Window(tenantID string) (time.Time, string, bool) {
	return f.at, f.hash, f.ok
}

func (f *fakeAckWindow) HasAckSince(tenantID string, at time.Time, contentHash string) bool {
	return f.hasAck
}

func TestNeedsFallback_NeverBroadcast(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := NewDecider(&fakeAckWindow{ok: false}, 30*time.Second, clock)
	require.False(t, d.NeedsFallback("t1"))
}

func TestNeedsFallback_WithinGraceWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	acks := &fakeAckWindow{at: clock.Now(), hash: "h1", ok: true, hasAck: false}
	d := NewDecider(acks, 30*time.Second, clock)

	require.False(t, d.NeedsFallback("t1"), "no early trigger right after broadcast")

	clock.Advance(29 * time.Second)
	require.False(t, d.NeedsFallback("t1"), "still inside the grace window")
}

func TestNeedsFallback_UnackedAfterGraceWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	acks := &fakeAckWindow{at: clock.Now(), hash: "h1", ok: true, hasAck: false}
	d := NewDecider(acks, 30*time.Second, clock)

	clock.Advance(30 * time.Second)
	require.True(t, d.NeedsFallback("t1"))

	// The rule is one-sided: once the window has lapsed unacked it
	// stays triggered until a newer broadcast resets it.
	clock.Advance(5 * time.Minute)
	require.True(t, d.NeedsFallback("t1"))
}

func TestNeedsFallback_AckSuppresses(t *testing.T) {
	clock := clockwork.NewFakeClock()
	acks := &fakeAckWindow{at: clock.Now(), hash: "h1", ok: true, hasAck: true}
	d := NewDecider(acks, 30*time.Second, clock)

	clock.Advance(time.Minute)
	require.False(t, d.NeedsFallback("t1"))
}

func TestNeedsFallback_ZeroConnectionTenant(t *testing.T) {
	// A tenant with zero connections still has a window from the last
	// broadcast attempt and nobody to ack it, so fallback fires.
	clock := clockwork.NewFakeClock()
	acks := &fakeAckWindow{at: clock.Now(), hash: "h1", ok: true, hasAck: false}
	d := NewDecider(acks, 30*time.Second, clock)

	clock.Advance(31 * time.Second)
	require.True(t, d.NeedsFallback("t1"))
}

func TestNewDecider_Defaults(t *testing.T) {
	d := NewDecider(&fakeAckWindow{}, 0, nil)
	require.Equal(t, DefaultGraceWindow, d.GraceWindow())
}
