package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comanda/internal/domain/session"
	"comanda/pkg/logger"
)

// fakeClock is a settable clock for timeout tests
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestStore(t *testing.T) (*SessionStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)}
	store := NewSessionStore(clock, logger.Get())
	t.Cleanup(store.Close)
	return store, clock
}

func TestSessionStore_Lifecycle(t *testing.T) {
	store, _ := newTestStore(t)

	// Unknown parties are Idle with empty data
	assert.Equal(t, session.StateIdle, store.GetState("5511999"))
	assert.False(t, store.IsInActiveFlow("5511999"))
	assert.Equal(t, session.Data{}, store.GetData("5511999"))
	assert.Equal(t, 0, store.Count())

	sess := store.InitializeSession("5511999")
	assert.Equal(t, session.StateIdle, sess.State)
	assert.Equal(t, 1, store.Count())

	store.SetState("5511999", session.StateCollectingName, func(d *session.Data) {
		d.Name = "Maria Silva"
	})
	assert.Equal(t, session.StateCollectingName, store.GetState("5511999"))
	assert.True(t, store.IsInActiveFlow("5511999"))
	assert.Equal(t, "Maria Silva", store.GetData("5511999").Name)

	// UpdateData merges without touching state
	store.UpdateData("5511999", func(d *session.Data) {
		d.Street = "Rua das Flores"
	})
	data := store.GetData("5511999")
	assert.Equal(t, "Maria Silva", data.Name)
	assert.Equal(t, "Rua das Flores", data.Street)
	assert.Equal(t, session.StateCollectingName, store.GetState("5511999"))

	store.ResetSession("5511999")
	assert.Equal(t, session.StateIdle, store.GetState("5511999"))
	assert.Equal(t, session.Data{}, store.GetData("5511999"))
	assert.Equal(t, 0, store.Count())
}

func TestSessionStore_SetStateCreatesSession(t *testing.T) {
	store, _ := newTestStore(t)

	store.SetState("new-party", session.StateCollectingStreet, nil)
	assert.Equal(t, session.StateCollectingStreet, store.GetState("new-party"))
	assert.Equal(t, 1, store.Count())
}

func TestSessionStore_Sweep(t *testing.T) {
	store, clock := newTestStore(t)

	store.SetState("stale", session.StateCollectingName, nil)

	clock.Advance(11 * time.Minute)
	store.SetState("fresh", session.StateCollectingStreet, nil)

	evicted := store.Sweep(10 * time.Minute)
	assert.Equal(t, 1, evicted)
	assert.Equal(t, session.StateIdle, store.GetState("stale"))
	assert.Equal(t, session.StateCollectingStreet, store.GetState("fresh"))

	// Nothing left to evict
	assert.Equal(t, 0, store.Sweep(10*time.Minute))
}

func TestSessionStore_ActivityRefreshDefersEviction(t *testing.T) {
	store, clock := newTestStore(t)

	store.SetState("party", session.StateCollectingName, nil)

	clock.Advance(9 * time.Minute)
	store.UpdateData("party", func(d *session.Data) { d.Name = "Ana Souza" })

	clock.Advance(9 * time.Minute)
	assert.Equal(t, 0, store.Sweep(10*time.Minute))
	assert.True(t, store.IsInActiveFlow("party"))
}

func TestSessionStore_ExpireCompleted(t *testing.T) {
	store, _ := newTestStore(t)

	store.SetState("done", session.StateOrderCompleted, nil)
	require.True(t, store.ExpireCompleted("done"))
	assert.Equal(t, session.StateIdle, store.GetState("done"))

	// A session that moved on survives a stale timer firing
	store.SetState("busy", session.StateOrderCompleted, nil)
	store.SetState("busy", session.StateCollectingName, nil)
	assert.False(t, store.ExpireCompleted("busy"))
	assert.Equal(t, session.StateCollectingName, store.GetState("busy"))

	// Missing sessions are a no-op
	assert.False(t, store.ExpireCompleted("ghost"))
}

func TestSessionStore_ScheduleReset(t *testing.T) {
	store, _ := newTestStore(t)

	store.SetState("party", session.StateOrderCompleted, nil)
	store.ScheduleReset("party", 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return store.GetState("party") == session.StateIdle
	}, time.Second, 5*time.Millisecond)
}

func TestSessionStore_NewSessionCancelsPendingReset(t *testing.T) {
	store, _ := newTestStore(t)

	store.SetState("party", session.StateOrderCompleted, nil)
	store.ScheduleReset("party", 20*time.Millisecond)

	// Starting over before the grace elapses must keep the new session
	store.ResetSession("party")
	store.SetState("party", session.StateCollectingName, nil)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, session.StateCollectingName, store.GetState("party"))
}
