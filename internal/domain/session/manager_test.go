package session_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dungeonmind/coordinator/internal/domain/session"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestManager_ResolveCreatesAndReuses(t *testing.T) {
	m := session.NewManager(nil)

	sess, created := m.Resolve("")
	require.True(t, created)
	require.NotEmpty(t, sess.ID)
	require.Empty(t, sess.ToolStates)

	again, created := m.Resolve(sess.ID)
	require.False(t, created)
	require.Equal(t, sess.ID, again.ID)

	unknown, created := m.Resolve("does-not-exist")
	require.True(t, created)
	require.NotEqual(t, "does-not-exist", unknown.ID)
	require.Equal(t, 2, m.Len())
}

func TestManager_UpdateToolState_ShallowMerge(t *testing.T) {
	m := session.NewManager(nil)
	sess, _ := m.Resolve("")

	require.NoError(t, m.UpdateToolState(sess.ID, "cardgenerator", session.State{"a": 1, "b": "x"}))
	require.NoError(t, m.UpdateToolState(sess.ID, "cardgenerator", session.State{"b": "y", "c": true}))

	state, ok, err := m.GetToolState(sess.ID, "cardgenerator")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, session.State{"a": float64(1), "b": "y", "c": true}, state)

	_, ok, err = m.GetToolState(sess.ID, "storegenerator")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestManager_SnapshotsDoNotAlias(t *testing.T) {
	m := session.NewManager(nil)
	sess, _ := m.Resolve("")

	nested := map[string]any{"hp": 10}
	require.NoError(t, m.UpdateToolState(sess.ID, "cardgenerator", session.State{"card": nested}))
	nested["hp"] = 99

	state, _, err := m.GetToolState(sess.ID, "cardgenerator")
	require.NoError(t, err)
	state["card"].(map[string]any)["hp"] = 50

	again, _, err := m.GetToolState(sess.ID, "cardgenerator")
	require.NoError(t, err)
	require.Equal(t, float64(10), again["card"].(map[string]any)["hp"])
}

func TestManager_UpdateUnknownSessionIsConsistencyFault(t *testing.T) {
	m := session.NewManager(nil)

	err := m.UpdateToolState("missing", "cardgenerator", session.State{"a": 1})
	require.ErrorIs(t, err, session.ErrConsistencyFault)
	require.ErrorIs(t, err, session.ErrSessionNotFound)
	require.Equal(t, 0, m.Len())
}

func TestManager_UpdateRejectsInvalidInput(t *testing.T) {
	m := session.NewManager(nil)
	sess, _ := m.Resolve("")

	require.ErrorIs(t, m.UpdateToolState(sess.ID, "", session.State{"a": 1}), session.ErrInvalidInput)
	require.ErrorIs(t, m.UpdateToolState(sess.ID, "cardgenerator", session.State{"f": func() {}}), session.ErrInvalidInput)

	_, ok, err := m.GetToolState(sess.ID, "cardgenerator")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestManager_ConcurrentDisjointTools(t *testing.T) {
	m := session.NewManager(nil)
	sess, _ := m.Resolve("")

	var g errgroup.Group
	for i := 0; i < 100; i++ {
		i := i
		g.Go(func() error {
			return m.UpdateToolState(sess.ID, "cardgenerator", session.State{fmt.Sprintf("card%d", i): i})
		})
		g.Go(func() error {
			return m.UpdateToolState(sess.ID, "storegenerator", session.State{fmt.Sprintf("store%d", i): i})
		})
	}
	require.NoError(t, g.Wait())

	got, err := m.Get(sess.ID)
	require.NoError(t, err)
	require.Len(t, got.ToolStates["cardgenerator"], 100)
	require.Len(t, got.ToolStates["storegenerator"], 100)
	for k := range got.ToolStates["cardgenerator"] {
		require.Contains(t, k, "card")
	}
}

func TestManager_ConcurrentSameKeyLastWriterWins(t *testing.T) {
	m := session.NewManager(nil)
	sess, _ := m.Resolve("")

	var g errgroup.Group
	for i := 0; i < 50; i++ {
		i := i
		g.Go(func() error {
			return m.UpdateToolState(sess.ID, "cardgenerator", session.State{"k": float64(i)})
		})
	}
	require.NoError(t, g.Wait())

	state, ok, err := m.GetToolState(sess.ID, "cardgenerator")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, state, 1)
	v := state["k"].(float64)
	require.GreaterOrEqual(t, v, float64(0))
	require.Less(t, v, float64(50))
}

func TestManager_ModifyToolState(t *testing.T) {
	m := session.NewManager(nil)
	sess, _ := m.Resolve("")
	require.NoError(t, m.UpdateToolState(sess.ID, "cardgenerator", session.PointerTo("p1", "Dragon")))

	clearIf := func(id string) func(session.State) session.State {
		return func(cur session.State) session.State {
			if cur.ActiveProjectID() != id {
				return nil
			}
			return session.ClearedPointer()
		}
	}

	require.NoError(t, m.ModifyToolState(sess.ID, "cardgenerator", clearIf("p2")))
	state, _, _ := m.GetToolState(sess.ID, "cardgenerator")
	require.Equal(t, "p1", state.ActiveProjectID())

	require.NoError(t, m.ModifyToolState(sess.ID, "cardgenerator", clearIf("p1")))
	state, _, _ = m.GetToolState(sess.ID, "cardgenerator")
	require.Empty(t, state.ActiveProjectID())
	require.Contains(t, state, session.KeyActiveProjectName)
	require.Nil(t, state[session.KeyActiveProjectName])
}

func TestManager_BindUser(t *testing.T) {
	m := session.NewManager(nil)
	sess, _ := m.Resolve("")

	require.NoError(t, m.BindUser(sess.ID, "alice"))
	require.NoError(t, m.BindUser(sess.ID, "alice"))
	require.ErrorIs(t, m.BindUser(sess.ID, "bob"), session.ErrUserMismatch)
	require.ErrorIs(t, m.BindUser("missing", "alice"), session.ErrSessionNotFound)

	status, err := m.Status(sess.ID)
	require.NoError(t, err)
	require.Equal(t, "alice", status.UserID)
	require.True(t, status.Authenticated)
}

func TestManager_IdleExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := session.NewManager(nil, session.WithIdleTimeout(time.Hour), session.WithClock(clock.Now))

	old, _ := m.Resolve("")
	clock.Advance(30 * time.Minute)
	kept, _ := m.Resolve("")
	clock.Advance(45 * time.Minute)

	_, err := m.Get(old.ID)
	require.ErrorIs(t, err, session.ErrSessionNotFound)
	_, err = m.Get(kept.ID)
	require.NoError(t, err)

	require.Equal(t, 1, m.Sweep())
	require.Equal(t, 1, m.Len())

	fresh, created := m.Resolve(old.ID)
	require.True(t, created)
	require.NotEqual(t, old.ID, fresh.ID)
}

func TestManager_RunSweeperStopsOnCancel(t *testing.T) {
	m := session.NewManager(nil, session.WithIdleTimeout(time.Nanosecond))
	m.Resolve("")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.RunSweeper(ctx, time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return m.Len() == 0 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

type countingObserver struct {
	mu      sync.Mutex
	created int
	expired int
	updates map[string]int
}

func (o *countingObserver) SessionCreated() {
	o.mu.Lock()
	o.created++
	o.mu.Unlock()
}

func (o *countingObserver) SessionsExpired(n int) {
	o.mu.Lock()
	o.expired += n
	o.mu.Unlock()
}

func (o *countingObserver) ToolStateUpdated(tool string) {
	o.mu.Lock()
	o.updates[tool]++
	o.mu.Unlock()
}

func TestManager_Observer(t *testing.T) {
	obs := &countingObserver{updates: map[string]int{}}
	m := session.NewManager(nil, session.WithObserver(obs))
	sess, _ := m.Resolve("")
	require.NoError(t, m.UpdateToolState(sess.ID, "ruleslawyer", session.State{"q": "grapple"}))

	require.Equal(t, 1, obs.created)
	require.Equal(t, 1, obs.updates["ruleslawyer"])
}
