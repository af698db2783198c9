package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/DoyleJ11/nonetomourn-server/internal/engine"
	"github.com/DoyleJ11/nonetomourn-server/internal/store"
	"github.com/DoyleJ11/nonetomourn-server/internal/store/memstore"
)

func newTestHub(t *testing.T, ttl time.Duration) (*Hub, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	require.NoError(t, st.EnsureItem(context.Background(), store.Item{Name: "Pistol", AssetPath: "pistol.png"}))
	h := NewHub(context.Background(), st, Config{
		Rules:        engine.DefaultWaveRules(),
		StartingItem: "Pistol",
		PasswordCost: bcrypt.MinCost,
		EndedTTL:     ttl,
	})
	t.Cleanup(h.Shutdown)
	return h, st
}

func TestCreateAndJoin(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHub(t, 0)

	id, err := h.CreateSession(ctx, "alice", "Camp1", "pw")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	lb, err := h.Lobby(ctx, id)
	require.NoError(t, err)

	_, err = lb.Join(ctx, "bob", "nope")
	require.ErrorIs(t, err, engine.ErrWrongPassword)

	slot, err := lb.Join(ctx, "bob", "pw")
	require.NoError(t, err)
	assert.Equal(t, 2, slot)

	items, err := h.Inventory(ctx, id, "bob")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Pistol", items[0].Name)

	items, err = h.Inventory(ctx, id, "alice")
	require.NoError(t, err)
	assert.Len(t, items, 1)

	sess, err := h.Session(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, sess.Players())
}

func TestCreateRejectsSecondSessionForHost(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHub(t, 0)

	id, err := h.CreateSession(ctx, "alice", "Camp1", "")
	require.NoError(t, err)

	_, err = h.CreateSession(ctx, "alice", "Camp2", "")
	require.ErrorIs(t, err, engine.ErrAlreadyHosting)
	var ah *engine.AlreadyHostingError
	require.ErrorAs(t, err, &ah)
	assert.Equal(t, id, ah.SessionID)

	_, err = h.CreateSession(ctx, "  ", "Camp3", "")
	require.ErrorIs(t, err, engine.ErrInvalidPlayer)
}

func TestConcurrentCreatesForSameHost(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHub(t, 0)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.CreateSession(ctx, "alice", "Camp", "")
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, engine.ErrAlreadyHosting)
	}
	assert.Equal(t, 1, ok)

	active, err := h.ListActiveSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestKillFreesHostAndDropsFromList(t *testing.T) {
	ctx := context.Background()
	h, st := newTestHub(t, 0)

	id, err := h.CreateSession(ctx, "alice", "Camp1", "")
	require.NoError(t, err)
	other, err := h.CreateSession(ctx, "carol", "Camp2", "")
	require.NoError(t, err)

	active, err := h.ListActiveSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"Camp1": id, "Camp2": other}, active)

	require.NoError(t, h.KillSession(ctx, id))

	active, err = h.ListActiveSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"Camp2": other}, active)

	// Ended sessions stay readable until removed.
	sess, err := h.Session(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, engine.StateEnded, sess.State)
	assert.False(t, sess.Active)

	stored, err := st.LoadActiveSessions(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, other, stored[0].ID)

	again, err := h.CreateSession(ctx, "alice", "Camp3", "")
	require.NoError(t, err)
	assert.NotEqual(t, id, again)

	require.ErrorIs(t, h.KillSession(ctx, 999), engine.ErrSessionNotFound)
}

func TestHostPromotionMovesHostIndex(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHub(t, 0)

	id, err := h.CreateSession(ctx, "alice", "Camp1", "")
	require.NoError(t, err)
	lb, err := h.Lobby(ctx, id)
	require.NoError(t, err)
	_, err = lb.Join(ctx, "bob", "")
	require.NoError(t, err)

	require.NoError(t, lb.Leave(ctx, "alice"))

	sess, err := h.Session(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "bob", sess.Host())

	_, err = h.CreateSession(ctx, "bob", "Other", "")
	var ah *engine.AlreadyHostingError
	require.ErrorAs(t, err, &ah)
	assert.Equal(t, id, ah.SessionID)

	_, err = h.CreateSession(ctx, "alice", "Fresh", "")
	require.NoError(t, err)
}

func TestSeatedPlayerCannotHostElsewhere(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHub(t, 0)

	a, err := h.CreateSession(ctx, "alice", "CampA", "")
	require.NoError(t, err)
	lbA, err := h.Lobby(ctx, a)
	require.NoError(t, err)
	_, err = lbA.Join(ctx, "bob", "")
	require.NoError(t, err)

	// bob sits in A, so he cannot open B and later be promoted in A too.
	_, err = h.CreateSession(ctx, "bob", "CampB", "")
	var ah *engine.AlreadyHostingError
	require.ErrorAs(t, err, &ah)
	assert.Equal(t, a, ah.SessionID)

	// A host of another active session cannot join A either.
	c, err := h.CreateSession(ctx, "carol", "CampC", "")
	require.NoError(t, err)
	_, err = lbA.Join(ctx, "carol", "")
	require.ErrorAs(t, err, &ah)
	assert.Equal(t, c, ah.SessionID)

	require.NoError(t, lbA.Leave(ctx, "alice"))
	sess, err := h.Session(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "bob", sess.Host())
	assert.Equal(t, []string{"bob"}, sess.Players())

	active, err := h.ListActiveSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"CampA": a, "CampC": c}, active)

	// Leaving frees the seat.
	require.NoError(t, lbA.Leave(ctx, "bob"))
	b, err := h.CreateSession(ctx, "bob", "CampB", "")
	require.NoError(t, err)

	active, err = h.ListActiveSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"CampB": b, "CampC": c}, active)
}

func TestKillFreesEverySeat(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHub(t, 0)

	id, err := h.CreateSession(ctx, "alice", "Camp1", "")
	require.NoError(t, err)
	lb, err := h.Lobby(ctx, id)
	require.NoError(t, err)
	_, err = lb.Join(ctx, "bob", "")
	require.NoError(t, err)

	require.NoError(t, h.KillSession(ctx, id))

	for _, p := range []string{"alice", "bob"} {
		_, err := h.CreateSession(ctx, p, p+"-camp", "")
		require.NoError(t, err, p)
	}
}

func TestRestoreRegistersActiveSessions(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	require.NoError(t, st.EnsureItem(ctx, store.Item{Name: "Pistol"}))

	live := engine.NewSession("alice", "Camp1", "")
	require.NoError(t, st.SaveSession(ctx, &live))
	done := engine.NewSession("bob", "Camp2", "")
	done.State = engine.StateEnded
	done.Active = false
	require.NoError(t, st.SaveSession(ctx, &done))

	h := NewHub(ctx, st, Config{Rules: engine.DefaultWaveRules(), StartingItem: "Pistol", PasswordCost: bcrypt.MinCost})
	t.Cleanup(h.Shutdown)

	n, err := h.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	active, err := h.ListActiveSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"Camp1": live.ID}, active)

	_, err = h.CreateSession(ctx, "alice", "Again", "")
	require.ErrorIs(t, err, engine.ErrAlreadyHosting)

	_, err = h.Lobby(ctx, done.ID)
	require.ErrorIs(t, err, engine.ErrSessionNotFound)
}

func TestEndedSessionRemovedAfterTTL(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHub(t, 10*time.Millisecond)

	id, err := h.CreateSession(ctx, "alice", "Camp1", "")
	require.NoError(t, err)
	lb, err := h.Lobby(ctx, id)
	require.NoError(t, err)

	require.NoError(t, h.KillSession(ctx, id))

	require.Eventually(t, func() bool {
		_, err := h.Lobby(ctx, id)
		return errors.Is(err, engine.ErrSessionNotFound)
	}, time.Second, 5*time.Millisecond)

	select {
	case <-lb.Done():
	case <-time.After(time.Second):
		t.Fatal("lobby still running after removal")
	}
}

func TestShutdownStopsLobbies(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHub(t, 0)

	id, err := h.CreateSession(ctx, "alice", "Camp1", "")
	require.NoError(t, err)
	lb, err := h.Lobby(ctx, id)
	require.NoError(t, err)

	h.Shutdown()

	select {
	case <-lb.Done():
	case <-time.After(time.Second):
		t.Fatal("lobby still running after shutdown")
	}
	_, err = h.ListActiveSessions(ctx)
	require.Error(t, err)
}
