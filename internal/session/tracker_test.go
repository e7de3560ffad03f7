package session

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayodineji/Agile-Board/internal/metrics"
)

func setupTracker(t *testing.T, sessions int) (*Tracker, *Store, []string) {
	store, _ := setupStore(t)
	ids := make([]string, 0, sessions)
	for i := 0; i < sessions; i++ {
		created, err := store.Create(context.Background())
		require.NoError(t, err)
		ids = append(ids, created.SessionID)
	}
	return NewTracker(store, metrics.New(prometheus.NewRegistry())), store, ids
}

func TestTrackerJoin(t *testing.T) {
	t.Run("counts session and global members", func(t *testing.T) {
		tracker, _, ids := setupTracker(t, 2)

		res, err := tracker.Join(ids[0], "c1")
		require.NoError(t, err)
		assert.Equal(t, Counts{Session: 1, Global: 1}, res.Counts)
		assert.Nil(t, res.Previous)
		assert.False(t, res.Rejoined)

		res, err = tracker.Join(ids[0], "c2")
		require.NoError(t, err)
		assert.Equal(t, Counts{Session: 2, Global: 2}, res.Counts)

		res, err = tracker.Join(ids[1], "c3")
		require.NoError(t, err)
		assert.Equal(t, Counts{Session: 1, Global: 3}, res.Counts)
	})

	t.Run("rejoining the same session is idempotent", func(t *testing.T) {
		tracker, _, ids := setupTracker(t, 1)

		_, err := tracker.Join(ids[0], "c1")
		require.NoError(t, err)
		res, err := tracker.Join(ids[0], "c1")
		require.NoError(t, err)
		assert.Equal(t, Counts{Session: 1, Global: 1}, res.Counts)
		assert.Nil(t, res.Previous)
		assert.True(t, res.Rejoined)
	})

	t.Run("joining another session leaves the first", func(t *testing.T) {
		tracker, store, ids := setupTracker(t, 2)

		_, err := tracker.Join(ids[0], "c1")
		require.NoError(t, err)
		_, err = tracker.Join(ids[0], "c2")
		require.NoError(t, err)

		res, err := tracker.Join(ids[1], "c1")
		require.NoError(t, err)
		require.NotNil(t, res.Previous)
		assert.Equal(t, ids[0], res.Previous.SessionID)
		assert.False(t, res.Rejoined)
		assert.Equal(t, Counts{Session: 1, Global: 2}, res.Previous.Counts)
		assert.Equal(t, Counts{Session: 1, Global: 2}, res.Counts)

		first, err := store.FindByID(ids[0])
		require.NoError(t, err)
		assert.Equal(t, []string{"c2"}, first.Participants.Sorted())

		sid, ok := tracker.SessionOf("c1")
		require.True(t, ok)
		assert.Equal(t, ids[1], sid)
	})

	t.Run("unknown session", func(t *testing.T) {
		tracker, _, _ := setupTracker(t, 0)
		_, err := tracker.Join("nope", "c1")
		assert.True(t, IsNotFound(err))
		assert.Equal(t, 0, tracker.Global())
	})
}

func TestTrackerLeave(t *testing.T) {
	t.Run("removes from both sets", func(t *testing.T) {
		tracker, _, ids := setupTracker(t, 1)
		_, err := tracker.Join(ids[0], "c1")
		require.NoError(t, err)
		_, err = tracker.Join(ids[0], "c2")
		require.NoError(t, err)

		dep, ok := tracker.Leave("c1")
		require.True(t, ok)
		assert.Equal(t, Departure{SessionID: ids[0], Counts: Counts{Session: 1, Global: 1}}, dep)
		assert.Equal(t, Counts{Session: 1, Global: 1}, tracker.Counts(ids[0]))

		_, ok = tracker.SessionOf("c1")
		assert.False(t, ok)
	})

	t.Run("never joined is a no-op", func(t *testing.T) {
		tracker, _, _ := setupTracker(t, 1)
		_, ok := tracker.Leave("ghost")
		assert.False(t, ok)
	})

	t.Run("session vanished", func(t *testing.T) {
		tracker, store, ids := setupTracker(t, 1)
		_, err := tracker.Join(ids[0], "c1")
		require.NoError(t, err)

		store.mu.Lock()
		delete(store.sessions, ids[0])
		store.mu.Unlock()

		dep, ok := tracker.Leave("c1")
		require.True(t, ok)
		assert.Equal(t, Counts{Session: 0, Global: 0}, dep.Counts)
		assert.Equal(t, Counts{}, tracker.Counts(ids[0]))
	})
}

func TestTrackerConcurrentJoinLeave(t *testing.T) {
	tracker, store, ids := setupTracker(t, 3)

	var wg sync.WaitGroup
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := fmt.Sprintf("c%d", i)
			_, err := tracker.Join(ids[i%3], conn)
			assert.NoError(t, err)
			if i%2 == 0 {
				tracker.Leave(conn)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 30, tracker.Global())
	total := 0
	for _, id := range ids {
		sess, err := store.FindByID(id)
		require.NoError(t, err)
		total += len(sess.Participants)
		assert.Equal(t, len(sess.Participants), tracker.Counts(id).Session)
	}
	assert.Equal(t, 30, total)
}
