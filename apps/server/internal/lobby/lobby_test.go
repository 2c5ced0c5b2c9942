package lobby

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"tetris-lite/apps/server/internal/match"
	"tetris-lite/apps/server/internal/results"
)

type nopSink struct{ name string }

func (nopSink) Send([]byte) bool { return true }

// gatedSink blocks inside Send once block is set, until gate is closed.
type gatedSink struct {
	block   atomic.Bool
	gate    chan struct{}
	entered chan struct{}
}

func newGatedSink() *gatedSink {
	return &gatedSink{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
}

func (s *gatedSink) Send([]byte) bool {
	if s.block.Load() {
		select {
		case s.entered <- struct{}{}:
		default:
		}
		<-s.gate
	}
	return true
}

// slowStore holds the first Save until release is closed.
type slowStore struct {
	*results.MemoryStore
	calls     atomic.Int32
	entered   chan struct{}
	release   chan struct{}
	firstDone atomic.Bool
}

func (s *slowStore) Save(ctx context.Context, sum results.Summary) error {
	if s.calls.Add(1) == 1 {
		close(s.entered)
		<-s.release
		defer s.firstDone.Store(true)
	}
	return s.MemoryStore.Save(ctx, sum)
}

func newTestLobby(t *testing.T, mutate func(*Options)) (*Lobby, *results.MemoryStore) {
	t.Helper()
	cfg := match.DefaultConfig()
	cfg.Seed = 1
	cfg.CountdownTicks = 0
	store := results.NewMemoryStore(10)
	opts := Options{
		Config: cfg,
		Store:  store,
		Logger: zaptest.NewLogger(t, zaptest.Level(zap.ErrorLevel)),
		Ticks:  make(chan time.Time),
	}
	if mutate != nil {
		mutate(&opts)
	}
	l := New(opts)
	t.Cleanup(func() { _ = l.Shutdown(context.Background()) })
	return l, store
}

func declineReason(err error) string {
	var de *match.DeclineError
	if errors.As(err, &de) {
		return de.Reason
	}
	return ""
}

func TestQuickMatchPairsPlayers(t *testing.T) {
	l, _ := newTestLobby(t, nil)

	m1, err := l.QuickMatch("a", &nopSink{"a"})
	require.NoError(t, err)
	m2, err := l.QuickMatch("b", &nopSink{"b"})
	require.NoError(t, err)
	assert.Same(t, m1, m2)
	assert.Equal(t, match.StateRunning, m1.Info().State)

	m3, err := l.QuickMatch("c", &nopSink{"c"})
	require.NoError(t, err)
	assert.NotSame(t, m1, m3)

	infos := l.List()
	require.Len(t, infos, 2)
	assert.Equal(t, m1.ID, infos[0].ID)
	assert.Equal(t, []string{"a", "b"}, infos[0].Participants)
}

func TestJoinDeclines(t *testing.T) {
	l, _ := newTestLobby(t, nil)

	_, err := l.Join("missing", "a", &nopSink{})
	assert.Equal(t, match.DeclineNotFound, declineReason(err))

	m1, err := l.Create()
	require.NoError(t, err)
	m2, err := l.Create()
	require.NoError(t, err)

	_, err = l.Join(m1.ID, "a", &nopSink{"a"})
	require.NoError(t, err)
	_, err = l.Join(m2.ID, "a", &nopSink{"a2"})
	assert.Equal(t, match.DeclineDuplicate, declineReason(err))

	// the same identity from a second connection is refused by the match too
	_, err = l.QuickMatch("a", &nopSink{"a3"})
	assert.Equal(t, match.DeclineDuplicate, declineReason(err))
}

func TestLeaveBeforeStartFreesBinding(t *testing.T) {
	l, _ := newTestLobby(t, nil)
	sink := &nopSink{"a"}
	m1, err := l.QuickMatch("a", sink)
	require.NoError(t, err)
	require.NoError(t, m1.Leave("a", sink))

	m2, err := l.Create()
	require.NoError(t, err)
	_, err = l.Join(m2.ID, "a", &nopSink{"a"})
	assert.NoError(t, err)
}

func TestFinishedMatchIsSavedAndRemoved(t *testing.T) {
	l, store := newTestLobby(t, nil)
	m, err := l.QuickMatch("a", &nopSink{})
	require.NoError(t, err)
	_, err = l.QuickMatch("b", &nopSink{})
	require.NoError(t, err)

	require.NoError(t, l.Abort(m.ID, "admin"))
	require.Eventually(t, func() bool {
		_, err := store.Get(context.Background(), m.ID)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, m.FinishAck("a"))
	require.NoError(t, m.FinishAck("b"))
	require.Eventually(t, func() bool { return l.Get(m.ID) == nil }, 2*time.Second, 10*time.Millisecond)

	saved, err := store.Get(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, results.OutcomeAborted, saved.Outcome)
	require.NotNil(t, saved.Tape)

	// both participants are free again
	m2, err := l.QuickMatch("a", &nopSink{})
	require.NoError(t, err)
	assert.NotEqual(t, m.ID, m2.ID)
}

func TestIdleMatchesAreSwept(t *testing.T) {
	l, _ := newTestLobby(t, func(o *Options) {
		o.IdleTTL = time.Millisecond
		o.SweepInterval = 5 * time.Millisecond
	})
	m, err := l.Create()
	require.NoError(t, err)
	require.Eventually(t, func() bool { return l.Get(m.ID) == nil }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, m.IsClosed())
}

func TestShutdownAbortsAndSaves(t *testing.T) {
	l, store := newTestLobby(t, nil)
	m, err := l.QuickMatch("a", &nopSink{})
	require.NoError(t, err)
	_, err = l.QuickMatch("b", &nopSink{})
	require.NoError(t, err)

	require.NoError(t, l.Shutdown(context.Background()))
	saved, err := store.Get(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, results.OutcomeAborted, saved.Outcome)
	assert.Equal(t, "shutdown", saved.Reason)
	assert.True(t, m.IsClosed())

	_, err = l.Create()
	assert.ErrorIs(t, err, ErrShutdown)
	assert.NoError(t, l.Shutdown(context.Background()))
}

func TestShutdownWaitsForFinishHookSaves(t *testing.T) {
	store := &slowStore{
		MemoryStore: results.NewMemoryStore(10),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	l, _ := newTestLobby(t, func(o *Options) { o.Store = store })
	m, err := l.QuickMatch("a", &nopSink{})
	require.NoError(t, err)
	require.NoError(t, l.Abort(m.ID, "admin"))

	select {
	case <-store.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("finish hook never saved")
	}

	done := make(chan error, 1)
	go func() { done <- l.Shutdown(context.Background()) }()
	select {
	case <-done:
		t.Fatal("shutdown returned while a finish hook was still saving")
	case <-time.After(100 * time.Millisecond):
	}

	close(store.release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not return")
	}
	assert.True(t, store.firstDone.Load())
}

func TestBusyMatchDoesNotBlockLobby(t *testing.T) {
	l, _ := newTestLobby(t, nil)
	busy, err := l.Create()
	require.NoError(t, err)
	sink := newGatedSink()
	_, err = l.Join(busy.ID, "a", sink)
	require.NoError(t, err)

	// The next broadcast from busy parks its actor inside a's Send.
	sink.block.Store(true)
	joined := make(chan error, 1)
	go func() {
		_, err := l.Join(busy.ID, "b", &nopSink{})
		joined <- err
	}()
	select {
	case <-sink.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("busy match never broadcast")
	}

	done := make(chan error, 1)
	go func() {
		other, err := l.Create()
		if err == nil {
			_, err = l.Join(other.ID, "c", &nopSink{})
		}
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("lobby blocked behind a busy match")
	}

	close(sink.gate)
	require.NoError(t, <-joined)
}

func TestConcurrentJoinForSameParticipantIsDeclined(t *testing.T) {
	l, _ := newTestLobby(t, nil)
	require.NoError(t, l.beginJoin("a"))
	_, err := l.QuickMatch("a", &nopSink{})
	assert.Equal(t, match.DeclineDuplicate, declineReason(err))
	l.endJoin("a", "")

	_, err = l.QuickMatch("a", &nopSink{})
	assert.NoError(t, err)
}
