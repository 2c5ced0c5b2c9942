package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"tetris-lite/apps/server/internal/codec"
	"tetris-lite/apps/server/internal/lobby"
	"tetris-lite/apps/server/internal/match"
	"tetris-lite/apps/server/internal/results"
	"tetris-lite/tetris"
)

type testServer struct {
	srv   *httptest.Server
	gw    *Gateway
	lobby *lobby.Lobby
	ticks chan time.Time
}

func newTestServer(t *testing.T, mutate func(*Options)) *testServer {
	t.Helper()
	cfg := match.DefaultConfig()
	cfg.Seed = 7
	cfg.CountdownTicks = 0
	ticks := make(chan time.Time)
	logger := zaptest.NewLogger(t, zaptest.Level(zap.ErrorLevel))
	l := lobby.New(lobby.Options{
		Config: cfg,
		Store:  results.NewMemoryStore(10),
		Logger: logger,
		Ticks:  ticks,
	})
	opts := Options{Lobby: l, Logger: logger}
	if mutate != nil {
		mutate(&opts)
	}
	gw := New(opts)
	srv := httptest.NewServer(http.HandlerFunc(gw.HandleWebSocket))
	t.Cleanup(func() {
		gw.CloseAll()
		_ = l.Shutdown(context.Background())
		srv.Close()
	})
	return &testServer{srv: srv, gw: gw, lobby: l, ticks: ticks}
}

func (s *testServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

// tick pushes one tick into whichever match is running.
func (s *testServer) tick(t *testing.T) {
	t.Helper()
	select {
	case s.ticks <- time.Now():
	case <-time.After(2 * time.Second):
		t.Fatal("no match consumed the tick")
	}
}

type client struct {
	t      *testing.T
	ws     *websocket.Conn
	seq    uint64
	frames chan codec.ServerEnvelope
	closed chan struct{}
}

func dial(t *testing.T, s *testServer, participant string) *client {
	t.Helper()
	header := http.Header{}
	header.Set("X-Player-ID", participant)
	ws, _, err := websocket.DefaultDialer.Dial(s.url(), header)
	require.NoError(t, err)
	c := &client{
		t:      t,
		ws:     ws,
		frames: make(chan codec.ServerEnvelope, 4096),
		closed: make(chan struct{}),
	}
	go c.read()
	t.Cleanup(func() { _ = ws.Close() })
	return c
}

func (c *client) read() {
	defer close(c.closed)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		env, err := codec.DecodeServer(data)
		if err != nil {
			return
		}
		c.frames <- env
	}
}

func (c *client) send(p codec.ClientPayload) {
	c.t.Helper()
	c.seq++
	c.sendSeq(c.seq, p)
}

func (c *client) sendSeq(seq uint64, p codec.ClientPayload) {
	c.t.Helper()
	frame, err := codec.EncodeClient(codec.ClientEnvelope{Seq: seq, Payload: p})
	require.NoError(c.t, err)
	require.NoError(c.t, c.ws.WriteMessage(websocket.BinaryMessage, frame))
}

func (c *client) waitFor(what string, pred func(codec.ServerEnvelope) bool) codec.ServerEnvelope {
	c.t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case env := <-c.frames:
			if pred(env) {
				return env
			}
		case <-c.closed:
			c.t.Fatalf("connection closed while waiting for %s", what)
		case <-deadline:
			c.t.Fatalf("timed out waiting for %s", what)
		}
	}
}

func (c *client) waitEvent(kind codec.EventKind) codec.MatchEvent {
	c.t.Helper()
	env := c.waitFor(kind.String(), func(env codec.ServerEnvelope) bool {
		ev, ok := env.Payload.(*codec.MatchEvent)
		return ok && ev.Kind == kind
	})
	return *env.Payload.(*codec.MatchEvent)
}

func (c *client) waitError() codec.Error {
	c.t.Helper()
	env := c.waitFor("error frame", func(env codec.ServerEnvelope) bool {
		_, ok := env.Payload.(*codec.Error)
		return ok
	})
	return *env.Payload.(*codec.Error)
}

func (c *client) waitClosed() {
	c.t.Helper()
	select {
	case <-c.closed:
	case <-time.After(3 * time.Second):
		c.t.Fatal("server did not close the connection")
	}
}

func TestQuickMatchOverWebsocket(t *testing.T) {
	s := newTestServer(t, nil)
	a := dial(t, s, "alice")
	b := dial(t, s, "bob")

	a.send(&codec.QuickMatch{})
	a.waitEvent(codec.EventPlayerJoined)
	b.send(&codec.QuickMatch{})

	started := b.waitEvent(codec.EventStarted)
	assert.ElementsMatch(t, []string{"alice", "bob"}, started.Participants)
	a.waitEvent(codec.EventStarted)

	a.send(&codec.Intent{Action: tetris.IntentHardDrop})

	// b mirrors alice's board until the hard drop locks a piece.
	rep := codec.NewReplica()
	for i := 0; i < 60; i++ {
		s.tick(t)
		if snap, _, ok := rep.Board("alice"); ok && snap.Pieces > 0 {
			break
		}
		for drained := false; !drained; {
			select {
			case env := <-b.frames:
				require.NoError(t, rep.Apply(env))
			case <-time.After(50 * time.Millisecond):
				drained = true
			}
		}
	}
	snap, _, ok := rep.Board("alice")
	require.True(t, ok)
	assert.Equal(t, 1, snap.Pieces)
	assert.Equal(t, 2, s.gw.Count())
}

func TestSequenceViolationCloses(t *testing.T) {
	s := newTestServer(t, nil)
	c := dial(t, s, "alice")

	c.sendSeq(5, &codec.QuickMatch{})
	c.waitEvent(codec.EventPlayerJoined)
	c.sendSeq(5, &codec.Ready{})

	assert.Equal(t, codec.ErrorCodeSequence, c.waitError().Code)
	c.waitClosed()
}

func TestMalformedFrameCloses(t *testing.T) {
	s := newTestServer(t, nil)
	c := dial(t, s, "alice")

	require.NoError(t, c.ws.WriteMessage(websocket.BinaryMessage, []byte{0xff, 0xff}))
	assert.Equal(t, codec.ErrorCodeMalformed, c.waitError().Code)
	c.waitClosed()
}

func TestTextFrameCloses(t *testing.T) {
	s := newTestServer(t, nil)
	c := dial(t, s, "alice")

	require.NoError(t, c.ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"join"}`)))
	assert.Equal(t, codec.ErrorCodeMalformed, c.waitError().Code)
	c.waitClosed()
}

func TestIntentBeforeJoinCloses(t *testing.T) {
	s := newTestServer(t, nil)
	c := dial(t, s, "alice")

	c.send(&codec.Intent{Action: tetris.IntentMoveLeft})
	assert.Equal(t, codec.ErrorCodeNotBound, c.waitError().Code)
	c.waitClosed()
}

func TestSpectatorIntentCloses(t *testing.T) {
	s := newTestServer(t, nil)
	a := dial(t, s, "alice")
	a.send(&codec.QuickMatch{})
	joined := a.waitFor("player joined", func(env codec.ServerEnvelope) bool {
		ev, ok := env.Payload.(*codec.MatchEvent)
		return ok && ev.Kind == codec.EventPlayerJoined
	})

	watcher := dial(t, s, "carol")
	watcher.send(&codec.Join{MatchID: joined.MatchID, Spectate: true})
	watcher.waitEvent(codec.EventState)

	watcher.send(&codec.Intent{Action: tetris.IntentHardDrop})
	assert.Equal(t, codec.ErrorCodeNotBound, watcher.waitError().Code)
	watcher.waitClosed()
}

func TestUnknownIntentVerbCloses(t *testing.T) {
	s := newTestServer(t, nil)
	c := dial(t, s, "alice")
	c.send(&codec.QuickMatch{})
	c.waitEvent(codec.EventPlayerJoined)

	c.send(&codec.Intent{Action: tetris.Intent(42)})
	assert.Equal(t, codec.ErrorCodeMalformed, c.waitError().Code)
	c.waitClosed()
}

func TestJoinDeclinedKeepsConnection(t *testing.T) {
	s := newTestServer(t, nil)
	c := dial(t, s, "alice")

	c.send(&codec.Join{MatchID: "nope"})
	env := c.waitFor("join declined", func(env codec.ServerEnvelope) bool {
		_, ok := env.Payload.(*codec.JoinDeclined)
		return ok
	})
	assert.Equal(t, match.DeclineNotFound, env.Payload.(*codec.JoinDeclined).Reason)

	c.send(&codec.QuickMatch{})
	c.waitEvent(codec.EventPlayerJoined)
}

func TestRejectedRequestKeepsConnection(t *testing.T) {
	s := newTestServer(t, nil)
	c := dial(t, s, "alice")

	c.send(&codec.QuickMatch{})
	c.waitEvent(codec.EventPlayerJoined)
	// Still waiting for an opponent, so the intent is refused.
	c.send(&codec.Intent{Action: tetris.IntentRotateCW})
	assert.Equal(t, codec.ErrorCodeRejected, c.waitError().Code)

	c.send(&codec.Ready{})
	c.waitEvent(codec.EventPlayerReady)
}

func TestDisconnectFreezesBoard(t *testing.T) {
	s := newTestServer(t, nil)
	a := dial(t, s, "alice")
	b := dial(t, s, "bob")
	a.send(&codec.QuickMatch{})
	a.waitEvent(codec.EventPlayerJoined)
	b.send(&codec.QuickMatch{})
	b.waitEvent(codec.EventStarted)

	require.NoError(t, a.ws.Close())

	ev := b.waitEvent(codec.EventFrozen)
	assert.Equal(t, "alice", ev.Board)
	require.Eventually(t, func() bool { return s.gw.Count() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestMissingIdentityRejected(t *testing.T) {
	s := newTestServer(t, nil)
	_, resp, err := websocket.DefaultDialer.Dial(s.url(), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestOriginAllowlist(t *testing.T) {
	s := newTestServer(t, func(o *Options) { o.AllowedOrigins = []string{"https://play.example"} })

	header := http.Header{}
	header.Set("X-Player-ID", "alice")
	header.Set("Origin", "https://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(s.url(), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://play.example")
	ws, _, err := websocket.DefaultDialer.Dial(s.url(), header)
	require.NoError(t, err)
	_ = ws.Close()
}
