// Package gateway is the websocket transport: it authenticates the
// participant, enforces per-connection frame sequencing and routes client
// frames to the lobby and the bound match.
package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tetris-lite/apps/server/internal/codec"
	"tetris-lite/apps/server/internal/identity"
	"tetris-lite/apps/server/internal/lobby"
	"tetris-lite/apps/server/internal/match"
)

const (
	sendBuffer   = 256
	readLimit    = 65536
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
)

var (
	ErrSequence = errors.New("gateway: frame sequence not increasing")
	ErrNotBound = errors.New("gateway: connection not bound to a match")
)

type Options struct {
	Lobby    *lobby.Lobby
	Resolver identity.Resolver
	// AllowedOrigins restricts browser origins. Empty allows any.
	AllowedOrigins []string
	Logger         *zap.Logger
}

// Gateway manages WebSocket connections
type Gateway struct {
	mu          sync.RWMutex
	connections map[string]*Connection

	lobby    *lobby.Lobby
	resolver identity.Resolver
	upgrader websocket.Upgrader
	log      *zap.Logger
}

func New(opts Options) *Gateway {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	resolver := opts.Resolver
	if resolver == nil {
		resolver = identity.HeaderResolver{}
	}
	g := &Gateway{
		connections: make(map[string]*Connection),
		lobby:       opts.Lobby,
		resolver:    resolver,
		log:         logger.Named("gateway"),
	}
	allowed := make(map[string]bool, len(opts.AllowedOrigins))
	for _, o := range opts.AllowedOrigins {
		allowed[o] = true
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return len(allowed) == 0 || origin == "" || allowed[origin]
		},
	}
	return g
}

// Connection is one websocket client. It implements match.Sink.
type Connection struct {
	ID          string
	Participant string

	conn *websocket.Conn
	send chan []byte
	g    *Gateway
	log  *zap.Logger

	// owned by readPump
	match   *match.Match
	lastSeq uint64

	closeOnce sync.Once
	done      chan struct{}
}

func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	participant, err := g.resolver.Resolve(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("upgrade failed", zap.Error(err))
		return
	}

	c := &Connection{
		ID:          uuid.NewString(),
		Participant: participant,
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		g:           g,
		done:        make(chan struct{}),
	}
	c.log = g.log.With(zap.String("conn", c.ID), zap.String("participant", participant))

	g.mu.Lock()
	g.connections[c.ID] = c
	total := len(g.connections)
	g.mu.Unlock()
	c.log.Info("client connected", zap.Int("total", total))

	go c.readPump()
	go c.writePump()
}

// Send queues a frame without blocking. A full buffer drops the frame.
func (c *Connection) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Connection) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Connection) readPump() {
	defer func() {
		c.g.removeConnection(c)
		c.close()
	}()

	c.conn.SetReadLimit(readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warn("read error", zap.Error(err))
			}
			return
		}
		if messageType != websocket.BinaryMessage {
			c.sendError(codec.ErrorCodeMalformed, "binary frames only")
			return
		}
		if err := c.handleFrame(message); err != nil {
			c.log.Info("protocol violation, closing", zap.Error(err))
			return
		}
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.BinaryMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.flush()
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes whatever is still queued so a final error frame reaches the
// client before the close.
func (c *Connection) flush() {
	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.BinaryMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}

// handleFrame returns an error only for protocol violations, which close the
// connection. Refused requests are answered with a frame instead.
func (c *Connection) handleFrame(data []byte) error {
	env, err := codec.DecodeClient(data)
	if err != nil {
		c.sendError(codec.ErrorCodeMalformed, err.Error())
		return err
	}
	if env.Seq <= c.lastSeq {
		c.sendError(codec.ErrorCodeSequence, fmt.Sprintf("seq %d after %d", env.Seq, c.lastSeq))
		return fmt.Errorf("%w: %d after %d", ErrSequence, env.Seq, c.lastSeq)
	}
	c.lastSeq = env.Seq

	switch p := env.Payload.(type) {
	case *codec.Join:
		if p.Spectate {
			c.bind(c.g.lobby.Spectate(p.MatchID, c))
		} else {
			c.bind(c.g.lobby.Join(p.MatchID, c.Participant, c))
		}
		return nil
	case *codec.QuickMatch:
		c.bind(c.g.lobby.QuickMatch(c.Participant, c))
		return nil
	}

	if c.match == nil {
		c.sendError(codec.ErrorCodeNotBound, "join a match first")
		return ErrNotBound
	}
	m := c.match
	switch p := env.Payload.(type) {
	case *codec.Ready:
		err = m.Ready(c.Participant)
	case *codec.Intent:
		err = m.SubmitIntent(c.Participant, c, env.Seq, p.Action)
	case *codec.Ack:
		err = m.Ack(c, p.Board, p.Seq)
	case *codec.SnapshotRequest:
		err = m.RequestSnapshot(c, p.Board)
	case *codec.FinishAck:
		err = m.FinishAck(c.Participant)
	case *codec.Leave:
		err = m.Leave(c.Participant, c)
		c.match = nil
	}
	if errors.Is(err, match.ErrMatchClosed) {
		c.match = nil
	}
	if _, isIntent := env.Payload.(*codec.Intent); isIntent && errors.Is(err, match.ErrNotParticipant) {
		// spectators and stale bindings have no board to drive
		c.sendError(codec.ErrorCodeNotBound, err.Error())
		return fmt.Errorf("%w: %v", ErrNotBound, err)
	}
	if err != nil {
		c.sendError(codec.ErrorCodeRejected, err.Error())
	}
	return nil
}

func (c *Connection) bind(m *match.Match, err error) {
	var de *match.DeclineError
	switch {
	case errors.As(err, &de):
		c.sendFrame(codec.ServerEnvelope{Payload: &codec.JoinDeclined{Reason: de.Reason}})
	case err != nil:
		c.sendError(codec.ErrorCodeRejected, err.Error())
	default:
		if c.match != nil && c.match != m {
			_ = c.match.ConnLost(c)
		}
		c.match = m
		c.log.Info("bound to match", zap.String("match", m.ID))
	}
}

func (c *Connection) sendFrame(env codec.ServerEnvelope) {
	if c.match != nil && env.MatchID == "" {
		env.MatchID = c.match.ID
	}
	env.ServerTsMs = time.Now().UnixMilli()
	frame, err := codec.EncodeServer(env)
	if err != nil {
		c.log.Error("encode frame", zap.Error(err))
		return
	}
	c.Send(frame)
}

func (c *Connection) sendError(code codec.ErrorCode, msg string) {
	c.sendFrame(codec.ServerEnvelope{Payload: &codec.Error{Code: code, Message: msg}})
}

func (g *Gateway) removeConnection(c *Connection) {
	g.mu.Lock()
	delete(g.connections, c.ID)
	total := len(g.connections)
	g.mu.Unlock()

	if c.match != nil {
		if err := c.match.ConnLost(c); err != nil && !errors.Is(err, match.ErrMatchClosed) {
			c.log.Warn("conn lost not delivered", zap.Error(err))
		}
		c.match = nil
	}
	c.log.Info("client disconnected", zap.Int("total", total))
}

// Count returns the number of open connections.
func (g *Gateway) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.connections)
}

// CloseAll closes every connection. Used during shutdown after the lobby has
// already finished its matches.
func (g *Gateway) CloseAll() {
	g.mu.RLock()
	conns := make([]*Connection, 0, len(g.connections))
	for _, c := range g.connections {
		conns = append(conns, c)
	}
	g.mu.RUnlock()
	for _, c := range conns {
		c.close()
	}
}
