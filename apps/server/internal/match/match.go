// Package match runs one multiplayer match as an actor: a single goroutine
// owns the roster, the boards and the connections, and advances the
// simulation on a fixed tick.
package match

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"tetris-lite/apps/server/internal/results"
	"tetris-lite/arena"
	"tetris-lite/attack"
	"tetris-lite/tetris"
)

type State int

const (
	StateWaiting State = iota
	StateCountdown
	StateRunning
	StateFinished
)

var stateNames = map[State]string{
	StateWaiting:   "waiting",
	StateCountdown: "countdown",
	StateRunning:   "running",
	StateFinished:  "finished",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(text []byte) error {
	for st, name := range stateNames {
		if name == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown match state %q", text)
}

var (
	ErrMatchClosed    = errors.New("match closed")
	ErrNotParticipant = errors.New("not a participant of this match")
	ErrWrongState     = errors.New("not allowed in the current match state")
	ErrBadIntent      = errors.New("unknown intent")
)

// Decline reasons sent back in JoinDeclined frames.
const (
	DeclineFull      = "match_full"
	DeclineStarted   = "match_started"
	DeclineDuplicate = "duplicate_identity"
	DeclineNotFound  = "match_not_found"
	DeclineFinished  = "match_finished"
)

// DeclineError is a join refused for a session reason rather than a fault.
type DeclineError struct {
	Reason string
}

func (e *DeclineError) Error() string { return "join declined: " + e.Reason }

func decline(reason string) error { return &DeclineError{Reason: reason} }

// Config holds the per-match settings. Durations in ticks are converted with
// TickRate.
type Config struct {
	Capacity          int
	MinPlayers        int
	TickRate          int
	CountdownTicks    uint64
	GraceTicks        uint64
	FinishLinger      time.Duration
	MaxIntentsPerTick int

	Rules          tetris.Rules
	Attack         attack.Config
	Seed           int64 // 0 draws a seed from the clock at start
	SharedSequence bool
}

func DefaultConfig() Config {
	return Config{
		Capacity:          2,
		MinPlayers:        2,
		TickRate:          60,
		CountdownTicks:    180,
		GraceTicks:        600,
		FinishLinger:      30 * time.Second,
		MaxIntentsPerTick: 16,
		Rules:             tetris.DefaultRules(),
		Attack:            attack.DefaultConfig(),
		SharedSequence:    true,
	}
}

func (c Config) Validate() error {
	if c.Capacity < 1 {
		return fmt.Errorf("capacity must be positive, got %d", c.Capacity)
	}
	if c.MinPlayers < 1 || c.MinPlayers > c.Capacity {
		return fmt.Errorf("min players %d outside 1..%d", c.MinPlayers, c.Capacity)
	}
	if c.TickRate < 1 || c.TickRate > 1000 {
		return fmt.Errorf("tick rate %d outside 1..1000", c.TickRate)
	}
	if c.MaxIntentsPerTick < 1 {
		return fmt.Errorf("max intents per tick must be positive, got %d", c.MaxIntentsPerTick)
	}
	if err := c.Rules.Validate(); err != nil {
		return err
	}
	return c.Attack.Validate(c.Rules.Width)
}

func (c Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.TickRate)
}

func (c Config) lingerTicks() uint64 {
	n := uint64(c.FinishLinger / c.TickInterval())
	if n == 0 {
		n = 1
	}
	return n
}

// Sink receives encoded server frames for one connection. Send must not
// block; false means the frame was dropped.
type Sink interface {
	Send(frame []byte) bool
}

// FinishHook runs once per match after the outcome is decided.
type FinishHook func(summary results.Summary)

// Reporter receives internal errors that ended a match.
type Reporter func(matchID string, err error)

type Deps struct {
	Logger   *zap.Logger
	Reporter Reporter
	// OnClose runs on its own goroutine after the actor stops.
	OnClose func(matchID string)
	// Ticks replaces the wall-clock ticker. Tests drive the match with it.
	Ticks <-chan time.Time
}

type EventType int

const (
	EventJoin EventType = iota
	EventSpectate
	EventLeave
	EventReady
	EventIntent
	EventAck
	EventSnapshotRequest
	EventFinishAck
	EventConnLost
	EventAbort
)

type Event struct {
	Type        EventType
	Participant string
	Sink        Sink
	Intent      tetris.Intent
	Board       string
	Seq         uint64
	Reason      string
	Timestamp   time.Time
	Response    chan error
}

type member struct {
	id        string
	sink      Sink
	online    bool
	ready     bool
	lastSeq   uint64
	finishAck bool
}

type conn struct {
	participant string
	spectator   bool
	stale       bool
}

type boardFeed struct {
	seq  uint64
	last tetris.Snapshot
}

type Match struct {
	ID  string
	cfg Config

	log      *zap.Logger
	reporter Reporter
	onClose  func(string)

	mu       sync.RWMutex
	state    State
	closed   bool
	stopOnce sync.Once

	events     chan Event
	done       chan struct{}
	ticks      <-chan time.Time
	stopTicker func()

	roster     []string
	members    map[string]*member
	conns      map[Sink]*conn
	countdown  uint64
	lingerLeft uint64
	arena      *arena.Arena
	inbox      map[string][]tetris.Intent
	feeds      map[string]*boardFeed
	outcome    results.Outcome
	winner     string
	summary    *results.Summary

	createdAt  time.Time
	startedAt  time.Time
	emptySince time.Time

	finishHooks []FinishHook
}

func New(id string, cfg Config, deps Deps) (*Match, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("match %s: %w", id, err)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := time.Now()
	m := &Match{
		ID:         id,
		cfg:        cfg,
		log:        logger.Named("match").With(zap.String("match", id)),
		reporter:   deps.Reporter,
		onClose:    deps.OnClose,
		events:     make(chan Event, 256),
		done:       make(chan struct{}),
		members:    make(map[string]*member),
		conns:      make(map[Sink]*conn),
		inbox:      make(map[string][]tetris.Intent),
		feeds:      make(map[string]*boardFeed),
		createdAt:  now,
		emptySince: now,
	}
	if deps.Ticks != nil {
		m.ticks = deps.Ticks
		m.stopTicker = func() {}
	} else {
		ticker := time.NewTicker(cfg.TickInterval())
		m.ticks = ticker.C
		m.stopTicker = ticker.Stop
	}

	go m.run()

	m.log.Info("created",
		zap.Int("capacity", cfg.Capacity),
		zap.Int("min_players", cfg.MinPlayers),
		zap.Int("tick_rate", cfg.TickRate))
	return m, nil
}

func (m *Match) run() {
	defer m.stopTicker()
	for {
		select {
		case event := <-m.events:
			err := m.handleEvent(event)
			if event.Response != nil {
				event.Response <- err
			}
		case <-m.ticks:
			m.tick()
		case <-m.done:
			m.log.Debug("actor stopped")
			return
		}
		// done closes only after the response above went out, so the caller
		// whose event ended the match still sees its own result.
		if m.IsClosed() {
			m.closeDone()
			return
		}
	}
}

func (m *Match) handleEvent(e Event) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.recoverLocked(&err)

	if m.closed {
		return ErrMatchClosed
	}

	switch e.Type {
	case EventJoin:
		return m.handleJoin(e.Participant, e.Sink)
	case EventSpectate:
		return m.handleSpectate(e.Sink)
	case EventLeave:
		return m.handleLeave(e.Participant, e.Sink)
	case EventReady:
		return m.handleReady(e.Participant)
	case EventIntent:
		return m.handleIntent(e.Participant, e.Sink, e.Seq, e.Intent)
	case EventAck:
		return m.handleAck(e.Sink, e.Board, e.Seq)
	case EventSnapshotRequest:
		return m.handleSnapshotRequest(e.Sink, e.Board)
	case EventFinishAck:
		return m.handleFinishAck(e.Participant)
	case EventConnLost:
		return m.handleConnLost(e.Sink)
	case EventAbort:
		return m.handleAbort(e.Reason)
	default:
		return fmt.Errorf("unknown event type: %d", e.Type)
	}
}

// recoverLocked turns a panic inside the actor into a failed match so the
// rest of the process keeps running.
func (m *Match) recoverLocked(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	err := fmt.Errorf("panic: %v", r)
	m.failLocked(err)
	if errp != nil {
		*errp = err
	}
}

// SubmitEvent hands an event to the actor and waits for it to be handled.
func (m *Match) SubmitEvent(e Event) error {
	e.Timestamp = time.Now()
	if e.Response == nil {
		e.Response = make(chan error, 1)
	}

	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return ErrMatchClosed
	}

	select {
	case m.events <- e:
	case <-m.done:
		return ErrMatchClosed
	}

	select {
	case err := <-e.Response:
		return err
	case <-m.done:
		return ErrMatchClosed
	}
}

func (m *Match) Join(participant string, sink Sink) error {
	return m.SubmitEvent(Event{Type: EventJoin, Participant: participant, Sink: sink})
}

func (m *Match) Spectate(sink Sink) error {
	return m.SubmitEvent(Event{Type: EventSpectate, Sink: sink})
}

func (m *Match) Leave(participant string, sink Sink) error {
	return m.SubmitEvent(Event{Type: EventLeave, Participant: participant, Sink: sink})
}

func (m *Match) Ready(participant string) error {
	return m.SubmitEvent(Event{Type: EventReady, Participant: participant})
}

func (m *Match) SubmitIntent(participant string, sink Sink, seq uint64, in tetris.Intent) error {
	return m.SubmitEvent(Event{Type: EventIntent, Participant: participant, Sink: sink, Seq: seq, Intent: in})
}

func (m *Match) Ack(sink Sink, board string, seq uint64) error {
	return m.SubmitEvent(Event{Type: EventAck, Sink: sink, Board: board, Seq: seq})
}

func (m *Match) RequestSnapshot(sink Sink, board string) error {
	return m.SubmitEvent(Event{Type: EventSnapshotRequest, Sink: sink, Board: board})
}

func (m *Match) FinishAck(participant string) error {
	return m.SubmitEvent(Event{Type: EventFinishAck, Participant: participant})
}

func (m *Match) ConnLost(sink Sink) error {
	return m.SubmitEvent(Event{Type: EventConnLost, Sink: sink})
}

// Abort ends the match with OutcomeAborted. Aborting a finished match is a
// no-op.
func (m *Match) Abort(reason string) error {
	return m.SubmitEvent(Event{Type: EventAbort, Reason: reason})
}

// Stop shuts the actor down without deciding an outcome.
func (m *Match) Stop() {
	m.mu.Lock()
	m.stopLocked()
	m.mu.Unlock()
	m.closeDone()
}

// stopLocked marks the match closed. The actor loop closes done once the
// current event or tick has been fully handled.
func (m *Match) stopLocked() {
	m.closed = true
}

func (m *Match) closeDone() {
	m.stopOnce.Do(func() {
		close(m.done)
		m.mu.RLock()
		state := m.state
		m.mu.RUnlock()
		m.log.Info("closed", zap.Stringer("state", state))
		if m.onClose != nil {
			go m.onClose(m.ID)
		}
	})
}

// Done is closed once the actor has stopped.
func (m *Match) Done() <-chan struct{} { return m.done }

func (m *Match) AddFinishHook(hook FinishHook) {
	if hook == nil {
		return
	}
	m.mu.Lock()
	m.finishHooks = append(m.finishHooks, hook)
	m.mu.Unlock()
}

func (m *Match) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// IsIdleFor reports whether the match is closed, or has been waiting with an
// empty roster for at least ttl.
func (m *Match) IsIdleFor(ttl time.Duration) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return true
	}
	if m.state != StateWaiting || len(m.roster) > 0 || m.emptySince.IsZero() {
		return false
	}
	return time.Since(m.emptySince) >= ttl
}

// Info is a point-in-time description of the match for listings.
type Info struct {
	ID           string          `json:"id"`
	State        State           `json:"state"`
	Participants []string        `json:"participants"`
	Spectators   int             `json:"spectators"`
	Capacity     int             `json:"capacity"`
	Tick         uint64          `json:"tick"`
	Outcome      results.Outcome `json:"outcome,omitempty"`
	Winner       string          `json:"winner,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (m *Match) Info() Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info := Info{
		ID:           m.ID,
		State:        m.state,
		Participants: append([]string{}, m.roster...),
		Capacity:     m.cfg.Capacity,
		Outcome:      m.outcome,
		Winner:       m.winner,
		CreatedAt:    m.createdAt,
	}
	for _, c := range m.conns {
		if c.spectator {
			info.Spectators++
		}
	}
	if m.arena != nil {
		info.Tick = m.arena.Tick()
	}
	return info
}

// HasRoom reports whether a new participant could join right now.
func (m *Match) HasRoom() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.closed && m.state == StateWaiting && len(m.roster) < m.cfg.Capacity
}

func (m *Match) Config() Config { return m.cfg }

// Summary returns the terminal record once the match has finished.
func (m *Match) Summary() (results.Summary, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.summary == nil {
		return results.Summary{}, false
	}
	return *m.summary, true
}
