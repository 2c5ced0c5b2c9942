package match

import (
	"time"

	"go.uber.org/zap"

	"tetris-lite/apps/server/internal/codec"
	"tetris-lite/tetris"
)

func (m *Match) envelope(board string, seq uint64, payload codec.ServerPayload) codec.ServerEnvelope {
	env := codec.ServerEnvelope{
		MatchID:    m.ID,
		Board:      board,
		Seq:        seq,
		ServerTsMs: time.Now().UnixMilli(),
		Payload:    payload,
	}
	if m.arena != nil {
		env.Tick = m.arena.Tick()
	}
	return env
}

func (m *Match) stateEnvelope() codec.ServerEnvelope {
	return m.envelope("", 0, &codec.MatchEvent{
		Kind:         codec.EventState,
		State:        m.state.String(),
		Participants: append([]string{}, m.roster...),
		Remaining:    m.countdown,
		Winner:       m.winner,
		Outcome:      string(m.outcome),
	})
}

// broadcastEvent stamps the current state and participants on ev and sends
// it to every connection.
func (m *Match) broadcastEvent(ev codec.MatchEvent) {
	ev.State = m.state.String()
	if ev.Participants == nil {
		ev.Participants = append([]string{}, m.roster...)
	}
	m.fanout(m.envelope("", 0, &ev), false)
}

// fanout encodes once and offers the frame to each connection. Board frames
// skip stale connections; a dropped frame marks the connection stale.
func (m *Match) fanout(env codec.ServerEnvelope, boardFrame bool) {
	frame, err := codec.EncodeServer(env)
	if err != nil {
		m.log.Error("encode frame", zap.Error(err))
		return
	}
	for sink, c := range m.conns {
		if boardFrame && c.stale {
			continue
		}
		if !sink.Send(frame) {
			c.stale = true
		}
	}
}

func (m *Match) sendTo(sink Sink, env codec.ServerEnvelope) bool {
	frame, err := codec.EncodeServer(env)
	if err != nil {
		m.log.Error("encode frame", zap.Error(err))
		return false
	}
	ok := sink.Send(frame)
	if c, tracked := m.conns[sink]; tracked && !ok {
		c.stale = true
	}
	return ok
}

// sendSnapshotsLocked sends the last published state of one board, or of all
// boards in roster order, and clears the stale mark when all of them went out.
func (m *Match) sendSnapshotsLocked(sink Sink, board string) {
	if len(m.feeds) == 0 {
		return
	}
	ids := m.roster
	if board != "" {
		ids = []string{board}
	}
	ok := true
	for _, id := range ids {
		feed, found := m.feeds[id]
		if !found {
			continue
		}
		env := m.envelope(id, feed.seq, &codec.BoardSnapshot{Snapshot: feed.last})
		env.Tick = feed.last.Tick
		if !m.sendTo(sink, env) {
			ok = false
		}
	}
	if c, tracked := m.conns[sink]; tracked && ok && board == "" {
		c.stale = false
	}
}

// publishBoardsLocked emits one delta per board whose state changed in the
// step just taken.
func (m *Match) publishBoardsLocked(tick uint64) {
	for _, id := range m.roster {
		feed := m.feeds[id]
		snap, ok := m.arena.Snapshot(id)
		if !ok || feed == nil || snap.Digest == feed.last.Digest {
			continue
		}
		delta, err := tetris.Diff(feed.last, snap)
		if err != nil {
			m.log.Error("diff board", zap.String("board", id), zap.Error(err))
			continue
		}
		feed.seq++
		feed.last = snap
		env := m.envelope(id, feed.seq, &codec.BoardDelta{BaseSeq: feed.seq - 1, Delta: delta})
		env.Tick = tick
		m.fanout(env, true)
	}
}
