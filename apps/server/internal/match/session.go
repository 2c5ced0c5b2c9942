package match

import (
	"time"

	"go.uber.org/zap"

	"tetris-lite/apps/server/internal/codec"
	"tetris-lite/apps/server/internal/results"
	"tetris-lite/tetris"
)

func (m *Match) handleJoin(participant string, sink Sink) error {
	if participant == "" || sink == nil {
		return ErrNotParticipant
	}
	if mem, ok := m.members[participant]; ok {
		if mem.online {
			if mem.sink == sink {
				return nil
			}
			return decline(DeclineDuplicate)
		}
		return m.resumeLocked(mem, sink)
	}

	switch {
	case m.state == StateFinished:
		return decline(DeclineFinished)
	case m.state != StateWaiting:
		return decline(DeclineStarted)
	case len(m.roster) >= m.cfg.Capacity:
		return decline(DeclineFull)
	}

	m.members[participant] = &member{id: participant, sink: sink, online: true}
	m.roster = append(m.roster, participant)
	m.conns[sink] = &conn{participant: participant}
	m.emptySince = time.Time{}
	m.log.Info("participant joined", zap.String("participant", participant), zap.Int("roster", len(m.roster)))

	m.broadcastEvent(codec.MatchEvent{Kind: codec.EventPlayerJoined, Board: participant})
	m.maybeStartCountdownLocked()
	return nil
}

// resumeLocked rebinds a participant whose connection dropped. The board is
// unfrozen and the new connection gets full snapshots. Intent sequence
// numbers are per connection, so the new one starts over.
func (m *Match) resumeLocked(mem *member, sink Sink) error {
	mem.sink = sink
	mem.online = true
	mem.lastSeq = 0
	m.conns[sink] = &conn{participant: mem.id}

	resumed := false
	if m.state == StateRunning {
		if snap, _ := m.arena.Snapshot(mem.id); snap.Frozen {
			if err := m.arena.Resume(mem.id); err != nil {
				return err
			}
			m.broadcastEvent(codec.MatchEvent{Kind: codec.EventResumed, Board: mem.id})
			resumed = true
		}
	}
	if !resumed {
		m.sendTo(sink, m.stateEnvelope())
	}
	m.sendSnapshotsLocked(sink, "")
	m.log.Info("participant resumed", zap.String("participant", mem.id))
	return nil
}

func (m *Match) handleSpectate(sink Sink) error {
	if sink == nil {
		return ErrNotParticipant
	}
	if c, ok := m.conns[sink]; ok && !c.spectator {
		return decline(DeclineDuplicate)
	}
	m.conns[sink] = &conn{spectator: true}
	m.sendTo(sink, m.stateEnvelope())
	m.sendSnapshotsLocked(sink, "")
	return nil
}

func (m *Match) handleLeave(participant string, sink Sink) error {
	c, ok := m.conns[sink]
	if !ok {
		return ErrNotParticipant
	}
	if c.spectator {
		delete(m.conns, sink)
		return nil
	}
	if participant != "" && participant != c.participant {
		return ErrNotParticipant
	}
	delete(m.conns, sink)
	mem := m.members[c.participant]

	switch m.state {
	case StateWaiting, StateCountdown:
		m.removeMemberLocked(mem.id)
	case StateRunning:
		mem.online = false
		if err := m.arena.Forfeit(mem.id); err != nil {
			return err
		}
		m.broadcastEvent(codec.MatchEvent{Kind: codec.EventPlayerLeft, Board: mem.id})
	case StateFinished:
		mem.online = false
		mem.finishAck = true
		m.maybeCloseFinishedLocked()
	}
	m.log.Info("participant left", zap.String("participant", mem.id), zap.Stringer("state", m.state))
	return nil
}

func (m *Match) handleConnLost(sink Sink) error {
	c, ok := m.conns[sink]
	if !ok {
		return nil
	}
	delete(m.conns, sink)
	if c.spectator {
		return nil
	}
	mem := m.members[c.participant]
	if mem == nil || mem.sink != sink {
		return nil
	}

	switch m.state {
	case StateWaiting, StateCountdown:
		m.removeMemberLocked(mem.id)
	case StateRunning:
		mem.online = false
		snap, _ := m.arena.Snapshot(mem.id)
		if snap.Phase == tetris.PhaseToppedOut {
			break
		}
		if err := m.arena.Freeze(mem.id, m.cfg.GraceTicks); err != nil {
			return err
		}
		m.broadcastEvent(codec.MatchEvent{Kind: codec.EventFrozen, Board: mem.id, Remaining: m.cfg.GraceTicks})
	case StateFinished:
		mem.online = false
		m.maybeCloseFinishedLocked()
	}
	m.log.Info("connection lost", zap.String("participant", mem.id), zap.Stringer("state", m.state))
	return nil
}

// removeMemberLocked drops a participant before the boards exist and cancels
// the countdown if the start condition no longer holds.
func (m *Match) removeMemberLocked(id string) {
	delete(m.members, id)
	for i, p := range m.roster {
		if p == id {
			m.roster = append(m.roster[:i], m.roster[i+1:]...)
			break
		}
	}
	m.broadcastEvent(codec.MatchEvent{Kind: codec.EventPlayerLeft, Board: id})
	if m.state == StateCountdown && !m.startConditionLocked() {
		m.state = StateWaiting
		m.countdown = 0
		m.broadcastEvent(codec.MatchEvent{Kind: codec.EventCountdown})
		m.log.Info("countdown cancelled", zap.Int("roster", len(m.roster)))
	}
	if len(m.roster) == 0 {
		m.emptySince = time.Now()
	}
}

func (m *Match) handleReady(participant string) error {
	mem, ok := m.members[participant]
	if !ok {
		return ErrNotParticipant
	}
	if m.state != StateWaiting {
		return ErrWrongState
	}
	if mem.ready {
		return nil
	}
	mem.ready = true
	m.broadcastEvent(codec.MatchEvent{Kind: codec.EventPlayerReady, Board: participant})
	m.maybeStartCountdownLocked()
	return nil
}

func (m *Match) handleIntent(participant string, sink Sink, seq uint64, in tetris.Intent) error {
	mem, ok := m.members[participant]
	if !ok || !mem.online || mem.sink != sink {
		return ErrNotParticipant
	}
	if !in.Valid() {
		return ErrBadIntent
	}
	if m.state != StateRunning {
		return ErrWrongState
	}
	// duplicate or reordered delivery on the current connection
	if seq <= mem.lastSeq {
		return nil
	}
	mem.lastSeq = seq
	if len(m.inbox[participant]) >= m.cfg.MaxIntentsPerTick {
		m.log.Debug("intent dropped, inbox full", zap.String("participant", participant))
		return nil
	}
	m.inbox[participant] = append(m.inbox[participant], in)
	return nil
}

// handleAck resynchronises a connection whose frames were dropped.
func (m *Match) handleAck(sink Sink, _ string, _ uint64) error {
	c, ok := m.conns[sink]
	if !ok {
		return ErrNotParticipant
	}
	if c.stale {
		m.sendSnapshotsLocked(sink, "")
	}
	return nil
}

func (m *Match) handleSnapshotRequest(sink Sink, board string) error {
	if _, ok := m.conns[sink]; !ok {
		return ErrNotParticipant
	}
	if board != "" {
		if _, ok := m.feeds[board]; !ok {
			return ErrNotParticipant
		}
	}
	m.sendSnapshotsLocked(sink, board)
	return nil
}

func (m *Match) handleFinishAck(participant string) error {
	mem, ok := m.members[participant]
	if !ok {
		return ErrNotParticipant
	}
	if m.state != StateFinished {
		return ErrWrongState
	}
	mem.finishAck = true
	m.maybeCloseFinishedLocked()
	return nil
}

func (m *Match) handleAbort(reason string) error {
	if m.state == StateFinished {
		return nil
	}
	if reason == "" {
		reason = "aborted"
	}
	m.finishLocked(results.OutcomeAborted, "", reason)
	return nil
}
