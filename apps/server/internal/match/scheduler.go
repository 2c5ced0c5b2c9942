package match

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"tetris-lite/apps/server/internal/codec"
	"tetris-lite/apps/server/internal/results"
	"tetris-lite/arena"
	"tetris-lite/replay"
	"tetris-lite/tetris"
)

// tick is one scheduler beat. Only the running state advances the
// simulation; the other states count down their own timers.
func (m *Match) tick() {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.recoverLocked(nil)

	if m.closed {
		return
	}
	switch m.state {
	case StateCountdown:
		m.countdown--
		if m.countdown == 0 {
			m.startLocked()
			return
		}
		if m.countdown%uint64(m.cfg.TickRate) == 0 {
			m.broadcastEvent(codec.MatchEvent{Kind: codec.EventCountdown, Remaining: m.countdown})
		}
	case StateRunning:
		m.stepLocked()
	case StateFinished:
		if m.lingerLeft > 0 {
			m.lingerLeft--
		}
		if m.lingerLeft == 0 {
			m.stopLocked()
		}
	}
}

func (m *Match) startConditionLocked() bool {
	n := len(m.roster)
	if n == 0 {
		return false
	}
	if n >= m.cfg.Capacity {
		return true
	}
	if n < m.cfg.MinPlayers {
		return false
	}
	for _, id := range m.roster {
		if !m.members[id].ready {
			return false
		}
	}
	return true
}

func (m *Match) maybeStartCountdownLocked() {
	if m.state != StateWaiting || !m.startConditionLocked() {
		return
	}
	if m.cfg.CountdownTicks == 0 {
		m.startLocked()
		return
	}
	m.state = StateCountdown
	m.countdown = m.cfg.CountdownTicks
	m.broadcastEvent(codec.MatchEvent{Kind: codec.EventCountdown, Remaining: m.countdown})
	m.log.Info("countdown started", zap.Uint64("ticks", m.countdown), zap.Strings("roster", m.roster))
}

func (m *Match) startLocked() {
	seed := m.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	a, err := arena.New(arena.Config{
		Rules:          m.cfg.Rules,
		Attack:         m.cfg.Attack,
		Seed:           seed,
		SharedSequence: m.cfg.SharedSequence,
	}, m.roster)
	if err != nil {
		m.failLocked(fmt.Errorf("start: %w", err))
		return
	}
	m.arena = a
	m.state = StateRunning
	m.startedAt = time.Now()
	for _, snap := range a.Snapshots() {
		m.feeds[snap.Board] = &boardFeed{seq: 1, last: snap}
	}
	m.broadcastEvent(codec.MatchEvent{Kind: codec.EventStarted})
	for sink := range m.conns {
		m.sendSnapshotsLocked(sink, "")
	}
	m.log.Info("started", zap.Int64("seed", seed), zap.Strings("roster", m.roster))
}

func (m *Match) stepLocked() {
	inputs := m.inbox
	m.inbox = make(map[string][]tetris.Intent, len(inputs))
	rep, err := m.arena.Step(inputs)
	if err != nil {
		m.failLocked(err)
		return
	}
	m.publishBoardsLocked(rep.Tick)

	for _, g := range rep.Attacks {
		m.log.Debug("garbage sent",
			zap.String("source", g.Source),
			zap.String("target", g.Target),
			zap.Int("rows", g.Rows))
	}
	for _, id := range rep.ToppedOut {
		reason := ""
		if snap, ok := m.arena.Snapshot(id); ok {
			reason = snap.TopOutReason
		}
		m.broadcastEvent(codec.MatchEvent{Kind: codec.EventToppedOut, Board: id, Reason: reason})
		m.log.Info("board topped out", zap.String("board", id), zap.String("reason", reason), zap.Uint64("tick", rep.Tick))
	}
	if rep.Done {
		outcome, winner := outcomeOf(rep.Result)
		m.finishLocked(outcome, winner, "")
	}
}

func outcomeOf(r arena.Result) (results.Outcome, string) {
	switch {
	case r.Draw:
		return results.OutcomeDraw, ""
	case r.Winner != "":
		return results.OutcomeWin, r.Winner
	default:
		return results.OutcomeCompleted, ""
	}
}

// failLocked ends only this match after an internal error.
func (m *Match) failLocked(err error) {
	m.log.Error("match failed", zap.Error(err))
	if m.reporter != nil {
		m.reporter(m.ID, err)
	}
	if m.state == StateFinished {
		m.stopLocked()
		return
	}
	m.finishLocked(results.OutcomeError, "", err.Error())
}

func (m *Match) finishLocked(outcome results.Outcome, winner, reason string) {
	if m.state == StateFinished {
		return
	}
	m.state = StateFinished
	m.outcome = outcome
	m.winner = winner
	m.lingerLeft = m.cfg.lingerTicks()
	m.inbox = make(map[string][]tetris.Intent)

	summary := results.Summary{
		MatchID:      m.ID,
		Outcome:      outcome,
		Winner:       winner,
		Reason:       reason,
		Participants: append([]string{}, m.roster...),
		StartedAt:    m.startedAt,
		FinishedAt:   time.Now(),
	}
	if m.arena != nil {
		tape := replay.Record(m.ID, m.arena)
		summary.Ticks = m.arena.Tick()
		summary.Standings = m.arena.Standings()
		summary.Tape = &tape
	}

	m.summary = &summary

	m.broadcastEvent(codec.MatchEvent{
		Kind:         codec.EventFinished,
		Participants: summary.Participants,
		Winner:       winner,
		Outcome:      string(outcome),
		Reason:       reason,
	})
	m.log.Info("finished",
		zap.String("outcome", string(outcome)),
		zap.String("winner", winner),
		zap.String("reason", reason),
		zap.Uint64("ticks", summary.Ticks))
	m.dispatchFinishHooks(summary)
	m.maybeCloseFinishedLocked()
}

func (m *Match) dispatchFinishHooks(summary results.Summary) {
	hooks := append([]FinishHook(nil), m.finishHooks...)
	for _, hook := range hooks {
		go func(cb FinishHook) {
			defer func() {
				if r := recover(); r != nil {
					m.log.Error("finish hook panic", zap.Any("panic", r))
				}
			}()
			cb(summary)
		}(hook)
	}
}

// maybeCloseFinishedLocked stops the actor once every connected participant
// has acknowledged the result.
func (m *Match) maybeCloseFinishedLocked() {
	if m.state != StateFinished {
		return
	}
	for _, mem := range m.members {
		if mem.online && !mem.finishAck {
			return
		}
	}
	m.stopLocked()
}
