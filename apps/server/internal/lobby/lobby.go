// Package lobby is the registry of live matches: it creates them, routes
// joins and quick-match requests, and drops matches once they close.
package lobby

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"tetris-lite/apps/server/internal/match"
	"tetris-lite/apps/server/internal/results"
)

var ErrShutdown = errors.New("lobby shutting down")

const (
	defaultIdleTTL       = 5 * time.Minute
	defaultSweepInterval = 30 * time.Second
	saveTimeout          = 5 * time.Second
)

type Options struct {
	Config   match.Config
	Store    results.Store
	Logger   *zap.Logger
	Reporter match.Reporter
	// IdleTTL is how long a waiting match may sit with no participants.
	IdleTTL       time.Duration
	SweepInterval time.Duration
	// Ticks drives every match created by this lobby instead of a
	// wall-clock ticker. Used by tests.
	Ticks <-chan time.Time
}

// Lobby manages all matches and which match each participant is bound to.
type Lobby struct {
	mu            sync.RWMutex
	matches       map[string]*match.Match
	order         []string
	byParticipant map[string]string
	joining       map[string]bool
	closed        bool

	// saveMu orders finish-hook saves against Shutdown; saves counts the
	// ones in flight.
	saveMu     sync.Mutex
	saves      sync.WaitGroup
	savesEnded bool

	opts Options
	log  *zap.Logger

	sweepOnce sync.Once
	stopSweep chan struct{}
	sweepDone chan struct{}
}

func New(opts Options) *Lobby {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Store == nil {
		opts.Store = results.NewMemoryStore(0)
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = defaultIdleTTL
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaultSweepInterval
	}
	return &Lobby{
		matches:       make(map[string]*match.Match),
		byParticipant: make(map[string]string),
		joining:       make(map[string]bool),
		opts:          opts,
		log:           opts.Logger.Named("lobby"),
		stopSweep:     make(chan struct{}),
		sweepDone:     make(chan struct{}),
	}
}

// Create starts a new waiting match with the lobby's default config.
func (l *Lobby) Create() (*match.Match, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.createLocked()
}

func (l *Lobby) createLocked() (*match.Match, error) {
	if l.closed {
		return nil, ErrShutdown
	}
	id := uuid.NewString()
	m, err := match.New(id, l.opts.Config, match.Deps{
		Logger:   l.opts.Logger,
		Reporter: l.opts.Reporter,
		OnClose:  l.remove,
		Ticks:    l.opts.Ticks,
	})
	if err != nil {
		return nil, err
	}
	m.AddFinishHook(l.saveSummary)
	l.matches[id] = m
	l.order = append(l.order, id)
	l.sweepOnce.Do(func() { go l.sweep() })
	l.log.Info("match created", zap.String("match", id), zap.Int("live", len(l.matches)))
	return m, nil
}

// Join binds participant to the match with the given id.
func (l *Lobby) Join(matchID, participant string, sink match.Sink) (*match.Match, error) {
	if err := l.beginJoin(participant); err != nil {
		return nil, err
	}
	bound := ""
	defer func() { l.endJoin(participant, bound) }()

	l.mu.Lock()
	m, ok := l.matches[matchID]
	var other *match.Match
	if ok {
		other = l.boundMatchLocked(participant)
	}
	l.mu.Unlock()
	if !ok {
		return nil, &match.DeclineError{Reason: match.DeclineNotFound}
	}
	if other != nil && other != m {
		return nil, &match.DeclineError{Reason: match.DeclineDuplicate}
	}
	if err := m.Join(participant, sink); err != nil {
		return nil, err
	}
	bound = matchID
	return m, nil
}

// QuickMatch resumes the participant's current match, or joins the oldest
// waiting match with room, or creates one.
func (l *Lobby) QuickMatch(participant string, sink match.Sink) (*match.Match, error) {
	if err := l.beginJoin(participant); err != nil {
		return nil, err
	}
	bound := ""
	defer func() { l.endJoin(participant, bound) }()

	l.mu.Lock()
	current := l.boundMatchLocked(participant)
	var candidates []*match.Match
	if current == nil {
		for _, id := range l.order {
			if m := l.matches[id]; m != nil {
				candidates = append(candidates, m)
			}
		}
	}
	l.mu.Unlock()

	if current != nil {
		if err := current.Join(participant, sink); err != nil {
			return nil, err
		}
		bound = current.ID
		return current, nil
	}

	for _, m := range candidates {
		if !m.HasRoom() {
			continue
		}
		err := m.Join(participant, sink)
		var de *match.DeclineError
		if errors.As(err, &de) || errors.Is(err, match.ErrMatchClosed) {
			continue
		}
		if err != nil {
			return nil, err
		}
		bound = m.ID
		l.log.Info("quick match joined", zap.String("participant", participant), zap.String("match", m.ID))
		return m, nil
	}

	m, err := l.Create()
	if err != nil {
		return nil, err
	}
	if err := m.Join(participant, sink); err != nil {
		return nil, err
	}
	bound = m.ID
	return m, nil
}

// beginJoin reserves participant for one join at a time so the registry lock
// need not be held while the match handles the request.
func (l *Lobby) beginJoin(participant string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrShutdown
	}
	if l.joining[participant] {
		return &match.DeclineError{Reason: match.DeclineDuplicate}
	}
	l.joining[participant] = true
	return nil
}

// endJoin releases the reservation and records the binding if the match is
// still registered.
func (l *Lobby) endJoin(participant, matchID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.joining, participant)
	if matchID == "" {
		return
	}
	if _, ok := l.matches[matchID]; ok {
		l.byParticipant[participant] = matchID
	}
}

// boundMatchLocked returns the live match the participant still belongs to.
// Bindings are checked lazily: a participant that left before the start or a
// closed match frees the binding.
func (l *Lobby) boundMatchLocked(participant string) *match.Match {
	id, ok := l.byParticipant[participant]
	if !ok {
		return nil
	}
	m := l.matches[id]
	if m != nil && !m.IsClosed() {
		info := m.Info()
		if info.State != match.StateFinished {
			for _, p := range info.Participants {
				if p == participant {
					return m
				}
			}
		}
	}
	delete(l.byParticipant, participant)
	return nil
}

func (l *Lobby) Spectate(matchID string, sink match.Sink) (*match.Match, error) {
	m := l.Get(matchID)
	if m == nil {
		return nil, &match.DeclineError{Reason: match.DeclineNotFound}
	}
	return m, m.Spectate(sink)
}

func (l *Lobby) Get(matchID string) *match.Match {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.matches[matchID]
}

// List returns live matches, oldest first.
func (l *Lobby) List() []match.Info {
	l.mu.RLock()
	ms := make([]*match.Match, 0, len(l.matches))
	for _, id := range l.order {
		if m := l.matches[id]; m != nil {
			ms = append(ms, m)
		}
	}
	l.mu.RUnlock()

	out := make([]match.Info, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.Info())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Abort ends a match administratively.
func (l *Lobby) Abort(matchID, reason string) error {
	m := l.Get(matchID)
	if m == nil {
		return &match.DeclineError{Reason: match.DeclineNotFound}
	}
	return m.Abort(reason)
}

func (l *Lobby) remove(matchID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.matches[matchID]; !ok {
		return
	}
	delete(l.matches, matchID)
	for i, id := range l.order {
		if id == matchID {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	for p, id := range l.byParticipant {
		if id == matchID {
			delete(l.byParticipant, p)
		}
	}
	l.log.Info("match removed", zap.String("match", matchID), zap.Int("live", len(l.matches)))
	if len(l.matches) == 0 {
		l.log.Debug("lobby idle")
	}
}

func (l *Lobby) saveSummary(s results.Summary) {
	if len(s.Participants) == 0 {
		return
	}
	l.saveMu.Lock()
	if l.savesEnded {
		l.saveMu.Unlock()
		return
	}
	l.saves.Add(1)
	l.saveMu.Unlock()
	defer l.saves.Done()

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := l.opts.Store.Save(ctx, s); err != nil {
		l.log.Error("save result failed", zap.String("match", s.MatchID), zap.Error(err))
	}
}

func (l *Lobby) sweep() {
	defer close(l.sweepDone)
	ticker := time.NewTicker(l.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweepIdle()
		case <-l.stopSweep:
			return
		}
	}
}

func (l *Lobby) sweepIdle() {
	l.mu.RLock()
	var idle []*match.Match
	for _, m := range l.matches {
		if m.IsIdleFor(l.opts.IdleTTL) {
			idle = append(idle, m)
		}
	}
	l.mu.RUnlock()
	for _, m := range idle {
		l.log.Info("closing idle match", zap.String("match", m.ID))
		m.Stop()
	}
}

// Shutdown aborts every live match, saves their summaries, waits for finish
// hooks still saving and stops the sweeper. The results store is left open
// for the caller to close.
func (l *Lobby) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	ms := make([]*match.Match, 0, len(l.matches))
	for _, id := range l.order {
		ms = append(ms, l.matches[id])
	}
	l.mu.Unlock()

	close(l.stopSweep)
	var errs error
	for _, m := range ms {
		if err := m.Abort("shutdown"); err != nil && !errors.Is(err, match.ErrMatchClosed) {
			errs = multierr.Append(errs, err)
		}
		if s, ok := m.Summary(); ok && len(s.Participants) > 0 {
			if err := l.opts.Store.Save(ctx, s); err != nil {
				errs = multierr.Append(errs, err)
			}
		}
		m.Stop()
	}

	l.saveMu.Lock()
	l.savesEnded = true
	l.saveMu.Unlock()
	saved := make(chan struct{})
	go func() {
		l.saves.Wait()
		close(saved)
	}()
	select {
	case <-saved:
	case <-ctx.Done():
		errs = multierr.Append(errs, ctx.Err())
	}

	l.sweepOnce.Do(func() { close(l.sweepDone) })
	select {
	case <-l.sweepDone:
	case <-ctx.Done():
		errs = multierr.Append(errs, ctx.Err())
	}
	l.log.Info("lobby shut down", zap.Int("matches", len(ms)))
	return errs
}
