package codec

import (
	"errors"
	"fmt"
	"sort"

	"tetris-lite/tetris"
)

// ErrSequenceGap means a delta did not build on the replica's current state.
// The client should send a SnapshotRequest for that board.
var ErrSequenceGap = errors.New("codec: sequence gap")

type replicaBoard struct {
	snap tetris.Snapshot
	seq  uint64
}

// Replica is the client side of board synchronization: it folds snapshot and
// delta frames into per-board state. Not safe for concurrent use.
type Replica struct {
	boards map[string]*replicaBoard
}

func NewReplica() *Replica {
	return &Replica{boards: make(map[string]*replicaBoard)}
}

// Apply folds one frame in. Frames that are not board state are ignored, and
// so are deltas at or below the current sequence.
func (r *Replica) Apply(env ServerEnvelope) error {
	switch p := env.Payload.(type) {
	case *BoardSnapshot:
		if cur, ok := r.boards[env.Board]; ok && env.Seq < cur.seq {
			return nil
		}
		r.boards[env.Board] = &replicaBoard{snap: p.Snapshot, seq: env.Seq}
	case *BoardDelta:
		cur, ok := r.boards[env.Board]
		if !ok {
			return fmt.Errorf("%w: board %s has no base snapshot", ErrSequenceGap, env.Board)
		}
		if env.Seq <= cur.seq {
			return nil
		}
		if p.BaseSeq != cur.seq {
			return fmt.Errorf("%w: board %s at %d, delta based on %d", ErrSequenceGap, env.Board, cur.seq, p.BaseSeq)
		}
		next, err := cur.snap.ApplyDelta(p.Delta)
		if err != nil {
			return err
		}
		cur.snap, cur.seq = next, env.Seq
	}
	return nil
}

func (r *Replica) Board(id string) (tetris.Snapshot, uint64, bool) {
	b, ok := r.boards[id]
	if !ok {
		return tetris.Snapshot{}, 0, false
	}
	return b.snap, b.seq, true
}

func (r *Replica) Boards() []string {
	out := make([]string, 0, len(r.boards))
	for id := range r.boards {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Forget drops a board so the next snapshot is accepted whatever its sequence.
func (r *Replica) Forget(id string) {
	delete(r.boards, id)
}
