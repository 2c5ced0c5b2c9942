package tetris

import (
	"errors"
	"fmt"
)

var (
	ErrToppedOut  = errors.New("board topped out")
	ErrBadGarbage = errors.New("invalid garbage instruction")
)

// InvariantError reports an internal inconsistency in a board. It is never
// caused by player input.
type InvariantError struct {
	Board  string
	Tick   uint64
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("board %s invariant violated at tick %d: %s", e.Board, e.Tick, e.Detail)
}
