package piece

import "math/rand"

// BagState is the value form of a 7-bag: the shapes still to be dealt from
// the current permutation, front first.
type BagState struct {
	Remaining []Shape
}

// NextPiece deals one shape from state. When the bag is empty a fresh
// permutation of All is shuffled with rng first. The input state is not
// modified.
func NextPiece(state BagState, rng *rand.Rand) (Shape, BagState) {
	remaining := state.Remaining
	if len(remaining) == 0 {
		remaining = shuffled(rng)
	}
	next := make([]Shape, len(remaining)-1)
	copy(next, remaining[1:])
	return remaining[0], BagState{Remaining: next}
}

func shuffled(rng *rand.Rand) []Shape {
	bag := make([]Shape, len(All))
	copy(bag, All[:])
	rng.Shuffle(len(bag), func(i, j int) { bag[i], bag[j] = bag[j], bag[i] })
	return bag
}

// Bag is the stateful generator owned by one board.
type Bag struct {
	rng      *rand.Rand
	state    BagState
	sequence []Shape
	dealt    uint64
}

// NewBag returns a bag seeded with seed. Two bags with the same seed deal the
// same sequence.
func NewBag(seed int64) *Bag {
	return &Bag{rng: rand.New(rand.NewSource(seed))}
}

// NewSequenceBag deals the fixed sequence first and falls back to the seeded
// bag once it is exhausted. Invalid shapes in sequence are skipped.
func NewSequenceBag(seed int64, sequence []Shape) *Bag {
	b := NewBag(seed)
	for _, s := range sequence {
		if s.Valid() {
			b.sequence = append(b.sequence, s)
		}
	}
	return b
}

func (b *Bag) Next() Shape {
	b.dealt++
	if len(b.sequence) > 0 {
		s := b.sequence[0]
		b.sequence = b.sequence[1:]
		return s
	}
	var s Shape
	s, b.state = NextPiece(b.state, b.rng)
	return s
}

// Fill appends shapes to queue until it holds depth entries.
func (b *Bag) Fill(queue []Shape, depth int) []Shape {
	for len(queue) < depth {
		queue = append(queue, b.Next())
	}
	return queue
}

// Dealt reports how many shapes have been drawn so far.
func (b *Bag) Dealt() uint64 { return b.dealt }
