// Package codec defines the client/server frames of the synchronization
// protocol and their protobuf wire encoding.
package codec

import "tetris-lite/tetris"

// ClientEnvelope is one inbound frame. Seq must be strictly increasing per
// connection.
type ClientEnvelope struct {
	Seq     uint64
	Payload ClientPayload
}

type ClientPayload interface{ clientPayload() }

type Join struct {
	MatchID  string
	Spectate bool
}

type QuickMatch struct{}

type Ready struct{}

type Intent struct {
	Action tetris.Intent
}

type Ack struct {
	Board string
	Seq   uint64
}

// SnapshotRequest asks for a full resync of one board, or all boards when
// Board is empty.
type SnapshotRequest struct {
	Board string
}

type FinishAck struct{}

type Leave struct{}

func (*Join) clientPayload()            {}
func (*QuickMatch) clientPayload()      {}
func (*Ready) clientPayload()           {}
func (*Intent) clientPayload()          {}
func (*Ack) clientPayload()             {}
func (*SnapshotRequest) clientPayload() {}
func (*FinishAck) clientPayload()       {}
func (*Leave) clientPayload()           {}

// ServerEnvelope is one outbound frame. For snapshot and delta frames Seq is
// the per-board state sequence number.
type ServerEnvelope struct {
	MatchID    string
	Board      string
	Seq        uint64
	Tick       uint64
	ServerTsMs int64
	Payload    ServerPayload
}

type ServerPayload interface{ serverPayload() }

type BoardSnapshot struct {
	tetris.Snapshot
}

type BoardDelta struct {
	BaseSeq uint64
	tetris.Delta
}

type EventKind byte

const (
	EventUnknown EventKind = iota
	EventPlayerJoined
	EventPlayerLeft
	EventPlayerReady
	EventCountdown
	EventStarted
	EventFrozen
	EventResumed
	EventToppedOut
	EventFinished
	EventState
)

var EventKindDictionary = map[EventKind]string{
	EventPlayerJoined: "player_joined",
	EventPlayerLeft:   "player_left",
	EventPlayerReady:  "player_ready",
	EventCountdown:    "countdown",
	EventStarted:      "started",
	EventFrozen:       "frozen",
	EventResumed:      "resumed",
	EventToppedOut:    "topped_out",
	EventFinished:     "finished",
	EventState:        "state",
}

func (k EventKind) String() string {
	if s, ok := EventKindDictionary[k]; ok {
		return s
	}
	return "unknown"
}

// MatchEvent carries lifecycle changes. Remaining is in ticks for countdowns
// and grace windows.
type MatchEvent struct {
	Kind         EventKind
	State        string
	Participants []string
	Board        string
	Remaining    uint64
	Winner       string
	Outcome      string
	Reason       string
}

type JoinDeclined struct {
	MatchID string
	Reason  string
}

type ErrorCode int32

const (
	ErrorCodeUnknown ErrorCode = iota
	ErrorCodeMalformed
	ErrorCodeSequence
	ErrorCodeNotBound
	ErrorCodeRejected
	ErrorCodeInternal
)

type Error struct {
	Code    ErrorCode
	Message string
}

func (*BoardSnapshot) serverPayload() {}
func (*BoardDelta) serverPayload()    {}
func (*MatchEvent) serverPayload()    {}
func (*JoinDeclined) serverPayload()  {}
func (*Error) serverPayload()         {}
