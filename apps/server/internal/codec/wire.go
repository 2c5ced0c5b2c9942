package codec

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"tetris-lite/piece"
	"tetris-lite/tetris"
)

var (
	ErrMalformed      = errors.New("codec: malformed frame")
	ErrMissingPayload = errors.New("codec: envelope has no payload")
)

// Client envelope fields.
const (
	clientSeq             protowire.Number = 1
	clientJoin            protowire.Number = 10
	clientQuickMatch      protowire.Number = 11
	clientReady           protowire.Number = 12
	clientIntent          protowire.Number = 13
	clientAck             protowire.Number = 14
	clientSnapshotRequest protowire.Number = 15
	clientFinishAck       protowire.Number = 16
	clientLeave           protowire.Number = 17
)

// Server envelope fields.
const (
	serverMatchID      protowire.Number = 1
	serverBoard        protowire.Number = 2
	serverSeq          protowire.Number = 3
	serverTick         protowire.Number = 4
	serverTsMs         protowire.Number = 5
	serverSnapshot     protowire.Number = 10
	serverDelta        protowire.Number = 11
	serverMatchEvent   protowire.Number = 12
	serverJoinDeclined protowire.Number = 13
	serverError        protowire.Number = 14
)

// Board state fields shared by snapshot and delta messages.
const (
	boardPhase      protowire.Number = 1
	boardWidth      protowire.Number = 2
	boardHeight     protowire.Number = 3
	boardGrid       protowire.Number = 4
	boardActive     protowire.Number = 5
	boardHold       protowire.Number = 6
	boardHoldUsed   protowire.Number = 7
	boardPreview    protowire.Number = 8
	boardScore      protowire.Number = 9
	boardLevel      protowire.Number = 10
	boardLines      protowire.Number = 11
	boardCombo      protowire.Number = 12
	boardB2B        protowire.Number = 13
	boardPieces     protowire.Number = 14
	boardPending    protowire.Number = 15
	boardFrozen     protowire.Number = 16
	boardTopOut     protowire.Number = 17
	boardDigest     protowire.Number = 18
	deltaBaseSeq    protowire.Number = 20
	deltaRows       protowire.Number = 21
	rowY            protowire.Number = 1
	rowCells        protowire.Number = 2
	activeShape     protowire.Number = 1
	activeRot       protowire.Number = 2
	activeX         protowire.Number = 3
	activeY         protowire.Number = 4
	eventKind       protowire.Number = 1
	eventState      protowire.Number = 2
	eventMembers    protowire.Number = 3
	eventBoard      protowire.Number = 4
	eventRemaining  protowire.Number = 5
	eventWinner     protowire.Number = 6
	eventOutcome    protowire.Number = 7
	eventReason     protowire.Number = 8
	declinedMatchID protowire.Number = 1
	declinedReason  protowire.Number = 2
	errorCode       protowire.Number = 1
	errorMessage    protowire.Number = 2
	joinMatchID     protowire.Number = 1
	joinSpectate    protowire.Number = 2
	intentAction    protowire.Number = 1
	ackBoard        protowire.Number = 1
	ackSeq          protowire.Number = 2
	requestBoard    protowire.Number = 1
)

func EncodeClient(env ClientEnvelope) ([]byte, error) {
	var b []byte
	b = appendUint(b, clientSeq, env.Seq)
	switch p := env.Payload.(type) {
	case *Join:
		var m []byte
		m = appendString(m, joinMatchID, p.MatchID)
		m = appendBool(m, joinSpectate, p.Spectate)
		b = appendMessage(b, clientJoin, m)
	case *QuickMatch:
		b = appendMessage(b, clientQuickMatch, nil)
	case *Ready:
		b = appendMessage(b, clientReady, nil)
	case *Intent:
		b = appendMessage(b, clientIntent, appendUint(nil, intentAction, uint64(p.Action)))
	case *Ack:
		var m []byte
		m = appendString(m, ackBoard, p.Board)
		m = appendUint(m, ackSeq, p.Seq)
		b = appendMessage(b, clientAck, m)
	case *SnapshotRequest:
		b = appendMessage(b, clientSnapshotRequest, appendString(nil, requestBoard, p.Board))
	case *FinishAck:
		b = appendMessage(b, clientFinishAck, nil)
	case *Leave:
		b = appendMessage(b, clientLeave, nil)
	default:
		return nil, ErrMissingPayload
	}
	return b, nil
}

func DecodeClient(data []byte) (ClientEnvelope, error) {
	var env ClientEnvelope
	r := fieldReader{buf: data}
	for !r.done() {
		num, typ, err := r.next()
		if err != nil {
			return env, err
		}
		switch num {
		case clientSeq:
			env.Seq, err = r.uint(typ)
		case clientJoin:
			env.Payload, err = r.sub(typ, decodeJoin)
		case clientQuickMatch:
			env.Payload, err = r.sub(typ, func(fieldReader) (ClientPayload, error) { return &QuickMatch{}, nil })
		case clientReady:
			env.Payload, err = r.sub(typ, func(fieldReader) (ClientPayload, error) { return &Ready{}, nil })
		case clientIntent:
			env.Payload, err = r.sub(typ, decodeIntent)
		case clientAck:
			env.Payload, err = r.sub(typ, decodeAck)
		case clientSnapshotRequest:
			env.Payload, err = r.sub(typ, decodeSnapshotRequest)
		case clientFinishAck:
			env.Payload, err = r.sub(typ, func(fieldReader) (ClientPayload, error) { return &FinishAck{}, nil })
		case clientLeave:
			env.Payload, err = r.sub(typ, func(fieldReader) (ClientPayload, error) { return &Leave{}, nil })
		default:
			err = r.skip(num, typ)
		}
		if err != nil {
			return env, err
		}
	}
	if env.Payload == nil {
		return env, ErrMissingPayload
	}
	return env, nil
}

func decodeJoin(r fieldReader) (ClientPayload, error) {
	p := &Join{}
	return p, r.each(func(num protowire.Number, typ protowire.Type) (err error) {
		switch num {
		case joinMatchID:
			p.MatchID, err = r.string(typ)
		case joinSpectate:
			p.Spectate, err = r.bool(typ)
		default:
			err = r.skip(num, typ)
		}
		return err
	})
}

// decodeIntent accepts only the closed verb set; anything else is a
// malformed frame.
func decodeIntent(r fieldReader) (ClientPayload, error) {
	p := &Intent{}
	err := r.each(func(num protowire.Number, typ protowire.Type) error {
		if num != intentAction {
			return r.skip(num, typ)
		}
		v, err := r.uint(typ)
		if err != nil {
			return err
		}
		if v > math.MaxUint8 || !tetris.Intent(v).Valid() {
			return fmt.Errorf("%w: unknown intent action %d", ErrMalformed, v)
		}
		p.Action = tetris.Intent(v)
		return nil
	})
	if err == nil && p.Action == tetris.IntentNone {
		err = fmt.Errorf("%w: intent without action", ErrMalformed)
	}
	return p, err
}

func decodeAck(r fieldReader) (ClientPayload, error) {
	p := &Ack{}
	return p, r.each(func(num protowire.Number, typ protowire.Type) (err error) {
		switch num {
		case ackBoard:
			p.Board, err = r.string(typ)
		case ackSeq:
			p.Seq, err = r.uint(typ)
		default:
			err = r.skip(num, typ)
		}
		return err
	})
}

func decodeSnapshotRequest(r fieldReader) (ClientPayload, error) {
	p := &SnapshotRequest{}
	return p, r.each(func(num protowire.Number, typ protowire.Type) (err error) {
		if num != requestBoard {
			return r.skip(num, typ)
		}
		p.Board, err = r.string(typ)
		return err
	})
}

func EncodeServer(env ServerEnvelope) ([]byte, error) {
	var b []byte
	b = appendString(b, serverMatchID, env.MatchID)
	b = appendString(b, serverBoard, env.Board)
	b = appendUint(b, serverSeq, env.Seq)
	b = appendUint(b, serverTick, env.Tick)
	b = appendInt(b, serverTsMs, env.ServerTsMs)
	switch p := env.Payload.(type) {
	case *BoardSnapshot:
		s := p.Snapshot
		var m []byte
		m = appendUint(m, boardWidth, uint64(s.Width))
		m = appendUint(m, boardHeight, uint64(s.Height))
		m = appendCells(m, boardGrid, s.Grid)
		m = appendBoardState(m, stateOfSnapshot(s))
		b = appendMessage(b, serverSnapshot, m)
	case *BoardDelta:
		var m []byte
		m = appendUint(m, deltaBaseSeq, p.BaseSeq)
		for _, row := range p.Rows {
			var rm []byte
			rm = protowire.AppendTag(rm, rowY, protowire.VarintType)
			rm = protowire.AppendVarint(rm, uint64(row.Y))
			rm = appendCells(rm, rowCells, row.Cells)
			m = appendMessage(m, deltaRows, rm)
		}
		m = appendBoardState(m, stateOfDelta(p.Delta))
		b = appendMessage(b, serverDelta, m)
	case *MatchEvent:
		var m []byte
		m = appendUint(m, eventKind, uint64(p.Kind))
		m = appendString(m, eventState, p.State)
		for _, id := range p.Participants {
			m = protowire.AppendTag(m, eventMembers, protowire.BytesType)
			m = protowire.AppendString(m, id)
		}
		m = appendString(m, eventBoard, p.Board)
		m = appendUint(m, eventRemaining, p.Remaining)
		m = appendString(m, eventWinner, p.Winner)
		m = appendString(m, eventOutcome, p.Outcome)
		m = appendString(m, eventReason, p.Reason)
		b = appendMessage(b, serverMatchEvent, m)
	case *JoinDeclined:
		var m []byte
		m = appendString(m, declinedMatchID, p.MatchID)
		m = appendString(m, declinedReason, p.Reason)
		b = appendMessage(b, serverJoinDeclined, m)
	case *Error:
		var m []byte
		m = appendInt(m, errorCode, int64(p.Code))
		m = appendString(m, errorMessage, p.Message)
		b = appendMessage(b, serverError, m)
	default:
		return nil, ErrMissingPayload
	}
	return b, nil
}

// DecodeServer parses a server frame. Board and Tick from the envelope are
// copied into snapshot and delta payloads.
func DecodeServer(data []byte) (ServerEnvelope, error) {
	var env ServerEnvelope
	r := fieldReader{buf: data}
	for !r.done() {
		num, typ, err := r.next()
		if err != nil {
			return env, err
		}
		switch num {
		case serverMatchID:
			env.MatchID, err = r.string(typ)
		case serverBoard:
			env.Board, err = r.string(typ)
		case serverSeq:
			env.Seq, err = r.uint(typ)
		case serverTick:
			env.Tick, err = r.uint(typ)
		case serverTsMs:
			env.ServerTsMs, err = r.int(typ)
		case serverSnapshot:
			env.Payload, err = subServer(&r, typ, decodeSnapshot)
		case serverDelta:
			env.Payload, err = subServer(&r, typ, decodeDelta)
		case serverMatchEvent:
			env.Payload, err = subServer(&r, typ, decodeMatchEvent)
		case serverJoinDeclined:
			env.Payload, err = subServer(&r, typ, decodeJoinDeclined)
		case serverError:
			env.Payload, err = subServer(&r, typ, decodeError)
		default:
			err = r.skip(num, typ)
		}
		if err != nil {
			return env, err
		}
	}
	switch p := env.Payload.(type) {
	case nil:
		return env, ErrMissingPayload
	case *BoardSnapshot:
		p.Board, p.Tick = env.Board, env.Tick
	case *BoardDelta:
		p.Tick = env.Tick
	}
	return env, nil
}

func subServer(r *fieldReader, typ protowire.Type, fn func(fieldReader) (ServerPayload, error)) (ServerPayload, error) {
	b, err := r.bytes(typ)
	if err != nil {
		return nil, err
	}
	return fn(fieldReader{buf: b})
}

func decodeSnapshot(r fieldReader) (ServerPayload, error) {
	p := &BoardSnapshot{}
	var st boardState
	err := r.each(func(num protowire.Number, typ protowire.Type) error {
		switch num {
		case boardWidth:
			v, err := r.uint(typ)
			p.Width = int(v)
			return err
		case boardHeight:
			v, err := r.uint(typ)
			p.Height = int(v)
			return err
		case boardGrid:
			b, err := r.bytes(typ)
			p.Grid = cellsOf(b)
			return err
		}
		return st.decodeField(&r, num, typ)
	})
	if err != nil {
		return nil, err
	}
	if len(p.Grid) != p.Width*p.Height {
		return nil, fmt.Errorf("%w: grid has %d cells for %dx%d", ErrMalformed, len(p.Grid), p.Width, p.Height)
	}
	st.toSnapshot(&p.Snapshot)
	return p, nil
}

func decodeDelta(r fieldReader) (ServerPayload, error) {
	p := &BoardDelta{}
	var st boardState
	err := r.each(func(num protowire.Number, typ protowire.Type) error {
		switch num {
		case deltaBaseSeq:
			v, err := r.uint(typ)
			p.BaseSeq = v
			return err
		case deltaRows:
			b, err := r.bytes(typ)
			if err != nil {
				return err
			}
			row, err := decodeRow(fieldReader{buf: b})
			p.Rows = append(p.Rows, row)
			return err
		}
		return st.decodeField(&r, num, typ)
	})
	if err != nil {
		return nil, err
	}
	st.toDelta(&p.Delta)
	return p, nil
}

func decodeRow(r fieldReader) (tetris.RowPatch, error) {
	var row tetris.RowPatch
	err := r.each(func(num protowire.Number, typ protowire.Type) error {
		switch num {
		case rowY:
			v, err := r.uint(typ)
			row.Y = int(v)
			return err
		case rowCells:
			b, err := r.bytes(typ)
			row.Cells = cellsOf(b)
			return err
		}
		return r.skip(num, typ)
	})
	return row, err
}

func decodeMatchEvent(r fieldReader) (ServerPayload, error) {
	p := &MatchEvent{}
	return p, r.each(func(num protowire.Number, typ protowire.Type) (err error) {
		switch num {
		case eventKind:
			var v uint64
			v, err = r.uint(typ)
			p.Kind = EventKind(v)
		case eventState:
			p.State, err = r.string(typ)
		case eventMembers:
			var id string
			id, err = r.string(typ)
			p.Participants = append(p.Participants, id)
		case eventBoard:
			p.Board, err = r.string(typ)
		case eventRemaining:
			p.Remaining, err = r.uint(typ)
		case eventWinner:
			p.Winner, err = r.string(typ)
		case eventOutcome:
			p.Outcome, err = r.string(typ)
		case eventReason:
			p.Reason, err = r.string(typ)
		default:
			err = r.skip(num, typ)
		}
		return err
	})
}

func decodeJoinDeclined(r fieldReader) (ServerPayload, error) {
	p := &JoinDeclined{}
	return p, r.each(func(num protowire.Number, typ protowire.Type) (err error) {
		switch num {
		case declinedMatchID:
			p.MatchID, err = r.string(typ)
		case declinedReason:
			p.Reason, err = r.string(typ)
		default:
			err = r.skip(num, typ)
		}
		return err
	})
}

func decodeError(r fieldReader) (ServerPayload, error) {
	p := &Error{}
	return p, r.each(func(num protowire.Number, typ protowire.Type) (err error) {
		switch num {
		case errorCode:
			var v int64
			v, err = r.int(typ)
			p.Code = ErrorCode(v)
		case errorMessage:
			p.Message, err = r.string(typ)
		default:
			err = r.skip(num, typ)
		}
		return err
	})
}

// boardState is the field set snapshots and deltas have in common.
type boardState struct {
	Phase        tetris.Phase
	Active       tetris.ActivePiece
	Hold         piece.Shape
	HoldUsed     bool
	Preview      []piece.Shape
	Score        int64
	Level        int
	Lines        int
	Combo        int
	BackToBack   int
	Pieces       int
	PendingRows  int
	Frozen       bool
	TopOutReason string
	Digest       uint64
}

func stateOfSnapshot(s tetris.Snapshot) boardState {
	return boardState{
		Phase: s.Phase, Active: s.Active, Hold: s.Hold, HoldUsed: s.HoldUsed, Preview: s.Preview,
		Score: s.Score, Level: s.Level, Lines: s.Lines, Combo: s.Combo, BackToBack: s.BackToBack,
		Pieces: s.Pieces, PendingRows: s.PendingRows, Frozen: s.Frozen, TopOutReason: s.TopOutReason,
		Digest: s.Digest,
	}
}

func stateOfDelta(d tetris.Delta) boardState {
	return boardState{
		Phase: d.Phase, Active: d.Active, Hold: d.Hold, HoldUsed: d.HoldUsed, Preview: d.Preview,
		Score: d.Score, Level: d.Level, Lines: d.Lines, Combo: d.Combo, BackToBack: d.BackToBack,
		Pieces: d.Pieces, PendingRows: d.PendingRows, Frozen: d.Frozen, TopOutReason: d.TopOutReason,
		Digest: d.Digest,
	}
}

func (st boardState) toSnapshot(s *tetris.Snapshot) {
	s.Phase, s.Active, s.Hold, s.HoldUsed, s.Preview = st.Phase, st.Active, st.Hold, st.HoldUsed, st.Preview
	s.Score, s.Level, s.Lines, s.Combo, s.BackToBack = st.Score, st.Level, st.Lines, st.Combo, st.BackToBack
	s.Pieces, s.PendingRows, s.Frozen, s.TopOutReason, s.Digest = st.Pieces, st.PendingRows, st.Frozen, st.TopOutReason, st.Digest
}

func (st boardState) toDelta(d *tetris.Delta) {
	d.Phase, d.Active, d.Hold, d.HoldUsed, d.Preview = st.Phase, st.Active, st.Hold, st.HoldUsed, st.Preview
	d.Score, d.Level, d.Lines, d.Combo, d.BackToBack = st.Score, st.Level, st.Lines, st.Combo, st.BackToBack
	d.Pieces, d.PendingRows, d.Frozen, d.TopOutReason, d.Digest = st.Pieces, st.PendingRows, st.Frozen, st.TopOutReason, st.Digest
}

func appendBoardState(b []byte, st boardState) []byte {
	b = appendUint(b, boardPhase, uint64(st.Phase))
	if st.Active.Shape.Valid() {
		var m []byte
		m = appendUint(m, activeShape, uint64(st.Active.Shape))
		m = appendUint(m, activeRot, uint64(st.Active.Rot))
		m = protowire.AppendTag(m, activeX, protowire.VarintType)
		m = protowire.AppendVarint(m, protowire.EncodeZigZag(int64(st.Active.X)))
		m = protowire.AppendTag(m, activeY, protowire.VarintType)
		m = protowire.AppendVarint(m, protowire.EncodeZigZag(int64(st.Active.Y)))
		b = appendMessage(b, boardActive, m)
	}
	b = appendUint(b, boardHold, uint64(st.Hold))
	b = appendBool(b, boardHoldUsed, st.HoldUsed)
	if len(st.Preview) > 0 {
		p := make([]byte, len(st.Preview))
		for i, s := range st.Preview {
			p[i] = byte(s)
		}
		b = protowire.AppendTag(b, boardPreview, protowire.BytesType)
		b = protowire.AppendBytes(b, p)
	}
	b = appendInt(b, boardScore, st.Score)
	b = appendUint(b, boardLevel, uint64(st.Level))
	b = appendUint(b, boardLines, uint64(st.Lines))
	b = appendUint(b, boardCombo, uint64(st.Combo))
	b = appendUint(b, boardB2B, uint64(st.BackToBack))
	b = appendUint(b, boardPieces, uint64(st.Pieces))
	b = appendUint(b, boardPending, uint64(st.PendingRows))
	b = appendBool(b, boardFrozen, st.Frozen)
	b = appendString(b, boardTopOut, st.TopOutReason)
	b = protowire.AppendTag(b, boardDigest, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, st.Digest)
	return b
}

func (st *boardState) decodeField(r *fieldReader, num protowire.Number, typ protowire.Type) (err error) {
	var v uint64
	switch num {
	case boardPhase:
		v, err = r.uint(typ)
		st.Phase = tetris.Phase(v)
	case boardActive:
		var b []byte
		if b, err = r.bytes(typ); err == nil {
			st.Active, err = decodeActive(fieldReader{buf: b})
		}
	case boardHold:
		v, err = r.uint(typ)
		st.Hold = piece.Shape(v)
	case boardHoldUsed:
		st.HoldUsed, err = r.bool(typ)
	case boardPreview:
		var b []byte
		b, err = r.bytes(typ)
		st.Preview = make([]piece.Shape, len(b))
		for i := range b {
			st.Preview[i] = piece.Shape(b[i])
		}
	case boardScore:
		st.Score, err = r.int(typ)
	case boardLevel:
		v, err = r.uint(typ)
		st.Level = int(v)
	case boardLines:
		v, err = r.uint(typ)
		st.Lines = int(v)
	case boardCombo:
		v, err = r.uint(typ)
		st.Combo = int(v)
	case boardB2B:
		v, err = r.uint(typ)
		st.BackToBack = int(v)
	case boardPieces:
		v, err = r.uint(typ)
		st.Pieces = int(v)
	case boardPending:
		v, err = r.uint(typ)
		st.PendingRows = int(v)
	case boardFrozen:
		st.Frozen, err = r.bool(typ)
	case boardTopOut:
		st.TopOutReason, err = r.string(typ)
	case boardDigest:
		st.Digest, err = r.fixed64(typ)
	default:
		err = r.skip(num, typ)
	}
	return err
}

func decodeActive(r fieldReader) (tetris.ActivePiece, error) {
	var a tetris.ActivePiece
	err := r.each(func(num protowire.Number, typ protowire.Type) error {
		if num < activeShape || num > activeY {
			return r.skip(num, typ)
		}
		v, err := r.uint(typ)
		if err != nil {
			return err
		}
		switch num {
		case activeShape:
			a.Shape = piece.Shape(v)
		case activeRot:
			a.Rot = piece.Rotation(v)
		case activeX:
			a.X = int(protowire.DecodeZigZag(v))
		case activeY:
			a.Y = int(protowire.DecodeZigZag(v))
		}
		return nil
	})
	return a, err
}

func cellsOf(b []byte) []tetris.Cell {
	out := make([]tetris.Cell, len(b))
	for i := range b {
		out[i] = tetris.Cell(b[i])
	}
	return out
}

func appendCells(b []byte, num protowire.Number, cells []tetris.Cell) []byte {
	raw := make([]byte, len(cells))
	for i, c := range cells {
		raw[i] = byte(c)
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, raw)
}

// Zero scalars are omitted, as proto3 does.

func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendInt(b []byte, num protowire.Number, v int64) []byte {
	return appendUint(b, num, uint64(v))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	return appendUint(b, num, 1)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendMessage(b []byte, num protowire.Number, m []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m)
}

type fieldReader struct {
	buf []byte
}

func (r *fieldReader) done() bool { return len(r.buf) == 0 }

func (r *fieldReader) next() (protowire.Number, protowire.Type, error) {
	num, typ, n := protowire.ConsumeTag(r.buf)
	if n < 0 {
		return 0, 0, wireErr(n)
	}
	r.buf = r.buf[n:]
	return num, typ, nil
}

func (r *fieldReader) each(fn func(protowire.Number, protowire.Type) error) error {
	for !r.done() {
		num, typ, err := r.next()
		if err != nil {
			return err
		}
		if err := fn(num, typ); err != nil {
			return err
		}
	}
	return nil
}

func (r *fieldReader) uint(typ protowire.Type) (uint64, error) {
	if typ != protowire.VarintType {
		return 0, fmt.Errorf("%w: want varint, got wire type %d", ErrMalformed, typ)
	}
	v, n := protowire.ConsumeVarint(r.buf)
	if n < 0 {
		return 0, wireErr(n)
	}
	r.buf = r.buf[n:]
	return v, nil
}

func (r *fieldReader) int(typ protowire.Type) (int64, error) {
	v, err := r.uint(typ)
	return int64(v), err
}

func (r *fieldReader) bool(typ protowire.Type) (bool, error) {
	v, err := r.uint(typ)
	return v != 0, err
}

func (r *fieldReader) fixed64(typ protowire.Type) (uint64, error) {
	if typ != protowire.Fixed64Type {
		return 0, fmt.Errorf("%w: want fixed64, got wire type %d", ErrMalformed, typ)
	}
	v, n := protowire.ConsumeFixed64(r.buf)
	if n < 0 {
		return 0, wireErr(n)
	}
	r.buf = r.buf[n:]
	return v, nil
}

// bytes returns a copy so decoded values never alias the frame buffer.
func (r *fieldReader) bytes(typ protowire.Type) ([]byte, error) {
	if typ != protowire.BytesType {
		return nil, fmt.Errorf("%w: want bytes, got wire type %d", ErrMalformed, typ)
	}
	v, n := protowire.ConsumeBytes(r.buf)
	if n < 0 {
		return nil, wireErr(n)
	}
	r.buf = r.buf[n:]
	return append([]byte(nil), v...), nil
}

func (r *fieldReader) string(typ protowire.Type) (string, error) {
	b, err := r.bytes(typ)
	return string(b), err
}

func (r *fieldReader) sub(typ protowire.Type, fn func(fieldReader) (ClientPayload, error)) (ClientPayload, error) {
	b, err := r.bytes(typ)
	if err != nil {
		return nil, err
	}
	return fn(fieldReader{buf: b})
}

func (r *fieldReader) skip(num protowire.Number, typ protowire.Type) error {
	n := protowire.ConsumeFieldValue(num, typ, r.buf)
	if n < 0 {
		return wireErr(n)
	}
	r.buf = r.buf[n:]
	return nil
}

func wireErr(n int) error {
	return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
}
