package stream

import (
	"fmt"
	"sort"
	"sync"

	"github.com/golang/glog"

	"github.com/Neumenon/jsox/jsox"
)

// Cursor tracks per-SID state for stream processing: sequence numbers,
// acknowledgements, the last decoded document with its state hash, and
// the JSOX parser session that keeps class definitions alive across the
// frames of one stream.
//
// The SID map is safe for concurrent use. A SIDState belongs to whoever
// processes that stream's frames.
type Cursor struct {
	mu      sync.RWMutex
	cursors map[uint64]*SIDState
	opts    []jsox.ParseOption
}

// SIDState holds state for a single stream ID.
type SIDState struct {
	SID       uint64
	LastSeq   uint64      // Last sequence number seen
	LastAcked uint64      // Last sequence number acknowledged
	StateHash [32]byte    // Hash of State (for base verification)
	HasState  bool        // Whether StateHash is valid
	State     *jsox.Value // Last decoded document
	Final     bool        // Whether stream has ended
	Docs      int         // Documents decoded so far

	parser *jsox.Parser
	values []*jsox.Value
}

// NewCursor creates a new stream cursor. The parse options apply to every
// per-stream parser session, e.g. jsox.WithRegistry for custom tags.
func NewCursor(opts ...jsox.ParseOption) *Cursor {
	return &Cursor{
		cursors: make(map[uint64]*SIDState),
		opts:    opts,
	}
}

// Get returns the state for a SID, creating it if needed.
func (c *Cursor) Get(sid uint64) *SIDState {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, ok := c.cursors[sid]
	if !ok {
		state = &SIDState{SID: sid}
		c.cursors[sid] = state
	}
	return state
}

// GetReadOnly returns the state for a SID without creating it.
func (c *Cursor) GetReadOnly(sid uint64) *SIDState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cursors[sid]
}

// Delete removes state for a SID, ending its parser session.
func (c *Cursor) Delete(sid uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cursors, sid)
}

// AllSIDs returns all tracked SIDs in ascending order.
func (c *Cursor) AllSIDs() []uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sids := make([]uint64, 0, len(c.cursors))
	for sid := range c.cursors {
		sids = append(sids, sid)
	}
	sort.Slice(sids, func(i, j int) bool { return sids[i] < sids[j] })
	return sids
}

// ProcessFrame checks a frame against cursor state and records it.
// Returns an error if:
//   - the stream already saw its final frame
//   - the sequence number is not monotonic (gap or duplicate)
//   - the frame carries a base hash that does not match the current state
//
// Control frames (ack, ping, pong) skip the sequence checks; an ack
// records its seq as acknowledged.
func (c *Cursor) ProcessFrame(frame *Frame) error {
	state := c.Get(frame.SID)

	if frame.Kind.IsControl() {
		if frame.Kind == KindAck {
			state.ack(frame.Seq)
		}
		return nil
	}
	if state.Final {
		return frameErr(frame, ErrStreamClosed)
	}

	if frame.Seq != 0 && frame.Seq <= state.LastSeq {
		return frameErr(frame, fmt.Errorf("%w: got %d, last was %d", ErrSequence, frame.Seq, state.LastSeq))
	}
	if state.LastSeq > 0 && frame.Seq != state.LastSeq+1 {
		return frameErr(frame, fmt.Errorf("%w: expected %d, got %d", ErrSequence, state.LastSeq+1, frame.Seq))
	}
	if err := state.checkBase(frame); err != nil {
		return err
	}

	state.LastSeq = frame.Seq
	if frame.IsFinal() {
		state.Final = true
	}
	return nil
}

// Decode processes a frame and decodes its payload. Doc frames go through
// the stream's parser session and become the stream's state; err frames
// are parsed on their own. Control frames and empty payloads yield nil.
func (c *Cursor) Decode(frame *Frame) (*jsox.Value, error) {
	if err := c.ProcessFrame(frame); err != nil {
		return nil, err
	}
	state := c.Get(frame.SID)
	return c.decodePayload(state, frame)
}

func (c *Cursor) decodePayload(state *SIDState, frame *Frame) (*jsox.Value, error) {
	if len(frame.Payload) == 0 {
		return nil, nil
	}
	switch frame.Kind {
	case KindDoc:
		v, err := state.decode(frame.Payload, c.opts)
		if err != nil {
			state.HasState = false
			return nil, frameErr(frame, err)
		}
		if err := state.setState(v); err != nil {
			return nil, frameErr(frame, err)
		}
		state.Docs++
		if glog.V(2) {
			glog.Infof("stream: sid %d seq %d decoded %s (%d bytes)", frame.SID, frame.Seq, v.Kind(), len(frame.Payload))
		}
		return v, nil
	case KindErr:
		v, err := jsox.Parse(string(frame.Payload), c.opts...)
		if err != nil {
			return nil, frameErr(frame, err)
		}
		return v, nil
	}
	return nil, nil
}

// SetState sets the current state and computes its hash.
func (c *Cursor) SetState(sid uint64, value *jsox.Value) error {
	return c.Get(sid).setState(value)
}

// SetStateHash sets the state hash directly.
// Use this when you have pre-computed the hash.
func (c *Cursor) SetStateHash(sid uint64, hash [32]byte) {
	state := c.Get(sid)
	state.StateHash = hash
	state.HasState = true
}

// Ack marks a sequence as acknowledged.
func (c *Cursor) Ack(sid, seq uint64) {
	c.Get(sid).ack(seq)
}

// PendingAcks returns sequences that have been seen but not acked.
func (c *Cursor) PendingAcks(sid uint64) []uint64 {
	state := c.GetReadOnly(sid)
	if state == nil || state.LastSeq <= state.LastAcked {
		return nil
	}

	pending := make([]uint64, 0, state.LastSeq-state.LastAcked)
	for seq := state.LastAcked + 1; seq <= state.LastSeq; seq++ {
		pending = append(pending, seq)
	}
	return pending
}

// NeedsResync returns true if the stream has no verified state, either
// because nothing was decoded yet or because the last document failed.
func (c *Cursor) NeedsResync(sid uint64) bool {
	state := c.GetReadOnly(sid)
	if state == nil {
		return true
	}
	return !state.HasState
}

func (s *SIDState) ack(seq uint64) {
	if seq > s.LastAcked {
		s.LastAcked = seq
	}
}

func (s *SIDState) checkBase(frame *Frame) error {
	if frame.Base == nil {
		return nil
	}
	if !s.HasState {
		return frameErr(frame, fmt.Errorf("%w: sid %d", ErrNoState, frame.SID))
	}
	if !VerifyBase(s.StateHash, *frame.Base) {
		return &BaseMismatchError{SID: frame.SID, Expected: *frame.Base, Got: s.StateHash}
	}
	return nil
}

func (s *SIDState) setState(value *jsox.Value) error {
	hash, err := StateHash(value)
	if err != nil {
		s.HasState = false
		return fmt.Errorf("state hash: %w", err)
	}
	s.State = value
	s.StateHash = hash
	s.HasState = true
	return nil
}

// decode runs payload through the stream's parser session. The payload
// must hold exactly one value; class definitions persist for later frames.
// A failed payload resets the session.
func (s *SIDState) decode(payload []byte, opts []jsox.ParseOption) (*jsox.Value, error) {
	if s.parser == nil {
		s.parser = jsox.Begin(func(v *jsox.Value) {
			s.values = append(s.values, v)
		}, opts...)
	}
	s.values = s.values[:0]

	_, err := s.parser.Write(string(payload))
	if err == nil {
		_, err = s.parser.Finish()
	}
	if err != nil {
		s.parser.Reset()
		return nil, err
	}
	if len(s.values) != 1 {
		return nil, fmt.Errorf("%w: %d values in one document frame", ErrPayload, len(s.values))
	}
	v := s.values[0]
	s.values[0] = nil
	return v, nil
}

func frameErr(frame *Frame, err error) error {
	return &FrameError{SID: frame.SID, Seq: frame.Seq, Kind: frame.Kind, Err: err}
}

// ============================================================
// Frame Handler - functional processing helper
// ============================================================

// FrameHandler processes frames with state tracking and dispatches decoded
// values to callbacks. Unlike Cursor.Decode it tolerates duplicates
// (skipped) and gaps (reported through OnSeqGap).
type FrameHandler struct {
	Cursor *Cursor

	// Callbacks (optional)
	OnDoc   func(sid, seq uint64, value *jsox.Value, state *SIDState) error
	OnErr   func(sid, seq uint64, value *jsox.Value, state *SIDState) error
	OnAck   func(sid, seq uint64, state *SIDState) error
	OnPing  func(sid, seq uint64) error
	OnFinal func(sid uint64, state *SIDState) error

	// Error handling
	OnSeqGap       func(sid uint64, expected, got uint64) error // Called on sequence gap
	OnBaseMismatch func(sid uint64, frame *Frame) error         // Called on base hash mismatch
}

// NewFrameHandler creates a handler with a default cursor.
func NewFrameHandler(opts ...jsox.ParseOption) *FrameHandler {
	return &FrameHandler{
		Cursor: NewCursor(opts...),
	}
}

// Handle processes a frame and calls the appropriate callback.
func (h *FrameHandler) Handle(frame *Frame) error {
	state := h.Cursor.Get(frame.SID)

	switch frame.Kind {
	case KindAck:
		state.ack(frame.Seq)
		if h.OnAck != nil {
			return h.OnAck(frame.SID, frame.Seq, state)
		}
		return nil
	case KindPing:
		if h.OnPing != nil {
			return h.OnPing(frame.SID, frame.Seq)
		}
		return nil
	case KindPong:
		return nil
	}

	if state.Final {
		return frameErr(frame, ErrStreamClosed)
	}
	if frame.Seq != 0 && state.LastSeq > 0 {
		if frame.Seq <= state.LastSeq {
			// Duplicate or out of order - skip
			return nil
		}
		if frame.Seq != state.LastSeq+1 && h.OnSeqGap != nil {
			if err := h.OnSeqGap(frame.SID, state.LastSeq+1, frame.Seq); err != nil {
				return err
			}
		}
	}

	if err := state.checkBase(frame); err != nil {
		if _, ok := err.(*BaseMismatchError); ok && h.OnBaseMismatch != nil {
			return h.OnBaseMismatch(frame.SID, frame)
		}
		return err
	}

	state.LastSeq = frame.Seq

	value, err := h.Cursor.decodePayload(state, frame)
	if err != nil {
		return err
	}
	switch frame.Kind {
	case KindDoc:
		if h.OnDoc != nil {
			err = h.OnDoc(frame.SID, frame.Seq, value, state)
		}
	case KindErr:
		if h.OnErr != nil {
			err = h.OnErr(frame.SID, frame.Seq, value, state)
		}
	}
	if err != nil {
		return err
	}

	if frame.IsFinal() {
		state.Final = true
		if h.OnFinal != nil {
			return h.OnFinal(frame.SID, state)
		}
	}
	return nil
}
