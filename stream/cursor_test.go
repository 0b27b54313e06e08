package stream

import (
	"errors"
	"testing"

	"github.com/Neumenon/jsox/jsox"
)

func docFrame(sid, seq uint64, payload string) *Frame {
	return &Frame{SID: sid, Seq: seq, Kind: KindDoc, Payload: []byte(payload)}
}

func TestCursor_Basic(t *testing.T) {
	cursor := NewCursor()

	// Get creates state
	state := cursor.Get(1)
	if state == nil {
		t.Fatal("Get should create state")
	}
	if state.SID != 1 {
		t.Errorf("SID = %d, want 1", state.SID)
	}
	if state.LastSeq != 0 {
		t.Errorf("LastSeq = %d, want 0", state.LastSeq)
	}

	// GetReadOnly returns nil for unknown
	if cursor.GetReadOnly(99) != nil {
		t.Error("GetReadOnly should return nil for unknown SID")
	}

	cursor.Get(3)
	cursor.Get(2)
	sids := cursor.AllSIDs()
	if len(sids) != 3 || sids[0] != 1 || sids[1] != 2 || sids[2] != 3 {
		t.Errorf("AllSIDs = %v, want [1 2 3]", sids)
	}

	cursor.Delete(2)
	if cursor.GetReadOnly(2) != nil {
		t.Error("Delete should remove SID")
	}
}

func TestCursor_ProcessFrame(t *testing.T) {
	cursor := NewCursor()

	if err := cursor.ProcessFrame(docFrame(1, 1, "{}")); err != nil {
		t.Fatalf("ProcessFrame failed: %v", err)
	}
	state := cursor.Get(1)
	if state.LastSeq != 1 {
		t.Errorf("LastSeq = %d, want 1", state.LastSeq)
	}

	if err := cursor.ProcessFrame(docFrame(1, 2, "{}")); err != nil {
		t.Fatalf("ProcessFrame failed: %v", err)
	}
	if state.LastSeq != 2 {
		t.Errorf("LastSeq = %d, want 2", state.LastSeq)
	}

	// Gap should fail
	err := cursor.ProcessFrame(docFrame(1, 5, "{}"))
	if !errors.Is(err, ErrSequence) {
		t.Errorf("expected ErrSequence for gap, got %v", err)
	}

	// Duplicate should fail
	err = cursor.ProcessFrame(docFrame(1, 2, "{}"))
	if !errors.Is(err, ErrSequence) {
		t.Errorf("expected ErrSequence for duplicate, got %v", err)
	}
	var fe *FrameError
	if !errors.As(err, &fe) || fe.SID != 1 || fe.Seq != 2 {
		t.Errorf("expected FrameError for sid 1 seq 2, got %v", err)
	}

	// Control frames do not take part in sequencing.
	if err := cursor.ProcessFrame(&Frame{SID: 1, Seq: 0, Kind: KindPing}); err != nil {
		t.Errorf("ping: %v", err)
	}
	if state.LastSeq != 2 {
		t.Errorf("ping moved LastSeq to %d", state.LastSeq)
	}
}

func TestCursor_BaseVerification(t *testing.T) {
	cursor := NewCursor()

	// No state yet
	base := [32]byte{1}
	f := docFrame(1, 1, "{x:1}")
	f.Base = &base
	if err := cursor.ProcessFrame(f); !errors.Is(err, ErrNoState) {
		t.Fatalf("expected ErrNoState, got %v", err)
	}

	doc := jsox.Object(jsox.F("x", jsox.Number(1)))
	if err := cursor.SetState(1, doc); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	state := cursor.Get(1)
	if !state.HasState {
		t.Error("HasState should be true after SetState")
	}
	want, _ := StateHash(doc)
	if state.StateHash != want {
		t.Error("SetState stored a different hash")
	}

	correct := state.StateHash
	f = docFrame(1, 1, "{x:2}")
	f.Base = &correct
	if err := cursor.ProcessFrame(f); err != nil {
		t.Fatalf("ProcessFrame with correct base failed: %v", err)
	}

	wrong := [32]byte{0xde, 0xad, 0xbe, 0xef}
	f = docFrame(1, 2, "{x:3}")
	f.Base = &wrong
	err := cursor.ProcessFrame(f)
	var mismatch *BaseMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected BaseMismatchError, got %T: %v", err, err)
	}
	if mismatch.SID != 1 || mismatch.Got != correct {
		t.Errorf("mismatch = %+v", mismatch)
	}
}

func TestCursor_Ack(t *testing.T) {
	cursor := NewCursor()

	for seq := uint64(1); seq <= 5; seq++ {
		cursor.ProcessFrame(docFrame(1, seq, "{}"))
	}

	if pending := cursor.PendingAcks(1); len(pending) != 5 {
		t.Errorf("PendingAcks = %d, want 5", len(pending))
	}

	cursor.Ack(1, 3)
	pending := cursor.PendingAcks(1)
	if len(pending) != 2 || pending[0] != 4 { // 4, 5
		t.Errorf("PendingAcks after ack = %v, want [4 5]", pending)
	}

	// An ack frame acknowledges too, and never moves backwards.
	cursor.ProcessFrame(&Frame{SID: 1, Seq: 5, Kind: KindAck})
	cursor.Ack(1, 2)
	if pending := cursor.PendingAcks(1); len(pending) != 0 {
		t.Errorf("PendingAcks after full ack = %v, want none", pending)
	}
	if cursor.PendingAcks(42) != nil {
		t.Error("PendingAcks for an unknown SID should be nil")
	}
}

func TestCursor_Final(t *testing.T) {
	cursor := NewCursor()

	f := docFrame(1, 1, "null")
	f.Final = true
	if err := cursor.ProcessFrame(f); err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if !cursor.Get(1).Final {
		t.Error("Final should be true")
	}
	if err := cursor.ProcessFrame(docFrame(1, 2, "null")); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("expected ErrStreamClosed, got %v", err)
	}
}

func TestCursor_DecodeSession(t *testing.T) {
	cursor := NewCursor()

	// The class header arrives once; later frames use the positional form.
	v1, err := cursor.Decode(docFrame(7, 1, "Point{x,y}[Point{1,2}]"))
	if err != nil {
		t.Fatalf("Decode 1: %v", err)
	}
	v2, err := cursor.Decode(docFrame(7, 2, "Point{3,4}"))
	if err != nil {
		t.Fatalf("Decode 2: %v", err)
	}
	if v1.Len() != 1 {
		t.Errorf("first document has %d elements", v1.Len())
	}
	if v2.Class() != "Point" || !jsox.Equal(v2.Get("y"), jsox.Number(4)) {
		t.Errorf("second document = %v", v2.Interface())
	}

	// Sessions are per stream.
	if _, err := cursor.Decode(docFrame(8, 1, "Point{3,4}")); err == nil {
		t.Error("class leaked into another stream")
	}

	state := cursor.Get(7)
	if state.Docs != 2 || state.State != v2 {
		t.Errorf("Docs = %d, State = %p", state.Docs, state.State)
	}
	if cursor.NeedsResync(7) {
		t.Error("NeedsResync after a good document")
	}
}

func TestCursor_DecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		err     error
	}{
		{"syntax", "[1,", jsox.ErrUnterminatedContainer},
		{"two values", "1 2", ErrPayload},
		{"definition only", "P{a,b}", ErrPayload},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cursor := NewCursor()
			if _, err := cursor.Decode(docFrame(1, 1, "true")); err != nil {
				t.Fatalf("Decode: %v", err)
			}
			_, err := cursor.Decode(docFrame(1, 2, tc.payload))
			if !errors.Is(err, tc.err) {
				t.Fatalf("error = %v, want %v", err, tc.err)
			}
			if tc.err != ErrPayload && !cursor.NeedsResync(1) {
				t.Error("a failed document should require a resync")
			}
		})
	}
}

func TestCursor_DecodeErrFrame(t *testing.T) {
	cursor := NewCursor()
	v, err := cursor.Decode(&Frame{SID: 1, Seq: 1, Kind: KindErr, Payload: []byte(`{code:404,msg:'missing'}`)})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if msg, _ := v.Get("msg").AsString(); msg != "missing" {
		t.Errorf("msg = %q", msg)
	}
	if cursor.Get(1).HasState {
		t.Error("err frames must not replace the stream state")
	}
}

func TestCursor_CustomRegistry(t *testing.T) {
	reg := jsox.NewRegistry()
	err := reg.FromJSOX("upper", func(raw *jsox.Value) (*jsox.Value, error) {
		s, err := raw.AsString()
		if err != nil {
			return nil, err
		}
		return jsox.String(s + "!"), nil
	})
	if err != nil {
		t.Fatalf("FromJSOX: %v", err)
	}

	cursor := NewCursor(jsox.WithRegistry(reg))
	v, err := cursor.Decode(docFrame(1, 1, `upper"hi"`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !jsox.Equal(v, jsox.String("hi!")) {
		t.Errorf("decoded %v", v.Interface())
	}
}

func TestStateHash(t *testing.T) {
	a, err := StateHash(jsox.Object(jsox.F("x", jsox.Number(1))))
	if err != nil {
		t.Fatalf("StateHash: %v", err)
	}
	if a != StateHashBytes([]byte("{x:1}")) {
		t.Error("StateHash is not the hash of the compact text")
	}

	// Class names are part of the text, so they are part of the state.
	b, _ := StateHash(jsox.ClassObject("P", jsox.F("x", jsox.Number(1))))
	if a == b {
		t.Error("class name did not change the hash")
	}
}

func TestFrameHandler_Basic(t *testing.T) {
	handler := NewFrameHandler()

	var docs []*jsox.Value
	var errs []*jsox.Value
	var acks []uint64

	handler.OnDoc = func(sid, seq uint64, value *jsox.Value, state *SIDState) error {
		docs = append(docs, value)
		return nil
	}
	handler.OnErr = func(sid, seq uint64, value *jsox.Value, state *SIDState) error {
		errs = append(errs, value)
		return nil
	}
	handler.OnAck = func(sid, seq uint64, state *SIDState) error {
		acks = append(acks, seq)
		return nil
	}

	frames := []*Frame{
		docFrame(1, 1, `Row{id,name}Row{1,"a"}`),
		docFrame(1, 2, `Row{2,"b"}`),
		{SID: 1, Seq: 3, Kind: KindErr, Payload: []byte("{code:1}")},
		{SID: 1, Seq: 2, Kind: KindAck},
	}
	for _, f := range frames {
		if err := handler.Handle(f); err != nil {
			t.Fatalf("Handle seq %d: %v", f.Seq, err)
		}
	}

	if len(docs) != 2 || docs[1].Class() != "Row" {
		t.Fatalf("docs = %d", len(docs))
	}
	if name, _ := docs[1].Get("name").AsString(); name != "b" {
		t.Errorf("name = %q", name)
	}
	if len(errs) != 1 {
		t.Errorf("errs = %d", len(errs))
	}
	if len(acks) != 1 || handler.Cursor.Get(1).LastAcked != 2 {
		t.Errorf("acks = %v", acks)
	}
}

func TestFrameHandler_GapCallback(t *testing.T) {
	handler := NewFrameHandler()

	var gaps [][2]uint64
	handler.OnSeqGap = func(sid uint64, expected, got uint64) error {
		gaps = append(gaps, [2]uint64{expected, got})
		return nil // Allow gap
	}

	handler.Handle(docFrame(1, 1, "1"))
	handler.Handle(docFrame(1, 5, "2")) // Gap!

	if len(gaps) != 1 {
		t.Fatalf("expected 1 gap, got %d", len(gaps))
	}
	if gaps[0][0] != 2 || gaps[0][1] != 5 {
		t.Errorf("gap = %v, want [2,5]", gaps[0])
	}

	// State should still update if callback allows
	if state := handler.Cursor.Get(1); state.LastSeq != 5 {
		t.Errorf("LastSeq = %d, want 5", state.LastSeq)
	}
}

func TestFrameHandler_BaseMismatchCallback(t *testing.T) {
	handler := NewFrameHandler()
	handler.Handle(docFrame(1, 1, "{x:1}"))

	var called bool
	handler.OnBaseMismatch = func(sid uint64, frame *Frame) error {
		called = true
		return nil
	}
	wrong := [32]byte{9}
	f := docFrame(1, 2, "{x:2}")
	f.Base = &wrong
	if err := handler.Handle(f); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !called {
		t.Error("OnBaseMismatch not called")
	}
	if handler.Cursor.Get(1).LastSeq != 1 {
		t.Error("a rejected frame advanced the sequence")
	}
}

func TestFrameHandler_FinalCallback(t *testing.T) {
	handler := NewFrameHandler()

	var finalSIDs []uint64
	handler.OnFinal = func(sid uint64, state *SIDState) error {
		finalSIDs = append(finalSIDs, sid)
		return nil
	}

	handler.Handle(docFrame(1, 1, "1"))
	last := docFrame(1, 2, "2")
	last.Final = true
	handler.Handle(last)

	if len(finalSIDs) != 1 || finalSIDs[0] != 1 {
		t.Errorf("finalSIDs = %v", finalSIDs)
	}
	if err := handler.Handle(docFrame(1, 3, "3")); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("expected ErrStreamClosed, got %v", err)
	}
}

func TestFrameHandler_DuplicateSkipped(t *testing.T) {
	handler := NewFrameHandler()

	var count int
	handler.OnDoc = func(sid, seq uint64, value *jsox.Value, state *SIDState) error {
		count++
		return nil
	}

	handler.Handle(docFrame(1, 1, "'a'"))
	handler.Handle(docFrame(1, 1, "'b'")) // Duplicate
	handler.Handle(docFrame(1, 2, "'c'"))

	if count != 2 {
		t.Errorf("count = %d, want 2 (duplicate should be skipped)", count)
	}
}
