package stream

import (
	"io"
	"sync"

	"github.com/Neumenon/jsox/jsox"
)

// ============================================================
// Encoder
// ============================================================

// Encoder writes Go or JSOX values as doc frames. Each stream ID gets its
// own jsox.Stringifier, so a class header goes out once per stream and
// later documents of that stream use the positional form. An Encoder is
// safe for concurrent use.
type Encoder struct {
	mu       sync.Mutex
	w        *Writer
	opts     []jsox.StringifyOption
	sessions map[uint64]*session
}

type session struct {
	s    *jsox.Stringifier
	seq  uint64 // last seq written
	done bool
}

// NewEncoder creates an encoder writing to w. The stringify options apply
// to every stream's stringifier.
func NewEncoder(w *Writer, opts ...jsox.StringifyOption) *Encoder {
	return &Encoder{
		w:        w,
		opts:     opts,
		sessions: make(map[uint64]*session),
	}
}

func (e *Encoder) session(sid uint64) *session {
	s, ok := e.sessions[sid]
	if !ok {
		s = &session{s: jsox.NewStringifier(e.opts...)}
		e.sessions[sid] = s
	}
	return s
}

// Stringifier returns the stringifier of a stream, e.g. to DefineClass or
// register encoders that only this stream uses.
func (e *Encoder) Stringifier(sid uint64) *jsox.Stringifier {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session(sid).s
}

// Encode writes v as the next document of stream sid and returns its seq.
func (e *Encoder) Encode(sid uint64, v any) (uint64, error) {
	return e.encode(&Frame{SID: sid, Kind: KindDoc}, v)
}

// EncodeWithBase writes v as a document the receiver accepts only while its
// state hash equals base.
func (e *Encoder) EncodeWithBase(sid uint64, v any, base [32]byte) (uint64, error) {
	return e.encode(&Frame{SID: sid, Kind: KindDoc, Base: &base}, v)
}

// EncodeFinal writes v as the last document of stream sid.
func (e *Encoder) EncodeFinal(sid uint64, v any) (uint64, error) {
	return e.encode(&Frame{SID: sid, Kind: KindDoc, Final: true}, v)
}

func (e *Encoder) encode(f *Frame, v any) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.session(f.SID)
	if s.done {
		return 0, frameErr(f, ErrStreamClosed)
	}
	text, err := s.s.Stringify(v)
	if err != nil {
		return 0, frameErr(f, err)
	}
	f.Version = Version
	f.Seq = s.seq + 1
	f.Payload = []byte(text)
	if err := e.w.WriteFrame(f); err != nil {
		return 0, err
	}
	s.seq = f.Seq
	s.done = f.IsFinal()
	return f.Seq, nil
}

// EncodeError writes an err frame. The error document is written on its
// own, outside the stream's class session.
func (e *Encoder) EncodeError(sid uint64, v any) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.session(sid)
	f := &Frame{Version: Version, SID: sid, Seq: s.seq + 1, Kind: KindErr}
	if s.done {
		return 0, frameErr(f, ErrStreamClosed)
	}
	text, err := jsox.Stringify(v, e.opts...)
	if err != nil {
		return 0, frameErr(f, err)
	}
	f.Payload = []byte(text)
	if err := e.w.WriteFrame(f); err != nil {
		return 0, err
	}
	s.seq = f.Seq
	return f.Seq, nil
}

// Close writes an empty final frame for stream sid and forgets its session.
func (e *Encoder) Close(sid uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.session(sid)
	delete(e.sessions, sid)
	if s.done {
		return nil
	}
	return e.w.WriteFinal(sid, s.seq+1, KindDoc, nil)
}

// Ack writes an acknowledgement for a frame received on stream sid.
func (e *Encoder) Ack(sid, seq uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.w.WriteAck(sid, seq)
}

// Ping writes a keepalive for stream sid.
func (e *Encoder) Ping(sid uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.w.WritePing(sid, e.session(sid).seq)
}

// ============================================================
// Decoder
// ============================================================

// Message is one decoded frame.
type Message struct {
	SID   uint64
	Seq   uint64
	Kind  FrameKind
	Value *jsox.Value // nil for control frames and empty payloads
	Final bool
}

// Decoder reads frames and decodes their payloads through a Cursor, one
// parser session per stream ID. A Decoder is not safe for concurrent use.
type Decoder struct {
	r      *Reader
	cursor *Cursor
}

// NewDecoder creates a decoder reading from r. The parse options apply to
// every stream's parser.
func NewDecoder(r *Reader, opts ...jsox.ParseOption) *Decoder {
	return &Decoder{r: r, cursor: NewCursor(opts...)}
}

// Cursor returns the decoder's cursor.
func (d *Decoder) Cursor() *Cursor {
	return d.cursor
}

// Next reads and decodes the next frame. Returns io.EOF at end of input.
func (d *Decoder) Next() (*Message, error) {
	frame, err := d.r.Next()
	if err != nil {
		return nil, err
	}
	v, err := d.cursor.Decode(frame)
	if err != nil {
		return nil, err
	}
	return &Message{
		SID:   frame.SID,
		Seq:   frame.Seq,
		Kind:  frame.Kind,
		Value: v,
		Final: frame.IsFinal(),
	}, nil
}

// Values decodes until EOF and returns the documents of every stream in
// arrival order.
func (d *Decoder) Values() ([]*Message, error) {
	var out []*Message
	for {
		m, err := d.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		if m.Kind == KindDoc && m.Value != nil {
			out = append(out, m)
		}
	}
}
