package stream

import (
	"fmt"
	"io"
	"strconv"
)

// Writer writes frames to an io.Writer. A Writer is not safe for
// concurrent use; the Encoder serializes access to its Writer.
type Writer struct {
	w           io.Writer
	withCRC     bool // Whether to compute and include CRC
	compressMin int  // Compress payloads of at least this size; 0 disables
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithCRC makes the writer compute a CRC for each non-empty payload.
func WithCRC() WriterOption {
	return func(w *Writer) {
		w.withCRC = true
	}
}

// WithCompression compresses payloads of at least minSize bytes with zstd.
func WithCompression(minSize int) WriterOption {
	return func(w *Writer) {
		if minSize < 1 {
			minSize = 1
		}
		w.compressMin = minSize
	}
}

// NewWriter creates a new frame writer.
func NewWriter(w io.Writer, opts ...WriterOption) *Writer {
	writer := &Writer{w: w}
	for _, opt := range opts {
		opt(writer)
	}
	return writer
}

// WriteFrame writes a single frame.
//
// Format:
//
//	@frame{v=1 sid=N seq=N kind=K len=N [crc=X] [base=sha256:X] [enc=zstd] [final=true]}\n
//	<payload bytes>\n
//
// len and crc describe the payload as written, after compression.
func (w *Writer) WriteFrame(f *Frame) error {
	payload := f.Payload
	compressed := len(payload) > 0 &&
		(f.IsCompressed() || (w.compressMin > 0 && len(payload) >= w.compressMin))
	if compressed {
		packed, err := compress(payload)
		if err != nil {
			return err
		}
		payload = packed
	}

	crc := f.CRC
	if compressed {
		// A caller-supplied CRC covers the uncompressed text.
		crc = nil
	}
	if crc == nil && (w.withCRC || f.Flags&FlagHasCRC != 0) && len(payload) > 0 {
		computed := ComputeCRC(payload)
		crc = &computed
	}

	buf := appendHeader(make([]byte, 0, 96+len(payload)), f, len(payload), crc, compressed)
	buf = append(buf, payload...)
	buf = append(buf, '\n')
	if _, err := w.w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// appendHeader appends the @frame{...} line, fields in canonical order.
func appendHeader(b []byte, f *Frame, size int, crc *uint32, compressed bool) []byte {
	version := f.Version
	if version == 0 {
		version = Version
	}
	b = append(b, "@frame{v="...)
	b = strconv.AppendUint(b, uint64(version), 10)
	b = append(b, " sid="...)
	b = strconv.AppendUint(b, f.SID, 10)
	b = append(b, " seq="...)
	b = strconv.AppendUint(b, f.Seq, 10)
	b = append(b, " kind="...)
	b = append(b, f.Kind.String()...)
	b = append(b, " len="...)
	b = strconv.AppendInt(b, int64(size), 10)
	if crc != nil {
		b = fmt.Appendf(b, " crc=%08x", *crc)
	}
	if f.Base != nil {
		b = append(b, " base=sha256:"...)
		b = append(b, HashToHex(*f.Base)...)
	}
	if compressed {
		b = append(b, " enc="+EncodingZstd...)
	}
	if f.IsFinal() {
		b = append(b, " final=true"...)
	}
	return append(b, "}\n"...)
}

// WriteDoc writes a doc frame with the given JSOX payload.
func (w *Writer) WriteDoc(sid, seq uint64, payload []byte) error {
	return w.WriteFrame(&Frame{
		Version: Version,
		SID:     sid,
		Seq:     seq,
		Kind:    KindDoc,
		Payload: payload,
	})
}

// WriteDocWithBase writes a doc frame that the receiver accepts only if
// its current state hash equals base.
func (w *Writer) WriteDocWithBase(sid, seq uint64, payload []byte, base [32]byte) error {
	return w.WriteFrame(&Frame{
		Version: Version,
		SID:     sid,
		Seq:     seq,
		Kind:    KindDoc,
		Payload: payload,
		Base:    &base,
	})
}

// WriteAck writes an acknowledgement frame for seq.
func (w *Writer) WriteAck(sid, seq uint64) error {
	return w.WriteFrame(&Frame{Version: Version, SID: sid, Seq: seq, Kind: KindAck})
}

// WriteErr writes an error frame. The payload should be JSOX text.
func (w *Writer) WriteErr(sid, seq uint64, payload []byte) error {
	return w.WriteFrame(&Frame{
		Version: Version,
		SID:     sid,
		Seq:     seq,
		Kind:    KindErr,
		Payload: payload,
	})
}

// WritePing writes a ping frame.
func (w *Writer) WritePing(sid, seq uint64) error {
	return w.WriteFrame(&Frame{Version: Version, SID: sid, Seq: seq, Kind: KindPing})
}

// WritePong writes a pong frame.
func (w *Writer) WritePong(sid, seq uint64) error {
	return w.WriteFrame(&Frame{Version: Version, SID: sid, Seq: seq, Kind: KindPong})
}

// WriteFinal writes the final frame for a stream.
func (w *Writer) WriteFinal(sid, seq uint64, kind FrameKind, payload []byte) error {
	return w.WriteFrame(&Frame{
		Version: Version,
		SID:     sid,
		Seq:     seq,
		Kind:    kind,
		Payload: payload,
		Final:   true,
	})
}
