// Package stream carries JSOX documents over a framed text transport.
//
// Each frame is a one-line header followed by a payload of JSOX text:
//
//	@frame{v=1 sid=N seq=N kind=K len=N [crc=X] [base=sha256:X] [enc=zstd] [final=true]}
//	<payload>
//
// Frames provide:
//   - Message boundaries (len counts the payload bytes on the wire)
//   - Multiplexing via stream IDs (sid)
//   - Ordering via per-stream sequence numbers (seq)
//   - Integrity via optional CRC-32
//   - State checks via an optional base hash of the receiver's last document
//   - Optional zstd payload compression
//
// Frames of one stream share a JSOX session: a class defined by an earlier
// document stays defined for later documents of the same sid.
package stream

import (
	"errors"
	"fmt"
	"strconv"
)

// Version is the frame protocol version.
const Version uint8 = 1

// FrameKind indicates the semantic category of a frame's payload.
type FrameKind uint8

const (
	KindDoc  FrameKind = 0 // JSOX document
	KindAck  FrameKind = 1 // Acknowledgement of seq
	KindErr  FrameKind = 2 // Error event, payload is a JSOX document
	KindPing FrameKind = 3 // Keepalive
	KindPong FrameKind = 4 // Ping response
)

// String returns the kind name.
func (k FrameKind) String() string {
	switch k {
	case KindDoc:
		return "doc"
	case KindAck:
		return "ack"
	case KindErr:
		return "err"
	case KindPing:
		return "ping"
	case KindPong:
		return "pong"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// IsControl reports whether frames of this kind are flow control rather
// than stream content. Control frames do not advance the sequence.
func (k FrameKind) IsControl() bool {
	return k == KindAck || k == KindPing || k == KindPong
}

// ParseKind parses a kind name or numeric value.
func ParseKind(s string) (FrameKind, bool) {
	switch s {
	case "doc":
		return KindDoc, true
	case "ack":
		return KindAck, true
	case "err":
		return KindErr, true
	case "ping":
		return KindPing, true
	case "pong":
		return KindPong, true
	}
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, false
	}
	return FrameKind(n), true
}

// Flags for frames.
type Flags uint8

const (
	FlagHasCRC     Flags = 0x01 // CRC-32 is present
	FlagHasBase    Flags = 0x02 // Base hash is present
	FlagFinal      Flags = 0x04 // End-of-stream for this SID
	FlagCompressed Flags = 0x08 // Payload travels zstd-compressed
)

// Frame represents a single frame. Payload always holds the uncompressed
// JSOX text; compression is applied by the Writer and undone by the Reader.
type Frame struct {
	// Required fields
	Version uint8     // Protocol version (must be 1)
	SID     uint64    // Stream identifier
	Seq     uint64    // Sequence number (per-SID, monotonic)
	Kind    FrameKind // Frame kind
	Payload []byte    // JSOX payload bytes (UTF-8)

	// Optional fields
	CRC   *uint32   // CRC-32 of the wire payload (nil if not present)
	Base  *[32]byte // State hash the receiver must hold (nil if not present)
	Flags Flags     // Flag bits
	Final bool      // End-of-stream marker
}

// HasCRC returns true if CRC is present.
func (f *Frame) HasCRC() bool {
	return f.CRC != nil
}

// HasBase returns true if base hash is present.
func (f *Frame) HasBase() bool {
	return f.Base != nil
}

// IsFinal returns true if this is the final frame for this SID.
func (f *Frame) IsFinal() bool {
	return f.Final || f.Flags&FlagFinal != 0
}

// IsCompressed reports whether the payload travels compressed.
func (f *Frame) IsCompressed() bool {
	return f.Flags&FlagCompressed != 0
}

// MaxPayloadSize is the default maximum payload size (64 MiB).
const MaxPayloadSize = 64 * 1024 * 1024

// ============================================================
// Errors
// ============================================================

var (
	// ErrSequence reports a duplicate, out-of-order or missing seq.
	ErrSequence = errors.New("sequence violation")
	// ErrNoState reports a base check against a stream with no document yet.
	ErrNoState = errors.New("no state for base check")
	// ErrStreamClosed reports a frame after the final frame of its stream.
	ErrStreamClosed = errors.New("stream already final")
	// ErrPayload reports a document frame whose payload is not exactly one value.
	ErrPayload = errors.New("bad payload")
)

// ParseError reports a malformed frame. Offset is the byte offset of the
// frame header in the input, or -1 when unknown.
type ParseError struct {
	Reason string
	Offset int64
}

func (e *ParseError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("stream: %s at offset %d", e.Reason, e.Offset)
	}
	return fmt.Sprintf("stream: %s", e.Reason)
}

// CRCMismatchError is returned when CRC verification fails.
type CRCMismatchError struct {
	Expected uint32
	Got      uint32
}

func (e *CRCMismatchError) Error() string {
	return fmt.Sprintf("stream: CRC mismatch: expected %08x, got %08x", e.Expected, e.Got)
}

// BaseMismatchError is returned when base hash verification fails.
type BaseMismatchError struct {
	SID      uint64
	Expected [32]byte
	Got      [32]byte
}

func (e *BaseMismatchError) Error() string {
	return fmt.Sprintf("stream: sid %d base hash mismatch: frame wants %s, state is %s",
		e.SID, HashToHex(e.Expected)[:12], HashToHex(e.Got)[:12])
}

// FrameError wraps an error with the frame it concerns.
type FrameError struct {
	SID  uint64
	Seq  uint64
	Kind FrameKind
	Err  error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("stream: sid %d seq %d (%s): %v", e.SID, e.Seq, e.Kind, e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}
