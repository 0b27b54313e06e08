package stream

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Reader reads frames from an io.Reader.
type Reader struct {
	r          *bufio.Reader
	off        int64 // bytes consumed so far
	maxPayload int
	verifyCRC  bool
	inflate    *decompressor
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithMaxPayload sets the maximum payload size (default: 64 MiB). The limit
// applies both to the wire payload and to its decompressed form.
func WithMaxPayload(max int) ReaderOption {
	return func(r *Reader) {
		r.maxPayload = max
	}
}

// WithCRCVerification enables or disables CRC verification. It is on by
// default.
func WithCRCVerification(verify bool) ReaderOption {
	return func(r *Reader) {
		r.verifyCRC = verify
	}
}

// NewReader creates a new frame reader.
func NewReader(r io.Reader, opts ...ReaderOption) *Reader {
	reader := &Reader{
		r:          bufio.NewReader(r),
		maxPayload: MaxPayloadSize,
		verifyCRC:  true,
	}
	for _, opt := range opts {
		opt(reader)
	}
	return reader
}

// Next reads the next frame. Compressed payloads are returned inflated.
// It returns io.EOF once the input holds nothing but whitespace.
func (r *Reader) Next() (*Frame, error) {
	start := r.off
	frame, size, err := r.header(start)
	if err != nil {
		return nil, err
	}
	if size > r.maxPayload {
		return nil, &ParseError{Reason: fmt.Sprintf("payload too large: %d > %d", size, r.maxPayload), Offset: start}
	}
	if frame.Payload, err = r.payload(size); err != nil {
		return nil, fmt.Errorf("read payload at offset %d: %w", start, err)
	}

	if r.verifyCRC && frame.CRC != nil {
		if got := ComputeCRC(frame.Payload); got != *frame.CRC {
			return nil, &CRCMismatchError{Expected: *frame.CRC, Got: got}
		}
	}
	if frame.IsCompressed() && len(frame.Payload) > 0 {
		if frame.Payload, err = r.expand(frame.Payload); err != nil {
			return nil, &ParseError{Reason: "decompress: " + err.Error(), Offset: start}
		}
	}
	return frame, nil
}

// header reads one header line and decodes it.
func (r *Reader) header(start int64) (*Frame, int, error) {
	line, err := r.r.ReadString('\n')
	r.off += int64(len(line))
	switch {
	case err == io.EOF && strings.TrimSpace(line) == "":
		return nil, 0, io.EOF
	case err == io.EOF:
		return nil, 0, &ParseError{Reason: "truncated header", Offset: start}
	case err != nil:
		return nil, 0, fmt.Errorf("read header: %w", err)
	}

	frame, size, err := parseHeader(line)
	var pe *ParseError
	if errors.As(err, &pe) {
		pe.Offset = start
	}
	return frame, size, err
}

// payload reads size bytes and the newline that ends the frame, if present.
func (r *Reader) payload(size int) ([]byte, error) {
	var buf []byte
	if size > 0 {
		buf = make([]byte, size)
		n, err := io.ReadFull(r.r, buf)
		r.off += int64(n)
		if err != nil {
			return nil, err
		}
	}
	if b, err := r.r.ReadByte(); err == nil {
		if b == '\n' {
			r.off++
		} else {
			r.r.UnreadByte()
		}
	}
	return buf, nil
}

func (r *Reader) expand(wire []byte) ([]byte, error) {
	if r.inflate == nil {
		d, err := newDecompressor(r.maxPayload)
		if err != nil {
			return nil, err
		}
		r.inflate = d
	}
	return r.inflate.decompress(wire)
}

// Close releases the decompressor, if one was created.
func (r *Reader) Close() error {
	if r.inflate != nil {
		r.inflate.close()
		r.inflate = nil
	}
	return nil
}

// ReadAll reads frames until EOF. Frames read before an error are returned
// with it.
func (r *Reader) ReadAll() ([]*Frame, error) {
	var frames []*Frame
	for {
		frame, err := r.Next()
		if err == io.EOF {
			return frames, nil
		}
		if err != nil {
			return frames, err
		}
		frames = append(frames, frame)
	}
}

// ============================================================
// Header
// ============================================================

// headerState collects the fields of one header line.
type headerState struct {
	frame *Frame
	size  int
}

// headerFields decodes one key=value header field each. Unknown keys are
// ignored so that newer writers can add fields.
var headerFields = map[string]func(h *headerState, val string) string{
	"v": func(h *headerState, val string) string {
		v, err := strconv.ParseUint(val, 10, 8)
		if err != nil {
			return "invalid version"
		}
		if uint8(v) != Version {
			return "unsupported version " + val
		}
		h.frame.Version = uint8(v)
		return ""
	},
	"sid": func(h *headerState, val string) string {
		return parseUint64(val, &h.frame.SID, "invalid sid")
	},
	"seq": func(h *headerState, val string) string {
		return parseUint64(val, &h.frame.Seq, "invalid seq")
	},
	"kind": func(h *headerState, val string) string {
		kind, ok := ParseKind(val)
		if !ok {
			return "invalid kind: " + val
		}
		h.frame.Kind = kind
		return ""
	},
	"len": func(h *headerState, val string) string {
		n, err := strconv.ParseUint(val, 10, 32)
		if err != nil {
			return "invalid len"
		}
		h.size = int(n)
		return ""
	},
	"crc": func(h *headerState, val string) string {
		crc, ok := parseCRC(val)
		if !ok {
			return "invalid crc: " + val
		}
		h.frame.CRC = &crc
		h.frame.Flags |= FlagHasCRC
		return ""
	},
	"base": func(h *headerState, val string) string {
		base, ok := HexToHash(strings.TrimPrefix(val, "sha256:"))
		if !ok {
			return "invalid base: " + val
		}
		h.frame.Base = &base
		h.frame.Flags |= FlagHasBase
		return ""
	},
	"enc": func(h *headerState, val string) string {
		if val != EncodingZstd {
			return "unsupported encoding: " + val
		}
		h.frame.Flags |= FlagCompressed
		return ""
	},
	"final": func(h *headerState, val string) string {
		if val == "true" || val == "1" {
			h.frame.Final = true
			h.frame.Flags |= FlagFinal
		}
		return ""
	},
}

// parseHeader decodes an @frame{...} line into a frame and the length of
// its wire payload.
func parseHeader(line string) (*Frame, int, error) {
	body, ok := strings.CutPrefix(strings.TrimSpace(line), "@frame{")
	if !ok {
		return nil, 0, &ParseError{Reason: "expected @frame{"}
	}
	body, ok = strings.CutSuffix(body, "}")
	if !ok {
		return nil, 0, &ParseError{Reason: "missing closing }"}
	}

	h := &headerState{frame: &Frame{Version: Version}, size: -1}
	fields := strings.FieldsFunc(body, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t'
	})
	for _, field := range fields {
		key, val, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		decode, known := headerFields[key]
		if !known {
			continue
		}
		if reason := decode(h, val); reason != "" {
			return nil, 0, &ParseError{Reason: reason}
		}
	}
	if h.size < 0 {
		return nil, 0, &ParseError{Reason: "missing len"}
	}
	return h.frame, h.size, nil
}

func parseUint64(val string, dst *uint64, reason string) string {
	n, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return reason
	}
	*dst = n
	return ""
}

// parseCRC accepts eight hex digits, optionally prefixed with "crc32:".
func parseCRC(val string) (uint32, bool) {
	val = strings.TrimPrefix(val, "crc32:")
	if len(val) != 8 {
		return 0, false
	}
	v, err := strconv.ParseUint(val, 16, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}
