package jsox

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrUnexpectedCharacter indicates a character that is not valid in the current state.
	ErrUnexpectedCharacter = errors.New("unexpected character")

	// ErrUnterminatedString indicates EOF inside a string.
	ErrUnterminatedString = errors.New("unterminated string")

	// ErrUnterminatedComment indicates EOF inside a block comment.
	ErrUnterminatedComment = errors.New("unterminated comment")

	// ErrUnterminatedContainer indicates EOF with an open object, array or class body.
	ErrUnterminatedContainer = errors.New("unterminated container")

	// ErrUnknownTypeTag indicates a tag with no class, typed-array kind or decoder.
	ErrUnknownTypeTag = errors.New("unknown type tag")

	// ErrUnresolvedReference indicates a ref path that names nothing.
	ErrUnresolvedReference = errors.New("unresolved reference")

	// ErrClassFieldOverflow indicates more positional values than declared fields.
	ErrClassFieldOverflow = errors.New("unexpected value past declared fields")

	// ErrDuplicateTypeRegistration indicates a second registration of a (tag, direction) pair.
	ErrDuplicateTypeRegistration = errors.New("duplicate type registration")

	// ErrReservedTag indicates a registration for a typed-array tag or "ref".
	ErrReservedTag = errors.New("reserved tag")

	// ErrMalformedNumber indicates an invalid numeric literal.
	ErrMalformedNumber = errors.New("malformed number")

	// ErrMalformedTypedArray indicates a typed-array body that is not one valid base64 payload.
	ErrMalformedTypedArray = errors.New("malformed typed array")

	// ErrMalformedDate indicates a date-shaped literal that is not a valid date.
	ErrMalformedDate = errors.New("malformed date")

	// ErrMaxDepth indicates nesting beyond the configured limit.
	ErrMaxDepth = errors.New("maximum depth exceeded")

	// ErrTrailingData indicates a second value in a one-shot parse.
	ErrTrailingData = errors.New("trailing data after value")

	// ErrNoValue indicates input without any value.
	ErrNoValue = errors.New("no value")

	// ErrUnsupportedType indicates a Go value that cannot be encoded.
	ErrUnsupportedType = errors.New("unsupported type")
)

// Position is a location in the parser input.
type Position struct {
	Line   int
	Column int
	Offset int // byte offset
}

// String returns position as "line:column".
func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// SyntaxError is returned for malformed input. It wraps one of the sentinel
// errors so callers can use errors.Is.
type SyntaxError struct {
	Err     error
	Msg     string
	Pos     Position
	Context string        // the last characters consumed before the error
	Tag     string        // set for ErrUnknownTypeTag
	Path    []PathElement // set for ErrUnresolvedReference
}

func (e *SyntaxError) Error() string {
	var b strings.Builder
	b.WriteString("jsox: ")
	b.WriteString(e.Err.Error())
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	b.WriteString(" at ")
	b.WriteString(e.Pos.String())
	if e.Context != "" {
		b.WriteString(" near ")
		b.WriteString(strconv.Quote(e.Context))
	}
	return b.String()
}

func (e *SyntaxError) Unwrap() error { return e.Err }

// Direction tells whether a registration encodes Go values or decodes tags.
type Direction uint8

const (
	DirEncode Direction = iota // toJSOX
	DirDecode                  // fromJSOX
)

// String returns the direction name.
func (d Direction) String() string {
	if d == DirDecode {
		return "fromJSOX"
	}
	return "toJSOX"
}

// RegistrationError is returned when a (tag, direction) pair is registered twice
// or a reserved tag is registered.
type RegistrationError struct {
	Err       error
	Tag       string
	Direction Direction
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("jsox: %s: %s tag %q", e.Err, e.Direction, e.Tag)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

// PathElement is one segment of a reference path.
type PathElement struct {
	IsIndex bool
	Index   int
	Key     string
}

// KeyString returns the segment as an object key.
func (p PathElement) KeyString() string {
	if p.IsIndex {
		return strconv.Itoa(p.Index)
	}
	return p.Key
}

// String returns the segment as it is written inside ref[...].
func (p PathElement) String() string {
	if p.IsIndex {
		return strconv.Itoa(p.Index)
	}
	return strconv.Quote(p.Key)
}

// FormatPath renders a path as it is written in a back-reference.
func FormatPath(path []PathElement) string {
	var b strings.Builder
	b.WriteString("ref[")
	for i, p := range path {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(p.String())
	}
	b.WriteByte(']')
	return b.String()
}
