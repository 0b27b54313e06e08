package jsox

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// ElementKind is the element type of a typed array.
type ElementKind uint8

const (
	ElemArrayBuffer  ElementKind = iota // ab
	ElemUint8                           // u8
	ElemUint8Clamped                    // cu8
	ElemInt8                            // s8
	ElemUint16                          // u16
	ElemInt16                           // s16
	ElemUint32                          // u32
	ElemInt32                           // s32
	ElemUint64                          // u64
	ElemInt64                           // s64
	ElemFloat32                         // f32
	ElemFloat64                         // f64
)

var elementTags = [...]string{"ab", "u8", "cu8", "s8", "u16", "s16", "u32", "s32", "u64", "s64", "f32", "f64"}

var elementSizes = [...]int{1, 1, 1, 1, 2, 2, 4, 4, 8, 8, 4, 8}

// Tag returns the JSOX tag of the element kind.
func (k ElementKind) Tag() string {
	if int(k) < len(elementTags) {
		return elementTags[k]
	}
	return "unknown"
}

// String returns the tag.
func (k ElementKind) String() string { return k.Tag() }

// Size returns the element width in bytes.
func (k ElementKind) Size() int {
	if int(k) < len(elementSizes) {
		return elementSizes[k]
	}
	return 1
}

// ElementKindFromTag maps a typed-array tag to its element kind.
func ElementKindFromTag(tag string) (ElementKind, bool) {
	for i, t := range elementTags {
		if t == tag {
			return ElementKind(i), true
		}
	}
	return 0, false
}

// TypedArray is a typed array: an element kind over little-endian bytes.
type TypedArray struct {
	Kind  ElementKind
	Bytes []byte
}

// Len returns the number of elements.
func (t *TypedArray) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Bytes) / t.Kind.Size()
}

// Base64 returns the payload as standard padded base64.
func (t *TypedArray) Base64() string {
	return base64.StdEncoding.EncodeToString(t.Bytes)
}

// ============================================================
// Element views
// ============================================================

func elements[T any](b []byte, size int, conv func([]byte) T) []T {
	out := make([]T, len(b)/size)
	for i := range out {
		out[i] = conv(b[i*size:])
	}
	return out
}

// Uint8s returns a copy of the payload.
func (t *TypedArray) Uint8s() []uint8 {
	out := make([]uint8, len(t.Bytes))
	copy(out, t.Bytes)
	return out
}

// Int8s decodes the payload as int8 elements.
func (t *TypedArray) Int8s() []int8 {
	return elements(t.Bytes, 1, func(b []byte) int8 { return int8(b[0]) })
}

// Uint16s decodes the payload as little-endian uint16 elements.
func (t *TypedArray) Uint16s() []uint16 {
	return elements(t.Bytes, 2, binary.LittleEndian.Uint16)
}

// Int16s decodes the payload as little-endian int16 elements.
func (t *TypedArray) Int16s() []int16 {
	return elements(t.Bytes, 2, func(b []byte) int16 { return int16(binary.LittleEndian.Uint16(b)) })
}

// Uint32s decodes the payload as little-endian uint32 elements.
func (t *TypedArray) Uint32s() []uint32 {
	return elements(t.Bytes, 4, binary.LittleEndian.Uint32)
}

// Int32s decodes the payload as little-endian int32 elements.
func (t *TypedArray) Int32s() []int32 {
	return elements(t.Bytes, 4, func(b []byte) int32 { return int32(binary.LittleEndian.Uint32(b)) })
}

// Uint64s decodes the payload as little-endian uint64 elements.
func (t *TypedArray) Uint64s() []uint64 {
	return elements(t.Bytes, 8, binary.LittleEndian.Uint64)
}

// Int64s decodes the payload as little-endian int64 elements.
func (t *TypedArray) Int64s() []int64 {
	return elements(t.Bytes, 8, func(b []byte) int64 { return int64(binary.LittleEndian.Uint64(b)) })
}

// Float32s decodes the payload as little-endian float32 elements.
func (t *TypedArray) Float32s() []float32 {
	return elements(t.Bytes, 4, func(b []byte) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b)) })
}

// Float64s decodes the payload as little-endian float64 elements.
func (t *TypedArray) Float64s() []float64 {
	return elements(t.Bytes, 8, func(b []byte) float64 { return math.Float64frombits(binary.LittleEndian.Uint64(b)) })
}

// slice returns the payload as the Go slice type matching the element kind.
func (t *TypedArray) slice() any {
	switch t.Kind {
	case ElemInt8:
		return t.Int8s()
	case ElemUint16:
		return t.Uint16s()
	case ElemInt16:
		return t.Int16s()
	case ElemUint32:
		return t.Uint32s()
	case ElemInt32:
		return t.Int32s()
	case ElemUint64:
		return t.Uint64s()
	case ElemInt64:
		return t.Int64s()
	case ElemFloat32:
		return t.Float32s()
	case ElemFloat64:
		return t.Float64s()
	default:
		return t.Uint8s()
	}
}

// ============================================================
// Constructors from Go slices
// ============================================================

func encodeElements[T any](kind ElementKind, vals []T, put func([]byte, T)) *Value {
	size := kind.Size()
	b := make([]byte, len(vals)*size)
	for i, v := range vals {
		put(b[i*size:], v)
	}
	return Typed(kind, b)
}

// TypedFromUint8s creates a u8 typed array.
func TypedFromUint8s(vals []uint8) *Value {
	b := make([]byte, len(vals))
	copy(b, vals)
	return Typed(ElemUint8, b)
}

// TypedFromInt8s creates an s8 typed array.
func TypedFromInt8s(vals []int8) *Value {
	return encodeElements(ElemInt8, vals, func(b []byte, v int8) { b[0] = byte(v) })
}

// TypedFromUint16s creates a u16 typed array.
func TypedFromUint16s(vals []uint16) *Value {
	return encodeElements(ElemUint16, vals, binary.LittleEndian.PutUint16)
}

// TypedFromInt16s creates an s16 typed array.
func TypedFromInt16s(vals []int16) *Value {
	return encodeElements(ElemInt16, vals, func(b []byte, v int16) { binary.LittleEndian.PutUint16(b, uint16(v)) })
}

// TypedFromUint32s creates a u32 typed array.
func TypedFromUint32s(vals []uint32) *Value {
	return encodeElements(ElemUint32, vals, binary.LittleEndian.PutUint32)
}

// TypedFromInt32s creates an s32 typed array.
func TypedFromInt32s(vals []int32) *Value {
	return encodeElements(ElemInt32, vals, func(b []byte, v int32) { binary.LittleEndian.PutUint32(b, uint32(v)) })
}

// TypedFromUint64s creates a u64 typed array.
func TypedFromUint64s(vals []uint64) *Value {
	return encodeElements(ElemUint64, vals, binary.LittleEndian.PutUint64)
}

// TypedFromInt64s creates an s64 typed array.
func TypedFromInt64s(vals []int64) *Value {
	return encodeElements(ElemInt64, vals, func(b []byte, v int64) { binary.LittleEndian.PutUint64(b, uint64(v)) })
}

// TypedFromFloat32s creates an f32 typed array.
func TypedFromFloat32s(vals []float32) *Value {
	return encodeElements(ElemFloat32, vals, func(b []byte, v float32) { binary.LittleEndian.PutUint32(b, math.Float32bits(v)) })
}

// TypedFromFloat64s creates an f64 typed array.
func TypedFromFloat64s(vals []float64) *Value {
	return encodeElements(ElemFloat64, vals, func(b []byte, v float64) { binary.LittleEndian.PutUint64(b, math.Float64bits(v)) })
}

// ============================================================
// Base64
// ============================================================

// decodeBase64 accepts the standard and URL alphabets, padded or not.
// Whitespace inside the payload is ignored.
func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			return -1
		}
		return r
	}, s)
	enc := base64.StdEncoding
	if strings.ContainsAny(s, "-_") {
		enc = base64.URLEncoding
	}
	if !strings.HasSuffix(s, "=") && len(s)%4 != 0 {
		enc = enc.WithPadding(base64.NoPadding)
	}
	b, err := enc.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 payload: %w", err)
	}
	return b, nil
}

// decodeTyped builds a typed array from a base64 payload.
func decodeTyped(kind ElementKind, payload string) (*Value, error) {
	b, err := decodeBase64(payload)
	if err != nil {
		return nil, err
	}
	if len(b)%kind.Size() != 0 {
		return nil, fmt.Errorf("%s payload of %d bytes is not a multiple of %d", kind.Tag(), len(b), kind.Size())
	}
	return Typed(kind, b), nil
}
