package jsox

import (
	"fmt"
	"math"
	"math/big"
	"time"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindNull
	KindBool
	KindNumber // float64, including NaN, -NaN and the infinities
	KindBigInt
	KindDate // millisecond or nanosecond precision, see (*Value).IsNS
	KindString
	KindArray
	KindObject
	KindTyped // typed array: element kind + little-endian bytes
	KindEmpty // elided array slot
	KindCustom
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindBigInt:
		return "bigint"
	case KindDate:
		return "date"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindTyped:
		return "typed"
	case KindEmpty:
		return "empty"
	case KindCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// Value is a JSOX value. Identity is pointer identity: a value held by two
// containers is one *Value, and a cycle is a container that holds itself.
type Value struct {
	kind Kind

	// Scalar payloads (only one valid based on kind)
	boolVal  bool
	numVal   float64
	bigVal   *big.Int
	timeVal  time.Time
	ns       bool
	strVal   string
	typedVal *TypedArray
	custom   any

	// Container payloads
	arrVal []*Value
	objVal *object
}

// Field is one member of an object.
type Field struct {
	Key   string
	Value *Value
}

type object struct {
	fields []Field
	index  map[string]int
	class  string
}

func newObject(class string, fields []Field) *object {
	o := &object{class: class, index: make(map[string]int, len(fields))}
	for _, f := range fields {
		o.set(f.Key, f.Value)
	}
	return o
}

func (o *object) set(key string, v *Value) {
	if i, ok := o.index[key]; ok {
		o.fields[i].Value = v
		return
	}
	o.index[key] = len(o.fields)
	o.fields = append(o.fields, Field{Key: key, Value: v})
}

func (o *object) remove(key string) bool {
	i, ok := o.index[key]
	if !ok {
		return false
	}
	o.fields = append(o.fields[:i], o.fields[i+1:]...)
	delete(o.index, key)
	for j := i; j < len(o.fields); j++ {
		o.index[o.fields[j].Key] = j
	}
	return true
}

// ============================================================
// Constructors
// ============================================================

// Undefined creates an undefined value.
func Undefined() *Value {
	return &Value{kind: KindUndefined}
}

// Null creates a null value.
func Null() *Value {
	return &Value{kind: KindNull}
}

// Bool creates a boolean value.
func Bool(v bool) *Value {
	return &Value{kind: KindBool, boolVal: v}
}

// Number creates a number value.
func Number(v float64) *Value {
	return &Value{kind: KindNumber, numVal: v}
}

// NaN creates a positive NaN.
func NaN() *Value {
	return &Value{kind: KindNumber, numVal: math.NaN()}
}

// NegNaN creates a NaN with the sign bit set.
func NegNaN() *Value {
	return &Value{kind: KindNumber, numVal: math.Copysign(math.NaN(), -1)}
}

// Inf creates +Infinity if sign >= 0, -Infinity otherwise.
func Inf(sign int) *Value {
	return &Value{kind: KindNumber, numVal: math.Inf(sign)}
}

// BigInt creates an arbitrary-precision integer value. The argument is copied.
func BigInt(v *big.Int) *Value {
	if v == nil {
		v = new(big.Int)
	}
	return &Value{kind: KindBigInt, bigVal: new(big.Int).Set(v)}
}

// Date creates a millisecond-precision date. Sub-millisecond digits are dropped.
func Date(t time.Time) *Value {
	return &Value{kind: KindDate, timeVal: t.Truncate(time.Millisecond)}
}

// DateNS creates a date that keeps its nanosecond remainder.
func DateNS(t time.Time) *Value {
	return &Value{kind: KindDate, timeVal: t, ns: true}
}

// String creates a string value.
func String(v string) *Value {
	return &Value{kind: KindString, strVal: v}
}

// Array creates an array value.
func Array(values ...*Value) *Value {
	return &Value{kind: KindArray, arrVal: values}
}

// Object creates an object. A repeated key keeps its first position and
// takes the last value.
func Object(fields ...Field) *Value {
	return &Value{kind: KindObject, objVal: newObject("", fields)}
}

// ClassObject creates an object that is an instance of the named class.
func ClassObject(class string, fields ...Field) *Value {
	return &Value{kind: KindObject, objVal: newObject(class, fields)}
}

// Typed creates a typed array over raw little-endian bytes.
func Typed(kind ElementKind, data []byte) *Value {
	return &Value{kind: KindTyped, typedVal: &TypedArray{Kind: kind, Bytes: data}}
}

// Empty creates an elided array slot.
func Empty() *Value {
	return &Value{kind: KindEmpty}
}

// Custom wraps a Go value produced by a registered decoder.
func Custom(v any) *Value {
	return &Value{kind: KindCustom, custom: v}
}

// F is shorthand for creating a Field.
func F(key string, v *Value) Field {
	return Field{Key: key, Value: v}
}

// ============================================================
// Accessors
// ============================================================

// Kind returns the value kind. A nil *Value reports KindUndefined.
func (v *Value) Kind() Kind {
	if v == nil {
		return KindUndefined
	}
	return v.kind
}

// IsNull returns true for null.
func (v *Value) IsNull() bool {
	return v != nil && v.kind == KindNull
}

// IsUndefined returns true for undefined and for a nil *Value.
func (v *Value) IsUndefined() bool {
	return v == nil || v.kind == KindUndefined
}

// IsEmpty returns true for an elided array slot.
func (v *Value) IsEmpty() bool {
	return v != nil && v.kind == KindEmpty
}

// IsNS reports whether a date keeps nanosecond precision.
func (v *Value) IsNS() bool {
	return v != nil && v.kind == KindDate && v.ns
}

// AsBool returns the boolean value.
func (v *Value) AsBool() (bool, error) {
	if v == nil {
		return false, fmt.Errorf("jsox: nil value")
	}
	if v.kind != KindBool {
		return false, fmt.Errorf("jsox: expected bool, got %s", v.kind)
	}
	return v.boolVal, nil
}

// AsNumber returns the number value.
func (v *Value) AsNumber() (float64, error) {
	if v == nil {
		return 0, fmt.Errorf("jsox: nil value")
	}
	if v.kind != KindNumber {
		return 0, fmt.Errorf("jsox: expected number, got %s", v.kind)
	}
	return v.numVal, nil
}

// AsBigInt returns a copy of the BigInt value.
func (v *Value) AsBigInt() (*big.Int, error) {
	if v == nil {
		return nil, fmt.Errorf("jsox: nil value")
	}
	if v.kind != KindBigInt {
		return nil, fmt.Errorf("jsox: expected bigint, got %s", v.kind)
	}
	return new(big.Int).Set(v.bigVal), nil
}

// AsTime returns the date value.
func (v *Value) AsTime() (time.Time, error) {
	if v == nil {
		return time.Time{}, fmt.Errorf("jsox: nil value")
	}
	if v.kind != KindDate {
		return time.Time{}, fmt.Errorf("jsox: expected date, got %s", v.kind)
	}
	return v.timeVal, nil
}

// AsString returns the string value.
func (v *Value) AsString() (string, error) {
	if v == nil {
		return "", fmt.Errorf("jsox: nil value")
	}
	if v.kind != KindString {
		return "", fmt.Errorf("jsox: expected string, got %s", v.kind)
	}
	return v.strVal, nil
}

// AsArray returns the array elements. The slice is shared with the value.
func (v *Value) AsArray() ([]*Value, error) {
	if v == nil {
		return nil, fmt.Errorf("jsox: nil value")
	}
	if v.kind != KindArray {
		return nil, fmt.Errorf("jsox: expected array, got %s", v.kind)
	}
	return v.arrVal, nil
}

// AsTyped returns the typed array.
func (v *Value) AsTyped() (*TypedArray, error) {
	if v == nil {
		return nil, fmt.Errorf("jsox: nil value")
	}
	if v.kind != KindTyped {
		return nil, fmt.Errorf("jsox: expected typed, got %s", v.kind)
	}
	return v.typedVal, nil
}

// AsCustom returns the Go payload of a custom value.
func (v *Value) AsCustom() (any, error) {
	if v == nil {
		return nil, fmt.Errorf("jsox: nil value")
	}
	if v.kind != KindCustom {
		return nil, fmt.Errorf("jsox: expected custom, got %s", v.kind)
	}
	return v.custom, nil
}

// Class returns the class name of an object instance, or "".
func (v *Value) Class() string {
	if v == nil || v.kind != KindObject {
		return ""
	}
	return v.objVal.class
}

// SetClass sets the class name of an object.
func (v *Value) SetClass(name string) {
	if v != nil && v.kind == KindObject {
		v.objVal.class = name
	}
}

// Len returns the length of an array or typed array, or the field count of an object.
func (v *Value) Len() int {
	if v == nil {
		return 0
	}
	switch v.kind {
	case KindArray:
		return len(v.arrVal)
	case KindObject:
		return len(v.objVal.fields)
	case KindTyped:
		return v.typedVal.Len()
	default:
		return 0
	}
}

// Get returns a member of an object, or nil.
func (v *Value) Get(key string) *Value {
	m, _ := v.Lookup(key)
	return m
}

// Lookup returns a member of an object and whether it exists.
func (v *Value) Lookup(key string) (*Value, bool) {
	if v == nil || v.kind != KindObject {
		return nil, false
	}
	i, ok := v.objVal.index[key]
	if !ok {
		return nil, false
	}
	return v.objVal.fields[i].Value, true
}

// Keys returns the object keys in insertion order.
func (v *Value) Keys() []string {
	if v == nil || v.kind != KindObject {
		return nil
	}
	keys := make([]string, len(v.objVal.fields))
	for i, f := range v.objVal.fields {
		keys[i] = f.Key
	}
	return keys
}

// Fields returns a copy of the object members in insertion order.
func (v *Value) Fields() []Field {
	if v == nil || v.kind != KindObject {
		return nil
	}
	out := make([]Field, len(v.objVal.fields))
	copy(out, v.objVal.fields)
	return out
}

// Index returns the i-th element of an array.
func (v *Value) Index(i int) (*Value, error) {
	if v == nil || v.kind != KindArray {
		return nil, fmt.Errorf("jsox: not an array")
	}
	if i < 0 || i >= len(v.arrVal) {
		return nil, fmt.Errorf("jsox: index %d out of bounds (len=%d)", i, len(v.arrVal))
	}
	return v.arrVal[i], nil
}

// ============================================================
// Mutators
// ============================================================

// Set sets an object member. New keys are appended.
func (v *Value) Set(key string, val *Value) {
	if v != nil && v.kind == KindObject {
		v.objVal.set(key, val)
	}
}

// Delete removes an object member and reports whether it existed.
func (v *Value) Delete(key string) bool {
	if v == nil || v.kind != KindObject {
		return false
	}
	return v.objVal.remove(key)
}

// Append appends elements to an array.
func (v *Value) Append(vals ...*Value) {
	if v != nil && v.kind == KindArray {
		v.arrVal = append(v.arrVal, vals...)
	}
}

// SetIndex replaces the i-th element of an array.
func (v *Value) SetIndex(i int, val *Value) error {
	if v == nil || v.kind != KindArray {
		return fmt.Errorf("jsox: not an array")
	}
	if i < 0 || i >= len(v.arrVal) {
		return fmt.Errorf("jsox: index %d out of bounds (len=%d)", i, len(v.arrVal))
	}
	v.arrVal[i] = val
	return nil
}

// isContainer reports whether v takes part in identity tracking.
func (v *Value) isContainer() bool {
	switch v.kind {
	case KindArray, KindObject, KindTyped, KindCustom:
		return true
	}
	return false
}
