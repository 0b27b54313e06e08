package jsox

import (
	"bytes"
	"math"
	"reflect"
)

// Equal reports whether a and b are structurally equal.
//
// NaN equals NaN of the same sign. Dates compare by instant and precision.
// Object members compare by key, ignoring order and class names. Cycles are
// handled: a pair of containers already under comparison is assumed equal.
func Equal(a, b *Value) bool {
	return equalValue(a, b, make(map[[2]*Value]bool))
}

func equalValue(a, b *Value, visiting map[[2]*Value]bool) bool {
	if a == b {
		return true
	}
	if a.Kind() != b.Kind() {
		return false
	}
	if a == nil || b == nil {
		// both undefined
		return true
	}
	switch a.kind {
	case KindUndefined, KindNull, KindEmpty:
		return true
	case KindBool:
		return a.boolVal == b.boolVal
	case KindNumber:
		if math.IsNaN(a.numVal) || math.IsNaN(b.numVal) {
			return math.IsNaN(a.numVal) && math.IsNaN(b.numVal) &&
				math.Signbit(a.numVal) == math.Signbit(b.numVal)
		}
		return a.numVal == b.numVal && math.Signbit(a.numVal) == math.Signbit(b.numVal)
	case KindBigInt:
		return a.bigVal.Cmp(b.bigVal) == 0
	case KindDate:
		return a.ns == b.ns && a.timeVal.Equal(b.timeVal)
	case KindString:
		return a.strVal == b.strVal
	case KindTyped:
		return a.typedVal.Kind == b.typedVal.Kind && bytes.Equal(a.typedVal.Bytes, b.typedVal.Bytes)
	case KindCustom:
		return customEqual(a.custom, b.custom)
	}

	pair := [2]*Value{a, b}
	if visiting[pair] {
		return true
	}
	visiting[pair] = true

	switch a.kind {
	case KindArray:
		if len(a.arrVal) != len(b.arrVal) {
			return false
		}
		for i := range a.arrVal {
			if !equalValue(a.arrVal[i], b.arrVal[i], visiting) {
				return false
			}
		}
		return true
	case KindObject:
		if len(a.objVal.fields) != len(b.objVal.fields) {
			return false
		}
		for _, f := range a.objVal.fields {
			other, ok := b.Lookup(f.Key)
			if !ok || !equalValue(f.Value, other, visiting) {
				return false
			}
		}
		return true
	}
	return false
}

func customEqual(a, b any) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta != nil && ta.Comparable() && a == b {
		return true
	}
	if s, ok := a.(interface{ String() string }); ok {
		// regexps and similar values compare by source
		return s.String() == b.(interface{ String() string }).String()
	}
	return reflect.DeepEqual(a, b)
}
