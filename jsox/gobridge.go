package jsox

import (
	"fmt"
	"math/big"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

var valueType = reflect.TypeOf((*Value)(nil))

// FromGo converts a Go value to a *Value using the global registry.
//
// Pointers, maps and slices keep their identity: two references to the same
// one convert to the same *Value, so the stringifier writes a back-reference
// for the second one. Types with a tagged encoder become KindCustom values.
func FromGo(v any) (*Value, error) {
	return fromGo(defaultRegistry, v)
}

func fromGo(reg *Registry, v any) (*Value, error) {
	if jv, ok := v.(*Value); ok {
		if jv == nil {
			return Null(), nil
		}
		return jv, nil
	}
	c := &goConverter{reg: reg, seen: make(map[identity]*Value)}
	return c.convert(reflect.ValueOf(v))
}

type identity struct {
	ptr uintptr
	typ reflect.Type
	n   int
}

type goConverter struct {
	reg  *Registry
	seen map[identity]*Value
}

func (c *goConverter) convert(rv reflect.Value) (*Value, error) {
	if !rv.IsValid() {
		return Null(), nil
	}
	if rv.Type() == valueType {
		if rv.IsNil() {
			return Null(), nil
		}
		return rv.Interface().(*Value), nil
	}
	if rv.CanInterface() {
		if entry, ok := c.reg.encoder(rv.Type()); ok {
			if isNilable(rv) && rv.IsNil() {
				return Null(), nil
			}
			x := rv.Interface()
			if entry.tag != "" {
				return Custom(x), nil
			}
			return entry.fn(x)
		}
	}

	switch rv.Kind() {
	case reflect.Interface:
		if rv.IsNil() {
			return Null(), nil
		}
		return c.convert(rv.Elem())
	case reflect.Pointer:
		return c.pointer(rv)
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := rv.Int()
		if n > maxSafeInt || n < -maxSafeInt {
			return BigInt(big.NewInt(n)), nil
		}
		return Number(float64(n)), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n := rv.Uint()
		if n > maxSafeInt {
			return BigInt(new(big.Int).SetUint64(n)), nil
		}
		return Number(float64(n)), nil
	case reflect.Float32, reflect.Float64:
		return Number(rv.Float()), nil
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Slice:
		if rv.IsNil() {
			return Null(), nil
		}
		id := identity{ptr: rv.Pointer(), typ: rv.Type(), n: rv.Len()}
		if v, ok := c.seen[id]; ok {
			return v, nil
		}
		out := &Value{kind: KindArray, arrVal: make([]*Value, rv.Len())}
		c.seen[id] = out
		return out, c.elements(out, rv)
	case reflect.Array:
		out := &Value{kind: KindArray, arrVal: make([]*Value, rv.Len())}
		return out, c.elements(out, rv)
	case reflect.Map:
		return c.mapValue(rv)
	case reflect.Struct:
		out := &Value{kind: KindObject, objVal: newObject("", nil)}
		return out, c.structFields(out, rv)
	}
	return nil, fmt.Errorf("jsox: %w: %s", ErrUnsupportedType, rv.Type())
}

const maxSafeInt = 1<<53 - 1

func isNilable(rv reflect.Value) bool {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return true
	}
	return false
}

func (c *goConverter) pointer(rv reflect.Value) (*Value, error) {
	if rv.IsNil() {
		return Null(), nil
	}
	id := identity{ptr: rv.Pointer(), typ: rv.Type()}
	if v, ok := c.seen[id]; ok {
		return v, nil
	}
	elem := rv.Elem()
	if elem.Kind() == reflect.Struct {
		if _, registered := c.reg.encoder(elem.Type()); !registered {
			out := &Value{kind: KindObject, objVal: newObject("", nil)}
			c.seen[id] = out
			return out, c.structFields(out, elem)
		}
	}
	v, err := c.convert(elem)
	if err != nil {
		return nil, err
	}
	if v.isContainer() {
		c.seen[id] = v
	}
	return v, nil
}

func (c *goConverter) elements(out *Value, rv reflect.Value) error {
	for i := 0; i < rv.Len(); i++ {
		e, err := c.convert(rv.Index(i))
		if err != nil {
			return err
		}
		out.arrVal[i] = e
	}
	return nil
}

func (c *goConverter) mapValue(rv reflect.Value) (*Value, error) {
	if rv.IsNil() {
		return Null(), nil
	}
	id := identity{ptr: rv.Pointer(), typ: rv.Type()}
	if v, ok := c.seen[id]; ok {
		return v, nil
	}
	out := &Value{kind: KindObject, objVal: newObject("", nil)}
	c.seen[id] = out

	type entry struct {
		key string
		val reflect.Value
	}
	entries := make([]entry, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k, err := mapKey(iter.Key())
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry{k, iter.Value()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })
	for _, e := range entries {
		v, err := c.convert(e.val)
		if err != nil {
			return nil, err
		}
		out.objVal.set(e.key, v)
	}
	return out, nil
}

func mapKey(k reflect.Value) (string, error) {
	switch k.Kind() {
	case reflect.String:
		return k.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(k.Uint(), 10), nil
	}
	if s, ok := k.Interface().(fmt.Stringer); ok {
		return s.String(), nil
	}
	return "", fmt.Errorf("jsox: %w: map key type %s", ErrUnsupportedType, k.Type())
}

func (c *goConverter) structFields(out *Value, rv reflect.Value) error {
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		name, omitEmpty, skip := fieldTag(sf)
		if skip {
			continue
		}
		fv := rv.Field(i)
		if sf.Anonymous && name == "" {
			ft := sf.Type
			if ft.Kind() == reflect.Pointer {
				if fv.IsNil() {
					continue
				}
				ft, fv = ft.Elem(), fv.Elem()
			}
			if ft.Kind() == reflect.Struct {
				if err := c.structFields(out, fv); err != nil {
					return err
				}
				continue
			}
		}
		if !sf.IsExported() {
			continue
		}
		if name == "" {
			name = sf.Name
		}
		if omitEmpty && fv.IsZero() {
			continue
		}
		v, err := c.convert(fv)
		if err != nil {
			return fmt.Errorf("jsox: field %s: %w", sf.Name, err)
		}
		out.objVal.set(name, v)
	}
	return nil
}

// fieldTag reads `jsox:"name,omitempty"`, falling back to the json tag.
func fieldTag(sf reflect.StructField) (name string, omitEmpty, skip bool) {
	tag, ok := sf.Tag.Lookup("jsox")
	if !ok {
		tag = sf.Tag.Get("json")
	}
	if tag == "-" {
		return "", false, true
	}
	parts := strings.Split(tag, ",")
	for _, opt := range parts[1:] {
		if opt == "omitempty" {
			omitEmpty = true
		}
	}
	return parts[0], omitEmpty, false
}

// ============================================================
// Back to Go
// ============================================================

// Interface converts v to plain Go values: nil, bool, float64, *big.Int,
// time.Time, string, []any, map[string]any, the element slice of a typed
// array, or the payload of a custom value. Undefined and elided slots become
// nil. Shared containers convert once, so cycles are preserved.
func (v *Value) Interface() any {
	return toGo(v, make(map[*Value]any))
}

func toGo(v *Value, memo map[*Value]any) any {
	switch v.Kind() {
	case KindUndefined, KindNull, KindEmpty:
		return nil
	case KindBool:
		return v.boolVal
	case KindNumber:
		return v.numVal
	case KindBigInt:
		return new(big.Int).Set(v.bigVal)
	case KindDate:
		return v.timeVal
	case KindString:
		return v.strVal
	case KindTyped:
		return v.typedVal.slice()
	case KindCustom:
		return v.custom
	case KindArray:
		if out, ok := memo[v]; ok {
			return out
		}
		out := make([]any, len(v.arrVal))
		memo[v] = out
		for i, e := range v.arrVal {
			out[i] = toGo(e, memo)
		}
		return out
	case KindObject:
		if out, ok := memo[v]; ok {
			return out
		}
		out := make(map[string]any, len(v.objVal.fields))
		memo[v] = out
		for _, f := range v.objVal.fields {
			out[f.Key] = toGo(f.Value, memo)
		}
		return out
	}
	return nil
}
