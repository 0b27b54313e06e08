package jsox

import (
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"

	"github.com/valyala/fastjson"
)

// FromJSON converts JSON text to a value. Object member order is kept.
// Integers too large for a float64 to hold exactly become BigInt values.
func FromJSON(data []byte) (*Value, error) {
	var p fastjson.Parser
	jv, err := p.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("jsox: from json: %w", err)
	}
	return fromFast(jv)
}

func fromFast(jv *fastjson.Value) (*Value, error) {
	switch jv.Type() {
	case fastjson.TypeNull:
		return Null(), nil
	case fastjson.TypeTrue:
		return Bool(true), nil
	case fastjson.TypeFalse:
		return Bool(false), nil
	case fastjson.TypeString:
		b, err := jv.StringBytes()
		if err != nil {
			return nil, err
		}
		return String(string(b)), nil
	case fastjson.TypeNumber:
		raw := string(jv.MarshalTo(nil))
		if isIntegerText(raw) {
			if n, ok := new(big.Int).SetString(raw, 10); ok && n.CmpAbs(big.NewInt(maxSafeInt)) > 0 {
				return BigInt(n), nil
			}
		}
		f, err := jv.Float64()
		if err != nil {
			return nil, fmt.Errorf("jsox: from json: %w: %s", ErrMalformedNumber, raw)
		}
		return Number(f), nil
	case fastjson.TypeArray:
		items, err := jv.Array()
		if err != nil {
			return nil, err
		}
		out := make([]*Value, len(items))
		for i, item := range items {
			if out[i], err = fromFast(item); err != nil {
				return nil, err
			}
		}
		return Array(out...), nil
	case fastjson.TypeObject:
		obj, err := jv.Object()
		if err != nil {
			return nil, err
		}
		out := Object()
		var visitErr error
		obj.Visit(func(key []byte, member *fastjson.Value) {
			if visitErr != nil {
				return
			}
			v, err := fromFast(member)
			if err != nil {
				visitErr = err
				return
			}
			out.Set(string(key), v)
		})
		return out, visitErr
	}
	return nil, fmt.Errorf("jsox: from json: unexpected type %s", jv.Type())
}

func isIntegerText(s string) bool {
	if s == "" {
		return false
	}
	if s[0] == '-' {
		s = s[1:]
	}
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ToJSON converts a value to compact JSON. Shared values are written out
// in full at every position. Cycles, NaN and the infinities fail. Undefined and elided
// slots become null, BigInt becomes a bare integer, dates become strings,
// typed arrays become arrays of numbers and custom values are written
// through the registered encoder.
func ToJSON(v *Value) ([]byte, error) {
	c := &jsonConverter{reg: defaultRegistry, active: make(map[*Value]bool)}
	jv, err := c.convert(v)
	if err != nil {
		return nil, err
	}
	return jv.MarshalTo(nil), nil
}

type jsonConverter struct {
	arena  fastjson.Arena
	reg    *Registry
	active map[*Value]bool
}

func (c *jsonConverter) convert(v *Value) (*fastjson.Value, error) {
	a := &c.arena
	switch v.Kind() {
	case KindUndefined, KindNull, KindEmpty:
		return a.NewNull(), nil
	case KindBool:
		if v.boolVal {
			return a.NewTrue(), nil
		}
		return a.NewFalse(), nil
	case KindNumber:
		if math.IsNaN(v.numVal) || math.IsInf(v.numVal, 0) {
			return nil, fmt.Errorf("jsox: to json: %w: %s", ErrUnsupportedType, formatNumber(v.numVal))
		}
		return a.NewNumberString(formatNumber(v.numVal)), nil
	case KindBigInt:
		return a.NewNumberString(v.bigVal.String()), nil
	case KindDate:
		return a.NewString(formatDate(v.timeVal, v.ns)), nil
	case KindString:
		return a.NewString(v.strVal), nil
	case KindTyped:
		return c.typed(v.typedVal)
	case KindCustom:
		return c.custom(v)
	}

	if c.active[v] {
		return nil, fmt.Errorf("jsox: to json: %w: cyclic value", ErrUnsupportedType)
	}
	c.active[v] = true
	defer delete(c.active, v)

	if v.kind == KindArray {
		arr := a.NewArray()
		for i, e := range v.arrVal {
			je, err := c.convert(e)
			if err != nil {
				return nil, err
			}
			arr.SetArrayItem(i, je)
		}
		return arr, nil
	}
	obj := a.NewObject()
	for _, f := range v.objVal.fields {
		jf, err := c.convert(f.Value)
		if err != nil {
			return nil, err
		}
		obj.Set(f.Key, jf)
	}
	return obj, nil
}

func (c *jsonConverter) typed(t *TypedArray) (*fastjson.Value, error) {
	arr := c.arena.NewArray()
	elems := reflect.ValueOf(t.slice())
	for i := 0; i < elems.Len(); i++ {
		var text string
		switch e := elems.Index(i); e.Kind() {
		case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			text = strconv.FormatInt(e.Int(), 10)
		case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			text = strconv.FormatUint(e.Uint(), 10)
		default:
			f := e.Float()
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, fmt.Errorf("jsox: to json: %w: %s in %s", ErrUnsupportedType, formatNumber(f), t.Kind)
			}
			text = formatNumber(f)
		}
		arr.SetArrayItem(i, c.arena.NewNumberString(text))
	}
	return arr, nil
}

func (c *jsonConverter) custom(v *Value) (*fastjson.Value, error) {
	entry, ok := c.reg.encoder(reflect.TypeOf(v.custom))
	if !ok {
		return nil, fmt.Errorf("jsox: to json: %w: no encoder for %T", ErrUnsupportedType, v.custom)
	}
	form, err := entry.fn(v.custom)
	if err != nil {
		return nil, err
	}
	if form.Kind() == KindCustom {
		return nil, fmt.Errorf("jsox: to json: %w: encoder for %T returned a custom value", ErrUnsupportedType, v.custom)
	}
	return c.convert(form)
}
