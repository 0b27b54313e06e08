package jsox

import (
	"fmt"
	"math/big"
	"reflect"
	"regexp"
	"sort"
	"sync"
	"time"
)

// EncodeFunc converts a Go value of a registered type to the value written
// after its tag. It may return a string, object or array (written as
// tag"...", tag{...} or tag[...]) or any other value, which is written untagged.
type EncodeFunc func(v any) (*Value, error)

// DecodeFunc converts the parsed body of a tagged value into its final value,
// usually a Custom wrapping a Go value.
type DecodeFunc func(raw *Value) (*Value, error)

type encoderEntry struct {
	tag string // "" for built-ins that produce a native value
	typ reflect.Type
	fn  EncodeFunc
}

type classShape struct {
	name   string
	fields []string
	sig    string // sorted field names joined by NUL
}

// Registry maps Go types to encoders and tags to decoders. It also holds
// class shapes announced by DefineClass. A Registry is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	encoders map[reflect.Type]encoderEntry
	encTags  map[string]reflect.Type
	decoders map[string]DecodeFunc
	classes  []*classShape
}

// NewRegistry returns a registry holding the built-in conversions.
func NewRegistry() *Registry {
	r := &Registry{}
	r.init()
	return r
}

func (r *Registry) init() {
	r.encoders = make(map[reflect.Type]encoderEntry)
	r.encTags = make(map[string]reflect.Type)
	r.decoders = make(map[string]DecodeFunc)
	r.classes = nil
	registerBuiltins(r)
}

// ToJSOX registers an encoder for the concrete type of sample.
func (r *Registry) ToJSOX(tag string, sample any, fn EncodeFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addEncoder(tag, reflect.TypeOf(sample), fn)
}

// FromJSOX registers a decoder for tag.
func (r *Registry) FromJSOX(tag string, fn DecodeFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addDecoder(tag, fn)
}

// AddType registers both directions for tag.
func (r *Registry) AddType(tag string, sample any, enc EncodeFunc, dec DecodeFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.addEncoder(tag, reflect.TypeOf(sample), enc); err != nil {
		return err
	}
	return r.addDecoder(tag, dec)
}

// DefineClass announces a class shape. Untagged objects whose key set matches
// the sample's are written with the class shorthand. The sample may be a
// []string of field names, an object *Value, or anything FromGo turns into an
// object (structs, string-keyed maps).
func (r *Registry) DefineClass(name string, sample any) error {
	fields, err := sampleFields(sample)
	if err != nil {
		return err
	}
	if name == "" || !isBareKey(name) || name[len(name)-1] == '!' {
		return fmt.Errorf("jsox: invalid class name %q", name)
	}
	shape := &classShape{name: name, fields: fields, sig: fieldSignature(fields)}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.classes {
		if c.name == name {
			r.classes[i] = shape
			return nil
		}
	}
	r.classes = append(r.classes, shape)
	return nil
}

// Clone returns an independent copy of the registry.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := &Registry{
		encoders: make(map[reflect.Type]encoderEntry, len(r.encoders)),
		encTags:  make(map[string]reflect.Type, len(r.encTags)),
		decoders: make(map[string]DecodeFunc, len(r.decoders)),
		classes:  append([]*classShape(nil), r.classes...),
	}
	for k, v := range r.encoders {
		c.encoders[k] = v
	}
	for k, v := range r.encTags {
		c.encTags[k] = v
	}
	for k, v := range r.decoders {
		c.decoders[k] = v
	}
	return c
}

// Reset drops every registration and restores the built-ins.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.init()
}

func (r *Registry) addEncoder(tag string, typ reflect.Type, fn EncodeFunc) error {
	if err := checkTag(tag, DirEncode); err != nil {
		return err
	}
	if typ == nil || fn == nil {
		return fmt.Errorf("jsox: toJSOX %q needs a non-nil sample and encoder", tag)
	}
	if _, dup := r.encTags[tag]; dup {
		return &RegistrationError{Err: ErrDuplicateTypeRegistration, Tag: tag, Direction: DirEncode}
	}
	if _, dup := r.encoders[typ]; dup {
		return &RegistrationError{Err: ErrDuplicateTypeRegistration, Tag: tag, Direction: DirEncode}
	}
	r.encoders[typ] = encoderEntry{tag: tag, typ: typ, fn: fn}
	r.encTags[tag] = typ
	return nil
}

func (r *Registry) addDecoder(tag string, fn DecodeFunc) error {
	if err := checkTag(tag, DirDecode); err != nil {
		return err
	}
	if fn == nil {
		return fmt.Errorf("jsox: fromJSOX %q needs a decoder", tag)
	}
	if _, dup := r.decoders[tag]; dup {
		return &RegistrationError{Err: ErrDuplicateTypeRegistration, Tag: tag, Direction: DirDecode}
	}
	r.decoders[tag] = fn
	return nil
}

func checkTag(tag string, dir Direction) error {
	if _, typed := ElementKindFromTag(tag); typed || tag == "ref" {
		return &RegistrationError{Err: ErrReservedTag, Tag: tag, Direction: dir}
	}
	if tag == "" || !isBareKey(tag) || tag[len(tag)-1] == '!' {
		return fmt.Errorf("jsox: invalid tag %q", tag)
	}
	return nil
}

func (r *Registry) encoder(typ reflect.Type) (encoderEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.encoders[typ]
	return e, ok
}

func (r *Registry) decoder(tag string) (DecodeFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.decoders[tag]
	return fn, ok
}

func (r *Registry) classBySig(sig string) *classShape {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.classes {
		if c.sig == sig {
			return c
		}
	}
	return nil
}

func (r *Registry) classByName(name string) *classShape {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.classes {
		if c.name == name {
			return c
		}
	}
	return nil
}

func sampleFields(sample any) ([]string, error) {
	if names, ok := sample.([]string); ok {
		out := make([]string, len(names))
		copy(out, names)
		return out, nil
	}
	v, err := FromGo(sample)
	if err != nil {
		return nil, err
	}
	if v.Kind() != KindObject {
		return nil, fmt.Errorf("jsox: class sample must be an object, got %s", v.Kind())
	}
	return v.Keys(), nil
}

func fieldSignature(fields []string) string {
	sorted := append([]string(nil), fields...)
	sort.Strings(sorted)
	sig := ""
	for i, f := range sorted {
		if i > 0 {
			sig += "\x00"
		}
		sig += f
	}
	return sig
}

// ============================================================
// Built-ins
// ============================================================

func registerBuiltins(r *Registry) {
	native := func(sample any, fn EncodeFunc) {
		t := reflect.TypeOf(sample)
		r.encoders[t] = encoderEntry{typ: t, fn: fn}
	}

	native(time.Time{}, func(v any) (*Value, error) {
		t := v.(time.Time)
		if t.Nanosecond()%int(time.Millisecond) != 0 {
			return DateNS(t), nil
		}
		return Date(t), nil
	})
	native(&big.Int{}, func(v any) (*Value, error) {
		return BigInt(v.(*big.Int)), nil
	})
	native(big.Int{}, func(v any) (*Value, error) {
		b := v.(big.Int)
		return BigInt(&b), nil
	})
	native([]byte(nil), func(v any) (*Value, error) { return TypedFromUint8s(v.([]byte)), nil })
	native([]int8(nil), func(v any) (*Value, error) { return TypedFromInt8s(v.([]int8)), nil })
	native([]uint16(nil), func(v any) (*Value, error) { return TypedFromUint16s(v.([]uint16)), nil })
	native([]int16(nil), func(v any) (*Value, error) { return TypedFromInt16s(v.([]int16)), nil })
	native([]uint32(nil), func(v any) (*Value, error) { return TypedFromUint32s(v.([]uint32)), nil })
	native([]int32(nil), func(v any) (*Value, error) { return TypedFromInt32s(v.([]int32)), nil })
	native([]uint64(nil), func(v any) (*Value, error) { return TypedFromUint64s(v.([]uint64)), nil })
	native([]int64(nil), func(v any) (*Value, error) { return TypedFromInt64s(v.([]int64)), nil })
	native([]float32(nil), func(v any) (*Value, error) { return TypedFromFloat32s(v.([]float32)), nil })
	native([]float64(nil), func(v any) (*Value, error) { return TypedFromFloat64s(v.([]float64)), nil })
	native(&TypedArray{}, func(v any) (*Value, error) {
		t := v.(*TypedArray)
		return Typed(t.Kind, t.Bytes), nil
	})

	_ = r.addEncoder("regex", reflect.TypeOf(&regexp.Regexp{}), func(v any) (*Value, error) {
		return String(v.(*regexp.Regexp).String()), nil
	})
	_ = r.addDecoder("regex", func(raw *Value) (*Value, error) {
		src, err := raw.AsString()
		if err != nil {
			return nil, err
		}
		re, err := regexp.Compile(src)
		if err != nil {
			return nil, err
		}
		return Custom(re), nil
	})
	_ = r.addDecoder("map", func(raw *Value) (*Value, error) {
		if raw.Kind() != KindObject {
			return nil, fmt.Errorf("jsox: map body must be an object, got %s", raw.Kind())
		}
		raw.SetClass("map")
		return raw, nil
	})
}

// ============================================================
// Global registry
// ============================================================

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the process-wide registry. Parsers and stringifiers
// take a snapshot of it when they are created.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// ToJSOX registers a global encoder.
func ToJSOX(tag string, sample any, fn EncodeFunc) error {
	return defaultRegistry.ToJSOX(tag, sample, fn)
}

// FromJSOX registers a global decoder.
func FromJSOX(tag string, fn DecodeFunc) error {
	return defaultRegistry.FromJSOX(tag, fn)
}

// AddType registers a global encoder and decoder.
func AddType(tag string, sample any, enc EncodeFunc, dec DecodeFunc) error {
	return defaultRegistry.AddType(tag, sample, enc, dec)
}

// DefineClass announces a global class shape.
func DefineClass(name string, sample any) error {
	return defaultRegistry.DefineClass(name, sample)
}

// Reset clears every global registration and class definition.
func Reset() {
	defaultRegistry.Reset()
}
