package jsox

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"
)

type celsius struct {
	Deg float64
}

func celsiusRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	err := reg.AddType("temp", celsius{},
		func(v any) (*Value, error) {
			return String(strconv.FormatFloat(v.(celsius).Deg, 'f', -1, 64) + "C"), nil
		},
		func(raw *Value) (*Value, error) {
			s, err := raw.AsString()
			if err != nil {
				return nil, err
			}
			deg, err := strconv.ParseFloat(strings.TrimSuffix(s, "C"), 64)
			if err != nil {
				return nil, err
			}
			return Custom(celsius{Deg: deg}), nil
		})
	if err != nil {
		t.Fatalf("AddType: %v", err)
	}
	return reg
}

func TestRegistry_CustomRoundTrip(t *testing.T) {
	reg := celsiusRegistry(t)

	text := mustStringify(t, []any{celsius{21.5}, "x"}, WithEncoders(reg))
	if text != `[temp"21.5C","x"]` {
		t.Fatalf("got %s", text)
	}

	v := mustParse(t, text, WithRegistry(reg))
	arr, _ := v.AsArray()
	got, err := arr[0].AsCustom()
	if err != nil {
		t.Fatalf("AsCustom: %v", err)
	}
	if got != (celsius{21.5}) {
		t.Errorf("decoded %v", got)
	}

	// Without the registration the tag is unknown.
	if _, err := Parse(text); !errors.Is(err, ErrUnknownTypeTag) {
		t.Errorf("error = %v, expected ErrUnknownTypeTag", err)
	}
}

type span struct {
	From, To int
}

func TestRegistry_ObjectAndArrayForms(t *testing.T) {
	reg := NewRegistry()
	err := reg.AddType("span", span{},
		func(v any) (*Value, error) {
			s := v.(span)
			return Array(Number(float64(s.From)), Number(float64(s.To))), nil
		},
		func(raw *Value) (*Value, error) {
			arr, err := raw.AsArray()
			if err != nil || len(arr) != 2 {
				return nil, fmt.Errorf("span needs two numbers")
			}
			from, _ := arr[0].AsNumber()
			to, _ := arr[1].AsNumber()
			return Custom(span{int(from), int(to)}), nil
		})
	if err != nil {
		t.Fatalf("AddType: %v", err)
	}

	text := mustStringify(t, span{1, 5}, WithEncoders(reg))
	if text != "span[1,5]" {
		t.Fatalf("got %s", text)
	}
	v := mustParse(t, text, WithRegistry(reg))
	if got, _ := v.AsCustom(); got != (span{1, 5}) {
		t.Errorf("decoded %v", got)
	}

	_, err = Parse("span[1]", WithRegistry(reg))
	if err == nil || !strings.Contains(err.Error(), "span needs two numbers") {
		t.Errorf("decoder error not reported: %v", err)
	}
}

func TestRegistry_MapTag(t *testing.T) {
	v := mustParse(t, `map{"1":one, "two words":2}`)
	if v.Class() != "map" || v.Len() != 2 {
		t.Fatalf("class %q len %d", v.Class(), v.Len())
	}
	if got := mustStringify(t, v); got != `map{"1":"one","two words":2}` {
		t.Errorf("got %s", got)
	}
}

func TestRegistry_Duplicates(t *testing.T) {
	reg := NewRegistry()
	enc := func(v any) (*Value, error) { return String("x"), nil }
	dec := func(raw *Value) (*Value, error) { return raw, nil }

	if err := reg.ToJSOX("thing", span{}, enc); err != nil {
		t.Fatalf("first ToJSOX: %v", err)
	}
	err := reg.ToJSOX("thing", celsius{}, enc)
	var re *RegistrationError
	if !errors.As(err, &re) || !errors.Is(err, ErrDuplicateTypeRegistration) {
		t.Fatalf("error = %v, expected duplicate registration", err)
	}
	if re.Tag != "thing" || re.Direction != DirEncode {
		t.Errorf("error fields = %q %s", re.Tag, re.Direction)
	}

	// The decode direction is independent.
	if err := reg.FromJSOX("thing", dec); err != nil {
		t.Fatalf("FromJSOX: %v", err)
	}
	err = reg.FromJSOX("thing", dec)
	if !errors.As(err, &re) || re.Direction != DirDecode {
		t.Errorf("error = %v, expected fromJSOX duplicate", err)
	}
}

func TestRegistry_ReservedTags(t *testing.T) {
	reg := NewRegistry()
	dec := func(raw *Value) (*Value, error) { return raw, nil }
	for _, tag := range []string{"u8", "f64", "ab", "ref"} {
		if err := reg.FromJSOX(tag, dec); !errors.Is(err, ErrReservedTag) {
			t.Errorf("FromJSOX(%q) = %v, expected ErrReservedTag", tag, err)
		}
	}
	for _, tag := range []string{"", "a b", "x!", "9lives"} {
		if err := reg.FromJSOX(tag, dec); err == nil {
			t.Errorf("FromJSOX(%q) accepted an invalid tag", tag)
		}
	}
}

func TestRegistry_CloneIsolation(t *testing.T) {
	reg := NewRegistry()
	clone := reg.Clone()
	dec := func(raw *Value) (*Value, error) { return raw, nil }
	if err := clone.FromJSOX("only", dec); err != nil {
		t.Fatalf("FromJSOX: %v", err)
	}
	if _, ok := reg.decoder("only"); ok {
		t.Error("registration on a clone leaked into the original")
	}
}

func TestGlobalRegistry(t *testing.T) {
	t.Cleanup(Reset)
	dec := func(raw *Value) (*Value, error) {
		s, _ := raw.AsString()
		return String(strings.ToUpper(s)), nil
	}

	early := Begin(nil)
	if err := FromJSOX("up", dec); err != nil {
		t.Fatalf("FromJSOX: %v", err)
	}
	v := mustParse(t, `up"abc"`)
	if !Equal(v, String("ABC")) {
		t.Errorf("global decoder not used")
	}

	// Parsers snapshot the registry when they are created.
	if _, err := early.Write(`up"abc"`); !errors.Is(err, ErrUnknownTypeTag) {
		t.Errorf("early parser saw a later registration: %v", err)
	}

	// Instance registrations stay local.
	p := Begin(nil)
	if err := p.FromJSOX("local", dec); err != nil {
		t.Fatalf("parser FromJSOX: %v", err)
	}
	if _, err := Parse(`local"x"`); !errors.Is(err, ErrUnknownTypeTag) {
		t.Errorf("instance registration leaked: %v", err)
	}

	Reset()
	if _, err := Parse(`up"abc"`); !errors.Is(err, ErrUnknownTypeTag) {
		t.Errorf("Reset kept a registration: %v", err)
	}
	if _, err := Parse(`regex"a"`); err != nil {
		t.Errorf("Reset dropped a built-in: %v", err)
	}
}

func TestGlobalDefineClass(t *testing.T) {
	t.Cleanup(Reset)
	type point struct {
		X int `jsox:"x"`
		Y int `jsox:"y"`
	}
	if err := DefineClass("Pt", point{}); err != nil {
		t.Fatalf("DefineClass: %v", err)
	}
	got := mustStringify(t, []point{{1, 2}, {3, 4}})
	if got != "Pt{x,y}[Pt{1,2},Pt{3,4}]" {
		t.Errorf("got %s", got)
	}
	if err := DefineClass("bad name", point{}); err == nil {
		t.Error("invalid class name accepted")
	}
}
