package jsox

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Stringifier writes values as JSOX. It remembers which classes it has
// announced, so a sequence of Stringify calls forms one stream whose class
// headers are written once. A Stringifier is not safe for concurrent use.
type Stringifier struct {
	opts      StringifyOptions
	reg       *Registry
	keys      map[string]bool
	announced map[string][]string
}

// NewStringifier creates a stringifier with a snapshot of the global registry.
func NewStringifier(opts ...StringifyOption) *Stringifier {
	o := DefaultStringifyOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return NewStringifierWithOptions(o)
}

// NewStringifierWithOptions creates a stringifier from an options struct.
func NewStringifierWithOptions(opts StringifyOptions) *Stringifier {
	reg := opts.Registry
	if reg == nil {
		reg = defaultRegistry
	}
	s := &Stringifier{
		opts:      opts,
		reg:       reg.Clone(),
		announced: make(map[string][]string),
	}
	if opts.Keys != nil {
		s.keys = make(map[string]bool, len(opts.Keys))
		for _, k := range opts.Keys {
			s.keys[k] = true
		}
	}
	return s
}

// Stringify writes v as JSOX. v may be a *Value or any Go value FromGo accepts.
func Stringify(v any, opts ...StringifyOption) (string, error) {
	return NewStringifier(opts...).Stringify(v)
}

// DefineClass announces a class shape for this stringifier only.
func (s *Stringifier) DefineClass(name string, sample any) error {
	return s.reg.DefineClass(name, sample)
}

// ToJSOX registers an encoder for this stringifier only.
func (s *Stringifier) ToJSOX(tag string, sample any, fn EncodeFunc) error {
	return s.reg.ToJSOX(tag, sample, fn)
}

// SetIgnoreNonEnumerable toggles omission of undefined members.
func (s *Stringifier) SetIgnoreNonEnumerable(ignore bool) {
	s.opts.IgnoreNonEnumerable = ignore
}

// Reset forgets announced classes, so the next output starts a new stream.
func (s *Stringifier) Reset() {
	s.announced = make(map[string][]string)
}

// Stringify writes v. Class headers this stringifier has not announced yet
// are written in front of the value.
func (s *Stringifier) Stringify(v any) (string, error) {
	root, err := fromGo(s.reg, v)
	if err != nil {
		return "", err
	}
	if s.opts.Replacer != nil {
		if root = s.opts.Replacer("", root); root == nil {
			root = Undefined()
		}
	}
	w := &writer{
		s:       s,
		paths:   make(map[*Value][]PathElement),
		active:  make(map[*Value]bool),
		learned: make(map[string][]string),
	}
	w.out = &w.body
	if err := w.value(root, 0); err != nil {
		return "", err
	}
	// Announcements count only once the output exists.
	for name, fields := range w.learned {
		s.announced[name] = fields
	}
	return w.head.String() + w.body.String(), nil
}

// ============================================================
// Writer
// ============================================================

type writer struct {
	s    *Stringifier
	head strings.Builder // class headers
	body strings.Builder
	out  *strings.Builder

	paths  map[*Value][]PathElement // first-seen path of each container
	path   []PathElement
	custom int             // nesting inside encoder output
	active map[*Value]bool // containers being written inside encoder output

	learned map[string][]string // classes announced by this output
}

func (w *writer) tok(class TokenClass, text string) {
	if hl := w.s.opts.Highlighter; hl != nil {
		text = hl(class, text)
	}
	w.out.WriteString(text)
}

func (w *writer) punct(text string) {
	w.tok(TokenPunct, text)
}

func (w *writer) newline(depth int) {
	if w.s.opts.Indent == "" {
		return
	}
	w.out.WriteByte('\n')
	for i := 0; i < depth; i++ {
		w.out.WriteString(w.s.opts.Indent)
	}
}

func (w *writer) colon() {
	if w.s.opts.Indent != "" {
		w.punct(": ")
		return
	}
	w.punct(":")
}

func (w *writer) key(k string) {
	if isBareKey(k) {
		w.tok(TokenKey, k)
		return
	}
	w.tok(TokenKey, quoteString(k))
}

func (w *writer) value(v *Value, depth int) error {
	switch v.Kind() {
	case KindUndefined, KindEmpty:
		w.tok(TokenLiteral, "undefined")
	case KindNull:
		w.tok(TokenLiteral, "null")
	case KindBool:
		if v.boolVal {
			w.tok(TokenLiteral, "true")
		} else {
			w.tok(TokenLiteral, "false")
		}
	case KindNumber:
		if math.IsNaN(v.numVal) || math.IsInf(v.numVal, 0) {
			w.tok(TokenLiteral, formatNumber(v.numVal))
		} else {
			w.tok(TokenNumber, formatNumber(v.numVal))
		}
	case KindBigInt:
		w.tok(TokenNumber, v.bigVal.String()+"n")
	case KindDate:
		w.tok(TokenDate, formatDate(v.timeVal, v.ns))
	case KindString:
		w.tok(TokenString, quoteString(v.strVal))
	default:
		return w.container(v, depth)
	}
	return nil
}

func (w *writer) container(v *Value, depth int) error {
	if p, seen := w.paths[v]; seen {
		w.ref(p)
		return nil
	}
	if w.custom == 0 {
		w.paths[v] = append([]PathElement(nil), w.path...)
	} else {
		if w.active[v] {
			return fmt.Errorf("jsox: %w: cyclic value inside a custom encoding", ErrUnsupportedType)
		}
		w.active[v] = true
		defer delete(w.active, v)
	}

	switch v.kind {
	case KindArray:
		return w.array(v.arrVal, depth)
	case KindObject:
		return w.object(v, depth)
	case KindTyped:
		w.tok(TokenTag, v.typedVal.Kind.Tag())
		w.punct("[")
		w.tok(TokenString, `"`+v.typedVal.Base64()+`"`)
		w.punct("]")
		return nil
	case KindCustom:
		return w.customValue(v, depth)
	}
	return fmt.Errorf("jsox: %w: kind %s", ErrUnsupportedType, v.kind)
}

func (w *writer) ref(path []PathElement) {
	w.tok(TokenTag, "ref")
	w.punct("[")
	for i, seg := range path {
		if i > 0 {
			w.punct(",")
		}
		if seg.IsIndex {
			w.tok(TokenNumber, strconv.Itoa(seg.Index))
		} else {
			w.tok(TokenString, quoteString(seg.Key))
		}
	}
	w.punct("]")
}

func (w *writer) array(elems []*Value, depth int) error {
	w.punct("[")
	if len(elems) == 0 {
		w.punct("]")
		return nil
	}
	for i, e := range elems {
		if i > 0 {
			w.punct(",")
		}
		w.newline(depth + 1)
		if e.Kind() == KindEmpty {
			continue
		}
		if rep := w.s.opts.Replacer; rep != nil {
			if e = rep(strconv.Itoa(i), e); e == nil {
				e = Undefined()
			}
		}
		w.path = append(w.path, PathElement{IsIndex: true, Index: i})
		err := w.value(e, depth+1)
		w.path = w.path[:len(w.path)-1]
		if err != nil {
			return err
		}
	}
	if elems[len(elems)-1].Kind() == KindEmpty {
		w.punct(",")
	}
	w.newline(depth)
	w.punct("]")
	return nil
}

// members returns the object members that will be written.
func (w *writer) members(v *Value) []Field {
	out := make([]Field, 0, len(v.objVal.fields))
	for _, f := range v.objVal.fields {
		if w.s.keys != nil && !w.s.keys[f.Key] {
			continue
		}
		val := f.Value
		if rep := w.s.opts.Replacer; rep != nil {
			if val = rep(f.Key, val); val == nil {
				continue
			}
		}
		if w.s.opts.IgnoreNonEnumerable && val.Kind() == KindUndefined {
			continue
		}
		out = append(out, Field{Key: f.Key, Value: val})
	}
	return out
}

func (w *writer) object(v *Value, depth int) error {
	fields := w.members(v)
	keys := make([]string, len(fields))
	for i, f := range fields {
		keys[i] = f.Key
	}
	name := v.objVal.class

	switch {
	case name != "":
		if _, tagged := w.s.reg.decoder(name); tagged {
			w.tok(TokenTag, name)
			return w.named(fields, depth)
		}
		if shape := w.s.reg.classByName(name); shape != nil && equalStrings(shape.fields, keys) {
			w.announce(shape)
			return w.positional(name, fields, shape.fields, depth)
		}
		known, ok := w.known(name)
		if ok && equalStrings(known, keys) {
			return w.positional(name, fields, known, depth)
		}
		if !ok && len(keys) > 0 && w.s.reg.classByName(name) == nil {
			// The header must precede every instance, nested ones included.
			w.announce(&classShape{name: name, fields: keys, sig: fieldSignature(keys)})
			return w.positional(name, fields, keys, depth)
		}
		w.tok(TokenTag, name)
		return w.named(fields, depth)
	case len(fields) > 0:
		if shape := w.s.reg.classBySig(fieldSignature(keys)); shape != nil {
			w.announce(shape)
			return w.positional(shape.name, fields, shape.fields, depth)
		}
	}
	return w.named(fields, depth)
}

// named writes {key:value,...}.
func (w *writer) named(fields []Field, depth int) error {
	w.punct("{")
	if len(fields) == 0 {
		w.punct("}")
		return nil
	}
	for i, f := range fields {
		if i > 0 {
			w.punct(",")
		}
		w.newline(depth + 1)
		w.key(f.Key)
		w.colon()
		w.path = append(w.path, PathElement{Key: f.Key})
		err := w.value(f.Value, depth+1)
		w.path = w.path[:len(w.path)-1]
		if err != nil {
			return err
		}
	}
	w.newline(depth)
	w.punct("}")
	return nil
}

// positional writes Name{v1,v2,...} in the class field order.
func (w *writer) positional(name string, fields []Field, order []string, depth int) error {
	byKey := make(map[string]*Value, len(fields))
	for _, f := range fields {
		byKey[f.Key] = f.Value
	}
	w.tok(TokenTag, name)
	w.punct("{")
	if len(order) == 0 {
		w.punct("}")
		return nil
	}
	for i, k := range order {
		if i > 0 {
			w.punct(",")
		}
		w.newline(depth + 1)
		w.path = append(w.path, PathElement{Key: k})
		err := w.value(byKey[k], depth+1)
		w.path = w.path[:len(w.path)-1]
		if err != nil {
			return err
		}
	}
	w.newline(depth)
	w.punct("}")
	return nil
}

// announce writes a class header unless the class is already known with
// the same fields. A header for a name known with other fields redefines it.
func (w *writer) announce(shape *classShape) {
	known, ok := w.known(shape.name)
	if ok && equalStrings(known, shape.fields) {
		return
	}
	name := shape.name
	if ok {
		name += "!"
	}
	w.out = &w.head
	w.tok(TokenTag, name)
	w.punct("{")
	for i, f := range shape.fields {
		if i > 0 {
			w.punct(",")
		}
		w.key(f)
	}
	w.punct("}")
	if w.s.opts.Indent != "" {
		w.head.WriteByte('\n')
	}
	w.out = &w.body
	w.learned[shape.name] = shape.fields
}

// known returns the fields a class was last announced with, including
// announcements made by the output in progress.
func (w *writer) known(name string) ([]string, bool) {
	if fields, ok := w.learned[name]; ok {
		return fields, true
	}
	fields, ok := w.s.announced[name]
	return fields, ok
}

func (w *writer) customValue(v *Value, depth int) error {
	payload := v.custom
	entry, ok := w.s.reg.encoder(reflect.TypeOf(payload))
	if !ok {
		conv, err := fromGo(w.s.reg, payload)
		if err != nil {
			return err
		}
		if conv.Kind() == KindCustom {
			return fmt.Errorf("jsox: %w: no encoder for %T", ErrUnsupportedType, payload)
		}
		return w.value(conv, depth)
	}
	form, err := entry.fn(payload)
	if err != nil {
		return fmt.Errorf("jsox: encoding %T: %w", payload, err)
	}
	if entry.tag == "" {
		return w.value(form, depth)
	}

	w.custom++
	defer func() { w.custom-- }()
	switch form.Kind() {
	case KindString:
		w.tok(TokenTag, entry.tag)
		w.tok(TokenString, quoteString(form.strVal))
		return nil
	case KindObject, KindArray:
		if w.active[form] {
			return fmt.Errorf("jsox: %w: cyclic value inside a custom encoding", ErrUnsupportedType)
		}
		w.active[form] = true
		defer delete(w.active, form)
		w.tok(TokenTag, entry.tag)
		if form.kind == KindArray {
			return w.array(form.arrVal, depth)
		}
		return w.named(w.members(form), depth)
	default:
		return w.value(form, depth)
	}
}

// ============================================================
// Scalars
// ============================================================

// formatNumber writes the shortest form that parses back to f.
func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		if math.Signbit(f) {
			return "-NaN"
		}
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0 && math.Signbit(f):
		return "-0"
	}
	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

const (
	dateLayoutMS = "2006-01-02T15:04:05.000Z07:00"
	dateLayoutNS = "2006-01-02T15:04:05.000000000Z07:00"
)

func formatDate(t time.Time, ns bool) string {
	if ns {
		return t.Format(dateLayoutNS)
	}
	return t.Format(dateLayoutMS)
}

// quoteString writes s in double quotes, escaping only what must be escaped.
func quoteString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			if r < 0x20 || r == 0x7f {
				fmt.Fprintf(&b, `\u%04x`, r)
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// isBareKey reports whether k can be written without quotes.
func isBareKey(k string) bool {
	if k == "" {
		return false
	}
	first, _ := utf8.DecodeRuneInString(k)
	if isDigit(first) || first == '-' || first == '+' || first == '.' {
		return false
	}
	for _, r := range k {
		if !isWordRune(r) || r == utf8.RuneError {
			return false
		}
	}
	return true
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
