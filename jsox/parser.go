package jsox

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/golang/glog"
)

// Signal reports the outcome of a Write or Finish call.
type Signal uint8

const (
	// NeedMore means no value completed; feed more input.
	NeedMore Signal = iota
	// HaveValue means at least one value completed and nothing is pending.
	HaveValue
	// HaveValueWithTrailingData means a value completed and input of a
	// following value is still queued or partially parsed.
	HaveValueWithTrailingData
)

// String returns the signal name.
func (s Signal) String() string {
	switch s {
	case NeedMore:
		return "NEED_MORE"
	case HaveValue:
		return "HAVE_VALUE"
	case HaveValueWithTrailingData:
		return "HAVE_VALUE_WITH_TRAILING_DATA"
	default:
		return "UNKNOWN"
	}
}

// lexState is the lexical sub-state. Exactly one is active per rune.
type lexState uint8

const (
	lexIdle lexState = iota
	lexString
	lexStringEscape
	lexStringHex
	lexStringUnicode
	lexStringUnicodeBrace
	lexStringCR // escaped CR: swallow the LF of a CRLF
	lexNumber
	lexWord
	lexCommentStart // after '/'
	lexLineComment
	lexBlockComment
	lexBlockCommentStar
)

func (s lexState) String() string {
	switch s {
	case lexIdle:
		return "idle"
	case lexString:
		return "string"
	case lexStringEscape:
		return "string-escape"
	case lexStringHex:
		return "string-hex"
	case lexStringUnicode:
		return "string-unicode"
	case lexStringUnicodeBrace:
		return "string-unicode-brace"
	case lexStringCR:
		return "string-cr"
	case lexNumber:
		return "number"
	case lexWord:
		return "word"
	case lexCommentStart:
		return "comment-start"
	case lexLineComment:
		return "line-comment"
	case lexBlockComment:
		return "block-comment"
	case lexBlockCommentStar:
		return "block-comment-star"
	default:
		return "unknown"
	}
}

const contextLen = 24

type wordState struct {
	text []byte
	kw   int
	sign byte // '-' or '+' when the word came from the number path
}

func (w *wordState) reset(sign byte) {
	w.text = w.text[:0]
	w.kw = kwStart
	w.sign = sign
}

func (w *wordState) add(r rune) {
	w.text = utf8.AppendRune(w.text, r)
	w.kw = kwStep(w.kw, r)
}

// Parser is a streaming JSOX parser. Feed it chunks with Write and call
// Finish at end of input. A Parser is not safe for concurrent use.
type Parser struct {
	opts    ParseOptions
	reg     *Registry
	onValue func(*Value)

	queue  chunkQueue
	pos    Position
	next   int // byte offset of the next rune
	prevNL bool
	recent [contextLen]rune
	nrec   int

	lex   lexState
	str   stringState
	num   numberState
	word  wordState
	asKey bool // the current token is a key or class field name

	stack   contextStack
	classes map[string]*classDef
	protos  map[string]*Value

	single bool // one-shot parse: a second top-level value is an error
	done   []*Value
	ready  int
	err    error
}

// Begin creates a streaming parser. When onValue is non-nil it is called for
// every completed top-level value and Write consumes all input it is given.
// Without a callback, Write stops after each value; collect it with Value.
func Begin(onValue func(*Value), opts ...ParseOption) *Parser {
	o := DefaultParseOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return newParser(onValue, o)
}

// BeginWithOptions creates a streaming parser from an options struct.
func BeginWithOptions(onValue func(*Value), opts ParseOptions) *Parser {
	return newParser(onValue, opts)
}

func newParser(onValue func(*Value), opts ParseOptions) *Parser {
	opts.normalize()
	reg := opts.Registry
	if reg == nil {
		reg = defaultRegistry
	}
	p := &Parser{
		opts:    opts,
		reg:     reg.Clone(),
		onValue: onValue,
		classes: make(map[string]*classDef),
		protos:  make(map[string]*Value),
	}
	p.stack.frames = make([]frame, 0, opts.StackCapacity)
	p.pos = Position{Line: 1}
	return p
}

// Parse parses text holding exactly one value.
func Parse(text string, opts ...ParseOption) (*Value, error) {
	o := DefaultParseOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return ParseWithOptions(text, o)
}

// ParseWithOptions parses text holding exactly one value.
func ParseWithOptions(text string, opts ParseOptions) (*Value, error) {
	p := newParser(nil, opts)
	p.single = true
	p.queue.push(text)
	if _, err := p.Finish(); err != nil {
		return nil, err
	}
	if len(p.done) == 0 {
		return nil, &SyntaxError{Err: ErrNoValue, Pos: p.pos}
	}
	return p.done[0], nil
}

// Write feeds a chunk. Chunks may split the input anywhere.
func (p *Parser) Write(chunk string) (Signal, error) {
	if p.err != nil {
		return NeedMore, p.err
	}
	p.queue.push(chunk)
	p.ready = 0
	for p.err == nil {
		if p.ready > 0 && p.onValue == nil && !p.single {
			break
		}
		r, size, ok := p.queue.next()
		if !ok {
			break
		}
		p.consume(r, size)
	}
	if p.err != nil {
		return NeedMore, p.err
	}
	return p.signal(), nil
}

// Finish signals end of input. It completes a trailing number, keyword or
// bareword and reports containers, strings or comments left open.
func (p *Parser) Finish() (Signal, error) {
	if p.err != nil {
		return NeedMore, p.err
	}
	p.ready = 0
	for p.err == nil {
		r, size, ok := p.queue.next()
		if !ok {
			break
		}
		p.consume(r, size)
	}
	if p.err == nil {
		if n := p.queue.flushCarry(); n > 0 {
			p.consume(utf8.RuneError, n)
		}
	}
	if p.err == nil {
		p.eof()
	}
	if p.err != nil {
		return NeedMore, p.err
	}
	if p.ready == 0 {
		return NeedMore, nil
	}
	return HaveValue, nil
}

// Value returns the next completed value, or nil if none is queued.
// Values delivered to an onValue callback are not queued.
func (p *Parser) Value() *Value {
	if len(p.done) == 0 {
		return nil
	}
	v := p.done[0]
	p.done[0] = nil
	p.done = p.done[1:]
	return v
}

// Err returns the latched error, if any.
func (p *Parser) Err() error {
	return p.err
}

// Pos returns the position of the last consumed rune.
func (p *Parser) Pos() Position {
	return p.pos
}

// Reset clears the latched error, queued input, open containers, completed
// values and class definitions. Registered decoders and prototypes are kept.
func (p *Parser) Reset() {
	p.queue.reset()
	p.pos = Position{Line: 1}
	p.next = 0
	p.prevNL = false
	p.nrec = 0
	p.lex = lexIdle
	p.asKey = false
	p.str.reset(0, nil)
	p.stack.clear()
	p.classes = make(map[string]*classDef)
	p.done = nil
	p.ready = 0
	p.err = nil
}

// FromJSOX registers a decoder for this parser only.
func (p *Parser) FromJSOX(tag string, fn DecodeFunc) error {
	return p.reg.FromJSOX(tag, fn)
}

// UsePrototype sets default members for instances of class. Positional
// instances that omit trailing fields keep the prototype's values.
func (p *Parser) UsePrototype(class string, proto *Value) {
	if proto == nil {
		delete(p.protos, class)
		return
	}
	p.protos[class] = proto
}

func (p *Parser) signal() Signal {
	if p.ready == 0 {
		return NeedMore
	}
	if p.queue.pending() || p.stack.depth > 0 || (p.lex != lexIdle && p.lex != lexLineComment) {
		return HaveValueWithTrailingData
	}
	return HaveValue
}

// ============================================================
// Dispatch
// ============================================================

func (p *Parser) consume(r rune, size int) {
	if p.prevNL {
		p.pos.Line++
		p.pos.Column = 1
	} else {
		p.pos.Column++
	}
	p.pos.Offset = p.next
	p.next += size
	p.prevNL = r == '\n'
	p.recent[p.nrec%contextLen] = r
	p.nrec++

	prev := p.lex
	p.step(r)
	if p.lex != prev && glog.V(4) {
		glog.Infof("jsox: %q %s -> %s at %s", r, prev, p.lex, p.pos)
	}
}

func (p *Parser) step(r rune) {
	switch p.lex {
	case lexIdle:
		p.idle(r)
	case lexString, lexStringEscape, lexStringHex, lexStringUnicode, lexStringUnicodeBrace, lexStringCR:
		p.lexStringRune(r)
	case lexNumber:
		p.lexNumberRune(r)
	case lexWord:
		p.lexWordRune(r)
	case lexCommentStart:
		switch r {
		case '/':
			p.lex = lexLineComment
		case '*':
			p.lex = lexBlockComment
		default:
			p.fail(ErrUnexpectedCharacter, "expected '/' or '*' after '/', got %q", r)
		}
	case lexLineComment:
		if r == '\n' || r == '\r' {
			p.lex = lexIdle
		}
	case lexBlockComment:
		if r == '*' {
			p.lex = lexBlockCommentStar
		}
	case lexBlockCommentStar:
		switch r {
		case '/':
			p.lex = lexIdle
		case '*':
		default:
			p.lex = lexBlockComment
		}
	}
}

func (p *Parser) idle(r rune) {
	if isSpace(r) {
		return
	}
	switch r {
	case '/':
		p.lex = lexCommentStart
		return
	case '#':
		p.lex = lexLineComment
		return
	}

	f := p.stack.top()
	if f == nil {
		p.beginValue(r)
		return
	}
	switch f.mode {
	case modeArray:
		p.idleArray(f, r)
	case modeObjectKey:
		if r == '}' {
			p.closeFrame()
			return
		}
		p.beginKey(r)
	case modeObjectColon:
		if r != ':' {
			p.fail(ErrUnexpectedCharacter, "expected ':' after key %q, got %q", f.key, r)
			return
		}
		f.mode = modeObjectValue
	case modeObjectValue:
		p.idleObjectValue(f, r)
	case modeClassFirst:
		p.idleClassFirst(f, r)
	case modeClassDef:
		p.idleClassDef(f, r)
	case modeClassValue:
		p.idleClassValue(f, r)
	}
}

// beginValue starts a value token in a slot that accepts a value.
func (p *Parser) beginValue(r rune) {
	if p.single && p.stack.depth == 0 && len(p.done) > 0 {
		p.fail(ErrTrailingData, "unexpected %q after the first value", r)
		return
	}
	p.asKey = false
	switch {
	case isQuote(r):
		p.beginString(r, nil)
	case isDigit(r) || r == '-' || r == '+' || r == '.':
		p.num.reset(r)
		p.lex = lexNumber
	case r == '{':
		p.openObject("", nil)
	case r == '[':
		p.openArray(arrayPlain, 0, "", nil)
	case isWordRune(r):
		p.word.reset(0)
		p.word.add(r)
		p.lex = lexWord
	default:
		p.fail(ErrUnexpectedCharacter, "unexpected %q, expected a value", r)
	}
}

// beginKey starts an object key or class field name.
func (p *Parser) beginKey(r rune) {
	switch {
	case isQuote(r):
		p.asKey = true
		p.beginString(r, nil)
	case isWordRune(r):
		p.asKey = true
		p.word.reset(0)
		p.word.add(r)
		p.lex = lexWord
	default:
		p.fail(ErrUnexpectedCharacter, "unexpected %q, expected a key", r)
	}
}

// ============================================================
// Separators per container mode
// ============================================================

func (p *Parser) idleArray(f *frame, r rune) {
	switch r {
	case ',':
		if f.hasVal {
			f.container.arrVal = append(f.container.arrVal, f.val)
		} else {
			if f.array != arrayPlain {
				p.fail(ErrUnexpectedCharacter, "elision is not allowed in %s", p.arrayName(f))
				return
			}
			f.container.arrVal = append(f.container.arrVal, Empty())
		}
		f.clearVal()
	case ']':
		if f.hasVal {
			f.container.arrVal = append(f.container.arrVal, f.val)
			f.clearVal()
		}
		p.closeFrame()
	default:
		if f.hasVal {
			p.fail(ErrUnexpectedCharacter, "expected ',' or ']', got %q", r)
			return
		}
		p.beginValue(r)
	}
}

func (p *Parser) idleObjectValue(f *frame, r rune) {
	if !f.hasVal {
		if r == ',' || r == '}' {
			p.fail(ErrUnexpectedCharacter, "missing value for key %q", f.key)
			return
		}
		p.beginValue(r)
		return
	}
	switch r {
	case ',', '}':
		f.container.Set(f.key, f.val)
		if f.named {
			f.fields = append(f.fields, f.key)
		}
		f.clearVal()
		f.key = ""
		f.mode = modeObjectKey
		if r == '}' {
			p.closeFrame()
		}
	default:
		p.fail(ErrUnexpectedCharacter, "expected ',' or '}', got %q", r)
	}
}

func (p *Parser) idleClassFirst(f *frame, r rune) {
	if !f.hasVal {
		switch r {
		case '}':
			p.closeFrame()
		case ',':
			p.fail(ErrUnexpectedCharacter, "missing value in %s{", f.className)
		default:
			p.beginValue(r)
		}
		return
	}
	switch r {
	case ':':
		if !f.keyish {
			p.fail(ErrUnexpectedCharacter, "expected a field name before ':' in %s{", f.className)
			return
		}
		f.key = f.valText
		f.named = true
		f.clearVal()
		f.mode = modeObjectValue
	case ',', '}':
		if f.class != nil {
			if len(f.class.fields) == 0 {
				p.fail(ErrClassFieldOverflow, "class %s has no fields", f.className)
				return
			}
			f.container.Set(f.class.fields[0], f.val)
			f.cursor = 1
			f.mode = modeClassValue
		} else {
			if !f.keyish {
				p.fail(ErrUnexpectedCharacter, "expected a field name in definition of %s", f.className)
				return
			}
			f.fields = append(f.fields[:0], f.valText)
			f.container = nil
			f.mode = modeClassDef
		}
		f.clearVal()
		if r == '}' {
			p.closeFrame()
		}
	default:
		p.fail(ErrUnexpectedCharacter, "expected ',', ':' or '}', got %q", r)
	}
}

func (p *Parser) idleClassDef(f *frame, r rune) {
	if !f.hasVal {
		if r == '}' {
			p.closeFrame()
			return
		}
		p.beginKey(r)
		return
	}
	switch r {
	case ',', '}':
		for _, name := range f.fields {
			if name == f.valText {
				p.fail(ErrUnexpectedCharacter, "duplicate field %q in definition of %s", name, f.className)
				return
			}
		}
		f.fields = append(f.fields, f.valText)
		f.clearVal()
		if r == '}' {
			p.closeFrame()
		}
	default:
		p.fail(ErrUnexpectedCharacter, "expected ',' or '}', got %q", r)
	}
}

func (p *Parser) idleClassValue(f *frame, r rune) {
	if !f.hasVal {
		switch r {
		case '}':
			p.closeFrame()
		case ',':
			p.fail(ErrUnexpectedCharacter, "missing value in %s{", f.className)
		default:
			p.beginValue(r)
		}
		return
	}
	switch r {
	case ',', '}':
		if f.cursor >= len(f.class.fields) {
			p.fail(ErrClassFieldOverflow, "%s declares %d fields", f.className, len(f.class.fields))
			return
		}
		f.container.Set(f.class.fields[f.cursor], f.val)
		f.cursor++
		f.clearVal()
		if r == '}' {
			p.closeFrame()
		}
	default:
		p.fail(ErrUnexpectedCharacter, "expected ',' or '}', got %q", r)
	}
}

// ============================================================
// Tokens
// ============================================================

func (p *Parser) lexNumberRune(r rune) {
	switch p.num.step(r) {
	case numAccept:
	case numEnd:
		p.lex = lexIdle
		p.endNumber()
		if p.err == nil {
			p.idle(r)
		}
	case numWord:
		p.word.reset(p.num.text[0])
		p.word.add(r)
		p.lex = lexWord
	case numBad:
		p.fail(ErrMalformedNumber, "%q cannot follow %q", r, string(p.num.text))
	}
}

func (p *Parser) endNumber() {
	v, err := p.num.finish()
	if err != nil {
		p.failWith(err)
		return
	}
	p.completeValue(v, string(p.num.text), false)
}

func (p *Parser) lexWordRune(r rune) {
	if isWordRune(r) {
		p.word.add(r)
		return
	}
	p.lex = lexIdle
	if !p.asKey && (r == '{' || r == '[' || isQuote(r)) {
		p.openTag(string(p.word.text), r)
		return
	}
	p.endWord()
	if p.err == nil {
		p.idle(r)
	}
}

// endWord completes a keyword or bareword. A run that left the keyword
// automaton becomes a string holding exactly the consumed characters.
func (p *Parser) endWord() {
	text := string(p.word.text)
	if p.asKey {
		p.completeKey(text)
		return
	}
	kw, ok := kwAccept(p.word.kw)
	if p.word.sign != 0 {
		if !ok || !kw.signed {
			p.fail(ErrUnexpectedCharacter, "sign before bareword %q", text)
			return
		}
		p.completeValue(kw.build(p.word.sign == '-'), string(p.word.sign)+text, false)
		return
	}
	if ok {
		p.completeValue(kw.build(false), text, true)
		return
	}
	p.completeValue(String(text), text, true)
}

// completeValue hands a finished value to the open frame, or emits it at top level.
func (p *Parser) completeValue(v *Value, text string, keyish bool) {
	f := p.stack.top()
	if f == nil {
		p.emit(v)
		return
	}
	f.val, f.hasVal, f.valText, f.keyish = v, true, text, keyish
}

func (p *Parser) completeKey(text string) {
	f := p.stack.top()
	switch f.mode {
	case modeObjectKey:
		f.key = text
		f.mode = modeObjectColon
	case modeClassDef:
		f.valText = text
		f.hasVal = true
	}
}

func (p *Parser) emit(v *Value) {
	if p.opts.Reviver != nil {
		v = revive(v, p.opts.Reviver)
	}
	p.ready++
	if glog.V(3) {
		glog.Infof("jsox: value %s completed at %s", v.Kind(), p.pos)
	}
	if p.onValue != nil {
		p.onValue(v)
		return
	}
	p.done = append(p.done, v)
}

// ============================================================
// Containers
// ============================================================

func (p *Parser) push(mode frameMode) *frame {
	if p.stack.depth >= p.opts.MaxDepth {
		p.fail(ErrMaxDepth, "depth %d", p.opts.MaxDepth)
		return nil
	}
	f := p.stack.push()
	f.mode = mode
	f.start = p.pos
	if glog.V(3) {
		glog.Infof("jsox: push %s depth=%d at %s", mode, p.stack.depth, p.pos)
	}
	return f
}

func (p *Parser) openObject(tag string, dec DecodeFunc) {
	f := p.push(modeObjectKey)
	if f == nil {
		return
	}
	f.container = Object()
	f.tag = tag
	f.decode = dec
}

func (p *Parser) openArray(kind arrayKind, elem ElementKind, tag string, dec DecodeFunc) {
	f := p.push(modeArray)
	if f == nil {
		return
	}
	f.container = Array()
	f.array = kind
	f.elem = elem
	f.tag = tag
	f.decode = dec
}

// openTag handles a word immediately followed by '{', '[' or a quote.
func (p *Parser) openTag(name string, opener rune) {
	if p.word.sign != 0 {
		p.fail(ErrUnexpectedCharacter, "sign before tag %q", name)
		return
	}
	switch opener {
	case '[':
		if kind, ok := ElementKindFromTag(name); ok {
			p.openArray(arrayTyped, kind, name, nil)
			return
		}
		if name == "ref" {
			p.openArray(arrayRef, 0, name, nil)
			return
		}
		if dec, ok := p.reg.decoder(name); ok {
			p.openArray(arrayPlain, 0, name, dec)
			return
		}
		p.failTag(name)
	case '{':
		if strings.HasSuffix(name, "!") {
			name = strings.TrimSuffix(name, "!")
			if name == "" {
				p.fail(ErrUnexpectedCharacter, "missing class name before '!'")
				return
			}
			p.openClass(name, true)
			return
		}
		if dec, ok := p.reg.decoder(name); ok {
			p.openObject(name, dec)
			return
		}
		p.openClass(name, false)
	default:
		if dec, ok := p.reg.decoder(name); ok {
			p.beginString(opener, dec)
			p.str.tagName = name
			return
		}
		p.failTag(name)
	}
}

func (p *Parser) openClass(name string, redefine bool) {
	f := p.push(modeClassFirst)
	if f == nil {
		return
	}
	f.className = name
	if redefine {
		f.mode = modeClassDef
		f.redefine = true
		return
	}
	f.class = p.classes[name]
	f.container = ClassObject(name)
	if proto, ok := p.protos[name]; ok && proto.Kind() == KindObject {
		for _, fld := range proto.objVal.fields {
			f.container.objVal.set(fld.Key, fld.Value)
		}
	}
}

func (p *Parser) defineClass(name string, fields []string) {
	def := &classDef{name: name, fields: append([]string(nil), fields...)}
	p.classes[name] = def
	if glog.V(3) {
		glog.Infof("jsox: class %s{%s}", name, strings.Join(def.fields, ","))
	}
}

// closeFrame pops the open frame and attaches its value to the parent.
func (p *Parser) closeFrame() {
	f := p.stack.pop()
	if glog.V(3) {
		glog.Infof("jsox: pop %s depth=%d at %s", f.mode, p.stack.depth, p.pos)
	}

	var v *Value
	switch f.mode {
	case modeClassDef:
		// A definition produces no value; the parent slot still expects one.
		p.defineClass(f.className, f.fields)
		return
	case modeArray:
		switch f.array {
		case arrayTyped:
			v = p.finishTyped(&f)
		case arrayRef:
			v = p.resolveRef(&f)
		default:
			v = f.container
		}
		if p.err != nil {
			return
		}
	default:
		v = f.container
		if f.className != "" && f.class == nil && p.classes[f.className] == nil {
			p.defineClass(f.className, f.fields)
		}
	}

	if f.decode != nil {
		out, err := f.decode(v)
		if err != nil {
			p.fail(err, "decoding %s", f.tag)
			return
		}
		v = out
	}
	p.completeValue(v, "", false)
}

func (p *Parser) finishTyped(f *frame) *Value {
	elems := f.container.arrVal
	switch len(elems) {
	case 0:
		return Typed(f.elem, []byte{})
	case 1:
		s, err := elems[0].AsString()
		if err != nil {
			p.fail(ErrMalformedTypedArray, "%s payload must be a base64 string", f.elem)
			return nil
		}
		v, err := decodeTyped(f.elem, s)
		if err != nil {
			p.fail(ErrMalformedTypedArray, "%v", err)
			return nil
		}
		return v
	default:
		p.fail(ErrMalformedTypedArray, "%s takes one base64 string, got %d items", f.elem, len(elems))
		return nil
	}
}

func (p *Parser) arrayName(f *frame) string {
	if f.tag != "" {
		return f.tag + "[...]"
	}
	return "array"
}

// ============================================================
// End of input and errors
// ============================================================

func (p *Parser) eof() {
	switch p.lex {
	case lexNumber:
		p.lex = lexIdle
		p.endNumber()
	case lexWord:
		p.lex = lexIdle
		p.endWord()
	case lexString, lexStringEscape, lexStringHex, lexStringUnicode, lexStringUnicodeBrace, lexStringCR:
		p.fail(ErrUnterminatedString, "string opened with %q", p.str.quote)
		return
	case lexBlockComment, lexBlockCommentStar:
		p.fail(ErrUnterminatedComment, "")
		return
	case lexCommentStart:
		p.fail(ErrUnexpectedCharacter, "dangling '/'")
		return
	}
	p.lex = lexIdle
	if p.err == nil && p.stack.depth > 0 {
		f := p.stack.top()
		p.fail(ErrUnterminatedContainer, "%s opened at %s", f.mode, f.start)
	}
}

func (p *Parser) fail(err error, format string, args ...any) {
	if p.err != nil {
		return
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	p.err = &SyntaxError{Err: err, Msg: msg, Pos: p.pos, Context: p.context()}
	if glog.V(3) {
		glog.Infof("jsox: %v", p.err)
	}
}

// failWith latches an error that already carries its sentinel and message.
func (p *Parser) failWith(err error) {
	p.fail(err, "")
}

func (p *Parser) failTag(tag string) {
	p.fail(ErrUnknownTypeTag, "%q", tag)
	if se, ok := p.err.(*SyntaxError); ok {
		se.Tag = tag
	}
}

func (p *Parser) context() string {
	n := p.nrec
	if n > contextLen {
		n = contextLen
	}
	out := make([]rune, 0, n)
	for i := p.nrec - n; i < p.nrec; i++ {
		out = append(out, p.recent[i%contextLen])
	}
	return string(out)
}
