package jsox

import (
	"unicode/utf16"
	"unicode/utf8"
)

type stringState struct {
	quote   rune
	buf     []byte
	acc     rune
	digits  int
	hi      rune // pending high surrogate from a \u escape
	tag     DecodeFunc
	tagName string
}

func (s *stringState) reset(quote rune, tag DecodeFunc) {
	s.quote = quote
	s.buf = s.buf[:0]
	s.acc = 0
	s.digits = 0
	s.hi = 0
	s.tag = tag
	s.tagName = ""
}

// put appends a rune. An unpaired high surrogate before it becomes U+FFFD.
func (s *stringState) put(r rune) {
	if s.hi != 0 {
		s.buf = utf8.AppendRune(s.buf, utf8.RuneError)
		s.hi = 0
	}
	s.buf = utf8.AppendRune(s.buf, r)
}

// putUnit appends a code point from a \u escape, pairing surrogates.
func (s *stringState) putUnit(u rune) {
	switch {
	case utf16.IsSurrogate(u) && u < 0xDC00:
		if s.hi != 0 {
			s.buf = utf8.AppendRune(s.buf, utf8.RuneError)
		}
		s.hi = u
	case utf16.IsSurrogate(u):
		if s.hi == 0 {
			s.buf = utf8.AppendRune(s.buf, utf8.RuneError)
			return
		}
		s.buf = utf8.AppendRune(s.buf, utf16.DecodeRune(s.hi, u))
		s.hi = 0
	default:
		s.put(u)
	}
}

func (s *stringState) text() string {
	if s.hi != 0 {
		s.buf = utf8.AppendRune(s.buf, utf8.RuneError)
		s.hi = 0
	}
	return string(s.buf)
}

func (p *Parser) beginString(quote rune, tag DecodeFunc) {
	p.str.reset(quote, tag)
	p.lex = lexString
}

func (p *Parser) lexStringRune(r rune) {
	s := &p.str
	switch p.lex {
	case lexString:
		switch r {
		case s.quote:
			p.lex = lexIdle
			p.endString()
		case '\\':
			p.lex = lexStringEscape
		default:
			s.put(r)
		}

	case lexStringEscape:
		p.lex = lexString
		switch r {
		case 'n':
			s.put('\n')
		case 'r':
			s.put('\r')
		case 't':
			s.put('\t')
		case 'b':
			s.put('\b')
		case 'f':
			s.put('\f')
		case 'v':
			s.put('\v')
		case '0':
			s.put(0)
		case 'x':
			s.acc, s.digits = 0, 0
			p.lex = lexStringHex
		case 'u':
			s.acc, s.digits = 0, 0
			p.lex = lexStringUnicode
		case '\r':
			p.lex = lexStringCR
		case '\n', '\u2028', '\u2029':
			// line continuation
		default:
			s.put(r)
		}

	case lexStringHex:
		if !isHexDigit(r) {
			p.fail(ErrUnexpectedCharacter, "invalid \\x escape character %q", r)
			return
		}
		s.acc = s.acc<<4 | hexVal(r)
		s.digits++
		if s.digits == 2 {
			s.put(s.acc)
			p.lex = lexString
		}

	case lexStringUnicode:
		if r == '{' && s.digits == 0 {
			p.lex = lexStringUnicodeBrace
			return
		}
		if !isHexDigit(r) {
			p.fail(ErrUnexpectedCharacter, "invalid \\u escape character %q", r)
			return
		}
		s.acc = s.acc<<4 | hexVal(r)
		s.digits++
		if s.digits == 4 {
			s.putUnit(s.acc)
			p.lex = lexString
		}

	case lexStringUnicodeBrace:
		if r == '}' {
			if s.digits == 0 || s.acc > utf8.MaxRune {
				p.fail(ErrUnexpectedCharacter, "invalid \\u{...} escape")
				return
			}
			s.putUnit(s.acc)
			p.lex = lexString
			return
		}
		if !isHexDigit(r) || s.digits == 6 {
			p.fail(ErrUnexpectedCharacter, "invalid \\u{...} escape character %q", r)
			return
		}
		s.acc = s.acc<<4 | hexVal(r)
		s.digits++

	case lexStringCR:
		p.lex = lexString
		if r != '\n' {
			p.lexStringRune(r)
		}
	}
}

func (p *Parser) endString() {
	text := p.str.text()
	if p.asKey {
		p.completeKey(text)
		return
	}
	if p.str.tag != nil {
		v, err := p.str.tag(String(text))
		if err != nil {
			p.fail(err, "decoding %s", p.str.tagName)
			return
		}
		p.completeValue(v, "", false)
		return
	}
	p.completeValue(String(text), text, true)
}
