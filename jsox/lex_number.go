package jsox

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fastjson/fastfloat"
)

// numberState collects a numeric literal one rune at a time. A '-' or ':'
// after plain digits turns the token into a date.
type numberState struct {
	text      []byte
	radix     int
	digits    int // mantissa digits after any radix prefix
	dot       bool
	exp       bool
	expDigits int
	expSign   bool // directly after 'e', a sign is allowed
	date      bool
	bigint    bool
}

type numAction uint8

const (
	numAccept numAction = iota
	numEnd              // r is not part of the number
	numWord             // sign followed by a letter: continue as a keyword
	numBad              // malformed
)

func (n *numberState) reset(first rune) {
	n.text = n.text[:0]
	n.radix = 10
	n.digits = 0
	n.dot = false
	n.exp = false
	n.expDigits = 0
	n.expSign = false
	n.date = false
	n.bigint = false
	switch {
	case isDigit(first):
		n.digits = 1
	case first == '.':
		n.dot = true
	}
	n.text = append(n.text, string(first)...)
}

// signOnly reports whether only a leading sign has been seen.
func (n *numberState) signOnly() bool {
	return len(n.text) == 1 && (n.text[0] == '-' || n.text[0] == '+')
}

// zeroPrefix reports whether the token so far is a single 0, optionally signed.
func (n *numberState) zeroPrefix() bool {
	s := string(n.text)
	return s == "0" || s == "-0" || s == "+0"
}

func (n *numberState) step(r rune) numAction {
	if n.bigint {
		if isWordRune(r) {
			return numBad
		}
		return numEnd
	}
	if n.date {
		if isDigit(r) || strings.ContainsRune("-:.+TZtz", r) {
			n.text = append(n.text, string(r)...)
			return numAccept
		}
		if isWordRune(r) {
			return numBad
		}
		return numEnd
	}
	expSign := n.expSign
	n.expSign = false

	switch {
	case n.radix == 16 && isHexDigit(r):
		n.digits++
	case isDigit(r):
		if (n.radix == 2 && r > '1') || (n.radix == 8 && r > '7') {
			return numBad
		}
		if n.exp {
			n.expDigits++
		} else {
			n.digits++
		}
	case r == '.':
		if n.dot || n.exp || n.radix != 10 {
			return numBad
		}
		n.dot = true
	case (r == 'e' || r == 'E') && n.radix == 10:
		if n.exp || n.digits == 0 {
			return numBad
		}
		n.exp = true
		n.expSign = true
	case (r == '+' || r == '-') && expSign:
	case r == '-' || r == ':':
		if n.dot || n.exp || n.radix != 10 || n.digits == 0 || n.text[0] == '-' || n.text[0] == '+' {
			return numBad
		}
		n.date = true
	case strings.ContainsRune("xXoObB", r):
		if !n.zeroPrefix() {
			return numBad
		}
		switch r {
		case 'x', 'X':
			n.radix = 16
		case 'o', 'O':
			n.radix = 8
		default:
			n.radix = 2
		}
		n.digits = 0
	case r == 'n':
		if n.dot || n.exp || n.digits == 0 {
			return numBad
		}
		n.bigint = true
		return numAccept
	case n.signOnly() && isLetter(r):
		return numWord
	case isWordRune(r):
		return numBad
	default:
		return numEnd
	}
	n.text = append(n.text, string(r)...)
	return numAccept
}

// finish converts the collected token. Errors wrap ErrMalformedNumber or
// ErrMalformedDate.
func (n *numberState) finish() (*Value, error) {
	s := string(n.text)
	if n.date {
		v, err := parseDate(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDate, err)
		}
		return v, nil
	}
	if n.digits == 0 {
		return nil, fmt.Errorf("%w: no digits in %q", ErrMalformedNumber, s)
	}
	if n.exp && n.expDigits == 0 {
		return nil, fmt.Errorf("%w: missing exponent in %q", ErrMalformedNumber, s)
	}

	neg := false
	body := s
	if body[0] == '-' || body[0] == '+' {
		neg = body[0] == '-'
		body = body[1:]
	}

	if n.bigint || n.radix != 10 {
		if n.radix != 10 {
			body = body[2:]
		}
		bi, ok := new(big.Int).SetString(body, n.radix)
		if !ok {
			return nil, fmt.Errorf("%w: bad integer %q", ErrMalformedNumber, s)
		}
		if neg {
			bi.Neg(bi)
		}
		if n.bigint {
			return &Value{kind: KindBigInt, bigVal: bi}, nil
		}
		f, _ := new(big.Float).SetInt(bi).Float64()
		return Number(f), nil
	}

	if s[0] == '+' {
		s = s[1:]
	}
	f, err := fastfloat.Parse(s)
	if err != nil {
		// fastfloat rejects a few forms JavaScript accepts, such as "5.e3".
		f, err = strconv.ParseFloat(s, 64)
		if err != nil && !isRangeErr(err) {
			return nil, fmt.Errorf("%w: %q", ErrMalformedNumber, s)
		}
	}
	return Number(f), nil
}

func isRangeErr(err error) bool {
	ne, ok := err.(*strconv.NumError)
	return ok && ne.Err == strconv.ErrRange
}

// ============================================================
// Dates
// ============================================================

var dateLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02",
	"2006-01",
}

// parseDate parses an ISO-8601 date. A missing zone means UTC. More than
// three fractional second digits keeps nanosecond precision.
func parseDate(s string) (*Value, error) {
	u := strings.ToUpper(s)
	var t time.Time
	var err error
	for _, layout := range dateLayouts {
		t, err = time.Parse(layout, u)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	if fractionDigits(u) > 3 {
		return DateNS(t), nil
	}
	return Date(t), nil
}

func fractionDigits(s string) int {
	i := strings.IndexByte(s, 'T')
	if i < 0 {
		return 0
	}
	j := strings.IndexByte(s[i:], '.')
	if j < 0 {
		return 0
	}
	n := 0
	for _, c := range s[i+j+1:] {
		if !isDigit(c) {
			break
		}
		n++
	}
	return n
}
