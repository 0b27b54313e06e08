package jsox

import (
	"strconv"
	"unicode/utf8"
)

// frameMode is the container state of one open frame.
type frameMode uint8

const (
	modeArray       frameMode = iota
	modeObjectKey             // expecting a key or '}'
	modeObjectColon           // key read, expecting ':'
	modeObjectValue           // expecting a value, then ',' or '}'
	modeClassFirst            // first item of Name{...}: positional, named or definition
	modeClassDef              // collecting field names of a definition
	modeClassValue            // positional values of a known class
)

func (m frameMode) String() string {
	switch m {
	case modeArray:
		return "array"
	case modeObjectKey:
		return "object-key"
	case modeObjectColon:
		return "object-colon"
	case modeObjectValue:
		return "object-value"
	case modeClassFirst:
		return "class-first"
	case modeClassDef:
		return "class-def"
	case modeClassValue:
		return "class-value"
	default:
		return "unknown"
	}
}

type arrayKind uint8

const (
	arrayPlain arrayKind = iota
	arrayTyped
	arrayRef
)

type classDef struct {
	name   string
	fields []string
}

func (c *classDef) hasField(name string) bool {
	for _, f := range c.fields {
		if f == name {
			return true
		}
	}
	return false
}

// frame is one open container.
type frame struct {
	mode      frameMode
	container *Value
	start     Position

	key string // pending object key

	// class bodies
	className string
	class     *classDef // nil while the class is unknown
	fields    []string  // definition field names, or keys of a named instance
	cursor    int       // next positional field
	named     bool
	redefine  bool

	// arrays
	array arrayKind
	elem  ElementKind

	// tagged bodies
	tag    string
	decode DecodeFunc

	// the last completed item, waiting for ',' or a closer
	val     *Value
	hasVal  bool
	valText string
	keyish  bool
}

func (f *frame) clearVal() {
	f.val, f.hasVal, f.valText, f.keyish = nil, false, "", false
}

// pendingMatches reports whether seg names the slot an open child of this
// frame will be attached to.
func (f *frame) pendingMatches(seg PathElement) bool {
	switch f.mode {
	case modeObjectValue:
		return f.key == seg.KeyString()
	case modeArray:
		idx := seg.Index
		if !seg.IsIndex {
			n, err := strconv.Atoi(seg.Key)
			if err != nil {
				return false
			}
			idx = n
		}
		return idx == len(f.container.arrVal)
	case modeClassValue:
		return f.cursor < len(f.class.fields) && f.class.fields[f.cursor] == seg.KeyString()
	case modeClassFirst:
		return f.class != nil && len(f.class.fields) > 0 && f.class.fields[0] == seg.KeyString()
	}
	return false
}

// ============================================================
// Context arena
// ============================================================

// contextStack is an arena of frames indexed by depth. Popped frames stay in
// the slice and are reused by the next push. Pointers returned by push, top
// and at are valid until the next push.
type contextStack struct {
	frames []frame
	depth  int
}

func (s *contextStack) push() *frame {
	if s.depth == len(s.frames) {
		s.frames = append(s.frames, frame{})
	}
	f := &s.frames[s.depth]
	*f = frame{}
	s.depth++
	return f
}

func (s *contextStack) pop() frame {
	s.depth--
	f := s.frames[s.depth]
	s.frames[s.depth] = frame{}
	return f
}

func (s *contextStack) top() *frame {
	if s.depth == 0 {
		return nil
	}
	return &s.frames[s.depth-1]
}

func (s *contextStack) at(i int) *frame {
	return &s.frames[i]
}

func (s *contextStack) clear() {
	for i := 0; i < s.depth; i++ {
		s.frames[i] = frame{}
	}
	s.depth = 0
}

// ============================================================
// Chunk queue
// ============================================================

// chunkQueue holds input not yet consumed. A UTF-8 sequence split across
// chunks is carried until its remaining bytes arrive.
type chunkQueue struct {
	chunks []string
	off    int
	carry  []byte
}

func (q *chunkQueue) push(s string) {
	if s != "" {
		q.chunks = append(q.chunks, s)
	}
}

// next returns the next rune and its encoded size.
func (q *chunkQueue) next() (rune, int, bool) {
	for len(q.chunks) > 0 {
		s := q.chunks[0][q.off:]
		if s == "" {
			q.drop()
			continue
		}
		if len(q.carry) > 0 {
			need := utf8SeqLen(q.carry[0])
			for len(q.carry) < need && q.off < len(q.chunks[0]) {
				c := q.chunks[0][q.off]
				if !utf8.RuneStart(c) {
					q.carry = append(q.carry, c)
					q.off++
					continue
				}
				break
			}
			if len(q.carry) < need && q.off >= len(q.chunks[0]) {
				q.drop()
				continue
			}
			r, _ := utf8.DecodeRune(q.carry)
			size := len(q.carry)
			q.carry = q.carry[:0]
			return r, size, true
		}
		r, size := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError && size <= 1 && !utf8.FullRuneInString(s) {
			q.carry = append(q.carry, s...)
			q.drop()
			continue
		}
		q.off += size
		return r, size, true
	}
	return 0, 0, false
}

func (q *chunkQueue) drop() {
	q.chunks[0] = ""
	q.chunks = q.chunks[1:]
	q.off = 0
}

// pending reports whether unconsumed input remains.
func (q *chunkQueue) pending() bool {
	if len(q.carry) > 0 || len(q.chunks) > 1 {
		return true
	}
	return len(q.chunks) == 1 && q.off < len(q.chunks[0])
}

// flushCarry returns the size of an incomplete trailing sequence and clears it.
func (q *chunkQueue) flushCarry() int {
	n := len(q.carry)
	q.carry = q.carry[:0]
	return n
}

func (q *chunkQueue) reset() {
	q.chunks = nil
	q.off = 0
	q.carry = q.carry[:0]
}

func utf8SeqLen(b byte) int {
	switch {
	case b < 0x80:
		return 1
	case b&0xE0 == 0xC0:
		return 2
	case b&0xF0 == 0xE0:
		return 3
	case b&0xF8 == 0xF0:
		return 4
	default:
		return 1
	}
}
