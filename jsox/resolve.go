package jsox

import (
	"math"
	"strconv"

	"github.com/golang/glog"
)

// resolveRef turns a closed ref[...] frame into the value it names.
//
// Resolution walks the path from the root of the current top-level value.
// Each segment is looked up in the materialized graph first. Containers only
// attach to their parent when they close, so a miss falls back to the live
// context stack: the open child of the current frame is taken when the
// frame's pending slot matches the segment.
func (p *Parser) resolveRef(f *frame) *Value {
	path := make([]PathElement, 0, len(f.container.arrVal))
	for _, e := range f.container.arrVal {
		switch e.Kind() {
		case KindString:
			path = append(path, PathElement{Key: e.strVal})
		case KindNumber:
			n := e.numVal
			if n < 0 || n != math.Trunc(n) || n > math.MaxInt32 {
				p.fail(ErrUnresolvedReference, "invalid index %v in reference", n)
				return nil
			}
			path = append(path, PathElement{IsIndex: true, Index: int(n)})
		default:
			p.fail(ErrUnresolvedReference, "reference segments must be keys or indices, got %s", e.Kind())
			return nil
		}
	}

	var target *Value
	ok := false
	if p.stack.depth > 0 {
		target, ok = p.walk(p.stack.at(0).container, 0, path)
	}
	if glog.V(3) {
		glog.Infof("jsox: resolve %s found=%v", FormatPath(path), ok)
	}
	if !ok {
		p.fail(ErrUnresolvedReference, "%s", FormatPath(path))
		if se, isSE := p.err.(*SyntaxError); isSE {
			se.Path = path
		}
		return nil
	}
	return target
}

// walk resolves path below cur. fi is the stack index of the frame whose
// container is cur, or -1 once the walk has left the chain of open frames.
func (p *Parser) walk(cur *Value, fi int, path []PathElement) (*Value, bool) {
	if cur == nil {
		return nil, false
	}
	if len(path) == 0 {
		return cur, true
	}
	seg := path[0]
	if next, ok := lookupSegment(cur, seg); ok {
		return p.walk(next, -1, path[1:])
	}
	if fi < 0 || fi+1 >= p.stack.depth {
		return nil, false
	}
	parent, child := p.stack.at(fi), p.stack.at(fi+1)
	if parent.container != cur || child.container == nil || !parent.pendingMatches(seg) {
		return nil, false
	}
	return p.walk(child.container, fi+1, path[1:])
}

func lookupSegment(cur *Value, seg PathElement) (*Value, bool) {
	switch cur.Kind() {
	case KindObject:
		return cur.Lookup(seg.KeyString())
	case KindArray:
		i := seg.Index
		if !seg.IsIndex {
			n, err := strconv.Atoi(seg.Key)
			if err != nil {
				return nil, false
			}
			i = n
		}
		if i < 0 || i >= len(cur.arrVal) || cur.arrVal[i].Kind() == KindEmpty {
			return nil, false
		}
		return cur.arrVal[i], true
	}
	return nil, false
}

// revive applies fn bottom-up. Each container is revived once, so shared
// values and cycles keep their identity.
func revive(root *Value, fn Reviver) *Value {
	memo := make(map[*Value]*Value)
	var walk func(key string, v *Value) *Value
	walk = func(key string, v *Value) *Value {
		if v.kind != KindObject && v.kind != KindArray {
			return fn(key, v)
		}
		if out, ok := memo[v]; ok {
			return out
		}
		memo[v] = v
		switch v.kind {
		case KindObject:
			for _, fld := range v.Fields() {
				nv := walk(fld.Key, fld.Value)
				switch {
				case nv == nil:
					v.Delete(fld.Key)
				case nv != fld.Value:
					v.Set(fld.Key, nv)
				}
			}
		case KindArray:
			for i, e := range v.arrVal {
				if e.kind == KindEmpty {
					continue
				}
				nv := walk(strconv.Itoa(i), e)
				if nv == nil {
					nv = Undefined()
				}
				v.arrVal[i] = nv
			}
		}
		out := fn(key, v)
		memo[v] = out
		return out
	}
	out := walk("", root)
	if out == nil {
		out = Undefined()
	}
	return out
}
