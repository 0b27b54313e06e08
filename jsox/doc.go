// Package jsox implements JSOX, a JSON superset with a streaming parser and a
// symmetric stringifier.
//
// JSOX is designed to be:
//   - Fed incrementally (network chunks split anywhere, even inside a UTF-8 sequence)
//   - Lossless for object graphs (shared objects and cycles become back-references)
//   - Compact for repeated shapes (class shorthand omits field names)
//   - Exact for binary and numeric data (typed arrays, BigInt, nanosecond dates)
//
// # Data Model
//
// Scalars: undefined, null, bool, number (incl. NaN/Infinity), bigint, date, string
// Containers: array (with elided slots), object (ordered, optionally classed), typed array
// Extension: custom values produced by registered decoders
//
// # Syntax
//
// Comments:    // line   # line   /* block */
// Keys:        {name: 1, "quoted key": 2,}   (trailing commas allowed)
// Elision:     [1,,3]                         (length 3, middle slot empty)
// Numbers:     0x1f 0o17 0b101 .5 +1e3 12n (BigInt) NaN -Infinity
// Dates:       2024-05-01T12:30:00.123456789Z (more than 3 fraction digits keeps nanoseconds)
// Typed:       u8["AAEC"]  f64["AAAAAAAA8D8="]
// Classes:     point{x,y} [point{1,2}, point{3,4}]
// Redefine:    point!{x,y,z}
// References:  {a:{}, b:ref["a"], self:ref[]}
// Tagged:      regex"a+b"  map{k:v}
//
// # Example
//
//	v, err := jsox.Parse(`point{x,y} [point{1,2}, point{3,4}]`)
//	if err != nil {
//		// handle error
//	}
//	out, _ := jsox.Stringify(v)
//
// # Streaming
//
//	p := jsox.Begin(func(v *jsox.Value) {
//		// one call per completed top-level value
//	})
//	for chunk := range chunks {
//		if _, err := p.Write(chunk); err != nil {
//			// the parser is latched until Reset
//		}
//	}
//	_, err := p.Finish()
//
// # Strictness
//
// The parser is strict. The first error latches and is returned by every
// later Write or Finish until Reset is called. Bareword strings and the
// keyword recovery that produces them are grammar, not error repair.
package jsox
