package jsox

import (
	"strconv"
	"strings"
	"testing"
)

func benchDoc() string {
	var b strings.Builder
	b.WriteString("Row{id,name,score,tags}\n[")
	for i := 0; i < 200; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString("Row{")
		b.WriteString(strconv.Itoa(i))
		b.WriteString(`,"user `)
		b.WriteString(strconv.Itoa(i))
		b.WriteString(`",`)
		b.WriteString(strconv.FormatFloat(float64(i)*1.5, 'f', -1, 64))
		b.WriteString(`,['a','b']}`)
	}
	b.WriteString("]")
	return b.String()
}

func BenchmarkParse(b *testing.B) {
	doc := benchDoc()
	b.SetBytes(int64(len(doc)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Parse(doc); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkParseChunked(b *testing.B) {
	doc := benchDoc()
	b.SetBytes(int64(len(doc)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p := Begin(func(*Value) {})
		for off := 0; off < len(doc); off += 64 {
			end := off + 64
			if end > len(doc) {
				end = len(doc)
			}
			if _, err := p.Write(doc[off:end]); err != nil {
				b.Fatal(err)
			}
		}
		if _, err := p.Finish(); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkStringify(b *testing.B) {
	v, err := Parse(benchDoc())
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Stringify(v); err != nil {
			b.Fatal(err)
		}
	}
}
