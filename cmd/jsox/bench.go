package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/Neumenon/jsox/jsox"
)

// benchResult holds per-operation timings for one input document.
type benchResult struct {
	Iterations  int
	InputBytes  int
	JSOXBytes   int // compact re-stringified size
	JSONBytes   int // 0 when the document has no JSON form
	Parse       time.Duration
	ParseChunks time.Duration
	Stringify   time.Duration
}

// cmdBench: throughput of one-shot parse, 64-byte chunked parse and
// stringify, plus the JSOX vs JSON size of the document.
func cmdBench(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := newFlagSet("bench", stderr)
	iterations := fs.Int("iterations", 200, "iterations per operation")
	rows := fs.Int("rows", 500, "rows in the generated document when no file is given")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	var text string
	if fs.NArg() == 0 {
		text = sampleDocument(*rows)
	} else {
		in, done, err := openInput(fs, stdin)
		if err != nil {
			return err
		}
		data, err := io.ReadAll(in)
		done()
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		text = string(data)
	}

	res, err := runBench(text, *iterations)
	if err != nil {
		return err
	}
	writeBenchSummary(stdout, res)
	return nil
}

// sampleDocument builds an array of class instances, the shape JSOX
// compresses best.
func sampleDocument(rows int) string {
	var b strings.Builder
	b.WriteString("Row{id,name,score,tags,at}\n[")
	for i := 0; i < rows; i++ {
		if i > 0 {
			b.WriteString(",\n")
		}
		b.WriteString("Row{")
		b.WriteString(strconv.Itoa(i))
		b.WriteString(`,"user `)
		b.WriteString(strconv.Itoa(i))
		b.WriteString(`",`)
		b.WriteString(strconv.FormatFloat(float64(i)*1.25, 'f', -1, 64))
		b.WriteString(`,['a','b'],2024-05-0`)
		b.WriteString(strconv.Itoa(1 + i%9))
		b.WriteString("T12:00:00Z}")
	}
	b.WriteString("]")
	return b.String()
}

func runBench(text string, iterations int) (benchResult, error) {
	if iterations < 1 {
		iterations = 1
	}
	res := benchResult{Iterations: iterations, InputBytes: len(text)}

	v, err := jsox.Parse(text)
	if err != nil {
		return res, err
	}
	compact, err := jsox.Stringify(v)
	if err != nil {
		return res, err
	}
	res.JSOXBytes = len(compact)
	if data, err := jsox.ToJSON(v); err == nil {
		res.JSONBytes = len(data)
	}

	start := time.Now()
	for i := 0; i < iterations; i++ {
		if _, err := jsox.Parse(text); err != nil {
			return res, err
		}
	}
	res.Parse = time.Since(start)

	start = time.Now()
	for i := 0; i < iterations; i++ {
		p := jsox.Begin(func(*jsox.Value) {})
		for off := 0; off < len(text); off += 64 {
			end := min(off+64, len(text))
			if _, err := p.Write(text[off:end]); err != nil {
				return res, err
			}
		}
		if _, err := p.Finish(); err != nil {
			return res, err
		}
	}
	res.ParseChunks = time.Since(start)

	start = time.Now()
	for i := 0; i < iterations; i++ {
		if _, err := jsox.Stringify(v); err != nil {
			return res, err
		}
	}
	res.Stringify = time.Since(start)
	return res, nil
}

func throughput(bytes, iterations int, d time.Duration) string {
	if d <= 0 {
		return "n/a"
	}
	mb := float64(bytes) * float64(iterations) / (1 << 20)
	return fmt.Sprintf("%.1f MB/s", mb/d.Seconds())
}

func writeBenchSummary(w io.Writer, r benchResult) {
	per := func(d time.Duration) time.Duration { return d / time.Duration(r.Iterations) }

	fmt.Fprintf(w, "=== SUMMARY ===\n")
	fmt.Fprintf(w, "Input:        %d bytes, %d iterations\n", r.InputBytes, r.Iterations)
	fmt.Fprintf(w, "JSOX compact: %d bytes\n", r.JSOXBytes)
	if r.JSONBytes > 0 {
		saved := r.JSONBytes - r.JSOXBytes
		fmt.Fprintf(w, "JSON:         %d bytes (JSOX saves %d, %.1f%%)\n",
			r.JSONBytes, saved, float64(saved)/float64(r.JSONBytes)*100)
	} else {
		fmt.Fprintf(w, "JSON:         n/a (document has no JSON form)\n")
	}
	fmt.Fprintf(w, "\n| Operation | Per op | Throughput |\n")
	fmt.Fprintf(w, "|-----------|--------|------------|\n")
	fmt.Fprintf(w, "| parse | %v | %s |\n", per(r.Parse), throughput(r.InputBytes, r.Iterations, r.Parse))
	fmt.Fprintf(w, "| parse (64B chunks) | %v | %s |\n", per(r.ParseChunks), throughput(r.InputBytes, r.Iterations, r.ParseChunks))
	fmt.Fprintf(w, "| stringify | %v | %s |\n", per(r.Stringify), throughput(r.JSOXBytes, r.Iterations, r.Stringify))
}
