package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/golang/glog"
	"github.com/panjf2000/ants/v2"

	"github.com/Neumenon/jsox/jsox"
)

// readChunk is the size of the pieces fed to the streaming parser.
const readChunk = 32 * 1024

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	return nil
}

// parseStream feeds r to a streaming parser in chunks and calls onValue for
// every top-level value.
func parseStream(r io.Reader, onValue func(*jsox.Value), opts ...jsox.ParseOption) error {
	p := jsox.Begin(onValue, opts...)
	buf := make([]byte, readChunk)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, perr := p.Write(string(buf[:n])); perr != nil {
				return perr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
	}
	_, err := p.Finish()
	return err
}

func stringifyOptions(indent int) []jsox.StringifyOption {
	if indent <= 0 {
		return nil
	}
	return []jsox.StringifyOption{jsox.WithSpace(indent)}
}

// ============================================================
// fmt
// ============================================================

// cmdFmt: JSOX -> JSOX, one value per line. Class headers are written once
// for the whole output.
func cmdFmt(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := newFlagSet("fmt", stderr)
	indent := fs.Int("indent", 0, "indent width (0 for compact output)")
	colorMode := fs.String("color", "auto", "colorize output: auto, always or never")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	in, done, err := openInput(fs, stdin)
	if err != nil {
		return err
	}
	defer done()

	opts := stringifyOptions(*indent)
	hl, err := highlighter(*colorMode, stdout)
	if err != nil {
		return err
	}
	if hl != nil {
		opts = append(opts, jsox.WithHighlighter(hl))
	}
	s := jsox.NewStringifier(opts...)

	var werr error
	err = parseStream(in, func(v *jsox.Value) {
		if werr != nil {
			return
		}
		text, err := s.Stringify(v)
		if err != nil {
			werr = err
			return
		}
		_, werr = fmt.Fprintln(stdout, text)
	})
	if err != nil {
		return err
	}
	return werr
}

// highlighter maps token classes to terminal colors. It returns nil when
// output should stay plain.
func highlighter(mode string, out io.Writer) (jsox.Highlighter, error) {
	switch mode {
	case "never":
		return nil, nil
	case "auto":
		if f, ok := out.(*os.File); !ok || f != os.Stdout || color.NoColor {
			return nil, nil
		}
	case "always":
	default:
		return nil, fmt.Errorf("fmt: invalid --color %q (auto, always, never)", mode)
	}

	palette := map[jsox.TokenClass]*color.Color{
		jsox.TokenKey:     color.New(color.FgBlue),
		jsox.TokenString:  color.New(color.FgGreen),
		jsox.TokenNumber:  color.New(color.FgCyan),
		jsox.TokenLiteral: color.New(color.FgMagenta),
		jsox.TokenDate:    color.New(color.FgYellow),
		jsox.TokenTag:     color.New(color.FgRed, color.Bold),
	}
	for _, c := range palette {
		c.EnableColor()
	}
	return func(class jsox.TokenClass, text string) string {
		if c, ok := palette[class]; ok {
			return c.Sprint(text)
		}
		return text
	}, nil
}

// ============================================================
// check
// ============================================================

type checkResult struct {
	Path   string
	Values int
	Err    error
}

// String formats the result as "path: ok (N values)" or, for syntax errors,
// "path:line:col: message".
func (r checkResult) String() string {
	if r.Err == nil {
		return fmt.Sprintf("%s: ok (%d values)", r.Path, r.Values)
	}
	var se *jsox.SyntaxError
	if errors.As(r.Err, &se) {
		return fmt.Sprintf("%s:%d:%d: %v", r.Path, se.Pos.Line, se.Pos.Column, se)
	}
	return fmt.Sprintf("%s: %v", r.Path, r.Err)
}

// cmdCheck validates files on an ants worker pool and reports them in
// argument order.
func cmdCheck(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("check", stderr)
	workers := fs.Int("workers", runtime.NumCPU(), "number of files checked in parallel")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("check: no files given")
	}

	results, err := checkFiles(fs.Args(), *workers)
	if err != nil {
		return err
	}
	failed := 0
	for _, r := range results {
		fmt.Fprintln(stdout, r)
		if r.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("check: %d of %d files failed", failed, len(results))
	}
	return nil
}

func checkFiles(paths []string, workers int) ([]checkResult, error) {
	if workers < 1 {
		workers = 1
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("worker pool: %w", err)
	}
	defer pool.Release()
	glog.V(1).Infof("check: %d files on %d workers", len(paths), workers)

	results := make([]checkResult, len(paths))
	var wg sync.WaitGroup
	for i, path := range paths {
		i, path := i, path
		wg.Add(1)
		task := func() {
			defer wg.Done()
			results[i] = checkFile(path)
		}
		if err := pool.Submit(task); err != nil {
			wg.Done()
			results[i] = checkResult{Path: path, Err: err}
		}
	}
	wg.Wait()
	return results, nil
}

func checkFile(path string) checkResult {
	res := checkResult{Path: path}
	f, err := os.Open(path)
	if err != nil {
		res.Err = err
		return res
	}
	defer f.Close()

	res.Err = parseStream(f, func(*jsox.Value) { res.Values++ })
	if res.Err != nil {
		glog.Errorf("check %s: %v", path, res.Err)
	}
	return res
}

// ============================================================
// JSON conversion
// ============================================================

// cmdToJSON: JSOX -> JSON, one document per line.
func cmdToJSON(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := newFlagSet("to-json", stderr)
	indent := fs.Int("indent", 0, "indent width (0 for compact output)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	in, done, err := openInput(fs, stdin)
	if err != nil {
		return err
	}
	defer done()

	var werr error
	err = parseStream(in, func(v *jsox.Value) {
		if werr != nil {
			return
		}
		data, err := jsox.ToJSON(v)
		if err != nil {
			werr = fmt.Errorf("convert to JSON: %w", err)
			return
		}
		if *indent > 0 {
			var pretty bytes.Buffer
			if err := json.Indent(&pretty, data, "", strings.Repeat(" ", *indent)); err != nil {
				werr = err
				return
			}
			data = pretty.Bytes()
		}
		_, werr = fmt.Fprintf(stdout, "%s\n", data)
	})
	if err != nil {
		return err
	}
	return werr
}

// cmdFromJSON: JSON -> JSOX
func cmdFromJSON(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := newFlagSet("from-json", stderr)
	indent := fs.Int("indent", 0, "indent width (0 for compact output)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	in, done, err := openInput(fs, stdin)
	if err != nil {
		return err
	}
	defer done()

	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	v, err := jsox.FromJSON(data)
	if err != nil {
		return fmt.Errorf("parse JSON: %w", err)
	}
	text, err := jsox.Stringify(v, stringifyOptions(*indent)...)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, text)
	return err
}
