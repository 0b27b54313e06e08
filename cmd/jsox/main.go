// jsox - JSOX codec CLI tool
//
// Usage:
//
//	jsox fmt [--indent=N] [--color=auto|always|never] [file]   Parse and re-emit JSOX
//	jsox check [--workers=N] files...                          Validate files concurrently
//	jsox to-json [--indent=N] [file]                           Convert JSOX to JSON
//	jsox from-json [--indent=N] [file]                         Convert JSON to JSOX
//	jsox stream encode [--sid=N] [--crc] [--zstd=N] [file]     Wrap JSOX values into frames
//	jsox stream decode [--raw] [file]                          Decode frames and print values
//	jsox bench [--iterations=N] [file]                         Parse/stringify throughput
//	jsox version                                               Print version info
//
// Global flags (-v, -logtostderr, ...) come before the command and control
// glog output. If no file is given, reads from stdin.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/golang/glog"
)

const libVersion = "0.1.0"

// errUsage reports bad arguments; the usage text has already been printed.
var errUsage = errors.New("usage")

func main() {
	flag.Usage = func() { printUsage(os.Stderr) }
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage(os.Stderr)
		glog.Flush()
		os.Exit(1)
	}

	err := run(flag.Args(), os.Stdin, os.Stdout, os.Stderr)
	if errors.Is(err, errUsage) {
		glog.Flush()
		os.Exit(2)
	}
	if err != nil {
		fatal("%v", err)
	}
	glog.Flush()
}

// run dispatches a command. It is main without the process exit.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cmd, rest := args[0], args[1:]
	glog.V(1).Infof("jsox %s %v", cmd, rest)

	switch cmd {
	case "fmt":
		return cmdFmt(rest, stdin, stdout, stderr)
	case "check":
		return cmdCheck(rest, stdout, stderr)
	case "to-json":
		return cmdToJSON(rest, stdin, stdout, stderr)
	case "from-json":
		return cmdFromJSON(rest, stdin, stdout, stderr)
	case "stream":
		if len(rest) < 1 {
			return fmt.Errorf("stream: missing subcommand (encode, decode)")
		}
		switch rest[0] {
		case "encode":
			return cmdStreamEncode(rest[1:], stdin, stdout, stderr)
		case "decode":
			return cmdStreamDecode(rest[1:], stdin, stdout, stderr)
		default:
			return fmt.Errorf("stream: unknown subcommand: %s", rest[0])
		}
	case "bench":
		return cmdBench(rest, stdin, stdout, stderr)
	case "version", "--version":
		fmt.Fprintf(stdout, "jsox %s\n", libVersion)
		return nil
	case "help", "-h", "--help":
		printUsage(stdout)
		return nil
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", cmd)
		printUsage(stderr)
		return errUsage
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `jsox - JSOX codec CLI tool

Usage:
  jsox [glog flags] <command> [options] [file]

Commands:
  fmt [--indent=N] [--color=auto|always|never] [file]   Parse and re-emit JSOX
  check [--workers=N] files...                          Validate files concurrently
  to-json [--indent=N] [file]                           Convert JSOX to JSON
  from-json [--indent=N] [file]                         Convert JSON to JSOX
  stream encode [--sid=N] [--crc] [--zstd=N] [file]     Wrap JSOX values into frames
  stream decode [--raw] [file]                          Decode frames and print values
  bench [--iterations=N] [file]                         Parse/stringify throughput
  version                                               Print version info

If no file is given, reads from stdin.

Examples:
  echo '{a:1, b:[1,,3], c:2024-01-02T03:04:05Z}' | jsox fmt --indent=2
  jsox check --workers=8 testdata/*.jsox
  echo '{"b":1,"a":2}' | jsox from-json
  jsox stream encode --zstd=1024 rows.jsox | jsox stream decode
`)
}

// newFlagSet returns a flag set that reports errors instead of exiting.
func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

// openInput opens the single optional file argument, or returns stdin.
func openInput(fs *flag.FlagSet, stdin io.Reader) (io.Reader, func(), error) {
	if fs.NArg() > 1 {
		return nil, nil, fmt.Errorf("%s: expected at most one file, got %d", fs.Name(), fs.NArg())
	}
	if fs.NArg() == 0 || fs.Arg(0) == "-" {
		return stdin, func() {}, nil
	}
	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return nil, nil, fmt.Errorf("open file: %w", err)
	}
	return f, func() { f.Close() }, nil
}

func fatal(format string, args ...interface{}) {
	glog.Errorf(format, args...)
	fmt.Fprintf(os.Stderr, "jsox: "+format+"\n", args...)
	glog.Flush()
	os.Exit(1)
}
