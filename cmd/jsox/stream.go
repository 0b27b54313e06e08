package main

import (
	"fmt"
	"io"

	"github.com/golang/glog"

	"github.com/Neumenon/jsox/jsox"
	"github.com/Neumenon/jsox/stream"
)

// cmdStreamEncode wraps every top-level value of the input into a doc frame
// of one stream and ends the stream with an empty final frame.
func cmdStreamEncode(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := newFlagSet("stream encode", stderr)
	sid := fs.Uint64("sid", 1, "stream id")
	withCRC := fs.Bool("crc", false, "add a CRC-32 to every frame")
	zstdMin := fs.Int("zstd", 0, "zstd-compress payloads of at least N bytes (0 disables)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	in, done, err := openInput(fs, stdin)
	if err != nil {
		return err
	}
	defer done()

	var opts []stream.WriterOption
	if *withCRC {
		opts = append(opts, stream.WithCRC())
	}
	if *zstdMin > 0 {
		opts = append(opts, stream.WithCompression(*zstdMin))
	}
	enc := stream.NewEncoder(stream.NewWriter(stdout, opts...))

	var werr error
	frames := 0
	err = parseStream(in, func(v *jsox.Value) {
		if werr != nil {
			return
		}
		if _, werr = enc.Encode(*sid, v); werr == nil {
			frames++
		}
	})
	if err != nil {
		return err
	}
	if werr != nil {
		return werr
	}
	glog.V(1).Infof("stream encode: %d documents on sid %d", frames, *sid)
	return enc.Close(*sid)
}

// cmdStreamDecode prints the decoded value of every frame. With --raw it
// prints frame headers and payload text without decoding.
func cmdStreamDecode(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := newFlagSet("stream decode", stderr)
	raw := fs.Bool("raw", false, "print frames without decoding payloads")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	in, done, err := openInput(fs, stdin)
	if err != nil {
		return err
	}
	defer done()

	reader := stream.NewReader(in)
	defer reader.Close()

	if *raw {
		n := 0
		for {
			frame, err := reader.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				return fmt.Errorf("frame %d: %w", n+1, err)
			}
			n++
			printFrame(stdout, n, frame)
		}
		fmt.Fprintf(stderr, "--- %d frames ---\n", n)
		return nil
	}

	dec := stream.NewDecoder(reader)
	n, failed := 0, 0
	for {
		m, err := dec.Next()
		if err == io.EOF {
			break
		}
		n++
		if err != nil {
			// Frame-level problems do not stop the stream.
			fmt.Fprintf(stderr, "frame %d: error: %v\n", n, err)
			failed++
			continue
		}
		printMessage(stdout, m)
	}
	fmt.Fprintf(stderr, "--- %d frames decoded ---\n", n-failed)
	if failed > 0 {
		return fmt.Errorf("stream decode: %d of %d frames failed", failed, n)
	}
	return nil
}

func printMessage(w io.Writer, m *stream.Message) {
	fmt.Fprintf(w, "sid=%d seq=%d kind=%s", m.SID, m.Seq, m.Kind)
	if m.Final {
		fmt.Fprint(w, " final")
	}
	if m.Value != nil {
		text, err := jsox.Stringify(m.Value)
		if err != nil {
			text = "<" + err.Error() + ">"
		}
		fmt.Fprintf(w, ": %s", text)
	}
	fmt.Fprintln(w)
}

func printFrame(w io.Writer, n int, f *stream.Frame) {
	fmt.Fprintf(w, "--- Frame %d ---\n", n)
	fmt.Fprintf(w, "  sid=%d seq=%d kind=%s len=%d\n", f.SID, f.Seq, f.Kind, len(f.Payload))

	if f.CRC != nil {
		fmt.Fprintf(w, "  crc=%08x\n", *f.CRC)
	}
	if f.Base != nil {
		fmt.Fprintf(w, "  base=%s\n", stream.HashToHex(*f.Base))
	}
	if f.IsCompressed() {
		fmt.Fprintf(w, "  enc=%s\n", stream.EncodingZstd)
	}
	if f.IsFinal() {
		fmt.Fprintf(w, "  final=true\n")
	}

	// Print payload (truncated if long)
	payload := string(f.Payload)
	if len(payload) > 200 {
		payload = payload[:200] + "..."
	}
	if len(payload) > 0 {
		fmt.Fprintf(w, "  payload: %s\n", payload)
	}
}
