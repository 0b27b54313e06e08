package stream

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Neumenon/jsox/jsox"
)

// sampleDocs are JSOX documents covering the shapes a stream carries.
var sampleDocs = []struct {
	name string
	text string
}{
	{"rows", "Row{id,name,at}[Row{1,\"ana\",2024-05-01T12:00:00.000Z},Row{2,\"bo\",2024-05-02T08:30:00.000Z}]"},
	{"typed", `{pixels:u8["AAEC/w=="],scale:f32[]}`},
	{"refs", `{root:{kids:[]},again:ref["root"]}`},
	{"literals", `[NaN,-Infinity,undefined,12345678901234567890n,,]`},
	{"framing text", `{note:"}\n@frame{v=1 sid=9 seq=9 kind=doc len=0}\n"}`},
	{"scalar", `"just a string"`},
}

func frameLine(t *testing.T, payload string, fields ...string) string {
	t.Helper()
	return "@frame{" + strings.Join(fields, " ") + " len=" + strconv.Itoa(len(payload)) + "}\n" + payload + "\n"
}

// ============================================================
// Writer Tests
// ============================================================

func TestWriter_Headers(t *testing.T) {
	doc := []byte(`Pt{x,y}Pt{1,2}`)
	base := [32]byte{0xfe, 0xed}
	crc := fmt.Sprintf("%08x", ComputeCRC(doc))

	tests := []struct {
		name  string
		opts  []WriterOption
		frame Frame
		want  string
	}{
		{
			"doc",
			nil,
			Frame{SID: 3, Seq: 1, Kind: KindDoc, Payload: doc},
			"@frame{v=1 sid=3 seq=1 kind=doc len=14}\n",
		},
		{
			"writer crc",
			[]WriterOption{WithCRC()},
			Frame{SID: 3, Seq: 2, Kind: KindDoc, Payload: doc},
			"@frame{v=1 sid=3 seq=2 kind=doc len=14 crc=" + crc + "}\n",
		},
		{
			"frame crc flag",
			nil,
			Frame{SID: 3, Seq: 2, Kind: KindErr, Payload: doc, Flags: FlagHasCRC},
			"@frame{v=1 sid=3 seq=2 kind=err len=14 crc=" + crc + "}\n",
		},
		{
			"base and final",
			nil,
			Frame{SID: 7, Seq: 40, Kind: KindDoc, Payload: doc, Base: &base, Final: true},
			"@frame{v=1 sid=7 seq=40 kind=doc len=14 base=sha256:" + HashToHex(base) + " final=true}\n",
		},
		{
			"empty control frame",
			[]WriterOption{WithCRC(), WithCompression(1)},
			Frame{SID: 1, Seq: 42, Kind: KindPong},
			"@frame{v=1 sid=1 seq=42 kind=pong len=0}\n",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := NewWriter(&buf, tc.opts...).WriteFrame(&tc.frame); err != nil {
				t.Fatalf("WriteFrame failed: %v", err)
			}
			header, rest, _ := strings.Cut(buf.String(), "\n")
			if header+"\n" != tc.want {
				t.Errorf("header:\n%s\nwant:\n%s", header, tc.want)
			}
			if rest != string(tc.frame.Payload)+"\n" {
				t.Errorf("payload section = %q", rest)
			}
		})
	}
}

func TestWriter_Helpers(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	steps := []func() error{
		func() error { return w.WriteDoc(1, 1, []byte("[1]")) },
		func() error { return w.WriteDocWithBase(1, 2, []byte("[2]"), [32]byte{1}) },
		func() error { return w.WriteErr(1, 3, []byte(`{code:"E"}`)) },
		func() error { return w.WriteAck(1, 2) },
		func() error { return w.WritePing(1, 0) },
		func() error { return w.WritePong(1, 0) },
		func() error { return w.WriteFinal(1, 4, KindDoc, []byte("null")) },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d failed: %v", i, err)
		}
	}

	frames, err := NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	var got []string
	for _, f := range frames {
		desc := f.Kind.String() + "/" + strconv.FormatUint(f.Seq, 10)
		if f.HasBase() {
			desc += "+base"
		}
		if f.IsFinal() {
			desc += "+final"
		}
		got = append(got, desc)
	}
	want := "doc/1,doc/2+base,err/3,ack/2,ping/0,pong/0,doc/4+final"
	if strings.Join(got, ",") != want {
		t.Errorf("frames = %s, want %s", strings.Join(got, ","), want)
	}
}

func TestWriter_Compression(t *testing.T) {
	rows := make([]any, 300)
	for i := range rows {
		rows[i] = jsox.ClassObject("Row",
			jsox.F("id", jsox.Number(float64(i))),
			jsox.F("at", jsox.Date(time.Date(2024, 5, 1, 0, 0, i%60, 0, time.UTC))),
		)
	}
	text, err := jsox.Stringify(rows)
	if err != nil {
		t.Fatalf("Stringify failed: %v", err)
	}

	var buf bytes.Buffer
	w := NewWriter(&buf, WithCompression(512), WithCRC())
	if err := w.WriteDoc(1, 1, []byte(text)); err != nil {
		t.Fatalf("WriteDoc failed: %v", err)
	}
	if err := w.WriteDoc(1, 2, []byte("Row{1,null}")); err != nil {
		t.Fatalf("WriteDoc failed: %v", err)
	}
	if buf.Len() >= len(text) {
		t.Errorf("stream is %d bytes, document is %d", buf.Len(), len(text))
	}

	r := NewReader(&buf)
	defer r.Close()
	frames, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if !frames[0].IsCompressed() || string(frames[0].Payload) != text {
		t.Errorf("frame 1: compressed=%v, %d bytes", frames[0].IsCompressed(), len(frames[0].Payload))
	}
	if frames[1].IsCompressed() {
		t.Error("frame 2 is below the threshold but was compressed")
	}

	// The caller's flag forces compression of any non-empty payload.
	buf.Reset()
	forced := &Frame{SID: 2, Seq: 1, Kind: KindDoc, Payload: []byte("[1,2,3]"), Flags: FlagCompressed}
	if err := NewWriter(&buf).WriteFrame(forced); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	if !strings.Contains(buf.String(), " enc=zstd") {
		t.Errorf("FlagCompressed ignored: %q", buf.String())
	}
}

func TestWriter_CRCCoversWireBytes(t *testing.T) {
	payload := []byte(strings.Repeat("[1,2,3,4],", 100))
	var buf bytes.Buffer
	if err := NewWriter(&buf, WithCompression(1), WithCRC()).WriteDoc(1, 1, payload); err != nil {
		t.Fatalf("WriteDoc failed: %v", err)
	}

	raw, err := NewReader(bytes.NewReader(buf.Bytes()), WithCRCVerification(false)).Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	header, rest, _ := strings.Cut(buf.String(), "\n")
	wire := []byte(strings.TrimSuffix(rest, "\n"))
	want := fmt.Sprintf("crc=%08x", ComputeCRC(wire))
	if !strings.Contains(header, want) {
		t.Errorf("header %s does not carry %s", header, want)
	}
	if !bytes.Equal(raw.Payload, payload) {
		t.Error("payload did not inflate back")
	}
}

// ============================================================
// Reader Tests
// ============================================================

func TestReader_Frames(t *testing.T) {
	base := [32]byte{0xab, 0xcd}
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, f *Frame)
	}{
		{
			"class document",
			frameLine(t, "Pt{x,y}Pt{1,2}", "v=1 sid=12 seq=3 kind=doc"),
			func(t *testing.T, f *Frame) {
				if f.Version != 1 || f.SID != 12 || f.Seq != 3 || f.Kind != KindDoc {
					t.Errorf("got v=%d sid=%d seq=%d kind=%s", f.Version, f.SID, f.Seq, f.Kind)
				}
				if string(f.Payload) != "Pt{x,y}Pt{1,2}" {
					t.Errorf("Payload = %q", f.Payload)
				}
			},
		},
		{
			"crc",
			frameLine(t, "[true]", "v=1 sid=1 seq=1 kind=doc", fmt.Sprintf("crc=%08x", ComputeCRC([]byte("[true]")))),
			func(t *testing.T, f *Frame) {
				if !f.HasCRC() || *f.CRC != ComputeCRC([]byte("[true]")) {
					t.Errorf("CRC not decoded: %v", f.CRC)
				}
			},
		},
		{
			"base",
			frameLine(t, "{n:2}", "v=1 sid=1 seq=2 kind=doc", "base=sha256:"+HashToHex(base)),
			func(t *testing.T, f *Frame) {
				if !f.HasBase() || *f.Base != base {
					t.Error("base not decoded")
				}
			},
		},
		{
			"final err",
			frameLine(t, `{code:"gone"}`, "v=1 sid=5 seq=9 kind=err final=true"),
			func(t *testing.T, f *Frame) {
				if f.Kind != KindErr || !f.IsFinal() {
					t.Errorf("kind=%s final=%v", f.Kind, f.IsFinal())
				}
			},
		},
		{
			"numeric kind",
			frameLine(t, "0", "v=1 sid=0 seq=0 kind=99"),
			func(t *testing.T, f *Frame) {
				if f.Kind != FrameKind(99) || f.Kind.String() != "unknown(99)" {
					t.Errorf("Kind = %s", f.Kind)
				}
			},
		},
		{
			"commas and extra spaces",
			"@frame{ v=1,sid=4,  seq=1,kind=ping ,len=0 }\n\n",
			func(t *testing.T, f *Frame) {
				if f.SID != 4 || f.Kind != KindPing || len(f.Payload) != 0 {
					t.Errorf("sid=%d kind=%s len=%d", f.SID, f.Kind, len(f.Payload))
				}
			},
		},
		{
			"unknown field and crc32 prefix",
			"@frame{v=1 sid=1 seq=1 kind=doc len=1 trace=abc crc=crc32:" + fmt.Sprintf("%08x", ComputeCRC([]byte("1"))) + "}\n1",
			func(t *testing.T, f *Frame) {
				if string(f.Payload) != "1" || !f.HasCRC() {
					t.Errorf("payload %q crc %v", f.Payload, f.CRC)
				}
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f, err := NewReader(strings.NewReader(tc.input)).Next()
			if err != nil {
				t.Fatalf("Next failed: %v", err)
			}
			tc.check(t, f)
		})
	}
}

func TestReader_KindNames(t *testing.T) {
	for _, k := range []FrameKind{KindDoc, KindAck, KindErr, KindPing, KindPong} {
		input := frameLine(t, "null", "v=1 sid=0 seq=0", "kind="+k.String())
		f, err := NewReader(strings.NewReader(input)).Next()
		if err != nil {
			t.Errorf("kind=%s: %v", k, err)
			continue
		}
		if f.Kind != k {
			t.Errorf("kind=%s: got %s", k, f.Kind)
		}
	}
}

func TestReader_LengthDelimited(t *testing.T) {
	// Payloads with newlines, braces and frame-looking text are read by len.
	var input strings.Builder
	for i, d := range sampleDocs {
		input.WriteString(frameLine(t, d.text, "v=1 sid=1", "seq="+strconv.Itoa(i+1), "kind=doc"))
	}
	indented, err := jsox.Stringify(jsox.Object(jsox.F("a", jsox.Array(jsox.Number(1)))), jsox.WithSpace(2))
	if err != nil {
		t.Fatalf("Stringify failed: %v", err)
	}
	input.WriteString(frameLine(t, indented, "v=1 sid=1 seq=99 kind=doc"))

	frames, err := NewReader(strings.NewReader(input.String())).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(frames) != len(sampleDocs)+1 {
		t.Fatalf("got %d frames, want %d", len(frames), len(sampleDocs)+1)
	}
	for i, d := range sampleDocs {
		if string(frames[i].Payload) != d.text {
			t.Errorf("%s: payload = %q", d.name, frames[i].Payload)
		}
	}
	if string(frames[len(sampleDocs)].Payload) != indented {
		t.Errorf("indented payload = %q", frames[len(sampleDocs)].Payload)
	}
}

func TestReader_CRCMismatch(t *testing.T) {
	input := frameLine(t, "[1,2]", "v=1 sid=1 seq=1 kind=doc crc=0badf00d")

	_, err := NewReader(strings.NewReader(input)).Next()
	var mismatch *CRCMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected CRCMismatchError, got %T: %v", err, err)
	}
	if mismatch.Expected != 0x0badf00d || mismatch.Got != ComputeCRC([]byte("[1,2]")) {
		t.Errorf("mismatch = %+v", mismatch)
	}

	if _, err := NewReader(strings.NewReader(input), WithCRCVerification(false)).Next(); err != nil {
		t.Errorf("Next with verification off failed: %v", err)
	}
}

func TestReader_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		reason string
	}{
		{"missing prefix", "frame{v=1 len=0}\n", "expected @frame{"},
		{"missing brace", "@frame{v=1 sid=1 len=0\n", "missing closing }"},
		{"missing len", "@frame{v=1 sid=1 seq=1 kind=doc}\n", "missing len"},
		{"future version", "@frame{v=2 sid=1 seq=1 kind=doc len=0}\n", "unsupported version"},
		{"bad sid", "@frame{v=1 sid=-1 seq=1 kind=doc len=0}\n", "invalid sid"},
		{"bad seq", "@frame{v=1 sid=1 seq=x kind=doc len=0}\n", "invalid seq"},
		{"retired kind", "@frame{v=1 sid=1 seq=1 kind=patch len=0}\n", "invalid kind"},
		{"bad crc", "@frame{v=1 sid=1 seq=1 kind=doc len=0 crc=12}\n", "invalid crc"},
		{"gzip", "@frame{v=1 sid=1 seq=1 kind=doc len=2 enc=gzip}\n{}\n", "unsupported encoding"},
		{"short base", "@frame{v=1 sid=1 seq=1 kind=doc len=2 base=sha256:beef}\n{}\n", "invalid base"},
		{"cut header", "@frame{v=1 sid=1 seq", "truncated header"},
		{"not zstd", "@frame{v=1 sid=1 seq=1 kind=doc len=5 enc=zstd}\n[1,2]\n", "decompress"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewReader(strings.NewReader(tc.input)).Next()
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected ParseError, got %T: %v", err, err)
			}
			if !strings.Contains(pe.Reason, tc.reason) {
				t.Errorf("Reason = %q, want %q", pe.Reason, tc.reason)
			}
		})
	}
}

func TestReader_ErrorOffset(t *testing.T) {
	first := frameLine(t, "Pt{x}Pt{1}", "v=1 sid=1 seq=1 kind=doc")
	input := first + "@frame{v=1 sid=1 seq=2 kind=row len=0}\n"
	r := NewReader(strings.NewReader(input))
	if _, err := r.Next(); err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	_, err := r.Next()
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if pe.Offset != int64(len(first)) {
		t.Errorf("Offset = %d, want %d", pe.Offset, len(first))
	}
	if !strings.Contains(pe.Error(), "at offset "+strconv.Itoa(len(first))) {
		t.Errorf("Error() = %s", pe.Error())
	}
}

func TestReader_EOF(t *testing.T) {
	for _, input := range []string{"", "  \t"} {
		if _, err := NewReader(strings.NewReader(input)).Next(); err != io.EOF {
			t.Errorf("%q: expected io.EOF, got %v", input, err)
		}
	}
}

func TestReader_Limits(t *testing.T) {
	t.Run("wire", func(t *testing.T) {
		input := "@frame{v=1 sid=0 seq=0 kind=doc len=4096}\n"
		_, err := NewReader(strings.NewReader(input), WithMaxPayload(1024)).Next()
		var pe *ParseError
		if !errors.As(err, &pe) || !strings.Contains(pe.Reason, "payload too large") {
			t.Errorf("expected payload too large, got %v", err)
		}
	})
	t.Run("short payload", func(t *testing.T) {
		input := "@frame{v=1 sid=0 seq=0 kind=doc len=10}\n[1]"
		if _, err := NewReader(strings.NewReader(input)).Next(); err == nil {
			t.Error("expected error for a payload cut short")
		}
	})
	t.Run("inflated", func(t *testing.T) {
		var buf bytes.Buffer
		doc := "[" + strings.Repeat("0,", 5000) + "]"
		if err := NewWriter(&buf, WithCompression(1)).WriteDoc(1, 1, []byte(doc)); err != nil {
			t.Fatalf("WriteDoc failed: %v", err)
		}
		r := NewReader(&buf, WithMaxPayload(1024))
		defer r.Close()
		if _, err := r.Next(); err == nil {
			t.Error("expected error for a payload that inflates past the limit")
		}
	})
}

// ============================================================
// Round-trip Tests
// ============================================================

func TestRoundtrip_Documents(t *testing.T) {
	configs := []struct {
		name string
		opts []WriterOption
	}{
		{"plain", nil},
		{"crc", []WriterOption{WithCRC()}},
		{"zstd", []WriterOption{WithCompression(1)}},
		{"zstd+crc", []WriterOption{WithCompression(16), WithCRC()}},
	}

	for _, cfg := range configs {
		t.Run(cfg.name, func(t *testing.T) {
			var buf bytes.Buffer
			w := NewWriter(&buf, cfg.opts...)
			for i, d := range sampleDocs {
				if err := w.WriteDoc(8, uint64(i+1), []byte(d.text)); err != nil {
					t.Fatalf("WriteDoc failed: %v", err)
				}
			}
			if err := w.WriteFinal(8, uint64(len(sampleDocs)+1), KindDoc, nil); err != nil {
				t.Fatalf("WriteFinal failed: %v", err)
			}

			r := NewReader(&buf)
			defer r.Close()
			frames, err := r.ReadAll()
			if err != nil {
				t.Fatalf("ReadAll failed: %v", err)
			}
			if len(frames) != len(sampleDocs)+1 {
				t.Fatalf("got %d frames", len(frames))
			}
			for i, d := range sampleDocs {
				f := frames[i]
				if f.SID != 8 || f.Seq != uint64(i+1) {
					t.Errorf("%s: sid=%d seq=%d", d.name, f.SID, f.Seq)
				}
				want, err := jsox.Parse(d.text)
				if err != nil {
					t.Fatalf("%s: Parse failed: %v", d.name, err)
				}
				got, err := jsox.Parse(string(f.Payload))
				if err != nil {
					t.Fatalf("%s: payload does not parse: %v", d.name, err)
				}
				if !jsox.Equal(got, want) {
					t.Errorf("%s: payload changed: %q", d.name, f.Payload)
				}
			}
			last := frames[len(sampleDocs)]
			if !last.IsFinal() || len(last.Payload) != 0 {
				t.Errorf("final frame: final=%v len=%d", last.IsFinal(), len(last.Payload))
			}
		})
	}
}

func TestRoundtrip_ExtremeIDs(t *testing.T) {
	const top = ^uint64(0)
	var buf bytes.Buffer
	if err := NewWriter(&buf).WriteDoc(top, top, []byte("0")); err != nil {
		t.Fatalf("WriteDoc failed: %v", err)
	}
	f, err := NewReader(&buf).Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if f.SID != top || f.Seq != top {
		t.Errorf("sid=%d seq=%d", f.SID, f.Seq)
	}
}

// ============================================================
// CRC and Hash Tests
// ============================================================

func TestCRC_KnownValues(t *testing.T) {
	vectors := map[string]uint32{
		"":          0x00000000,
		"a":         0xe8b7be43,
		"abc":       0x352441c2,
		"123456789": 0xcbf43926,
	}
	for input, want := range vectors {
		if got := ComputeCRC([]byte(input)); got != want {
			t.Errorf("CRC(%q) = %08x, want %08x", input, got, want)
		}
		if !VerifyCRC([]byte(input), want) || VerifyCRC([]byte(input), want^1) {
			t.Errorf("VerifyCRC(%q) disagrees with ComputeCRC", input)
		}
	}
}

func TestHash_Hex(t *testing.T) {
	h, err := StateHash(jsox.Array(jsox.Number(1), jsox.String("two")))
	if err != nil {
		t.Fatalf("StateHash failed: %v", err)
	}
	text := HashToHex(h)
	if len(text) != 64 || strings.ToLower(text) != text {
		t.Errorf("hex = %s", text)
	}
	back, ok := HexToHash(text)
	if !ok || back != h {
		t.Error("HexToHash did not invert HashToHex")
	}
	for _, bad := range []string{text[:62], text[:63] + "g", text + "00"} {
		if _, ok := HexToHash(bad); ok {
			t.Errorf("HexToHash accepted %q", bad)
		}
	}
}
