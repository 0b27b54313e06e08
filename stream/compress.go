package stream

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// EncodingZstd is the header value for zstd-compressed payloads.
const EncodingZstd = "zstd"

var (
	encoderOnce sync.Once
	encoder     *zstd.Encoder
	encoderErr  error
)

// compress returns the zstd encoding of payload. The encoder is shared;
// EncodeAll is safe for concurrent use.
func compress(payload []byte) ([]byte, error) {
	encoderOnce.Do(func() {
		encoder, encoderErr = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedDefault),
			zstd.WithEncoderConcurrency(1))
	})
	if encoderErr != nil {
		return nil, fmt.Errorf("zstd encoder: %w", encoderErr)
	}
	return encoder.EncodeAll(payload, make([]byte, 0, len(payload)/2)), nil
}

// decompressor inflates payloads for one Reader, refusing output larger
// than the reader's payload limit.
type decompressor struct {
	dec *zstd.Decoder
	max int
}

func newDecompressor(max int) (*decompressor, error) {
	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(uint64(max)))
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &decompressor{dec: dec, max: max}, nil
}

func (d *decompressor) decompress(payload []byte) ([]byte, error) {
	out, err := d.dec.DecodeAll(payload, nil)
	if err != nil {
		return nil, err
	}
	if len(out) > d.max {
		return nil, fmt.Errorf("decompressed payload too large: %d > %d", len(out), d.max)
	}
	return out, nil
}

func (d *decompressor) close() {
	d.dec.Close()
}
