package transfer

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// DefaultCompressionLevel is the zstd level used when none is given.
const DefaultCompressionLevel = 3

// newCompressor returns a zstd encoder writing to w. Valid levels are between 1 and 19,
// 0 selects DefaultCompressionLevel.
func newCompressor(w io.Writer, level int) (*zstd.Encoder, error) {
	if level == 0 {
		level = DefaultCompressionLevel
	}
	if level < 1 || level > 19 {
		return nil, fmt.Errorf("invalid compression level: %d", level)
	}

	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, fmt.Errorf("create zstd writer: %w", err)
	}
	return enc, nil
}

func newDecompressor(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	return dec.IOReadCloser(), nil
}
