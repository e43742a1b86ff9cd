// Package blob compresses store payloads. Both storage adapters write
// codec-encoded bytes through zstd so large series and snapshots stay cheap
// at rest.
package blob

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

var (
	enc, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	dec, _ = zstd.NewReader(nil)
)

// Compress returns the zstd-compressed form of data.
func Compress(data []byte) []byte {
	return enc.EncodeAll(data, make([]byte, 0, len(data)/2))
}

// Decompress reverses Compress.
func Decompress(data []byte) ([]byte, error) {
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress payload: %w", err)
	}
	return out, nil
}
