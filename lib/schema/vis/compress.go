// Copyright 2026 The Runboard Authors
// SPDX-License-Identifier: Apache-2.0

package vis

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionTag identifies the compression algorithm of a payload
// body. Tags are stored in container headers (1 byte). These values
// are protocol constants — changing them breaks container format
// compatibility.
type CompressionTag uint8

const (
	// CompressionNone indicates an uncompressed body. Chosen
	// automatically when the data is incompressible (already-packed
	// tensors, random initializations).
	CompressionNone CompressionTag = 0

	// CompressionLZ4 indicates LZ4 block compression. The fast
	// default for tensor snapshots on the training hot path.
	CompressionLZ4 CompressionTag = 1

	// CompressionZstd indicates zstd compression at the default
	// level. Better ratios for text-heavy payloads (string kwargs,
	// label arrays).
	CompressionZstd CompressionTag = 2
)

// String returns the human-readable name of a compression tag.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}

// errIncompressible signals that compression did not shrink the data.
// Callers fall back to CompressionNone.
var errIncompressible = errors.New("vis: data is incompressible")

// zstdEncoder and zstdDecoder are reused across calls to avoid
// repeated initialization overhead. zstd.Encoder and zstd.Decoder are
// safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("vis: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("vis: zstd decoder initialization failed: " + err.Error())
	}
}

// compress compresses body with the requested algorithm. When the
// result would not be smaller than the input, it falls back to
// CompressionNone and returns the input unchanged. The returned tag
// is what must be written to the container header.
func compress(body []byte, tag CompressionTag) ([]byte, CompressionTag, error) {
	switch tag {
	case CompressionNone:
		return body, CompressionNone, nil

	case CompressionLZ4:
		bound := lz4.CompressBlockBound(len(body))
		destination := make([]byte, bound)
		written, err := lz4.CompressBlock(body, destination, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("lz4 compress: %w", err)
		}
		// CompressBlock returns 0 when it determines the data is
		// incompressible.
		if written == 0 || written >= len(body) {
			return body, CompressionNone, nil
		}
		return destination[:written], CompressionLZ4, nil

	case CompressionZstd:
		compressed := zstdEncoder.EncodeAll(body, nil)
		if len(compressed) >= len(body) {
			return body, CompressionNone, nil
		}
		return compressed, CompressionZstd, nil

	default:
		return nil, 0, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}

// decompress expands a container body. The uncompressedSize comes
// from the container header and is verified exactly — a mismatch
// means the file was read mid-write, and the caller maps it to
// ErrTruncatedPayload.
func decompress(body []byte, tag CompressionTag, uncompressedSize int) ([]byte, error) {
	switch tag {
	case CompressionNone:
		if len(body) != uncompressedSize {
			return nil, fmt.Errorf("uncompressed body: size %d does not match expected %d",
				len(body), uncompressedSize)
		}
		return body, nil

	case CompressionLZ4:
		destination := make([]byte, uncompressedSize)
		read, err := lz4.UncompressBlock(body, destination)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if read != uncompressedSize {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, uncompressedSize)
		}
		return destination, nil

	case CompressionZstd:
		result, err := zstdDecoder.DecodeAll(body, make([]byte, 0, uncompressedSize))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(result) != uncompressedSize {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), uncompressedSize)
		}
		return result, nil

	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}
