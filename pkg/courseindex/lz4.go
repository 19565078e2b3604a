package courseindex

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// uint32ByteSize is the number of bytes in a uint32.
const uint32ByteSize = 4

// Block encodings. LZ4 refuses to compress input that would not shrink, so such
// blocks are stored verbatim.
const (
	blockRaw byte = iota
	blockLZ4
)

// ErrCorruptBlock is returned when a compressed block cannot be restored.
var ErrCorruptBlock = errors.New("corrupt block")

// CompressBlock compresses src with LZ4. The first byte of the result records
// whether the payload is compressed or stored raw.
func CompressBlock(src []byte) []byte {
	if len(src) == 0 {
		return []byte{blockRaw}
	}

	compressed := make([]byte, 1+lz4.CompressBlockBound(len(src)))

	written, err := lz4.CompressBlock(src, compressed[1:], nil)
	if err != nil || written == 0 || written >= len(src) {
		return append([]byte{blockRaw}, src...)
	}

	compressed[0] = blockLZ4

	return compressed[:1+written]
}

// lz4MaxRatio bounds how many output bytes one LZ4 block byte can expand to.
const lz4MaxRatio = 255

// CheckBlockLen reports whether a block produced by CompressBlock can decompress to
// exactly rawLen bytes, without decompressing it.
func CheckBlockLen(data []byte, rawLen int) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing encoding byte", ErrCorruptBlock)
	}

	payload := len(data) - 1

	switch data[0] {
	case blockRaw:
		if payload != rawLen {
			return fmt.Errorf("%w: raw block holds %d bytes, expected %d", ErrCorruptBlock, payload, rawLen)
		}
	case blockLZ4:
		if payload == 0 || rawLen <= 0 || rawLen/lz4MaxRatio > payload {
			return fmt.Errorf("%w: %d lz4 bytes cannot hold %d bytes", ErrCorruptBlock, payload, rawLen)
		}
	default:
		return fmt.Errorf("%w: unknown encoding %d", ErrCorruptBlock, data[0])
	}

	return nil
}

// DecompressBlock restores a block produced by CompressBlock. rawLen is the
// expected size of the decompressed data.
func DecompressBlock(data []byte, rawLen int) ([]byte, error) {
	err := CheckBlockLen(data, rawLen)
	if err != nil {
		return nil, err
	}

	if data[0] == blockRaw {
		return data[1:], nil
	}

	decompressed := make([]byte, rawLen)

	read, err := lz4.UncompressBlock(data[1:], decompressed)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptBlock, err)
	}

	if read != rawLen {
		return nil, fmt.Errorf("%w: decompressed %d bytes, expected %d", ErrCorruptBlock, read, rawLen)
	}

	return decompressed, nil
}

// CompressUInt32Slice compresses a slice of uint32-s with LZ4.
func CompressUInt32Slice(data []uint32) []byte {
	buf := make([]byte, 0, len(data)*uint32ByteSize)
	for _, v := range data {
		buf = binary.LittleEndian.AppendUint32(buf, v)
	}

	return CompressBlock(buf)
}

// DecompressUInt32Slice decompresses a slice of uint32-s previously compressed with LZ4.
// `result` must be preallocated.
func DecompressUInt32Slice(data []byte, result []uint32) error {
	raw, err := DecompressBlock(data, len(result)*uint32ByteSize)
	if err != nil {
		return err
	}

	for i := range result {
		result[i] = binary.LittleEndian.Uint32(raw[i*uint32ByteSize:])
	}

	return nil
}
