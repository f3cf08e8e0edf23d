// Package symboldata implements the binary container used to persist a minified
// JavaScript source together with its source map.
//
// The container is a flat little-endian layout:
//
//	magic   [4]byte  ".jsd"
//	version uint32
//	kind    uint32
//	srcLen  uint64   followed by srcLen bytes of source
//	mapLen  uint64   followed by mapLen bytes of source map
//	crc     uint32   CRC32 (Castagnoli) of every preceding byte
//
// Sections are length-prefixed, so both payloads may hold arbitrary bytes,
// including NUL.
package symboldata

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

const (
	version uint32 = 1

	// KindSourceAndMap is the only payload kind defined so far.
	KindSourceAndMap uint32 = 1

	headerSize  = 4 + 4 + 4
	lengthSize  = 8
	trailerSize = 4
	minSize     = headerSize + 2*lengthSize + trailerSize
)

var (
	castagnoli = crc32.MakeTable(crc32.Castagnoli)
	magic      = []byte{0x2e, 0x6a, 0x73, 0x64} // ".jsd"
)

// ErrFormat is matched by every error returned from Decode. Read also
// returns it for malformed data, but passes I/O errors through.
var ErrFormat = errors.New("symbol data format error")

// FormatError describes why a blob could not be decoded.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid symbol data: %s", e.Reason)
}

func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

func formatErrorf(format string, args ...any) error {
	return &FormatError{Reason: fmt.Sprintf(format, args...)}
}

// SourceAndMap is a minified source file and the source map that belongs to it.
// Map is empty when no source map could be found for the source.
type SourceAndMap struct {
	Source []byte
	Map    []byte
}

// Size returns the number of payload bytes.
func (d SourceAndMap) Size() int {
	return len(d.Source) + len(d.Map)
}

// EncodedSize returns the size of the encoded container for d.
func EncodedSize(d SourceAndMap) int {
	return minSize + d.Size()
}

// Encode serializes d into a new container blob.
func Encode(d SourceAndMap) []byte {
	buf := make([]byte, 0, EncodedSize(d))
	buf = append(buf, magic...)
	buf = binary.LittleEndian.AppendUint32(buf, version)
	buf = binary.LittleEndian.AppendUint32(buf, KindSourceAndMap)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(d.Source)))
	buf = append(buf, d.Source...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(d.Map)))
	buf = append(buf, d.Map...)
	return binary.LittleEndian.AppendUint32(buf, crc32.Checksum(buf, castagnoli))
}

// Decode parses a container blob. The returned slices alias blob: the caller
// must not modify blob while the result is in use.
func Decode(blob []byte) (SourceAndMap, error) {
	var d SourceAndMap
	if len(blob) < minSize {
		return d, formatErrorf("blob too short: %d bytes", len(blob))
	}
	if !bytes.Equal(blob[:4], magic) {
		return d, formatErrorf("invalid magic number")
	}
	if v := binary.LittleEndian.Uint32(blob[4:8]); v != version {
		return d, formatErrorf("unsupported version: expected %d, got %d", version, v)
	}
	if k := binary.LittleEndian.Uint32(blob[8:12]); k != KindSourceAndMap {
		return d, formatErrorf("unsupported kind: %d", k)
	}

	body := blob[:len(blob)-trailerSize]
	rest := body[headerSize:]
	var err error
	if d.Source, rest, err = readSection(rest, "source"); err != nil {
		return SourceAndMap{}, err
	}
	if d.Map, rest, err = readSection(rest, "map"); err != nil {
		return SourceAndMap{}, err
	}
	if len(rest) != 0 {
		return SourceAndMap{}, formatErrorf("%d unexpected trailing bytes", len(rest))
	}

	expected := binary.LittleEndian.Uint32(blob[len(blob)-trailerSize:])
	if actual := crc32.Checksum(body, castagnoli); actual != expected {
		return SourceAndMap{}, formatErrorf("crc mismatch: expected %08x, got %08x", expected, actual)
	}
	return d, nil
}

func readSection(b []byte, name string) (section, rest []byte, err error) {
	if len(b) < lengthSize {
		return nil, nil, formatErrorf("truncated %s length", name)
	}
	n := binary.LittleEndian.Uint64(b[:lengthSize])
	b = b[lengthSize:]
	if n > uint64(len(b)) {
		return nil, nil, formatErrorf("truncated %s section: want %d bytes, have %d", name, n, len(b))
	}
	return b[:n:n], b[n:], nil
}

// Write encodes d to w.
func Write(w io.Writer, d SourceAndMap) error {
	_, err := w.Write(Encode(d))
	return err
}

// Read reads a whole container from r and decodes it.
func Read(r io.Reader) (SourceAndMap, error) {
	blob, err := io.ReadAll(r)
	if err != nil {
		return SourceAndMap{}, fmt.Errorf("read symbol data: %w", err)
	}
	return Decode(blob)
}
