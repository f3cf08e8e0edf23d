package smcache

import (
	"errors"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

const noSegment = -1

var errVLQ = errors.New("invalid base64 VLQ")

// rawMap holds the fields of a source map needed to bound lookups to the
// generated line they were made on.
type rawMap struct {
	Mappings string                `json:"mappings"`
	Sections []jsoniter.RawMessage `json:"sections"`
}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// firstColumns returns, for every generated line, the lowest generated column
// a segment starts at, or noSegment for lines without segments. It returns nil
// for indexed maps, whose sections are not bounded per line.
func firstColumns(sourceMap []byte) ([]int32, error) {
	var m rawMap
	if err := json.Unmarshal(sourceMap, &m); err != nil {
		return nil, err
	}
	if len(m.Sections) > 0 {
		return nil, nil
	}
	lines := strings.Split(m.Mappings, ";")
	cols := make([]int32, len(lines))
	for i, line := range lines {
		cols[i] = noSegment
		// Generated columns are relative to the previous segment of the
		// same line and reset on every line.
		var col int32
		for n, seg := range strings.Split(line, ",") {
			if seg == "" {
				continue
			}
			delta, err := decodeVLQ(seg)
			if err != nil {
				return nil, fmt.Errorf("line %d segment %d: %w", i, n, err)
			}
			col += delta
			if cols[i] == noSegment || col < cols[i] {
				cols[i] = col
			}
		}
	}
	return cols, nil
}

// decodeVLQ decodes the first base64 VLQ value of s.
func decodeVLQ(s string) (int32, error) {
	var value, shift int64
	for i := 0; i < len(s); i++ {
		digit := strings.IndexByte(base64Alphabet, s[i])
		if digit < 0 || shift > 31 {
			return 0, errVLQ
		}
		value |= int64(digit&vlqMask) << shift
		if digit&vlqContinuation == 0 {
			if value&1 != 0 {
				return int32(-(value >> 1)), nil
			}
			return int32(value >> 1), nil
		}
		shift += vlqShift
	}
	return 0, errVLQ
}

const (
	base64Alphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"
	vlqShift        = 5
	vlqContinuation = 1 << vlqShift
	vlqMask         = vlqContinuation - 1
)
