// Package bytesize provides a byte quantity usable as a flag value and in YAML.
package bytesize

import (
	"errors"
	"strings"

	"github.com/dustin/go-humanize"
)

type ByteSize uint64

const (
	Byte ByteSize = 1
	KB            = Byte * 1000
	MB            = KB * 1000
	GB            = MB * 1000
	TB            = GB * 1000

	KiB = Byte * 1024
	MiB = KiB * 1024
	GiB = MiB * 1024
	TiB = GiB * 1024
)

var errParse = errors.New("could not parse ByteSize")

// Parse accepts values like "512MiB", "1 GB" or "1024". Units are case
// insensitive.
func Parse(s string) (ByteSize, error) {
	v, err := humanize.ParseBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, errParse
	}
	return ByteSize(v), nil
}

func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

// Set implements flag.Value.
func (b *ByteSize) Set(s string) error {
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// UnmarshalYAML accepts both plain integers and human readable strings.
func (b *ByteSize) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return b.Set(s)
}

func (b ByteSize) MarshalYAML() (interface{}, error) {
	return b.String(), nil
}
