package bytesize

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParse(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want ByteSize
	}{
		{"1TB", 1 * TB},
		{"1 TB", 1 * TB},
		{" 1 TB ", 1 * TB},
		{"1", 1 * Byte},
		{" 1 ", 1 * Byte},
		{"1mb", 1 * MB},
		{"1mB", 1 * MB},
		{"512MiB", 512 * MiB},
		{"2 gib", 2 * GiB},
	} {
		got, err := Parse(tt.in)
		require.NoError(t, err, tt.in)
		require.Equal(t, tt.want, got, tt.in)
	}

	_, err := Parse("1UB")
	require.EqualError(t, err, "could not parse ByteSize")
}

func TestFlag(t *testing.T) {
	var b ByteSize
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Var(&b, "size", "")
	require.NoError(t, fs.Parse([]string{"-size=64KiB"}))
	require.Equal(t, 64*KiB, b)
	require.Equal(t, "64 KiB", b.String())
}

func TestYAML(t *testing.T) {
	var v struct {
		Size ByteSize `yaml:"size"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("size: 1GiB\n"), &v))
	require.Equal(t, GiB, v.Size)

	require.NoError(t, yaml.Unmarshal([]byte("size: 2048\n"), &v))
	require.Equal(t, 2*KiB, v.Size)

	out, err := yaml.Marshal(v)
	require.NoError(t, err)
	require.Equal(t, "size: 2.0 KiB\n", string(out))
}
