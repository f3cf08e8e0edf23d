// Package fixtures embeds a small minified bundle and its source maps for tests.
//
// testdata/app.min.js is a single line of code followed by a relative
// sourceMappingURL directive pointing at app.min.js.map. Mapped generated
// columns on line 0 and their original positions in webpack:///src/app.js:
//
//	 9 -> 0:9  getValue
//	23 -> 1:2
//	30 -> 1:9
//	38 -> 4:0
//	53 -> 5:2
//
// nulls.min.js.map carries the same mappings with NUL bytes embedded in the
// original source content and in the symbol name.
package fixtures

import (
	_ "embed"
)

const (
	ChunkName    = "app.min.js"
	MapName      = "app.min.js.map"
	OriginalFile = "webpack:///src/app.js"
)

var (
	//go:embed testdata/app.min.js
	Minified []byte

	//go:embed testdata/app.min.js.map
	Map []byte

	//go:embed testdata/nulls.min.js.map
	MapWithNulls []byte
)

// MinifiedCopy returns a private copy, so tests can hand buffers to owners freely.
func MinifiedCopy() []byte { return append([]byte(nil), Minified...) }

func MapCopy() []byte { return append([]byte(nil), Map...) }

func MapWithNullsCopy() []byte { return append([]byte(nil), MapWithNulls...) }
