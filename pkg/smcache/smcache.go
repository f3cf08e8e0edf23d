// Package smcache wraps a parsed source map together with the bytes it was
// parsed from, and answers generated-position lookups against it.
package smcache

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/go-sourcemap/sourcemap"

	"github.com/posthog/cymbal/pkg/symboldata"
)

// ContextLines is the number of source lines returned before and after the
// resolved line.
const ContextLines = 5

// Position is a 0-based line and column in the generated (minified) source.
type Position struct {
	Line   uint32
	Column uint32
}

// Token is the result of a successful lookup. Line and Column are 0-based
// positions in the original source.
type Token struct {
	File    string
	Line    uint32
	Column  uint32
	Name    string
	Context *Context
}

// Context is a window of source lines around a position.
type Context struct {
	Before []string
	Line   string
	After  []string
}

// Cache owns a source, its source map and the consumer parsed from the map.
// It is immutable after construction and safe for concurrent lookups.
type Cache struct {
	data     symboldata.SourceAndMap
	consumer *sourcemap.Consumer

	// lineStarts holds the byte offset of every generated line.
	lineStarts []int
	// firstColumns holds the column of the first segment of every generated
	// line. Nil for maps that are not bounded per line.
	firstColumns []int32

	contentsMu sync.Mutex
	contents   map[string][]string
}

// FromSourceAndMap parses data and takes ownership of its byte slices: the
// caller must not modify them afterwards. An empty map yields a source-only
// Cache on which every lookup misses.
func FromSourceAndMap(data symboldata.SourceAndMap) (*Cache, error) {
	c := &Cache{
		data:       data,
		lineStarts: lineStarts(data.Source),
		contents:   make(map[string][]string),
	}
	if len(data.Map) == 0 {
		return c, nil
	}
	consumer, err := sourcemap.Parse("", data.Map)
	if err != nil {
		return nil, fmt.Errorf("parse source map: %w", err)
	}
	if c.firstColumns, err = firstColumns(data.Map); err != nil {
		return nil, fmt.Errorf("parse source map mappings: %w", err)
	}
	c.consumer = consumer
	return c, nil
}

func lineStarts(src []byte) []int {
	starts := make([]int, 1, bytes.Count(src, []byte{'\n'})+1)
	for i, b := range src {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// HasMap reports whether a source map was available.
func (c *Cache) HasMap() bool {
	return c.consumer != nil
}

// Size approximates the memory held by the cache. The parsed mappings are
// accounted as large as the raw map text.
func (c *Cache) Size() int {
	return len(c.data.Source) + 2*len(c.data.Map) + 8*len(c.lineStarts) + 4*len(c.firstColumns)
}

// Lookup resolves a generated position. The second return value is false
// when the position is not covered by the source map.
func (c *Cache) Lookup(pos Position) (Token, bool) {
	if c.consumer == nil {
		return Token{}, false
	}
	line, ok := c.generatedLine(pos.Line)
	if !ok || int(pos.Column) > len(line) {
		return Token{}, false
	}
	// The consumer falls back to the last segment of an earlier line when
	// the position precedes every segment of its own line.
	if !c.mappedOnLine(pos) {
		return Token{}, false
	}
	file, name, srcLine, srcColumn, ok := c.consumer.Source(int(pos.Line)+1, int(pos.Column))
	if !ok || srcLine < 1 || srcColumn < 0 {
		return Token{}, false
	}
	tok := Token{
		File:   file,
		Line:   uint32(srcLine - 1),
		Column: uint32(srcColumn),
		Name:   name,
	}
	if lines := c.sourceLines(file); lines != nil {
		tok.Context = window(lines, int(tok.Line))
	}
	return tok, true
}

func (c *Cache) mappedOnLine(pos Position) bool {
	if c.firstColumns == nil {
		return true
	}
	if int(pos.Line) >= len(c.firstColumns) {
		return false
	}
	first := c.firstColumns[pos.Line]
	return first != noSegment && int64(pos.Column) >= int64(first)
}

// GeneratedContext returns the generated source around pos, or nil when pos is
// outside the source.
func (c *Cache) GeneratedContext(pos Position) *Context {
	if _, ok := c.generatedLine(pos.Line); !ok {
		return nil
	}
	first := max(0, int(pos.Line)-ContextLines)
	last := min(len(c.lineStarts)-1, int(pos.Line)+ContextLines)
	lines := make([]string, 0, last-first+1)
	for i := first; i <= last; i++ {
		l, _ := c.generatedLine(uint32(i))
		lines = append(lines, string(l))
	}
	return window(lines, int(pos.Line)-first)
}

func (c *Cache) generatedLine(n uint32) ([]byte, bool) {
	if int(n) >= len(c.lineStarts) {
		return nil, false
	}
	start := c.lineStarts[n]
	end := len(c.data.Source)
	if int(n)+1 < len(c.lineStarts) {
		end = c.lineStarts[n+1] - 1
	}
	return bytes.TrimSuffix(c.data.Source[start:end], []byte{'\r'}), true
}

func (c *Cache) sourceLines(file string) []string {
	c.contentsMu.Lock()
	defer c.contentsMu.Unlock()
	if lines, ok := c.contents[file]; ok {
		return lines
	}
	var lines []string
	if content := c.consumer.SourceContent(file); content != "" {
		lines = strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	}
	c.contents[file] = lines
	return lines
}

func window(lines []string, n int) *Context {
	if n < 0 || n >= len(lines) {
		return nil
	}
	return &Context{
		Before: lines[max(0, n-ContextLines):n],
		Line:   lines[n],
		After:  lines[n+1 : min(len(lines), n+1+ContextLines)],
	}
}
