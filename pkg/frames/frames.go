package frames

import (
	"strings"

	"github.com/posthog/cymbal/pkg/smcache"
)

// Platform identifies the runtime that produced a frame.
type Platform string

const (
	PlatformJavaScriptWeb Platform = "web:javascript"
)

const langJavaScript = "javascript"

// RawFrame is a stack frame as reported by a client. Line is 1-based.
type RawFrame struct {
	Platform  Platform `json:"platform"`
	SourceURL string   `json:"filename,omitempty"`
	Line      uint32   `json:"lineno"`
	Column    uint32   `json:"colno"`
	Function  string   `json:"function,omitempty"`
	InApp     bool     `json:"in_app"`
}

// Frame is the resolved form of a RawFrame. Line is 1-based.
type Frame struct {
	MangledName    string   `json:"mangled_name"`
	ResolvedName   string   `json:"resolved_name,omitempty"`
	Source         string   `json:"source,omitempty"`
	Line           uint32   `json:"line"`
	Column         uint32   `json:"column"`
	InApp          bool     `json:"in_app"`
	Lang           string   `json:"lang"`
	Resolved       bool     `json:"resolved"`
	ResolveFailure string   `json:"resolve_failure,omitempty"`
	Context        *Context `json:"context,omitempty"`
}

type Context struct {
	Before []string `json:"before,omitempty"`
	Line   string   `json:"line"`
	After  []string `json:"after,omitempty"`
}

// FromToken builds a resolved frame from a source map lookup result.
func FromToken(raw *RawFrame, tok smcache.Token) *Frame {
	name := Sanitize(tok.Name)
	if name == "" {
		name = Sanitize(raw.Function)
	}
	return &Frame{
		MangledName:  Sanitize(raw.Function),
		ResolvedName: name,
		Source:       Sanitize(tok.File),
		Line:         tok.Line + 1,
		Column:       tok.Column,
		InApp:        raw.InApp,
		Lang:         langJavaScript,
		Resolved:     true,
		Context:      sanitizeContext(tok.Context),
	}
}

// Degraded builds a frame from the raw frame's own data when the artifacts
// were fetched but the position could not be resolved. generated may be nil.
func Degraded(raw *RawFrame, reason string, generated *smcache.Context) *Frame {
	f := Unresolved(raw, reason)
	f.Context = sanitizeContext(generated)
	return f
}

// Unresolved builds a frame that keeps the raw frame's fields unchanged.
func Unresolved(raw *RawFrame, reason string) *Frame {
	return &Frame{
		MangledName:    Sanitize(raw.Function),
		ResolvedName:   Sanitize(raw.Function),
		Source:         Sanitize(raw.SourceURL),
		Line:           raw.Line,
		Column:         raw.Column,
		InApp:          raw.InApp,
		Lang:           langJavaScript,
		Resolved:       false,
		ResolveFailure: Sanitize(reason),
	}
}

// Sanitize removes NUL bytes and replaces invalid UTF-8 sequences.
func Sanitize(s string) string {
	if strings.IndexByte(s, 0) >= 0 {
		s = strings.ReplaceAll(s, "\x00", "")
	}
	return strings.ToValidUTF8(s, "�")
}

func sanitizeContext(c *smcache.Context) *Context {
	if c == nil {
		return nil
	}
	return &Context{
		Before: sanitizeAll(c.Before),
		Line:   Sanitize(c.Line),
		After:  sanitizeAll(c.After),
	}
}

func sanitizeAll(lines []string) []string {
	if len(lines) == 0 {
		return nil
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = Sanitize(l)
	}
	return out
}
