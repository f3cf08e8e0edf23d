package frames

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/posthog/cymbal/pkg/smcache"
)

func TestRawFrameJSON(t *testing.T) {
	content := `{"colno":15,"filename":"irrelevant_for_test","function":"?","in_app":true,"lineno":476,"platform":"web:javascript"}`
	var f RawFrame
	require.NoError(t, json.Unmarshal([]byte(content), &f))
	require.Equal(t, RawFrame{
		Platform:  PlatformJavaScriptWeb,
		SourceURL: "irrelevant_for_test",
		Line:      476,
		Column:    15,
		Function:  "?",
		InApp:     true,
	}, f)
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"plain", "plain"},
		{"a\x00b\x00", "ab"},
		{"\x00\x00", ""},
		{"bad\xffutf8", "bad�utf8"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, Sanitize(tt.in))
	}
}

func TestFromToken(t *testing.T) {
	raw := &RawFrame{Platform: PlatformJavaScriptWeb, SourceURL: "https://x/app.js", Line: 1, Column: 30, Function: "n", InApp: true}
	f := FromToken(raw, smcache.Token{
		File:   "src/\x00app.js",
		Line:   1,
		Column: 9,
		Name:   "getValue",
		Context: &smcache.Context{
			Before: []string{"function getValue(obj) {\x00"},
			Line:   "  return obj.a.b;\x00",
			After:  []string{"}"},
		},
	})

	require.True(t, f.Resolved)
	require.Equal(t, "src/app.js", f.Source)
	require.Equal(t, uint32(2), f.Line)
	require.Equal(t, uint32(9), f.Column)
	require.Equal(t, "getValue", f.ResolvedName)
	require.Equal(t, "n", f.MangledName)
	require.True(t, f.InApp)
	require.Equal(t, "  return obj.a.b;", f.Context.Line)
	require.Equal(t, []string{"function getValue(obj) {"}, f.Context.Before)
}

func TestFromTokenNameFallback(t *testing.T) {
	raw := &RawFrame{Function: "minifiedName"}
	f := FromToken(raw, smcache.Token{File: "a.js"})
	require.Equal(t, "minifiedName", f.ResolvedName)
	require.Nil(t, f.Context)
}

func TestDegraded(t *testing.T) {
	raw := &RawFrame{SourceURL: "https://x/app.js", Line: 10, Column: 4, Function: "f"}
	f := Degraded(raw, "no mapping", &smcache.Context{Line: "x\x00y"})
	require.False(t, f.Resolved)
	require.Equal(t, "no mapping", f.ResolveFailure)
	require.Equal(t, "https://x/app.js", f.Source)
	require.Equal(t, uint32(10), f.Line)
	require.Equal(t, uint32(4), f.Column)
	require.Equal(t, "f", f.ResolvedName)
	require.Equal(t, "xy", f.Context.Line)

	require.Nil(t, Degraded(raw, "no mapping", nil).Context)
}

func TestUnresolvedSanitizesReason(t *testing.T) {
	raw := &RawFrame{SourceURL: "https://x/a\x00.js", Line: 1, Function: "f\x00"}
	f := Unresolved(raw, "forbidden destination https://x/a\x00.js \xff")
	require.Equal(t, "forbidden destination https://x/a.js \uFFFD", f.ResolveFailure)
	require.Equal(t, "https://x/a.js", f.Source)
	require.Equal(t, "f", f.MangledName)
}
