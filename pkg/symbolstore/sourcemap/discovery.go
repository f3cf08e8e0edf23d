package sourcemap

import (
	"bytes"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"strings"
)

var (
	directive       = []byte("//# sourceMappingURL=")
	legacyDirective = []byte("//@ sourceMappingURL=")
)

// mapReference returns the map location announced for a source, or an empty
// string. Response headers take precedence over directives in the body.
func mapReference(header http.Header, body []byte) string {
	for _, name := range []string{"SourceMap", "X-SourceMap"} {
		if v := strings.TrimSpace(header.Get(name)); v != "" {
			return v
		}
	}

	i := bytes.LastIndex(body, directive)
	if j := bytes.LastIndex(body, legacyDirective); j > i {
		i = j
	}
	if i < 0 {
		return ""
	}
	ref := body[i+len(directive):]
	if end := bytes.IndexAny(ref, "\r\n"); end >= 0 {
		ref = ref[:end]
	}
	// Some bundlers close the directive inside a block comment.
	ref = bytes.TrimSuffix(bytes.TrimSpace(ref), []byte("*/"))
	return string(bytes.TrimSpace(ref))
}

var errInvalidDataURL = errors.New("invalid data URL")

func isDataURL(ref string) bool {
	return len(ref) >= 5 && strings.EqualFold(ref[:5], "data:")
}

// decodeDataURL decodes an inline map, base64 or percent-encoded.
func decodeDataURL(ref string) ([]byte, error) {
	meta, payload, ok := strings.Cut(ref[len("data:"):], ",")
	if !ok {
		return nil, errInvalidDataURL
	}
	if strings.HasSuffix(strings.ToLower(meta), ";base64") {
		payload = strings.TrimRight(payload, "=")
		b, err := base64.RawStdEncoding.DecodeString(payload)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	s, err := url.PathUnescape(payload)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}
