package auth

import (
	"encoding/base64"
	"strings"
	"unicode"
	"unicode/utf8"
)

const basicScheme = "basic"

// hasPrefixIgnoreCase reports whether haystack starts with needle under
// ASCII case folding. Zipping both spans would silently stop at the
// shorter one without telling which side ran out, so the loop keeps the
// two cursors explicit: needle exhausted first means match, haystack
// exhausted first means no match.
func hasPrefixIgnoreCase(haystack, needle string) bool {
	var h, n int
	for {
		if n >= len(needle) {
			return true
		}
		if h >= len(haystack) {
			return false
		}
		hc := haystack[h]
		nc := needle[n]
		if 'A' <= hc && hc <= 'Z' {
			hc += 'a' - 'A'
		}
		if 'A' <= nc && nc <= 'Z' {
			nc += 'a' - 'A'
		}
		if hc != nc {
			return false
		}
		h++
		n++
	}
}

// ParseBasicAuth extracts the identifier and secret from an Authorization
// header carrying the Basic scheme. The scheme token is matched
// case-insensitively, the payload is standard-alphabet base64 of
// "identifier:secret" in UTF-8, and the split happens at the first colon
// only, so the secret may itself contain colons. Any other scheme, bad
// base64, bad UTF-8, or a payload without a colon yields ok=false.
func ParseBasicAuth(header string) (identifier, secret string, ok bool) {
	trimmed := strings.TrimLeftFunc(header, unicode.IsSpace)
	if !hasPrefixIgnoreCase(trimmed, basicScheme) {
		return "", "", false
	}
	// The scheme token is pure ASCII, so the matched prefix is exactly
	// len(basicScheme) bytes and slicing past it is safe.
	payload := strings.TrimLeftFunc(trimmed[len(basicScheme):], unicode.IsSpace)

	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", "", false
	}
	if !utf8.Valid(decoded) {
		return "", "", false
	}

	identifier, secret, ok = strings.Cut(string(decoded), ":")
	if !ok {
		return "", "", false
	}
	return identifier, secret, true
}
