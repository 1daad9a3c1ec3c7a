// Package disposition extracts the suggested file name from a
// Content-Disposition header value (RFC 6266, RFC 5987 extended notation).
//
// The extended form filename*=charset''value always takes precedence over
// the plain filename= form. Decoding problems never fail the parse: a
// malformed extended value falls through to the plain form, and a plain
// value that does not percent-decode is used as-is.
package disposition

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/ianaindex"
)

var (
	// filename*=UTF-8''%E6%B5%8B.csv, language tag between the quotes is allowed.
	extendedRe   = regexp.MustCompile(`(?i)(?:^|;)\s*filename\*\s*=\s*([^';\s]*)'[^']*'([^;]*)`)
	// filename="a.csv" | filename='a.csv' | filename=a.csv
	plainRe      = regexp.MustCompile(`(?i)(?:^|;)\s*filename\s*=\s*(?:"((?:[^"\\]|\\.)*)"|'([^']*)'|([^;]*))`)
	quotedPairRe = regexp.MustCompile(`\\(.)`)
)

// ParseFilename returns the file name carried by a Content-Disposition
// header value. The boolean is false when the header is empty or carries
// no usable name; callers then substitute their own default.
func ParseFilename(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}

	if m := extendedRe.FindStringSubmatch(header); m != nil {
		if name, ok := decodeExtended(m[1], strings.TrimSpace(m[2])); ok && name != "" {
			return name, true
		}
	}

	if m := plainRe.FindStringSubmatch(header); m != nil {
		var raw string
		switch {
		case m[1] != "":
			raw = quotedPairRe.ReplaceAllString(m[1], "$1")
		case m[2] != "":
			raw = m[2]
		default:
			raw = strings.Trim(m[3], `"' `)
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return "", false
		}
		if decoded, err := url.PathUnescape(raw); err == nil && utf8.ValidString(decoded) {
			return decoded, true
		}
		return raw, true
	}

	return "", false
}

// decodeExtended percent-decodes value and interprets the bytes in charset.
func decodeExtended(charset, value string) (string, bool) {
	value = strings.Trim(value, `"`)
	if value == "" {
		return "", false
	}
	raw, err := url.PathUnescape(value)
	if err != nil {
		return "", false
	}

	switch strings.ToLower(charset) {
	case "", "utf-8", "utf8":
		if !utf8.ValidString(raw) {
			return "", false
		}
		return raw, true
	}

	enc, err := ianaindex.IANA.Encoding(charset)
	if err != nil || enc == nil {
		return "", false
	}
	decoded, err := enc.NewDecoder().String(raw)
	if err != nil {
		return "", false
	}
	return decoded, true
}
