package disposition

import (
	"path"
	"strings"
	"unicode"
)

// DefaultName is used when neither the header nor the caller yields a usable name.
const DefaultName = "download"

const maxNameBytes = 255

// Resolve picks the name to save a payload under: the header's name when
// it survives Sanitize, else the sanitized fallback, else DefaultName.
func Resolve(header, fallback string) string {
	if name, ok := ParseFilename(header); ok {
		if clean := Sanitize(name); clean != "" {
			return clean
		}
	}
	if clean := Sanitize(fallback); clean != "" {
		return clean
	}
	return DefaultName
}

// Sanitize reduces name to a single safe path element. Directory parts,
// control characters and characters reserved on common filesystems are
// removed. It returns "" when nothing usable is left.
func Sanitize(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = path.Base(strings.TrimSpace(name))

	var sb strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsControl(r):
		case strings.ContainsRune(`<>:"|?*`, r):
			sb.WriteRune('_')
		default:
			sb.WriteRune(r)
		}
	}

	clean := strings.Trim(sb.String(), " .")
	if clean == "" || clean == "/" {
		return ""
	}
	return truncate(clean, maxNameBytes)
}

// truncate shortens s to at most n bytes on a rune boundary, keeping the extension.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	ext := path.Ext(s)
	if len(ext) >= n {
		ext = ""
	}
	base := s[:len(s)-len(ext)]
	limit := n - len(ext)
	for limit > 0 && !isRuneStart(base, limit) {
		limit--
	}
	return base[:limit] + ext
}

func isRuneStart(s string, i int) bool {
	return i >= len(s) || s[i]&0xC0 != 0x80
}
