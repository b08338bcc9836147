package items

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// NewSlug derives a URL-safe slug from title with a random 8 character
// suffix, e.g. "Red Lamp!" -> "red-lamp-1f3a9c02".
func NewSlug(title string) string {
	base := slugify(title)
	if base == "" {
		base = "item"
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return base + "-" + suffix
}

func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if len(out) > 80 {
		out = strings.TrimRight(truncateRunes(out, 80), "-")
	}
	return out
}

func truncateRunes(s string, max int) string {
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
