package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	lowerUnd   = cases.Lower(language.Und)
	titleUnd   = cases.Title(language.Und)
)

// Slug folds diacritics, lowercases, and joins alphanumeric runs with
// single dashes. Returns "scene" for input with no usable characters.
func Slug(value string) string {
	folded, _, err := transform.String(stripMarks, value)
	if err != nil {
		folded = value
	}
	folded = lowerUnd.String(folded)

	var b strings.Builder
	dash := false
	for _, r := range folded {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	out := b.String()
	if len(out) > 64 {
		out = strings.TrimRight(out[:64], "-")
	}
	if out == "" {
		return "scene"
	}
	return out
}

// DisplayName title-cases a mood or label for notifications and tables.
func DisplayName(value string) string {
	return titleUnd.String(strings.TrimSpace(value))
}
