package latex

import (
	"strings"
	"unicode"
)

// fallbackName is used when sanitizing leaves nothing usable.
const fallbackName = "email"

// transliterations maps common accented characters to ASCII digraphs so
// umlauts in German subjects survive instead of being dropped.
var transliterations = map[rune]string{
	'ä': "ae", 'ö': "oe", 'ü': "ue",
	'Ä': "Ae", 'Ö': "Oe", 'Ü': "Ue",
	'ß': "ss",
	'à': "a", 'á': "a", 'â': "a",
	'è': "e", 'é': "e", 'ê': "e",
	'ì': "i", 'í': "i",
	'ò': "o", 'ó': "o",
	'ù': "u", 'ú': "u",
	'ç': "c", 'ñ': "n",
}

// SanitizeFilename derives a safe ASCII base name from arbitrary subject
// text. Accented characters are transliterated, remaining non-ASCII runes
// dropped, everything outside [A-Za-z0-9_-] becomes an underscore, leading
// and trailing underscores are stripped and the result is truncated to
// maxLen. Deterministic for any input.
func SanitizeFilename(text string, maxLen int) string {
	var b strings.Builder
	for _, r := range text {
		if t, ok := transliterations[r]; ok {
			b.WriteString(t)
			continue
		}
		if r > unicode.MaxASCII {
			continue
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	name := strings.Trim(b.String(), "_")
	if maxLen > 0 && len(name) > maxLen {
		name = name[:maxLen]
		name = strings.Trim(name, "_")
	}
	if name == "" {
		return fallbackName
	}
	return name
}
