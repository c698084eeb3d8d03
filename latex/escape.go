package latex

import "strings"

// replacements maps every LaTeX special character to its safe sequence.
var replacements = map[rune]string{
	'\\': `\textbackslash{}`,
	'%':  `\%`,
	'$':  `\$`,
	'#':  `\#`,
	'_':  `\_`,
	'{':  `\{`,
	'}':  `\}`,
	'~':  `\textasciitilde{}`,
	'^':  `\^{}`,
	'&':  `\&`,
}

// Escape replaces every LaTeX special character in text with its escape
// sequence. All other characters pass through unchanged. Escape must be
// applied exactly once per unit of raw text; output is LaTeX and must never
// be escaped again.
func Escape(text string) string {
	if text == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if repl, ok := replacements[r]; ok {
			b.WriteString(repl)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
