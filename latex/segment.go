package latex

import "strings"

// lineBreak is the forced line break inside a paragraph.
const lineBreak = `\\`

// Bucket holds the first three paragraphs of a body plus the joined
// remainder. Slots are filled left to right; an absent paragraph is the
// empty string.
type Bucket struct {
	First    string
	Second   string
	Third    string
	Overflow string
}

// splitParagraphs splits free text into maximal runs of non-blank lines.
// A line is blank when stripping whitespace leaves nothing; runs of blank
// lines collapse into a single paragraph break, and leading/trailing blank
// lines are ignored. Lines within a paragraph are rejoined with "\n".
func splitParagraphs(text string) []string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")

	var paragraphs []string
	var current []string
	for _, line := range strings.Split(normalized, "\n") {
		if strings.TrimSpace(line) == "" {
			if len(current) > 0 {
				paragraphs = append(paragraphs, strings.Join(current, "\n"))
				current = nil
			}
			continue
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		paragraphs = append(paragraphs, strings.Join(current, "\n"))
	}
	return paragraphs
}

// Segment splits plain text into a paragraph bucket. The first three
// paragraphs are escaped and their internal newlines turned into forced
// line breaks; the overflow (fourth paragraph onward, blank-line joined) is
// escaped but keeps its paragraph breaks since it remains free body text.
// All-blank or empty input yields an empty bucket.
func Segment(text string) Bucket {
	paragraphs := splitParagraphs(text)

	var b Bucket
	lead := func(i int) string {
		if i >= len(paragraphs) {
			return ""
		}
		return strings.ReplaceAll(Escape(paragraphs[i]), "\n", lineBreak)
	}
	b.First = lead(0)
	b.Second = lead(1)
	b.Third = lead(2)
	if len(paragraphs) > 3 {
		b.Overflow = Escape(strings.Join(paragraphs[3:], "\n\n"))
	}
	return b
}

// SegmentLaTeX buckets text that is already LaTeX, as produced by
// ConvertHTML. Paragraphs are separated by blank lines; no escaping happens
// here. Internal newlines in the first three slots become forced line
// breaks.
func SegmentLaTeX(markup string) Bucket {
	var paragraphs []string
	for _, p := range strings.Split(markup, "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			paragraphs = append(paragraphs, p)
		}
	}

	var b Bucket
	lead := func(i int) string {
		if i >= len(paragraphs) {
			return ""
		}
		return strings.ReplaceAll(paragraphs[i], "\n", lineBreak)
	}
	b.First = lead(0)
	b.Second = lead(1)
	b.Third = lead(2)
	if len(paragraphs) > 3 {
		b.Overflow = strings.Join(paragraphs[3:], "\n\n")
	}
	return b
}
