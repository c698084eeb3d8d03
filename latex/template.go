package latex

import (
	"fmt"
	"strings"
)

// Placeholders every document template must contain.
var requiredPlaceholders = []string{
	"{{SUBJECT}}",
	"{{FIRST_PARAGRAPH}}",
	"{{SECOND_PARAGRAPH}}",
	"{{THIRD_PARAGRAPH}}",
	"{{BODY}}",
}

// TemplateError reports a template that is missing required placeholders.
type TemplateError struct {
	Missing []string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template missing placeholders: %s", strings.Join(e.Missing, ", "))
}

// RenderRequest carries the computed fields substituted into the template.
type RenderRequest struct {
	Subject    string
	Paragraphs Bucket
}

// ValidateTemplate checks that all required placeholders are present.
// A missing placeholder is a configuration error and should halt startup.
func ValidateTemplate(template string) error {
	var missing []string
	for _, p := range requiredPlaceholders {
		if !strings.Contains(template, p) {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return &TemplateError{Missing: missing}
	}
	return nil
}

// Assemble fills the template with the request's fields. Substitution is
// literal and single-pass: substituted values are never re-scanned for
// further placeholders. The subject is escaped here; the paragraph slots
// arrive already escaped from segmentation.
func Assemble(template string, req RenderRequest) (string, error) {
	if err := ValidateTemplate(template); err != nil {
		return "", err
	}

	r := strings.NewReplacer(
		"{{SUBJECT}}", Escape(req.Subject),
		"{{FIRST_PARAGRAPH}}", req.Paragraphs.First,
		"{{SECOND_PARAGRAPH}}", req.Paragraphs.Second,
		"{{THIRD_PARAGRAPH}}", req.Paragraphs.Third,
		"{{BODY}}", req.Paragraphs.Overflow,
	)
	return r.Replace(template), nil
}
