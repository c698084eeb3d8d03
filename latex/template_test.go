package latex

import (
	"errors"
	"strings"
	"testing"
)

const testTemplate = `\documentclass{article}
\begin{document}
\title{{{SUBJECT}}}
{{FIRST_PARAGRAPH}}

{{SECOND_PARAGRAPH}}

{{THIRD_PARAGRAPH}}

{{BODY}}
\end{document}
`

func TestAssemble(t *testing.T) {
	req := RenderRequest{
		Subject: "Offer: 50% off",
		Paragraphs: Bucket{
			First:    "hello",
			Second:   "world",
			Third:    "again",
			Overflow: "rest\n\nmore",
		},
	}

	got, err := Assemble(testTemplate, req)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	if !strings.Contains(got, `Offer: 50\% off`) {
		t.Errorf("subject not escaped in output:\n%s", got)
	}
	for _, want := range []string{"hello", "world", "again", "rest\n\nmore"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q", want)
		}
	}
	if strings.Contains(got, "{{") {
		t.Errorf("unsubstituted placeholder left in output:\n%s", got)
	}
}

func TestAssemble_MissingPlaceholder(t *testing.T) {
	template := strings.ReplaceAll(testTemplate, "{{BODY}}", "")

	_, err := Assemble(template, RenderRequest{})
	var terr *TemplateError
	if !errors.As(err, &terr) {
		t.Fatalf("Assemble() error = %v, want TemplateError", err)
	}
	if len(terr.Missing) != 1 || terr.Missing[0] != "{{BODY}}" {
		t.Errorf("Missing = %v, want [{{BODY}}]", terr.Missing)
	}
}

func TestAssemble_SinglePass(t *testing.T) {
	req := RenderRequest{
		Subject:    "s",
		Paragraphs: Bucket{First: "{{SECOND_PARAGRAPH}}", Second: "safe"},
	}

	got, err := Assemble(testTemplate, req)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	// A substituted value containing a placeholder token must survive
	// literally, never expanded again.
	if !strings.Contains(got, "{{SECOND_PARAGRAPH}}") {
		t.Errorf("substituted value was re-scanned for placeholders:\n%s", got)
	}
}

func TestValidateTemplate_AllMissing(t *testing.T) {
	err := ValidateTemplate("no placeholders here")
	var terr *TemplateError
	if !errors.As(err, &terr) {
		t.Fatalf("ValidateTemplate() error = %v, want TemplateError", err)
	}
	if len(terr.Missing) != 5 {
		t.Errorf("Missing = %v, want all 5 placeholders", terr.Missing)
	}
}
