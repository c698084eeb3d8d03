package mailer

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	gomail "github.com/emersion/go-message/mail"
)

func TestNewSMTP_Validation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{name: "missing host", opts: Options{Port: 587, From: "a@b.c"}},
		{name: "bad port", opts: Options{Host: "smtp.example.com", Port: 0, From: "a@b.c"}},
		{name: "missing sender", opts: Options{Host: "smtp.example.com", Port: 587}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSMTP(tt.opts); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestAuthError(t *testing.T) {
	inner := errors.New("535 bad credentials")
	err := &AuthError{Username: "daemon@example.com", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("AuthError should unwrap to the transport error")
	}
	if !strings.Contains(err.Error(), "daemon@example.com") {
		t.Errorf("Error() = %q, want username included", err.Error())
	}

	var authErr *AuthError
	wrapped := errors.Join(errors.New("send failed"), err)
	if !errors.As(wrapped, &authErr) {
		t.Error("AuthError should be matchable through wrapping")
	}
}

func TestCompose(t *testing.T) {
	raw, err := compose(
		"daemon@example.com",
		[]string{"alice@corp.example", "carol@example.com"},
		"PDF: Quarterly report",
		"Attached is the requested PDF.",
		Attachment{Filename: "Quarterly_report.pdf", Data: []byte("%PDF-1.5 fake")},
	)
	if err != nil {
		t.Fatalf("compose() error = %v", err)
	}

	mr, err := gomail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("composed message unreadable: %v", err)
	}
	defer mr.Close()

	if subject, err := mr.Header.Subject(); err != nil || subject != "PDF: Quarterly report" {
		t.Errorf("subject = %q, err = %v", subject, err)
	}
	to, err := mr.Header.AddressList("To")
	if err != nil || len(to) != 2 {
		t.Errorf("to = %v, err = %v", to, err)
	}

	var sawText, sawAttachment bool
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("NextPart() error = %v", err)
		}
		switch h := part.Header.(type) {
		case *gomail.InlineHeader:
			body, _ := io.ReadAll(part.Body)
			if strings.Contains(string(body), "requested PDF") {
				sawText = true
			}
		case *gomail.AttachmentHeader:
			filename, _ := h.Filename()
			if filename != "Quarterly_report.pdf" {
				t.Errorf("attachment filename = %q", filename)
			}
			data, _ := io.ReadAll(part.Body)
			if !bytes.Equal(data, []byte("%PDF-1.5 fake")) {
				t.Error("attachment data mangled")
			}
			sawAttachment = true
		}
	}

	if !sawText {
		t.Error("composed message missing text part")
	}
	if !sawAttachment {
		t.Error("composed message missing attachment")
	}
}

func TestCompose_NoAttachment(t *testing.T) {
	raw, err := compose("daemon@example.com", []string{"a@b.c"}, "s", "body", Attachment{})
	if err != nil {
		t.Fatalf("compose() error = %v", err)
	}
	if !bytes.Contains(raw, []byte("body")) {
		t.Error("composed message missing body")
	}
}
