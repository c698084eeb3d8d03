package filter

import (
	"testing"

	"github.com/emysliwietz/latex-email-daemon/model"
)

func TestFilter_TargetAddress(t *testing.T) {
	f, err := New(Options{TargetAddress: "pdf@example.com"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	matching := &model.Message{
		To: []model.Address{{Name: "PDF Service", Email: "pdf@example.com"}},
	}
	if !f.Allows(matching) {
		t.Error("expected message addressed to target to be allowed")
	}

	other := &model.Message{
		To: []model.Address{{Email: "someone-else@example.com"}},
	}
	if f.Allows(other) {
		t.Error("expected message addressed elsewhere to be rejected")
	}
}

func TestFilter_TargetCaseInsensitive(t *testing.T) {
	f, err := New(Options{TargetAddress: "PDF@Example.COM"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	msg := &model.Message{
		To: []model.Address{{Email: "pdf@example.com"}},
	}
	if !f.Allows(msg) {
		t.Error("expected case-insensitive address match")
	}
}

func TestFilter_TargetAmongMany(t *testing.T) {
	f, err := New(Options{TargetAddress: "pdf@example.com"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	msg := &model.Message{
		To: []model.Address{
			{Email: "first@example.com"},
			{Email: "pdf@example.com"},
			{Email: "third@example.com"},
		},
	}
	if !f.Allows(msg) {
		t.Error("expected target among several To addresses to be allowed")
	}
}

func TestFilter_SenderDomainAllowList(t *testing.T) {
	f, err := New(Options{
		TargetAddress:        "pdf@example.com",
		AllowedSenderDomains: []string{"corp.example", "@other.example"},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	allowed := &model.Message{
		To:   []model.Address{{Email: "pdf@example.com"}},
		From: []model.Address{{Email: "alice@corp.example"}},
	}
	if !f.Allows(allowed) {
		t.Error("expected sender from allowed domain to pass")
	}

	leadingAt := &model.Message{
		To:   []model.Address{{Email: "pdf@example.com"}},
		From: []model.Address{{Email: "bob@other.example"}},
	}
	if !f.Allows(leadingAt) {
		t.Error("expected domain configured with leading @ to pass")
	}

	denied := &model.Message{
		To:   []model.Address{{Email: "pdf@example.com"}},
		From: []model.Address{{Email: "mallory@evil.example"}},
	}
	if f.Allows(denied) {
		t.Error("expected sender from other domain to be rejected")
	}
}

func TestFilter_NoDomainList(t *testing.T) {
	f, err := New(Options{TargetAddress: "pdf@example.com"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	msg := &model.Message{
		To:   []model.Address{{Email: "pdf@example.com"}},
		From: []model.Address{{Email: "anyone@anywhere.example"}},
	}
	if !f.Allows(msg) {
		t.Error("expected any sender without a domain allow-list")
	}
}

func TestFilter_EmptyTarget(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("expected error for empty target address")
	}
}
