package config

import (
	"testing"
	"time"
)

func validTestConfig() Config {
	return Config{
		IMAPHost:           "imap.example.com",
		IMAPPort:           993,
		EmailAccount:       "daemon@example.com",
		EmailPassword:      "secret",
		TargetAddress:      "pdf@example.com",
		SMTPHost:           "smtp.example.com",
		SMTPPort:           587,
		SMTPSenderEmail:    "daemon@example.com",
		SMTPSenderPassword: "secret",
		IdleTimeout:        5 * time.Minute,
		LogLevel:           "info",
	}
}

func TestValidateConfig(t *testing.T) {
	if err := validateConfig(validTestConfig()); err != nil {
		t.Fatalf("validateConfig() error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing imap host", func(c *Config) { c.IMAPHost = "" }},
		{"missing account", func(c *Config) { c.EmailAccount = "" }},
		{"missing password", func(c *Config) { c.EmailPassword = "" }},
		{"missing target", func(c *Config) { c.TargetAddress = "" }},
		{"missing smtp host", func(c *Config) { c.SMTPHost = "" }},
		{"smtp port out of range", func(c *Config) { c.SMTPPort = 70000 }},
		{"missing sender", func(c *Config) { c.SMTPSenderEmail = "" }},
		{"missing sender password", func(c *Config) { c.SMTPSenderPassword = "" }},
		{"zero idle timeout", func(c *Config) { c.IdleTimeout = 0 }},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(&cfg)
			if err := validateConfig(cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestSplitServer(t *testing.T) {
	tests := []struct {
		in       string
		wantHost string
		wantPort int
	}{
		{"imap.example.com", "imap.example.com", 993},
		{"imap.example.com:143", "imap.example.com", 143},
		{" imap.example.com ", "imap.example.com", 993},
		{"", "", 993},
	}
	for _, tt := range tests {
		host, port, err := splitServer(tt.in, 993)
		if err != nil {
			t.Errorf("splitServer(%q) error = %v", tt.in, err)
			continue
		}
		if host != tt.wantHost || port != tt.wantPort {
			t.Errorf("splitServer(%q) = (%q, %d), want (%q, %d)", tt.in, host, port, tt.wantHost, tt.wantPort)
		}
	}

	if _, _, err := splitServer("imap.example.com:abc", 993); err == nil {
		t.Error("expected error for non-numeric port")
	}
}

func TestSplitList(t *testing.T) {
	got := splitList("example.com, corp.example , ,other.org")
	want := []string{"example.com", "corp.example", "other.org"}
	if len(got) != len(want) {
		t.Fatalf("splitList() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("splitList()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if got := splitList(""); got != nil {
		t.Errorf("splitList(\"\") = %v, want nil", got)
	}
}
