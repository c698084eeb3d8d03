// Package filter decides whether an incoming message qualifies for
// processing.
package filter

import (
	"fmt"
	"strings"

	"github.com/emysliwietz/latex-email-daemon/model"
)

// Options captures the filtering configuration.
type Options struct {
	// TargetAddress must appear among the message's To addresses.
	TargetAddress string
	// AllowedSenderDomains, when non-empty, requires at least one From
	// address from one of these domains.
	AllowedSenderDomains []string
}

// Filter holds the normalized qualification predicate.
type Filter struct {
	target  string
	domains []string
}

// New creates a Filter from the provided options.
func New(opts Options) (*Filter, error) {
	target := strings.ToLower(strings.TrimSpace(opts.TargetAddress))
	if target == "" {
		return nil, fmt.Errorf("target address is empty")
	}

	domains := make([]string, 0, len(opts.AllowedSenderDomains))
	for _, d := range opts.AllowedSenderDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		d = strings.TrimPrefix(d, "@")
		if d == "" {
			continue
		}
		domains = append(domains, d)
	}

	return &Filter{target: target, domains: domains}, nil
}

// Allows reports whether the message qualifies: the target address is among
// its To addresses and, if a sender-domain allow-list is configured, at
// least one From address matches it.
func (f *Filter) Allows(msg *model.Message) bool {
	if !f.addressedToTarget(msg) {
		return false
	}
	return f.senderAllowed(msg)
}

func (f *Filter) addressedToTarget(msg *model.Message) bool {
	for _, to := range msg.To {
		if strings.ToLower(strings.TrimSpace(to.Email)) == f.target {
			return true
		}
	}
	return false
}

func (f *Filter) senderAllowed(msg *model.Message) bool {
	if len(f.domains) == 0 {
		return true
	}
	for _, from := range msg.From {
		email := strings.ToLower(strings.TrimSpace(from.Email))
		for _, domain := range f.domains {
			if strings.HasSuffix(email, "@"+domain) {
				return true
			}
		}
	}
	return false
}
