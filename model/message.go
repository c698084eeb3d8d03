package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Address is a single mailbox address with an optional display name. It is
// encoded on the wire as a two-element array ["display name", "addr@host"],
// the format the spooled record files use.
type Address struct {
	Name  string
	Email string
}

func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{a.Name, a.Email})
}

func (a *Address) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("address must be a [name, email] pair: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("address must have exactly 2 elements, got %d", len(pair))
	}
	a.Name = pair[0]
	a.Email = pair[1]
	return nil
}

// Message is the intermediate record handed from the inbox watcher to the
// transformation pipeline. It is immutable once decoded.
type Message struct {
	UID     uint32    `json:"uid"`
	Subject string    `json:"subject"`
	From    []Address `json:"from"`
	To      []Address `json:"to"`
	Cc      []Address `json:"cc"`
	Bcc     []Address `json:"bcc"`
	Text    string    `json:"text"`
	HTML    string    `json:"html"`
}

// Recipients returns the union of from, cc and bcc addresses, lowercased and
// deduplicated. This is the set the rendered document is sent back to.
func (m *Message) Recipients() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range [][]Address{m.From, m.Cc, m.Bcc} {
		for _, addr := range list {
			email := strings.ToLower(strings.TrimSpace(addr.Email))
			if email == "" {
				continue
			}
			if _, ok := seen[email]; ok {
				continue
			}
			seen[email] = struct{}{}
			out = append(out, email)
		}
	}
	return out
}

// Body returns the preferred body content: plain text if present, otherwise
// the HTML body.
func (m *Message) Body() (body string, isHTML bool) {
	if strings.TrimSpace(m.Text) != "" {
		return m.Text, false
	}
	if strings.TrimSpace(m.HTML) != "" {
		return m.HTML, true
	}
	return "", false
}
