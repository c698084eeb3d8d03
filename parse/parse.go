// Package parse decodes raw RFC 822 message bytes into the intermediate
// record handed to the transformation pipeline.
package parse

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message/charset"
	gomail "github.com/emersion/go-message/mail"
	"golang.org/x/text/encoding/charmap"

	"github.com/emysliwietz/latex-email-daemon/model"
)

func init() {
	// Charsets commonly seen in mail bodies that go-message does not
	// register on its own.
	charset.RegisterEncoding("windows-1252", charmap.Windows1252)
	charset.RegisterEncoding("iso-8859-1", charmap.ISO8859_1)
	charset.RegisterEncoding("iso-8859-15", charmap.ISO8859_15)
}

// ErrMalformed marks a message whose structure could not be decoded at
// all. The watcher treats such messages as poison: skipped, watermark
// advanced.
var ErrMalformed = errors.New("malformed message")

// Message decodes raw message bytes into a model.Message. Individual body
// parts that fail to decode are dropped rather than failing the whole
// message; only an unreadable structure returns ErrMalformed.
func Message(uid uint32, raw []byte) (*model.Message, error) {
	mr, err := gomail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	defer mr.Close()

	// Header.Subject decodes RFC 2047 words through the charset
	// registry; fall back to the raw header when decoding fails.
	subject, err := mr.Header.Subject()
	if err != nil {
		subject = mr.Header.Get("Subject")
	}

	msg := &model.Message{
		UID:     uid,
		Subject: subject,
		From:    addressList(mr.Header, "From"),
		To:      addressList(mr.Header, "To"),
		Cc:      addressList(mr.Header, "Cc"),
		Bcc:     addressList(mr.Header, "Bcc"),
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A broken part does not poison the rest of the message.
			break
		}

		inline, ok := part.Header.(*gomail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := inline.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}

		switch {
		case strings.HasPrefix(contentType, "text/plain"):
			if msg.Text == "" {
				msg.Text = string(body)
			}
		case strings.HasPrefix(contentType, "text/html"):
			if msg.HTML == "" {
				msg.HTML = string(body)
			}
		}
	}

	return msg, nil
}

func addressList(header gomail.Header, key string) []model.Address {
	addrs, err := header.AddressList(key)
	if err != nil || len(addrs) == 0 {
		return nil
	}
	out := make([]model.Address, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, model.Address{Name: a.Name, Email: a.Address})
	}
	return out
}
