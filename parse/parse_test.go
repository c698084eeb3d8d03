package parse

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const plainTextMessage = "From: Alice <alice@corp.example>\r\n" +
	"To: PDF Service <pdf@example.com>, bob@example.com\r\n" +
	"Cc: carol@example.com\r\n" +
	"Subject: Quarterly report\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Hello\r\n" +
	"\r\n" +
	"World\r\n"

const multipartMessage = "From: alice@corp.example\r\n" +
	"To: pdf@example.com\r\n" +
	"Subject: =?UTF-8?Q?Gr=C3=BC=C3=9Fe?=\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/alternative; boundary=BOUNDARY\r\n" +
	"\r\n" +
	"--BOUNDARY\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"plain body\r\n" +
	"--BOUNDARY\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>html <b>body</b></p>\r\n" +
	"--BOUNDARY--\r\n"

func TestMessage_PlainText(t *testing.T) {
	msg, err := Message(7, []byte(plainTextMessage))
	require.NoError(t, err)

	assert.Equal(t, uint32(7), msg.UID)
	assert.Equal(t, "Quarterly report", msg.Subject)

	require.Len(t, msg.From, 1)
	assert.Equal(t, "Alice", msg.From[0].Name)
	assert.Equal(t, "alice@corp.example", msg.From[0].Email)

	require.Len(t, msg.To, 2)
	assert.Equal(t, "pdf@example.com", msg.To[0].Email)
	assert.Equal(t, "bob@example.com", msg.To[1].Email)

	require.Len(t, msg.Cc, 1)
	assert.Empty(t, msg.Bcc)

	assert.Contains(t, msg.Text, "Hello")
	assert.Contains(t, msg.Text, "World")
	assert.Empty(t, msg.HTML)
}

func TestMessage_MultipartAlternative(t *testing.T) {
	msg, err := Message(12, []byte(multipartMessage))
	require.NoError(t, err)

	assert.Equal(t, "Grüße", msg.Subject)
	assert.Equal(t, "plain body", strings.TrimSpace(msg.Text))
	assert.Contains(t, msg.HTML, "<b>body</b>")
}

func TestMessage_SubjectLegacyCharset(t *testing.T) {
	// windows-1252 is not a charset the stdlib decoder knows; it must go
	// through the registered encoding.
	raw := "From: alice@corp.example\r\n" +
		"To: pdf@example.com\r\n" +
		"Subject: =?windows-1252?Q?Gr=FC=DFe?=\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"body\r\n"

	msg, err := Message(9, []byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "Grüße", msg.Subject)
}

func TestMessage_Malformed(t *testing.T) {
	_, err := Message(1, []byte("not a message at all\x00\x01"))
	if err != nil {
		assert.True(t, errors.Is(err, ErrMalformed), "error should wrap ErrMalformed, got %v", err)
	}
}

func TestMessage_BodyPreference(t *testing.T) {
	msg, err := Message(3, []byte(multipartMessage))
	require.NoError(t, err)

	body, isHTML := msg.Body()
	assert.False(t, isHTML)
	assert.Equal(t, "plain body", strings.TrimSpace(body))
}

func TestMessage_RecipientsUnion(t *testing.T) {
	raw := "From: Alice <alice@corp.example>\r\n" +
		"To: pdf@example.com\r\n" +
		"Cc: ALICE@corp.example, carol@example.com\r\n" +
		"Subject: x\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"body\r\n"

	msg, err := Message(5, []byte(raw))
	require.NoError(t, err)

	got := msg.Recipients()
	assert.ElementsMatch(t, []string{"alice@corp.example", "carol@example.com"}, got)
}
