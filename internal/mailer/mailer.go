// Package mailer delivers rendered reports by email.
package mailer

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Attachment is a file sent with a message.
type Attachment struct {
	Filename string
	MIME     string
	Data     []byte
}

// Sender delivers one message. ok is true only when the message was handed
// to the mail system.
type Sender interface {
	Send(ctx context.Context, to, subject, body string, att *Attachment) (ok bool, err error)
}

// DeliveryFailure wraps every error returned by a Sender.
type DeliveryFailure struct {
	To  string
	Err error
}

func (e *DeliveryFailure) Error() string {
	return fmt.Sprintf("deliver report to %s: %v", e.To, e.Err)
}

func (e *DeliveryFailure) Unwrap() error { return e.Err }

// Noop is the sender used when no mail driver is configured.
type Noop struct{}

// Send always fails.
func (Noop) Send(_ context.Context, to, _, _ string, _ *Attachment) (bool, error) {
	return false, &DeliveryFailure{To: to, Err: fmt.Errorf("email delivery not configured")}
}

// BuildMessage renders an RFC 822 message. With an attachment the message is
// multipart/mixed and the attachment is base64 encoded.
func BuildMessage(from, to, subject, body string, att *Attachment, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	header := func(k, v string) { fmt.Fprintf(&buf, "%s: %s\r\n", k, v) }

	header("From", from)
	header("To", to)
	header("Subject", mime.QEncoding.Encode("utf-8", subject))
	header("Date", now.Format(time.RFC1123Z))
	header("Message-ID", fmt.Sprintf("<%s@scoutbot>", uuid.NewString()))
	header("MIME-Version", "1.0")

	if att == nil {
		header("Content-Type", "text/plain; charset=UTF-8")
		header("Content-Transfer-Encoding", "base64")
		buf.WriteString("\r\n")
		writeBase64(&buf, []byte(body))
		return buf.Bytes(), nil
	}

	mw := multipart.NewWriter(&buf)
	header("Content-Type", fmt.Sprintf("multipart/mixed; boundary=%q", mw.Boundary()))
	buf.WriteString("\r\n")

	text, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/plain; charset=UTF-8"},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return nil, err
	}
	writeBase64(text, []byte(body))

	ctype := att.MIME
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	file, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {ctype},
		"Content-Transfer-Encoding": {"base64"},
		"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": att.Filename})},
	})
	if err != nil {
		return nil, err
	}
	writeBase64(file, att.Data)

	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeBase64 writes data in 76-character lines.
func writeBase64(w io.Writer, data []byte) {
	enc := base64.StdEncoding.EncodeToString(data)
	var sb strings.Builder
	for len(enc) > 76 {
		sb.WriteString(enc[:76])
		sb.WriteString("\r\n")
		enc = enc[76:]
	}
	sb.WriteString(enc)
	sb.WriteString("\r\n")
	io.WriteString(w, sb.String())
}
