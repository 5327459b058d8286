package services

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"log"
	"mime/multipart"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strings"
	texttemplate "text/template"
	"time"
)

// DigestTrack is one row of the weekly digest email
type DigestTrack struct {
	Name         string
	Artist       string
	Album        string
	Image        string
	PlaylistName string
	RemovedAt    time.Time
	Suggested    bool
}

// DigestEmail is a fully assembled weekly digest ready to send
type DigestEmail struct {
	To             string
	Tracks         []DigestTrack
	UnsubscribeURL string
}

// EmailSender delivers digest emails
type EmailSender interface {
	SendDigest(ctx context.Context, email DigestEmail) error
}

// SMTPEmailSender implements EmailSender over an SMTP relay
type SMTPEmailSender struct {
	host     string
	port     int
	username string
	password string
	from     string
	timeout  time.Duration
	tmpl     *template.Template
	textTmpl *texttemplate.Template
}

// NewSMTPEmailSender creates an email sender for the given relay
func NewSMTPEmailSender(host string, port int, username, password, from string, timeout time.Duration) (*SMTPEmailSender, error) {
	tmpl, err := template.New("digest").Parse(digestTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse digest template: %w", err)
	}
	textTmpl, err := texttemplate.New("digest_text").Parse(digestTextTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse digest text template: %w", err)
	}
	return &SMTPEmailSender{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		timeout:  timeout,
		tmpl:     tmpl,
		textTmpl: textTmpl,
	}, nil
}

// SendDigest renders and delivers one digest email
func (s *SMTPEmailSender) SendDigest(ctx context.Context, email DigestEmail) error {
	if email.To == "" || !strings.Contains(email.To, "@") {
		return fmt.Errorf("invalid recipient address: %s", email.To)
	}

	var htmlBody, textBody bytes.Buffer
	if err := s.tmpl.Execute(&htmlBody, email); err != nil {
		return fmt.Errorf("failed to render digest for %s: %w", email.To, err)
	}
	if err := s.textTmpl.Execute(&textBody, email); err != nil {
		return fmt.Errorf("failed to render digest text for %s: %w", email.To, err)
	}

	var alt bytes.Buffer
	mw := multipart.NewWriter(&alt)
	textPart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/plain; charset=UTF-8"},
	})
	if err != nil {
		return fmt.Errorf("failed to assemble digest for %s: %w", email.To, err)
	}
	textPart.Write(textBody.Bytes())
	htmlPart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/html; charset=UTF-8"},
	})
	if err != nil {
		return fmt.Errorf("failed to assemble digest for %s: %w", email.To, err)
	}
	htmlPart.Write(htmlBody.Bytes())
	mw.Close()

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", s.from)
	fmt.Fprintf(&msg, "To: %s\r\n", email.To)
	fmt.Fprintf(&msg, "Subject: Your weekly removed tracks digest\r\n")
	fmt.Fprintf(&msg, "List-Unsubscribe: <%s>\r\n", email.UnsubscribeURL)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=%q\r\n", mw.Boundary())
	fmt.Fprintf(&msg, "\r\n")
	msg.Write(alt.Bytes())

	if err := s.deliver(email.To, msg.Bytes()); err != nil {
		return fmt.Errorf("failed to send digest to %s: %w", email.To, err)
	}
	return nil
}

// deliver runs one SMTP session with a deadline covering the whole exchange.
// smtp.SendMail offers no timeout hook, so the dial and session are done by hand.
func (s *SMTPEmailSender) deliver(to string, msg []byte) error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	conn, err := net.DialTimeout("tcp", addr, s.timeout)
	if err != nil {
		return err
	}
	if s.timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(s.timeout)); err != nil {
			conn.Close()
			return err
		}
	}

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		conn.Close()
		return err
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.host}); err != nil {
			return err
		}
	}
	if s.username != "" {
		auth := smtp.PlainAuth("", s.username, s.password, s.host)
		if err := client.Auth(auth); err != nil {
			return err
		}
	}
	if err := client.Mail(envelopeAddress(s.from)); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

// envelopeAddress strips a display name so MAIL FROM gets a bare address.
func envelopeAddress(from string) string {
	if addr, err := mail.ParseAddress(from); err == nil {
		return addr.Address
	}
	return from
}

// MockEmailSender logs digests instead of delivering them
type MockEmailSender struct {
	Sent []DigestEmail
}

func NewMockEmailSender() *MockEmailSender {
	return &MockEmailSender{}
}

func (m *MockEmailSender) SendDigest(ctx context.Context, email DigestEmail) error {
	m.Sent = append(m.Sent, email)
	log.Printf("Digest sent to %s with %d tracks", email.To, len(email.Tracks))
	return nil
}

const digestTextTemplate = `Tracks that left your library this week

{{range .Tracks}}- {{.Name}} by {{.Artist}}{{if .Album}} ({{.Album}}){{end}}
  Removed from {{.PlaylistName}} on {{.RemovedAt.Format "Jan 2"}}{{if .Suggested}}
  You might want this one back{{end}}
{{end}}
Don't want these emails? Unsubscribe here: {{.UnsubscribeURL}}
`

const digestTemplate = `<!DOCTYPE html>
<html>
<body style="font-family: Helvetica, Arial, sans-serif; color: #1a1a1a;">
  <h2>Tracks that left your library this week</h2>
  <table cellpadding="8" cellspacing="0">
    {{range .Tracks}}
    <tr>
      {{if .Image}}<td><img src="{{.Image}}" width="48" height="48" alt=""></td>{{else}}<td></td>{{end}}
      <td>
        <strong>{{.Name}}</strong><br>
        {{.Artist}}{{if .Album}} &middot; {{.Album}}{{end}}<br>
        <span style="font-size: 12px; color: #777;">Removed from {{.PlaylistName}} on {{.RemovedAt.Format "Jan 2"}}</span>
        {{if .Suggested}}<br><em>You might want this one back</em>{{end}}
      </td>
    </tr>
    {{end}}
  </table>
  <p style="font-size: 12px; color: #777;">
    Don't want these emails? <a href="{{.UnsubscribeURL}}">Unsubscribe</a>.
  </p>
</body>
</html>
`
