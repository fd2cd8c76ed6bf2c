package mail

import (
	"fmt"
	"html"
	"strings"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/cozycabin/cozycabin/internal/config"
	"github.com/cozycabin/cozycabin/internal/domain"
)

// Mailer sends the transactional mail the service needs.
type Mailer interface {
	SendInvite(to string, role domain.Role, signupURL string, expiresAt time.Time) error
	SendTicketUpdate(to string, ticket *domain.Ticket, summary string) error
}

// Message is a rendered multipart mail.
type Message struct {
	To        string
	Subject   string
	PlainBody string
	HTMLBody  string
}

// Sender delivers a rendered message.
type Sender interface {
	Send(msg Message) error
}

// SMTPSender delivers mail through an SMTP relay.
type SMTPSender struct {
	from   string
	dialer *gomail.Dialer
}

// NewSMTPSender builds a sender from config.
func NewSMTPSender(cfg config.MailConfig) *SMTPSender {
	m := gomail.NewMessage()
	return &SMTPSender{
		from:   m.FormatAddress(cfg.FromAddress, cfg.FromName),
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

func (s *SMTPSender) Send(msg Message) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.PlainBody)
	if msg.HTMLBody != "" {
		m.AddAlternative("text/html", msg.HTMLBody)
	}

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// TemplateMailer renders CozyCabin mail and hands it to a Sender.
type TemplateMailer struct {
	sender Sender
}

// NewTemplateMailer wraps sender.
func NewTemplateMailer(sender Sender) *TemplateMailer {
	return &TemplateMailer{sender: sender}
}

func (m *TemplateMailer) SendInvite(to string, role domain.Role, signupURL string, expiresAt time.Time) error {
	expires := expiresAt.UTC().Format("Jan 2, 2006 15:04 MST")
	subject := "You're invited to join CozyCabin"
	plain := fmt.Sprintf(`You have been invited to CozyCabin as %s.

Create your account here:
%s

This invitation can be used once and expires on %s.
`, role, signupURL, expires)
	htmlBody := fmt.Sprintf(`<html><body>
<h2>Welcome to CozyCabin</h2>
<p>You have been invited to join as <strong>%s</strong>.</p>
<p><a href="%s">Create your account</a></p>
<p>This invitation can be used once and expires on %s.</p>
</body></html>`, html.EscapeString(string(role)), html.EscapeString(signupURL), expires)

	return m.sender.Send(Message{To: to, Subject: subject, PlainBody: plain, HTMLBody: htmlBody})
}

func (m *TemplateMailer) SendTicketUpdate(to string, ticket *domain.Ticket, summary string) error {
	subject := fmt.Sprintf("[CozyCabin] %s", ticket.Subject)
	plain := fmt.Sprintf("%s\n\nStatus: %s\nPriority: %s\n", strings.TrimSpace(summary), ticket.Status, ticket.Priority)
	return m.sender.Send(Message{To: to, Subject: subject, PlainBody: plain})
}
