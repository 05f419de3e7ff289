package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/diagnosis/autoescola/pkg/config"
	"github.com/diagnosis/autoescola/pkg/logger"
)

var ErrNoRecipient = errors.New("empty recipient email")

// SMTPMailer delivers through an SMTP relay. Without TLS or credentials it
// suits a local catcher such as Mailpit on 1025.
type SMTPMailer struct {
	host        string
	addr        string
	from        mail.Address
	user        string
	pass        string
	implicitTLS bool
	dialTimeout time.Duration
	now         func() time.Time
}

func NewSMTPMailer(cfg config.EmailConfig) *SMTPMailer {
	host := strings.TrimSpace(cfg.SMTPHost)
	return &SMTPMailer{
		host:        host,
		addr:        net.JoinHostPort(host, strconv.Itoa(cfg.SMTPPort)),
		from:        mail.Address{Name: cfg.FromName, Address: strings.TrimSpace(cfg.FromEmail)},
		user:        strings.TrimSpace(cfg.SMTPUser),
		pass:        cfg.SMTPPass,
		implicitTLS: cfg.SMTPUseTLS,
		dialTimeout: 10 * time.Second,
		now:         time.Now,
	}
}

// Send returns the generated Message-ID.
func (s *SMTPMailer) Send(ctx context.Context, msg Message) (string, error) {
	to := strings.TrimSpace(msg.ToEmail)
	if to == "" {
		return "", ErrNoRecipient
	}
	msg.ToEmail = to

	id := fmt.Sprintf("<%s@%s>", uuid.NewString(), s.domain())
	body, err := s.compose(id, msg)
	if err != nil {
		return "", fmt.Errorf("compose email: %w", err)
	}

	if err := s.deliver(ctx, to, body); err != nil {
		return "", fmt.Errorf("smtp send to %s: %w", s.addr, err)
	}
	logger.DebugContext(ctx, "Email sent over SMTP", "to", to, "message_id", id)
	return id, nil
}

func (s *SMTPMailer) domain() string {
	if _, d, ok := strings.Cut(s.from.Address, "@"); ok && d != "" {
		return d
	}
	return "localhost"
}

func (s *SMTPMailer) compose(id string, msg Message) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	parts := []struct {
		contentType string
		content     string
	}{
		{"text/plain; charset=utf-8", msg.Text},
		{"text/html; charset=utf-8", msg.HTML},
	}
	for _, p := range parts {
		if strings.TrimSpace(p.content) == "" {
			continue
		}
		w, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {p.contentType}})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(p.content)); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	to := mail.Address{Name: msg.ToName, Address: msg.ToEmail}

	var out bytes.Buffer
	fmt.Fprintf(&out, "From: %s\r\n", s.from.String())
	fmt.Fprintf(&out, "To: %s\r\n", to.String())
	fmt.Fprintf(&out, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&out, "Date: %s\r\n", s.now().Format(time.RFC1123Z))
	fmt.Fprintf(&out, "Message-ID: %s\r\n", id)
	fmt.Fprintf(&out, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&out, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", mw.Boundary())
	out.Write(body.Bytes())
	return out.Bytes(), nil
}

func (s *SMTPMailer) deliver(ctx context.Context, to string, body []byte) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}

	c, err := smtp.NewClient(conn, s.host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if !s.implicitTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: s.host}); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}
	if s.user != "" {
		if err := c.Auth(smtp.PlainAuth("", s.user, s.pass, s.host)); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := c.Mail(s.from.Address); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func (s *SMTPMailer) dial(ctx context.Context) (net.Conn, error) {
	d := &net.Dialer{Timeout: s.dialTimeout}
	if s.implicitTLS {
		td := &tls.Dialer{NetDialer: d, Config: &tls.Config{ServerName: s.host}}
		return td.DialContext(ctx, "tcp", s.addr)
	}
	return d.DialContext(ctx, "tcp", s.addr)
}
