package publisher

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/phuslu/log"

	"github.com/ryosukesatoh/daily-digest/internal/config"
)

// EmailPublisher sends the digest as a multipart (plain text and HTML) email,
// one message per recipient.
type EmailPublisher struct {
	cfg    config.EmailConfig
	logger *log.Logger
	now    func() time.Time
	send   func(ctx context.Context, to string, msg []byte) error
}

func NewEmailPublisher(cfg config.EmailConfig, logger *log.Logger) *EmailPublisher {
	p := &EmailPublisher{cfg: cfg, logger: logger, now: time.Now}
	p.send = p.sendSMTP
	return p
}

// Publish delivers n to every recipient. A failed recipient does not stop the
// others; the failures are returned joined.
func (p *EmailPublisher) Publish(ctx context.Context, n *Notification) error {
	recipients := n.Recipients
	if len(recipients) == 0 {
		recipients = p.cfg.To
	}
	if len(recipients) == 0 {
		return errors.New("email: no recipients")
	}

	var errs []error
	sent := 0
	for _, to := range recipients {
		msg, err := p.compose(n, to)
		if err != nil {
			return fmt.Errorf("email: compose: %w", err)
		}
		if err := p.send(ctx, to, msg); err != nil {
			p.logger.Error().Str("recipient", to).Str("source", n.Source).Err(err).Msg("failed to send email")
			errs = append(errs, fmt.Errorf("email: %s: %w", to, err))
			continue
		}
		sent++
		p.logger.Info().Str("recipient", to).Str("source", n.Source).Msg("email sent")
	}
	if sent == 0 && ctx.Err() != nil {
		return ctx.Err()
	}
	return errors.Join(errs...)
}

// compose builds the MIME message for one recipient.
func (p *EmailPublisher) compose(n *Notification, to string) ([]byte, error) {
	var h mail.Header
	date := n.Date
	if date.IsZero() {
		date = p.now()
	}
	h.SetDate(date)
	h.SetAddressList("From", []*mail.Address{{Address: p.cfg.From}})
	h.SetAddressList("To", []*mail.Address{{Address: to}})
	h.SetSubject(n.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	tw, err := mw.CreateInline()
	if err != nil {
		return nil, err
	}

	parts := []struct {
		contentType string
		body        string
	}{
		{"text/plain", n.Subject + "\n\n" + n.Digest.Text()},
		{"text/html", n.Body},
	}
	for _, part := range parts {
		var ph mail.InlineHeader
		ph.SetContentType(part.contentType, map[string]string{"charset": "utf-8"})
		w, err := tw.CreatePart(ph)
		if err != nil {
			return nil, err
		}
		if _, err := io.WriteString(w, part.body); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// sendSMTP delivers msg through the configured relay, upgrading to TLS with
// STARTTLS when the relay offers it unless the connection is already TLS.
func (p *EmailPublisher) sendSMTP(ctx context.Context, to string, msg []byte) error {
	addr := net.JoinHostPort(p.cfg.SMTPHost, strconv.Itoa(p.cfg.SMTPPort))
	tlsConfig := &tls.Config{
		ServerName:         p.cfg.SMTPHost,
		InsecureSkipVerify: p.cfg.InsecureSkipVerify,
	}

	dialer := &net.Dialer{Timeout: 30 * time.Second}
	var conn net.Conn
	var err error
	if p.cfg.ImplicitTLS {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, p.cfg.SMTPHost)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if !p.cfg.ImplicitTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}
	if p.cfg.Username != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.SMTPHost)); err != nil {
				return fmt.Errorf("auth: %w", err)
			}
		}
	}

	if err := c.Mail(p.cfg.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close message: %w", err)
	}
	return c.Quit()
}
