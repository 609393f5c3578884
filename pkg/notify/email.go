package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/ogulcanaydogan/vitalwatch/pkg/model"
)

// SMTPConfig configures the email sender.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	UseTLS   bool   `mapstructure:"use_tls"`
}

// EmailSender delivers notifications over SMTP.
type EmailSender struct {
	cfg SMTPConfig
}

// NewEmailSender creates an SMTP email sender.
func NewEmailSender(cfg SMTPConfig) *EmailSender {
	cfg.Host = strings.TrimSpace(cfg.Host)
	cfg.Username = strings.TrimSpace(cfg.Username)
	cfg.From = strings.TrimSpace(cfg.From)
	return &EmailSender{cfg: cfg}
}

func (s *EmailSender) Channel() model.Channel { return model.ChannelEmail }

func (s *EmailSender) Send(ctx context.Context, target string, msg Message) error {
	to := strings.TrimSpace(target)
	switch {
	case s.cfg.Host == "":
		return errors.New("smtp host is empty")
	case s.cfg.Port <= 0:
		return errors.New("smtp port is invalid")
	case s.cfg.From == "":
		return errors.New("smtp from is empty")
	case to == "":
		return errors.New("email recipient is empty")
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	var client *smtp.Client
	if s.cfg.UseTLS && s.cfg.Port == 465 {
		tlsConn := tls.Client(conn, &tls.Config{ServerName: s.cfg.Host})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return fmt.Errorf("smtp tls handshake: %w", err)
		}
		client, err = smtp.NewClient(tlsConn, s.cfg.Host)
	} else {
		client, err = smtp.NewClient(conn, s.cfg.Host)
	}
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp client init: %w", err)
	}
	defer client.Close()

	if s.cfg.UseTLS && s.cfg.Port != 465 {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			return errors.New("smtp server does not support STARTTLS")
		}
		if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}

	if s.cfg.Username != "" {
		if ok, _ := client.Extension("AUTH"); !ok {
			return errors.New("smtp server does not support AUTH")
		}
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt to %s: %w", to, err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write([]byte(buildEmail(s.cfg.From, to, msg))); err != nil {
		_ = w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp data close: %w", err)
	}
	// The message is accepted once DATA closes; a failed QUIT is not a delivery failure.
	_ = client.Quit()
	return nil
}

// buildEmail renders a plain-text message with CRLF line endings.
func buildEmail(from, to string, msg Message) string {
	subject := strings.NewReplacer("\r", "", "\n", "").Replace(msg.Title)
	headers := []string{
		"From: " + from,
		"To: " + to,
		"Subject: " + subject,
		"Date: " + msg.Timestamp.Format(time.RFC1123Z),
		"MIME-Version: 1.0",
		`Content-Type: text/plain; charset="UTF-8"`,
	}
	if msg.Urgent {
		headers = append(headers, "X-Priority: 1", "Importance: high")
	}
	body := strings.ReplaceAll(msg.Body, "\r\n", "\n")
	body = strings.ReplaceAll(body, "\r", "\n")
	body = strings.ReplaceAll(body, "\n", "\r\n")
	return strings.Join(headers, "\r\n") + "\r\n\r\n" + body + "\r\n"
}
