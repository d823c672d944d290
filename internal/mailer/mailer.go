// Package mailer sends transactional HTML mail over SMTP. Engines depend on
// the Sender interface; delivery failure handling (swallow vs surface) is
// the caller's decision.
package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sender is the transport boundary: send one HTML message, report failure.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// ConfigFromEnv reads SMTP settings from env vars.
func ConfigFromEnv() Config {
	host := os.Getenv("SMTP_HOST")
	if host == "" {
		host = "smtp.gmail.com"
	}
	port := 587
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &port); err != nil {
			port = 587
		}
	}
	user := os.Getenv("SMTP_USER")
	from := os.Getenv("SMTP_FROM")
	if from == "" && user != "" {
		from = fmt.Sprintf("LumiChess <%s>", user)
	}
	return Config{
		Host:     host,
		Port:     port,
		Username: user,
		Password: os.Getenv("SMTP_PASS"),
		From:     from,
	}
}

// SMTPMailer sends mail through a single SMTP endpoint with PLAIN auth.
type SMTPMailer struct {
	cfg Config
}

func NewSMTPMailer(cfg Config) *SMTPMailer { return &SMTPMailer{cfg: cfg} }

func (m *SMTPMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	var msg strings.Builder
	msg.WriteString("From: " + m.cfg.From + "\r\n")
	msg.WriteString("To: " + to + "\r\n")
	msg.WriteString("Subject: " + subject + "\r\n")
	msg.WriteString("Message-ID: <" + uuid.NewString() + "@" + m.cfg.Host + ">\r\n")
	msg.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	if err := smtp.SendMail(addr, auth, m.cfg.Username, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}
