package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes messages to the log instead of delivering them. It is
// the development default when no mail transport is configured.
type LogSender struct {
	Logger *zap.Logger
}

func (s LogSender) Send(ctx context.Context, msg Message) error {
	s.Logger.Info("notification",
		zap.String("to", msg.To),
		zap.String("kind", string(msg.Kind)),
		zap.Any("payload", msg.Payload),
	)
	return nil
}

// SMTPSender delivers plain-text mail through an SMTP server.
type SMTPSender struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (s SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return backoff.Permanent(err)
	}

	var auth smtp.Auth
	if s.Username != "" {
		auth = smtp.PlainAuth("", s.Username, s.Password, s.Host)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject())
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body(), "\n", "\r\n"))

	addr := s.Host + ":" + strconv.Itoa(s.Port)
	if err := smtp.SendMail(addr, auth, envelopeAddress(s.From), []string{msg.To}, []byte(b.String())); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	return nil
}

// envelopeAddress strips a display name: "Rentify <a@b>" -> "a@b".
func envelopeAddress(from string) string {
	if i := strings.LastIndexByte(from, '<'); i >= 0 {
		return strings.TrimSuffix(from[i+1:], ">")
	}
	return from
}

// RelaySender posts messages as JSON to an HTTP mail relay.
type RelaySender struct {
	URL    string
	Client *http.Client
}

func NewRelaySender(url string) *RelaySender {
	return &RelaySender{URL: url, Client: &http.Client{Timeout: 10 * time.Second}}
}

func (s *RelaySender) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(struct {
		Message
		Subject string `json:"subject"`
	}{Message: msg, Subject: msg.Subject()})
	if err != nil {
		return backoff.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		// The relay rejected the message itself; retrying cannot help.
		return backoff.Permanent(fmt.Errorf("relay rejected message: status %d", resp.StatusCode))
	default:
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
}
