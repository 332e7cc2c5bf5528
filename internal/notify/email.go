// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"

	"github.com/zipalim/zipalim/internal/config"
	"github.com/zipalim/zipalim/internal/models"
)

// EmailChannel delivers notifications as plain-text email over SMTP. The
// recipient address comes from the alert definition, the server settings
// from the shared SMTP configuration.
type EmailChannel struct {
	cfg config.SMTPConfig
	// send overrides the SMTP dialogue in tests.
	send func(ctx context.Context, to, msg string) error
}

// NewEmailChannel returns an email channel using the given SMTP settings.
func NewEmailChannel(cfg config.SMTPConfig) *EmailChannel {
	c := &EmailChannel{cfg: cfg}
	c.send = c.sendSMTP
	return c
}

func (c *EmailChannel) Name() models.NotificationChannel {
	return models.ChannelEmail
}

func (c *EmailChannel) Send(ctx context.Context, alert models.AlertDefinition, msg Message) Result {
	if c.cfg.Host == "" {
		return failed("SMTP is not configured")
	}
	if err := validateEmail(alert.Email); err != nil {
		return failed("%v", err)
	}

	if err := c.send(ctx, alert.Email, c.buildMessage(alert.Email, msg)); err != nil {
		return failed("smtp delivery to %s failed: %v", c.cfg.Host, err)
	}
	return sent()
}

// buildMessage renders the RFC 5322 message. The subject carries Korean text
// and is Q-encoded; the body is UTF-8 plain text.
func (c *EmailChannel) buildMessage(to string, msg Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: Zipalim <%s>\r\n", c.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", msg.Title))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	b.WriteString("\r\n")
	return b.String()
}

// sendSMTP runs the SMTP dialogue: connect, optional STARTTLS, optional
// auth, one recipient, one message.
func (c *EmailChannel) sendSMTP(ctx context.Context, to, msg string) error {
	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connect to SMTP server: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, c.cfg.Host)
	if err != nil {
		return fmt.Errorf("SMTP handshake: %w", err)
	}
	defer client.Close()

	if c.cfg.StartTLS {
		tlsConfig := &tls.Config{
			ServerName: c.cfg.Host,
			MinVersion: tls.VersionTLS12,
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("start TLS: %w", err)
		}
	}

	if c.cfg.Username != "" && c.cfg.Password != "" {
		auth := smtp.PlainAuth("", c.cfg.Username, c.cfg.Password, c.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication: %w", err)
		}
	}

	if err := client.Mail(c.cfg.From); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("set recipient: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("start message: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close message: %w", err)
	}

	// Message is committed at this point; a failed QUIT is not a failure.
	_ = client.Quit()
	return nil
}
