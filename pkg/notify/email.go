package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/openzeppelin-fork/monitor-go/pkg/model"
	"github.com/openzeppelin-fork/monitor-go/pkg/secret"
)

// EmailNotifier sends plain-text mail over SMTP on an implicit-TLS
// connection (tls.Dial); plaintext SMTP and STARTTLS are not used.
type EmailNotifier struct {
	cfg      model.EmailConfig
	resolver secret.Resolver
	logger   *zap.Logger
}

func NewEmailNotifier(cfg model.EmailConfig, resolver secret.Resolver, logger *zap.Logger) *EmailNotifier {
	return &EmailNotifier{cfg: cfg, resolver: resolver, logger: logger.Named("email")}
}

func (n *EmailNotifier) Send(ctx context.Context, vars map[string]string) error {
	username, err := n.resolver.Resolve(ctx, n.cfg.Username)
	if err != nil {
		return fmt.Errorf("notify: resolving email username: %w", err)
	}
	password, err := n.resolver.Resolve(ctx, n.cfg.Password)
	if err != nil {
		return fmt.Errorf("notify: resolving email password: %w", err)
	}

	subject := Render(n.cfg.Message.Title, vars)
	body := Render(n.cfg.Message.Body, vars)
	msg := buildMIME(n.cfg.Sender, n.cfg.Recipients, subject, body)

	return withRetry(ctx, n.logger, n.cfg.RetryPolicy, func(ctx context.Context) error {
		return n.sendMail(username, password, msg)
	})
}

func buildMIME(from string, to []string, subject, body string) []byte {
	var msg bytes.Buffer
	msg.WriteString(fmt.Sprintf("From: %s\r\n", from))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(to, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	msg.WriteString(body)
	return msg.Bytes()
}

func (n *EmailNotifier) sendMail(username, password string, msg []byte) error {
	port := n.cfg.Port
	if port == 0 {
		port = 587
	}
	addr := fmt.Sprintf("%s:%d", n.cfg.Host, port)
	auth := smtp.PlainAuth("", username, password, n.cfg.Host)

	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: n.cfg.Host, MinVersion: tls.VersionTLS12})
	if err != nil {
		return fmt.Errorf("notify: connecting to smtp host: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, n.cfg.Host)
	if err != nil {
		return fmt.Errorf("notify: creating smtp client: %w", err)
	}
	defer client.Close()

	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("notify: smtp auth failed: %w", err)
	}
	if err := client.Mail(n.cfg.Sender); err != nil {
		return fmt.Errorf("notify: setting sender: %w", err)
	}
	for _, rcpt := range n.cfg.Recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("notify: adding recipient %s: %w", rcpt, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("notify: opening data writer: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("notify: writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("notify: closing data writer: %w", err)
	}
	return client.Quit()
}
