package notify

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"
)

// SMTPConfig configures an SMTPNotifier
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPNotifier sends messages through an SMTP relay
type SMTPNotifier struct {
	config SMTPConfig
	addr   string
	auth   smtp.Auth
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPNotifier creates an SMTP notifier. Authentication is used only
// when a username is configured.
func NewSMTPNotifier(cfg SMTPConfig) (*SMTPNotifier, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host cannot be empty")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("smtp sender cannot be empty")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}

	n := &SMTPNotifier{
		config: cfg,
		addr:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		send:   smtp.SendMail,
	}
	if cfg.Username != "" {
		n.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return n, nil
}

// Send implements Notifier
func (n *SMTPNotifier) Send(ctx context.Context, msg *Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := n.send(n.addr, n.auth, n.config.From, []string{msg.To}, n.render(msg)); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", msg.To, err)
	}
	return nil
}

func (n *SMTPNotifier) render(msg *Message) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: Q Work Support <%s>\r\n", n.config.From)
	fmt.Fprintf(&buf, "To: %s\r\n", msg.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	buf.WriteString(msg.Body)
	return buf.Bytes()
}
