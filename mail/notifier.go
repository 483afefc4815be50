// Package mail delivers license notifications over SMTP. Delivery is best
// effort; callers decide whether a failed send fails the surrounding flow.
package mail

import (
	"context"
	"fmt"
	"mime"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-fulfillment/core"
)

// SendFunc performs the wire-level SMTP exchange. Matches smtp.SendMail so
// tests can capture the outbound message without a live server.
type SendFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

type SMTPNotifier struct {
	host     string
	port     int
	username string
	password string
	from     string
	send     SendFunc
	logger   core.Logger
}

type NotifierOption func(*SMTPNotifier)

func WithSendFunc(send SendFunc) NotifierOption {
	return func(n *SMTPNotifier) {
		if send != nil {
			n.send = send
		}
	}
}

func WithLogger(logger core.Logger) NotifierOption {
	return func(n *SMTPNotifier) {
		n.logger = logger
	}
}

func NewSMTPNotifier(cfg core.MailConfig, opts ...NotifierOption) (*SMTPNotifier, error) {
	notifier := &SMTPNotifier{
		host:     strings.TrimSpace(cfg.Host),
		port:     cfg.Port,
		username: strings.TrimSpace(cfg.Username),
		password: cfg.Password,
		from:     strings.TrimSpace(cfg.From),
		send:     smtp.SendMail,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(notifier)
		}
	}
	if notifier.host == "" {
		return nil, mailInternal("mail: smtp host is required", nil)
	}
	if notifier.port <= 0 {
		notifier.port = 587
	}
	if notifier.from == "" {
		return nil, mailInternal("mail: from address is required", nil)
	}
	notifier.logger = glog.Ensure(notifier.logger)
	return notifier, nil
}

func (n *SMTPNotifier) Send(ctx context.Context, notification core.Notification) error {
	if n == nil || n.send == nil {
		return mailInternal("mail: notifier is not configured", nil)
	}
	to := strings.TrimSpace(notification.To)
	if to == "" {
		return mailBadInput("mail: recipient is required", nil)
	}
	if err := ctx.Err(); err != nil {
		return mailWrap(err, "mail: context canceled before send", map[string]any{"to": to})
	}

	message, err := buildMessage(n.from, to, notification)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if n.username != "" {
		auth = smtp.PlainAuth("", n.username, n.password, n.host)
	}
	addr := fmt.Sprintf("%s:%d", n.host, n.port)
	if err := n.send(addr, auth, n.from, []string{to}, message); err != nil {
		return mailWrap(err, "mail: send notification", map[string]any{"to": to, "host": n.host})
	}
	n.logger.WithContext(ctx).Info("notification sent", "to", to)
	return nil
}

// buildMessage renders a multipart/alternative MIME message when both text
// and HTML bodies are present, otherwise a single-part message.
func buildMessage(from string, to string, notification core.Notification) ([]byte, error) {
	subject := strings.TrimSpace(notification.Subject)
	text := notification.Text
	html := notification.HTML
	if text == "" && html == "" {
		return nil, mailBadInput("mail: notification body is required", map[string]any{"to": to})
	}

	var builder strings.Builder
	writeHeader := func(key, value string) {
		builder.WriteString(key)
		builder.WriteString(": ")
		builder.WriteString(value)
		builder.WriteString("\r\n")
	}
	writeHeader("From", from)
	writeHeader("To", to)
	writeHeader("Subject", mime.QEncoding.Encode("utf-8", subject))
	writeHeader("Date", time.Now().UTC().Format(time.RFC1123Z))
	writeHeader("MIME-Version", "1.0")

	switch {
	case text != "" && html != "":
		var body strings.Builder
		writer := multipart.NewWriter(&body)
		writeHeader("Content-Type", `multipart/alternative; boundary="`+writer.Boundary()+`"`)
		builder.WriteString("\r\n")

		textPart, err := writer.CreatePart(textproto.MIMEHeader{
			"Content-Type": {`text/plain; charset="utf-8"`},
		})
		if err != nil {
			return nil, mailWrap(err, "mail: build text part", nil)
		}
		textPart.Write([]byte(text))

		htmlPart, err := writer.CreatePart(textproto.MIMEHeader{
			"Content-Type": {`text/html; charset="utf-8"`},
		})
		if err != nil {
			return nil, mailWrap(err, "mail: build html part", nil)
		}
		htmlPart.Write([]byte(html))

		if err := writer.Close(); err != nil {
			return nil, mailWrap(err, "mail: finalize message", nil)
		}
		builder.WriteString(body.String())
	case html != "":
		writeHeader("Content-Type", `text/html; charset="utf-8"`)
		builder.WriteString("\r\n")
		builder.WriteString(html)
	default:
		writeHeader("Content-Type", `text/plain; charset="utf-8"`)
		builder.WriteString("\r\n")
		builder.WriteString(text)
	}

	return []byte(builder.String()), nil
}

var _ core.Notifier = (*SMTPNotifier)(nil)
