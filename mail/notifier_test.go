package mail

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/goliatone/go-fulfillment/core"
)

func TestSMTPNotifier_SendBuildsMultipartMessage(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	var gotAuth smtp.Auth

	notifier, err := NewSMTPNotifier(core.MailConfig{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "mailer",
		Password: "secret",
		From:     "licenses@example.com",
	}, WithSendFunc(func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotFrom, gotTo, gotMsg = addr, auth, from, to, msg
		return nil
	}))
	if err != nil {
		t.Fatalf("build notifier: %v", err)
	}

	err = notifier.Send(context.Background(), core.Notification{
		To:      "buyer@example.com",
		Subject: "Your License Key",
		Text:    "Your license key:\nABCD-EFGH",
		HTML:    "<p>Your license key:</p><p><code>ABCD-EFGH</code></p>",
	})
	if err != nil {
		t.Fatalf("send notification: %v", err)
	}

	if gotAddr != "smtp.example.com:587" {
		t.Fatalf("unexpected addr %q", gotAddr)
	}
	if gotAuth == nil {
		t.Fatalf("expected plain auth when username is configured")
	}
	if gotFrom != "licenses@example.com" {
		t.Fatalf("unexpected from %q", gotFrom)
	}
	if len(gotTo) != 1 || gotTo[0] != "buyer@example.com" {
		t.Fatalf("unexpected recipients %v", gotTo)
	}

	message := string(gotMsg)
	for _, want := range []string{
		"From: licenses@example.com",
		"To: buyer@example.com",
		"multipart/alternative",
		"text/plain",
		"text/html",
		"ABCD-EFGH",
	} {
		if !strings.Contains(message, want) {
			t.Fatalf("expected message to contain %q:\n%s", want, message)
		}
	}
}

func TestSMTPNotifier_SendWithoutAuthWhenNoUsername(t *testing.T) {
	var gotAuth smtp.Auth
	notifier, err := NewSMTPNotifier(core.MailConfig{
		Host: "localhost",
		Port: 1025,
		From: "licenses@example.com",
	}, WithSendFunc(func(_ string, auth smtp.Auth, _ string, _ []string, _ []byte) error {
		gotAuth = auth
		return nil
	}))
	if err != nil {
		t.Fatalf("build notifier: %v", err)
	}
	err = notifier.Send(context.Background(), core.Notification{
		To:   "buyer@example.com",
		Text: "key",
	})
	if err != nil {
		t.Fatalf("send notification: %v", err)
	}
	if gotAuth != nil {
		t.Fatalf("expected nil auth without username")
	}
}

func TestSMTPNotifier_SendValidation(t *testing.T) {
	notifier, err := NewSMTPNotifier(core.MailConfig{
		Host: "localhost",
		From: "licenses@example.com",
	}, WithSendFunc(func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatalf("send must not be called")
		return nil
	}))
	if err != nil {
		t.Fatalf("build notifier: %v", err)
	}
	if err := notifier.Send(context.Background(), core.Notification{Text: "key"}); err == nil {
		t.Fatalf("expected error for missing recipient")
	}
	if err := notifier.Send(context.Background(), core.Notification{To: "a@b.com"}); err == nil {
		t.Fatalf("expected error for empty body")
	}
}

func TestSMTPNotifier_SendWrapsTransportFailure(t *testing.T) {
	sendErr := errors.New("connection refused")
	notifier, err := NewSMTPNotifier(core.MailConfig{
		Host: "localhost",
		From: "licenses@example.com",
	}, WithSendFunc(func(string, smtp.Auth, string, []string, []byte) error {
		return sendErr
	}))
	if err != nil {
		t.Fatalf("build notifier: %v", err)
	}
	err = notifier.Send(context.Background(), core.Notification{To: "a@b.com", Text: "key"})
	if !errors.Is(err, sendErr) {
		t.Fatalf("expected wrapped send error, got %v", err)
	}
}

func TestNewSMTPNotifier_Validation(t *testing.T) {
	if _, err := NewSMTPNotifier(core.MailConfig{From: "a@b.com"}); err == nil {
		t.Fatalf("expected error for missing host")
	}
	if _, err := NewSMTPNotifier(core.MailConfig{Host: "localhost"}); err == nil {
		t.Fatalf("expected error for missing from address")
	}
}
