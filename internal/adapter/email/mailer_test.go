package email

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/Strob0t/backoffice/internal/config"
	"github.com/Strob0t/backoffice/internal/port/mailer"
	"github.com/Strob0t/backoffice/internal/resilience"
)

type sentMail struct {
	addr string
	from string
	to   []string
	msg  string
}

func newTestMailer(sendErr error) (*Mailer, *[]sentMail) {
	var sent []sentMail
	m := New(config.SMTP{Host: "smtp.test", Port: 2525, From: "no-reply@test"}, resilience.NewBreaker("smtp", 2, time.Minute))
	m.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		if sendErr != nil {
			return sendErr
		}
		sent = append(sent, sentMail{addr: addr, from: from, to: to, msg: string(msg)})
		return nil
	}
	return m, &sent
}

func TestSendInvitation(t *testing.T) {
	m, sent := newTestMailer(nil)

	err := m.SendEmail(context.Background(), "ada@example.com", mailer.TemplateInvitation, map[string]any{
		"FirstName":  "Ada",
		"TenantName": "Acme",
		"InvitedBy":  "Grace",
		"Link":       "https://app.test/invitations/abc",
	})
	if err != nil {
		t.Fatalf("SendEmail: %v", err)
	}
	if len(*sent) != 1 {
		t.Fatalf("sent %d mails, want 1", len(*sent))
	}
	got := (*sent)[0]
	if got.addr != "smtp.test:2525" {
		t.Errorf("addr = %q", got.addr)
	}
	if !strings.Contains(got.msg, "Subject: You have been invited to Acme") {
		t.Errorf("missing subject in %q", got.msg)
	}
	if !strings.Contains(got.msg, `href="https://app.test/invitations/abc"`) {
		t.Errorf("missing link in %q", got.msg)
	}
}

func TestBodyIsEscaped(t *testing.T) {
	m, sent := newTestMailer(nil)

	err := m.SendEmail(context.Background(), "x@example.com", mailer.TemplateWelcome, map[string]any{
		"FirstName":  "<script>",
		"TenantName": "Acme",
	})
	if err != nil {
		t.Fatalf("SendEmail: %v", err)
	}
	if strings.Contains((*sent)[0].msg, "<script>") {
		t.Error("expected template data to be HTML escaped")
	}
}

func TestNotConfigured(t *testing.T) {
	m := New(config.SMTP{}, nil)
	err := m.SendEmail(context.Background(), "x@example.com", mailer.TemplateWelcome, nil)
	if !errors.Is(err, mailer.ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}

func TestUnknownTemplate(t *testing.T) {
	m, _ := newTestMailer(nil)
	if err := m.SendEmail(context.Background(), "x@example.com", "newsletter", nil); err == nil {
		t.Fatal("expected error for unknown template")
	}
}

func TestBreakerOpensOnRepeatedFailures(t *testing.T) {
	m, _ := newTestMailer(errors.New("connection refused"))
	ctx := context.Background()

	for range 2 {
		_ = m.SendEmail(ctx, "x@example.com", mailer.TemplatePasswordChange, map[string]any{"FirstName": "A"})
	}
	err := m.SendEmail(ctx, "x@example.com", mailer.TemplatePasswordChange, map[string]any{"FirstName": "A"})
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
}
