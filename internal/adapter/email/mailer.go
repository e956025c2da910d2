// Package email provides an SMTP implementation of the mailer port with the
// named templates the back office sends.
package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"strconv"

	"github.com/Strob0t/backoffice/internal/config"
	"github.com/Strob0t/backoffice/internal/port/mailer"
	"github.com/Strob0t/backoffice/internal/resilience"
)

var _ mailer.Mailer = (*Mailer)(nil)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer sends templated HTML email via SMTP.
type Mailer struct {
	cfg       config.SMTP
	templates map[string]*message
	breaker   *resilience.Breaker
	send      sendFunc
}

// New creates a Mailer. Calls fail fast with resilience.ErrCircuitOpen while
// the SMTP server keeps failing.
func New(cfg config.SMTP, breaker *resilience.Breaker) *Mailer {
	return &Mailer{
		cfg:       cfg,
		templates: defaultTemplates(),
		breaker:   breaker,
		send:      smtp.SendMail,
	}
}

// SendEmail renders the named template with data and sends it to one recipient.
func (m *Mailer) SendEmail(ctx context.Context, to, name string, data map[string]any) error {
	if m.cfg.Host == "" {
		return mailer.ErrNotConfigured
	}
	tmpl, ok := m.templates[name]
	if !ok {
		return fmt.Errorf("email template %q not found", name)
	}

	subject, body, err := tmpl.render(data)
	if err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		m.cfg.From, to, subject, body)

	var auth smtp.Auth
	if m.cfg.Password != "" {
		auth = smtp.PlainAuth("", m.cfg.From, m.cfg.Password, m.cfg.Host)
	}
	addr := m.cfg.Host + ":" + strconv.Itoa(m.cfg.Port)

	send := func(context.Context) error {
		return m.send(addr, auth, m.cfg.From, []string{to}, []byte(msg))
	}
	if m.breaker == nil {
		err = send(ctx)
	} else {
		err = m.breaker.Execute(ctx, send)
	}
	if err != nil {
		return fmt.Errorf("send %s to %s: %w", name, to, err)
	}
	return nil
}

type message struct {
	subject *template.Template
	body    *template.Template
}

func (t *message) render(data map[string]any) (subject, body string, err error) {
	var s, b bytes.Buffer
	if err := t.subject.Execute(&s, data); err != nil {
		return "", "", err
	}
	if err := t.body.Execute(&b, data); err != nil {
		return "", "", err
	}
	return s.String(), b.String(), nil
}

func mustMessage(name, subject, body string) *message {
	return &message{
		subject: template.Must(template.New(name + ".subject").Parse(subject)),
		body:    template.Must(template.New(name + ".body").Parse(body)),
	}
}

func defaultTemplates() map[string]*message {
	return map[string]*message{
		mailer.TemplateInvitation: mustMessage(mailer.TemplateInvitation,
			`You have been invited to {{.TenantName}}`,
			`<p>Hi {{.FirstName}},</p>
<p>{{.InvitedBy}} invited you to join <strong>{{.TenantName}}</strong>.</p>
<p><a href="{{.Link}}">Accept the invitation</a></p>`),
		mailer.TemplateWelcome: mustMessage(mailer.TemplateWelcome,
			`Welcome to {{.TenantName}}`,
			`<p>Hi {{.FirstName}},</p>
<p>Your account for <strong>{{.TenantName}}</strong> is ready.</p>
<p><a href="{{.Link}}">Sign in</a></p>`),
		mailer.TemplatePasswordChange: mustMessage(mailer.TemplatePasswordChange,
			`Your password was changed`,
			`<p>Hi {{.FirstName}},</p>
<p>The password of your account was changed. If this was not you, contact your administrator.</p>`),
	}
}
