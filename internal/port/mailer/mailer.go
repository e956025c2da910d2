// Package mailer defines the outbound email port.
package mailer

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when no mail transport is configured.
var ErrNotConfigured = errors.New("mailer: not configured")

// Template names.
const (
	TemplateInvitation     = "invitation"
	TemplateWelcome        = "welcome"
	TemplatePasswordChange = "password_change"
)

// Mailer sends templated emails.
type Mailer interface {
	// SendEmail renders the named template with data and delivers it to to.
	SendEmail(ctx context.Context, to, template string, data map[string]any) error
}
