package user

import (
	"fmt"
	"time"

	"github.com/Strob0t/backoffice/internal/domain"
)

// Invitation asks a person to join a tenant with a set of roles.
type Invitation struct {
	ID              string     `json:"id"`
	TenantID        string     `json:"tenant_id"`
	Email           string     `json:"email"`
	FirstName       string     `json:"first_name"`
	LastName        string     `json:"last_name"`
	RoleIDs         []string   `json:"role_ids"`
	Token           string     `json:"-"`
	InvitedByUserID string     `json:"invited_by_user_id,omitempty"`
	SentAt          *time.Time `json:"sent_at,omitempty"`
	AcceptedAt      *time.Time `json:"accepted_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Pending reports whether the invitation can still be accepted.
func (i *Invitation) Pending() bool { return i.AcceptedAt == nil }

// InviteRequest invites one address.
type InviteRequest struct {
	Email     string   `json:"email"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	RoleIDs   []string `json:"role_ids"`
	SendEmail bool     `json:"send_email"`
}

// Validate checks that the InviteRequest has all required fields.
func (r *InviteRequest) Validate() error {
	return ValidateEmail(r.Email)
}

// BulkInviteRequest invites several addresses with shared roles.
type BulkInviteRequest struct {
	Emails    []string `json:"emails"`
	RoleIDs   []string `json:"role_ids"`
	SendEmail bool     `json:"send_email"`
}

// InviteResult reports the outcome for one address of a bulk invite.
type InviteResult struct {
	Email      string      `json:"email"`
	Invitation *Invitation `json:"invitation,omitempty"`
	Error      string      `json:"error,omitempty"`
	EmailSent  bool        `json:"email_sent"`
}

// AcceptRequest completes an invitation. Password is ignored when the
// address already belongs to a user.
type AcceptRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"` //nolint:gosec // request field, not a hardcoded secret
}

// ErrInvitationUsed is returned when accepting an invitation twice.
var ErrInvitationUsed = fmt.Errorf("invitation already accepted: %w", domain.ErrConflict)
