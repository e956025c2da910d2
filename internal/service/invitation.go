package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	cfotel "github.com/Strob0t/backoffice/internal/adapter/otel"
	"github.com/Strob0t/backoffice/internal/domain"
	"github.com/Strob0t/backoffice/internal/domain/permission"
	"github.com/Strob0t/backoffice/internal/domain/user"
	"github.com/Strob0t/backoffice/internal/middleware"
	"github.com/Strob0t/backoffice/internal/port/database"
	"github.com/Strob0t/backoffice/internal/port/mailer"
	"github.com/Strob0t/backoffice/internal/port/messagequeue"
)

const invitationTokenBytes = 32

// InvitationService invites people into a tenant and turns accepted
// invitations into users with roles.
type InvitationService struct {
	store   database.Store
	auth    *AuthService
	perms   *PermissionService
	mail    mailer.Mailer
	queue   messagequeue.Queue
	baseURL string
	metrics *cfotel.Metrics
}

// NewInvitationService creates an InvitationService. Invitation emails are
// queued when queue is set and sent inline otherwise; mail may be nil.
func NewInvitationService(store database.Store, auth *AuthService, perms *PermissionService, mail mailer.Mailer, queue messagequeue.Queue, baseURL string) *InvitationService {
	return &InvitationService{
		store:   store,
		auth:    auth,
		perms:   perms,
		mail:    mail,
		queue:   queue,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// SetMetrics enables side-effect failure counting.
func (s *InvitationService) SetMetrics(m *cfotel.Metrics) { s.metrics = m }

// Invite creates an invitation in the tenant of ctx.
func (s *InvitationService) Invite(ctx context.Context, a *permission.Actor, req user.InviteRequest) (*user.InviteResult, error) {
	if err := s.perms.Check(ctx, a, permission.AdminUsersInvite); err != nil {
		return nil, err
	}
	return s.invite(ctx, a, req)
}

// BulkInvite invites every address in turn. A failing address does not stop
// the others; its error is reported in its result.
func (s *InvitationService) BulkInvite(ctx context.Context, a *permission.Actor, req user.BulkInviteRequest) ([]user.InviteResult, error) {
	if err := s.perms.Check(ctx, a, permission.AdminUsersInvite); err != nil {
		return nil, err
	}
	if len(req.Emails) == 0 {
		return nil, fmt.Errorf("%w: at least one email is required", domain.ErrValidation)
	}

	results := make([]user.InviteResult, 0, len(req.Emails))
	for _, email := range req.Emails {
		res, err := s.invite(ctx, a, user.InviteRequest{Email: email, RoleIDs: req.RoleIDs, SendEmail: req.SendEmail})
		if err != nil {
			results = append(results, user.InviteResult{Email: email, Error: strings.TrimPrefix(err.Error(), domain.ErrValidation.Error()+": ")})
			continue
		}
		results = append(results, *res)
	}
	return results, nil
}

func (s *InvitationService) invite(ctx context.Context, a *permission.Actor, req user.InviteRequest) (*user.InviteResult, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := req.Validate(); err != nil {
		return nil, invalid(err)
	}
	tenantID := middleware.TenantIDFromContext(ctx)
	if tenantID == "" {
		return nil, fmt.Errorf("%w: invitations are made within a tenant", domain.ErrValidation)
	}
	for _, id := range req.RoleIDs {
		if _, err := s.store.GetRole(ctx, id); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("%w: unknown role %s", domain.ErrValidation, id)
			}
			return nil, err
		}
	}

	token, err := generateRandomToken(invitationTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate invitation token: %w", err)
	}
	inv := &user.Invitation{
		ID:              generateID(),
		TenantID:        tenantID,
		Email:           req.Email,
		FirstName:       strings.TrimSpace(req.FirstName),
		LastName:        strings.TrimSpace(req.LastName),
		RoleIDs:         req.RoleIDs,
		Token:           token,
		InvitedByUserID: creatorID(a),
	}
	if err := s.store.CreateInvitation(ctx, inv); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "invitation created", "invitation_id", inv.ID, "email", inv.Email)

	res := &user.InviteResult{Email: inv.Email, Invitation: inv}
	if req.SendEmail {
		res.EmailSent = s.dispatchEmail(ctx, inv)
	}
	return res, nil
}

// dispatchEmail queues the invitation email, or sends it inline without a
// queue. Failures are logged and reported as false.
func (s *InvitationService) dispatchEmail(ctx context.Context, inv *user.Invitation) bool {
	var err error
	if s.queue != nil {
		var payload []byte
		payload, err = json.Marshal(messagequeue.InvitationEmailPayload{InvitationID: inv.ID, TenantID: inv.TenantID})
		if err == nil {
			err = s.queue.Publish(ctx, messagequeue.SubjectInvitationEmail, payload)
		}
	} else {
		err = s.sendInvitation(ctx, inv)
	}
	if err != nil {
		slog.WarnContext(ctx, "invitation email failed", "invitation_id", inv.ID, "error", err)
		if s.metrics != nil {
			s.metrics.SideEffectFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("task", messagequeue.SubjectInvitationEmail)))
		}
		return false
	}
	return true
}

func (s *InvitationService) sendInvitation(ctx context.Context, inv *user.Invitation) error {
	if s.mail == nil {
		return mailer.ErrNotConfigured
	}
	data := map[string]any{
		"FirstName": inv.FirstName,
		"Link":      s.baseURL + "/invitation?token=" + url.QueryEscape(inv.Token),
	}
	if t, err := s.store.GetTenant(ctx, inv.TenantID); err == nil {
		data["TenantName"] = t.Name
	}
	if inv.InvitedByUserID != "" {
		if u, err := s.store.GetUser(ctx, inv.InvitedByUserID); err == nil {
			data["InvitedBy"] = u.FullName()
		}
	}
	if err := s.mail.SendEmail(ctx, inv.Email, mailer.TemplateInvitation, data); err != nil {
		return err
	}
	return s.store.MarkInvitationSent(ctx, inv.ID)
}

// HandleEmailTask sends the email of a queued invitation. Returning an
// error makes the queue redeliver the task; an unconfigured mailer is not
// retried.
func (s *InvitationService) HandleEmailTask(ctx context.Context, _ string, data []byte) error {
	var p messagequeue.InvitationEmailPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode invitation email task: %w", err)
	}
	inv, err := s.store.GetInvitation(ctx, p.InvitationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			slog.WarnContext(ctx, "invitation email task for missing invitation", "invitation_id", p.InvitationID)
			return nil
		}
		return err
	}
	if !inv.Pending() || inv.SentAt != nil {
		return nil
	}

	err = s.sendInvitation(middleware.WithTenantID(ctx, inv.TenantID), inv)
	if errors.Is(err, mailer.ErrNotConfigured) {
		slog.WarnContext(ctx, "invitation email skipped, mailer not configured", "invitation_id", inv.ID)
		return nil
	}
	return err
}

// Accept completes an invitation. The invited address becomes a user, or
// the existing user with that address is reused, and receives the
// invitation's roles. An invitation is accepted once.
func (s *InvitationService) Accept(ctx context.Context, req user.AcceptRequest) (*user.User, error) {
	if strings.TrimSpace(req.Token) == "" {
		return nil, fmt.Errorf("%w: token is required", domain.ErrValidation)
	}
	inv, err := s.store.GetInvitationByToken(ctx, req.Token)
	if err != nil {
		return nil, err
	}
	if !inv.Pending() {
		return nil, user.ErrInvitationUsed
	}
	ctx = middleware.WithTenantID(ctx, inv.TenantID)

	u, created, err := s.userFor(ctx, inv, req.Password)
	if err != nil {
		return nil, err
	}

	roleIDs := inv.RoleIDs
	if created {
		roleIDs = append(roleIDs, s.defaultRoleIDs(ctx)...)
	}
	for _, id := range roleIDs {
		if err := s.store.AssignRole(ctx, user.RoleAssignment{UserID: u.ID, RoleID: id, TenantID: inv.TenantID}); err != nil {
			return nil, err
		}
	}
	if err := s.store.MarkInvitationAccepted(ctx, inv.ID); err != nil {
		return nil, err
	}
	if err := s.perms.Invalidate(ctx, u.ID, inv.TenantID); err != nil {
		slog.WarnContext(ctx, "invalidate permissions after invitation failed", "user_id", u.ID, "error", err)
	}

	if s.mail != nil {
		data := map[string]any{"FirstName": u.FirstName}
		if t, err := s.store.GetTenant(ctx, inv.TenantID); err == nil {
			data["TenantName"] = t.Name
		}
		if err := s.mail.SendEmail(ctx, u.Email, mailer.TemplateWelcome, data); err != nil && !errors.Is(err, mailer.ErrNotConfigured) {
			slog.WarnContext(ctx, "welcome email failed", "user_id", u.ID, "error", err)
		}
	}

	slog.InfoContext(ctx, "invitation accepted", "invitation_id", inv.ID, "user_id", u.ID, "new_user", created)
	return u, nil
}

func (s *InvitationService) userFor(ctx context.Context, inv *user.Invitation, password string) (*user.User, bool, error) {
	u, err := s.store.GetUserByEmail(ctx, inv.Email)
	if err == nil {
		if !u.Active {
			return nil, false, fmt.Errorf("account is disabled: %w", domain.ErrUnauthorized)
		}
		return u, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}

	if err := user.ValidatePassword(password); err != nil {
		return nil, false, invalid(err)
	}
	hash, err := s.auth.hashPassword(password)
	if err != nil {
		return nil, false, err
	}
	u = &user.User{
		ID:           generateID(),
		Email:        inv.Email,
		FirstName:    inv.FirstName,
		LastName:     inv.LastName,
		PasswordHash: hash,
		Active:       true,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, false, fmt.Errorf("create user: %w", err)
	}
	return u, true, nil
}

// defaultRoleIDs lists the roles given to every new user of the tenant.
func (s *InvitationService) defaultRoleIDs(ctx context.Context) []string {
	roles, err := s.store.ListRoles(ctx)
	if err != nil {
		slog.WarnContext(ctx, "list default roles failed", "error", err)
		return nil
	}
	var ids []string
	for _, r := range roles {
		if r.AssignToNewUsers {
			ids = append(ids, r.ID)
		}
	}
	return ids
}
