package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Strob0t/backoffice/internal/domain/user"
)

const invitationColumns = `id, tenant_id, email, first_name, last_name, role_ids, token, invited_by_user_id, sent_at, accepted_at, created_at`

func scanInvitation(row scannable) (user.Invitation, error) {
	var inv user.Invitation
	var invitedBy *string
	err := row.Scan(&inv.ID, &inv.TenantID, &inv.Email, &inv.FirstName, &inv.LastName, &inv.RoleIDs,
		&inv.Token, &invitedBy, &inv.SentAt, &inv.AcceptedAt, &inv.CreatedAt)
	inv.InvitedByUserID = deref(invitedBy)
	inv.RoleIDs = orEmpty(inv.RoleIDs)
	return inv, err
}

func (s *Store) CreateInvitation(ctx context.Context, inv *user.Invitation) error {
	ensureID(&inv.ID)
	inv.CreatedAt = time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO invitations (id, tenant_id, email, first_name, last_name, role_ids, token, invited_by_user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		inv.ID, inv.TenantID, inv.Email, inv.FirstName, inv.LastName, pgTextArray(inv.RoleIDs),
		inv.Token, nullIfEmpty(inv.InvitedByUserID), inv.CreatedAt)
	if err != nil {
		return conflictWrap(err, "create invitation for %s", inv.Email)
	}
	return nil
}

func (s *Store) GetInvitation(ctx context.Context, id string) (*user.Invitation, error) {
	inv, err := scanInvitation(s.pool.QueryRow(ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundWrap(err, "get invitation %s", id)
	}
	return &inv, nil
}

func (s *Store) GetInvitationByToken(ctx context.Context, token string) (*user.Invitation, error) {
	inv, err := scanInvitation(s.pool.QueryRow(ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE token = $1`, token))
	if err != nil {
		return nil, notFoundWrap(err, "get invitation by token")
	}
	return &inv, nil
}

func (s *Store) MarkInvitationSent(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE invitations SET sent_at = now() WHERE id = $1`, id)
	return execExpectOne(tag, err, "mark invitation sent %s", id)
}

// MarkInvitationAccepted only transitions a pending invitation, so a token
// is accepted at most once.
func (s *Store) MarkInvitationAccepted(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE invitations SET accepted_at = now() WHERE id = $1 AND accepted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("mark invitation accepted %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark invitation accepted %s: %w", id, user.ErrInvitationUsed)
	}
	return nil
}
