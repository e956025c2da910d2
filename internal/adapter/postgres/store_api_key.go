package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Strob0t/backoffice/internal/domain/user"
)

const apiKeyColumns = `id, tenant_id, alias, prefix, key_hash, active, entities, created_by_user_id, expires_at, created_at`

func scanAPIKey(row scannable) (user.APIKey, error) {
	var key user.APIKey
	var entitiesJSON []byte
	var createdBy *string
	var expiresAt sql.NullTime
	if err := row.Scan(&key.ID, &key.TenantID, &key.Alias, &key.Prefix, &key.KeyHash, &key.Active,
		&entitiesJSON, &createdBy, &expiresAt, &key.CreatedAt); err != nil {
		return key, err
	}
	if len(entitiesJSON) > 0 {
		if err := json.Unmarshal(entitiesJSON, &key.Entities); err != nil {
			return key, fmt.Errorf("decode api key entities: %w", err)
		}
	}
	key.Entities = orEmpty(key.Entities)
	key.CreatedByUserID = deref(createdBy)
	if expiresAt.Valid {
		key.ExpiresAt = expiresAt.Time
	}
	return key, nil
}

func (s *Store) CreateAPIKey(ctx context.Context, key *user.APIKey) error {
	ensureID(&key.ID)
	key.CreatedAt = time.Now().UTC()
	entitiesJSON, err := json.Marshal(orEmpty(key.Entities))
	if err != nil {
		return fmt.Errorf("marshal api key entities: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO api_keys (id, tenant_id, alias, prefix, key_hash, active, entities, created_by_user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		key.ID, key.TenantID, key.Alias, key.Prefix, key.KeyHash, key.Active, entitiesJSON,
		nullIfEmpty(key.CreatedByUserID), nullTime(key.ExpiresAt), key.CreatedAt,
	)
	if err != nil {
		return conflictWrap(err, "create api key")
	}
	return nil
}

// GetAPIKeyByHash looks the key up across tenants; the caller checks the
// tenant binding.
func (s *Store) GetAPIKeyByHash(ctx context.Context, keyHash string) (*user.APIKey, error) {
	key, err := scanAPIKey(s.pool.QueryRow(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash = $1`, keyHash))
	if err != nil {
		return nil, notFoundWrap(err, "get api key")
	}
	return &key, nil
}

func (s *Store) ListAPIKeys(ctx context.Context) ([]user.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE tenant_id = $1 ORDER BY created_at`, tenantFromCtx(ctx))
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []user.APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, key)
	}
	return orEmpty(keys), rows.Err()
}

func (s *Store) DeleteAPIKey(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM api_keys WHERE id = $1 AND tenant_id = $2`, id, tenantFromCtx(ctx))
	return execExpectOne(tag, err, "delete api key %s", id)
}
