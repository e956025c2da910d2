package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Strob0t/backoffice/internal/config"
	"github.com/Strob0t/backoffice/internal/domain"
	"github.com/Strob0t/backoffice/internal/domain/permission"
	"github.com/Strob0t/backoffice/internal/domain/user"
	"github.com/Strob0t/backoffice/internal/middleware"
	"github.com/Strob0t/backoffice/internal/port/database"
	"github.com/Strob0t/backoffice/internal/port/mailer"
)

const (
	tokenAudience = "backoffice"
	tokenIssuer   = "backoffice-core"
)

var errInvalidCredentials = fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)

// AuthService handles passwords, access tokens and API keys, and turns
// credentials into actors for the auth middleware.
type AuthService struct {
	store  database.Store
	perms  *PermissionService
	mail   mailer.Mailer
	cfg    *config.Auth
	secret []byte
	now    func() time.Time
}

var _ middleware.Authenticator = (*AuthService)(nil)

// NewAuthService creates a new authentication service. mail may be nil.
func NewAuthService(store database.Store, perms *PermissionService, mail mailer.Mailer, cfg *config.Auth) *AuthService {
	return &AuthService{
		store:  store,
		perms:  perms,
		mail:   mail,
		cfg:    cfg,
		secret: []byte(cfg.JWTSecret),
		now:    time.Now,
	}
}

// Register creates a new user with a bcrypt-hashed password.
func (s *AuthService) Register(ctx context.Context, req *user.CreateRequest) (*user.User, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := req.Validate(); err != nil {
		return nil, invalid(err)
	}

	hash, err := s.hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	u := &user.User{
		ID:           generateID(),
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PasswordHash: hash,
		IsSuperAdmin: req.IsSuperAdmin,
		Active:       true,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// Login authenticates a user and returns a signed access token.
func (s *AuthService) Login(ctx context.Context, req user.LoginRequest) (*user.LoginResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, invalid(err)
	}

	u, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if !u.Active {
		return nil, fmt.Errorf("account is disabled: %w", domain.ErrUnauthorized)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return nil, errInvalidCredentials
	}

	token, err := s.signJWT(u)
	if err != nil {
		return nil, fmt.Errorf("sign jwt: %w", err)
	}
	return &user.LoginResponse{
		AccessToken: token,
		ExpiresIn:   int(s.cfg.AccessTokenExpiry.Seconds()),
		User:        *u,
	}, nil
}

// ChangePassword verifies the old password and stores the new one. The
// notification email is best effort.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, req user.ChangePasswordRequest) error {
	if err := req.Validate(); err != nil {
		return invalid(err)
	}

	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.OldPassword)); err != nil {
		return fmt.Errorf("current password is incorrect: %w", domain.ErrValidation)
	}

	hash, err := s.hashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	if err := s.store.UpdateUserPassword(ctx, u.ID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	if s.mail != nil {
		err := s.mail.SendEmail(ctx, u.Email, mailer.TemplatePasswordChange, map[string]any{"FirstName": u.FirstName})
		if err != nil && !errors.Is(err, mailer.ErrNotConfigured) {
			slog.WarnContext(ctx, "password change email failed", "user_id", u.ID, "error", err)
		}
	}
	return nil
}

// ActorForToken verifies an access token and resolves the user's actor in
// the tenant of ctx.
func (s *AuthService) ActorForToken(ctx context.Context, token string) (*permission.Actor, error) {
	claims, err := s.verifyJWT(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnauthorized, err.Error())
	}
	return s.perms.Resolve(ctx, claims.UserID, middleware.TenantIDFromContext(ctx))
}

// ActorForAPIKey resolves an API key to an actor bound to the key's tenant,
// holding the entity permissions its grants list.
func (s *AuthService) ActorForAPIKey(ctx context.Context, rawKey string) (*permission.Actor, error) {
	key, err := s.store.GetAPIKeyByHash(ctx, hashSHA256(rawKey))
	if err != nil {
		return nil, fmt.Errorf("invalid api key: %w", domain.ErrUnauthorized)
	}
	if !key.Active {
		return nil, fmt.Errorf("api key is inactive: %w", domain.ErrUnauthorized)
	}
	if key.Expired(s.now()) {
		return nil, fmt.Errorf("api key expired: %w", domain.ErrUnauthorized)
	}
	return &permission.Actor{
		APIKeyID:    key.ID,
		TenantID:    key.TenantID,
		Permissions: key.EntityPermissions(),
	}, nil
}

// CreateAPIKey generates a new API key in the tenant of ctx. The plain key
// is only returned here.
func (s *AuthService) CreateAPIKey(ctx context.Context, a *permission.Actor, req user.CreateAPIKeyRequest) (*user.CreateAPIKeyResponse, error) {
	if err := requireActor(a); err != nil {
		return nil, err
	}
	tenantID := middleware.TenantIDFromContext(ctx)
	if tenantID == "" {
		return nil, fmt.Errorf("api keys belong to a tenant: %w", domain.ErrValidation)
	}
	if err := req.Validate(); err != nil {
		return nil, invalid(err)
	}

	grants := make([]user.EntityGrant, 0, len(req.Entities))
	for _, g := range req.Entities {
		e, err := s.store.GetEntity(ctx, g.EntityID)
		if err != nil {
			return nil, fmt.Errorf("api key entity: %w", err)
		}
		g.EntityName = e.Name
		grants = append(grants, g)
	}

	rawKey, err := generateRandomToken(32)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	plainKey := user.APIKeyPrefix + rawKey

	var expiresAt time.Time
	if req.ExpiresIn > 0 {
		expiresAt = s.now().Add(time.Duration(req.ExpiresIn) * time.Second)
	}

	key := &user.APIKey{
		ID:              generateID(),
		TenantID:        tenantID,
		Alias:           req.Alias,
		Prefix:          plainKey[:len(user.APIKeyPrefix)+8],
		KeyHash:         hashSHA256(plainKey),
		Active:          true,
		Entities:        grants,
		CreatedByUserID: creatorID(a),
		ExpiresAt:       expiresAt,
	}
	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return nil, fmt.Errorf("create api key: %w", err)
	}
	return &user.CreateAPIKeyResponse{APIKey: *key, PlainKey: plainKey}, nil
}

// ListAPIKeys returns the API keys of the tenant in ctx.
func (s *AuthService) ListAPIKeys(ctx context.Context) ([]user.APIKey, error) {
	return s.store.ListAPIKeys(ctx)
}

// DeleteAPIKey removes an API key of the tenant in ctx.
func (s *AuthService) DeleteAPIKey(ctx context.Context, id string) error {
	return s.store.DeleteAPIKey(ctx, id)
}

// ListUsers returns the users of the tenant in ctx, or every user in the
// system scope.
func (s *AuthService) ListUsers(ctx context.Context) ([]user.User, error) {
	return s.store.ListUsers(ctx)
}

// GetUser returns a user by ID.
func (s *AuthService) GetUser(ctx context.Context, id string) (*user.User, error) {
	return s.store.GetUser(ctx, id)
}

func (s *AuthService) hashPassword(password string) (string, error) {
	cost := s.cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// --- JWT implementation (HS256 with stdlib) ---

var jwtHeader = base64URLEncode([]byte(`{"alg":"HS256","typ":"JWT"}`))

func (s *AuthService) signJWT(u *user.User) (string, error) {
	now := s.now()
	claims := user.TokenClaims{
		UserID:       u.ID,
		Email:        u.Email,
		IsSuperAdmin: u.IsSuperAdmin,
		IssuedAt:     now.Unix(),
		Expiry:       now.Add(s.cfg.AccessTokenExpiry).Unix(),
		JTI:          generateID(),
		Audience:     tokenAudience,
		Issuer:       tokenIssuer,
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}

	signingInput := jwtHeader + "." + base64URLEncode(payload)
	return signingInput + "." + s.sign(signingInput), nil
}

func (s *AuthService) sign(input string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(input))
	return base64URLEncode(mac.Sum(nil))
}

func (s *AuthService) verifyJWT(tokenStr string) (*user.TokenClaims, error) {
	parts := strings.SplitN(tokenStr, ".", 3)
	if len(parts) != 3 {
		return nil, errors.New("malformed token")
	}

	if !hmac.Equal([]byte(parts[2]), []byte(s.sign(parts[0]+"."+parts[1]))) {
		return nil, errors.New("invalid signature")
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	var claims user.TokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("unmarshal claims: %w", err)
	}

	if s.now().Unix() > claims.Expiry {
		return nil, errors.New("token expired")
	}
	if claims.Audience != tokenAudience || claims.Issuer != tokenIssuer {
		return nil, errors.New("invalid token audience or issuer")
	}
	return &claims, nil
}

func base64URLEncode(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}
