package user

import "errors"

// LoginRequest is the input for signing in with email and password.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"` //nolint:gosec // request field, not a hardcoded secret
}

// Validate checks that the LoginRequest has all required fields.
func (r *LoginRequest) Validate() error {
	if r.Email == "" || r.Password == "" {
		return errors.New("email and password are required")
	}
	return nil
}

// LoginResponse is returned after a successful login.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	User        User   `json:"user"`
}

// TokenClaims is the payload of a signed access token. Tokens are not bound
// to a tenant: the tenant comes from the request and permissions are resolved
// per tenant.
type TokenClaims struct {
	UserID       string `json:"sub"`
	Email        string `json:"email"`
	IsSuperAdmin bool   `json:"super_admin,omitempty"`
	IssuedAt     int64  `json:"iat"`
	Expiry       int64  `json:"exp"`
	JTI          string `json:"jti"`
	Audience     string `json:"aud"`
	Issuer       string `json:"iss"`
}

// ChangePasswordRequest is the input for changing one's own password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"` //nolint:gosec // request field, not a hardcoded secret
	NewPassword string `json:"new_password"` //nolint:gosec // request field, not a hardcoded secret
}

// Validate checks the new password against the policy.
func (r *ChangePasswordRequest) Validate() error {
	if r.OldPassword == "" {
		return errors.New("current password is required")
	}
	return ValidatePassword(r.NewPassword)
}
