package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"

	"github.com/Strob0t/backoffice/internal/domain"
	"github.com/Strob0t/backoffice/internal/domain/permission"
	"github.com/Strob0t/backoffice/internal/middleware"
)

// invalid marks a plain validation message as domain.ErrValidation.
func invalid(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s", domain.ErrValidation, err.Error())
}

// requireActor fails with ErrUnauthorized when no actor is present.
func requireActor(a *permission.Actor) error {
	if a == nil {
		return fmt.Errorf("no actor: %w", domain.ErrUnauthorized)
	}
	return nil
}

// creatorID is the user recorded as creator of a record made by a. API
// keys and the injected development actor have no user row to point at.
func creatorID(a *permission.Actor) string {
	if a == nil || a.APIKeyID != "" || a.UserID == middleware.DevUserID {
		return ""
	}
	return a.UserID
}

func hashSHA256(data string) string {
	h := sha256.Sum256([]byte(data))
	return hex.EncodeToString(h[:])
}

func generateRandomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func generateID() string {
	return uuid.NewString()
}
