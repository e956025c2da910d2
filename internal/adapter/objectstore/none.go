package objectstore

import (
	"context"

	"github.com/Strob0t/backoffice/internal/port/storage"
)

const noneName = "none"

// None is selected when no storage credentials are configured. Media then
// stays inline and migration tasks fail with storage.ErrNotConfigured.
type None struct{}

// Name returns the provider identifier.
func (None) Name() string { return noneName }

// Upload always fails with storage.ErrNotConfigured.
func (None) Upload(context.Context, string, string, storage.File) (string, error) {
	return "", storage.ErrNotConfigured
}

// Delete always fails with storage.ErrNotConfigured.
func (None) Delete(context.Context, string, string) error {
	return storage.ErrNotConfigured
}
