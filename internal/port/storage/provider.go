// Package storage defines the object storage port used to persist media.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotConfigured is returned by providers that cannot store anything.
var ErrNotConfigured = errors.New("storage: not configured")

// File is an object to upload.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Provider stores files in a bucket and returns their public URL.
type Provider interface {
	// Name returns the unique identifier of the provider (e.g. "supabase").
	Name() string

	// Upload stores f under key and returns its public URL.
	Upload(ctx context.Context, bucket, key string, f File) (publicURL string, err error)

	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, bucket, key string) error
}

// Factory is a constructor function that creates a new Provider instance.
type Factory func(config map[string]string) (Provider, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a provider factory available by name.
// It is typically called from an init() function in the adapter package.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("storage: duplicate registration for %q", name))
	}
	factories[name] = factory
}

// New creates a Provider by name using the registered factory.
func New(name string, config map[string]string) (Provider, error) {
	mu.RLock()
	factory, ok := factories[name]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("storage: unknown provider %q", name)
	}
	return factory(config)
}

// Available returns the names of all registered providers, sorted.
func Available() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
