// Package objectstore implements the storage port: a Supabase Storage client
// for media uploads and a provider that rejects uploads when nothing is
// configured.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Strob0t/backoffice/internal/port/storage"
)

const supabaseName = "supabase"

// Supabase talks to the Supabase Storage REST API.
type Supabase struct {
	baseURL string
	key     string
	client  *http.Client
}

// NewSupabase creates a client for the project at baseURL authenticated with
// a service key.
func NewSupabase(baseURL, key string, client *http.Client) (*Supabase, error) {
	if baseURL == "" || key == "" {
		return nil, errors.New("supabase: url and key are required")
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Supabase{baseURL: strings.TrimRight(baseURL, "/"), key: key, client: client}, nil
}

// Name returns the provider identifier.
func (s *Supabase) Name() string { return supabaseName }

// Upload stores f under bucket/key, overwriting any existing object, and
// returns its public URL.
func (s *Supabase) Upload(ctx context.Context, bucket, key string, f storage.File) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.objectURL("object", bucket, key), bytes.NewReader(f.Data))
	if err != nil {
		return "", fmt.Errorf("supabase upload %s/%s: %w", bucket, key, err)
	}
	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")

	if err := s.do(req); err != nil {
		return "", fmt.Errorf("supabase upload %s/%s: %w", bucket, key, err)
	}
	return s.objectURL("object/public", bucket, key), nil
}

// Delete removes bucket/key. Deleting a missing object is not an error.
func (s *Supabase) Delete(ctx context.Context, bucket, key string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.objectURL("object", bucket, key), http.NoBody)
	if err != nil {
		return fmt.Errorf("supabase delete %s/%s: %w", bucket, key, err)
	}
	if err := s.do(req); err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusNotFound {
			return nil
		}
		return fmt.Errorf("supabase delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *Supabase) objectURL(kind, bucket, key string) string {
	segments := strings.Split(key, "/")
	for i := range segments {
		segments[i] = url.PathEscape(segments[i])
	}
	return s.baseURL + "/storage/v1/" + kind + "/" + url.PathEscape(bucket) + "/" + strings.Join(segments, "/")
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.code, e.body)
}

func (s *Supabase) do(req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("apikey", s.key)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
