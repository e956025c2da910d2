package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	cfotel "github.com/Strob0t/backoffice/internal/adapter/otel"
	"github.com/Strob0t/backoffice/internal/domain"
	"github.com/Strob0t/backoffice/internal/domain/row"
	"github.com/Strob0t/backoffice/internal/media"
	"github.com/Strob0t/backoffice/internal/middleware"
	"github.com/Strob0t/backoffice/internal/port/database"
	"github.com/Strob0t/backoffice/internal/port/messagequeue"
	"github.com/Strob0t/backoffice/internal/port/storage"
	"github.com/Strob0t/backoffice/internal/resilience"
)

// MediaService moves inline media payloads of committed rows to object
// storage and replaces them with the public URL.
type MediaService struct {
	store    database.RowStore
	provider storage.Provider
	breaker  *resilience.Breaker
	pool     *media.Pool
	bucket   string
	metrics  *cfotel.Metrics
}

// NewMediaService creates a MediaService uploading into bucket. breaker
// and pool may be nil.
func NewMediaService(store database.RowStore, provider storage.Provider, breaker *resilience.Breaker, pool *media.Pool, bucket string) *MediaService {
	return &MediaService{store: store, provider: provider, breaker: breaker, pool: pool, bucket: bucket}
}

var _ MediaPurger = (*MediaService)(nil)

// SetMetrics enables task counting.
func (s *MediaService) SetMetrics(m *cfotel.Metrics) { s.metrics = m }

// HandleMigrateTask processes one tasks.media.migrate message. Files are
// uploaded concurrently. Files that uploaded are kept even when others
// fail, and the error makes the queue retry the remaining ones. The row
// stays valid either way.
func (s *MediaService) HandleMigrateTask(ctx context.Context, subject string, data []byte) (err error) {
	ctx, span := cfotel.StartTaskSpan(ctx, subject)
	defer span.End()
	defer func() { s.count(ctx, err) }()

	var p messagequeue.MediaMigratePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode media task: %w", err)
	}
	ctx = middleware.WithTenantID(ctx, p.TenantID)

	r, err := s.store.GetRow(ctx, p.RowID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			slog.InfoContext(ctx, "media task for deleted row", "row_id", p.RowID)
			return nil
		}
		return err
	}
	v, ok := r.GetValue(p.PropertyID)
	if !ok {
		return nil
	}

	files := append([]row.Media(nil), v.Media...)
	pending := 0
	g, gctx := errgroup.WithContext(ctx)
	for i := range files {
		if !files[i].NeedsMigration() {
			continue
		}
		pending++
		g.Go(func() error {
			return s.pool.Run(gctx, func() error {
				return s.migrate(gctx, r, &files[i])
			})
		})
	}
	if pending == 0 {
		return nil
	}
	uploadErr := g.Wait()

	migrated := *v
	migrated.Media = files
	if err := s.store.UpsertRowValue(ctx, r.ID, &migrated); err != nil {
		return errors.Join(uploadErr, fmt.Errorf("store migrated media of row %s: %w", r.ID, err))
	}
	if uploadErr != nil {
		return fmt.Errorf("migrate media of row %s: %w", r.ID, uploadErr)
	}
	slog.InfoContext(ctx, "media migrated", "row_id", r.ID, "property_id", p.PropertyID, "files", pending)
	return nil
}

// migrate uploads one inline file and points it at its public URL.
func (s *MediaService) migrate(ctx context.Context, r *row.Row, f *row.Media) error {
	body, contentType, err := media.Decode(f.File, f.Type)
	if err != nil {
		// An undecodable payload never succeeds; leave it inline.
		slog.WarnContext(ctx, "media payload not decodable", "row_id", r.ID, "file", f.Name, "error", err)
		return nil
	}
	if f.ID == "" {
		f.ID = generateID()
	}
	key := media.ObjectKey(r.TenantID, r.EntityID, r.ID, f.ID, f.Name, contentType)

	var publicURL string
	upload := func(ctx context.Context) error {
		var err error
		publicURL, err = s.provider.Upload(ctx, s.bucket, key, storage.File{Name: f.Name, ContentType: contentType, Data: body})
		return err
	}
	if s.breaker != nil {
		err = s.breaker.Execute(ctx, upload)
	} else {
		err = upload(ctx)
	}
	if errors.Is(err, storage.ErrNotConfigured) {
		slog.WarnContext(ctx, "media kept inline, no object storage configured", "row_id", r.ID, "file", f.Name)
		return nil
	}
	if err != nil {
		return fmt.Errorf("upload %s: %w", f.Name, err)
	}

	f.PublicURL = publicURL
	f.StorageBucket = s.bucket
	f.StorageKey = key
	f.File = ""
	if f.Type == "" {
		f.Type = contentType
	}
	return nil
}

// Purge deletes the stored objects of files that were migrated into the
// media bucket. Files still held inline have nothing to delete. Every file
// is attempted; the failures are joined.
func (s *MediaService) Purge(ctx context.Context, files []row.Media) error {
	var errs []error
	for _, f := range files {
		if f.StorageKey == "" || (f.StorageBucket != "" && f.StorageBucket != s.bucket) {
			continue
		}
		del := func(ctx context.Context) error { return s.provider.Delete(ctx, s.bucket, f.StorageKey) }
		var err error
		if s.breaker != nil {
			err = s.breaker.Execute(ctx, del)
		} else {
			err = del(ctx)
		}
		if err != nil && !errors.Is(err, storage.ErrNotConfigured) {
			errs = append(errs, fmt.Errorf("delete %s/%s: %w", s.bucket, f.StorageKey, err))
		}
	}
	return errors.Join(errs...)
}

func (s *MediaService) count(ctx context.Context, err error) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.TasksProcessed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("task", messagequeue.SubjectMediaMigrate),
		attribute.String("status", status)))
}
