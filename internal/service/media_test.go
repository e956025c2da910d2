package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/backoffice/internal/domain/row"
	"github.com/Strob0t/backoffice/internal/media"
	"github.com/Strob0t/backoffice/internal/port/messagequeue"
	"github.com/Strob0t/backoffice/internal/port/storage"
	"github.com/Strob0t/backoffice/internal/resilience"
)

// fakeProvider stores uploads in memory.
type fakeProvider struct {
	mu      sync.Mutex
	objects map[string]storage.File
	failOn  string // file name whose upload fails
	err     error
	deleted []string
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Upload(_ context.Context, bucket, key string, f storage.File) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	if f.Name == p.failOn {
		return "", errors.New("upload rejected")
	}
	if p.objects == nil {
		p.objects = make(map[string]storage.File)
	}
	p.objects[bucket+"/"+key] = f
	return "https://cdn.example.com/" + bucket + "/" + key, nil
}

func (p *fakeProvider) Delete(_ context.Context, bucket, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.deleted = append(p.deleted, bucket+"/"+key)
	delete(p.objects, bucket+"/"+key)
	return nil
}

func mediaTask(t *testing.T, f *rowFixture, files []row.Media) (*RowView, []byte) {
	t.Helper()
	v := f.create(t, admin, map[string]any{"name": "Ada", "cv": files})
	if len(f.queue.published) == 0 {
		t.Fatal("no media task published")
	}
	return v, f.queue.published[len(f.queue.published)-1].data
}

func TestMediaService_MigratesInlineFiles(t *testing.T) {
	f := newRowFixture(t)
	v, task := mediaTask(t, f, []row.Media{
		{Name: "cv.pdf", Type: "application/pdf", File: "aGVsbG8="},
		{Name: "photo.png", File: "data:image/png;base64,aGk="},
		{Name: "linked.txt", PublicURL: "https://elsewhere.example.com/linked.txt"},
	})

	provider := &fakeProvider{}
	svc := NewMediaService(f.store, provider, resilience.NewBreaker("storage", 3, time.Minute), media.NewPool(2), "media")
	if err := svc.HandleMigrateTask(context.Background(), messagequeue.SubjectMediaMigrate, task); err != nil {
		t.Fatal(err)
	}

	stored, _ := f.store.GetRow(tenantCtx(), v.ID)
	cv, _ := stored.GetValue(f.candidate.Properties[3].ID)
	if len(cv.Media) != 3 {
		t.Fatalf("media = %+v", cv.Media)
	}
	for _, m := range cv.Media[:2] {
		if m.NeedsMigration() || m.File != "" || m.StorageBucket != "media" ||
			!strings.HasPrefix(m.StorageKey, testTenant+"/"+f.candidate.ID+"/"+v.ID+"/") {
			t.Errorf("not migrated: %+v", m)
		}
	}
	if cv.Media[1].Type != "image/png" || !strings.HasSuffix(cv.Media[1].StorageKey, ".png") {
		t.Errorf("photo = %+v", cv.Media[1])
	}
	if cv.Media[2].PublicURL != "https://elsewhere.example.com/linked.txt" || cv.Media[2].StorageKey != "" {
		t.Errorf("already-public file touched: %+v", cv.Media[2])
	}
	if len(provider.objects) != 2 {
		t.Errorf("uploads = %d, want 2", len(provider.objects))
	}
}

func TestMediaService_PartialFailureKeepsUploadedAndRetries(t *testing.T) {
	f := newRowFixture(t)
	v, task := mediaTask(t, f, []row.Media{
		{Name: "ok.pdf", File: "aGVsbG8="},
		{Name: "bad.pdf", File: "aGVsbG8="},
	})
	provider := &fakeProvider{failOn: "bad.pdf"}
	svc := NewMediaService(f.store, provider, nil, nil, "media")

	if err := svc.HandleMigrateTask(context.Background(), messagequeue.SubjectMediaMigrate, task); err == nil {
		t.Fatal("expected an error so the queue retries")
	}
	stored, _ := f.store.GetRow(tenantCtx(), v.ID)
	cv, _ := stored.GetValue(f.candidate.Properties[3].ID)
	migrated := 0
	for _, m := range cv.Media {
		if m.PublicURL != "" {
			migrated++
		}
	}
	if len(cv.Media) != 2 {
		t.Fatalf("media = %+v", cv.Media)
	}
	// errgroup cancels siblings after the first failure, so the good file
	// may or may not have made it; the bad one never does.
	if cv.Media[1].PublicURL != "" || migrated > 1 {
		t.Errorf("media = %+v", cv.Media)
	}

	provider.failOn = ""
	if err := svc.HandleMigrateTask(context.Background(), messagequeue.SubjectMediaMigrate, task); err != nil {
		t.Fatalf("retry: %v", err)
	}
	stored, _ = f.store.GetRow(tenantCtx(), v.ID)
	cv, _ = stored.GetValue(f.candidate.Properties[3].ID)
	for _, m := range cv.Media {
		if m.NeedsMigration() {
			t.Errorf("still inline after retry: %s", m.Name)
		}
	}
}

func TestMediaService_NoStorageKeepsInline(t *testing.T) {
	f := newRowFixture(t)
	v, task := mediaTask(t, f, []row.Media{{Name: "cv.pdf", File: "aGVsbG8="}})
	svc := NewMediaService(f.store, &fakeProvider{err: storage.ErrNotConfigured}, nil, nil, "media")

	if err := svc.HandleMigrateTask(context.Background(), messagequeue.SubjectMediaMigrate, task); err != nil {
		t.Fatalf("unconfigured storage should not be retried: %v", err)
	}
	stored, _ := f.store.GetRow(tenantCtx(), v.ID)
	cv, _ := stored.GetValue(f.candidate.Properties[3].ID)
	if !cv.Media[0].NeedsMigration() {
		t.Error("file should stay inline")
	}
}

func TestMediaService_DeletedRowIsDone(t *testing.T) {
	f := newRowFixture(t)
	task, _ := json.Marshal(messagequeue.MediaMigratePayload{TenantID: testTenant, RowID: generateID(), PropertyID: "p"})
	svc := NewMediaService(f.store, &fakeProvider{}, nil, nil, "media")
	if err := svc.HandleMigrateTask(context.Background(), messagequeue.SubjectMediaMigrate, task); err != nil {
		t.Errorf("err = %v, want nil for a deleted row", err)
	}
}

// migratedRow creates a candidate with one inline CV and migrates it, with
// the media service wired as the row purger.
func migratedRow(t *testing.T, f *rowFixture, provider *fakeProvider) (*RowView, row.Media) {
	t.Helper()
	v, task := mediaTask(t, f, []row.Media{{Name: "cv.pdf", Type: "application/pdf", File: "aGVsbG8="}})
	svc := NewMediaService(f.store, provider, nil, media.NewPool(2), "media")
	f.svc.SetMediaPurger(svc)
	if err := svc.HandleMigrateTask(context.Background(), messagequeue.SubjectMediaMigrate, task); err != nil {
		t.Fatal(err)
	}
	stored, _ := f.store.GetRow(tenantCtx(), v.ID)
	cv, _ := stored.GetValue(f.candidate.Properties[3].ID)
	if len(cv.Media) != 1 || cv.Media[0].StorageKey == "" {
		t.Fatalf("media = %+v", cv.Media)
	}
	return v, cv.Media[0]
}

func TestRowService_UpdatePurgesReplacedMedia(t *testing.T) {
	f := newRowFixture(t)
	provider := &fakeProvider{}
	v, old := migratedRow(t, f, provider)

	// Keeping the stored file leaves it alone.
	_, err := f.svc.Update(tenantCtx(), admin, "candidates", v.ID, row.UpdateRequest{
		Values: map[string]row.RawValue{"cv": raw([]row.Media{old})},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(provider.deleted) != 0 {
		t.Fatalf("deleted = %v, want none", provider.deleted)
	}

	_, err = f.svc.Update(tenantCtx(), admin, "candidates", v.ID, row.UpdateRequest{
		Values: map[string]row.RawValue{"cv": raw([]row.Media{{Name: "new.pdf", File: "aGk="}})},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(provider.deleted) != 1 || provider.deleted[0] != "media/"+old.StorageKey {
		t.Errorf("deleted = %v, want [media/%s]", provider.deleted, old.StorageKey)
	}
}

func TestRowService_UpdateNeverPurgesForeignKeys(t *testing.T) {
	f := newRowFixture(t)
	provider := &fakeProvider{}
	v, _ := migratedRow(t, f, provider)

	forged := []row.Media{
		{Name: "a.pdf", PublicURL: "https://cdn.example.com/a.pdf", StorageBucket: "media", StorageKey: "other-tenant/e/r/a.pdf"},
		{Name: "b.pdf", PublicURL: "https://cdn.example.com/b.pdf", StorageBucket: "media", StorageKey: testTenant + "/" + f.candidate.ID + "/another-row/b.pdf"},
	}
	ctx := tenantCtx()
	if _, err := f.svc.Update(ctx, admin, "candidates", v.ID, row.UpdateRequest{
		Values: map[string]row.RawValue{"cv": raw(forged)},
	}); err != nil {
		t.Fatal(err)
	}
	provider.deleted = nil
	if _, err := f.svc.Update(ctx, admin, "candidates", v.ID, row.UpdateRequest{
		Values: map[string]row.RawValue{"cv": raw([]row.Media{})},
	}); err != nil {
		t.Fatal(err)
	}
	if len(provider.deleted) != 0 {
		t.Errorf("deleted = %v, want none", provider.deleted)
	}
}

func TestRowService_DeletePurgesMedia(t *testing.T) {
	f := newRowFixture(t)
	provider := &fakeProvider{}
	v, old := migratedRow(t, f, provider)

	if _, err := f.svc.Delete(tenantCtx(), admin, "candidates", v.ID); err != nil {
		t.Fatal(err)
	}
	if len(provider.deleted) != 1 || provider.deleted[0] != "media/"+old.StorageKey {
		t.Errorf("deleted = %v, want [media/%s]", provider.deleted, old.StorageKey)
	}
	if len(provider.objects) != 0 {
		t.Errorf("objects left = %d", len(provider.objects))
	}
}

func TestRowService_PurgeFailureKeepsChange(t *testing.T) {
	f := newRowFixture(t)
	provider := &fakeProvider{}
	v, _ := migratedRow(t, f, provider)

	provider.err = errors.New("storage down")
	if _, err := f.svc.Delete(tenantCtx(), admin, "candidates", v.ID); err != nil {
		t.Fatalf("delete should succeed when purging fails: %v", err)
	}
	if _, err := f.store.GetRow(tenantCtx(), v.ID); err == nil {
		t.Error("row still stored")
	}
}

func TestMediaService_Purge(t *testing.T) {
	provider := &fakeProvider{}
	svc := NewMediaService(&mockStore{}, provider, resilience.NewBreaker("storage", 3, time.Minute), nil, "media")

	err := svc.Purge(context.Background(), []row.Media{
		{Name: "inline.pdf", File: "aGk="},
		{Name: "linked.pdf", PublicURL: "https://elsewhere.example.com/linked.pdf"},
		{Name: "a.pdf", StorageKey: "t/e/r/a.pdf"},
		{Name: "b.pdf", StorageBucket: "media", StorageKey: "t/e/r/b.pdf"},
		{Name: "c.pdf", StorageBucket: "other", StorageKey: "t/e/r/c.pdf"},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"media/t/e/r/a.pdf", "media/t/e/r/b.pdf"}
	if strings.Join(provider.deleted, ",") != strings.Join(want, ",") {
		t.Errorf("deleted = %v, want %v", provider.deleted, want)
	}

	unconfigured := NewMediaService(&mockStore{}, &fakeProvider{err: storage.ErrNotConfigured}, nil, nil, "media")
	if err := unconfigured.Purge(context.Background(), []row.Media{{StorageKey: "t/e/r/a.pdf"}}); err != nil {
		t.Errorf("unconfigured storage: %v", err)
	}

	failing := NewMediaService(&mockStore{}, &fakeProvider{err: errors.New("boom")}, nil, nil, "media")
	if err := failing.Purge(context.Background(), []row.Media{{StorageKey: "t/e/r/a.pdf"}, {StorageKey: "t/e/r/b.pdf"}}); err == nil {
		t.Error("expected joined delete errors")
	}
}
