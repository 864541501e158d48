package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flockdir/photoflow/internal/domain"
)

func TestMemoryUploadStoreLifecycle(t *testing.T) {
	s := NewMemoryUploadStore()
	ctx := context.Background()
	now := time.Now().UTC()

	if err := s.Create(ctx, domain.Upload{
		ID:        "up-1",
		ListingID: "church-1",
		Status:    domain.UploadStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		t.Fatalf("create upload: %v", err)
	}
	if err := s.Create(ctx, domain.Upload{ID: "up-1"}); err == nil {
		t.Fatal("expected duplicate create to fail")
	}

	if _, err := s.UpdateStatus(ctx, "up-1", domain.UploadStatusQueued); err != nil {
		t.Fatalf("update status: %v", err)
	}

	upload, err := s.Finish(ctx, "up-1", domain.UploadStatusPublished, "churches/a.jpg", "https://cdn/a.jpg")
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if upload.Status != domain.UploadStatusPublished || upload.PublicURL != "https://cdn/a.jpg" {
		t.Fatalf("unexpected upload after finish: %+v", upload)
	}

	got, ok, err := s.Get(ctx, "up-1")
	if err != nil || !ok {
		t.Fatalf("get upload ok=%v err=%v", ok, err)
	}
	if got.ObjectKey != "churches/a.jpg" {
		t.Fatalf("expected object key churches/a.jpg, got %s", got.ObjectKey)
	}

	if _, err := s.UpdateStatus(ctx, "missing", domain.UploadStatusQueued); !errors.Is(err, ErrUploadNotFound) {
		t.Fatalf("expected ErrUploadNotFound, got %v", err)
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	s, closeFn, err := Open(context.Background(), "memory", "")
	if err != nil {
		t.Fatalf("open memory store: %v", err)
	}
	defer closeFn()
	if _, ok := s.(*MemoryUploadStore); !ok {
		t.Fatalf("expected *MemoryUploadStore, got %T", s)
	}

	if _, _, err := Open(context.Background(), "sqlite", ""); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}
