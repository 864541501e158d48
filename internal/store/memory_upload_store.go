package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flockdir/photoflow/internal/domain"
)

type MemoryUploadStore struct {
	mu      sync.RWMutex
	uploads map[string]domain.Upload
}

func NewMemoryUploadStore() *MemoryUploadStore {
	return &MemoryUploadStore{
		uploads: make(map[string]domain.Upload),
	}
}

func (s *MemoryUploadStore) Create(_ context.Context, upload domain.Upload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.uploads[upload.ID]; exists {
		return fmt.Errorf("upload %s already exists", upload.ID)
	}
	s.uploads[upload.ID] = upload
	return nil
}

func (s *MemoryUploadStore) Get(_ context.Context, id string) (domain.Upload, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	upload, ok := s.uploads[id]
	return upload, ok, nil
}

func (s *MemoryUploadStore) UpdateStatus(_ context.Context, id, status string) (domain.Upload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	upload, ok := s.uploads[id]
	if !ok {
		return domain.Upload{}, ErrUploadNotFound
	}

	upload.Status = status
	upload.UpdatedAt = time.Now().UTC()
	s.uploads[id] = upload
	return upload, nil
}

func (s *MemoryUploadStore) Finish(_ context.Context, id, status, objectKey, publicURL string) (domain.Upload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	upload, ok := s.uploads[id]
	if !ok {
		return domain.Upload{}, ErrUploadNotFound
	}

	upload.Status = status
	upload.ObjectKey = objectKey
	upload.PublicURL = publicURL
	upload.UpdatedAt = time.Now().UTC()
	s.uploads[id] = upload
	return upload, nil
}
