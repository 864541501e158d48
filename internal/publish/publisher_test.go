package publish

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/flockdir/photoflow/internal/domain"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublish_WritesJPEGUnderFreshKey(t *testing.T) {
	store := newMemoryObjectStore()
	p := newTestPublisher(store)

	res, err := p.Publish(context.Background(), []byte("jpeg-bytes"))
	require.NoError(t, err)

	assert.Equal(t, "churches/church-1790000000000-abc.jpg", res.ObjectKey)
	assert.Equal(t, "https://cdn.test/churches/church-1790000000000-abc.jpg", res.URL)
	assert.False(t, res.Fallback)
	assert.Equal(t, domain.OutputMIMEType, store.contentTypes[res.ObjectKey])
	assert.Equal(t, []byte("jpeg-bytes"), store.objects[res.ObjectKey])
}

func TestPublish_DoesNotOverwrite(t *testing.T) {
	store := newMemoryObjectStore()
	store.objects["churches/church-1790000000000-abc.jpg"] = []byte("existing")

	p := newTestPublisher(store)
	tokens := []string{"abc", "def"}
	p.token = func() string {
		tok := tokens[0]
		tokens = tokens[1:]
		return tok
	}

	res, err := p.Publish(context.Background(), []byte("new"))
	require.NoError(t, err)
	assert.Equal(t, "churches/church-1790000000000-def.jpg", res.ObjectKey)
	assert.Equal(t, []byte("existing"), store.objects["churches/church-1790000000000-abc.jpg"])
}

func TestPublish_GivesUpWhenEveryKeyIsTaken(t *testing.T) {
	store := newMemoryObjectStore()
	store.objects["churches/church-1790000000000-abc.jpg"] = []byte("existing")

	_, err := newTestPublisher(store).Publish(context.Background(), []byte("new"))
	assert.ErrorIs(t, err, ErrObjectExists)
}

func TestPublishOrPlaceholder_FallsBackOnUploadFailure(t *testing.T) {
	store := newMemoryObjectStore()
	store.writeErr = errors.New("bucket unavailable")

	res, err := newTestPublisher(store).PublishOrPlaceholder(context.Background(), []byte("data"))
	assert.Error(t, err)
	assert.Equal(t, domain.PlaceholderURL, res.URL)
	assert.True(t, res.Fallback)
	assert.Empty(t, res.ObjectKey)
}

func TestPublish_RejectsEmptyData(t *testing.T) {
	_, err := newTestPublisher(newMemoryObjectStore()).Publish(context.Background(), nil)
	assert.Error(t, err)
}

func TestRemove_DeletesPublishedObject(t *testing.T) {
	store := newMemoryObjectStore()
	p := newTestPublisher(store)

	res, err := p.Publish(context.Background(), []byte("data"))
	require.NoError(t, err)
	require.NoError(t, p.Remove(context.Background(), res.ObjectKey))
	assert.NotContains(t, store.objects, res.ObjectKey)

	assert.NoError(t, p.Remove(context.Background(), ""))
}

func newTestPublisher(store *memoryObjectStore) *Publisher {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	p := NewPublisher(store, "/churches/", logger)
	p.now = func() time.Time { return time.UnixMilli(1790000000000) }
	p.token = func() string { return "abc" }
	return p
}

type memoryObjectStore struct {
	mu           sync.Mutex
	objects      map[string][]byte
	contentTypes map[string]string
	writeErr     error
}

func newMemoryObjectStore() *memoryObjectStore {
	return &memoryObjectStore{
		objects:      make(map[string][]byte),
		contentTypes: make(map[string]string),
	}
}

func (s *memoryObjectStore) EnsureBucket(context.Context) error { return nil }

func (s *memoryObjectStore) ObjectExists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok, nil
}

func (s *memoryObjectStore) WriteObject(_ context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.objects[key] = append([]byte(nil), data...)
	s.contentTypes[key] = contentType
	return nil
}

func (s *memoryObjectStore) RemoveObject(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *memoryObjectStore) PublicURL(key string) string {
	return "https://cdn.test/" + key
}
