package publish

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/flockdir/photoflow/internal/domain"
	"github.com/flockdir/photoflow/internal/storage"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var ErrObjectExists = errors.New("object already exists")

const keyAttempts = 3

type Result struct {
	ObjectKey string `json:"object_key,omitempty"`
	URL       string `json:"url"`
	Fallback  bool   `json:"fallback"`
}

// Publisher copies delivered photos to durable object storage.
type Publisher struct {
	store  storage.ObjectStore
	prefix string
	logger logrus.FieldLogger
	now    func() time.Time
	token  func() string
}

func NewPublisher(store storage.ObjectStore, prefix string, logger logrus.FieldLogger) *Publisher {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = "churches"
	}
	return &Publisher{
		store:  store,
		prefix: prefix,
		logger: logger,
		now:    time.Now,
		token:  randomToken,
	}
}

// Publish uploads data under a fresh key and returns its permanent URL.
// Existing objects are never overwritten.
func (p *Publisher) Publish(ctx context.Context, data []byte) (Result, error) {
	if p.store == nil {
		return Result{}, errors.New("object store is not configured")
	}
	if len(data) == 0 {
		return Result{}, errors.New("no image data to publish")
	}

	for attempt := 0; attempt < keyAttempts; attempt++ {
		key := p.objectKey()

		exists, err := p.store.ObjectExists(ctx, key)
		if err != nil {
			return Result{}, fmt.Errorf("check object %s: %w", key, err)
		}
		if exists {
			continue
		}

		if err := p.store.WriteObject(ctx, key, data, domain.OutputMIMEType); err != nil {
			return Result{}, fmt.Errorf("upload photo: %w", err)
		}
		return Result{ObjectKey: key, URL: p.store.PublicURL(key)}, nil
	}

	return Result{}, fmt.Errorf("%w after %d key attempts", ErrObjectExists, keyAttempts)
}

// PublishOrPlaceholder never fails: on upload error it logs and returns the
// placeholder reference.
func (p *Publisher) PublishOrPlaceholder(ctx context.Context, data []byte) (Result, error) {
	res, err := p.Publish(ctx, data)
	if err != nil {
		p.logger.Warnf("photo upload failed, using placeholder err=%v", err)
		return Placeholder(), err
	}
	return res, nil
}

// Remove deletes a previously published object whose record could not be saved.
func (p *Publisher) Remove(ctx context.Context, objectKey string) error {
	if p.store == nil || objectKey == "" {
		return nil
	}
	if err := p.store.RemoveObject(ctx, objectKey); err != nil {
		return fmt.Errorf("remove object %s: %w", objectKey, err)
	}
	return nil
}

func Placeholder() Result {
	return Result{URL: domain.PlaceholderURL, Fallback: true}
}

func (p *Publisher) objectKey() string {
	name := fmt.Sprintf("church-%d-%s.jpg", p.now().UTC().UnixMilli(), p.token())
	return path.Join(p.prefix, name)
}

func randomToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
