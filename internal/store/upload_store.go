package store

import (
	"context"
	"errors"

	"github.com/flockdir/photoflow/internal/domain"
)

var ErrUploadNotFound = errors.New("upload not found")

type UploadStore interface {
	Create(ctx context.Context, upload domain.Upload) error
	Get(ctx context.Context, id string) (domain.Upload, bool, error)
	UpdateStatus(ctx context.Context, id, status string) (domain.Upload, error)
	Finish(ctx context.Context, id, status, objectKey, publicURL string) (domain.Upload, error)
}
