package storage

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
)

const (
	DriverMinio = "minio"
	DriverS3    = "s3"
)

type Config struct {
	Driver        string
	Endpoint      string
	Access        string
	Secret        string
	Region        string
	Bucket        string
	UseSSL        bool
	PublicBaseURL string
}

// ObjectStore is the durable home of published photos.
type ObjectStore interface {
	EnsureBucket(ctx context.Context) error
	ObjectExists(ctx context.Context, objectKey string) (bool, error)
	WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error
	RemoveObject(ctx context.Context, objectKey string) error
	PublicURL(objectKey string) string
}

func New(ctx context.Context, cfg Config) (ObjectStore, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverMinio:
		return NewMinioStore(cfg)
	case DriverS3:
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}

// publicURL builds the permanent URL of objectKey. A configured base (CDN or
// public bucket domain) wins over the path-style endpoint URL.
func publicURL(cfg Config, objectKey string) string {
	objectKey = strings.TrimLeft(objectKey, "/")
	if base := strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/"); base != "" {
		return base + "/" + objectKey
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = fmt.Sprintf("s3.%s.amazonaws.com", cfg.Region)
	}
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	if u, err := url.Parse(endpoint); err == nil && u.Scheme != "" && u.Host != "" {
		scheme = u.Scheme
		endpoint = u.Host
	}

	u := url.URL{
		Scheme: scheme,
		Host:   endpoint,
		Path:   "/" + path.Join(cfg.Bucket, objectKey),
	}
	return u.String()
}
