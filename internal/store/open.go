package store

import (
	"context"
	"fmt"
	"strings"
)

// Open returns the upload store selected by driver ("memory" or "postgres")
// and a function releasing its resources.
func Open(ctx context.Context, driver, dsn string) (UploadStore, func() error, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "memory":
		return NewMemoryUploadStore(), func() error { return nil }, nil
	case "", "postgres":
		s, err := NewPostgresUploadStore(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
}
