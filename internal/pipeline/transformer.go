package pipeline

import (
	"context"

	"github.com/flockdir/photoflow/internal/domain"
)

// Bitmap is a decoded raster owned by a single pipeline run. Both dimensions
// are positive. Close releases any backing memory held outside the Go heap.
type Bitmap interface {
	Width() int
	Height() int
	Close()
}

type Transformer interface {
	Decode(ctx context.Context, data []byte) (Bitmap, error)
	Resample(ctx context.Context, src Bitmap, region domain.CropRegion, width, height int) (Bitmap, error)
	EncodeJPEG(ctx context.Context, img Bitmap, quality int) ([]byte, error)
}

func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
