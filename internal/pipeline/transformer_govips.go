//go:build govips && cgo

package pipeline

import (
	"context"
	"fmt"
	"math"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/flockdir/photoflow/internal/domain"
)

type govipsBitmap struct {
	ref *vips.ImageRef
}

func (b govipsBitmap) Width() int  { return b.ref.Width() }
func (b govipsBitmap) Height() int { return b.ref.Height() }
func (b govipsBitmap) Close()      { b.ref.Close() }

type govipsTransformer struct{}

func (t govipsTransformer) Decode(ctx context.Context, data []byte) (Bitmap, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	img, err := vips.NewImageFromBuffer(data)
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}
	if err := img.AutoRotate(); err != nil {
		img.Close()
		return nil, fmt.Errorf("apply orientation: %w", err)
	}
	return govipsBitmap{ref: img}, nil
}

func (t govipsTransformer) Resample(ctx context.Context, src Bitmap, region domain.CropRegion, width, height int) (Bitmap, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	sb, ok := src.(govipsBitmap)
	if !ok {
		return nil, fmt.Errorf("unexpected bitmap type %T", src)
	}

	img, err := sb.ref.Copy()
	if err != nil {
		return nil, fmt.Errorf("copy source image: %w", err)
	}

	left := int(math.Round(region.X))
	top := int(math.Round(region.Y))
	cropW := min(max(1, int(math.Round(region.Width))), img.Width()-left)
	cropH := min(max(1, int(math.Round(region.Height))), img.Height()-top)

	if err := img.ExtractArea(left, top, cropW, cropH); err != nil {
		img.Close()
		return nil, fmt.Errorf("crop image: %w", err)
	}

	hscale := float64(width) / float64(cropW)
	vscale := float64(height) / float64(cropH)
	if err := img.ResizeWithVScale(hscale, vscale, vips.KernelLanczos3); err != nil {
		img.Close()
		return nil, fmt.Errorf("resample image: %w", err)
	}

	// libvips rounds the scaled size; trim or extend by the odd row or column.
	if img.Width() > width || img.Height() > height {
		if err := img.ExtractArea(0, 0, min(width, img.Width()), min(height, img.Height())); err != nil {
			img.Close()
			return nil, fmt.Errorf("trim image: %w", err)
		}
	}
	if img.Width() < width || img.Height() < height {
		if err := img.Embed(0, 0, width, height, vips.ExtendCopy); err != nil {
			img.Close()
			return nil, fmt.Errorf("extend image: %w", err)
		}
	}
	return govipsBitmap{ref: img}, nil
}

func (t govipsTransformer) EncodeJPEG(ctx context.Context, img Bitmap, quality int) ([]byte, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	sb, ok := img.(govipsBitmap)
	if !ok {
		return nil, fmt.Errorf("unexpected bitmap type %T", img)
	}

	params := vips.NewJpegExportParams()
	params.Quality = quality
	params.StripMetadata = true
	data, _, err := sb.ref.ExportJpeg(params)
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return data, nil
}
