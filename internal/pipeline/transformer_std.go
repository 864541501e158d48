package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/flockdir/photoflow/internal/domain"
	"golang.org/x/image/draw"
)

type stdlibBitmap struct {
	img image.Image
}

func (b stdlibBitmap) Width() int  { return b.img.Bounds().Dx() }
func (b stdlibBitmap) Height() int { return b.img.Bounds().Dy() }
func (b stdlibBitmap) Close()      {}

type stdlibTransformer struct{}

func (t stdlibTransformer) Decode(ctx context.Context, data []byte) (Bitmap, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}
	return stdlibBitmap{img: img}, nil
}

func (t stdlibTransformer) Resample(ctx context.Context, src Bitmap, region domain.CropRegion, width, height int) (Bitmap, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	sb, ok := src.(stdlibBitmap)
	if !ok {
		return nil, fmt.Errorf("unexpected bitmap type %T", src)
	}
	if width <= 0 || height <= 0 {
		return nil, errors.New("output canvas requires positive dimensions")
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), sb.img, regionRect(region, sb.img.Bounds()), draw.Src, nil)
	return stdlibBitmap{img: dst}, nil
}

func (t stdlibTransformer) EncodeJPEG(ctx context.Context, img Bitmap, quality int) ([]byte, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	sb, ok := img.(stdlibBitmap)
	if !ok {
		return nil, fmt.Errorf("unexpected bitmap type %T", img)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, sb.img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
