package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/flockdir/photoflow/internal/domain"
)

// Decoded is the state between intake and re-encode: the decoded source and
// the region that will be kept. Close releases the bitmap.
type Decoded struct {
	Bitmap Bitmap
	Region domain.CropRegion
}

func (d *Decoded) Close() {
	if d == nil || d.Bitmap == nil {
		return
	}
	d.Bitmap.Close()
	d.Bitmap = nil
}

type Processor struct {
	transformer Transformer
}

func NewProcessor() (*Processor, error) {
	transformer, err := newTransformer()
	if err != nil {
		return nil, fmt.Errorf("build transformer: %w", err)
	}
	return &Processor{transformer: transformer}, nil
}

func NewProcessorWithTransformer(t Transformer) *Processor {
	return &Processor{transformer: t}
}

// Intake validates in and decodes it. Validation failures are reported
// before any decode is attempted, and oversized dimensions before the bitmap
// is allocated.
func (p *Processor) Intake(ctx context.Context, in domain.RawImageInput) (*Decoded, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if err := checkDimensions(in.Data); err != nil {
		return nil, err
	}

	bitmap, err := p.transformer.Decode(ctx, in.Data)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	if bitmap.Width() <= 0 || bitmap.Height() <= 0 {
		bitmap.Close()
		return nil, fmt.Errorf("%w: image has invalid dimensions %dx%d", domain.ErrDecode, bitmap.Width(), bitmap.Height())
	}

	return &Decoded{
		Bitmap: bitmap,
		Region: ComputeCropRegion(bitmap.Width(), bitmap.Height()),
	}, nil
}

func checkDimensions(data []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: read image header: %v", domain.ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("%w: image has invalid dimensions %dx%d", domain.ErrDecode, cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > domain.MaxInputPixels {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", domain.ErrDecode, cfg.Width, cfg.Height, domain.MaxInputPixels)
	}
	return nil
}

// Finish crops d to its region, resamples it to the output canvas and
// encodes it. d stays owned by the caller.
func (p *Processor) Finish(ctx context.Context, d *Decoded) (domain.OutputImage, error) {
	if d == nil || d.Bitmap == nil {
		return domain.OutputImage{}, errors.New("no decoded image to finish")
	}

	canvas, err := p.transformer.Resample(ctx, d.Bitmap, d.Region, domain.OutputWidth, domain.OutputHeight)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.OutputImage{}, ctxErr
		}
		return domain.OutputImage{}, fmt.Errorf("%w: resample: %v", domain.ErrEncode, err)
	}
	defer canvas.Close()

	data, err := p.transformer.EncodeJPEG(ctx, canvas, domain.JPEGQuality)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.OutputImage{}, ctxErr
		}
		return domain.OutputImage{}, fmt.Errorf("%w: %v", domain.ErrEncode, err)
	}

	return domain.OutputImage{
		Width:  canvas.Width(),
		Height: canvas.Height(),
		Data:   data,
	}, nil
}

// Normalize runs every stage without the interactive confirmation step.
func (p *Processor) Normalize(ctx context.Context, in domain.RawImageInput) (domain.OutputImage, error) {
	decoded, err := p.Intake(ctx, in)
	if err != nil {
		return domain.OutputImage{}, fmt.Errorf("intake stage: %w", err)
	}
	defer decoded.Close()

	out, err := p.Finish(ctx, decoded)
	if err != nil {
		return domain.OutputImage{}, fmt.Errorf("encode stage: %w", err)
	}
	return out, nil
}

type LocalFileFetcher struct{}

// Fetch reads path as a RawImageInput. The declared type comes from the file
// extension, the way a browser file picker reports it.
func (LocalFileFetcher) Fetch(ctx context.Context, path string) (domain.RawImageInput, error) {
	if err := checkContext(ctx); err != nil {
		return domain.RawImageInput{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return domain.RawImageInput{}, fmt.Errorf("stat input file %s: %w", path, err)
	}
	if info.IsDir() {
		return domain.RawImageInput{}, fmt.Errorf("input path %s is a directory", path)
	}

	in := domain.RawImageInput{
		ContentType: mime.TypeByExtension(strings.ToLower(filepath.Ext(path))),
		Size:        info.Size(),
	}
	if err := Validate(in); err != nil {
		return in, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return domain.RawImageInput{}, fmt.Errorf("read input file %s: %w", path, err)
	}
	in.Data = data
	return in, nil
}

type LocalFileEmitter struct {
	OutputDir string
}

func (e LocalFileEmitter) Emit(_ context.Context, name string, out domain.OutputImage) (string, error) {
	if strings.TrimSpace(e.OutputDir) == "" {
		return "", errors.New("output directory is required")
	}
	if err := os.MkdirAll(e.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	fullPath := filepath.Join(e.OutputDir, SanitizePathToken(base)+".jpg")
	if err := os.WriteFile(fullPath, out.Data, 0o644); err != nil {
		return "", fmt.Errorf("write output file: %w", err)
	}
	return fullPath, nil
}

func SanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
