package pipeline

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/flockdir/photoflow/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	t.Run("oversized png is rejected", func(t *testing.T) {
		err := Validate(domain.RawImageInput{ContentType: "image/png", Size: 6 * 1024 * 1024})
		assert.ErrorIs(t, err, domain.ErrInputTooLarge)
	})

	t.Run("gif is rejected", func(t *testing.T) {
		err := Validate(domain.RawImageInput{ContentType: "image/gif", Size: 1024})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("exactly five mebibytes is accepted", func(t *testing.T) {
		err := Validate(domain.RawImageInput{ContentType: "image/JPG", Size: domain.MaxInputBytes})
		assert.NoError(t, err)
	})
}

func TestIntake_RejectsBeforeDecode(t *testing.T) {
	counting := &countingTransformer{Transformer: stdlibTransformer{}}
	p := NewProcessorWithTransformer(counting)

	_, err := p.Intake(context.Background(), domain.RawImageInput{
		ContentType: "image/png",
		Size:        6 * 1024 * 1024,
		Data:        buildTestPNG(t, 10, 10),
	})
	assert.ErrorIs(t, err, domain.ErrInputTooLarge)

	_, err = p.Intake(context.Background(), domain.RawImageInput{
		ContentType: "image/gif",
		Size:        10,
		Data:        []byte("GIF89a"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	assert.Zero(t, counting.decodes)
}

func TestIntake_CorruptPayload(t *testing.T) {
	p := NewProcessorWithTransformer(stdlibTransformer{})
	data := []byte("definitely not an image")

	_, err := p.Intake(context.Background(), domain.RawImageInput{
		ContentType: "image/jpeg",
		Size:        int64(len(data)),
		Data:        data,
	})
	assert.ErrorIs(t, err, domain.ErrDecode)
}

func TestIntake_RejectsHugeDimensionsBeforeDecode(t *testing.T) {
	counting := &countingTransformer{Transformer: stdlibTransformer{}}
	p := NewProcessorWithTransformer(counting)
	data := pngWithDeclaredSize(t, 20000, 20000)

	_, err := p.Intake(context.Background(), domain.RawImageInput{
		ContentType: "image/png",
		Size:        int64(len(data)),
		Data:        data,
	})
	assert.ErrorIs(t, err, domain.ErrDecode)
	assert.Contains(t, err.Error(), "20000x20000")
	assert.Zero(t, counting.decodes)
}

func TestNormalize_AlwaysProduces800x600(t *testing.T) {
	p := NewProcessorWithTransformer(stdlibTransformer{})

	for _, size := range [][2]int{{1600, 600}, {600, 1200}, {800, 600}, {37, 53}, {4000, 30}, {1, 1}} {
		src := buildTestPNG(t, size[0], size[1])
		out, err := p.Normalize(context.Background(), domain.RawImageInput{
			ContentType: "image/png",
			Size:        int64(len(src)),
			Data:        src,
		})
		require.NoError(t, err, "normalize %v", size)

		assert.Equal(t, domain.OutputWidth, out.Width)
		assert.Equal(t, domain.OutputHeight, out.Height)

		cfg, format, err := image.DecodeConfig(bytes.NewReader(out.Data))
		require.NoError(t, err)
		assert.Equal(t, "jpeg", format)
		assert.Equal(t, 800, cfg.Width)
		assert.Equal(t, 600, cfg.Height)
	}
}

func TestNormalize_KeepsCenterOfWideSource(t *testing.T) {
	// Left and right quarters are red, the centered 800x600 region is green.
	img := image.NewRGBA(image.Rect(0, 0, 1600, 600))
	for y := 0; y < 600; y++ {
		for x := 0; x < 1600; x++ {
			c := color.RGBA{R: 220, A: 255}
			if x >= 400 && x < 1200 {
				c = color.RGBA{G: 220, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	p := NewProcessorWithTransformer(stdlibTransformer{})
	out, err := p.Normalize(context.Background(), domain.RawImageInput{
		ContentType: "image/png",
		Size:        int64(buf.Len()),
		Data:        buf.Bytes(),
	})
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(out.Data))
	require.NoError(t, err)

	for _, pt := range []image.Point{{2, 300}, {400, 300}, {797, 300}, {400, 2}, {400, 597}} {
		r, g, _, _ := decoded.At(pt.X, pt.Y).RGBA()
		assert.Greater(t, g>>8, uint32(180), "green at %v", pt)
		assert.Less(t, r>>8, uint32(60), "red at %v", pt)
	}
}

func TestNormalize_IsDeterministic(t *testing.T) {
	p := NewProcessorWithTransformer(stdlibTransformer{})
	src := buildTestPNG(t, 640, 900)
	in := domain.RawImageInput{ContentType: "image/png", Size: int64(len(src)), Data: src}

	first, err := p.Normalize(context.Background(), in)
	require.NoError(t, err)
	second, err := p.Normalize(context.Background(), in)
	require.NoError(t, err)

	assert.True(t, bytes.Equal(first.Data, second.Data))
}

func TestFinish_WrapsBackendFailureAsEncodeError(t *testing.T) {
	p := NewProcessorWithTransformer(failingEncoder{Transformer: stdlibTransformer{}})
	src := buildTestPNG(t, 40, 30)

	decoded, err := p.Intake(context.Background(), domain.RawImageInput{ContentType: "image/png", Size: int64(len(src)), Data: src})
	require.NoError(t, err)
	defer decoded.Close()

	_, err = p.Finish(context.Background(), decoded)
	assert.ErrorIs(t, err, domain.ErrEncode)
}

func TestLocalProcessor_FileInNormalizeFileOut(t *testing.T) {
	tmp := t.TempDir()
	inputPath := filepath.Join(tmp, "church front.png")
	require.NoError(t, os.WriteFile(inputPath, buildTestPNG(t, 240, 120), 0o644))

	in, err := LocalFileFetcher{}.Fetch(context.Background(), inputPath)
	require.NoError(t, err)
	assert.Equal(t, "image/png", in.ContentType)

	p := NewProcessorWithTransformer(stdlibTransformer{})
	out, err := p.Normalize(context.Background(), in)
	require.NoError(t, err)

	path, err := LocalFileEmitter{OutputDir: filepath.Join(tmp, "out")}.Emit(context.Background(), inputPath, out)
	require.NoError(t, err)
	assert.Equal(t, "church_front.jpg", filepath.Base(path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := jpeg.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 800, cfg.Width)
}

func TestLocalFileFetcher_RejectsUnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anim.gif")
	require.NoError(t, os.WriteFile(path, []byte("GIF89a"), 0o644))

	_, err := LocalFileFetcher{}.Fetch(context.Background(), path)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

type countingTransformer struct {
	Transformer
	decodes int
}

func (c *countingTransformer) Decode(ctx context.Context, data []byte) (Bitmap, error) {
	c.decodes++
	return c.Transformer.Decode(ctx, data)
}

type failingEncoder struct {
	Transformer
}

func (failingEncoder) EncodeJPEG(context.Context, Bitmap, int) ([]byte, error) {
	return nil, errors.New("encoder backend unavailable")
}

// pngWithDeclaredSize returns a 1x1 PNG whose header claims w x h.
func pngWithDeclaredSize(t *testing.T, w, h int) []byte {
	t.Helper()

	data := buildTestPNG(t, 1, 1)
	// signature(8) length(4) "IHDR"(4) width(4) height(4) ... crc after 13 data bytes
	require.Equal(t, "IHDR", string(data[12:16]))
	binary.BigEndian.PutUint32(data[16:20], uint32(w))
	binary.BigEndian.PutUint32(data[20:24], uint32(h))
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))
	return data
}

func buildTestPNG(tb testing.TB, w, h int) []byte {
	tb.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 255) / w),
				G: uint8((y * 255) / h),
				B: 140,
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		tb.Fatalf("encode source png: %v", err)
	}
	return buf.Bytes()
}
