package pipeline

import (
	"context"
	"testing"

	"github.com/flockdir/photoflow/internal/domain"
)

func BenchmarkProcessorNormalizeWide(b *testing.B) {
	benchmarkNormalize(b, 1920, 1080)
}

func BenchmarkProcessorNormalizeTall(b *testing.B) {
	benchmarkNormalize(b, 1080, 1920)
}

func benchmarkNormalize(b *testing.B, w, h int) {
	source := buildTestPNG(b, w, h)
	processor, err := NewProcessor()
	if err != nil {
		b.Fatalf("new processor: %v", err)
	}

	in := domain.RawImageInput{
		ContentType: "image/png",
		Size:        int64(len(source)),
		Data:        source,
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := processor.Normalize(context.Background(), in); err != nil {
			b.Fatalf("normalize: %v", err)
		}
	}
}
