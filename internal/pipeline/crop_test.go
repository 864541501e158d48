package pipeline

import (
	"fmt"
	"image"
	"testing"

	"github.com/flockdir/photoflow/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestComputeCropRegion(t *testing.T) {
	tt := []struct {
		width, height int
		expected      domain.CropRegion
	}{
		{1600, 600, domain.CropRegion{X: 400, Y: 0, Width: 800, Height: 600}},
		{600, 1200, domain.CropRegion{X: 0, Y: 375, Width: 600, Height: 450}},
		{800, 600, domain.CropRegion{X: 0, Y: 0, Width: 800, Height: 600}},
		{1024, 768, domain.CropRegion{X: 0, Y: 0, Width: 1024, Height: 768}},
		{100, 100, domain.CropRegion{X: 0, Y: 12.5, Width: 100, Height: 75}},
		{1920, 1080, domain.CropRegion{X: 240, Y: 0, Width: 1440, Height: 1080}},
		{1, 1, domain.CropRegion{X: 0, Y: 0.125, Width: 1, Height: 0.75}},
	}

	for _, tc := range tt {
		t.Run(fmt.Sprintf("%dx%d", tc.width, tc.height), func(t *testing.T) {
			region := ComputeCropRegion(tc.width, tc.height)
			assert.Equal(t, tc.expected, region)

			assert.InDelta(t, 4.0/3.0, region.Width/region.Height, 1e-9)
			assert.GreaterOrEqual(t, region.X, 0.0)
			assert.GreaterOrEqual(t, region.Y, 0.0)
			assert.LessOrEqual(t, region.X+region.Width, float64(tc.width))
			assert.LessOrEqual(t, region.Y+region.Height, float64(tc.height))
		})
	}
}

func TestComputeCropRegion_Centered(t *testing.T) {
	for _, size := range [][2]int{{3000, 1000}, {500, 2000}, {641, 479}, {333, 999}} {
		region := ComputeCropRegion(size[0], size[1])
		left := region.X
		right := float64(size[0]) - (region.X + region.Width)
		top := region.Y
		bottom := float64(size[1]) - (region.Y + region.Height)

		assert.InDelta(t, left, right, 1e-9, "horizontal margins for %v", size)
		assert.InDelta(t, top, bottom, 1e-9, "vertical margins for %v", size)
		assert.True(t, left == 0 || top == 0, "one dimension must span the source for %v", size)
	}
}

func TestRegionRect(t *testing.T) {
	bounds := image.Rect(10, 20, 1610, 620)
	r := regionRect(ComputeCropRegion(1600, 600), bounds)
	assert.Equal(t, image.Rect(410, 20, 1210, 620), r)

	tiny := regionRect(ComputeCropRegion(1, 1), image.Rect(0, 0, 1, 1))
	assert.Equal(t, image.Rect(0, 0, 1, 1), tiny)
}
