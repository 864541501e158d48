package pipeline

import (
	"image"
	"math"

	"github.com/flockdir/photoflow/internal/domain"
)

// ComputeCropRegion returns the centered 4:3 region of a width x height
// source. The dimension that is not reduced spans the full source.
func ComputeCropRegion(width, height int) domain.CropRegion {
	w := int64(width)
	h := int64(height)
	aw := int64(domain.AspectWidth)
	ah := int64(domain.AspectHeight)

	// Exact 4:3 sources must take the second branch and keep full bounds.
	if w*ah > h*aw {
		cropW := float64(h*aw) / float64(ah)
		return domain.CropRegion{
			X:      (float64(w) - cropW) / 2,
			Y:      0,
			Width:  cropW,
			Height: float64(h),
		}
	}

	cropH := float64(w*ah) / float64(aw)
	return domain.CropRegion{
		X:      0,
		Y:      (float64(h) - cropH) / 2,
		Width:  float64(w),
		Height: cropH,
	}
}

// regionRect converts region into integer pixel bounds relative to bounds.Min,
// clamped so it never leaves the source.
func regionRect(region domain.CropRegion, bounds image.Rectangle) image.Rectangle {
	x0 := bounds.Min.X + int(math.Round(region.X))
	y0 := bounds.Min.Y + int(math.Round(region.Y))
	x1 := x0 + max(1, int(math.Round(region.Width)))
	y1 := y0 + max(1, int(math.Round(region.Height)))

	r := image.Rect(x0, y0, x1, y1).Intersect(bounds)
	if r.Empty() {
		return bounds
	}
	return r
}
