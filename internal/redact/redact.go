// Package redact blurs detected regions of an image.
package redact

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"

	"datacleaner/internal/models"
)

// Kernel describes a Gaussian blur. Size is forced odd and positive before use.
type Kernel struct {
	Size  int
	Sigma float64
}

const ClassLicensePlate = "license_plate"

// KernelFor selects blur strength by detection class.
func KernelFor(class string) Kernel {
	switch class {
	case "face":
		return Kernel{Size: 99, Sigma: 40}
	case ClassLicensePlate:
		return Kernel{Size: 111, Sigma: 50}
	default:
		return Kernel{Size: 75, Sigma: 30}
	}
}

// Apply returns a blurred copy of src and the number of regions written.
// Regions are clamped to the image, skipped when empty after clamping, and
// processed in order, so a later region overwrites an overlapping earlier one.
func Apply(src image.Image, regions []models.DetectedRegion) (*image.NRGBA, int) {
	out := imaging.Clone(src)
	if len(regions) == 0 {
		return out, 0
	}

	bounds := out.Bounds()
	applied := 0
	for _, region := range regions {
		rect, ok := clampRegion(region, bounds.Dx(), bounds.Dy())
		if !ok {
			continue
		}
		roi := imaging.Crop(out, rect)
		blurred := GaussianBlur(roi, KernelFor(region.Class))
		draw.Draw(out, rect, blurred, image.Point{}, draw.Src)
		applied++
	}
	return out, applied
}

func clampRegion(region models.DetectedRegion, width, height int) (image.Rectangle, bool) {
	x1, y1, x2, y2 := region.Bounds()
	x1, y1 = max(0, x1), max(0, y1)
	x2, y2 = min(width, x2), min(height, y2)
	if x2 <= x1 || y2 <= y1 {
		return image.Rectangle{}, false
	}
	return image.Rect(x1, y1, x2, y2), true
}

func oddSize(n int) int {
	if n < 1 {
		return 1
	}
	if n%2 == 0 {
		return n + 1
	}
	return n
}

func gaussianWeights(k Kernel) []float64 {
	size := oddSize(k.Size)
	sigma := k.Sigma
	if sigma <= 0 {
		sigma = 0.3*(float64(size-1)*0.5-1) + 0.8
	}

	radius := size / 2
	weights := make([]float64, size)
	var sum float64
	for i := range weights {
		d := float64(i - radius)
		weights[i] = math.Exp(-(d * d) / (2 * sigma * sigma))
		sum += weights[i]
	}
	for i := range weights {
		weights[i] /= sum
	}
	return weights
}

// reflect101 mirrors an out-of-range index without repeating the edge pixel.
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}

// GaussianBlur applies a separable Gaussian filter over every channel of src.
// Pixels outside src are mirrored in from the inside.
func GaussianBlur(src *image.NRGBA, k Kernel) *image.NRGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return dst
	}

	weights := gaussianWeights(k)
	radius := len(weights) / 2

	tmp := make([]float64, w*h*4)
	for y := 0; y < h; y++ {
		rowOff := src.PixOffset(b.Min.X, b.Min.Y+y)
		for x := 0; x < w; x++ {
			var acc [4]float64
			for i, wt := range weights {
				p := rowOff + reflect101(x+i-radius, w)*4
				acc[0] += wt * float64(src.Pix[p])
				acc[1] += wt * float64(src.Pix[p+1])
				acc[2] += wt * float64(src.Pix[p+2])
				acc[3] += wt * float64(src.Pix[p+3])
			}
			copy(tmp[(y*w+x)*4:], acc[:])
		}
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc [4]float64
			for i, wt := range weights {
				p := (reflect101(y+i-radius, h)*w + x) * 4
				acc[0] += wt * tmp[p]
				acc[1] += wt * tmp[p+1]
				acc[2] += wt * tmp[p+2]
				acc[3] += wt * tmp[p+3]
			}
			d := dst.PixOffset(x, y)
			for c := 0; c < 4; c++ {
				dst.Pix[d+c] = clampUint8(acc[c])
			}
		}
	}
	return dst
}

func clampUint8(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
