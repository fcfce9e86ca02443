package augment

// Package augment applies randomized geometric and photometric transforms
// to training images. The evaluation path never goes through this package:
// validation and test batches must be untransformed so that metrics are
// comparable across runs.

import (
	"image"
	"math/rand"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/fogleman/gg"
	"github.com/mouldvision/mouldvision/pkg/nn"
)

type Options struct {
	RotationDegrees float64 `json:"rotationDegrees"` // Random rotation in [-N,N] degrees. 0 disables.
	HorizontalFlip  bool    `json:"horizontalFlip"`  // Randomly mirror left/right
	ZoomRange       float64 `json:"zoomRange"`       // Random zoom in [1, 1+N]. 0 disables.
	BrightnessRange float64 `json:"brightnessRange"` // Random brightness scale in [1-N, 1+N]. 0 disables.
}

type Augmenter struct {
	opts Options
	rng  *rand.Rand
}

// New creates an augmenter. The seed is an explicit, optional knob: nil
// seeds from the clock, so exact reproducibility across runs is only
// guaranteed when the caller fixes it.
func New(opts Options, seed *int64) *Augmenter {
	s := time.Now().UnixNano()
	if seed != nil {
		s = *seed
	}
	return &Augmenter{
		opts: opts,
		rng:  rand.New(rand.NewSource(s)),
	}
}

// Apply returns a transformed copy of img. The input is never modified.
func (a *Augmenter) Apply(img *cimg.Image) *cimg.Image {
	angle := 0.0
	if a.opts.RotationDegrees > 0 {
		angle = (a.rng.Float64()*2 - 1) * a.opts.RotationDegrees
	}
	zoom := 1.0
	if a.opts.ZoomRange > 0 {
		zoom = 1 + a.rng.Float64()*a.opts.ZoomRange
	}
	out := img
	if angle != 0 || zoom != 1 {
		out = rotateZoom(out, angle, zoom)
	}
	if a.opts.HorizontalFlip && a.rng.Intn(2) == 1 {
		out = flipHorizontal(out)
	}
	if a.opts.BrightnessRange > 0 {
		scale := 1 + (a.rng.Float64()*2-1)*a.opts.BrightnessRange
		out = scaleBrightness(out, scale)
	}
	if out == img {
		out = cloneImage(img)
	}
	return out
}

func cloneImage(img *cimg.Image) *cimg.Image {
	out := cimg.NewImage(img.Width, img.Height, cimg.PixelFormatRGB)
	for y := 0; y < img.Height; y++ {
		copy(out.Pixels[y*out.Stride:y*out.Stride+img.Width*3], img.Pixels[y*img.Stride:])
	}
	return out
}

// ApplyBatch returns a new batch of transformed copies. Labels and paths
// carry over unchanged.
func (a *Augmenter) ApplyBatch(batch *nn.Batch) *nn.Batch {
	out := &nn.Batch{
		Samples: make([]*nn.Sample, 0, batch.Len()),
	}
	for _, sample := range batch.Samples {
		out.Samples = append(out.Samples, &nn.Sample{
			Path:  sample.Path,
			Image: a.Apply(sample.Image),
			Label: sample.Label,
		})
	}
	return out
}

// rotateZoom renders the image through a rotation+scale transform about its
// center. Regions swept in from outside the frame are filled with black.
func rotateZoom(img *cimg.Image, angleDegrees, zoom float64) *cimg.Image {
	dc := gg.NewContext(img.Width, img.Height)
	dc.SetRGB(0, 0, 0)
	dc.Clear()
	cx := float64(img.Width) / 2
	cy := float64(img.Height) / 2
	dc.RotateAbout(gg.Radians(angleDegrees), cx, cy)
	dc.ScaleAbout(zoom, zoom, cx, cy)
	dc.DrawImage(toStdImage(img), 0, 0)
	return fromStdImage(dc.Image())
}

func flipHorizontal(img *cimg.Image) *cimg.Image {
	out := cimg.NewImage(img.Width, img.Height, cimg.PixelFormatRGB)
	for y := 0; y < img.Height; y++ {
		src := img.Pixels[y*img.Stride:]
		dst := out.Pixels[y*out.Stride:]
		for x := 0; x < img.Width; x++ {
			sx := (img.Width - 1 - x) * 3
			dst[x*3] = src[sx]
			dst[x*3+1] = src[sx+1]
			dst[x*3+2] = src[sx+2]
		}
	}
	return out
}

func scaleBrightness(img *cimg.Image, scale float64) *cimg.Image {
	out := cimg.NewImage(img.Width, img.Height, cimg.PixelFormatRGB)
	for y := 0; y < img.Height; y++ {
		src := img.Pixels[y*img.Stride : y*img.Stride+img.Width*3]
		dst := out.Pixels[y*out.Stride:]
		for i, p := range src {
			v := int(float64(p)*scale + 0.5)
			if v > 255 {
				v = 255
			}
			dst[i] = byte(v)
		}
	}
	return out
}

func toStdImage(img *cimg.Image) image.Image {
	out := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))
	for y := 0; y < img.Height; y++ {
		src := img.Pixels[y*img.Stride:]
		dst := out.Pix[y*out.Stride:]
		for x := 0; x < img.Width; x++ {
			dst[x*4] = src[x*3]
			dst[x*4+1] = src[x*3+1]
			dst[x*4+2] = src[x*3+2]
			dst[x*4+3] = 255
		}
	}
	return out
}

func fromStdImage(src image.Image) *cimg.Image {
	rgba, ok := src.(*image.RGBA)
	if !ok {
		b := src.Bounds()
		rgba = image.NewRGBA(b)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				rgba.Set(x, y, src.At(x, y))
			}
		}
	}
	w := rgba.Rect.Dx()
	h := rgba.Rect.Dy()
	out := cimg.NewImage(w, h, cimg.PixelFormatRGB)
	for y := 0; y < h; y++ {
		src := rgba.Pix[y*rgba.Stride:]
		dst := out.Pixels[y*out.Stride:]
		for x := 0; x < w; x++ {
			dst[x*3] = src[x*4]
			dst[x*3+1] = src[x*4+1]
			dst[x*3+2] = src[x*4+2]
		}
	}
	return out
}
