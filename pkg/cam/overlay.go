package cam

import (
	"fmt"
	"image"

	"github.com/bmharper/cimg/v2"
	"github.com/fogleman/gg"

	"github.com/mouldvision/mouldvision/pkg/nn"
)

// RenderOverlay composites the heatmap over the source image for visual
// inspection: blue for cold regions, red for hot, blended with the given
// opacity. The heatmap is resized to the image if their sizes differ.
func RenderOverlay(img *cimg.Image, heatmap *nn.Heatmap, opacity float64) (*cimg.Image, error) {
	if opacity <= 0 || opacity > 1 {
		return nil, fmt.Errorf("overlay opacity %v out of range (0,1]", opacity)
	}
	if img.NChan() != 3 {
		img = img.ToRGB()
	}
	if heatmap.Width != img.Width || heatmap.Height != img.Height {
		resized, err := heatmap.ResizeBilinear(img.Width, img.Height)
		if err != nil {
			return nil, err
		}
		heatmap = resized
	}

	overlay := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			r, g, b := rampColor(heatmap.At(x, y))
			a := opacity * float64(heatmap.At(x, y))
			i := y*overlay.Stride + x*4
			// Premultiplied alpha, as image.RGBA expects
			overlay.Pix[i] = byte(float64(r)*a + 0.5)
			overlay.Pix[i+1] = byte(float64(g)*a + 0.5)
			overlay.Pix[i+2] = byte(float64(b)*a + 0.5)
			overlay.Pix[i+3] = byte(a*255 + 0.5)
		}
	}

	dc := gg.NewContext(img.Width, img.Height)
	dc.DrawImage(toStdImage(img), 0, 0)
	dc.DrawImage(overlay, 0, 0)
	return fromStdImage(dc.Image()), nil
}

// rampColor maps t in [0,1] onto a blue -> green -> red ramp.
func rampColor(t float32) (r, g, b byte) {
	switch {
	case t < 0.5:
		f := t * 2
		return 0, byte(f*255 + 0.5), byte((1-f)*255 + 0.5)
	default:
		f := (t - 0.5) * 2
		return byte(f*255 + 0.5), byte((1-f)*255 + 0.5), 0
	}
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
