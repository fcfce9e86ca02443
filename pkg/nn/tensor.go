package nn

import (
	"fmt"

	"github.com/bmharper/cimg/v2"
)

// ImageNet channel statistics, in RGB order. VGG-16 was pretrained with
// inputs normalized by these, so our preprocessing must match.
var (
	imagenetMean = [3]float32{0.485, 0.456, 0.406}
	imagenetStd  = [3]float32{0.229, 0.224, 0.225}
)

// PrepareImage resizes an arbitrary-resolution image to the model input
// shape. Non-RGB images (eg grayscale, RGBA) are converted to RGB first.
func PrepareImage(img *cimg.Image, config *ModelConfig) (*cimg.Image, error) {
	if img.Width <= 0 || img.Height <= 0 {
		return nil, fmt.Errorf("invalid image size %vx%v", img.Width, img.Height)
	}
	if img.NChan() != 3 {
		img = img.ToRGB()
	}
	if img.Width == config.Width && img.Height == config.Height {
		return img, nil
	}
	return cimg.ResizeNew(img, config.Width, config.Height, nil), nil
}

// ImageToCHW converts an RGB image into a float32 CHW tensor with ImageNet
// mean/std normalization. The image must already be at the model input size.
func ImageToCHW(img *cimg.Image, config *ModelConfig) ([]float32, error) {
	if img.NChan() != 3 {
		return nil, fmt.Errorf("expected 3-channel RGB image, got %v channels", img.NChan())
	}
	if img.Width != config.Width || img.Height != config.Height {
		return nil, fmt.Errorf("image is %vx%v, expected model input %vx%v", img.Width, img.Height, config.Width, config.Height)
	}
	w := config.Width
	h := config.Height
	out := make([]float32, 3*w*h)
	plane := w * h
	for y := 0; y < h; y++ {
		row := img.Pixels[y*img.Stride:]
		for x := 0; x < w; x++ {
			for c := 0; c < 3; c++ {
				v := float32(row[x*3+c]) / 255
				out[c*plane+y*w+x] = (v - imagenetMean[c]) / imagenetStd[c]
			}
		}
	}
	return out, nil
}
