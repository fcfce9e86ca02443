package nn

import "fmt"

// Heatmap is a single-channel spatial importance map. Values are normalized
// to [0,1]. Width/Height match the (resized) model input after upsampling.
type Heatmap struct {
	Width  int
	Height int
	Values []float32 // Row-major, Width*Height values
}

func NewHeatmap(width, height int) *Heatmap {
	return &Heatmap{
		Width:  width,
		Height: height,
		Values: make([]float32, width*height),
	}
}

func (h *Heatmap) At(x, y int) float32 {
	return h.Values[y*h.Width+x]
}

func (h *Heatmap) Set(x, y int, v float32) {
	h.Values[y*h.Width+x] = v
}

// Normalize rescales values to [0,1] in place. A constant map becomes all
// zeros, so we never divide by zero.
func (h *Heatmap) Normalize() {
	lo := h.Values[0]
	hi := h.Values[0]
	for _, v := range h.Values {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi <= lo {
		for i := range h.Values {
			h.Values[i] = 0
		}
		return
	}
	scale := 1 / (hi - lo)
	for i, v := range h.Values {
		h.Values[i] = (v - lo) * scale
	}
}

// ResizeBilinear returns a new heatmap upsampled (or downsampled) to the
// given size with bilinear filtering.
func (h *Heatmap) ResizeBilinear(width, height int) (*Heatmap, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid heatmap size %vx%v", width, height)
	}
	out := NewHeatmap(width, height)
	scaleX := float32(h.Width) / float32(width)
	scaleY := float32(h.Height) / float32(height)
	for y := 0; y < height; y++ {
		srcY := (float32(y)+0.5)*scaleY - 0.5
		y0 := int(srcY)
		if srcY < 0 {
			srcY = 0
			y0 = 0
		}
		y1 := y0 + 1
		if y1 >= h.Height {
			y1 = h.Height - 1
		}
		fy := srcY - float32(y0)
		for x := 0; x < width; x++ {
			srcX := (float32(x)+0.5)*scaleX - 0.5
			x0 := int(srcX)
			if srcX < 0 {
				srcX = 0
				x0 = 0
			}
			x1 := x0 + 1
			if x1 >= h.Width {
				x1 = h.Width - 1
			}
			fx := srcX - float32(x0)
			top := h.At(x0, y0)*(1-fx) + h.At(x1, y0)*fx
			bot := h.At(x0, y1)*(1-fx) + h.At(x1, y1)*fx
			out.Set(x, y, top*(1-fy)+bot*fy)
		}
	}
	return out, nil
}
