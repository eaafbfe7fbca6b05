// Package colorutil provides the colors and pixel helpers shared by the
// preview and annotation code.
package colorutil

import (
	"image/color"
	"math"
)

// Overlay colors used by the annotators.
var (
	Black   = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	White   = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Red     = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	Green   = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	Blue    = color.RGBA{R: 0, G: 0, B: 255, A: 255}
	Cyan    = color.RGBA{R: 0, G: 255, B: 255, A: 255}
	Magenta = color.RGBA{R: 255, G: 0, B: 255, A: 255}
	Yellow  = color.RGBA{R: 255, G: 255, B: 0, A: 255}
)

// Gray returns the BT.601 luma of 8-bit RGB, rounded to 0-255. This is the
// weighting OpenCV uses for RGB to gray conversion.
func Gray(r, g, b uint8) uint8 {
	y := 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
	return uint8(math.Min(255, math.Round(y)))
}

// Unpremultiply converts a premultiplied 8-bit pixel to straight alpha.
func Unpremultiply(r, g, b, a uint8) (uint8, uint8, uint8) {
	switch a {
	case 0:
		return 0, 0, 0
	case 255:
		return r, g, b
	}
	f := 255 / float64(a)
	return clamp8(float64(r) * f), clamp8(float64(g) * f), clamp8(float64(b) * f)
}

func clamp8(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(math.Round(v))
}
