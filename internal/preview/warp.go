package preview

import (
	"fmt"
	"image"
	"math"
	"runtime"
	"sync"

	"laser-align/pkg/geometry"

	"golang.org/x/image/draw"
)

// Warper resamples src into a canvas of the given size through h, which maps
// continuous source coordinates to canvas coordinates. Canvas pixels with no
// source behind them are fully transparent.
type Warper interface {
	Warp(src image.Image, h geometry.Homography, size image.Point) (*image.RGBA, error)
}

// GoWarper is a pure Go bilinear perspective warper.
type GoWarper struct{}

// Warp implements Warper by inverse mapping each canvas pixel centre.
func (GoWarper) Warp(src image.Image, h geometry.Homography, size image.Point) (*image.RGBA, error) {
	inv, ok := h.Inverse()
	if !ok {
		return nil, fmt.Errorf("warp homography is not invertible")
	}

	b := src.Bounds()
	in := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(in, in.Bounds(), src, b.Min, draw.Src)

	out := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	sw, sh := float64(b.Dx()), float64(b.Dy())

	// Parallelize by horizontal stripes
	numWorkers := runtime.NumCPU()
	rowsPerWorker := (size.Y + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		startY := w * rowsPerWorker
		endY := startY + rowsPerWorker
		if endY > size.Y {
			endY = size.Y
		}
		if startY >= size.Y {
			break
		}

		wg.Add(1)
		go func(yStart, yEnd int) {
			defer wg.Done()
			for y := yStart; y < yEnd; y++ {
				for x := 0; x < size.X; x++ {
					p := inv.Apply(geometry.Point2D{X: float64(x) + 0.5, Y: float64(y) + 0.5})
					if !p.IsFinite() || p.X < 0 || p.Y < 0 || p.X >= sw || p.Y >= sh {
						continue
					}
					off := out.PixOffset(x, y)
					sampleBilinear(in, p.X-0.5, p.Y-0.5, out.Pix[off:off+4])
				}
			}
		}(startY, endY)
	}
	wg.Wait()

	return out, nil
}

// sampleBilinear interpolates the premultiplied pixel at (fx, fy), in pixel
// index coordinates, clamping to the image edge.
func sampleBilinear(img *image.RGBA, fx, fy float64, dst []uint8) {
	maxX, maxY := img.Rect.Dx()-1, img.Rect.Dy()-1
	fx = math.Max(0, math.Min(fx, float64(maxX)))
	fy = math.Max(0, math.Min(fy, float64(maxY)))

	x0, y0 := int(fx), int(fy)
	x1, y1 := min(x0+1, maxX), min(y0+1, maxY)
	ax, ay := fx-float64(x0), fy-float64(y0)

	p00 := img.PixOffset(x0, y0)
	p10 := img.PixOffset(x1, y0)
	p01 := img.PixOffset(x0, y1)
	p11 := img.PixOffset(x1, y1)
	for c := 0; c < 4; c++ {
		top := float64(img.Pix[p00+c])*(1-ax) + float64(img.Pix[p10+c])*ax
		bottom := float64(img.Pix[p01+c])*(1-ax) + float64(img.Pix[p11+c])*ax
		dst[c] = uint8(math.Round(top*(1-ay) + bottom*ay))
	}
}
