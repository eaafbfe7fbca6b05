// Package vision adapts OpenCV (via gocv) to the alignment pipeline: marker
// detection, an alternate homography solver and warper, lens undistortion,
// camera capture and debug overlays. Every Mat created here is closed before
// the function that created it returns.
package vision

import (
	"image"
	"runtime"
	"sync"

	"golang.org/x/image/draw"

	"gocv.io/x/gocv"
)

// forEachStripe runs fn over horizontal stripes of [0, height) in parallel.
func forEachStripe(height int, fn func(yStart, yEnd int)) {
	numWorkers := runtime.NumCPU()
	rowsPerWorker := (height + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		startY := w * rowsPerWorker
		endY := startY + rowsPerWorker
		if endY > height {
			endY = height
		}
		if startY >= height {
			break
		}

		wg.Add(1)
		go func(yStart, yEnd int) {
			defer wg.Done()
			fn(yStart, yEnd)
		}(startY, endY)
	}
	wg.Wait()
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}

// imageToMat converts a Go image to a BGR Mat (OpenCV's default layout).
// The caller closes the result.
func imageToMat(img image.Image) gocv.Mat {
	rgba := toRGBA(img)
	width, height := rgba.Rect.Dx(), rgba.Rect.Dy()
	mat := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)

	forEachStripe(height, func(yStart, yEnd int) {
		for y := yStart; y < yEnd; y++ {
			row := y * rgba.Stride
			for x := 0; x < width; x++ {
				p := row + x*4
				mat.SetUCharAt(y, x*3+0, rgba.Pix[p+2]) // B
				mat.SetUCharAt(y, x*3+1, rgba.Pix[p+1]) // G
				mat.SetUCharAt(y, x*3+2, rgba.Pix[p+0]) // R
			}
		}
	})
	return mat
}

// imageToMatBGRA keeps the (premultiplied) alpha channel as a fourth plane.
func imageToMatBGRA(img image.Image) gocv.Mat {
	rgba := toRGBA(img)
	width, height := rgba.Rect.Dx(), rgba.Rect.Dy()
	mat := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC4)

	forEachStripe(height, func(yStart, yEnd int) {
		for y := yStart; y < yEnd; y++ {
			row := y * rgba.Stride
			for x := 0; x < width; x++ {
				p := row + x*4
				mat.SetUCharAt(y, x*4+0, rgba.Pix[p+2])
				mat.SetUCharAt(y, x*4+1, rgba.Pix[p+1])
				mat.SetUCharAt(y, x*4+2, rgba.Pix[p+0])
				mat.SetUCharAt(y, x*4+3, rgba.Pix[p+3])
			}
		}
	})
	return mat
}

// matToImage converts a BGR, BGRA or single channel Mat to RGBA.
func matToImage(mat gocv.Mat) *image.RGBA {
	h, w, ch := mat.Rows(), mat.Cols(), mat.Channels()
	img := image.NewRGBA(image.Rect(0, 0, w, h))

	forEachStripe(h, func(yStart, yEnd int) {
		for y := yStart; y < yEnd; y++ {
			row := y * img.Stride
			for x := 0; x < w; x++ {
				p := row + x*4
				switch ch {
				case 1:
					v := mat.GetUCharAt(y, x)
					img.Pix[p+0], img.Pix[p+1], img.Pix[p+2], img.Pix[p+3] = v, v, v, 255
				case 4:
					img.Pix[p+0] = mat.GetUCharAt(y, x*4+2)
					img.Pix[p+1] = mat.GetUCharAt(y, x*4+1)
					img.Pix[p+2] = mat.GetUCharAt(y, x*4+0)
					img.Pix[p+3] = mat.GetUCharAt(y, x*4+3)
				default:
					img.Pix[p+0] = mat.GetUCharAt(y, x*3+2) // R
					img.Pix[p+1] = mat.GetUCharAt(y, x*3+1) // G
					img.Pix[p+2] = mat.GetUCharAt(y, x*3+0) // B
					img.Pix[p+3] = 255
				}
			}
		}
	})
	return img
}

// float64Mat builds a rows x cols CV_64F Mat. The caller closes it.
func float64Mat(rows, cols int, at func(r, c int) float64) gocv.Mat {
	m := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV64F)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			m.SetDoubleAt(r, c, at(r, c))
		}
	}
	return m
}
