package vision

import (
	"fmt"
	"image"
	"image/color"

	"laser-align/internal/preview"
	"laser-align/pkg/geometry"

	"gocv.io/x/gocv"
)

// CVSolver is an alignment.Solver backed by cv::findHomography in plain
// least-squares mode. Robustness stays with alignment.Estimator.
type CVSolver struct{}

// Solve implements alignment.Solver.
func (CVSolver) Solve(src, dst []geometry.Point2D) (geometry.Homography, error) {
	if len(src) != len(dst) {
		return geometry.Homography{}, fmt.Errorf("point count mismatch: %d vs %d", len(src), len(dst))
	}
	if len(src) < 4 {
		return geometry.Homography{}, fmt.Errorf("need at least 4 points, got %d", len(src))
	}

	srcMat := pointsMat(src)
	defer srcMat.Close()
	dstMat := pointsMat(dst)
	defer dstMat.Close()
	mask := gocv.NewMat()
	defer mask.Close()

	hMat := gocv.FindHomography(srcMat, &dstMat, gocv.HomographyMethodAllPoints, 3, &mask, 2000, 0.995)
	defer hMat.Close()
	if hMat.Empty() {
		return geometry.Homography{}, fmt.Errorf("findHomography found no solution")
	}

	h := matToHomography(hMat).Normalized()
	if h.IsDegenerate() {
		return geometry.Homography{}, fmt.Errorf("findHomography returned a singular matrix")
	}
	return h, nil
}

// pointsMat packs points into an Nx2 CV_64F Mat.
func pointsMat(pts []geometry.Point2D) gocv.Mat {
	return float64Mat(len(pts), 2, func(r, c int) float64 {
		if c == 0 {
			return pts[r].X
		}
		return pts[r].Y
	})
}

func homographyMat(h geometry.Homography) gocv.Mat {
	return float64Mat(3, 3, func(r, c int) float64 { return h[r][c] })
}

func matToHomography(m gocv.Mat) geometry.Homography {
	var h geometry.Homography
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			h[r][c] = m.GetDoubleAt(r, c)
		}
	}
	return h
}

// CVWarper is a preview.Warper backed by cv::warpPerspective.
type CVWarper struct{}

var _ preview.Warper = CVWarper{}

// Warp implements preview.Warper.
func (CVWarper) Warp(src image.Image, h geometry.Homography, size image.Point) (*image.RGBA, error) {
	if size.X <= 0 || size.Y <= 0 {
		return nil, fmt.Errorf("invalid canvas size %v", size)
	}
	in := imageToMatBGRA(src)
	defer in.Close()
	m := homographyMat(h)
	defer m.Close()
	out := gocv.NewMat()
	defer out.Close()

	gocv.WarpPerspectiveWithParams(in, &out, m, size,
		gocv.InterpolationLinear, gocv.BorderConstant, color.RGBA{})
	if out.Empty() {
		return nil, fmt.Errorf("warpPerspective produced no output")
	}
	return matToImage(out), nil
}
