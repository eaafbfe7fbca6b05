package alignment

import (
	"fmt"
	"math"

	"laser-align/pkg/geometry"

	"gonum.org/v1/gonum/mat"
)

// Solver fits a homography mapping src[i] onto dst[i] for four or more
// point pairs. With exactly four pairs the fit is exact; with more it is a
// least-squares fit.
type Solver interface {
	Solve(src, dst []geometry.Point2D) (geometry.Homography, error)
}

// DLTSolver solves with the normalized direct linear transform.
type DLTSolver struct{}

// Solve implements Solver.
func (DLTSolver) Solve(src, dst []geometry.Point2D) (geometry.Homography, error) {
	n := len(src)
	if n != len(dst) {
		return geometry.Homography{}, fmt.Errorf("point count mismatch: %d vs %d", n, len(dst))
	}
	if n < 4 {
		return geometry.Homography{}, fmt.Errorf("need at least 4 points, got %d", n)
	}

	srcT, _, srcN, err := normalizePoints(src)
	if err != nil {
		return geometry.Homography{}, err
	}
	_, dstInv, dstN, err := normalizePoints(dst)
	if err != nil {
		return geometry.Homography{}, err
	}

	// Each pair contributes two rows of A*h = 0.
	A := mat.NewDense(2*n, 9, nil)
	for i := 0; i < n; i++ {
		X, Y := srcN[i].X, srcN[i].Y
		x, y := dstN[i].X, dstN[i].Y

		A.SetRow(2*i, []float64{-X, -Y, -1, 0, 0, 0, x * X, x * Y, x})
		A.SetRow(2*i+1, []float64{0, 0, 0, -X, -Y, -1, y * X, y * Y, y})
	}

	var svd mat.SVD
	if !svd.Factorize(A, mat.SVDFull) {
		return geometry.Homography{}, fmt.Errorf("SVD did not converge")
	}
	var v mat.Dense
	svd.VTo(&v)

	// Singular values are sorted descending, so the null vector is last.
	hn := geometry.Homography{
		{v.At(0, 8), v.At(1, 8), v.At(2, 8)},
		{v.At(3, 8), v.At(4, 8), v.At(5, 8)},
		{v.At(6, 8), v.At(7, 8), v.At(8, 8)},
	}

	h := dstInv.Mul(hn).Mul(srcT).Normalized()
	if h.IsDegenerate() {
		return geometry.Homography{}, fmt.Errorf("fitted homography is singular")
	}
	return h, nil
}

// normalizePoints moves the centroid to the origin and scales the mean
// distance from it to sqrt(2). It returns the conditioning transform, its
// inverse and the conditioned points.
func normalizePoints(pts []geometry.Point2D) (t, inv geometry.Homography, out []geometry.Point2D, err error) {
	c := geometry.Centroid(pts)
	var mean float64
	for _, p := range pts {
		mean += p.Distance(c)
	}
	mean /= float64(len(pts))
	if mean == 0 || math.IsNaN(mean) || math.IsInf(mean, 0) {
		return t, inv, nil, fmt.Errorf("points are coincident or not finite")
	}

	s := math.Sqrt2 / mean
	t = geometry.ScaleHomography(s, -s*c.X, -s*c.Y)
	inv = geometry.ScaleHomography(1/s, c.X, c.Y)
	out = make([]geometry.Point2D, len(pts))
	for i, p := range pts {
		out[i] = geometry.Point2D{X: (p.X - c.X) * s, Y: (p.Y - c.Y) * s}
	}
	return t, inv, out, nil
}
