package geometry

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// degenerateDet is the smallest |det| a normalized homography may have.
const degenerateDet = 1e-10

// Homography represents a 3x3 projective transform in row-major order.
// [h00 h01 h02]
// [h10 h11 h12]
// [h20 h21 h22]
type Homography [3][3]float64

// IdentityHomography returns the identity transform.
func IdentityHomography() Homography {
	return Homography{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// ScaleHomography returns a uniform scale followed by a translation.
func ScaleHomography(s, tx, ty float64) Homography {
	return Homography{{s, 0, tx}, {0, s, ty}, {0, 0, 1}}
}

// RotationHomography returns a rotation by radians about the origin, scaled
// by s and translated by (tx, ty).
func RotationHomography(radians, s, tx, ty float64) Homography {
	c, sn := math.Cos(radians)*s, math.Sin(radians)*s
	return Homography{{c, -sn, tx}, {sn, c, ty}, {0, 0, 1}}
}

// Apply applies the transform to a point. Points sent to infinity come back
// with infinite coordinates; callers check IsFinite.
func (h Homography) Apply(p Point2D) Point2D {
	w := h[2][0]*p.X + h[2][1]*p.Y + h[2][2]
	if w == 0 {
		return Point2D{X: math.Inf(1), Y: math.Inf(1)}
	}
	return Point2D{
		X: (h[0][0]*p.X + h[0][1]*p.Y + h[0][2]) / w,
		Y: (h[1][0]*p.X + h[1][1]*p.Y + h[1][2]) / w,
	}
}

// Dense returns the transform as a gonum matrix.
func (h Homography) Dense() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		h[0][0], h[0][1], h[0][2],
		h[1][0], h[1][1], h[1][2],
		h[2][0], h[2][1], h[2][2],
	})
}

// HomographyFromMatrix copies a 3x3 gonum matrix.
func HomographyFromMatrix(m mat.Matrix) Homography {
	var h Homography
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			h[r][c] = m.At(r, c)
		}
	}
	return h
}

// Mul returns h * other, i.e. other is applied first.
func (h Homography) Mul(other Homography) Homography {
	var out mat.Dense
	out.Mul(h.Dense(), other.Dense())
	return HomographyFromMatrix(&out)
}

// Normalized returns the transform scaled so h22 == 1. Transforms whose h22
// is close to zero are scaled to unit Frobenius norm instead.
func (h Homography) Normalized() Homography {
	norm := h.frobenius()
	if norm == 0 {
		return h
	}
	s := h[2][2]
	if math.Abs(s) < 1e-12*norm {
		s = norm
	}
	var out Homography
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[r][c] = h[r][c] / s
		}
	}
	return out
}

// Determinant returns the determinant of the raw matrix.
func (h Homography) Determinant() float64 {
	return mat.Det(h.Dense())
}

// IsDegenerate reports whether the normalized matrix is singular or holds
// non-finite entries.
func (h Homography) IsDegenerate() bool {
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			v := h[r][c]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return true
			}
		}
	}
	det := h.Normalized().Determinant()
	return math.IsNaN(det) || math.Abs(det) < degenerateDet
}

// Inverse returns the inverse transform, if it exists.
func (h Homography) Inverse() (Homography, bool) {
	if h.IsDegenerate() {
		return Homography{}, false
	}
	var inv mat.Dense
	if err := inv.Inverse(h.Normalized().Dense()); err != nil {
		// Ill-conditioned but finite inverses are still usable.
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return Homography{}, false
		}
	}
	out := HomographyFromMatrix(&inv).Normalized()
	if out.IsDegenerate() {
		return Homography{}, false
	}
	return out, true
}

func (h Homography) frobenius() float64 {
	var sum float64
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			sum += h[r][c] * h[r][c]
		}
	}
	return math.Sqrt(sum)
}

// QuadToQuad computes the homography that maps each src corner exactly onto
// the matching dst corner.
func QuadToQuad(src, dst [4]Point2D) (Homography, error) {
	for i := 0; i < 4; i++ {
		a, b, c := (i+1)%4, (i+2)%4, (i+3)%4
		if Collinear(src[a], src[b], src[c]) || Collinear(dst[a], dst[b], dst[c]) {
			return Homography{}, fmt.Errorf("quad has collinear corners")
		}
	}

	// x' = (h00 X + h01 Y + h02)/(h20 X + h21 Y + 1)
	// y' = (h10 X + h11 Y + h12)/(h20 X + h21 Y + 1)
	A := mat.NewDense(8, 8, nil)
	B := mat.NewVecDense(8, nil)
	for i := 0; i < 4; i++ {
		X, Y := src[i].X, src[i].Y
		x, y := dst[i].X, dst[i].Y
		r := 2 * i

		A.Set(r, 0, X)
		A.Set(r, 1, Y)
		A.Set(r, 2, 1)
		A.Set(r, 6, -X*x)
		A.Set(r, 7, -Y*x)
		B.SetVec(r, x)

		A.Set(r+1, 3, X)
		A.Set(r+1, 4, Y)
		A.Set(r+1, 5, 1)
		A.Set(r+1, 6, -X*y)
		A.Set(r+1, 7, -Y*y)
		B.SetVec(r+1, y)
	}

	var params mat.VecDense
	if err := params.SolveVec(A, B); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return Homography{}, fmt.Errorf("solve quad homography: %w", err)
		}
	}

	h := Homography{
		{params.AtVec(0), params.AtVec(1), params.AtVec(2)},
		{params.AtVec(3), params.AtVec(4), params.AtVec(5)},
		{params.AtVec(6), params.AtVec(7), 1},
	}
	if h.IsDegenerate() {
		return Homography{}, fmt.Errorf("quad homography is singular")
	}
	return h, nil
}
