package geometry

import "math"

// collinearTolerance is the sine of the smallest angle between two edges of a
// triangle before it is treated as flat.
const collinearTolerance = 1e-6

// IsConvex returns true if the polygon vertices form a convex polygon.
// The polygon is assumed to be simple (non-self-intersecting).
func IsConvex(polygon []Point2D) bool {
	if len(polygon) < 3 {
		return false
	}

	n := len(polygon)
	var sign int

	for i := 0; i < n; i++ {
		cross := crossProduct(
			polygon[i],
			polygon[(i+1)%n],
			polygon[(i+2)%n],
		)

		if cross != 0 {
			currentSign := 1
			if cross < 0 {
				currentSign = -1
			}

			if sign == 0 {
				sign = currentSign
			} else if currentSign != sign {
				return false
			}
		}
	}

	return true
}

// PointInPolygon tests if a point is inside a polygon using ray casting.
func PointInPolygon(p Point2D, polygon []Point2D) bool {
	if len(polygon) < 3 {
		return false
	}

	inside := false
	n := len(polygon)

	for i := 0; i < n; i++ {
		j := (i + 1) % n
		pi, pj := polygon[i], polygon[j]

		// Check if ray from p going right intersects edge pi-pj
		if ((pi.Y > p.Y) != (pj.Y > p.Y)) &&
			(p.X < (pj.X-pi.X)*(p.Y-pi.Y)/(pj.Y-pi.Y)+pi.X) {
			inside = !inside
		}
	}

	return inside
}

// Collinear reports whether three points lie on one line, or two of them
// coincide. The test is scale independent.
func Collinear(a, b, c Point2D) bool {
	la := a.Distance(b)
	lb := a.Distance(c)
	if la == 0 || lb == 0 || b == c {
		return true
	}
	return math.Abs(crossProduct(a, b, c)) <= collinearTolerance*la*lb
}

// Orientation returns +1 for a counter-clockwise turn a→b→c, -1 for clockwise
// and 0 for collinear points (Y up).
func Orientation(a, b, c Point2D) int {
	if Collinear(a, b, c) {
		return 0
	}
	if crossProduct(a, b, c) > 0 {
		return 1
	}
	return -1
}

// crossProduct computes the cross product of vectors OA and OB.
func crossProduct(o, a, b Point2D) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}
