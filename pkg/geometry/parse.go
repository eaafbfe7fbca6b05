package geometry

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseRect parses "x,y,w,h" in millimetres. Width and height must be
// positive.
func ParseRect(s string) (Rect, error) {
	v, err := parseFloats(s, 4)
	if err != nil {
		return Rect{}, fmt.Errorf("rect %q: %w", s, err)
	}
	r := Rect{X: v[0], Y: v[1], Width: v[2], Height: v[3]}
	if r.Width <= 0 || r.Height <= 0 {
		return Rect{}, fmt.Errorf("rect %q: width and height must be positive", s)
	}
	return r, nil
}

// ParsePoint parses "x,y".
func ParsePoint(s string) (Point2D, error) {
	v, err := parseFloats(s, 2)
	if err != nil {
		return Point2D{}, fmt.Errorf("point %q: %w", s, err)
	}
	return Point2D{X: v[0], Y: v[1]}, nil
}

func parseFloats(s string, n int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("want %d comma-separated numbers, got %d", n, len(parts))
	}
	out := make([]float64, n)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}
