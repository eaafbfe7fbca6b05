package alignment

import (
	"sync"

	"laser-align/pkg/geometry"
)

// Mapper converts between jig millimetres and camera pixels using one
// homography and its inverse. It is safe for concurrent use.
type Mapper struct {
	mu  sync.RWMutex
	h   geometry.Homography
	inv geometry.Homography
	set bool
}

// NewMapper returns a mapper with no homography; every conversion fails
// with ErrNoHomography until SetHomography succeeds.
func NewMapper() *Mapper {
	return &Mapper{}
}

// NewMapperFrom returns a mapper initialised with h.
func NewMapperFrom(h geometry.Homography) (*Mapper, error) {
	m := NewMapper()
	if err := m.SetHomography(h); err != nil {
		return nil, err
	}
	return m, nil
}

// SetHomography replaces the mm -> px transform. A singular matrix is
// rejected and leaves the previous state untouched.
func (m *Mapper) SetHomography(h geometry.Homography) error {
	if h.IsDegenerate() {
		return &DegenerateGeometryError{Reason: "homography is singular"}
	}
	inv, ok := h.Inverse()
	if !ok {
		return &DegenerateGeometryError{Reason: "homography has no inverse"}
	}

	m.mu.Lock()
	m.h, m.inv, m.set = h, inv, true
	m.mu.Unlock()
	return nil
}

// Homography returns the current mm -> px transform.
func (m *Mapper) Homography() (geometry.Homography, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.set {
		return geometry.Homography{}, ErrNoHomography
	}
	return m.h, nil
}

// ToPixel maps a jig point in millimetres into the image.
func (m *Mapper) ToPixel(p geometry.Point2D) (geometry.Point2D, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.set {
		return geometry.Point2D{}, ErrNoHomography
	}
	return finite(m.h.Apply(p))
}

// ToMM maps an image pixel back onto the jig plane.
func (m *Mapper) ToMM(p geometry.Point2D) (geometry.Point2D, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.set {
		return geometry.Point2D{}, ErrNoHomography
	}
	return finite(m.inv.Apply(p))
}

// RectToPixel maps the corners of r, in BL, BR, TR, TL order.
func (m *Mapper) RectToPixel(r geometry.Rect) ([4]geometry.Point2D, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out [4]geometry.Point2D
	if !m.set {
		return out, ErrNoHomography
	}
	for i, c := range r.Corners() {
		p, err := finite(m.h.Apply(c))
		if err != nil {
			return out, err
		}
		out[i] = p
	}
	return out, nil
}

// BoardCorners maps the square board outline of the given side length.
func (m *Mapper) BoardCorners(sizeMM float64) ([4]geometry.Point2D, error) {
	return m.RectToPixel(geometry.NewRect(0, 0, sizeMM, sizeMM))
}

// finite rejects points sent to the line at infinity.
func finite(p geometry.Point2D) (geometry.Point2D, error) {
	if !p.IsFinite() {
		return p, &DegenerateGeometryError{Reason: "point maps to infinity"}
	}
	return p, nil
}
