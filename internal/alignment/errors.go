package alignment

import (
	"errors"
	"fmt"
)

// ErrNoHomography is returned when a transform is requested before one has
// been estimated.
var ErrNoHomography = errors.New("no homography has been set")

// ErrDegenerateGeometry matches every *DegenerateGeometryError via errors.Is.
var ErrDegenerateGeometry = errors.New("degenerate marker geometry")

// InsufficientMarkersError reports fewer matched correspondences than a
// homography fit needs.
type InsufficientMarkersError struct {
	Found    int
	Required int
}

func (e *InsufficientMarkersError) Error() string {
	return fmt.Sprintf("need at least %d markers for a homography, found %d", e.Required, e.Found)
}

// DegenerateGeometryError reports that no invertible homography could be
// fitted to the correspondences.
type DegenerateGeometryError struct {
	Reason string
}

func (e *DegenerateGeometryError) Error() string {
	return fmt.Sprintf("%v: %s", ErrDegenerateGeometry, e.Reason)
}

func (e *DegenerateGeometryError) Is(target error) bool {
	return target == ErrDegenerateGeometry
}
