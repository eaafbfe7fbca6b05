package vision

import (
	"image"

	"laser-align/internal/alignment"
	"laser-align/internal/workflow"
	"laser-align/pkg/geometry"
)

// NewDetector returns an ArUco detector as an alignment.FiducialDetector.
func NewDetector(dictionary string) (alignment.FiducialDetector, error) {
	d, err := NewArucoDetector(dictionary)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// AnnotateAlignment draws an alignment and the design rectangle.
func AnnotateAlignment(img image.Image, al *alignment.Alignment, boardMM float64, rect geometry.Rect) (*image.RGBA, error) {
	return Annotate(img, Annotation{
		Markers:     al.Markers,
		Mapper:      al.Mapper,
		BoardSizeMM: boardMM,
		Design:      &rect,
	})
}

// NewRunner returns a workflow runner backed by OpenCV detection,
// undistortion, capture and annotation. With useOpenCV set the homography
// solve and preview warp also go through OpenCV.
func NewRunner(capture CaptureOptions, useOpenCV bool, dev workflow.Device) *workflow.Runner {
	r := &workflow.Runner{
		NewDetector: NewDetector,
		Undistort:   Undistort,
		Capture: func() (image.Image, error) {
			return CaptureFrame(capture)
		},
		Annotate: AnnotateAlignment,
		Device:   dev,
	}
	if useOpenCV {
		r.Solver = CVSolver{}
		r.Warper = CVWarper{}
	}
	return r
}
