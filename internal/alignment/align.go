package alignment

import (
	"encoding/json"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"

	"laser-align/internal/jig"
	"laser-align/internal/monitoring"
	"laser-align/pkg/geometry"
)

// Result describes where a design rectangle lands in the camera image.
type Result struct {
	DesignRectMM geometry.Rect
	CornersPx    [4]geometry.Point2D // BL, BR, TR, TL
	CenterPx     geometry.Point2D
	AngleDeg     float64 // direction of the bottom edge, (-180, 180]
	SizePx       geometry.Size
	ImageSize    image.Point
}

// Calculate maps rect into the image and derives its centre, rotation and
// pixel edge lengths from the four transformed corners.
func Calculate(m *Mapper, rect geometry.Rect, imageSize image.Point) (*Result, error) {
	corners, err := m.RectToPixel(rect)
	if err != nil {
		return nil, err
	}

	bl, br, tl := corners[0], corners[1], corners[3]
	bottom := br.Sub(bl)

	return &Result{
		DesignRectMM: rect,
		CornersPx:    corners,
		CenterPx:     geometry.Centroid(corners[:]),
		AngleDeg:     math.Atan2(bottom.Y, bottom.X) * 180 / math.Pi,
		SizePx:       geometry.NewSize(br.Distance(bl), tl.Distance(bl)),
		ImageSize:    imageSize,
	}, nil
}

type resultJSON struct {
	DesignRectMM [4]float64    `json:"design_rect_mm"`
	CornersPx    [4][2]float64 `json:"corners_px"`
	CenterPx     [2]float64    `json:"center_px"`
	AngleDeg     float64       `json:"angle_deg"`
	SizePx       [2]float64    `json:"size_px"`
	ImageSize    [2]int        `json:"image_size"`
}

// MarshalJSON writes the flat array form consumed by downstream tools.
func (r Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{
		DesignRectMM: r.DesignRectMM.Array(),
		CenterPx:     r.CenterPx.Pair(),
		AngleDeg:     r.AngleDeg,
		SizePx:       [2]float64{r.SizePx.Width, r.SizePx.Height},
		ImageSize:    [2]int{r.ImageSize.X, r.ImageSize.Y},
	}
	for i, c := range r.CornersPx {
		out.CornersPx[i] = c.Pair()
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *Result) UnmarshalJSON(data []byte) error {
	var in resultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	r.DesignRectMM = geometry.RectFromArray(in.DesignRectMM)
	for i, c := range in.CornersPx {
		r.CornersPx[i] = geometry.PointFromPair(c)
	}
	r.CenterPx = geometry.PointFromPair(in.CenterPx)
	r.AngleDeg = in.AngleDeg
	r.SizePx = geometry.NewSize(in.SizePx[0], in.SizePx[1])
	r.ImageSize = image.Pt(in.ImageSize[0], in.ImageSize[1])
	return nil
}

// Save writes the result as indented JSON, creating parent directories.
func (r *Result) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal alignment: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write alignment: %w", err)
	}
	return nil
}

// Mapper recovers the mm -> px transform from the saved corners, so a result
// loaded from disk can place further rectangles on the same image.
func (r *Result) Mapper() (*Mapper, error) {
	h, err := geometry.QuadToQuad(r.DesignRectMM.Corners(), r.CornersPx)
	if err != nil {
		return nil, &DegenerateGeometryError{Reason: err.Error()}
	}
	return NewMapperFrom(h)
}

// LoadResult reads a result written by Save.
func LoadResult(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read alignment: %w", err)
	}
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse alignment %s: %w", path, err)
	}
	return &r, nil
}

// Aligner runs detection, matching and estimation for one jig.
type Aligner struct {
	Jig       *jig.Config
	Detector  FiducialDetector
	Estimator *Estimator
}

// Alignment is everything learned about one camera image.
type Alignment struct {
	Markers         MarkerSet
	Correspondences []Correspondence
	Estimate        *Estimate
	Mapper          *Mapper
	ImageSize       image.Point
}

// NewAligner returns an aligner with default estimation options.
func NewAligner(cfg *jig.Config, detector FiducialDetector) *Aligner {
	return &Aligner{
		Jig:       cfg,
		Detector:  detector,
		Estimator: NewEstimator(DefaultOptions()),
	}
}

// Locate detects the jig markers in img and fits the mm -> px homography.
func (a *Aligner) Locate(img image.Image) (*Alignment, error) {
	if a.Detector == nil {
		return nil, fmt.Errorf("no fiducial detector configured")
	}
	markers, err := a.Detector.Detect(img)
	if err != nil {
		return nil, fmt.Errorf("detect markers: %w", err)
	}
	monitoring.Logf("alignment: detected %d markers %v", len(markers), markers.IDs())
	return a.FromMarkers(markers, img.Bounds().Size())
}

// FromMarkers fits the homography from an already detected marker set.
func (a *Aligner) FromMarkers(markers MarkerSet, imageSize image.Point) (*Alignment, error) {
	corrs := MatchCorrespondences(a.Jig, markers)

	est := a.Estimator
	if est == nil {
		est = NewEstimator(DefaultOptions())
	}
	fit, err := est.Estimate(corrs)
	if err != nil {
		return nil, err
	}
	if rejected := fit.RejectedMarkers(); len(rejected) > 0 {
		monitoring.Logf("alignment: markers %v rejected as outliers", rejected)
	}

	mapper, err := NewMapperFrom(fit.Homography)
	if err != nil {
		return nil, err
	}
	return &Alignment{
		Markers:         markers,
		Correspondences: corrs,
		Estimate:        fit,
		Mapper:          mapper,
		ImageSize:       imageSize,
	}, nil
}

// Align locates the jig and maps rect into the image.
func (a *Aligner) Align(img image.Image, rect geometry.Rect) (*Alignment, *Result, error) {
	al, err := a.Locate(img)
	if err != nil {
		return nil, nil, err
	}
	res, err := al.Calculate(rect)
	if err != nil {
		return nil, nil, err
	}
	return al, res, nil
}

// Calculate maps rect through this alignment's homography.
func (al *Alignment) Calculate(rect geometry.Rect) (*Result, error) {
	return Calculate(al.Mapper, rect, al.ImageSize)
}
