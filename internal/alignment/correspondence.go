package alignment

import (
	"image"
	"sort"

	"laser-align/internal/jig"
	"laser-align/internal/monitoring"
	"laser-align/pkg/geometry"
)

// MarkerSet maps a detected marker id to its pixel centroid. A set belongs to
// a single image and is never reused across captures.
type MarkerSet map[int]geometry.Point2D

// IDs returns the detected ids in ascending order.
func (s MarkerSet) IDs() []int {
	ids := make([]int, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// FiducialDetector finds fiducial markers in a camera image.
type FiducialDetector interface {
	Detect(img image.Image) (MarkerSet, error)
}

// Correspondence pairs a marker's jig position with where it was seen.
type Correspondence struct {
	MarkerID int
	MM       geometry.Point2D
	Px       geometry.Point2D
}

// MatchCorrespondences pairs configured markers with detections. Configured
// markers that were not detected, and detections of ids the jig does not
// define, are logged and skipped. The result is ordered by marker id.
func MatchCorrespondences(cfg *jig.Config, detected MarkerSet) []Correspondence {
	var out []Correspondence
	for _, m := range cfg.Markers() {
		px, ok := detected[m.ID]
		if !ok {
			monitoring.Logf("alignment: marker %d (%s) not detected, skipping", m.ID, m.Corner)
			continue
		}
		out = append(out, Correspondence{MarkerID: m.ID, MM: m.PositionMM, Px: px})
	}

	for _, id := range detected.IDs() {
		if _, ok := cfg.Marker(id); !ok {
			monitoring.Logf("alignment: ignoring marker %d, not part of jig %q", id, cfg.Name())
		}
	}
	return out
}

func splitCorrespondences(corrs []Correspondence) (mm, px []geometry.Point2D) {
	mm = make([]geometry.Point2D, len(corrs))
	px = make([]geometry.Point2D, len(corrs))
	for i, c := range corrs {
		mm[i] = c.MM
		px[i] = c.Px
	}
	return mm, px
}
