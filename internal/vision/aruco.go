package vision

import (
	"fmt"
	"image"
	"sort"

	"laser-align/internal/alignment"
	"laser-align/internal/monitoring"
	"laser-align/pkg/geometry"

	"gocv.io/x/gocv"
)

var arucoDictionaries = map[string]gocv.ArucoDictionaryCode{
	"DICT_4X4_50":         gocv.ArucoDict4x4_50,
	"DICT_4X4_100":        gocv.ArucoDict4x4_100,
	"DICT_4X4_250":        gocv.ArucoDict4x4_250,
	"DICT_4X4_1000":       gocv.ArucoDict4x4_1000,
	"DICT_5X5_50":         gocv.ArucoDict5x5_50,
	"DICT_5X5_100":        gocv.ArucoDict5x5_100,
	"DICT_5X5_250":        gocv.ArucoDict5x5_250,
	"DICT_5X5_1000":       gocv.ArucoDict5x5_1000,
	"DICT_6X6_50":         gocv.ArucoDict6x6_50,
	"DICT_6X6_100":        gocv.ArucoDict6x6_100,
	"DICT_6X6_250":        gocv.ArucoDict6x6_250,
	"DICT_6X6_1000":       gocv.ArucoDict6x6_1000,
	"DICT_7X7_50":         gocv.ArucoDict7x7_50,
	"DICT_7X7_100":        gocv.ArucoDict7x7_100,
	"DICT_7X7_250":        gocv.ArucoDict7x7_250,
	"DICT_7X7_1000":       gocv.ArucoDict7x7_1000,
	"DICT_ARUCO_ORIGINAL": gocv.ArucoDictArucoOriginal,
	"DICT_APRILTAG_16h5":  gocv.ArucoDictAprilTag_16h5,
	"DICT_APRILTAG_25h9":  gocv.ArucoDictAprilTag_25h9,
	"DICT_APRILTAG_36h10": gocv.ArucoDictAprilTag_36h10,
	"DICT_APRILTAG_36h11": gocv.ArucoDictAprilTag_36h11,
}

// ArucoDetector finds ArUco markers and reports each marker's centroid.
type ArucoDetector struct {
	dictionary gocv.ArucoDictionaryCode
	name       string
}

// NewArucoDetector returns a detector for a dictionary name as written in
// jig files, e.g. "DICT_4X4_50".
func NewArucoDetector(dictionary string) (*ArucoDetector, error) {
	code, ok := arucoDictionaries[dictionary]
	if !ok {
		return nil, fmt.Errorf("unknown ArUco dictionary %q", dictionary)
	}
	return &ArucoDetector{dictionary: code, name: dictionary}, nil
}

// Detect implements alignment.FiducialDetector.
func (d *ArucoDetector) Detect(img image.Image) (alignment.MarkerSet, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("empty input image")
	}
	mat := imageToMat(img)
	defer mat.Close()
	return d.DetectMat(mat)
}

// DetectMat detects markers in a BGR or gray Mat.
func (d *ArucoDetector) DetectMat(mat gocv.Mat) (alignment.MarkerSet, error) {
	if mat.Empty() {
		return nil, fmt.Errorf("empty input image")
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if mat.Channels() == 1 {
		mat.CopyTo(&gray)
	} else {
		gocv.CvtColor(mat, &gray, gocv.ColorBGRToGray)
	}

	detector := gocv.NewArucoDetectorWithParams(
		gocv.GetPredefinedDictionary(d.dictionary),
		gocv.NewArucoDetectorParameters(),
	)
	defer detector.Close()

	corners, ids, _ := detector.DetectMarkers(gray)

	markers := make(alignment.MarkerSet, len(ids))
	for i, id := range ids {
		if _, dup := markers[id]; dup {
			monitoring.Logf("vision: marker %d detected more than once, keeping the first", id)
			continue
		}
		markers[id] = markerCentroid(corners[i])
	}

	ids = append([]int(nil), ids...)
	sort.Ints(ids)
	monitoring.Logf("vision: %s found %d markers %v", d.name, len(markers), ids)
	return markers, nil
}

// markerCentroid is the mean of a marker's four corners.
func markerCentroid(corners []gocv.Point2f) geometry.Point2D {
	pts := make([]geometry.Point2D, len(corners))
	for i, c := range corners {
		pts[i] = geometry.Point2D{X: float64(c.X), Y: float64(c.Y)}
	}
	return geometry.Centroid(pts)
}
