package vision

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"laser-align/internal/alignment"
	"laser-align/pkg/colorutil"
	"laser-align/pkg/geometry"

	"gocv.io/x/gocv"
)

// axisLengthMM is the length of the drawn X and Y axes.
const axisLengthMM = 50

// Annotation selects what Annotate draws.
type Annotation struct {
	Markers     alignment.MarkerSet
	Mapper      *alignment.Mapper // nil skips board, axes and design
	BoardSizeMM float64
	Design      *geometry.Rect // optional design rectangle in mm
}

// Annotate draws detected markers, the board outline, the jig axes and the
// design rectangle on a copy of img.
func Annotate(img image.Image, a Annotation) (*image.RGBA, error) {
	mat := imageToMat(img)
	defer mat.Close()

	for _, id := range a.Markers.IDs() {
		c := toPoint(a.Markers[id])
		gocv.Circle(&mat, c, 10, colorutil.Green, -1)
		gocv.PutText(&mat, fmt.Sprintf("ID:%d", id), c.Add(image.Pt(15, 0)),
			gocv.FontHersheySimplex, 1, colorutil.Green, 2)
	}

	if a.Mapper != nil {
		if a.BoardSizeMM > 0 {
			board, err := a.Mapper.BoardCorners(a.BoardSizeMM)
			if err != nil {
				return nil, err
			}
			drawQuad(&mat, board, colorutil.Cyan, 3)
		}

		origin, err := a.Mapper.ToPixel(geometry.Point2D{})
		if err != nil {
			return nil, err
		}
		xAxis, err := a.Mapper.ToPixel(geometry.NewPoint2D(axisLengthMM, 0))
		if err != nil {
			return nil, err
		}
		yAxis, err := a.Mapper.ToPixel(geometry.NewPoint2D(0, axisLengthMM))
		if err != nil {
			return nil, err
		}

		o := toPoint(origin)
		gocv.ArrowedLine(&mat, o, toPoint(xAxis), colorutil.Red, 3)
		gocv.PutText(&mat, "X", toPoint(xAxis), gocv.FontHersheySimplex, 1, colorutil.Red, 2)
		gocv.ArrowedLine(&mat, o, toPoint(yAxis), colorutil.Green, 3)
		gocv.PutText(&mat, "Y", toPoint(yAxis), gocv.FontHersheySimplex, 1, colorutil.Green, 2)
		gocv.PutText(&mat, "Origin (0,0)", o.Add(image.Pt(-50, 30)),
			gocv.FontHersheySimplex, 0.6, colorutil.White, 2)

		if a.Design != nil {
			corners, err := a.Mapper.RectToPixel(*a.Design)
			if err != nil {
				return nil, err
			}
			drawQuad(&mat, corners, colorutil.Magenta, 2)
			center := toPoint(geometry.Centroid(corners[:]))
			gocv.Circle(&mat, center, 8, colorutil.Magenta, -1)
			gocv.PutText(&mat, "Design", center.Add(image.Pt(10, 0)),
				gocv.FontHersheySimplex, 0.8, colorutil.Magenta, 2)
		}
	}

	return matToImage(mat), nil
}

func drawQuad(mat *gocv.Mat, corners [4]geometry.Point2D, c color.RGBA, thickness int) {
	for i := range corners {
		gocv.Line(mat, toPoint(corners[i]), toPoint(corners[(i+1)%4]), c, thickness)
	}
}

func toPoint(p geometry.Point2D) image.Point {
	return image.Pt(int(math.Round(p.X)), int(math.Round(p.Y)))
}
