package vision

import (
	"fmt"
	"image"

	"laser-align/internal/calibration"
	"laser-align/internal/monitoring"

	"gocv.io/x/gocv"
)

// Undistort removes lens distortion from img using cam. All source pixels are
// kept (alpha 1), so the borders may show black where the lens had none.
func Undistort(img image.Image, cam *calibration.Camera) (*image.RGBA, error) {
	if cam == nil {
		return nil, fmt.Errorf("no camera calibration")
	}
	if err := cam.Validate(); err != nil {
		return nil, err
	}

	size := img.Bounds().Size()
	if calib := image.Pt(cam.ImageSize[0], cam.ImageSize[1]); calib != size {
		monitoring.Logf("vision: image is %dx%d but calibration was made at %dx%d",
			size.X, size.Y, calib.X, calib.Y)
	}

	src := imageToMat(img)
	defer src.Close()
	k := float64Mat(3, 3, func(r, c int) float64 { return cam.CameraMatrix[r][c] })
	defer k.Close()
	dist := float64Mat(1, len(cam.DistortionCoefficients), func(_, c int) float64 {
		return cam.DistortionCoefficients[c]
	})
	defer dist.Close()

	newK, _ := gocv.GetOptimalNewCameraMatrixWithParams(k, dist, size, 1, size, false)
	defer newK.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.Undistort(src, &dst, k, dist, newK)
	if dst.Empty() {
		return nil, fmt.Errorf("undistort produced no output")
	}
	return matToImage(dst), nil
}
