package vision

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// CaptureOptions selects the camera and frame size.
type CaptureOptions struct {
	Device int // Video device index
	Width  int // Requested frame width, 0 for the driver default
	Height int // Requested frame height, 0 for the driver default
	Warmup int // Frames discarded while exposure settles
}

// DefaultCaptureOptions returns options for the first camera.
func DefaultCaptureOptions() CaptureOptions {
	return CaptureOptions{Warmup: 5}
}

// CaptureFrame grabs one frame. It blocks on the camera and has no timeout.
func CaptureFrame(opts CaptureOptions) (*image.RGBA, error) {
	vc, err := gocv.OpenVideoCapture(opts.Device)
	if err != nil {
		return nil, fmt.Errorf("open camera %d: %w", opts.Device, err)
	}
	defer vc.Close()

	if !vc.IsOpened() {
		return nil, fmt.Errorf("could not open camera %d", opts.Device)
	}
	if opts.Width > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(opts.Width))
	}
	if opts.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, float64(opts.Height))
	}

	frame := gocv.NewMat()
	defer frame.Close()
	for i := 0; i <= opts.Warmup; i++ {
		if ok := vc.Read(&frame); !ok {
			return nil, fmt.Errorf("camera %d returned no frame", opts.Device)
		}
	}
	if frame.Empty() {
		return nil, fmt.Errorf("camera %d returned an empty frame", opts.Device)
	}
	return matToImage(frame), nil
}
