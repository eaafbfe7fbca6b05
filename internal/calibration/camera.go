// Package calibration loads camera intrinsics produced by an external
// calibration run. Nothing here solves for them.
package calibration

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid camera calibration")

// Camera holds pinhole intrinsics and lens distortion for one camera.
type Camera struct {
	CameraMatrix           [3][3]float64 `json:"camera_matrix" yaml:"camera_matrix"`
	DistortionCoefficients []float64     `json:"distortion_coefficients" yaml:"distortion_coefficients"`
	ImageSize              [2]int        `json:"image_size" yaml:"image_size"`
	ReprojectionError      float64       `json:"reprojection_error" yaml:"reprojection_error"`
}

// Validate checks the intrinsics are usable for undistortion.
func (c *Camera) Validate() error {
	fx, fy := c.CameraMatrix[0][0], c.CameraMatrix[1][1]
	if !(fx > 0) || !(fy > 0) {
		return fmt.Errorf("%w: focal lengths must be positive (fx=%v, fy=%v)", ErrInvalid, fx, fy)
	}
	if c.CameraMatrix[2] != [3]float64{0, 0, 1} {
		return fmt.Errorf("%w: camera matrix last row must be [0 0 1]", ErrInvalid)
	}
	switch n := len(c.DistortionCoefficients); n {
	case 4, 5, 8, 12, 14:
	default:
		return fmt.Errorf("%w: %d distortion coefficients, want 4, 5, 8, 12 or 14", ErrInvalid, n)
	}
	for _, k := range c.DistortionCoefficients {
		if math.IsNaN(k) || math.IsInf(k, 0) {
			return fmt.Errorf("%w: distortion coefficients must be finite", ErrInvalid)
		}
	}
	if c.ImageSize[0] <= 0 || c.ImageSize[1] <= 0 {
		return fmt.Errorf("%w: image size must be positive, got %v", ErrInvalid, c.ImageSize)
	}
	return nil
}

// Load reads a calibration from a .yaml, .yml or .json file.
func Load(path string) (*Camera, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cam Camera
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cam)
	case ".json":
		err = json.Unmarshal(data, &cam)
	default:
		return nil, fmt.Errorf("%w: unsupported calibration file %q", ErrInvalid, filepath.Base(path))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
	}

	if err := cam.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cam, nil
}

// Save writes the calibration as YAML.
func (c *Camera) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
