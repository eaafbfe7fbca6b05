package workflow

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"laser-align/pkg/geometry"

	"github.com/google/uuid"
)

// JobVersion is the current job record format.
const JobVersion = 1

// Job is the on-disk record of one workflow run (job.json in the output
// directory).
type Job struct {
	Version  int       `json:"version"`
	ID       string    `json:"id"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
	Jig      string    `json:"jig"`

	// Inputs (relative to the job file where possible)
	CameraImage  string     `json:"camera_image,omitempty"`
	Calibration  string     `json:"calibration,omitempty"`
	DesignImage  string     `json:"design_image,omitempty"`
	DesignText   string     `json:"design_text,omitempty"`
	DesignRectMM [4]float64 `json:"design_rect_mm"`

	// Alignment
	MarkersFound    []int   `json:"markers_found,omitempty"`
	MarkersRejected []int   `json:"markers_rejected,omitempty"`
	MeanErrorPx     float64 `json:"mean_error_px"`

	// Outputs (relative to the job file)
	Alignment string        `json:"alignment,omitempty"`
	Export    *Output       `json:"export,omitempty"`
	ExportErr string        `json:"export_error,omitempty"`
	Preview   string        `json:"preview,omitempty"`
	Annotated string        `json:"annotated,omitempty"`
	Device    *DeviceStatus `json:"device,omitempty"`
}

// Output describes the exported design file.
type Output struct {
	Path    string     `json:"path"`
	Format  string     `json:"format"`
	PixelsX int        `json:"pixels_x"`
	PixelsY int        `json:"pixels_y"`
	SizeMM  [2]float64 `json:"size_mm"`
	DPI     float64    `json:"dpi"`
}

// DeviceStatus records what happened when the export was sent on.
type DeviceStatus struct {
	Loaded  bool   `json:"loaded"`
	Started bool   `json:"started"`
	Error   string `json:"error,omitempty"`
}

// NewJob creates a record for a run against the named jig.
func NewJob(jigName string, rect geometry.Rect) *Job {
	now := time.Now()
	return &Job{
		Version:      JobVersion,
		ID:           uuid.NewString(),
		Created:      now,
		Modified:     now,
		Jig:          jigName,
		DesignRectMM: rect.Array(),
	}
}

// LoadJob reads a job record.
func LoadJob(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

// Save writes the record to path.
func (j *Job) Save(path string) error {
	j.Modified = time.Now()

	data, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// relTo returns target relative to the directory holding jobPath, or target
// itself when no relative path exists.
func relTo(jobPath, target string) string {
	if target == "" {
		return ""
	}
	rel, err := filepath.Rel(filepath.Dir(jobPath), target)
	if err != nil {
		return target
	}
	return filepath.ToSlash(rel)
}

// Resolve returns the absolute form of a path stored in a job at jobPath.
func Resolve(jobPath, stored string) string {
	if stored == "" || filepath.IsAbs(stored) {
		return stored
	}
	return filepath.Join(filepath.Dir(jobPath), filepath.FromSlash(stored))
}
