// Package workflow sequences one complete run: camera image, alignment,
// design export, preview and the optional hand-off to the laser software.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"time"

	"laser-align/internal/alignment"
	"laser-align/internal/calibration"
	"laser-align/internal/design"
	"laser-align/internal/jig"
	"laser-align/internal/monitoring"
	"laser-align/internal/preview"
	"laser-align/pkg/geometry"
)

// Output file names inside Options.OutputDir.
const (
	AlignmentFile = "alignment_data.json"
	ExportBase    = "aligned_design"
	PreviewFile   = "preview.jpg"
	AnnotatedFile = "detection.jpg"
	JobFile       = "job.json"
)

// Device is the part of the device client a run needs.
type Device interface {
	Ping(ctx context.Context) error
	LoadFile(ctx context.Context, path string, force bool) error
	Start(ctx context.Context) error
}

// Runner holds the pluggable capabilities used by Run. Vision backends are
// injected so this package stays free of native dependencies.
type Runner struct {
	// NewDetector builds a marker detector for a dictionary name. Required.
	NewDetector func(dictionary string) (alignment.FiducialDetector, error)
	// Undistort corrects lens distortion. Required when a calibration is given.
	Undistort func(img image.Image, cam *calibration.Camera) (*image.RGBA, error)
	// Capture grabs a frame when no camera image path is given.
	Capture func() (image.Image, error)
	// Annotate draws detections and the design outline.
	Annotate func(img image.Image, al *alignment.Alignment, boardMM float64, rect geometry.Rect) (*image.RGBA, error)
	// Solver overrides the default DLT solver.
	Solver alignment.Solver
	// Warper overrides the preview warper.
	Warper preview.Warper
	// Device receives the export when Options.Send is set.
	Device Device
}

// Options select the inputs and outputs of one run.
type Options struct {
	CameraImage string // empty captures a frame
	Jig         string // registered jig name or JSON path
	Calibration string // optional camera calibration

	DesignImage  string
	DesignText   string // used when DesignImage is empty
	DesignRectMM geometry.Rect

	OutputDir string
	Format    design.Format
	DPI       float64

	Estimation     alignment.Options
	Preview        bool
	WhiteThreshold uint8
	Annotate       bool

	Send      bool
	AutoStart bool
}

// SendError reports a device hand-off failure. The export stays on disk.
type SendError struct {
	Err error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to device: %v", e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// Run executes the workflow and writes a job record. Geometry failures abort
// the run. Export failures skip the device step but still leave the alignment
// and job record. Device failures are recorded and returned as *SendError.
func (r *Runner) Run(ctx context.Context, opts Options) (*Job, error) {
	if r.NewDetector == nil {
		return nil, errors.New("no detector backend configured")
	}
	if opts.DesignImage == "" && opts.DesignText == "" {
		return nil, design.ErrMissingDesign
	}
	if opts.DesignRectMM.Width <= 0 || opts.DesignRectMM.Height <= 0 {
		return nil, fmt.Errorf("design rectangle must have positive size, got %gx%g mm",
			opts.DesignRectMM.Width, opts.DesignRectMM.Height)
	}
	if opts.DPI <= 0 {
		opts.DPI = design.DefaultDPI
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}

	cfg, err := jig.Resolve(opts.Jig)
	if err != nil {
		return nil, err
	}
	job := NewJob(cfg.Name(), opts.DesignRectMM)
	jobPath := filepath.Join(opts.OutputDir, JobFile)

	// Camera image
	img, err := r.cameraImage(opts, job, jobPath)
	if err != nil {
		return nil, err
	}

	// Alignment
	detector, err := r.NewDetector(cfg.Dictionary())
	if err != nil {
		return nil, err
	}
	aligner := alignment.NewAligner(cfg, detector)
	aligner.Estimator = alignment.NewEstimator(opts.Estimation)
	if r.Solver != nil {
		aligner.Estimator.Solver = r.Solver
	}
	al, res, err := aligner.Align(img, opts.DesignRectMM)
	if err != nil {
		return nil, fmt.Errorf("align: %w", err)
	}
	job.MarkersFound = al.Markers.IDs()
	job.MarkersRejected = al.Estimate.RejectedMarkers()
	job.MeanErrorPx = al.Estimate.MeanError
	fmt.Printf("Aligned with %d/%d markers, mean error %.2fpx, angle %.1f°\n",
		al.Estimate.InlierCount(), len(al.Correspondences), al.Estimate.MeanError, res.AngleDeg)

	alignPath := filepath.Join(opts.OutputDir, AlignmentFile)
	if err := res.Save(alignPath); err != nil {
		return nil, fmt.Errorf("save alignment: %w", err)
	}
	job.Alignment = relTo(jobPath, alignPath)

	// Design
	asset, exportErr := r.loadDesign(opts, job, jobPath)
	var info *design.ExportInfo
	if exportErr == nil {
		exportPath := filepath.Join(opts.OutputDir, ExportBase+opts.Format.Ext())
		info, exportErr = design.NewExporter(opts.DPI).Export(exportPath, asset, opts.DesignRectMM.Size(), opts.Format)
	}
	if exportErr != nil {
		job.ExportErr = exportErr.Error()
		monitoring.Logf("workflow: export failed: %v", exportErr)
	} else {
		job.Export = &Output{
			Path:    relTo(jobPath, info.Path),
			Format:  info.Format.String(),
			PixelsX: info.PixelSize.X,
			PixelsY: info.PixelSize.Y,
			SizeMM:  [2]float64{info.SizeMM.Width, info.SizeMM.Height},
			DPI:     info.DPI,
		}
		fmt.Printf("Exported %s (%dx%dpx at %v dpi)\n", info.Path, info.PixelSize.X, info.PixelSize.Y, info.DPI)
	}

	// Preview and annotation never fail the run.
	if opts.Preview && asset != nil {
		r.writePreview(opts, asset, res, img, job, jobPath)
	}
	if opts.Annotate && r.Annotate != nil {
		r.writeAnnotation(opts, al, cfg.BoardSizeMM(), img, job, jobPath)
	}

	var sendErr error
	if opts.Send && info != nil {
		var err error
		if job.Device, err = r.send(ctx, info.Path, opts.AutoStart); err != nil {
			job.Device.Error = err.Error()
			sendErr = &SendError{Err: err}
		}
	}

	if err := job.Save(jobPath); err != nil {
		return job, fmt.Errorf("save job: %w", err)
	}
	if exportErr != nil {
		return job, fmt.Errorf("export: %w", exportErr)
	}
	return job, sendErr
}

func (r *Runner) cameraImage(opts Options, job *Job, jobPath string) (image.Image, error) {
	var img image.Image
	path := opts.CameraImage
	if path == "" {
		if r.Capture == nil {
			return nil, errors.New("no camera image and no capture backend")
		}
		frame, err := r.Capture()
		if err != nil {
			return nil, fmt.Errorf("capture: %w", err)
		}
		path = filepath.Join(opts.OutputDir, "camera_"+time.Now().Format("20060102_150405")+".jpg")
		if err := preview.Save(path, frame); err != nil {
			return nil, err
		}
		fmt.Printf("Captured %s\n", path)
		img = frame
	} else {
		asset, err := design.Load(path)
		if err != nil {
			return nil, fmt.Errorf("camera image: %w", err)
		}
		img = asset.Image
	}
	job.CameraImage = relTo(jobPath, path)

	if opts.Calibration == "" {
		return img, nil
	}
	if r.Undistort == nil {
		return nil, errors.New("calibration given but no undistortion backend")
	}
	cam, err := calibration.Load(opts.Calibration)
	if err != nil {
		return nil, err
	}
	job.Calibration = relTo(jobPath, opts.Calibration)
	undistorted, err := r.Undistort(img, cam)
	if err != nil {
		return nil, fmt.Errorf("undistort: %w", err)
	}
	return undistorted, nil
}

func (r *Runner) loadDesign(opts Options, job *Job, jobPath string) (*design.Asset, error) {
	if opts.DesignImage != "" {
		job.DesignImage = relTo(jobPath, opts.DesignImage)
		return design.Load(opts.DesignImage)
	}
	job.DesignText = opts.DesignText
	return design.RenderText(opts.DesignText, opts.DesignRectMM.Size(), opts.DPI)
}

func (r *Runner) writePreview(opts Options, asset *design.Asset, res *alignment.Result, camera image.Image, job *Job, jobPath string) {
	c := preview.NewCompositor()
	if r.Warper != nil {
		c.Warper = r.Warper
	}
	if opts.WhiteThreshold > 0 {
		c.WhiteThreshold = opts.WhiteThreshold
	}
	out, err := c.Render(asset, res, camera)
	if err != nil {
		monitoring.Logf("workflow: preview failed: %v", err)
		return
	}
	path := filepath.Join(opts.OutputDir, PreviewFile)
	if err := preview.Save(path, out); err != nil {
		monitoring.Logf("workflow: save preview: %v", err)
		return
	}
	job.Preview = relTo(jobPath, path)
}

func (r *Runner) writeAnnotation(opts Options, al *alignment.Alignment, boardMM float64, camera image.Image, job *Job, jobPath string) {
	out, err := r.Annotate(camera, al, boardMM, opts.DesignRectMM)
	if err != nil {
		monitoring.Logf("workflow: annotate failed: %v", err)
		return
	}
	path := filepath.Join(opts.OutputDir, AnnotatedFile)
	if err := preview.Save(path, out); err != nil {
		monitoring.Logf("workflow: save annotation: %v", err)
		return
	}
	job.Annotated = relTo(jobPath, path)
}

// send loads the export into the device software. Nothing already written is
// removed on failure.
func (r *Runner) send(ctx context.Context, path string, autoStart bool) (*DeviceStatus, error) {
	st := &DeviceStatus{}
	if r.Device == nil {
		return st, errors.New("no device configured")
	}
	if err := r.Device.Ping(ctx); err != nil {
		return st, err
	}
	if err := r.Device.LoadFile(ctx, path, true); err != nil {
		return st, err
	}
	st.Loaded = true
	fmt.Printf("Loaded %s into the laser software\n", filepath.Base(path))

	if autoStart {
		if err := r.Device.Start(ctx); err != nil {
			return st, err
		}
		st.Started = true
	}
	return st, nil
}
