package workflow

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"laser-align/internal/alignment"
	"laser-align/internal/design"
	"laser-align/internal/device"
	"laser-align/internal/jig"
	"laser-align/internal/monitoring"
	"laser-align/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	monitoring.SetLogger(nil)
}

var jigToImage = geometry.ScaleHomography(2, 100, 50)

type fakeDetector struct {
	markers alignment.MarkerSet
}

func (d fakeDetector) Detect(image.Image) (alignment.MarkerSet, error) {
	return d.markers, nil
}

func jigMarkers(ids ...int) alignment.MarkerSet {
	cfg := jig.DefaultJig()
	set := alignment.MarkerSet{}
	for _, id := range ids {
		m, ok := cfg.Marker(id)
		if ok {
			set[id] = jigToImage.Apply(m.PositionMM)
		}
	}
	return set
}

type fakeDevice struct {
	pingErr  error
	loadErr  error
	loaded   []string
	started  int
	forceArg []bool
}

func (d *fakeDevice) Ping(context.Context) error { return d.pingErr }

func (d *fakeDevice) LoadFile(_ context.Context, path string, force bool) error {
	if d.loadErr != nil {
		return d.loadErr
	}
	d.loaded = append(d.loaded, path)
	d.forceArg = append(d.forceArg, force)
	return nil
}

func (d *fakeDevice) Start(context.Context) error {
	d.started++
	return nil
}

func writeCamera(t *testing.T, dir string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 800, 600))
	for y := 0; y < 600; y++ {
		for x := 0; x < 800; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 90, G: 110, B: 130, A: 255})
		}
	}
	path := filepath.Join(dir, "camera.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func newRunner(markers alignment.MarkerSet, dev Device) *Runner {
	return &Runner{
		NewDetector: func(string) (alignment.FiducialDetector, error) {
			return fakeDetector{markers: markers}, nil
		},
		Device: dev,
	}
}

func baseOptions(t *testing.T) Options {
	dir := t.TempDir()
	return Options{
		CameraImage:  writeCamera(t, dir),
		Jig:          jig.DefaultName,
		DesignText:   "HELLO",
		DesignRectMM: geometry.NewRect(50, 50, 100, 50),
		OutputDir:    filepath.Join(dir, "out"),
		DPI:          100,
	}
}

func TestRunCompleteWorkflow(t *testing.T) {
	dev := &fakeDevice{}
	r := newRunner(jigMarkers(0, 1, 2, 3), dev)
	annotated := false
	r.Annotate = func(img image.Image, al *alignment.Alignment, boardMM float64, rect geometry.Rect) (*image.RGBA, error) {
		annotated = true
		assert.Equal(t, 200.0, boardMM)
		assert.Len(t, al.Markers, 4)
		return image.NewRGBA(img.Bounds()), nil
	}

	opts := baseOptions(t)
	opts.Preview = true
	opts.Annotate = true
	opts.Send = true
	opts.AutoStart = true

	job, err := r.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.True(t, annotated)

	assert.Equal(t, jig.DefaultName, job.Jig)
	assert.Equal(t, []int{0, 1, 2, 3}, job.MarkersFound)
	assert.Empty(t, job.MarkersRejected)
	assert.InDelta(t, 0, job.MeanErrorPx, 1e-6)
	assert.Equal(t, [4]float64{50, 50, 100, 50}, job.DesignRectMM)

	require.NotNil(t, job.Export)
	assert.Equal(t, "aligned_design.png", job.Export.Path)
	assert.Equal(t, 394, job.Export.PixelsX)
	assert.Equal(t, 197, job.Export.PixelsY)
	assert.Equal(t, "preview.jpg", job.Preview)
	assert.Equal(t, "detection.jpg", job.Annotated)
	assert.Equal(t, "alignment_data.json", job.Alignment)

	for _, name := range []string{AlignmentFile, "aligned_design.png", PreviewFile, AnnotatedFile, JobFile} {
		assert.FileExists(t, filepath.Join(opts.OutputDir, name))
	}

	res, err := alignment.LoadResult(filepath.Join(opts.OutputDir, AlignmentFile))
	require.NoError(t, err)
	assert.InDelta(t, 200, res.CornersPx[0].X, 1e-6)
	assert.InDelta(t, 150, res.CornersPx[0].Y, 1e-6)

	require.NotNil(t, job.Device)
	assert.True(t, job.Device.Loaded)
	assert.True(t, job.Device.Started)
	assert.Equal(t, []string{filepath.Join(opts.OutputDir, "aligned_design.png")}, dev.loaded)
	assert.Equal(t, []bool{true}, dev.forceArg)

	saved, err := LoadJob(filepath.Join(opts.OutputDir, JobFile))
	require.NoError(t, err)
	assert.Equal(t, job.ID, saved.ID)
	assert.Equal(t, "HELLO", saved.DesignText)
	assert.Equal(t, filepath.Join(opts.OutputDir, "aligned_design.png"),
		Resolve(filepath.Join(opts.OutputDir, JobFile), saved.Export.Path))
}

func TestRunDeviceFailureKeepsExport(t *testing.T) {
	unreachable := &device.UnreachableError{Command: "PING", Err: device.ErrNoReply}
	dev := &fakeDevice{pingErr: unreachable}
	r := newRunner(jigMarkers(0, 1, 2, 3), dev)

	opts := baseOptions(t)
	opts.Send = true

	job, err := r.Run(context.Background(), opts)
	require.Error(t, err)

	var sendErr *SendError
	require.True(t, errors.As(err, &sendErr))
	assert.ErrorIs(t, err, device.ErrNoReply)

	assert.FileExists(t, filepath.Join(opts.OutputDir, "aligned_design.png"))
	require.NotNil(t, job.Device)
	assert.False(t, job.Device.Loaded)
	assert.NotEmpty(t, job.Device.Error)
	assert.Empty(t, dev.loaded)

	saved, err := LoadJob(filepath.Join(opts.OutputDir, JobFile))
	require.NoError(t, err)
	assert.Equal(t, job.Device.Error, saved.Device.Error)
}

func TestRunInsufficientMarkers(t *testing.T) {
	r := newRunner(jigMarkers(0, 1, 2), nil)
	opts := baseOptions(t)

	_, err := r.Run(context.Background(), opts)
	var ime *alignment.InsufficientMarkersError
	require.True(t, errors.As(err, &ime))
	assert.Equal(t, 3, ime.Found)
	assert.NoFileExists(t, filepath.Join(opts.OutputDir, JobFile))
}

func TestRunExportFailureSkipsDevice(t *testing.T) {
	dev := &fakeDevice{}
	r := newRunner(jigMarkers(0, 1, 2, 3), dev)

	opts := baseOptions(t)
	opts.DesignText = ""
	opts.DesignImage = filepath.Join(t.TempDir(), "design.svg")
	opts.Send = true

	job, err := r.Run(context.Background(), opts)
	require.Error(t, err)
	assert.Nil(t, job.Export)
	assert.NotEmpty(t, job.ExportErr)
	assert.Nil(t, job.Device)
	assert.Empty(t, dev.loaded)
	assert.FileExists(t, filepath.Join(opts.OutputDir, AlignmentFile))
	assert.FileExists(t, filepath.Join(opts.OutputDir, JobFile))
}

func TestRunRequiresDesign(t *testing.T) {
	r := newRunner(jigMarkers(0, 1, 2, 3), nil)
	opts := baseOptions(t)
	opts.DesignText = ""

	_, err := r.Run(context.Background(), opts)
	assert.ErrorIs(t, err, design.ErrMissingDesign)
}

func TestRunCapturesWhenNoImage(t *testing.T) {
	r := newRunner(jigMarkers(0, 1, 2, 3), nil)
	r.Capture = func() (image.Image, error) {
		return image.NewRGBA(image.Rect(0, 0, 640, 480)), nil
	}

	opts := baseOptions(t)
	opts.CameraImage = ""

	job, err := r.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Regexp(t, `^camera_\d{8}_\d{6}\.jpg$`, job.CameraImage)
	assert.FileExists(t, filepath.Join(opts.OutputDir, job.CameraImage))
}

func TestRunCalibrationNeedsBackend(t *testing.T) {
	r := newRunner(jigMarkers(0, 1, 2, 3), nil)
	opts := baseOptions(t)
	opts.Calibration = filepath.Join(t.TempDir(), "camera.yaml")

	_, err := r.Run(context.Background(), opts)
	assert.Error(t, err)
}

func TestRunUnknownJig(t *testing.T) {
	r := newRunner(jigMarkers(0, 1, 2, 3), nil)
	opts := baseOptions(t)
	opts.Jig = filepath.Join(t.TempDir(), "missing.json")

	_, err := r.Run(context.Background(), opts)
	assert.Error(t, err)
}
