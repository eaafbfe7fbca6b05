package design

import (
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"laser-align/internal/monitoring"
	"laser-align/pkg/geometry"

	"golang.org/x/image/draw"
)

const (
	// DefaultDPI is the export resolution when none is configured.
	DefaultDPI = 300.0
	mmPerInch  = 25.4
)

// ErrMissingDesign is returned when export or preview is asked for without a
// design.
var ErrMissingDesign = errors.New("no design loaded")

// Format is an export encoding.
type Format int

const (
	FormatPNG Format = iota // Raster with physical DPI metadata
	FormatSVG               // Millimetre-sized SVG wrapping the raster
)

func (f Format) String() string {
	switch f {
	case FormatPNG:
		return "png"
	case FormatSVG:
		return "svg"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Ext returns the file extension for the format, including the dot.
func (f Format) Ext() string {
	return "." + f.String()
}

// UnsupportedFormatError reports an unknown export format token.
type UnsupportedFormatError struct {
	Token string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported export format %q (want png or svg)", e.Token)
}

// ParseFormat parses a format token, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "png":
		return FormatPNG, nil
	case "svg":
		return FormatSVG, nil
	default:
		return 0, &UnsupportedFormatError{Token: s}
	}
}

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	return ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
}

// PixelSize returns the raster dimensions that represent sizeMM at dpi.
func PixelSize(sizeMM geometry.Size, dpi float64) (image.Point, error) {
	if !(dpi > 0) {
		return image.Point{}, fmt.Errorf("invalid dpi %v", dpi)
	}
	w := int(math.Round(sizeMM.Width * dpi / mmPerInch))
	h := int(math.Round(sizeMM.Height * dpi / mmPerInch))
	if w < 1 || h < 1 {
		return image.Point{}, fmt.Errorf("design size %.3fx%.3fmm is below one pixel at %v dpi",
			sizeMM.Width, sizeMM.Height, dpi)
	}
	return image.Pt(w, h), nil
}

// ExportInfo describes a written export.
type ExportInfo struct {
	Path      string
	Format    Format
	PixelSize image.Point
	SizeMM    geometry.Size
	DPI       float64
}

// Exporter writes designs at an exact physical size.
type Exporter struct {
	DPI float64
}

// NewExporter returns an exporter at dpi, or DefaultDPI if dpi is not positive.
func NewExporter(dpi float64) *Exporter {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &Exporter{DPI: dpi}
}

func (e *Exporter) dpi() float64 {
	if e.DPI > 0 {
		return e.DPI
	}
	return DefaultDPI
}

// Resample scales the asset to the pixel size of sizeMM. The asset's own
// resolution is ignored; sizeMM alone decides the output.
func (e *Exporter) Resample(asset *Asset, sizeMM geometry.Size) (*image.RGBA, error) {
	if asset == nil || asset.Image == nil {
		return nil, ErrMissingDesign
	}
	px, err := PixelSize(sizeMM, e.dpi())
	if err != nil {
		return nil, err
	}

	dst := image.NewRGBA(image.Rect(0, 0, px.X, px.Y))
	draw.BiLinear.Scale(dst, dst.Bounds(), asset.Image, asset.Image.Bounds(), draw.Src, nil)
	return dst, nil
}

// Encode resamples the asset and writes it in the given format.
func (e *Exporter) Encode(w io.Writer, asset *Asset, sizeMM geometry.Size, format Format) (ExportInfo, error) {
	img, err := e.Resample(asset, sizeMM)
	if err != nil {
		return ExportInfo{}, err
	}

	switch format {
	case FormatPNG:
		err = EncodePNG(w, img, e.dpi())
	case FormatSVG:
		err = EncodeSVG(w, img, sizeMM, e.dpi())
	default:
		return ExportInfo{}, &UnsupportedFormatError{Token: format.String()}
	}
	if err != nil {
		return ExportInfo{}, fmt.Errorf("encode %s: %w", format, err)
	}

	return ExportInfo{
		Format:    format,
		PixelSize: img.Bounds().Size(),
		SizeMM:    sizeMM,
		DPI:       e.dpi(),
	}, nil
}

// Export writes the asset to path at sizeMM, creating parent directories.
func (e *Exporter) Export(path string, asset *Asset, sizeMM geometry.Size, format Format) (*ExportInfo, error) {
	if asset == nil || asset.Image == nil {
		return nil, ErrMissingDesign
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create export: %w", err)
	}
	info, err := e.Encode(f, asset, sizeMM, format)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	info.Path = path
	monitoring.Logf("design: exported %s %dx%dpx (%.1fx%.1fmm @ %v dpi) to %s",
		format, info.PixelSize.X, info.PixelSize.Y, sizeMM.Width, sizeMM.Height, info.DPI, path)
	return &info, nil
}
