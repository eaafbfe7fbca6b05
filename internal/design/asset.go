// Package design loads, synthesizes and exports the artwork that gets placed
// on the workpiece.
package design

import (
	"encoding/binary"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"laser-align/pkg/geometry"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Asset is a design raster plus what is known about its physical size.
type Asset struct {
	Image  image.Image
	Path   string         // Source file, empty for synthesized designs
	DPI    float64        // Resolution from file metadata, 0 if unknown
	SizeMM *geometry.Size // Intended physical size, if the source declares one
}

// FromImage wraps an in-memory image.
func FromImage(img image.Image) *Asset {
	return &Asset{Image: img}
}

// Load decodes a raster design and reads any resolution metadata.
func Load(path string) (*Asset, error) {
	if !IsSupportedFormat(path) {
		return nil, fmt.Errorf("unsupported design file %q (supported: %s)",
			filepath.Base(path), strings.Join(SupportedFormats(), ", "))
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open design: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode design: %w", err)
	}

	asset := &Asset{Path: path, Image: img}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".tiff", ".tif":
		if dpi, err := extractTIFFDPI(file); err == nil {
			asset.DPI = dpi
		}
	case ".png":
		if _, err := file.Seek(0, io.SeekStart); err == nil {
			if dpi, err := ReadPNGDPI(file); err == nil {
				asset.DPI = dpi
			}
		}
	}

	if asset.DPI > 0 {
		size := geometry.NewSize(
			float64(asset.Width())/asset.DPI*mmPerInch,
			float64(asset.Height())/asset.DPI*mmPerInch,
		)
		asset.SizeMM = &size
	}
	return asset, nil
}

// Width returns the image width in pixels.
func (a *Asset) Width() int {
	if a.Image == nil {
		return 0
	}
	return a.Image.Bounds().Dx()
}

// Height returns the image height in pixels.
func (a *Asset) Height() int {
	if a.Image == nil {
		return 0
	}
	return a.Image.Bounds().Dy()
}

// HasAlpha reports whether the design carries a transparency channel.
func (a *Asset) HasAlpha() bool {
	switch img := a.Image.(type) {
	case nil:
		return false
	case *image.NRGBA, *image.NRGBA64:
		return true
	case *image.Paletted:
		for _, c := range img.Palette {
			if _, _, _, alpha := c.RGBA(); alpha != 0xffff {
				return true
			}
		}
		return false
	case interface{ Opaque() bool }:
		return !img.Opaque()
	}
	return false
}

// SupportedFormats returns the list of loadable design extensions.
func SupportedFormats() []string {
	return []string{".png", ".jpg", ".jpeg", ".gif", ".tiff", ".tif", ".bmp", ".webp"}
}

// IsSupportedFormat checks if the given path has a loadable extension.
func IsSupportedFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range SupportedFormats() {
		if ext == format {
			return true
		}
	}
	return false
}

// extractTIFFDPI reads the X (or Y) resolution tag of the first IFD.
func extractTIFFDPI(r io.ReadSeeker) (float64, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}

	// Read TIFF header to determine byte order
	header := make([]byte, 8)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, err
	}

	var byteOrder binary.ByteOrder
	if header[0] == 'I' && header[1] == 'I' {
		byteOrder = binary.LittleEndian
	} else if header[0] == 'M' && header[1] == 'M' {
		byteOrder = binary.BigEndian
	} else {
		return 0, fmt.Errorf("not a valid TIFF file")
	}

	ifdOffset := byteOrder.Uint32(header[4:8])
	if _, err := r.Seek(int64(ifdOffset), io.SeekStart); err != nil {
		return 0, err
	}

	var numEntries uint16
	if err := binary.Read(r, byteOrder, &numEntries); err != nil {
		return 0, err
	}

	var xResOffset, yResOffset uint32
	var resUnit uint16 = 2 // inches
	entry := make([]byte, 12)
	for i := uint16(0); i < numEntries; i++ {
		if _, err := io.ReadFull(r, entry); err != nil {
			return 0, err
		}

		tag := byteOrder.Uint16(entry[0:2])
		fieldType := byteOrder.Uint16(entry[2:4])
		value := entry[8:12]

		switch tag {
		case 282: // XResolution
			if fieldType == 5 { // RATIONAL
				xResOffset = byteOrder.Uint32(value)
			}
		case 283: // YResolution
			if fieldType == 5 {
				yResOffset = byteOrder.Uint32(value)
			}
		case 296: // ResolutionUnit
			if fieldType == 3 { // SHORT, left-justified in the value field
				resUnit = byteOrder.Uint16(value[0:2])
			}
		}
	}

	offset := xResOffset
	if offset == 0 {
		offset = yResOffset
	}
	if offset == 0 {
		return 0, fmt.Errorf("no resolution tags found")
	}
	dpi, err := readTIFFRational(r, int64(offset), byteOrder)
	if err != nil {
		return 0, err
	}

	switch resUnit {
	case 3: // centimetres
		dpi *= 2.54
	case 1: // no absolute unit
		return 0, fmt.Errorf("resolution has no absolute unit")
	}
	if dpi <= 0 {
		return 0, fmt.Errorf("DPI is zero")
	}
	return dpi, nil
}

// readTIFFRational reads a RATIONAL value (two uint32s) at offset.
func readTIFFRational(r io.ReadSeeker, offset int64, byteOrder binary.ByteOrder) (float64, error) {
	if _, err := r.Seek(offset, io.SeekStart); err != nil {
		return 0, err
	}
	var v [2]uint32
	if err := binary.Read(r, byteOrder, &v); err != nil {
		return 0, err
	}
	if v[1] == 0 {
		return 0, fmt.Errorf("zero denominator")
	}
	return float64(v[0]) / float64(v[1]), nil
}
