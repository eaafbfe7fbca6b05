// Package preview renders a design onto the camera photo where the alignment
// says it will land. The output is for people to look at; nothing measures
// from it.
package preview

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"laser-align/internal/alignment"
	"laser-align/internal/design"
	"laser-align/internal/monitoring"
	"laser-align/pkg/colorutil"
	"laser-align/pkg/geometry"

	"golang.org/x/image/draw"
)

// DefaultWhiteThreshold is the gray level above which pixels of an opaque
// design are treated as background.
const DefaultWhiteThreshold = 250

// Compositor overlays a design on a camera image.
type Compositor struct {
	Warper         Warper
	WhiteThreshold uint8
}

// NewCompositor returns a compositor using the pure Go warper.
func NewCompositor() *Compositor {
	return &Compositor{Warper: GoWarper{}, WhiteThreshold: DefaultWhiteThreshold}
}

// Render composites res's design rectangle onto camera.
func (c *Compositor) Render(asset *design.Asset, res *alignment.Result, camera image.Image) (*image.RGBA, error) {
	if res == nil {
		return nil, fmt.Errorf("no alignment result")
	}
	return c.Composite(asset, res.CornersPx, camera)
}

// Composite maps the design's natural corners (0,0), (w,0), (w,h), (0,h)
// onto corners and overlays it on a copy of camera. Designs with an alpha
// channel are alpha blended; for opaque designs near-white pixels let the
// camera show through and every other pixel replaces it.
func (c *Compositor) Composite(asset *design.Asset, corners [4]geometry.Point2D, camera image.Image) (*image.RGBA, error) {
	if asset == nil || asset.Image == nil {
		return nil, design.ErrMissingDesign
	}
	if camera == nil {
		return nil, fmt.Errorf("no camera image")
	}

	w, h := float64(asset.Width()), float64(asset.Height())
	natural := [4]geometry.Point2D{{X: 0, Y: 0}, {X: w, Y: 0}, {X: w, Y: h}, {X: 0, Y: h}}
	H, err := geometry.QuadToQuad(natural, corners)
	if err != nil {
		return nil, fmt.Errorf("design placement: %w", err)
	}
	if !geometry.IsConvex(corners[:]) {
		monitoring.Logf("preview: design corners %v do not form a convex quad", corners)
	}

	warper := c.Warper
	if warper == nil {
		warper = GoWarper{}
	}
	cb := camera.Bounds()
	warped, err := warper.Warp(asset.Image, H, cb.Size())
	if err != nil {
		return nil, fmt.Errorf("warp design: %w", err)
	}

	out := image.NewRGBA(image.Rect(0, 0, cb.Dx(), cb.Dy()))
	draw.Draw(out, out.Bounds(), camera, cb.Min, draw.Src)

	if asset.HasAlpha() {
		blendAlpha(out, warped)
	} else {
		threshold := c.WhiteThreshold
		if threshold == 0 {
			threshold = DefaultWhiteThreshold
		}
		overlayOpaque(out, warped, threshold)
	}
	return out, nil
}

// blendAlpha composites premultiplied src over dst.
func blendAlpha(dst, src *image.RGBA) {
	for i := 0; i+3 < len(dst.Pix); i += 4 {
		a := src.Pix[i+3]
		if a == 0 {
			continue
		}
		inv := 255 - uint32(a)
		for c := 0; c < 4; c++ {
			v := uint32(src.Pix[i+c]) + (uint32(dst.Pix[i+c])*inv+127)/255
			if v > 255 {
				v = 255
			}
			dst.Pix[i+c] = uint8(v)
		}
	}
}

// overlayOpaque copies src pixels onto dst unless they are near white or
// mostly outside the warped quad.
func overlayOpaque(dst, src *image.RGBA, threshold uint8) {
	for i := 0; i+3 < len(dst.Pix); i += 4 {
		a := src.Pix[i+3]
		if a < 128 {
			continue
		}
		r, g, b := colorutil.Unpremultiply(src.Pix[i], src.Pix[i+1], src.Pix[i+2], a)
		if colorutil.Gray(r, g, b) > threshold {
			continue
		}
		dst.Pix[i], dst.Pix[i+1], dst.Pix[i+2], dst.Pix[i+3] = r, g, b, 255
	}
}

// Save writes a preview as JPEG or PNG depending on the extension.
func Save(path string, img image.Image) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create preview directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create preview: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: 90})
	case ".png":
		err = png.Encode(f, img)
	default:
		err = fmt.Errorf("unsupported preview extension %q", filepath.Ext(path))
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return err
	}
	return nil
}
