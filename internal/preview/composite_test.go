package preview

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"laser-align/internal/alignment"
	"laser-align/internal/design"
	"laser-align/internal/monitoring"
	"laser-align/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uniform(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// squareDesign is a white 40x40 design with a black 20x20 square in the middle.
func squareDesign() *design.Asset {
	img := uniform(40, 40, color.White)
	for y := 10; y < 30; y++ {
		for x := 10; x < 30; x++ {
			img.Set(x, y, color.Black)
		}
	}
	return design.FromImage(img)
}

func offsetCorners(x, y, size float64) [4]geometry.Point2D {
	return [4]geometry.Point2D{{X: x, Y: y}, {X: x + size, Y: y}, {X: x + size, Y: y + size}, {X: x, Y: y + size}}
}

var cameraColor = color.RGBA{R: 100, G: 150, B: 200, A: 255}

func TestCompositeWhiteIsTransparent(t *testing.T) {
	camera := uniform(80, 80, cameraColor)

	out, err := NewCompositor().Composite(squareDesign(), offsetCorners(20, 20, 40), camera)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 80, 80), out.Bounds())

	assert.Equal(t, cameraColor, out.RGBAAt(5, 5), "outside the quad")
	assert.Equal(t, cameraColor, out.RGBAAt(25, 25), "white design background")
	assert.Equal(t, color.RGBA{A: 255}, out.RGBAAt(40, 40), "black design pixels")
	assert.Equal(t, color.RGBA{A: 255}, out.RGBAAt(30, 30))
	assert.Equal(t, cameraColor, out.RGBAAt(29, 29))

	// The camera image itself is not modified.
	assert.Equal(t, cameraColor, camera.RGBAAt(40, 40))
}

func TestCompositeAlphaBlend(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 255, A: 128})
		}
	}
	camera := uniform(30, 30, color.RGBA{B: 255, A: 255})

	out, err := NewCompositor().Composite(design.FromImage(img), offsetCorners(10, 10, 10), camera)
	require.NoError(t, err)

	px := out.RGBAAt(15, 15)
	assert.InDelta(t, 128, int(px.R), 1)
	assert.InDelta(t, 0, int(px.G), 1)
	assert.InDelta(t, 127, int(px.B), 1)
	assert.Equal(t, uint8(255), px.A)

	assert.Equal(t, color.RGBA{B: 255, A: 255}, out.RGBAAt(2, 2))
}

func TestCompositeErrors(t *testing.T) {
	c := NewCompositor()
	camera := uniform(10, 10, cameraColor)

	_, err := c.Composite(nil, offsetCorners(0, 0, 5), camera)
	assert.ErrorIs(t, err, design.ErrMissingDesign)

	collinear := [4]geometry.Point2D{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}, {X: 3, Y: 3}}
	_, err = c.Composite(squareDesign(), collinear, camera)
	assert.Error(t, err)

	_, err = c.Render(squareDesign(), nil, camera)
	assert.Error(t, err)
}

func TestCompositeLogsNonConvexQuad(t *testing.T) {
	var logged []string
	prev := monitoring.Logf
	monitoring.SetLogger(func(format string, v ...interface{}) {
		logged = append(logged, fmt.Sprintf(format, v...))
	})
	t.Cleanup(func() { monitoring.Logf = prev })

	dart := [4]geometry.Point2D{{X: 10, Y: 10}, {X: 50, Y: 10}, {X: 25, Y: 25}, {X: 10, Y: 50}}
	_, err := NewCompositor().Composite(squareDesign(), dart, uniform(60, 60, cameraColor))
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.Contains(t, logged[0], "convex")
}

func TestRenderUsesResultCorners(t *testing.T) {
	res := &alignment.Result{CornersPx: offsetCorners(20, 20, 40), ImageSize: image.Pt(80, 80)}
	out, err := NewCompositor().Render(squareDesign(), res, uniform(80, 80, cameraColor))
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{A: 255}, out.RGBAAt(40, 40))
}

func TestGoWarperTranslation(t *testing.T) {
	src := uniform(4, 4, color.RGBA{G: 200, A: 255})
	out, err := GoWarper{}.Warp(src, geometry.ScaleHomography(1, 3, 2), image.Pt(10, 10))
	require.NoError(t, err)

	assert.Equal(t, color.RGBA{G: 200, A: 255}, out.RGBAAt(3, 2))
	assert.Equal(t, color.RGBA{G: 200, A: 255}, out.RGBAAt(6, 5))
	assert.Equal(t, color.RGBA{}, out.RGBAAt(2, 2))
	assert.Equal(t, color.RGBA{}, out.RGBAAt(7, 5))

	_, err = GoWarper{}.Warp(src, geometry.Homography{}, image.Pt(10, 10))
	assert.Error(t, err)
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	img := uniform(8, 8, cameraColor)

	require.NoError(t, Save(filepath.Join(dir, "a", "preview.jpg"), img))
	require.NoError(t, Save(filepath.Join(dir, "preview.png"), img))
	assert.Error(t, Save(filepath.Join(dir, "preview.bmp"), img))

	_, err := os.Stat(filepath.Join(dir, "preview.bmp"))
	assert.True(t, os.IsNotExist(err))
}
