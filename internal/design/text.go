package design

import (
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync"

	"laser-align/pkg/geometry"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

var (
	textFontOnce sync.Once
	textFont     *opentype.Font
	textFontErr  error
)

func regularFont() (*opentype.Font, error) {
	textFontOnce.Do(func() {
		textFont, textFontErr = opentype.Parse(goregular.TTF)
	})
	return textFont, textFontErr
}

// RenderText synthesizes a design of black text centered on a white canvas
// of sizeMM at dpi. The text is as large as fits in 90% of the width and half
// the height.
func RenderText(text string, sizeMM geometry.Size, dpi float64) (*Asset, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("text design is empty")
	}
	px, err := PixelSize(sizeMM, dpi)
	if err != nil {
		return nil, err
	}

	f, err := regularFont()
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, px.X, px.Y))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	size := float64(px.Y) * 0.5
	face, width, err := measuredFace(f, size, text)
	if err != nil {
		return nil, err
	}
	if limit := float64(px.X) * 0.9; width > limit {
		face.Close()
		size *= limit / width
		if face, width, err = measuredFace(f, size, text); err != nil {
			return nil, err
		}
	}
	defer face.Close()

	m := face.Metrics()
	baseline := (px.Y + m.Ascent.Round() - m.Descent.Round()) / 2
	d := font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(color.Black),
		Face: face,
		Dot:  fixed.P(int((float64(px.X)-width)/2), baseline),
	}
	d.DrawString(text)

	return &Asset{Image: canvas, DPI: dpi, SizeMM: &sizeMM}, nil
}

// measuredFace returns a face of size pixels and the advance width of text.
func measuredFace(f *opentype.Font, size float64, text string) (font.Face, float64, error) {
	if size < 1 {
		size = 1
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("create font face: %w", err)
	}
	adv := font.MeasureString(face, text)
	return face, float64(adv) / 64, nil
}
