package design

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"image"
	"io"
	"strconv"

	"laser-align/pkg/geometry"
)

type svgDocument struct {
	XMLName    xml.Name `xml:"svg"`
	Width      string   `xml:"width,attr"`
	Height     string   `xml:"height,attr"`
	ViewBox    string   `xml:"viewBox,attr"`
	Version    string   `xml:"version,attr"`
	Xmlns      string   `xml:"xmlns,attr"`
	XmlnsXlink string   `xml:"xmlns:xlink,attr"`
	Image      svgImage `xml:"image"`
}

type svgImage struct {
	X                   string `xml:"x,attr"`
	Y                   string `xml:"y,attr"`
	Width               string `xml:"width,attr"`
	Height              string `xml:"height,attr"`
	PreserveAspectRatio string `xml:"preserveAspectRatio,attr"`
	Href                string `xml:"xlink:href,attr"`
}

// EncodeSVG writes an SVG document sized sizeMM whose only content is img,
// embedded as PNG and stretched over the whole viewBox. One user unit is one
// millimetre.
func EncodeSVG(w io.Writer, img image.Image, sizeMM geometry.Size, dpi float64) error {
	var png bytes.Buffer
	if err := EncodePNG(&png, img, dpi); err != nil {
		return err
	}

	width, height := formatMM(sizeMM.Width), formatMM(sizeMM.Height)
	doc := svgDocument{
		Width:      width + "mm",
		Height:     height + "mm",
		ViewBox:    "0 0 " + width + " " + height,
		Version:    "1.1",
		Xmlns:      "http://www.w3.org/2000/svg",
		XmlnsXlink: "http://www.w3.org/1999/xlink",
		Image: svgImage{
			X:                   "0",
			Y:                   "0",
			Width:               width,
			Height:              height,
			PreserveAspectRatio: "none",
			Href:                "data:image/png;base64," + base64.StdEncoding.EncodeToString(png.Bytes()),
		},
	}

	if _, err := io.WriteString(w, `<?xml version="1.0" encoding="UTF-8" standalone="no"?>`+"\n"); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func formatMM(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
