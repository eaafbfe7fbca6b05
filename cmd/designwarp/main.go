// Command designwarp exports a design at physical scale from a saved
// alignment and optionally composites it onto the camera photo.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"laser-align/internal/alignment"
	"laser-align/internal/design"
	"laser-align/internal/monitoring"
	"laser-align/internal/placement"
	"laser-align/internal/preview"
	"laser-align/internal/version"
	"laser-align/pkg/geometry"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	alignPath := flag.String("a", "", "Alignment JSON written by laser-align")
	designPath := flag.String("d", "", "Design image")
	text := flag.String("t", "", "Render this text as the design")
	out := flag.String("o", "", "Output file (.png or .svg)")
	dpi := flag.Float64("dpi", design.DefaultDPI, "Export resolution")
	camera := flag.String("camera", "", "Camera photo for the preview")
	previewPath := flag.String("preview", "preview.jpg", "Preview output")
	place := flag.String("place", "", "Re-centre the design on this pixel: x,y")
	verbose := flag.Bool("v", false, "Verbose logging")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("designwarp"))
		return
	}
	if *alignPath == "" || *out == "" || (*designPath == "" && *text == "") {
		fmt.Println("Usage: designwarp -a <alignment.json> (-d <design> | -t <text>) -o <out.png|out.svg> [-camera <photo>] [-place x,y]")
		os.Exit(1)
	}
	if !*verbose {
		monitoring.SetLogger(nil)
	}

	res, err := alignment.LoadResult(*alignPath)
	if err != nil {
		log.Fatalf("Failed to load alignment: %v", err)
	}

	if *place != "" {
		res, err = replace(res, *place)
		if err != nil {
			log.Fatalf("Placement failed: %v", err)
		}
		if err := res.Save(*alignPath); err != nil {
			log.Fatalf("Failed to save alignment: %v", err)
		}
		fmt.Printf("Design moved to %v mm\n", res.DesignRectMM.Array())
	}

	sizeMM := res.DesignRectMM.Size()
	var asset *design.Asset
	if *designPath != "" {
		asset, err = design.Load(*designPath)
	} else {
		asset, err = design.RenderText(*text, sizeMM, *dpi)
	}
	if err != nil {
		log.Fatalf("Failed to load design: %v", err)
	}
	if asset.DPI > 0 {
		fmt.Printf("Design: %dx%dpx, source %v dpi\n", asset.Width(), asset.Height(), asset.DPI)
	}

	format, err := design.FormatFromPath(*out)
	if err != nil {
		log.Fatalf("Invalid output: %v", err)
	}
	info, err := design.NewExporter(*dpi).Export(*out, asset, sizeMM, format)
	if err != nil {
		log.Fatalf("Export failed: %v", err)
	}
	fmt.Printf("Exported %s: %dx%dpx, %.1fx%.1fmm at %v dpi\n",
		info.Path, info.PixelSize.X, info.PixelSize.Y, sizeMM.Width, sizeMM.Height, info.DPI)

	if *camera == "" {
		return
	}
	photo, err := design.Load(*camera)
	if err != nil {
		log.Fatalf("Failed to load camera photo: %v", err)
	}
	if got := photo.Image.Bounds().Size(); got != res.ImageSize {
		log.Printf("Camera photo is %v but the alignment was made on %v", got, res.ImageSize)
	}
	composite, err := preview.NewCompositor().Render(asset, res, photo.Image)
	if err != nil {
		log.Fatalf("Preview failed: %v", err)
	}
	if err := preview.Save(*previewPath, composite); err != nil {
		log.Fatalf("Failed to save preview: %v", err)
	}
	fmt.Printf("Preview saved: %s\n", filepath.Clean(*previewPath))
}

// replace runs a one-shot placement: the design keeps its size and is
// centred on the given pixel.
func replace(res *alignment.Result, pixel string) (*alignment.Result, error) {
	px, err := geometry.ParsePoint(pixel)
	if err != nil {
		return nil, err
	}
	m, err := res.Mapper()
	if err != nil {
		return nil, err
	}
	s, err := placement.NewSession(m, res.DesignRectMM.Size(), res.ImageSize)
	if err != nil {
		return nil, err
	}
	if _, err := s.Select(px); err != nil {
		return nil, err
	}
	return s.Confirm()
}
