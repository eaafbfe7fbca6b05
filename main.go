// Package main provides the laser-align command: photograph the jig, align a
// design to it and export the design at physical scale.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"laser-align/internal/alignment"
	"laser-align/internal/design"
	"laser-align/internal/device"
	"laser-align/internal/jig"
	"laser-align/internal/prefs"
	"laser-align/internal/version"
	"laser-align/internal/vision"
	"laser-align/internal/workflow"
	"laser-align/pkg/geometry"
)

const appTitle = "laser-align"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	p := prefs.Load()

	imagePath := flag.String("image", "", "Camera image (empty captures from the camera)")
	cameraDev := flag.Int("camera", p.Int(prefs.KeyCameraDevice, 0), "Camera device index for capture")
	jigName := flag.String("jig", p.String(prefs.KeyJig, jig.DefaultName), "Jig name or JSON file")
	calib := flag.String("calib", p.String(prefs.KeyCalibration, ""), "Camera calibration (YAML or JSON)")
	designPath := flag.String("design", "", "Design image")
	text := flag.String("text", "", "Render this text as the design")
	rectFlag := flag.String("rect", "", "Design rectangle in mm: x,y,w,h")
	outDir := flag.String("out", p.String(prefs.KeyOutputDir, "output"), "Output directory")
	formatFlag := flag.String("format", "png", "Export format: png or svg")
	dpi := flag.Float64("dpi", p.Float(prefs.KeyDPI, design.DefaultDPI), "Export resolution")
	threshold := flag.Float64("threshold", p.Float(prefs.KeyThreshold, alignment.DefaultOptions().Threshold), "RANSAC inlier threshold in pixels")
	noPreview := flag.Bool("no-preview", false, "Skip the composited preview")
	annotate := flag.Bool("annotate", false, "Write a detection overlay")
	whiteCutoff := flag.Int("white", p.Int(prefs.KeyWhiteCutoff, 250), "Preview white threshold for opaque designs")
	useOpenCV := flag.Bool("opencv", false, "Use OpenCV for the homography solve and preview warp")
	send := flag.Bool("send", p.Bool(prefs.KeyAutoSend, false), "Load the export into the laser software")
	start := flag.Bool("start", false, "Start the job after loading")
	host := flag.String("host", p.String(prefs.KeyDeviceHost, device.DefaultHost), "Laser software host")
	timeoutMS := flag.Int("timeout", p.Int(prefs.KeyDeviceTimeMS, int(device.DefaultTimeout/time.Millisecond)), "Device reply timeout in ms")
	remember := flag.Bool("remember", false, "Save jig, calibration, output and device flags as defaults")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String(appTitle))
		return
	}
	if *rectFlag == "" || (*designPath == "" && *text == "") {
		fmt.Println("Usage: laser-align -rect x,y,w,h (-design <file> | -text <text>) [-image <photo>] [-send]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	rect, err := geometry.ParseRect(*rectFlag)
	if err != nil {
		log.Fatalf("Invalid -rect: %v", err)
	}
	format, err := design.ParseFormat(*formatFlag)
	if err != nil {
		log.Fatalf("Invalid -format: %v", err)
	}
	if *whiteCutoff < 0 || *whiteCutoff > 255 {
		log.Fatalf("Invalid -white %d: want 0-255", *whiteCutoff)
	}

	if *remember {
		p.SetString(prefs.KeyJig, *jigName)
		p.SetString(prefs.KeyCalibration, *calib)
		p.SetString(prefs.KeyOutputDir, *outDir)
		p.SetFloat(prefs.KeyDPI, *dpi)
		p.SetFloat(prefs.KeyThreshold, *threshold)
		p.SetString(prefs.KeyDeviceHost, *host)
		p.SetFloat(prefs.KeyDeviceTimeMS, float64(*timeoutMS))
		p.SetFloat(prefs.KeyCameraDevice, float64(*cameraDev))
		if err := p.Save(); err != nil {
			log.Printf("Failed to save preferences: %v", err)
		}
	}

	log.Printf("Starting %s v%s", appTitle, version.Version)

	cfg := device.DefaultConfig()
	cfg.Host = *host
	cfg.Timeout = time.Duration(*timeoutMS) * time.Millisecond

	capture := vision.DefaultCaptureOptions()
	capture.Device = *cameraDev

	runner := vision.NewRunner(capture, *useOpenCV, device.NewClient(cfg))

	estimation := alignment.DefaultOptions()
	estimation.Threshold = *threshold

	job, err := runner.Run(context.Background(), workflow.Options{
		CameraImage:    *imagePath,
		Jig:            *jigName,
		Calibration:    *calib,
		DesignImage:    *designPath,
		DesignText:     *text,
		DesignRectMM:   rect,
		OutputDir:      *outDir,
		Format:         format,
		DPI:            *dpi,
		Estimation:     estimation,
		Preview:        !*noPreview,
		WhiteThreshold: uint8(*whiteCutoff),
		Annotate:       *annotate,
		Send:           *send,
		AutoStart:      *start,
	})

	var sendErr *workflow.SendError
	switch {
	case errors.As(err, &sendErr):
		fmt.Fprintf(os.Stderr, "Export written but not sent: %v\n", sendErr.Err)
		fmt.Fprintln(os.Stderr, "Check that the laser software is running with UDP enabled.")
		os.Exit(2)
	case err != nil:
		fmt.Fprintf(os.Stderr, "Failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Job %s complete, outputs in %s\n", job.ID, *outDir)
}
