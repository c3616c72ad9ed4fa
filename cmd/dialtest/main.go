// Command dialtest runs dial detection on a single meter image and prints
// each stage's result.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gasmeter/internal/config"
	"gasmeter/internal/diagnostics"
	"gasmeter/internal/dial"
	"gasmeter/internal/image"

	"gocv.io/x/gocv"
)

func main() {
	imagePath := flag.String("image", "", "Path to meter image (TIFF, PNG, or JPEG)")
	configPath := flag.String("config", config.DefaultConfigPath(), "Path to config file")
	mask := flag.String("mask", "", "Edge mask: canny or threshold (default from config)")
	outDir := flag.String("out", "", "Directory for intermediate images")
	minRadius := flag.Int("min-radius", 0, "Override minimum dial radius in pixels")
	maxRadius := flag.Int("max-radius", 0, "Override maximum dial radius in pixels")
	flag.Parse()

	if *imagePath == "" {
		fmt.Println("Usage: dialtest -image <path> [-config file] [-mask canny|threshold] [-out dir]")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *mask != "" {
		cfg.Detect.Mask = *mask
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	frame, err := image.LoadMat(*imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load image: %v\n", err)
		os.Exit(1)
	}
	defer frame.Close()
	fmt.Printf("Loaded image: %dx%d pixels\n", frame.Cols(), frame.Rows())

	roi := cfg.ROI.ClampTo(frame.Cols(), frame.Rows())
	crop := frame.Clone()
	if !cfg.ROI.Empty() {
		if roi.Empty() {
			fmt.Fprintf(os.Stderr, "ROI %+v lies outside the image\n", cfg.ROI)
			os.Exit(1)
		}
		region := frame.Region(roi.Rectangle())
		crop.Close()
		crop = region.Clone()
		region.Close()
	}
	defer crop.Close()
	fmt.Printf("ROI: x=%d y=%d %dx%d\n", roi.X, roi.Y, crop.Cols(), crop.Rows())

	params := dial.DefaultParams()
	if *minRadius > 0 || *maxRadius > 0 {
		lo, hi := params.MinRadius, params.MaxRadius
		if *minRadius > 0 {
			lo = *minRadius
		}
		if *maxRadius > 0 {
			hi = *maxRadius
		}
		params = params.WithRadiusRange(lo, hi)
	}
	strategy, _ := cfg.MaskStrategy()

	fmt.Printf("\nDetection parameters:\n")
	fmt.Printf("  Blur: %dx%d\n", params.BlurKernel, params.BlurKernel)
	fmt.Printf("  Hough: dp=%.1f minDist=%.0f param1=%.0f param2=%.0f radius %d-%d px\n",
		params.HoughDP, params.HoughMinDist, params.HoughParam1, params.HoughParam2, params.MinRadius, params.MaxRadius)
	fmt.Printf("  Mask: %s, rim %d px, ray %d px\n", strategy.Name(), params.RimWidth, params.RayWidth)

	reader := dial.NewReader(params, cfg.Dials, strategy)
	if *outDir != "" {
		dumper, err := diagnostics.New(*outDir, "")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to prepare %s: %v\n", *outDir, err)
			os.Exit(1)
		}
		if err := dumper.Begin(*imagePath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to clear %s: %v\n", *outDir, err)
			os.Exit(1)
		}
		reader.Sink = dumper
	}

	circles, err := reader.Locate(crop)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Locate failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nFound %d circles (want %d):\n", len(circles), len(cfg.Dials))
	fmt.Printf("%-5s %8s %8s %8s %8s %8s %6s\n", "Dial", "X", "Y", "Radius", "Angle", "Pos", "Digit")
	fmt.Println(strings.Repeat("-", 56))
	for i, c := range circles {
		bounds := c.SquareBounds(params.DialPadding).ClampTo(crop.Cols(), crop.Rows())
		if bounds.Empty() {
			fmt.Printf("%-5d %8.1f %8.1f %8.1f %8s\n", i, c.X, c.Y, c.Radius, "outside")
			continue
		}
		region := crop.Region(bounds.Rectangle())
		dialImg := region.Clone()
		region.Close()
		angle := reader.ReadDial(i, dialImg)
		dialImg.Close()

		if i < len(cfg.Dials) {
			fmt.Printf("%-5d %8.1f %8.1f %8.1f %8d %8.3f %6d\n", i, c.X, c.Y, c.Radius, angle.Degrees,
				dial.Position(angle, cfg.Dials[i]), dial.MapValue(angle, cfg.Dials[i]))
		} else {
			fmt.Printf("%-5d %8.1f %8.1f %8.1f %8d %8s %6s\n", i, c.X, c.Y, c.Radius, angle.Degrees, "-", "-")
		}
	}

	if len(circles) != len(cfg.Dials) {
		fmt.Printf("\nCircle count does not match the dial layout; frame would be discarded\n")
		os.Exit(2)
	}

	v, err := reader.ReadFrame(crop, circles)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Read failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDigits: %v remainder %.2f\n", v.Digits, v.Remainder)
	fmt.Printf("Reading: %.1f\n", dial.AssembleReading(v))

	if *outDir != "" {
		gocv.IMWrite(filepath.Join(*outDir, "input.jpg"), crop)
		fmt.Printf("Intermediate images in %s\n", *outDir)
	}
}
