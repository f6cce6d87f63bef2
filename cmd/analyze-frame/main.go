package main

import (
	"flag"
	"fmt"
	"log"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/thyrook/boardsight/internal/engine"
	"github.com/thyrook/boardsight/internal/geometry"
	"github.com/thyrook/boardsight/internal/vision"
)

// analyze-frame runs the recognition pipeline on a single image file. Useful
// for checking a capture region or the detection model without a live screen.
func main() {
	imagePath := flag.String("image", "", "Path to a board screenshot")
	modelPath := flag.String("model", "data/board_detector.onnx", "Path to the detection model")
	enginePath := flag.String("engine", "", "Path to a UCI engine (omit to skip analysis)")
	depth := flag.Int("depth", 12, "Search depth")
	lines := flag.Int("lines", 3, "Number of principal variations")
	confidence := flag.Float64("confidence", 0.5, "Detection confidence threshold")
	iou := flag.Float64("iou", 0.45, "NMS IoU threshold")
	verbose := flag.Bool("v", false, "Print every detection")
	flag.Parse()

	if *imagePath == "" {
		log.Fatal("Usage: analyze-frame -image <path> [-engine <path>]")
	}

	fmt.Printf("Analyzing frame: %s\n", *imagePath)

	mat := gocv.IMRead(*imagePath, gocv.IMReadColor)
	if mat.Empty() {
		log.Fatalf("Failed to load image: %s", *imagePath)
	}
	defer mat.Close()

	img, err := mat.ToImage()
	if err != nil {
		log.Fatalf("Failed to convert image: %v", err)
	}

	detector, err := vision.NewONNXDetector(*modelPath)
	if err != nil {
		log.Fatalf("Failed to load model: %v", err)
	}
	defer detector.Close()

	raw, err := detector.Infer(img)
	if err != nil {
		log.Fatalf("Inference failed: %v", err)
	}

	detections, err := vision.DecodeOutput(raw, float32(*confidence), float32(*iou))
	if err != nil {
		log.Fatalf("Decode failed: %v", err)
	}
	fmt.Printf("Detections: %d\n", len(detections))

	if *verbose {
		for _, d := range detections {
			fmt.Printf("  %-13s conf=%.2f center=(%.1f,%.1f) size=(%.1f,%.1f)\n",
				d.Class, d.Confidence, d.X, d.Y, d.W, d.H)
		}
	}

	pass, err := vision.Reconstruct(detections)
	if err != nil {
		log.Fatalf("Board reconstruction failed: %v", err)
	}

	fmt.Printf("\nOrientation: %s\n", pass.Orientation)
	fmt.Printf("Placement:   %s\n", pass.Placement)
	fmt.Printf("Board rect:  (%.1f,%.1f) %.1fx%.1f\n",
		pass.Rect.X, pass.Rect.Y, pass.Rect.W, pass.Rect.H)

	if *enginePath == "" {
		return
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	session := engine.NewSession(*enginePath, logger)
	if err := session.Start(); err != nil {
		log.Fatalf("Failed to start engine: %v", err)
	}
	defer session.Close()

	if err := session.ApplyOptions(engine.Options{Threads: 4, HashMB: 256, MultiPV: *lines}); err != nil {
		log.Fatalf("Failed to configure engine: %v", err)
	}

	for _, whiteToMove := range []bool{true, false} {
		fen, err := vision.PositionFEN(pass.Placement, whiteToMove)
		if err != nil {
			log.Printf("Skipping %s: %v", sideName(whiteToMove), err)
			continue
		}

		moves, err := session.Analyze(fen, *depth, *lines)
		if err != nil {
			log.Fatalf("Analysis failed: %v", err)
		}

		fmt.Printf("\nBest lines for %s:\n", sideName(whiteToMove))
		for i, move := range moves {
			from, to, ok := geometry.MoveSegment(move, pass.Rect, pass.Orientation)
			if !ok {
				fmt.Printf("  %d. %-6s  (no arrow)\n", i+1, move)
				continue
			}
			fmt.Printf("  %d. %-6s  arrow (%.0f,%.0f) -> (%.0f,%.0f)\n",
				i+1, move, from.X, from.Y, to.X, to.Y)
		}
	}
}

func sideName(white bool) string {
	if white {
		return "white"
	}
	return "black"
}
