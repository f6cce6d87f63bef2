package vision

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"
	"gorgonia.org/tensor"
)

// inputSize is the square side length the detection model was exported with
const inputSize = 640

// ErrInference indicates the model call failed or produced malformed output
var ErrInference = errors.New("vision: model inference failed")

// Inferencer runs the detection model on a captured frame and returns the raw
// output tensor, shaped [1, 4+NumClasses, anchors]. The core treats the model
// as an opaque numeric function with this fixed layout.
type Inferencer interface {
	Infer(img image.Image) (*tensor.Dense, error)
	Close() error
}

// ONNXDetector runs an exported ONNX object-detection model through the
// OpenCV DNN backend.
type ONNXDetector struct {
	net gocv.Net
}

// NewONNXDetector loads the detection model from disk
func NewONNXDetector(modelPath string) (*ONNXDetector, error) {
	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return nil, fmt.Errorf("%w: could not load model from %s", ErrInference, modelPath)
	}

	return &ONNXDetector{net: net}, nil
}

// Infer resizes the frame to the model input size, runs a forward pass and
// returns the raw output tensor.
func (d *ONNXDetector) Infer(img image.Image) (*tensor.Dense, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("%w: convert frame: %v", ErrInference, err)
	}
	defer mat.Close()

	blob := gocv.BlobFromImage(mat, 1.0/255.0,
		image.Pt(inputSize, inputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	raw, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("%w: read output: %v", ErrInference, err)
	}

	channels := boxChannels + NumClasses
	if len(raw) == 0 || len(raw)%channels != 0 {
		return nil, fmt.Errorf("%w: output holds %d values, not divisible by %d",
			ErrInference, len(raw), channels)
	}
	anchors := len(raw) / channels

	// The forward-pass Mat is freed on Close, so the backing slice is copied.
	data := make([]float32, len(raw))
	copy(data, raw)

	return tensor.New(
		tensor.WithShape(1, channels, anchors),
		tensor.WithBacking(data),
	), nil
}

// Close releases the model
func (d *ONNXDetector) Close() error {
	return d.net.Close()
}
