package vision

import (
	"errors"
	"fmt"
	"image"

	"github.com/kbinani/screenshot"
)

// ErrCaptureUnavailable indicates that no display surface could be captured
var ErrCaptureUnavailable = errors.New("vision: screen capture unavailable")

// Grabber produces raw pixel buffers for a screen region
type Grabber interface {
	Capture(region image.Rectangle) (*image.RGBA, error)
}

// ScreenGrabber captures screen regions from the primary display
type ScreenGrabber struct{}

// NewScreenGrabber creates a screen grabber
func NewScreenGrabber() *ScreenGrabber {
	return &ScreenGrabber{}
}

// Capture grabs the pixels of the given screen region
func (g *ScreenGrabber) Capture(region image.Rectangle) (*image.RGBA, error) {
	if screenshot.NumActiveDisplays() == 0 {
		return nil, ErrCaptureUnavailable
	}

	if region.Dx() <= 0 || region.Dy() <= 0 {
		return nil, fmt.Errorf("%w: empty region %v", ErrCaptureUnavailable, region)
	}

	img, err := screenshot.CaptureRect(region)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}

	return img, nil
}
