package analyzer

import (
	"context"
	"time"
)

// Viewport selects the capture size.
type Viewport string

const (
	ViewportDesktop Viewport = "desktop"
	ViewportMobile  Viewport = "mobile"
)

// screenshotTimeout bounds one capture call.
const screenshotTimeout = 30 * time.Second

// Screenshotter captures a rendered page and returns a URL to the stored
// image. Implementations run out of process (browser service); the analyzer
// only needs the resulting URL for the visual dimensions.
type Screenshotter interface {
	Capture(ctx context.Context, pageURL string, viewport Viewport) (string, error)
}

// NoopScreenshotter skips capture. Visual dimensions are scored from page
// structure alone when no browser service is configured.
type NoopScreenshotter struct{}

func (NoopScreenshotter) Capture(context.Context, string, Viewport) (string, error) {
	return "", nil
}
