// Package capture produces screenshot input images for the extraction
// pipeline from live web pages, via headless Chromium.
package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

const (
	DefaultWidth   = 1280
	DefaultHeight  = 1600
	DefaultTimeout = 30 * time.Second

	// settleDelay allows final paints after the DOM reports ready.
	settleDelay = 500 * time.Millisecond
)

// Options defines parameters for a screenshot capture.
type Options struct {
	// URL to capture, e.g. an event page or a web ticket.
	URL string

	// Width and Height are the viewport dimensions in pixels. Zero means
	// the defaults.
	Width  int
	Height int

	// Timeout bounds the entire capture operation.
	Timeout time.Duration
}

// ScreenshotPNG launches a headless Chromium via chromedp, navigates to
// opts.URL, waits for the document body, and returns a full-page PNG
// screenshot. The bytes feed straight into vision.Describer with mime type
// image/png.
func ScreenshotPNG(parentCtx context.Context, opts Options) ([]byte, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("capture: URL is required")
	}
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultHeight
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var png []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible("body", chromedp.ByQuery),
		chromedp.Sleep(settleDelay),
		chromedp.FullScreenshot(&png, 100),
	}

	if err := chromedp.Run(ctx, tasks); err != nil {
		return nil, fmt.Errorf("capture: chromedp run failed: %w", err)
	}
	return png, nil
}
