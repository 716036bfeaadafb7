package fetch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/jonathan/resource-pipeline/internal/throttle"
)

// ScreenshotTaker captures an image of a page.
type ScreenshotTaker interface {
	Screenshot(ctx context.Context, url string) ([]byte, error)
}

// Capturer captures a page and stores the image, returning a stable reference.
type Capturer interface {
	Capture(ctx context.Context, slug, url string) (string, error)
}

// FileCapturer writes screenshots under Dir/<slug>/<id>.jpg.
// The returned reference is the path relative to Dir. Captures are spaced
// by the screenshot delay of Limiter; a nil Limiter never waits.
type FileCapturer struct {
	Taker   ScreenshotTaker
	Dir     string
	Limiter *throttle.Registry
}

// NewFileCapturer creates a FileCapturer.
func NewFileCapturer(taker ScreenshotTaker, dir string, limiter *throttle.Registry) *FileCapturer {
	return &FileCapturer{Taker: taker, Dir: dir, Limiter: limiter}
}

// Capture implements Capturer.
func (c *FileCapturer) Capture(ctx context.Context, slug, url string) (string, error) {
	if c.Taker == nil {
		return "", fmt.Errorf("screenshot capture not configured")
	}
	if err := c.Limiter.Wait(ctx, throttle.ServiceScreenshot); err != nil {
		return "", fmt.Errorf("screenshot of %s not started: %w", url, err)
	}
	data, err := c.Taker.Screenshot(ctx, url)
	if err != nil {
		return "", err
	}

	dir := filepath.Join(c.Dir, filepath.Base(slug))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create screenshot directory: %w", err)
	}

	name := uuid.NewString() + ".jpg"
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write screenshot: %w", err)
	}

	return filepath.ToSlash(filepath.Join(filepath.Base(slug), name)), nil
}
