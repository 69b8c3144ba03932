// Package rasterlimit bounds in-process decoding by the size an image
// header declares, before any pixel buffer is allocated.
package rasterlimit

import (
	"errors"
	"fmt"
	"image"
	"os"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const (
	// MaxDimension caps either side of a decoded image
	MaxDimension = 32768
	// MaxPixels keeps an RGBA buffer under 256 MB
	MaxPixels int64 = 64 * 1024 * 1024
)

// ErrTooLarge is returned when a header declares more than the limits allow
var ErrTooLarge = errors.New("image exceeds decode limits")

// Validate checks declared dimensions against MaxDimension and MaxPixels
func Validate(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("image bounds invalid (%d x %d)", width, height)
	}
	if width > MaxDimension || height > MaxDimension {
		return fmt.Errorf("%w: dimension %d x %d", ErrTooLarge, width, height)
	}
	if pixels := int64(width) * int64(height); pixels > MaxPixels {
		return fmt.Errorf("%w: %d pixels", ErrTooLarge, pixels)
	}
	return nil
}

// Check reads only the image header at path and validates it
func Check(path string) (image.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return image.Config{}, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return image.Config{}, fmt.Errorf("decode header: %w", err)
	}
	return cfg, Validate(cfg.Width, cfg.Height)
}

// Open decodes path with imaging once its header passes Check
func Open(path string, opts ...imaging.DecodeOption) (image.Image, error) {
	if _, err := Check(path); err != nil {
		return nil, err
	}
	return imaging.Open(path, opts...)
}
