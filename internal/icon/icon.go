// Package icon validates uploaded server icons before anything touches disk
// or the database.
package icon

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	// Register decoders for every accepted icon format so that
	// image.DecodeConfig can read their headers.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// MaxDimension is the pixel bound for icon width and height.
const MaxDimension = 70

var validExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// ValidateExtension rejects filenames whose extension (case-insensitive) is
// not a recognized image type.
func ValidateExtension(filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if !validExtensions[ext] {
		return errors.New("unsupported file extension")
	}
	return nil
}

// ValidateDimensions decodes the image header and rejects images wider or
// taller than MaxDimension pixels. An empty payload is not an error.
func ValidateDimensions(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("cannot decode image: %w", err)
	}

	if cfg.Width > MaxDimension || cfg.Height > MaxDimension {
		return fmt.Errorf("maximum dimensions %dx%d exceeded, got %dx%d",
			MaxDimension, MaxDimension, cfg.Width, cfg.Height)
	}
	return nil
}

// Validate runs both checks. The checks are independent constraints on the
// same upload field: a bad extension does not stop the dimension check, and
// the returned error reports every failed constraint.
func Validate(filename string, data []byte) error {
	return errors.Join(ValidateExtension(filename), ValidateDimensions(data))
}
