package generation

import (
	"context"
	"strings"
)

// Image is one generated image.
type Image struct {
	Data     []byte
	MIMEType string
}

// Ext returns the file extension matching the image MIME type, without
// the leading dot. Unknown types map to "png".
func (i Image) Ext() string {
	switch strings.ToLower(i.MIMEType) {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	default:
		return "png"
	}
}

// Generator defines the interface for producing images from a text prompt.
// It is the boundary between the cache pipeline and external AI services.
type Generator interface {
	// GenerateImages returns the images produced for prompt.
	// Errors wrap the sentinels in errors.go.
	GenerateImages(ctx context.Context, prompt string) ([]Image, error)
}
