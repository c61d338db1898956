// Package thumbnail derives the reduced-size payload stored next to every
// original image.
package thumbnail

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log/slog"
	"path"
	"strings"

	// Registered decoders for image.Decode.
	_ "image/gif"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/phrazzld/artcache/internal/config"
)

// ErrUnsupportedFormat is returned when the payload cannot be decoded.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Deriver scales images down to fit a bounding box.
type Deriver struct {
	maxWidth  int
	maxHeight int
	quality   int
	logger    *slog.Logger
}

// New creates a Deriver from configuration.
// If logger is nil, a default logger will be used.
func New(cfg config.ThumbnailConfig, logger *slog.Logger) *Deriver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deriver{
		maxWidth:  cfg.MaxWidth,
		maxHeight: cfg.MaxHeight,
		quality:   cfg.Quality,
		logger:    logger.With(slog.String("component", "thumbnail")),
	}
}

// fit returns the size of a w×h image scaled to fit within the box,
// preserving aspect ratio. Images already inside the box keep their size.
func fit(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	// Compare w/maxW against h/maxH without floating point.
	if w*maxH >= h*maxW {
		nh := h * maxW / w
		return maxW, max(nh, 1)
	}
	nw := w * maxH / h
	return max(nw, 1), maxH
}

// Derive decodes original, scales it to fit the configured box and
// re-encodes it. PNG sources (by content or by a .png name) stay PNG so
// transparency survives; everything else becomes JPEG.
func (d *Deriver) Derive(original []byte, name string) ([]byte, error) {
	src, format, err := image.Decode(bytes.NewReader(original))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	b := src.Bounds()
	w, h := fit(b.Dx(), b.Dy(), d.maxWidth, d.maxHeight)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var buf bytes.Buffer
	if format == "png" || strings.EqualFold(path.Ext(name), ".png") {
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, dst); err != nil {
			return nil, fmt.Errorf("encoding png thumbnail: %w", err)
		}
	} else {
		if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: d.quality}); err != nil {
			return nil, fmt.Errorf("encoding jpeg thumbnail: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// Process is Derive that never fails: when derivation fails the original is
// returned unchanged.
func (d *Deriver) Process(original []byte, name string) []byte {
	derived, err := d.Derive(original, name)
	if err != nil {
		d.logger.Warn("thumbnail derivation failed, using original",
			slog.String("name", name),
			slog.Int("bytes", len(original)),
			slog.String("error", err.Error()))
		return original
	}
	return derived
}
