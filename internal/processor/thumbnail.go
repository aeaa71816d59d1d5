package processor

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // GIF format support
	_ "image/jpeg" // JPEG format support
	_ "image/png"  // PNG format support

	"github.com/disintegration/imaging"
	"github.com/genricoloni/bluctl/internal/config"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"  // BMP format support
	_ "golang.org/x/image/webp" // WebP format support
)

// ThumbnailProcessor shrinks cover art to a square that fits the status panel
type ThumbnailProcessor struct {
	logger *zap.Logger
	size   int
}

// NewThumbnailProcessor creates a processor sized from the enrichment settings
func NewThumbnailProcessor(logger *zap.Logger, cfg *config.AppConfig) *ThumbnailProcessor {
	size := cfg.Enrich.ThumbnailSize
	if size <= 0 {
		size = config.Default().Enrich.ThumbnailSize
	}
	return &ThumbnailProcessor{logger: logger, size: size}
}

// Thumbnail decodes imageData and scales it down to fit size x size, keeping the aspect ratio.
// Images already smaller than the box are returned unscaled.
func (p *ThumbnailProcessor) Thumbnail(imageData []byte) (image.Image, error) {
	img, format, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, fmt.Errorf("invalid image dimensions: %dx%d", bounds.Dx(), bounds.Dy())
	}

	thumb := imaging.Fit(img, p.size, p.size, imaging.Lanczos)
	p.logger.Debug("Thumbnail created",
		zap.String("format", format),
		zap.Int("w", thumb.Bounds().Dx()),
		zap.Int("h", thumb.Bounds().Dy()))
	return thumb, nil
}
