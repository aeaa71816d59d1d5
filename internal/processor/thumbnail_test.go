package processor

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/genricoloni/bluctl/internal/config"
	"go.uber.org/zap"
)

func TestThumbnailProcessor_Thumbnail(t *testing.T) {
	tests := []struct {
		name          string
		imageData     []byte
		wantW, wantH  int
		expectedError string
	}{
		{
			name:      "square jpeg",
			imageData: createTestJPEG(500, 500, color.RGBA{R: 255, A: 255}),
			wantW:     48,
			wantH:     48,
		},
		{
			name:      "wide png keeps aspect ratio",
			imageData: createTestPNG(400, 200, color.RGBA{G: 255, A: 255}),
			wantW:     48,
			wantH:     24,
		},
		{
			name:      "small image is not enlarged",
			imageData: createTestPNG(10, 10, color.RGBA{B: 255, A: 255}),
			wantW:     10,
			wantH:     10,
		},
		{
			name:          "invalid data",
			imageData:     []byte("not-an-image"),
			expectedError: "failed to decode image",
		},
		{
			name:          "empty data",
			imageData:     []byte{},
			expectedError: "failed to decode image",
		},
		{
			name:          "corrupted jpeg",
			imageData:     []byte{0xFF, 0xD8, 0xFF, 0x00, 0x00},
			expectedError: "failed to decode image",
		},
	}

	p := NewThumbnailProcessor(zap.NewNop(), config.Default())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := p.Thumbnail(tt.imageData)

			if tt.expectedError != "" {
				if err == nil {
					t.Fatalf("expected error containing %q, got nil", tt.expectedError)
				}
				if !strings.Contains(err.Error(), tt.expectedError) {
					t.Errorf("expected error containing %q, got %q", tt.expectedError, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			b := img.Bounds()
			if b.Dx() != tt.wantW || b.Dy() != tt.wantH {
				t.Errorf("expected %dx%d, got %dx%d", tt.wantW, tt.wantH, b.Dx(), b.Dy())
			}
		})
	}
}

func TestNewThumbnailProcessor_DefaultSize(t *testing.T) {
	cfg := config.Default()
	cfg.Enrich.ThumbnailSize = 0

	p := NewThumbnailProcessor(zap.NewNop(), cfg)
	if p.size != config.Default().Enrich.ThumbnailSize {
		t.Errorf("expected default size, got %d", p.size)
	}
}

func createTestJPEG(w, h int, c color.Color) []byte {
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, fill(w, h, c), &jpeg.Options{Quality: 90})
	return buf.Bytes()
}

func createTestPNG(w, h int, c color.Color) []byte {
	var buf bytes.Buffer
	_ = png.Encode(&buf, fill(w, h, c))
	return buf.Bytes()
}

func fill(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}
