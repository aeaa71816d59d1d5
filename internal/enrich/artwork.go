package enrich

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/genricoloni/bluctl/internal/domain"
)

// Thumbnailer turns encoded image bytes into a small image
type Thumbnailer interface {
	Thumbnail(data []byte) (image.Image, error)
}

// Artwork downloads cover art and shrinks it for display.
// The key title is the absolute image URL.
type Artwork struct {
	fetcher     domain.Fetcher
	thumbnailer Thumbnailer
}

// NewArtwork creates an artwork provider
func NewArtwork(fetcher domain.Fetcher, thumbnailer Thumbnailer) *Artwork {
	return &Artwork{fetcher: fetcher, thumbnailer: thumbnailer}
}

// Lookup fetches and thumbnails the image at key.Title
func (a *Artwork) Lookup(ctx context.Context, key domain.IdentityKey) (domain.EnrichmentEntry, error) {
	if key.Title == "" {
		return domain.EnrichmentEntry{}, domain.ErrNoMatch
	}

	data, err := a.fetcher.Fetch(ctx, key.Title)
	if err != nil {
		return domain.EnrichmentEntry{}, fmt.Errorf("artwork fetch: %w", err)
	}

	img, err := a.thumbnailer.Thumbnail(data)
	if err != nil {
		return domain.EnrichmentEntry{}, fmt.Errorf("%w: artwork: %w", domain.ErrDecode, err)
	}

	return domain.EnrichmentEntry{
		Key:       key,
		Artwork:   img,
		FetchedAt: time.Now(),
	}, nil
}
