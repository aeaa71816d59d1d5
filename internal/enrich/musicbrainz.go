package enrich

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/genricoloni/bluctl/internal/domain"
	"go.uber.org/zap"
)

const (
	// MusicBrainzAPI is the public web service root
	MusicBrainzAPI  = "https://musicbrainz.org/ws/2"
	_searchLimit    = 25
	_maxGenres      = 3
	_requestTimeout = 5 * time.Second
)

type mbRelease struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Date         string `json:"date"`
	Country      string `json:"country"`
	Score        int    `json:"score"`
	ArtistCredit []struct {
		Name   string `json:"name"`
		Artist struct {
			Name string `json:"name"`
		} `json:"artist"`
	} `json:"artist-credit"`
	LabelInfo []struct {
		Label *struct {
			Name string `json:"name"`
		} `json:"label"`
	} `json:"label-info"`
	ReleaseGroup *struct {
		ID          string `json:"id"`
		PrimaryType string `json:"primary-type"`
	} `json:"release-group"`
}

type mbSearch struct {
	Releases []mbRelease `json:"releases"`
}

type mbTag struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type mbReleaseGroup struct {
	Tags []mbTag `json:"tags"`
}

// MusicBrainz looks up album information
type MusicBrainz struct {
	logger   *zap.Logger
	client   *http.Client
	baseURL  string
	throttle *Throttle
}

// NewMusicBrainz creates an album provider. Every request waits on throttle first.
func NewMusicBrainz(logger *zap.Logger, baseURL string, throttle *Throttle) *MusicBrainz {
	if baseURL == "" {
		baseURL = MusicBrainzAPI
	}
	return &MusicBrainz{
		logger:   logger,
		client:   &http.Client{Timeout: _requestTimeout},
		baseURL:  baseURL,
		throttle: throttle,
	}
}

// Lookup finds the best matching release for an album key
func (m *MusicBrainz) Lookup(ctx context.Context, key domain.IdentityKey) (domain.EnrichmentEntry, error) {
	if key.Artist == "" || key.Title == "" {
		return domain.EnrichmentEntry{}, domain.ErrNoMatch
	}

	queries := []string{
		fmt.Sprintf(`artist:"%s" AND release:%s`, key.Artist, key.Title),
		fmt.Sprintf(`artist:%s release:%s`, key.Artist, key.Title),
	}

	var best *mbRelease
	for _, q := range queries {
		releases, err := m.search(ctx, q)
		if err != nil {
			return domain.EnrichmentEntry{}, err
		}
		m.logger.Debug("MusicBrainz search",
			zap.String("query", q),
			zap.Int("releases", len(releases)))

		if i, score := BestMatch(candidates(releases), key.Artist, key.Title); i >= 0 {
			best = &releases[i]
			m.logger.Info("Release matched",
				zap.String("title", best.Title),
				zap.String("id", best.ID),
				zap.Int("score", score))
			break
		}
	}
	if best == nil {
		return domain.EnrichmentEntry{}, fmt.Errorf("%w: %s", domain.ErrNoMatch, key)
	}

	entry := domain.EnrichmentEntry{
		Key:     key,
		Country: best.Country,
	}
	if len(best.Date) >= 4 {
		entry.Year = best.Date[:4]
	}
	if len(best.LabelInfo) > 0 && best.LabelInfo[0].Label != nil {
		entry.Label = best.LabelInfo[0].Label.Name
	}
	if best.ReleaseGroup != nil {
		entry.ReleaseType = best.ReleaseGroup.PrimaryType
		if best.ReleaseGroup.ID != "" {
			genres, err := m.genres(ctx, best.ReleaseGroup.ID)
			if err != nil {
				if errors.Is(err, domain.ErrRateLimited) || ctx.Err() != nil {
					return domain.EnrichmentEntry{}, err
				}
				m.logger.Warn("Release group tags unavailable", zap.Error(err))
			}
			entry.Genres = genres
		}
	}

	entry.FetchedAt = time.Now()
	return entry, nil
}

func (m *MusicBrainz) search(ctx context.Context, query string) ([]mbRelease, error) {
	if err := m.throttle.Wait(ctx); err != nil {
		return nil, err
	}
	params := url.Values{
		"query": {query},
		"fmt":   {"json"},
		"limit": {fmt.Sprint(_searchLimit)},
	}
	var out mbSearch
	if err := getJSON(ctx, m.client, m.baseURL+"/release/?"+params.Encode(), &out); err != nil {
		return nil, fmt.Errorf("musicbrainz search: %w", err)
	}
	return out.Releases, nil
}

// genres returns the most used release-group tags
func (m *MusicBrainz) genres(ctx context.Context, groupID string) ([]string, error) {
	if err := m.throttle.Wait(ctx); err != nil {
		return nil, err
	}
	params := url.Values{"inc": {"tags"}, "fmt": {"json"}}
	var out mbReleaseGroup
	if err := getJSON(ctx, m.client, m.baseURL+"/release-group/"+url.PathEscape(groupID)+"?"+params.Encode(), &out); err != nil {
		return nil, fmt.Errorf("musicbrainz release group: %w", err)
	}

	tags := out.Tags
	sort.SliceStable(tags, func(i, j int) bool { return tags[i].Count > tags[j].Count })
	if len(tags) > _maxGenres {
		tags = tags[:_maxGenres]
	}
	genres := make([]string, 0, len(tags))
	for _, t := range tags {
		genres = append(genres, t.Name)
	}
	return genres, nil
}

func candidates(releases []mbRelease) []Candidate {
	out := make([]Candidate, len(releases))
	for i, r := range releases {
		c := Candidate{Title: r.Title, Score: r.Score}
		for _, credit := range r.ArtistCredit {
			name := credit.Name
			if name == "" {
				name = credit.Artist.Name
			}
			c.Artists = append(c.Artists, name)
		}
		out[i] = c
	}
	return out
}
