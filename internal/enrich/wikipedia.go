package enrich

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/genricoloni/bluctl/internal/domain"
	"go.uber.org/zap"
)

// WikipediaEndpoint is the summary endpoint; %s is the language code
const WikipediaEndpoint = "https://%s.wikipedia.org/api/rest_v1/page/summary/"

var _wikiLanguages = []string{"en", "de"}

type wikiSummary struct {
	Extract string `json:"extract"`
}

// Wikipedia looks up a page summary for a track title
type Wikipedia struct {
	logger   *zap.Logger
	client   *http.Client
	endpoint string
	throttle *Throttle
}

// NewWikipedia creates a track description provider
func NewWikipedia(logger *zap.Logger, endpoint string, throttle *Throttle) *Wikipedia {
	if endpoint == "" {
		endpoint = WikipediaEndpoint
	}
	return &Wikipedia{
		logger:   logger,
		client:   &http.Client{Timeout: _requestTimeout},
		endpoint: endpoint,
		throttle: throttle,
	}
}

// Lookup tries each language in turn; a missing page moves on to the next one
func (w *Wikipedia) Lookup(ctx context.Context, key domain.IdentityKey) (domain.EnrichmentEntry, error) {
	title := strings.TrimSpace(key.Title)
	if title == "" {
		return domain.EnrichmentEntry{}, domain.ErrNoMatch
	}

	for _, lang := range _wikiLanguages {
		if err := w.throttle.Wait(ctx); err != nil {
			return domain.EnrichmentEntry{}, err
		}

		var summary wikiSummary
		err := getJSON(ctx, w.client, fmt.Sprintf(w.endpoint, lang)+url.PathEscape(title), &summary)
		var se *statusError
		switch {
		case errors.As(err, &se) && se.code == http.StatusNotFound:
			w.logger.Debug("No Wikipedia page", zap.String("lang", lang), zap.String("title", title))
			continue
		case err != nil:
			if ctx.Err() != nil {
				return domain.EnrichmentEntry{}, err
			}
			w.logger.Warn("Wikipedia lookup failed", zap.String("lang", lang), zap.Error(err))
			continue
		}

		if summary.Extract != "" {
			return domain.EnrichmentEntry{
				Key:         key,
				Description: summary.Extract,
				FetchedAt:   time.Now(),
			}, nil
		}
	}

	return domain.EnrichmentEntry{}, fmt.Errorf("%w: %s", domain.ErrNoMatch, key)
}
