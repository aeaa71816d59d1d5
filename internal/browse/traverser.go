package browse

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/genricoloni/bluctl/internal/config"
	"github.com/genricoloni/bluctl/internal/domain"
	"go.uber.org/zap"
)

const (
	_libraryContainer = "Library"
	_playlistsKey     = "playlists"
)

// Action names a context menu entry
type Action string

const (
	ActionPlayNow   Action = "play_now"
	ActionAddNext   Action = "add_next"
	ActionAddLast   Action = "add_last"
	ActionFavourite Action = "favourite"
)

var _menuActions = []struct {
	text   string
	action Action
}{
	{"play now", ActionPlayNow},
	{"add next", ActionAddNext},
	{"add last", ActionAddLast},
	{"favourite", ActionFavourite},
}

// PageSource fetches a single browse page from a device
type PageSource interface {
	Browse(ctx context.Context, key, query string) (domain.BrowsePage, error)
}

// Traverser walks the device's browse hierarchy.
// Single pages are cached briefly; full traversals are bounded by a page ceiling.
type Traverser struct {
	logger   *zap.Logger
	source   PageSource
	maxPages int
	cache    *pageCache
}

// New creates a traverser on top of a page source
func New(logger *zap.Logger, source PageSource, cfg config.BrowseSettings) *Traverser {
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = config.Default().Browse.MaxPages
	}
	return &Traverser{
		logger:   logger,
		source:   source,
		maxPages: maxPages,
		cache:    newPageCache(logger, cfg.CacheBytes, cfg.CacheTTL),
	}
}

// Browse fetches one page. A non-empty cursor is sent back unmodified as the request key.
func (t *Traverser) Browse(ctx context.Context, key, cursor string) (domain.BrowsePage, error) {
	if cursor != "" {
		key = cursor
	}
	return t.page(ctx, key, "")
}

// CaptureAll follows NextCursor until the listing ends.
// On error the nodes gathered so far are returned alongside it; hitting the page
// ceiling yields domain.ErrPaginationLimitExceeded.
func (t *Traverser) CaptureAll(ctx context.Context, key string) ([]domain.BrowseNode, error) {
	return t.capture(ctx, key, "")
}

// Search runs a query against a search key, with the same traversal contract as CaptureAll.
// A "Library" container in the results is replaced by its contents.
func (t *Traverser) Search(ctx context.Context, searchKey, query string) ([]domain.BrowseNode, error) {
	t.logger.Info("Searching", zap.String("key", searchKey), zap.String("query", query))

	found, err := t.capture(ctx, searchKey, query)
	results := make([]domain.BrowseNode, 0, len(found))
	for _, node := range found {
		if node.DisplayText != _libraryContainer || node.BrowseKey == "" {
			results = append(results, node)
			continue
		}
		library, libErr := t.capture(ctx, node.BrowseKey, "")
		results = append(results, library...)
		if libErr != nil && err == nil {
			err = libErr
		}
	}

	t.logger.Info("Search finished", zap.String("query", query), zap.Int("results", len(results)))
	return results, err
}

// SearchableSources returns the top-level sources that accept a search query
func (t *Traverser) SearchableSources(ctx context.Context) ([]domain.BrowseNode, error) {
	top, err := t.page(ctx, "", "")
	if err != nil {
		return nil, err
	}

	var out []domain.BrowseNode
	for _, node := range top.Nodes {
		if node.BrowseKey == "" {
			continue
		}
		sub, err := t.page(ctx, node.BrowseKey, "")
		if err != nil {
			t.logger.Debug("Skipping source", zap.String("source", node.DisplayText), zap.Error(err))
			continue
		}
		if sub.SearchKey != "" {
			node.SearchCapable = true
			node.SearchKey = sub.SearchKey
			out = append(out, node)
		}
	}
	return out, nil
}

// BrowsePath descends the hierarchy by matching each name against item text, case-insensitively.
// It reports whether the whole path was reached and returns either the final listing
// or the items of the level where matching failed.
func (t *Traverser) BrowsePath(ctx context.Context, names ...string) (bool, []domain.BrowseNode, error) {
	key := ""
	for depth, name := range names {
		level, err := t.page(ctx, key, "")
		if err != nil {
			return false, nil, err
		}
		if len(level.Nodes) == 0 {
			return false, nil, nil
		}

		match := findByName(level.Nodes, name)
		if match == nil || match.BrowseKey == "" {
			t.logger.Info("Browse path element not found",
				zap.String("name", name),
				zap.Int("depth", depth))
			return false, level.Nodes, nil
		}
		key = match.BrowseKey
	}

	nodes, err := t.CaptureAll(ctx, key)
	return len(nodes) > 0, nodes, err
}

// Playlists lists the saved playlists
func (t *Traverser) Playlists(ctx context.Context) ([]domain.BrowseNode, error) {
	return t.CaptureAll(ctx, _playlistsKey)
}

// ContextActions reads a node's context menu and maps known entries to their action URLs.
// Menu entries that only carry a browse key are turned into a /Browse request.
func (t *Traverser) ContextActions(ctx context.Context, node domain.BrowseNode) (map[Action]string, error) {
	if node.ContextMenuKey == "" {
		return nil, fmt.Errorf("%w: %q has no context menu", domain.ErrInvalidSource, node.DisplayText)
	}

	menu, err := t.source.Browse(ctx, node.ContextMenuKey, "")
	if err != nil {
		return nil, err
	}

	actions := make(map[Action]string)
	for _, item := range menu.Nodes {
		text := strings.ToLower(item.DisplayText)
		for _, m := range _menuActions {
			if !strings.Contains(text, m.text) {
				continue
			}
			if _, ok := actions[m.action]; ok {
				continue
			}
			switch {
			case item.ActionURL != "":
				actions[m.action] = item.ActionURL
			case item.BrowseKey != "" && m.action == ActionFavourite:
				actions[m.action] = "/Browse?" + url.Values{"key": {item.BrowseKey}}.Encode()
			}
		}
	}

	t.logger.Debug("Context actions resolved",
		zap.String("item", node.DisplayText),
		zap.Int("actions", len(actions)))
	return actions, nil
}

// Invalidate drops every cached page
func (t *Traverser) Invalidate(ctx context.Context) error {
	if err := t.cache.clear(ctx); err != nil {
		return fmt.Errorf("failed to clear browse cache: %w", err)
	}
	return nil
}

func (t *Traverser) capture(ctx context.Context, key, query string) ([]domain.BrowseNode, error) {
	var nodes []domain.BrowseNode
	for pages := 0; ; pages++ {
		if pages >= t.maxPages {
			t.logger.Warn("Browse page ceiling reached",
				zap.String("key", key),
				zap.Int("pages", pages),
				zap.Int("nodes", len(nodes)))
			return nodes, fmt.Errorf("%w: %d pages", domain.ErrPaginationLimitExceeded, t.maxPages)
		}

		page, err := t.page(ctx, key, query)
		if err != nil {
			return nodes, err
		}
		nodes = append(nodes, page.Nodes...)

		if page.NextCursor == "" {
			return nodes, nil
		}
		key, query = page.NextCursor, ""
	}
}

func (t *Traverser) page(ctx context.Context, key, query string) (domain.BrowsePage, error) {
	if page, ok := t.cache.get(ctx, key, query); ok {
		return page, nil
	}
	page, err := t.source.Browse(ctx, key, query)
	if err != nil {
		return domain.BrowsePage{}, err
	}
	t.cache.put(ctx, key, query, page)
	return page, nil
}

func findByName(nodes []domain.BrowseNode, name string) *domain.BrowseNode {
	want := strings.ToLower(name)
	for i := range nodes {
		if strings.Contains(strings.ToLower(nodes[i].DisplayText), want) {
			return &nodes[i]
		}
	}
	return nil
}
