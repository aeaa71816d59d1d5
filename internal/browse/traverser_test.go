package browse

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/genricoloni/bluctl/internal/config"
	"github.com/genricoloni/bluctl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeSource serves pages from a map keyed by "key|query"
type fakeSource struct {
	mu    sync.Mutex
	pages map[string]domain.BrowsePage
	fail  map[string]error
	calls []string
}

func (f *fakeSource) Browse(ctx context.Context, key, query string) (domain.BrowsePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := key + "|" + query
	f.calls = append(f.calls, k)
	if err := f.fail[k]; err != nil {
		return domain.BrowsePage{}, err
	}
	page, ok := f.pages[k]
	if !ok {
		return domain.BrowsePage{}, fmt.Errorf("%w: unknown key %q", domain.ErrTransport, k)
	}
	return page, nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func nodes(texts ...string) []domain.BrowseNode {
	out := make([]domain.BrowseNode, len(texts))
	for i, t := range texts {
		out[i] = domain.BrowseNode{DisplayText: t}
	}
	return out
}

func texts(ns []domain.BrowseNode) []string {
	out := make([]string, len(ns))
	for i, n := range ns {
		out[i] = n.DisplayText
	}
	return out
}

func newTraverser(source PageSource, maxPages int) *Traverser {
	cfg := config.Default().Browse
	cfg.MaxPages = maxPages
	return New(zap.NewNop(), source, cfg)
}

func TestCaptureAll_ConcatenatesPages(t *testing.T) {
	source := &fakeSource{pages: map[string]domain.BrowsePage{
		"Tidal:albums|":   {Nodes: nodes("A"), NextCursor: "Tidal:albums/2"},
		"Tidal:albums/2|": {Nodes: nodes("B"), NextCursor: "Tidal:albums/3"},
		"Tidal:albums/3|": {Nodes: nodes("C")},
	}}

	got, err := newTraverser(source, 200).CaptureAll(context.Background(), "Tidal:albums")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, texts(got))
}

func TestCaptureAll_RepeatingCursorHitsCeiling(t *testing.T) {
	source := &fakeSource{pages: map[string]domain.BrowsePage{
		"loop|": {Nodes: nodes("X"), NextCursor: "loop"},
	}}

	got, err := newTraverser(source, 5).CaptureAll(context.Background(), "loop")
	assert.ErrorIs(t, err, domain.ErrPaginationLimitExceeded)
	assert.Len(t, got, 5, "partial result is returned with the error")
}

func TestCaptureAll_TransportErrorReturnsPartial(t *testing.T) {
	source := &fakeSource{
		pages: map[string]domain.BrowsePage{
			"list|": {Nodes: nodes("A", "B"), NextCursor: "list/2"},
		},
		fail: map[string]error{"list/2|": fmt.Errorf("%w: timeout", domain.ErrTransport)},
	}

	got, err := newTraverser(source, 200).CaptureAll(context.Background(), "list")
	assert.ErrorIs(t, err, domain.ErrTransport)
	assert.Equal(t, []string{"A", "B"}, texts(got))
}

func TestBrowse_CursorIsRoundTripped(t *testing.T) {
	source := &fakeSource{pages: map[string]domain.BrowsePage{
		"opaque?cursor=abc&x=1|": {Nodes: nodes("next page")},
	}}

	page, err := newTraverser(source, 200).Browse(context.Background(), "ignored", "opaque?cursor=abc&x=1")
	require.NoError(t, err)
	assert.Equal(t, []string{"next page"}, texts(page.Nodes))
}

func TestBrowse_CacheAndInvalidate(t *testing.T) {
	source := &fakeSource{pages: map[string]domain.BrowsePage{
		"|": {Nodes: nodes("TIDAL", "Radio Paradise")},
	}}
	tr := newTraverser(source, 200)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		page, err := tr.Browse(ctx, "", "")
		require.NoError(t, err)
		assert.Equal(t, []string{"TIDAL", "Radio Paradise"}, texts(page.Nodes))
	}
	assert.Equal(t, 1, source.callCount())

	require.NoError(t, tr.Invalidate(ctx))
	_, err := tr.Browse(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, 2, source.callCount())
}

func TestSearch_ExpandsLibrary(t *testing.T) {
	source := &fakeSource{pages: map[string]domain.BrowsePage{
		"Tidal:Search|adele": {
			Nodes: []domain.BrowseNode{
				{DisplayText: "Library", BrowseKey: "Tidal:lib"},
				{DisplayText: "Hello"},
			},
			NextCursor: "Tidal:Search/2",
		},
		"Tidal:Search/2|": {Nodes: nodes("Skyfall")},
		"Tidal:lib|":      {Nodes: nodes("21", "25")},
	}}

	got, err := newTraverser(source, 200).Search(context.Background(), "Tidal:Search", "adele")
	require.NoError(t, err)
	assert.Equal(t, []string{"21", "25", "Hello", "Skyfall"}, texts(got))
}

func TestBrowsePath(t *testing.T) {
	source := &fakeSource{pages: map[string]domain.BrowsePage{
		"|":              {Nodes: []domain.BrowseNode{{DisplayText: "TIDAL", BrowseKey: "Tidal:"}, {DisplayText: "Radio"}}},
		"Tidal:|":        {Nodes: []domain.BrowseNode{{DisplayText: "My Albums", BrowseKey: "Tidal:albums"}}},
		"Tidal:albums|":  {Nodes: nodes("25"), NextCursor: "Tidal:albums2"},
		"Tidal:albums2|": {Nodes: nodes("30")},
	}}
	tr := newTraverser(source, 200)
	ctx := context.Background()

	reached, got, err := tr.BrowsePath(ctx, "tidal", "albums")
	require.NoError(t, err)
	assert.True(t, reached)
	assert.Equal(t, []string{"25", "30"}, texts(got))

	reached, got, err = tr.BrowsePath(ctx, "tidal", "playlists")
	require.NoError(t, err)
	assert.False(t, reached)
	assert.Equal(t, []string{"My Albums"}, texts(got), "items of the failing level are returned")

	reached, got, err = tr.BrowsePath(ctx, "radio")
	require.NoError(t, err)
	assert.False(t, reached, "a match without a browse key cannot be entered")
	assert.Len(t, got, 2)
}

func TestSearchableSources(t *testing.T) {
	source := &fakeSource{pages: map[string]domain.BrowsePage{
		"|":       {Nodes: []domain.BrowseNode{{DisplayText: "TIDAL", BrowseKey: "Tidal:"}, {DisplayText: "Inputs", BrowseKey: "inputs"}, {DisplayText: "Off"}}},
		"Tidal:|": {Nodes: nodes("x"), SearchKey: "Tidal:Search"},
		"inputs|": {Nodes: nodes("Optical")},
	}}

	got, err := newTraverser(source, 200).SearchableSources(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "TIDAL", got[0].DisplayText)
	assert.Equal(t, "Tidal:Search", got[0].SearchKey)
	assert.True(t, got[0].SearchCapable)
}

func TestContextActions(t *testing.T) {
	source := &fakeSource{pages: map[string]domain.BrowsePage{
		"Tidal:CM/1|": {Nodes: []domain.BrowseNode{
			{DisplayText: "Play now", ActionURL: "/Add?playnow=1&id=1"},
			{DisplayText: "Add next", ActionURL: "/Add?playnow=0&where=next&id=1"},
			{DisplayText: "Add last", ActionURL: "/Add?playnow=0&where=last&id=1"},
			{DisplayText: "Add to Favourites", BrowseKey: "Tidal:fav/1"},
			{DisplayText: "Go to Artist", BrowseKey: "Tidal:artist/1"},
		}},
	}}
	tr := newTraverser(source, 200)

	actions, err := tr.ContextActions(context.Background(), domain.BrowseNode{DisplayText: "25", ContextMenuKey: "Tidal:CM/1"})
	require.NoError(t, err)
	assert.Equal(t, map[Action]string{
		ActionPlayNow:   "/Add?playnow=1&id=1",
		ActionAddNext:   "/Add?playnow=0&where=next&id=1",
		ActionAddLast:   "/Add?playnow=0&where=last&id=1",
		ActionFavourite: "/Browse?key=Tidal%3Afav%2F1",
	}, actions)

	_, err = tr.ContextActions(context.Background(), domain.BrowseNode{DisplayText: "plain"})
	assert.ErrorIs(t, err, domain.ErrInvalidSource)
}

func TestPlaylists(t *testing.T) {
	source := &fakeSource{pages: map[string]domain.BrowsePage{
		"playlists|": {Nodes: nodes("Road Trip", "Chill")},
	}}
	got, err := newTraverser(source, 200).Playlists(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Road Trip", "Chill"}, texts(got))
}

func TestCacheKeyIsUnambiguous(t *testing.T) {
	tests := []struct {
		name       string
		key, query string
		otherKey   string
		otherQuery string
	}{
		{"colon moves between fields", "a:b", "", "a", "b:"},
		{"empty query", "Qobuz:", "x", "Qobuz", ":x"},
		{"separator in query", "k", "q&k=z", "k&q=q", "z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, cacheKey(tt.key, tt.query), cacheKey(tt.otherKey, tt.otherQuery))
		})
	}
	assert.Equal(t, cacheKey("a", "b"), cacheKey("a", "b"))
}
