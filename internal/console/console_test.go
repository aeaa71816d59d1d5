package console

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/genricoloni/bluctl/internal/config"
	"github.com/genricoloni/bluctl/internal/domain"
	"github.com/genricoloni/bluctl/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeBackend struct {
	mu        sync.Mutex
	view      *domain.View
	session   *engine.Session
	players   []domain.PlayerIdentity
	connected []domain.PlayerIdentity
	described int
}

func (f *fakeBackend) View() *domain.View { return f.view }

func (f *fakeBackend) Session() *engine.Session { return f.session }

func (f *fakeBackend) Describe(ctx context.Context) (*domain.View, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.described++
	if f.session == nil {
		return nil, domain.ErrNoSession
	}
	return f.session.View(), nil
}

func (f *fakeBackend) Players() []domain.PlayerIdentity { return f.players }

func (f *fakeBackend) Connect(ctx context.Context, id domain.PlayerIdentity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = append(f.connected, id)
	return nil
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestHandle_PlayersAndPick(t *testing.T) {
	backend := &fakeBackend{players: []domain.PlayerIdentity{
		{Host: "10.0.0.2", Port: 11000, FriendlyName: "Kitchen"},
		{Host: "10.0.0.3", Port: 11000, FriendlyName: "Office"},
	}}
	out := &syncBuffer{}
	c := New(zap.NewNop(), backend, strings.NewReader(""), out, nil)

	require.NoError(t, c.Handle(context.Background(), "l"))
	assert.Contains(t, out.String(), "1) Kitchen (10.0.0.2:11000)")
	assert.Contains(t, out.String(), "2) Office (10.0.0.3:11000)")

	require.NoError(t, c.Handle(context.Background(), "2"))
	require.Len(t, backend.connected, 1)
	assert.Equal(t, "Office", backend.connected[0].FriendlyName)

	assert.Error(t, c.Handle(context.Background(), "7"))
}

func TestHandle_WithoutSession(t *testing.T) {
	c := New(zap.NewNop(), &fakeBackend{}, strings.NewReader(""), &syncBuffer{}, nil)

	for _, cmd := range []string{"p", " ", "+", "-", ">", "<", "f", "F", "s", "pl", "o 1", "m 1", "a play_now", "b Tidal/Albums", "v", "w mix", "x mix", "/adele"} {
		t.Run(cmd, func(t *testing.T) {
			assert.ErrorIs(t, c.Handle(context.Background(), cmd), domain.ErrNoSession)
		})
	}
	assert.NoError(t, c.Handle(context.Background(), ""))
	assert.ErrorIs(t, c.Handle(context.Background(), "q"), errQuit)
}

var _browsePages = map[string]string{
	"": `<browse><item text="Tidal" browseKey="Tidal:"/><item text="Radio" browseKey="Radio:"/></browse>`,
	"Tidal:": `<browse searchKey="Tidal:Search"><item text="Albums" browseKey="Tidal:albums"/>` +
		`<item text="Favourites" browseKey="Tidal:fav"/></browse>`,
	"Tidal:fav":        `<browse><item text="Albums" browseKey="Tidal:fav/albums"/></browse>`,
	"Tidal:fav/albums": `<browse><item text="30" text2="Adele" browseKey="Tidal:album/2"/></browse>`,
	"Radio:":           `<browse><item text="Paradise" playURL="/Play?url=Radio%3A1"/></browse>`,
	"Tidal:albums":     `<browse><item text="25" text2="Adele" browseKey="Tidal:album/1" contextMenuKey="Tidal:CM/1"/></browse>`,
	"Tidal:CM/1": `<browse><item text="Play now" actionURL="/Add?playnow=1&amp;albumid=1"/>` +
		`<item text="Add to Favourites" actionURL="/AddFavourite?albumid=1&amp;service=Tidal"/></browse>`,
	"Tidal:CM/Tidal-Album?albumid=1&artist=Adele&artistid=9": `<browse>` +
		`<item text="Remove from Favourites" actionURL="/RemoveFavourite?albumid=1&amp;service=Tidal"/></browse>`,
	"Tidal:Search": `<browse><item text="Hello" text2="Adele" playURL="/Play?url=Tidal%3A2"/></browse>`,
	"playlists":    `<browse><item text="Road trip" browseKey="playlists:1"/></browse>`,
}

// fakePlayer answers browse requests from _browsePages and records every other request
type fakePlayer struct {
	mu       sync.Mutex
	requests []string
}

func (p *fakePlayer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/Status":
		_, _ = w.Write([]byte(`<status etag="e1"><title1>Hello</title1><artist>Adele</artist><album>25</album>` +
			`<state>play</state><service>Tidal</service><albumid>1</albumid><artistid>9</artistid></status>`))
		return
	case "/Playlist":
		_, _ = w.Write([]byte(`<playlist id="1"/>`))
		return
	case "/Browse":
		page, ok := _browsePages[r.URL.Query().Get("key")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(page))
		return
	case "/Save":
		_, _ = w.Write([]byte(`<saved><entries>7</entries></saved>`))
	default:
		_, _ = w.Write([]byte(`<ok/>`))
	}
	p.mu.Lock()
	p.requests = append(p.requests, r.URL.RequestURI())
	p.mu.Unlock()
}

func (p *fakePlayer) last() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		return ""
	}
	return p.requests[len(p.requests)-1]
}

func newTestSession(t *testing.T) (*engine.Session, *fakePlayer) {
	t.Helper()
	player := &fakePlayer{}
	srv := httptest.NewServer(player)
	t.Cleanup(srv.Close)

	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Player.LongPoll = false
	cfg.Player.PollInterval = time.Hour
	cfg.Player.InterpolationTick = time.Hour

	s := engine.NewSession(zap.NewNop(), cfg, domain.PlayerIdentity{Host: host, Port: port})
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	require.Eventually(t, func() bool { return s.View().Status != nil }, 2*time.Second, 10*time.Millisecond)
	return s, player
}

func TestHandle_BrowseAndPlay(t *testing.T) {
	s, player := newTestSession(t)
	out := &syncBuffer{}
	c := New(zap.NewNop(), &fakeBackend{session: s}, strings.NewReader(""), out, nil)
	ctx := context.Background()

	require.NoError(t, c.Handle(ctx, "b tidal/albums"))
	assert.Contains(t, out.String(), "1. 25 - Adele")

	require.NoError(t, c.Handle(ctx, "m 1"))
	assert.Contains(t, out.String(), "actions for 25: favourite, play_now")

	require.NoError(t, c.Handle(ctx, "a play_now"))
	assert.Equal(t, "/Add?albumid=1&playnow=1", player.last())
	assert.Error(t, c.Handle(ctx, "a add_last"))

	// descend from the top level and play a radio station
	require.NoError(t, c.Handle(ctx, "b Radio"))
	assert.Contains(t, out.String(), "1. Paradise")
	require.NoError(t, c.Handle(ctx, "o 1"))
	assert.Equal(t, "/Play?url=Radio%3A1", player.last())

	assert.Error(t, c.Handle(ctx, "o 9"))
	assert.Error(t, c.Handle(ctx, "o x"))
}

func TestHandle_SearchUsesOpenedSource(t *testing.T) {
	s, _ := newTestSession(t)
	out := &syncBuffer{}
	c := New(zap.NewNop(), &fakeBackend{session: s}, strings.NewReader(""), out, nil)
	ctx := context.Background()

	require.NoError(t, c.Handle(ctx, "s"))
	assert.Contains(t, out.String(), "1. Tidal")

	// opening a searchable source lists it and makes it the search target
	require.NoError(t, c.Handle(ctx, "o 1"))
	assert.Contains(t, out.String(), "1. Albums")

	require.NoError(t, c.Handle(ctx, "/adele"))
	assert.Contains(t, out.String(), "1. Hello - Adele")
	assert.Error(t, c.Handle(ctx, "/"))
}

func TestHandle_LibraryCommands(t *testing.T) {
	s, player := newTestSession(t)
	out := &syncBuffer{}
	backend := &fakeBackend{session: s}
	c := New(zap.NewNop(), backend, strings.NewReader(""), out, nil)
	ctx := context.Background()

	require.NoError(t, c.Handle(ctx, "pl"))
	assert.Contains(t, out.String(), "1. Road trip")

	require.NoError(t, c.Handle(ctx, "w road trip"))
	assert.Equal(t, "/Save?name=road+trip", player.last())
	assert.Contains(t, out.String(), `saved "road trip" with 7 entries`)

	require.NoError(t, c.Handle(ctx, "x road trip"))
	assert.Equal(t, "/Delete?name=road+trip", player.last())
	assert.ErrorIs(t, c.Handle(ctx, "x"), domain.ErrInvalidSource)

	require.NoError(t, c.Handle(ctx, "f"))
	assert.Equal(t, "/AddFavourite?albumid=1&service=Tidal", player.last())

	require.NoError(t, c.Handle(ctx, "F"))
	assert.Equal(t, "/RemoveFavourite?albumid=1&service=Tidal", player.last())

	// favourites of the service now playing
	require.NoError(t, c.Handle(ctx, "v"))
	assert.Contains(t, out.String(), "1. 30 - Adele")

	require.NoError(t, c.Handle(ctx, "b Tidal/Nothing"))
	assert.Contains(t, out.String(), "Tidal/Nothing not found")

	require.NoError(t, c.Handle(ctx, "i"))
	assert.Equal(t, 1, backend.described)
	assert.Contains(t, out.String(), "Hello - Adele\nalbum: 25")
}

func TestReadLoop_QuitCallsShutdown(t *testing.T) {
	quit := make(chan struct{})
	c := New(zap.NewNop(), &fakeBackend{}, strings.NewReader("l\nq\n"), &syncBuffer{}, func() { close(quit) })

	require.NoError(t, c.Start(context.Background()))
	defer func() { _ = c.Stop(context.Background()) }()

	select {
	case <-quit:
	case <-time.After(2 * time.Second):
		t.Fatal("quit was not called")
	}
}

func TestDetails(t *testing.T) {
	status := &domain.PlayerStatus{TrackTitle: "Hello", Artist: "Adele", Album: "25"}

	tests := []struct {
		name string
		view *domain.View
		want string
	}{
		{"no status", &domain.View{}, ""},
		{
			name: "loading",
			view: &domain.View{Status: status,
				Album: domain.Enrichment{State: domain.EnrichmentPending},
				Track: domain.Enrichment{State: domain.EnrichmentPending}},
			want: "Hello - Adele\nalbum: 25 (loading...)\nabout the track: loading...",
		},
		{
			name: "ready",
			view: &domain.View{Status: status,
				Album: domain.Enrichment{State: domain.EnrichmentReady, Entry: &domain.EnrichmentEntry{Year: "2015", Description: "Third studio album."}},
				Track: domain.Enrichment{State: domain.EnrichmentReady, Entry: &domain.EnrichmentEntry{Description: "Lead single."}}},
			want: "Hello - Adele\nalbum: 25 (2015)\nabout the album: Third studio album.\nabout the track: Lead single.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Details(tt.view))
		})
	}
}

func TestStatusLine(t *testing.T) {
	status := &domain.PlayerStatus{
		TrackTitle:     "Hello",
		Artist:         "Adele",
		Album:          "25",
		State:          domain.StatePlaying,
		Volume:         30,
		ElapsedSeconds: 83,
		TotalSeconds:   295,
	}

	tests := []struct {
		name string
		view *domain.View
		want string
	}{
		{
			name: "not connected",
			want: "not connected (l lists players)",
		},
		{
			name: "waiting",
			view: &domain.View{Player: domain.PlayerIdentity{Host: "10.0.0.2", FriendlyName: "Kitchen"}},
			want: "Kitchen: waiting for status",
		},
		{
			name: "pending album",
			view: &domain.View{Status: status, Album: domain.Enrichment{State: domain.EnrichmentPending}},
			want: "> Hello - Adele [25] 1:23/4:55 vol 30 | loading...",
		},
		{
			name: "album info",
			view: &domain.View{Status: status, Album: domain.Enrichment{
				State: domain.EnrichmentReady,
				Entry: &domain.EnrichmentEntry{Year: "2015", Label: "XL", Genres: []string{"soul", "pop"}},
			}},
			want: "> Hello - Adele [25] 1:23/4:55 vol 30 | 2015 / XL / soul, pop",
		},
		{
			name: "no info and connection lost",
			view: &domain.View{Status: status, Album: domain.Enrichment{State: domain.EnrichmentFailed}, ConnectionLost: true},
			want: "> Hello - Adele [25] 1:23/4:55 vol 30 | no info (connection lost)",
		},
		{
			name: "radio without total",
			view: &domain.View{Status: &domain.PlayerStatus{TrackTitle: "Radio Paradise", State: domain.StatePaused, ElapsedSeconds: 3725}},
			want: "|| Radio Paradise 1:02:05 vol 0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusLine(tt.view))
		})
	}
}
