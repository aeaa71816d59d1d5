package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/genricoloni/bluctl/internal/config"
	"github.com/genricoloni/bluctl/internal/discovery"
	"github.com/genricoloni/bluctl/internal/domain"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const _debounce = 500 * time.Millisecond

// Scanner finds players on the network
type Scanner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Found() <-chan domain.PlayerIdentity
	Players() []domain.PlayerIdentity
	Probe(ctx context.Context, id domain.PlayerIdentity) (domain.PlayerIdentity, error)
}

// Enricher answers identity lookups. Lookup never blocks; Get waits for the final result.
type Enricher interface {
	Lookup(key domain.IdentityKey) domain.Enrichment
	Get(ctx context.Context, key domain.IdentityKey) domain.Enrichment
	Results() <-chan domain.Enrichment
}

// PlayerStore persists the last connected player
type PlayerStore interface {
	Load() (config.Preferences, error)
	RememberPlayer(host, name string) error
}

// Engine owns the current session.
// It connects players, routes track changes to the enrichment cache and
// merges finished lookups back into the current session's view.
type Engine struct {
	logger   *zap.Logger
	cfg      *config.AppConfig
	store    PlayerStore
	scanner  Scanner
	enricher Enricher
	notifier domain.Notifier // nil disables notifications

	connectMu sync.Mutex // serializes Connect and Disconnect
	stopped   bool       // guarded by connectMu
	mu        sync.Mutex
	session   *Session
	changes   chan domain.TrackChange

	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewEngine creates the session owner
func NewEngine(
	logger *zap.Logger,
	cfg *config.AppConfig,
	store PlayerStore,
	scanner Scanner,
	enricher Enricher,
	notifier domain.Notifier,
) *Engine {
	return &Engine{
		logger:   logger,
		cfg:      cfg,
		store:    store,
		scanner:  scanner,
		enricher: enricher,
		notifier: notifier,
		changes:  make(chan domain.TrackChange, 10),
	}
}

// Start launches discovery and the event loop, then resumes the last player in the background.
// It returns immediately.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = true
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.cancel = cancel
	e.mu.Unlock()

	e.logger.Info("Engine starting...")
	if err := e.scanner.Start(loopCtx); err != nil {
		e.logger.Warn("Discovery not started", zap.Error(err))
	}

	e.wg.Add(2)
	go e.runLoop(loopCtx)
	go func() {
		defer e.wg.Done()
		if err := e.Resume(loopCtx); err != nil {
			e.logger.Warn("Resume failed", zap.Error(err))
		}
	}()
	return nil
}

// Stop tears down the session and discovery. Teardown is best effort; errors are combined.
func (e *Engine) Stop(ctx context.Context) error {
	e.logger.Info("Engine stopping...")

	var err error

	// closing the session ends its forwarder, so it has to happen before the wait
	e.connectMu.Lock()
	e.stopped = true
	err = multierr.Append(err, e.teardown(ctx))
	e.connectMu.Unlock()

	e.mu.Lock()
	if e.running {
		e.cancel()
		e.running = false
	}
	e.mu.Unlock()

	e.wg.Wait()

	err = multierr.Append(err, e.scanner.Stop(ctx))
	return err
}

// Session returns the current session or nil
func (e *Engine) Session() *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// View returns the current snapshot or nil when no player is connected
func (e *Engine) View() *domain.View {
	if s := e.Session(); s != nil {
		return s.View()
	}
	return nil
}

// Players lists the players seen by discovery so far
func (e *Engine) Players() []domain.PlayerIdentity {
	return e.scanner.Players()
}

// Describe waits for the album and track information of the current track,
// merges it into the session and returns the resulting snapshot.
func (e *Engine) Describe(ctx context.Context) (*domain.View, error) {
	s := e.Session()
	if s == nil {
		return nil, domain.ErrNoSession
	}
	v := s.View()
	if v.Status == nil {
		return v, nil
	}

	if e.cfg.Enrich.LookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Enrich.LookupTimeout)
		defer cancel()
	}

	var wg sync.WaitGroup
	for _, key := range []domain.IdentityKey{v.Status.AlbumKey(), v.Status.TrackKey()} {
		key := key
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r := e.enricher.Get(ctx, key); r.Done() {
				s.Sync.Merge(r)
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return s.View(), fmt.Errorf("describe: %w", err)
	}
	return s.View(), nil
}

// Resume reconnects to the configured or remembered player.
// An unreachable host is not an error: discovery keeps running and the user picks a player.
func (e *Engine) Resume(ctx context.Context) error {
	var hosts []string
	if e.cfg.Host != "" {
		hosts = append(hosts, e.cfg.Host)
	}
	prefs, err := e.store.Load()
	if err != nil {
		e.logger.Warn("Preferences unavailable", zap.Error(err))
	} else if prefs.PlayerHost != "" {
		hosts = append(hosts, prefs.PlayerHost)
	}

	for _, host := range hosts {
		err := e.Connect(ctx, discovery.ParseHost(host))
		if err == nil {
			return nil
		}
		e.logger.Info("Known player unreachable, falling back to discovery",
			zap.String("host", host),
			zap.Error(err))
	}
	return nil
}

// Connect replaces the current session with one bound to id.
// The player is probed first; if it does not answer the current session is kept.
func (e *Engine) Connect(ctx context.Context, id domain.PlayerIdentity) error {
	e.connectMu.Lock()
	defer e.connectMu.Unlock()
	if e.stopped {
		return fmt.Errorf("connect %s: engine stopped", id.Address())
	}

	probed, err := e.scanner.Probe(ctx, id)
	if err != nil {
		return fmt.Errorf("connect %s: %w", id.Address(), err)
	}

	if err := e.teardown(ctx); err != nil {
		e.logger.Warn("Previous session teardown failed", zap.Error(err))
	}

	s := NewSession(e.logger, e.cfg, probed)
	if err := s.Start(ctx); err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	e.mu.Lock()
	e.session = s
	e.mu.Unlock()

	e.wg.Add(1)
	go e.forward(s)

	if err := e.store.RememberPlayer(storedHost(probed), probed.Name()); err != nil {
		e.logger.Warn("Could not remember player", zap.Error(err))
	}

	e.logger.Info("Connected to player",
		zap.String("name", probed.Name()),
		zap.String("address", probed.Address()),
		zap.String("session", s.ID))
	return nil
}

// Disconnect tears down the current session, if any
func (e *Engine) Disconnect(ctx context.Context) error {
	e.connectMu.Lock()
	defer e.connectMu.Unlock()
	return e.teardown(ctx)
}

func (e *Engine) teardown(ctx context.Context) error {
	e.mu.Lock()
	s := e.session
	e.session = nil
	e.mu.Unlock()

	if s == nil {
		return nil
	}
	e.logger.Info("Disconnecting", zap.String("session", s.ID))
	return s.Close(ctx)
}

// forward relays a session's track changes to the engine loop until the session stops
func (e *Engine) forward(s *Session) {
	defer e.wg.Done()
	for change := range s.Sync.Events() {
		select {
		case e.changes <- change:
		default:
			e.logger.Debug("Engine busy, dropping track change", zap.String("session", s.ID))
		}
	}
}

// runLoop debounces track changes and merges enrichment results
func (e *Engine) runLoop(ctx context.Context) {
	defer e.wg.Done()

	timer := time.NewTimer(_debounce)
	timer.Stop()
	defer timer.Stop()

	var pending *domain.TrackChange
	results := e.enricher.Results()
	found := e.scanner.Found()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Engine loop stopped")
			return

		case change := <-e.changes:
			if change.ArtworkOnly {
				// a pending track change looks up the artwork too
				if pending == nil {
					e.processArtwork(change)
				}
				continue
			}
			e.logger.Debug("Track change received, debouncing...",
				zap.String("title", change.Current.TrackTitle),
				zap.String("artist", change.Current.Artist))
			pending = &change
			timer.Reset(_debounce)

		case <-timer.C:
			if pending != nil {
				e.processChange(ctx, *pending)
				pending = nil
			}

		case r, ok := <-results:
			if !ok {
				results = nil
				continue
			}
			e.merge(r)

		case id, ok := <-found:
			if !ok {
				found = nil
				continue
			}
			e.playerFound(ctx, id)
		}
	}
}

// processChange starts the lookups for the track now playing in the current session
func (e *Engine) processChange(ctx context.Context, change domain.TrackChange) {
	s := e.Session()
	if s == nil || s.ID != change.SessionID {
		e.logger.Debug("Ignoring track change from a closed session",
			zap.String("session", change.SessionID))
		return
	}

	view := s.View()
	if view.Status == nil {
		return
	}
	status := *view.Status

	e.logger.Info("Looking up track information",
		zap.String("track", status.TrackTitle),
		zap.String("artist", status.Artist),
		zap.String("album", status.Album))

	for _, key := range []domain.IdentityKey{status.AlbumKey(), status.TrackKey(), status.ArtworkKey()} {
		if r := e.enricher.Lookup(key); r.Done() {
			s.Sync.Merge(r)
		}
	}

	e.notify(ctx, status)
}

// processArtwork looks up a new image that replaced the artwork of the current track
func (e *Engine) processArtwork(change domain.TrackChange) {
	s := e.Session()
	if s == nil || s.ID != change.SessionID {
		return
	}
	key := change.Current.ArtworkKey()
	if key.Empty() {
		return
	}
	if r := e.enricher.Lookup(key); r.Done() {
		s.Sync.Merge(r)
	}
}

func (e *Engine) merge(r domain.Enrichment) {
	s := e.Session()
	if s == nil {
		return
	}
	if s.Sync.Merge(r) {
		e.logger.Debug("Enrichment merged",
			zap.String("key", r.Key.String()),
			zap.String("state", string(r.State)))
	}
}

func (e *Engine) notify(ctx context.Context, status domain.PlayerStatus) {
	if e.notifier == nil || status.State != domain.StatePlaying || status.TrackTitle == "" {
		return
	}
	body := status.Artist
	if status.Album != "" {
		body += " - " + status.Album
	}
	if err := e.notifier.Notify(ctx, status.TrackTitle, body); err != nil {
		e.logger.Debug("Notification failed", zap.Error(err))
	}
}

// playerFound reconnects automatically when the remembered player shows up under a new address
func (e *Engine) playerFound(ctx context.Context, id domain.PlayerIdentity) {
	if e.Session() != nil {
		return
	}
	prefs, err := e.store.Load()
	if err != nil || prefs.PlayerName == "" || !strings.EqualFold(prefs.PlayerName, id.Name()) {
		return
	}

	e.logger.Info("Remembered player discovered", zap.String("address", id.Address()))
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.Connect(ctx, id); err != nil {
			e.logger.Warn("Reconnect failed", zap.Error(err))
		}
	}()
}

// storedHost keeps the port only when it is not the default one
func storedHost(id domain.PlayerIdentity) string {
	if id.Port == 0 || id.Port == domain.DefaultPort {
		return id.Host
	}
	return id.Address()
}
