package synchronizer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/genricoloni/bluctl/internal/config"
	"github.com/genricoloni/bluctl/internal/domain"
	"github.com/genricoloni/bluctl/internal/transport"
	"go.uber.org/zap"
)

// StatusSource is the part of the device client the synchronizer needs
type StatusSource interface {
	Status(ctx context.Context, opts transport.StatusOptions) (domain.PlayerStatus, error)
	Playlist(ctx context.Context, start, end int) (domain.Playlist, error)
}

// Synchronizer keeps a local View of one player up to date.
//
// A single loop goroutine owns scheduling: it issues at most one status
// request at a time, advances elapsed time between polls and publishes
// immutable snapshots. Readers call View without locking.
type Synchronizer struct {
	logger    *zap.Logger
	sessionID string
	source    StatusSource
	cfg       config.PlayerSettings
	now       func() time.Time

	view    atomic.Pointer[domain.View]
	writeMu sync.Mutex // serializes read-modify-publish of view

	// device sample used for interpolation, guarded by writeMu
	sampledElapsed int
	sampledAt      time.Time

	refresh chan struct{}
	events  chan domain.TrackChange

	mu              sync.Mutex
	running         bool
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	lastDropWarning time.Time
}

type result struct {
	status   domain.PlayerStatus
	playlist *domain.Playlist
	longPoll bool
	err      error
}

// New creates a synchronizer for one session
func New(logger *zap.Logger, sessionID string, player domain.PlayerIdentity, source StatusSource, cfg config.PlayerSettings) *Synchronizer {
	defaults := config.Default().Player
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.InterpolationTick <= 0 {
		cfg.InterpolationTick = defaults.InterpolationTick
	}
	s := &Synchronizer{
		logger:    logger.With(zap.String("session", sessionID)),
		sessionID: sessionID,
		source:    source,
		cfg:       cfg,
		now:       time.Now,
		refresh:   make(chan struct{}, 1),
		events:    make(chan domain.TrackChange, 10),
	}
	s.view.Store(&domain.View{
		SessionID: sessionID,
		Player:    player,
		UpdatedAt: s.now(),
	})
	return s
}

// View returns the current snapshot. The returned value must not be modified.
func (s *Synchronizer) View() *domain.View {
	return s.view.Load()
}

// Events emits a TrackChange whenever the playing item or its artwork changes
func (s *Synchronizer) Events() <-chan domain.TrackChange {
	return s.events
}

// RequestRefresh asks the loop for an immediate status request.
// It never blocks; requests made while one is pending collapse into one.
func (s *Synchronizer) RequestRefresh() {
	select {
	case s.refresh <- struct{}{}:
	default:
	}
}

// Start launches the synchronization loop. It returns immediately.
func (s *Synchronizer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.running = true

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	s.wg.Add(1)
	go s.run(loopCtx)

	s.logger.Info("Status synchronizer started",
		zap.Duration("poll", s.cfg.PollInterval),
		zap.Bool("longPoll", s.cfg.LongPoll))
	return nil
}

// Stop ends the loop, waits for it and closes the Events channel
func (s *Synchronizer) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	close(s.events)

	s.logger.Info("Status synchronizer stopped")
	return nil
}

func (s *Synchronizer) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.InterpolationTick)
	defer ticker.Stop()
	poll := time.NewTimer(s.cfg.PollInterval)
	defer poll.Stop()

	results := make(chan result, 1)
	var (
		inflight  bool
		isLong    bool
		cancelled bool
		pending   bool
		cancelReq context.CancelFunc = func() {}

		// set once a player answers long-polls immediately with an unchanged etag
		longPollBroken bool
		longETag       string
		longStarted    time.Time
	)

	canLongPoll := func() bool {
		return !longPollBroken && s.canLongPoll()
	}

	start := func(long bool) {
		opts := transport.StatusOptions{}
		if long {
			opts.Timeout = s.cfg.LongPollTimeout
			opts.ETag = s.currentETag()
			longETag, longStarted = opts.ETag, time.Now()
		}
		reqCtx, cancel := context.WithCancel(ctx)
		cancelReq = cancel
		inflight, isLong, cancelled = true, long, false
		go func() {
			defer cancel()
			results <- s.fetch(reqCtx, opts, long)
		}()
	}

	start(false)

	for {
		select {
		case <-ctx.Done():
			cancelReq()
			return

		case <-ticker.C:
			s.interpolate()

		case <-poll.C:
			if !inflight {
				start(canLongPoll())
			}

		case <-s.refresh:
			switch {
			case !inflight:
				start(false)
			case isLong:
				// the long-poll has to return before the immediate request goes out
				cancelled = true
				pending = true
				cancelReq()
			default:
				pending = true
			}

		case r := <-results:
			inflight = false
			if cancelled && r.err != nil {
				s.logger.Debug("Long-poll cancelled for refresh")
			} else {
				s.apply(r)
			}
			if r.longPoll && !cancelled && r.err == nil &&
				returnedEarly(time.Since(longStarted), s.cfg.LongPollTimeout) && r.status.SyncToken == longETag {
				longPollBroken = true
				s.logger.Warn("Player ignores long-poll, falling back to interval polling",
					zap.String("etag", longETag),
					zap.Duration("poll", s.cfg.PollInterval))
			}
			cancelled = false

			switch {
			case pending:
				pending = false
				start(false)
			case r.err == nil && canLongPoll():
				start(true)
			default:
				poll.Reset(s.cfg.PollInterval)
			}
		}
	}
}

// returnedEarly reports whether a long-poll came back well before its timeout
func returnedEarly(took, timeout time.Duration) bool {
	return took < timeout/2
}

func (s *Synchronizer) fetch(ctx context.Context, opts transport.StatusOptions, long bool) result {
	status, err := s.source.Status(ctx, opts)
	if err != nil {
		return result{err: err, longPoll: long}
	}

	r := result{status: status, longPoll: long}
	cur := s.view.Load()
	if cur.Playlist == nil || cur.Playlist.Revision != status.PlaylistID {
		pl, err := s.source.Playlist(ctx, 0, 0)
		if err != nil {
			s.logger.Warn("Playlist refresh failed", zap.Error(err))
		} else {
			if pl.Revision == 0 {
				pl.Revision = status.PlaylistID
			}
			r.playlist = &pl
		}
	}
	return r
}

func (s *Synchronizer) canLongPoll() bool {
	return s.cfg.LongPoll && s.cfg.LongPollTimeout > 0 && s.currentETag() != ""
}

func (s *Synchronizer) currentETag() string {
	v := s.view.Load()
	if v.Status == nil || v.ConnectionLost {
		return ""
	}
	return v.Status.SyncToken
}

func (s *Synchronizer) apply(r result) {
	if r.err != nil {
		s.recordFailure(r.err)
		return
	}
	s.publishStatus(r.status, r.playlist, r.longPoll)
}

// recordFailure keeps the previous snapshot and counts the failure
func (s *Synchronizer) recordFailure(err error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.view.Load()
	next := *cur
	next.Failures++
	if s.cfg.FailureThreshold > 0 && next.Failures >= s.cfg.FailureThreshold {
		if !cur.ConnectionLost {
			s.logger.Warn("Connection to player lost", zap.Int("failures", next.Failures))
		}
		next.ConnectionLost = true
	}
	s.view.Store(&next)

	s.logger.Warn("Status refresh failed, keeping previous snapshot",
		zap.Int("consecutive", next.Failures),
		zap.Error(err))
}

// publishStatus merges a decoded status into a new snapshot
func (s *Synchronizer) publishStatus(status domain.PlayerStatus, playlist *domain.Playlist, longPoll bool) {
	s.writeMu.Lock()

	cur := s.view.Load()
	next := *cur
	next.Failures = 0
	next.ConnectionLost = false
	next.UpdatedAt = s.now()
	if playlist != nil {
		next.Playlist = playlist
	}

	var change *domain.TrackChange
	switch {
	case longPoll && cur.Status != nil && status.SyncToken != "" && status.SyncToken == cur.Status.SyncToken:
		// same etag: nothing changed on the device
	case cur.Status == nil || !cur.Status.SameTrack(status):
		st := status
		next.Status = &st
		next.Album = resetEnrichment(cur.Album, st.AlbumKey())
		next.Track = resetEnrichment(cur.Track, st.TrackKey())
		next.Artwork = resetEnrichment(cur.Artwork, st.ArtworkKey())
		s.sampledElapsed, s.sampledAt = st.ElapsedSeconds, s.now()

		change = &domain.TrackChange{SessionID: s.sessionID, Current: st}
		if cur.Status != nil {
			change.Previous = *cur.Status
		}
	default:
		st := status
		s.sampledElapsed, s.sampledAt = st.ElapsedSeconds, s.now()
		st.ElapsedSeconds = clampElapsed(max(st.ElapsedSeconds, cur.Status.ElapsedSeconds), st.TotalSeconds)
		next.Status = &st
		// artwork can change within a track for radio streams
		if st.ImageURL != cur.Status.ImageURL {
			next.Artwork = resetEnrichment(cur.Artwork, st.ArtworkKey())
			change = &domain.TrackChange{SessionID: s.sessionID, Previous: *cur.Status, Current: st, ArtworkOnly: true}
		}
	}

	s.view.Store(&next)
	s.writeMu.Unlock()

	if change != nil {
		s.emit(*change)
	}
}

// interpolate advances elapsed time locally while playing
func (s *Synchronizer) interpolate() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.view.Load()
	if cur.Status == nil || cur.Status.State != domain.StatePlaying || s.sampledAt.IsZero() {
		return
	}

	estimate := s.sampledElapsed + int(s.now().Sub(s.sampledAt)/time.Second)
	elapsed := clampElapsed(max(estimate, cur.Status.ElapsedSeconds), cur.Status.TotalSeconds)
	if elapsed == cur.Status.ElapsedSeconds {
		return
	}

	st := *cur.Status
	st.ElapsedSeconds = elapsed
	next := *cur
	next.Status = &st
	s.view.Store(&next)
}

// Merge installs a finished enrichment if its key still matches the current track.
// It reports whether the result was used.
func (s *Synchronizer) Merge(e domain.Enrichment) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.view.Load()
	if cur.Status == nil {
		return false
	}

	next := *cur
	var slot *domain.Enrichment
	switch e.Key.Kind {
	case domain.KindAlbum:
		slot = &next.Album
	case domain.KindTrack:
		slot = &next.Track
	case domain.KindArtwork:
		slot = &next.Artwork
	default:
		return false
	}
	if slot.Key.String() != e.Key.String() {
		s.logger.Debug("Discarding stale enrichment",
			zap.String("key", e.Key.String()),
			zap.String("current", slot.Key.String()))
		return false
	}
	*slot = e
	s.view.Store(&next)
	return true
}

func (s *Synchronizer) emit(change domain.TrackChange) {
	select {
	case s.events <- change:
		if change.ArtworkOnly {
			s.logger.Debug("Artwork changed", zap.String("url", change.Current.ImageURL))
			return
		}
		s.logger.Info("Track change detected",
			zap.String("title", change.Current.TrackTitle),
			zap.String("artist", change.Current.Artist),
			zap.String("album", change.Current.Album))
	default:
		s.logChannelFullWarning()
	}
}

// logChannelFullWarning logs at most once every 5 seconds
func (s *Synchronizer) logChannelFullWarning() {
	s.mu.Lock()
	defer s.mu.Unlock()

	const warningInterval = 5 * time.Second
	now := time.Now()
	if now.Sub(s.lastDropWarning) >= warningInterval {
		s.logger.Warn("Events channel full, dropping track change",
			zap.String("note", "Expected during rapid skipping; the engine debounces anyway."))
		s.lastDropWarning = now
	}
}

func resetEnrichment(prev domain.Enrichment, key domain.IdentityKey) domain.Enrichment {
	if prev.Key.String() == key.String() && prev.Done() {
		return prev
	}
	return domain.Enrichment{Key: key, State: domain.EnrichmentPending}
}

func clampElapsed(elapsed, total int) int {
	if total > 0 && elapsed > total {
		return total
	}
	return elapsed
}
