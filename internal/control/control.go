package control

import (
	"context"
	"fmt"
	"net/url"

	"github.com/genricoloni/bluctl/internal/browse"
	"github.com/genricoloni/bluctl/internal/domain"
	"go.uber.org/zap"
)

const (
	_minVolume = 0
	_maxVolume = 100
)

// Device is the set of transport calls the controller issues
type Device interface {
	SetVolume(ctx context.Context, level int) error
	TogglePause(ctx context.Context) error
	Skip(ctx context.Context) error
	Back(ctx context.Context) error
	AddFavourite(ctx context.Context, albumID, service string) error
	Save(ctx context.Context, name string) (int, error)
	Delete(ctx context.Context, name string) error
	Do(ctx context.Context, raw string) ([]byte, error)
}

// Library is the part of the browse traverser touched by user actions
type Library interface {
	CaptureAll(ctx context.Context, key string) ([]domain.BrowseNode, error)
	ContextActions(ctx context.Context, node domain.BrowseNode) (map[browse.Action]string, error)
	Invalidate(ctx context.Context) error
}

// ViewSource exposes the latest snapshot
type ViewSource interface {
	View() *domain.View
}

// Controller turns user intents into device commands.
// A command succeeds once the device acknowledged it; a refresh is then
// requested without waiting for it. Failed commands are never retried.
type Controller struct {
	logger    *zap.Logger
	device    Device
	library   Library
	views     ViewSource
	refresher domain.Refresher
}

// New creates a controller for one session
func New(logger *zap.Logger, device Device, library Library, views ViewSource, refresher domain.Refresher) *Controller {
	return &Controller{
		logger:    logger,
		device:    device,
		library:   library,
		views:     views,
		refresher: refresher,
	}
}

// SetVolume sets the volume, clamped to 0..100
func (c *Controller) SetVolume(ctx context.Context, pct int) error {
	level := min(max(pct, _minVolume), _maxVolume)
	if err := c.device.SetVolume(ctx, level); err != nil {
		return fmt.Errorf("set volume: %w", err)
	}
	c.logger.Debug("Volume set", zap.Int("level", level))
	c.refresher.RequestRefresh()
	return nil
}

// AdjustVolume changes the volume relative to the last known level
func (c *Controller) AdjustVolume(ctx context.Context, delta int) error {
	v := c.views.View()
	if v == nil || v.Status == nil {
		return fmt.Errorf("adjust volume: %w", domain.ErrNoSession)
	}
	return c.SetVolume(ctx, v.Status.Volume+delta)
}

// TogglePause switches between play and pause
func (c *Controller) TogglePause(ctx context.Context) error {
	return c.run(ctx, "pause", c.device.TogglePause)
}

// SkipNext moves to the next queue item
func (c *Controller) SkipNext(ctx context.Context) error {
	return c.run(ctx, "skip", c.device.Skip)
}

// SkipPrevious moves to the previous queue item
func (c *Controller) SkipPrevious(ctx context.Context) error {
	return c.run(ctx, "back", c.device.Back)
}

// SelectInput plays a node that carries a play URL.
// A node that can only be browsed returns its children instead so the caller can descend.
func (c *Controller) SelectInput(ctx context.Context, node domain.BrowseNode) ([]domain.BrowseNode, error) {
	switch {
	case node.Playable():
		if _, err := c.device.Do(ctx, node.PlayURL); err != nil {
			return nil, fmt.Errorf("select %q: %w", node.DisplayText, err)
		}
		c.logger.Info("Input selected", zap.String("input", node.DisplayText))
		c.refresher.RequestRefresh()
		return nil, nil
	case node.BrowseKey != "":
		return c.library.CaptureAll(ctx, node.BrowseKey)
	default:
		return nil, fmt.Errorf("%w: %q can be neither played nor browsed", domain.ErrInvalidSource, node.DisplayText)
	}
}

// AddFavourite marks the album of the given snapshot as a favourite
func (c *Controller) AddFavourite(ctx context.Context, status domain.PlayerStatus) error {
	if status.AlbumID == "" || status.Service == "" {
		return fmt.Errorf("%w: %q has no service album id", domain.ErrInvalidSource, status.Album)
	}
	if err := c.device.AddFavourite(ctx, status.AlbumID, status.Service); err != nil {
		return fmt.Errorf("add favourite: %w", err)
	}
	c.logger.Info("Favourite added",
		zap.String("album", status.Album),
		zap.String("service", status.Service))
	c.afterLibraryChange(ctx)
	return nil
}

// RemoveFavourite unmarks the album of the given snapshot by running
// the favourite entry of the album's context menu.
func (c *Controller) RemoveFavourite(ctx context.Context, status domain.PlayerStatus) error {
	if status.AlbumID == "" || status.Service == "" || status.ArtistID == "" {
		return fmt.Errorf("%w: %q has no service album id", domain.ErrInvalidSource, status.Album)
	}

	menu := domain.BrowseNode{
		DisplayText:    status.Album,
		ContextMenuKey: albumMenuKey(status),
	}
	actions, err := c.library.ContextActions(ctx, menu)
	if err != nil {
		return fmt.Errorf("remove favourite: %w", err)
	}
	action, ok := actions[browse.ActionFavourite]
	if !ok {
		return fmt.Errorf("remove favourite: %w: no favourite entry for %q", domain.ErrInvalidSource, status.Album)
	}
	if _, err := c.device.Do(ctx, action); err != nil {
		return fmt.Errorf("remove favourite: %w", err)
	}
	c.logger.Info("Favourite removed",
		zap.String("album", status.Album),
		zap.String("service", status.Service))
	c.afterLibraryChange(ctx)
	return nil
}

// albumMenuKey is the browse key of an album's context menu on a streaming service
func albumMenuKey(status domain.PlayerStatus) string {
	return fmt.Sprintf("%s:CM/%s-Album?albumid=%s&artist=%s&artistid=%s",
		status.Service, status.Service,
		url.QueryEscape(status.AlbumID), url.PathEscape(status.Artist), url.QueryEscape(status.ArtistID))
}

// RunAction performs a device-supplied action URL, such as a context menu entry
func (c *Controller) RunAction(ctx context.Context, actionURL string) error {
	if actionURL == "" {
		return fmt.Errorf("%w: empty action", domain.ErrInvalidSource)
	}
	if _, err := c.device.Do(ctx, actionURL); err != nil {
		return fmt.Errorf("run action: %w", err)
	}
	c.afterLibraryChange(ctx)
	return nil
}

// SavePlaylist stores the play queue under name and returns the number of entries saved
func (c *Controller) SavePlaylist(ctx context.Context, name string) (int, error) {
	if name == "" {
		return 0, fmt.Errorf("%w: playlist name is empty", domain.ErrInvalidSource)
	}
	n, err := c.device.Save(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("save playlist: %w", err)
	}
	c.logger.Info("Playlist saved", zap.String("name", name), zap.Int("entries", n))
	c.afterLibraryChange(ctx)
	return n, nil
}

// DeletePlaylist removes a saved playlist
func (c *Controller) DeletePlaylist(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("%w: playlist name is empty", domain.ErrInvalidSource)
	}
	if err := c.device.Delete(ctx, name); err != nil {
		return fmt.Errorf("delete playlist: %w", err)
	}
	c.logger.Info("Playlist deleted", zap.String("name", name))
	c.afterLibraryChange(ctx)
	return nil
}

func (c *Controller) run(ctx context.Context, name string, cmd func(context.Context) error) error {
	if err := cmd(ctx); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	c.refresher.RequestRefresh()
	return nil
}

// afterLibraryChange drops cached listings and asks for fresh status
func (c *Controller) afterLibraryChange(ctx context.Context) {
	if err := c.library.Invalidate(ctx); err != nil {
		c.logger.Warn("Browse cache not cleared", zap.Error(err))
	}
	c.refresher.RequestRefresh()
}
