package engine

import (
	"context"

	"github.com/genricoloni/bluctl/internal/browse"
	"github.com/genricoloni/bluctl/internal/config"
	"github.com/genricoloni/bluctl/internal/control"
	"github.com/genricoloni/bluctl/internal/domain"
	"github.com/genricoloni/bluctl/internal/synchronizer"
	"github.com/genricoloni/bluctl/internal/transport"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Session is everything bound to one connected player.
// It is built on connect and torn down on disconnect; nothing outlives it.
type Session struct {
	ID       string
	Identity domain.PlayerIdentity
	Client   *transport.Client
	Sync     *synchronizer.Synchronizer
	Browse   *browse.Traverser
	Control  *control.Controller
}

// NewSession builds the components for one player. Nothing runs until Start.
func NewSession(logger *zap.Logger, cfg *config.AppConfig, id domain.PlayerIdentity) *Session {
	sid := uuid.NewString()
	logger = logger.With(zap.String("player", id.Name()))

	client := transport.NewClient(logger, id, cfg.Player.RequestTimeout)
	sync := synchronizer.New(logger, sid, id, client, cfg.Player)
	traverser := browse.New(logger, client, cfg.Browse)

	return &Session{
		ID:       sid,
		Identity: id,
		Client:   client,
		Sync:     sync,
		Browse:   traverser,
		Control:  control.New(logger, client, traverser, sync, sync),
	}
}

// View returns the session's latest snapshot
func (s *Session) View() *domain.View {
	return s.Sync.View()
}

// Start begins status synchronization
func (s *Session) Start(ctx context.Context) error {
	return s.Sync.Start(ctx)
}

// Close stops synchronization and closes the session's event stream
func (s *Session) Close(ctx context.Context) error {
	return s.Sync.Stop(ctx)
}
