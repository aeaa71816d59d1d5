package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/genricoloni/bluctl/internal/domain"
	"go.uber.org/zap"
)

// Prober checks reachability of a streamer through /SyncStatus
type Prober struct {
	logger  *zap.Logger
	timeout time.Duration
}

// NewProber creates a prober whose requests use the given timeout
func NewProber(logger *zap.Logger, timeout time.Duration) *Prober {
	return &Prober{logger: logger, timeout: timeout}
}

// Probe asks the device for its identity and returns id completed with the friendly name.
// Any failure is reported as domain.ErrDeviceUnreachable.
func (p *Prober) Probe(ctx context.Context, id domain.PlayerIdentity) (domain.PlayerIdentity, error) {
	if id.Port == 0 {
		id.Port = domain.DefaultPort
	}

	info, err := NewClient(p.logger, id, p.timeout).SyncStatus(ctx)
	if err != nil {
		p.logger.Debug("Probe failed", zap.String("address", id.Address()), zap.Error(err))
		return id, fmt.Errorf("%w: %s: %w", domain.ErrDeviceUnreachable, id.Address(), err)
	}

	if info.Name != "" {
		id.FriendlyName = info.Name
	}
	return id, nil
}
