package discovery

import (
	"fmt"

	"github.com/genricoloni/bluctl/internal/config"
	"github.com/genricoloni/bluctl/internal/domain"
	"go.uber.org/zap"
)

const (
	// ServiceType is the mDNS service advertised by BluOS streamers
	ServiceType = "_musc._tcp"
	// Domain is the mDNS browse domain
	Domain = "local."
)

// NewBrowser returns the mDNS backend selected by configuration
func NewBrowser(logger *zap.Logger, cfg *config.AppConfig) (domain.Browser, error) {
	switch cfg.Discovery.Backend {
	case "", "zeroconf":
		return NewZeroconfBrowser(logger), nil
	case "avahi":
		b, err := NewAvahiBrowser(logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown discovery backend %q", cfg.Discovery.Backend)
	}
}
