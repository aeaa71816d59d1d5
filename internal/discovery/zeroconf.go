package discovery

import (
	"context"
	"fmt"
	"strings"

	"github.com/genricoloni/bluctl/internal/domain"
	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"
)

// ZeroconfBrowser browses mDNS with a pure Go multicast resolver
type ZeroconfBrowser struct {
	logger *zap.Logger
}

// NewZeroconfBrowser creates the portable discovery backend
func NewZeroconfBrowser(logger *zap.Logger) *ZeroconfBrowser {
	return &ZeroconfBrowser{logger: logger}
}

// Browse streams resolved entries into found until ctx is done
func (b *ZeroconfBrowser) Browse(ctx context.Context, serviceType string, found chan<- domain.ServiceEntry) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry, 8)
	if err := resolver.Browse(ctx, serviceType, Domain, entries); err != nil {
		return fmt.Errorf("failed to browse %s: %w", serviceType, err)
	}

	b.logger.Debug("mDNS browse started", zap.String("service", serviceType))

	for {
		select {
		case <-ctx.Done():
			return nil
		case entry, ok := <-entries:
			if !ok {
				return nil
			}
			if entry == nil {
				continue
			}
			select {
			case found <- fromZeroconf(entry):
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func fromZeroconf(entry *zeroconf.ServiceEntry) domain.ServiceEntry {
	return domain.ServiceEntry{
		Instance: entry.Instance,
		HostName: strings.TrimSuffix(entry.HostName, "."),
		IPv4:     entry.AddrIPv4,
		Port:     entry.Port,
	}
}
