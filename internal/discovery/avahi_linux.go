//go:build linux

package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/genricoloni/bluctl/internal/domain"
	"github.com/godbus/dbus/v5"
	"github.com/holoplot/go-avahi"
	"go.uber.org/zap"
)

// AvahiBrowser browses mDNS through the Avahi daemon on the system bus
type AvahiBrowser struct {
	logger *zap.Logger
}

// NewAvahiBrowser creates the Avahi backend. The bus connection is opened per browse cycle.
func NewAvahiBrowser(logger *zap.Logger) (*AvahiBrowser, error) {
	return &AvahiBrowser{logger: logger}, nil
}

// Browse streams resolved entries into found until ctx is done
func (b *AvahiBrowser) Browse(ctx context.Context, serviceType string, found chan<- domain.ServiceEntry) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return fmt.Errorf("system bus connection failed: %w", err)
	}

	server, err := avahi.ServerNew(conn)
	if err != nil {
		return fmt.Errorf("avahi server unavailable: %w", err)
	}
	defer server.Close()

	sb, err := server.ServiceBrowserNew(avahi.InterfaceUnspec, avahi.ProtoUnspec, serviceType, strings.TrimSuffix(Domain, "."), 0)
	if err != nil {
		return fmt.Errorf("failed to create avahi service browser: %w", err)
	}
	defer server.ServiceBrowserFree(sb)

	b.logger.Debug("Avahi browse started", zap.String("service", serviceType))

	for {
		select {
		case <-ctx.Done():
			return nil
		case svc, ok := <-sb.AddChannel:
			if !ok {
				return nil
			}
			resolved, err := server.ResolveService(svc.Interface, svc.Protocol, svc.Name,
				svc.Type, svc.Domain, avahi.ProtoInet, 0)
			if err != nil {
				b.logger.Debug("Failed to resolve service",
					zap.String("instance", svc.Name),
					zap.Error(err))
				continue
			}
			select {
			case found <- fromAvahi(resolved):
			case <-ctx.Done():
				return nil
			}
		case svc := <-sb.RemoveChannel:
			b.logger.Debug("Service withdrawn", zap.String("instance", svc.Name))
		}
	}
}

func fromAvahi(svc avahi.Service) domain.ServiceEntry {
	entry := domain.ServiceEntry{
		Instance: svc.Name,
		HostName: strings.TrimSuffix(svc.Host, "."),
		Port:     int(svc.Port),
	}
	if ip := net.ParseIP(svc.Address); ip != nil && ip.To4() != nil {
		entry.IPv4 = []net.IP{ip}
	}
	return entry
}
