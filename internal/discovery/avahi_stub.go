//go:build !linux

package discovery

import (
	"context"
	"fmt"

	"github.com/genricoloni/bluctl/internal/domain"
	"go.uber.org/zap"
)

// AvahiBrowser stub for non-Linux platforms
type AvahiBrowser struct{}

// NewAvahiBrowser returns an error: Avahi is only reachable over the Linux system bus
func NewAvahiBrowser(logger *zap.Logger) (*AvahiBrowser, error) {
	return nil, fmt.Errorf("avahi discovery is only supported on Linux systems")
}

// Browse is never reached on this platform
func (b *AvahiBrowser) Browse(ctx context.Context, serviceType string, found chan<- domain.ServiceEntry) error {
	return fmt.Errorf("avahi discovery is only supported on Linux systems")
}
