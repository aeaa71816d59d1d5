//go:build !linux

package executor

import (
	"context"
	"fmt"

	"github.com/genricoloni/bluctl/internal/domain"
	"go.uber.org/zap"
)

// StubNotifier is a placeholder for platforms without a notification backend
type StubNotifier struct {
	logger *zap.Logger
}

// NewNotifier creates a stub notifier for unsupported platforms
func NewNotifier(logger *zap.Logger) (domain.Notifier, error) {
	logger.Warn("Desktop notifications are not implemented for this platform")
	return &StubNotifier{logger: logger}, nil
}

// Notify returns an error indicating the platform is not supported
func (n *StubNotifier) Notify(ctx context.Context, summary, body string) error {
	return fmt.Errorf("desktop notifications not implemented for this platform")
}

// Close is a no-op
func (n *StubNotifier) Close() error {
	return nil
}
