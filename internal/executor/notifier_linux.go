//go:build linux

package executor

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/genricoloni/bluctl/internal/domain"
	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

const (
	_notifyDest       = "org.freedesktop.Notifications"
	_notifyPath       = "/org/freedesktop/Notifications"
	_notifyMethod     = "org.freedesktop.Notifications.Notify"
	_appName          = "bluctl"
	_expireTimeout    = int32(5000)
	_notifySendBinary = "notify-send"
)

// notifyCommand sends a notification through an external binary
type notifyCommand struct {
	Binary string
	Args   func(summary, body string) []string
}

var _notifySend = notifyCommand{
	Binary: _notifySendBinary,
	Args: func(summary, body string) []string {
		return []string{"--app-name", _appName, summary, body}
	},
}

// LinuxNotifier posts desktop notifications on the session bus.
// When no session bus is reachable it falls back to notify-send.
type LinuxNotifier struct {
	logger  *zap.Logger
	conn    *dbus.Conn
	command notifyCommand
	lastID  uint32
}

// NewNotifier creates the platform notifier (Linux implementation)
func NewNotifier(logger *zap.Logger) (domain.Notifier, error) {
	conn, err := dbus.ConnectSessionBus()
	if err == nil {
		logger.Info("Desktop notifications via session bus")
		return &LinuxNotifier{logger: logger, conn: conn}, nil
	}
	logger.Debug("Session bus unavailable", zap.Error(err))

	if _, lookErr := exec.LookPath(_notifySend.Binary); lookErr == nil {
		logger.Info("Desktop notifications via command", zap.String("binary", _notifySend.Binary))
		return &LinuxNotifier{logger: logger, command: _notifySend}, nil
	}

	return nil, fmt.Errorf("no notification service found: %w", err)
}

// Notify shows a notification, replacing the previous one from this process
func (n *LinuxNotifier) Notify(ctx context.Context, summary, body string) error {
	if n.conn == nil {
		return n.runCommand(ctx, summary, body)
	}

	obj := n.conn.Object(_notifyDest, _notifyPath)
	call := obj.CallWithContext(ctx, _notifyMethod, 0,
		_appName, n.lastID, "", summary, body,
		[]string{}, map[string]dbus.Variant{}, _expireTimeout)
	if call.Err != nil {
		return fmt.Errorf("notify over dbus: %w", call.Err)
	}
	if err := call.Store(&n.lastID); err != nil {
		n.logger.Debug("Notification id not returned", zap.Error(err))
	}
	return nil
}

func (n *LinuxNotifier) runCommand(ctx context.Context, summary, body string) error {
	args := n.command.Args(summary, body)
	n.logger.Debug("Sending notification",
		zap.String("command", n.command.Binary),
		zap.Strings("args", args))

	output, err := exec.CommandContext(ctx, n.command.Binary, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to notify with %s: %w (output: %s)", n.command.Binary, err, string(output))
	}
	return nil
}

// Close releases the bus connection
func (n *LinuxNotifier) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Close()
}
