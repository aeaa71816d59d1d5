//go:build linux

package executor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestLinuxNotifier_Command(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "args")
	script := filepath.Join(dir, "fake-notify")
	if err := os.WriteFile(script, []byte("#!/bin/sh\necho \"$@\" > "+out+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	n := &LinuxNotifier{
		logger: zap.NewNop(),
		command: notifyCommand{
			Binary: script,
			Args:   _notifySend.Args,
		},
	}

	if err := n.Notify(context.Background(), "Hello", "Adele - 25"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	want := "--app-name bluctl Hello Adele - 25"
	if strings.TrimSpace(string(got)) != want {
		t.Errorf("expected args %q, got %q", want, strings.TrimSpace(string(got)))
	}
}

func TestLinuxNotifier_CommandFailure(t *testing.T) {
	n := &LinuxNotifier{
		logger:  zap.NewNop(),
		command: notifyCommand{Binary: "false", Args: _notifySend.Args},
	}
	if err := n.Notify(context.Background(), "a", "b"); err == nil {
		t.Fatal("expected error from failing command")
	}
	if err := n.Close(); err != nil {
		t.Errorf("close without bus: %v", err)
	}
}
