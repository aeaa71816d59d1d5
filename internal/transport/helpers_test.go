package transport

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/genricoloni/bluctl/internal/domain"
)

// newFakeDevice starts an httptest server and returns the identity pointing at it
func newFakeDevice(t *testing.T, handler http.Handler) domain.PlayerIdentity {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	if err != nil {
		t.Fatalf("split address: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return domain.PlayerIdentity{Host: host, Port: port}
}
