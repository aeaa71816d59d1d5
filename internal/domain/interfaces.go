package domain

import "context"

//go:generate mockgen -destination=mocks/domain_mock.go -package=mocks github.com/genricoloni/bluctl/internal/domain Browser,Prober,Provider,Refresher,Notifier

// Browser defines the interface for mDNS service browsing
// Implementations wrap zeroconf or Avahi
type Browser interface {
	// Browse streams resolved entries for serviceType into found
	// It should block until ctx is done and must not close found
	Browse(ctx context.Context, serviceType string, found chan<- ServiceEntry) error
}

// Prober checks that a streamer answers on its control port
type Prober interface {
	// Probe performs a lightweight status call and returns the identity
	// completed with the device's friendly name
	Probe(ctx context.Context, id PlayerIdentity) (PlayerIdentity, error)
}

// Provider defines the interface for external metadata lookups
type Provider interface {
	// Lookup fetches descriptive metadata for key
	// Returns ErrNoMatch when the service found nothing usable
	Lookup(ctx context.Context, key IdentityKey) (EnrichmentEntry, error)
}

// Refresher accepts immediate-refresh requests
type Refresher interface {
	// RequestRefresh asks for a status refresh as soon as possible
	// It never blocks; requests made while one is pending are coalesced
	RequestRefresh()
}

// Notifier delivers desktop notifications
type Notifier interface {
	// Notify shows a notification with the given summary and body
	Notify(ctx context.Context, summary, body string) error
}

// Fetcher defines the interface for retrieving album artwork
type Fetcher interface {
	// Fetch downloads image data from a URL
	// Returns the raw image bytes or an error
	Fetch(ctx context.Context, url string) ([]byte, error)
}
