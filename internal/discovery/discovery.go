package discovery

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/genricoloni/bluctl/internal/config"
	"github.com/genricoloni/bluctl/internal/domain"
	"go.uber.org/zap"
)

const _cyclePause = 10 * time.Second

// Discovery finds streamers on the local network.
// Scan runs one bounded cycle; Start keeps cycling in the background and
// publishes every newly seen address exactly once.
type Discovery struct {
	logger  *zap.Logger
	browser domain.Browser
	prober  domain.Prober
	timeout time.Duration

	mu              sync.RWMutex
	running         bool
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	players         []domain.PlayerIdentity
	seen            map[string]bool
	found           chan domain.PlayerIdentity
	lastDropWarning time.Time
}

// New creates a discovery service on top of an mDNS browser
func New(logger *zap.Logger, browser domain.Browser, prober domain.Prober, cfg *config.AppConfig) *Discovery {
	return &Discovery{
		logger:  logger,
		browser: browser,
		prober:  prober,
		timeout: cfg.Discovery.Timeout,
		seen:    make(map[string]bool),
		found:   make(chan domain.PlayerIdentity, 10),
	}
}

// Scan browses for at most timeout and yields each distinct address once.
// The returned channel is closed when the cycle ends; no devices means an empty channel.
func (d *Discovery) Scan(ctx context.Context, timeout time.Duration) <-chan domain.PlayerIdentity {
	if timeout <= 0 {
		timeout = d.timeout
	}
	out := make(chan domain.PlayerIdentity)

	go func() {
		defer close(out)

		scanCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		entries := make(chan domain.ServiceEntry, 8)
		go func() {
			defer close(entries)
			if err := d.browser.Browse(scanCtx, ServiceType, entries); err != nil {
				d.logger.Warn("mDNS browse failed", zap.Error(err))
			}
		}()

		cycle := make(map[string]bool)
		for entry := range entries {
			id, ok := identityFromEntry(entry)
			if !ok || cycle[id.Address()] {
				continue
			}
			cycle[id.Address()] = true

			id = d.resolveName(scanCtx, id, entry.Instance)
			select {
			case out <- id:
			case <-scanCtx.Done():
				// drain so the browser goroutine can exit
				for range entries {
				}
				return
			}
		}
	}()

	return out
}

// resolveName fills the friendly name from /SyncStatus, falling back to the mDNS instance name
func (d *Discovery) resolveName(ctx context.Context, id domain.PlayerIdentity, instance string) domain.PlayerIdentity {
	probed, err := d.prober.Probe(ctx, id)
	if err == nil && probed.FriendlyName != "" {
		return probed
	}
	if err != nil {
		d.logger.Debug("Name lookup failed, using mDNS instance name",
			zap.String("address", id.Address()),
			zap.Error(err))
	}
	id.FriendlyName = instance
	return id
}

// Probe checks a known host directly, skipping mDNS.
// Failures wrap domain.ErrDeviceUnreachable; callers fall back to Scan.
func (d *Discovery) Probe(ctx context.Context, id domain.PlayerIdentity) (domain.PlayerIdentity, error) {
	return d.prober.Probe(ctx, id)
}

// Start begins continuous discovery cycles in the background
func (d *Discovery) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return nil
	}
	d.running = true

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.cancel = cancel

	d.wg.Add(1)
	go d.run(loopCtx)

	d.logger.Info("Discovery started", zap.String("service", ServiceType))
	return nil
}

// Stop ends background discovery and closes the Found channel
func (d *Discovery) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.cancel()
	d.running = false
	d.mu.Unlock()

	d.wg.Wait()
	close(d.found)

	d.logger.Info("Discovery stopped")
	return nil
}

// Found emits each newly discovered player once
func (d *Discovery) Found() <-chan domain.PlayerIdentity {
	return d.found
}

// Players returns the players seen so far, in discovery order
func (d *Discovery) Players() []domain.PlayerIdentity {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]domain.PlayerIdentity, len(d.players))
	copy(out, d.players)
	return out
}

func (d *Discovery) run(ctx context.Context) {
	defer d.wg.Done()

	for {
		for id := range d.Scan(ctx, d.timeout) {
			d.publish(id)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(_cyclePause):
		}
	}
}

func (d *Discovery) publish(id domain.PlayerIdentity) {
	d.mu.Lock()
	if d.seen[id.Address()] {
		d.mu.Unlock()
		return
	}
	d.seen[id.Address()] = true
	d.players = append(d.players, id)
	d.mu.Unlock()

	d.logger.Info("Player discovered",
		zap.String("name", id.Name()),
		zap.String("address", id.Address()))

	select {
	case d.found <- id:
	default:
		d.logChannelFullWarning()
	}
}

// logChannelFullWarning logs at most once every 5 seconds
func (d *Discovery) logChannelFullWarning() {
	d.mu.Lock()
	defer d.mu.Unlock()

	const warningInterval = 5 * time.Second
	now := time.Now()
	if now.Sub(d.lastDropWarning) >= warningInterval {
		d.logger.Warn("Found channel full, dropping discovery event",
			zap.String("note", "Players() still lists every discovered device"))
		d.lastDropWarning = now
	}
}

func identityFromEntry(entry domain.ServiceEntry) (domain.PlayerIdentity, bool) {
	port := entry.Port
	if port == 0 {
		port = domain.DefaultPort
	}
	for _, ip := range entry.IPv4 {
		if v4 := ip.To4(); v4 != nil {
			return domain.PlayerIdentity{Host: v4.String(), Port: port}, true
		}
	}
	if entry.HostName != "" {
		return domain.PlayerIdentity{Host: entry.HostName, Port: port}, true
	}
	return domain.PlayerIdentity{}, false
}

// ParseHost turns "host" or "host:port" into an identity
func ParseHost(raw string) domain.PlayerIdentity {
	host, portStr, err := net.SplitHostPort(raw)
	if err != nil {
		return domain.PlayerIdentity{Host: raw, Port: domain.DefaultPort}
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		port = domain.DefaultPort
	}
	return domain.PlayerIdentity{Host: host, Port: port}
}
