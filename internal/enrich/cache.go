package enrich

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/genricoloni/bluctl/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const _resultsBuffer = 32

// Cache is the session-lifetime enrichment store.
//
// Each identity key is fetched at most once at a time: Lookup schedules a
// background fetch and Get joins or starts one through a singleflight group.
// Final results, failures included, are kept until the process exits.
type Cache struct {
	logger    *zap.Logger
	providers map[domain.IdentityKind]domain.Provider
	timeout   time.Duration

	entries sync.Map // key string -> domain.Enrichment
	writeMu sync.Mutex
	group   singleflight.Group

	results chan domain.Enrichment

	mu              sync.Mutex
	ctx             context.Context
	cancel          context.CancelFunc
	closed          bool
	wg              sync.WaitGroup
	lastDropWarning time.Time
}

// NewCache creates a cache that routes each key kind to its provider
func NewCache(logger *zap.Logger, providers map[domain.IdentityKind]domain.Provider, timeout time.Duration) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		logger:    logger,
		providers: providers,
		timeout:   timeout,
		results:   make(chan domain.Enrichment, _resultsBuffer),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Lookup returns the cached state for key without blocking.
// On a miss it schedules one background fetch and reports pending;
// the final result is later delivered on Results.
func (c *Cache) Lookup(key domain.IdentityKey) domain.Enrichment {
	if v, ok := c.entries.Load(key.String()); ok {
		return v.(domain.Enrichment)
	}
	if key.Empty() {
		return c.store(failed(key, domain.ErrNoMatch))
	}

	pending := domain.Enrichment{Key: key, State: domain.EnrichmentPending}
	if v, loaded := c.entries.LoadOrStore(key.String(), pending); loaded {
		return v.(domain.Enrichment)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return pending
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		res := c.resolve(c.ctx, key)
		c.deliver(res)
	}()
	return pending
}

// Get returns the final result for key, fetching it if needed.
// Concurrent callers for the same key share one request.
func (c *Cache) Get(ctx context.Context, key domain.IdentityKey) domain.Enrichment {
	if v, ok := c.entries.Load(key.String()); ok {
		if e := v.(domain.Enrichment); e.Done() {
			return e
		}
	}
	if key.Empty() {
		return c.store(failed(key, domain.ErrNoMatch))
	}

	ch := c.group.DoChan(key.String(), func() (any, error) {
		return c.fetch(c.ctx, key), nil
	})
	select {
	case r := <-ch:
		return r.Val.(domain.Enrichment)
	case <-ctx.Done():
		return domain.Enrichment{Key: key, State: domain.EnrichmentPending, Err: ctx.Err()}
	}
}

// Results delivers every result produced by a background fetch
func (c *Cache) Results() <-chan domain.Enrichment {
	return c.results
}

// Stop cancels outstanding fetches, waits for them and closes Results
func (c *Cache) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.cancel()
	c.mu.Unlock()

	c.wg.Wait()
	close(c.results)
	c.logger.Info("Enrichment cache stopped")
	return nil
}

// resolve runs the fetch through the singleflight group so Lookup and Get share it
func (c *Cache) resolve(ctx context.Context, key domain.IdentityKey) domain.Enrichment {
	v, _, _ := c.group.Do(key.String(), func() (any, error) {
		return c.fetch(ctx, key), nil
	})
	return v.(domain.Enrichment)
}

func (c *Cache) fetch(ctx context.Context, key domain.IdentityKey) domain.Enrichment {
	// a fetch that finished just before this one joined the group already holds the answer
	if v, ok := c.entries.Load(key.String()); ok {
		if e := v.(domain.Enrichment); e.Done() {
			return e
		}
	}

	provider, ok := c.providers[key.Kind]
	if !ok {
		return c.store(failed(key, fmt.Errorf("%w: no provider for %s", domain.ErrNoMatch, key.Kind)))
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	entry, err := provider.Lookup(ctx, key)
	if err != nil {
		c.logger.Info("Enrichment lookup failed",
			zap.String("key", key.String()),
			zap.Error(err))
		return c.store(failed(key, err))
	}

	if entry.FetchedAt.IsZero() {
		entry.FetchedAt = time.Now()
	}
	entry.Key = key
	c.logger.Debug("Enrichment ready", zap.String("key", key.String()))
	return c.store(domain.Enrichment{Key: key, State: domain.EnrichmentReady, Entry: &entry})
}

// store writes a final result unless a final result that is at least as new is already there.
// It returns whatever the cache holds afterwards.
func (c *Cache) store(e domain.Enrichment) domain.Enrichment {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if v, ok := c.entries.Load(e.Key.String()); ok {
		if cur := v.(domain.Enrichment); cur.Done() && !newer(e, cur) {
			return cur
		}
	}
	c.entries.Store(e.Key.String(), e)
	return e
}

func (c *Cache) deliver(e domain.Enrichment) {
	select {
	case c.results <- e:
	default:
		c.logChannelFullWarning()
	}
}

// logChannelFullWarning logs at most once every 5 seconds
func (c *Cache) logChannelFullWarning() {
	c.mu.Lock()
	defer c.mu.Unlock()

	const warningInterval = 5 * time.Second
	now := time.Now()
	if now.Sub(c.lastDropWarning) >= warningInterval {
		c.logger.Warn("Results channel full, dropping enrichment notification",
			zap.String("note", "The result stays cached and is returned by the next Lookup."))
		c.lastDropWarning = now
	}
}

func newer(candidate, current domain.Enrichment) bool {
	if candidate.Entry == nil || current.Entry == nil {
		return false
	}
	return candidate.Entry.FetchedAt.After(current.Entry.FetchedAt)
}

func failed(key domain.IdentityKey, err error) domain.Enrichment {
	return domain.Enrichment{Key: key, State: domain.EnrichmentFailed, Err: err}
}
