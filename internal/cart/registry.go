package cart

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const loadTimeout = 3 * time.Second

// SlotProvider scopes a persistent slot to one shopper.
type SlotProvider interface {
	For(shopperID string) Slot
}

type RegistryDeps struct {
	Catalog Catalog
	Slots   SlotProvider
	Log     *zap.Logger
	Metrics *Metrics

	// IdleTTL is how long an unused store stays cached. Zero keeps stores forever.
	IdleTTL time.Duration
	Now     func() time.Time
}

// Registry holds one Store per shopper, created on first use.
type Registry struct {
	deps  RegistryDeps
	group singleflight.Group

	mu     sync.RWMutex
	stores map[string]*entry
}

type entry struct {
	store    *Store
	lastUsed atomic.Int64
}

func NewRegistry(deps RegistryDeps) *Registry {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Registry{deps: deps, stores: map[string]*entry{}}
}

// Get returns the shopper's store, loading it from the slot on first use.
// The load is shared by concurrent callers and does not end with any one
// caller's request.
func (r *Registry) Get(ctx context.Context, shopperID string) (*Store, error) {
	if s, ok := r.lookup(shopperID); ok {
		return s, nil
	}

	v, err, _ := r.group.Do(shopperID, func() (any, error) {
		if s, ok := r.lookup(shopperID); ok {
			return s, nil
		}

		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()

		log := r.deps.Log.With(zap.String("shopper", shopperID))
		s, err := NewStore(lctx, Deps{
			Catalog:  r.deps.Catalog,
			Slot:     r.deps.Slots.For(shopperID),
			Notifier: logNotifier{log: log},
			Log:      log,
			Metrics:  r.deps.Metrics,
		})
		if err != nil {
			return nil, err
		}

		e := &entry{store: s}
		e.lastUsed.Store(r.deps.Now().UnixNano())

		r.mu.Lock()
		r.stores[shopperID] = e
		r.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Store), nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stores)
}

// Ping checks the slot backend when it supports it.
func (r *Registry) Ping(ctx context.Context) error {
	if p, ok := r.deps.Slots.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Sweep drops stores unused for longer than IdleTTL, unless someone is still
// streaming them, and reports how many went. A dropped cart reloads from its
// slot on next use; providers that can Forget a shopper release the slot too.
func (r *Registry) Sweep() int {
	if r.deps.IdleTTL <= 0 {
		return 0
	}
	cutoff := r.deps.Now().Add(-r.deps.IdleTTL).UnixNano()
	forgetter, _ := r.deps.Slots.(interface{ Forget(shopperID string) })

	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, e := range r.stores {
		if e.lastUsed.Load() >= cutoff || e.store.watched() {
			continue
		}
		delete(r.stores, id)
		if forgetter != nil {
			forgetter.Forget(id)
		}
		n++
	}
	if n > 0 {
		r.deps.Log.Debug("idle carts evicted", zap.Int("count", n), zap.Int("remaining", len(r.stores)))
	}
	return n
}

// RunSweeper calls Sweep every interval until ctx is done.
func (r *Registry) RunSweeper(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Sweep()
		}
	}
}

func (r *Registry) lookup(shopperID string) (*Store, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.stores[shopperID]
	if !ok {
		return nil, false
	}
	e.lastUsed.Store(r.deps.Now().UnixNano())
	return e.store, true
}

// logNotifier records shopper-facing messages; the HTTP layer shows them.
type logNotifier struct {
	log *zap.Logger
}

func (n logNotifier) Error(msg string) {
	n.log.Info("shopper notified", zap.String("message", msg))
}
