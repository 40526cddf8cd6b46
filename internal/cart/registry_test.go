package cart_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RocketShoes/internal/cart"
)

type countingSlots struct {
	*cart.MemSlots
	mu    sync.Mutex
	calls map[string]int
}

func (c *countingSlots) For(shopperID string) cart.Slot {
	c.mu.Lock()
	c.calls[shopperID]++
	c.mu.Unlock()
	return c.MemSlots.For(shopperID)
}

func TestRegistry_OneStorePerShopper(t *testing.T) {
	slots := &countingSlots{MemSlots: cart.NewMemSlots(), calls: map[string]int{}}
	reg := cart.NewRegistry(cart.RegistryDeps{Catalog: newFakeCatalog(), Slots: slots})
	ctx := context.Background()

	var wg sync.WaitGroup
	stores := make([]*cart.Store, 20)
	for i := range stores {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := reg.Get(ctx, "s_a")
			assert.NoError(t, err)
			stores[i] = s
		}(i)
	}
	wg.Wait()

	for _, s := range stores {
		assert.Same(t, stores[0], s)
	}
	assert.Equal(t, 1, slots.calls["s_a"])

	other, err := reg.Get(ctx, "s_b")
	require.NoError(t, err)
	assert.NotSame(t, stores[0], other)
	assert.Equal(t, 2, reg.Len())
}

func TestRegistry_CartsAreIsolated(t *testing.T) {
	reg := cart.NewRegistry(cart.RegistryDeps{Catalog: newFakeCatalog(), Slots: cart.NewMemSlots()})
	ctx := context.Background()

	a, err := reg.Get(ctx, "s_a")
	require.NoError(t, err)
	b, err := reg.Get(ctx, "s_b")
	require.NoError(t, err)

	require.NoError(t, a.AddProduct(ctx, 1))
	assert.Len(t, a.Cart(), 1)
	assert.Empty(t, b.Cart())
}

type brokenSlots struct{}

func (brokenSlots) For(string) cart.Slot {
	return &flakySlot{MemSlot: cart.NewMemSlot(), failReads: true}
}

func (brokenSlots) Ping(context.Context) error { return errSlotDown }

func TestRegistry_LoadFailureIsNotCached(t *testing.T) {
	reg := cart.NewRegistry(cart.RegistryDeps{Catalog: newFakeCatalog(), Slots: brokenSlots{}})

	_, err := reg.Get(context.Background(), "s_a")
	assert.True(t, errors.Is(err, errSlotDown))
	assert.Zero(t, reg.Len())
	assert.ErrorIs(t, reg.Ping(context.Background()), errSlotDown)
}

func TestRegistry_PingWithoutBackendCheck(t *testing.T) {
	reg := cart.NewRegistry(cart.RegistryDeps{Catalog: newFakeCatalog(), Slots: cart.NewMemSlots()})
	assert.NoError(t, reg.Ping(context.Background()))
}

// gateSlot blocks reads until released or until the read's context ends.
type gateSlot struct {
	*cart.MemSlot
	entered chan struct{}
	release chan struct{}
	reads   atomic.Int32
}

func (g *gateSlot) Read(ctx context.Context, key string) (string, bool, error) {
	if g.reads.Add(1) == 1 {
		close(g.entered)
	}
	select {
	case <-g.release:
		return g.MemSlot.Read(ctx, key)
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
}

type gateSlots struct{ slot *gateSlot }

func (g gateSlots) For(string) cart.Slot { return g.slot }

func TestRegistry_SharedLoadOutlivesFirstCaller(t *testing.T) {
	slot := &gateSlot{MemSlot: cart.NewMemSlot(), entered: make(chan struct{}), release: make(chan struct{})}
	reg := cart.NewRegistry(cart.RegistryDeps{Catalog: newFakeCatalog(), Slots: gateSlots{slot: slot}})

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := reg.Get(ctxA, "s_a")
		errA <- err
	}()
	<-slot.entered

	type result struct {
		s   *cart.Store
		err error
	}
	resB := make(chan result, 1)
	go func() {
		s, err := reg.Get(context.Background(), "s_a")
		resB <- result{s, err}
	}()

	time.Sleep(50 * time.Millisecond)
	cancelA()
	time.Sleep(20 * time.Millisecond)
	close(slot.release)

	b := <-resB
	require.NoError(t, b.err)
	assert.NotNil(t, b.s)
	assert.NoError(t, <-errA)
	assert.Equal(t, int32(1), slot.reads.Load())
	assert.Equal(t, 1, reg.Len())
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRegistry_SweepEvictsIdleAndReloads(t *testing.T) {
	client, _ := setupRedis(t)
	clk := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	reg := cart.NewRegistry(cart.RegistryDeps{
		Catalog: newFakeCatalog(),
		Slots:   cart.RedisSlots{Client: client},
		IdleTTL: time.Hour,
		Now:     clk.Now,
	})
	ctx := context.Background()

	first, err := reg.Get(ctx, "s_a")
	require.NoError(t, err)
	require.NoError(t, first.AddProduct(ctx, 1))

	clk.Advance(30 * time.Minute)
	assert.Zero(t, reg.Sweep())
	assert.Equal(t, 1, reg.Len())

	clk.Advance(2 * time.Hour)
	assert.Equal(t, 1, reg.Sweep())
	assert.Zero(t, reg.Len())

	again, err := reg.Get(ctx, "s_a")
	require.NoError(t, err)
	assert.NotSame(t, first, again)
	assert.Equal(t, first.Cart(), again.Cart())
}

func TestRegistry_SweepKeepsRecentAndWatched(t *testing.T) {
	clk := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	reg := cart.NewRegistry(cart.RegistryDeps{
		Catalog: newFakeCatalog(),
		Slots:   cart.NewMemSlots(),
		IdleTTL: time.Hour,
		Now:     clk.Now,
	})
	ctx := context.Background()

	watched, err := reg.Get(ctx, "s_watched")
	require.NoError(t, err)
	unsubscribe := watched.Subscribe(func([]cart.Item) {})

	_, err = reg.Get(ctx, "s_idle")
	require.NoError(t, err)
	_, err = reg.Get(ctx, "s_busy")
	require.NoError(t, err)

	clk.Advance(50 * time.Minute)
	_, err = reg.Get(ctx, "s_busy")
	require.NoError(t, err)

	clk.Advance(20 * time.Minute)
	assert.Equal(t, 1, reg.Sweep())
	assert.Equal(t, 2, reg.Len())

	unsubscribe()
	clk.Advance(2 * time.Hour)
	assert.Equal(t, 2, reg.Sweep())
	assert.Zero(t, reg.Len())
}

func TestRegistry_SweepReleasesMemorySlots(t *testing.T) {
	clk := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	slots := cart.NewMemSlots()
	reg := cart.NewRegistry(cart.RegistryDeps{
		Catalog: newFakeCatalog(),
		Slots:   slots,
		IdleTTL: time.Hour,
		Now:     clk.Now,
	})
	ctx := context.Background()

	s, err := reg.Get(ctx, "s_a")
	require.NoError(t, err)
	require.NoError(t, s.AddProduct(ctx, 1))

	clk.Advance(2 * time.Hour)
	require.Equal(t, 1, reg.Sweep())

	_, ok, err := slots.For("s_a").Read(ctx, cart.SlotKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegistry_NoSweepWithoutTTL(t *testing.T) {
	reg := cart.NewRegistry(cart.RegistryDeps{Catalog: newFakeCatalog(), Slots: cart.NewMemSlots()})
	_, err := reg.Get(context.Background(), "s_a")
	require.NoError(t, err)

	assert.Zero(t, reg.Sweep())
	assert.Equal(t, 1, reg.Len())
}
