package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

type Deps struct {
	Catalog  Catalog
	Slot     Slot
	Notifier Notifier
	Log      *zap.Logger
	Metrics  *Metrics
}

// Store owns one shopper's cart. Mutations are serialized: each one holds the
// write lock across its catalog lookups, so two concurrent calls never
// read-modify-write the same snapshot. Cart() never waits on a mutation.
type Store struct {
	catalog Catalog
	slot    Slot
	notify  Notifier
	log     *zap.Logger
	metrics *Metrics

	writeMu sync.Mutex

	mu      sync.RWMutex
	items   []Item
	subs    []subscriber
	nextSub int
}

type subscriber struct {
	id int
	fn func([]Item)
}

// NewStore loads the cart from the slot. An absent slot starts an empty cart,
// and so does a slot that does not decode; only a failing read is an error.
func NewStore(ctx context.Context, deps Deps) (*Store, error) {
	if deps.Catalog == nil || deps.Slot == nil {
		return nil, errors.New("cart: catalog and slot are required")
	}

	s := &Store{
		catalog: deps.Catalog,
		slot:    deps.Slot,
		notify:  deps.Notifier,
		log:     deps.Log,
		metrics: deps.Metrics,
	}
	if s.notify == nil {
		s.notify = NotifierFunc(func(string) {})
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}

	items, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	s.items = items
	return s, nil
}

func (s *Store) load(ctx context.Context) ([]Item, error) {
	raw, ok, err := s.slot.Read(ctx, SlotKey)
	if err != nil {
		return nil, fmt.Errorf("read cart slot: %w", err)
	}
	if !ok {
		return []Item{}, nil
	}

	items, err := Decode(raw)
	if err != nil {
		s.log.Warn("discarding unreadable cart", zap.Error(err), zap.Int("bytes", len(raw)))
		return []Item{}, nil
	}
	return items, nil
}

// Cart returns a copy of the current snapshot.
func (s *Store) Cart() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.items)
}

// Subscribe registers fn to receive every snapshot accepted after this call.
// fn runs synchronously on the mutating goroutine and must not mutate the store.
func (s *Store) Subscribe(fn func([]Item)) (unsubscribe func()) {
	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// watched reports whether anyone is subscribed.
func (s *Store) watched() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs) > 0
}

// AddProduct puts one more unit of productID in the cart, appending a new line
// with amount 1 when the product is not there yet.
func (s *Store) AddProduct(ctx context.Context, productID int64) (err error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	defer func() { s.finish(OpAdd, productID, err) }()

	next := s.Cart()
	idx := indexOf(next, productID)

	current := 0
	if idx >= 0 {
		current = next[idx].Amount
	}

	stock, err := s.catalog.GetStock(ctx, productID)
	if err != nil {
		return fmt.Errorf("%w: stock %d: %w", ErrUpstream, productID, err)
	}
	if current+1 > stock.Amount {
		return fmt.Errorf("%w: product %d has %d", ErrOutOfStock, productID, stock.Amount)
	}

	if idx >= 0 {
		next[idx].Amount++
		return s.commit(ctx, next)
	}

	p, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return fmt.Errorf("%w: product %d: %w", ErrUpstream, productID, err)
	}
	if p.ID != productID {
		return fmt.Errorf("%w: asked for product %d, got %d", ErrUpstream, productID, p.ID)
	}

	return s.commit(ctx, append(next, Item{Product: p, Amount: 1}))
}

func (s *Store) RemoveProduct(ctx context.Context, productID int64) (err error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	defer func() { s.finish(OpRemove, productID, err) }()

	cur := s.Cart()
	next := make([]Item, 0, len(cur))
	for _, it := range cur {
		if it.ID != productID {
			next = append(next, it)
		}
	}
	if len(next) == len(cur) {
		return fmt.Errorf("%w: %d", ErrItemNotFound, productID)
	}

	return s.commit(ctx, next)
}

// UpdateProductAmount sets the absolute amount of a product already in the
// cart. Amounts below 1 are ignored without a notification.
func (s *Store) UpdateProductAmount(ctx context.Context, productID int64, amount int) (err error) {
	if amount < 1 {
		s.metrics.observe(OpUpdate, "ignored")
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	defer func() { s.finish(OpUpdate, productID, err) }()

	stock, err := s.catalog.GetStock(ctx, productID)
	if err != nil {
		return fmt.Errorf("%w: stock %d: %w", ErrUpstream, productID, err)
	}
	if amount > stock.Amount {
		return fmt.Errorf("%w: product %d has %d", ErrOutOfStock, productID, stock.Amount)
	}

	next := s.Cart()
	idx := indexOf(next, productID)
	if idx < 0 {
		return fmt.Errorf("%w: %d", ErrItemNotFound, productID)
	}
	next[idx].Amount = amount

	return s.commit(ctx, next)
}

// commit writes the slot first; memory and subscribers only see next once it is durable.
func (s *Store) commit(ctx context.Context, next []Item) error {
	raw, err := Encode(next)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrPersist, err)
	}
	if err := s.slot.Write(ctx, SlotKey, raw); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}

	s.mu.Lock()
	s.items = next
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(clone(next))
	}
	return nil
}

func (s *Store) finish(op Op, productID int64, err error) {
	s.metrics.observe(op, outcome(err))
	if err == nil {
		s.log.Debug("cart updated", zap.String("op", string(op)), zap.Int64("product_id", productID))
		return
	}

	fields := []zap.Field{zap.String("op", string(op)), zap.Int64("product_id", productID), zap.Error(err)}
	if errors.Is(err, ErrUpstream) || errors.Is(err, ErrPersist) {
		s.log.Warn("cart operation failed", fields...)
	} else {
		s.log.Info("cart operation rejected", fields...)
	}
	s.notify.Error(Message(op, err))
}

// Encode serializes a cart the way it is stored in the slot.
func Encode(items []Item) (string, error) {
	if items == nil {
		items = []Item{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Decode parses a stored cart and rejects duplicate lines and amounts below 1.
func Decode(raw string) ([]Item, error) {
	var items []Item
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{}, len(items))
	for _, it := range items {
		if it.Amount < 1 {
			return nil, fmt.Errorf("product %d: amount %d", it.ID, it.Amount)
		}
		if _, dup := seen[it.ID]; dup {
			return nil, fmt.Errorf("product %d: duplicate line", it.ID)
		}
		seen[it.ID] = struct{}{}
	}

	if items == nil {
		items = []Item{}
	}
	return items, nil
}

func indexOf(items []Item, productID int64) int {
	for i, it := range items {
		if it.ID == productID {
			return i
		}
	}
	return -1
}

func clone(items []Item) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	return out
}
