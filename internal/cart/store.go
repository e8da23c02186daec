// Package cart implements the cart store: the single owner of the cart line
// items, their persistence to a types.Storage blob, and the publication of
// every committed change to subscribers.
package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/gomarket/pkg/types"
)

// defaultWriteTimeout bounds a single storage write attempt.
const defaultWriteTimeout = 10 * time.Second

// Subscriber receives the cart contents after each committed change. The
// slice is owned by the subscriber.
type Subscriber func(items []types.CartItem)

type subscription struct {
	id uint64
	fn Subscriber
}

// Option configures a Store.
type Option func(*options)

type options struct {
	logger       *zap.Logger
	writeTimeout time.Duration
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithWriteTimeout bounds each storage write attempt.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.writeTimeout = d
		}
	}
}

// Store owns the cart. Operations are serialized, so concurrent callers see
// the same ordering a single event loop would give them.
type Store struct {
	// opMu serializes mutations together with their publication and the
	// queueing of their snapshot.
	opMu sync.Mutex

	mu      sync.RWMutex
	items   []types.CartItem
	closed  bool
	subs    []subscription
	nextSub uint64

	key          string
	logger       *zap.Logger
	persister    *persister
	hydrationErr error
}

// Open creates a store over storage and hydrates it from the blob stored
// under config.GetStorageKey() before returning. storage must be attached.
//
// An absent blob yields an empty cart. A blob that cannot be decoded yields
// an empty cart and a warning under the reset policy (HydrationErr reports
// the cause), or an error wrapping types.ErrDecode under the fail policy.
// Other storage errors are returned.
func Open(ctx context.Context, storage types.Storage, config types.Config, opts ...Option) (*Store, error) {
	o := options{logger: zap.NewNop(), writeTimeout: defaultWriteTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Store{
		key:    config.GetStorageKey(),
		logger: o.logger.With(zap.String("key", config.GetStorageKey())),
	}

	if err := s.hydrate(ctx, storage, config.GetOnCorrupt()); err != nil {
		return nil, err
	}

	s.persister = newPersister(storage, config, o.writeTimeout, s.logger)
	return s, nil
}

// hydrate loads the persisted snapshot. It runs once, before the store is
// handed out.
func (s *Store) hydrate(ctx context.Context, storage types.Storage, onCorrupt string) error {
	blob, err := storage.Get(ctx, s.key)
	if errors.Is(err, types.ErrBlobNotFound) {
		s.logger.Debug("no persisted cart")
		return nil
	}
	if err != nil {
		return fmt.Errorf("hydrate cart: %w", err)
	}

	items, err := decodeItems(blob)
	if err != nil {
		if onCorrupt == types.OnCorruptFail {
			return fmt.Errorf("hydrate cart: %w", err)
		}
		s.logger.Warn("discarding corrupt cart blob", zap.Error(err))
		s.hydrationErr = err
		return nil
	}

	s.items = items
	s.logger.Info("cart hydrated", zap.Int("items", len(items)))
	return nil
}

// HydrationErr returns the decode error that caused a corrupt blob to be
// discarded at Open, or nil.
func (s *Store) HydrationErr() error {
	return s.hydrationErr
}

// Products returns a copy of the cart lines in insertion order.
func (s *Store) Products() []types.CartItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneItems(s.items)
}

// Item returns the cart line for id.
func (s *Store) Item(id string) (types.CartItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := indexOf(s.items, id); i >= 0 {
		return s.items[i], true
	}
	return types.CartItem{}, false
}

// AddToCart adds one unit of p. An existing line for p.ID is incremented,
// exactly like Increment; otherwise a new line with quantity 1 is appended.
// A product with an empty id or an invalid price is rejected with an error
// wrapping types.ErrInvalidItem and the cart is left unchanged.
func (s *Store) AddToCart(p types.Product) *Write {
	if err := p.Validate(); err != nil {
		return resolvedWrite(false, fmt.Errorf("%w: %w", types.ErrInvalidItem, err))
	}
	return s.mutate("add", p.ID, func(items []types.CartItem) ([]types.CartItem, bool) {
		if i := indexOf(items, p.ID); i >= 0 {
			items[i].Quantity++
			return items, true
		}
		return append(items, p.Item(1)), true
	})
}

// Increment adds one unit to the line for id. Unknown ids are a no-op.
func (s *Store) Increment(id string) *Write {
	return s.mutate("increment", id, func(items []types.CartItem) ([]types.CartItem, bool) {
		i := indexOf(items, id)
		if i < 0 {
			return items, false
		}
		items[i].Quantity++
		return items, true
	})
}

// Decrement removes one unit from the line for id. The quantity never drops
// below 1: decrementing a line at 1 changes nothing. Unknown ids are a
// no-op.
func (s *Store) Decrement(id string) *Write {
	return s.mutate("decrement", id, func(items []types.CartItem) ([]types.CartItem, bool) {
		i := indexOf(items, id)
		if i < 0 || items[i].Quantity <= 1 {
			return items, false
		}
		items[i].Quantity--
		return items, true
	})
}

// Clear empties the cart. Clearing an empty cart is a no-op.
func (s *Store) Clear() *Write {
	return s.mutate("clear", "", func(items []types.CartItem) ([]types.CartItem, bool) {
		if len(items) == 0 {
			return items, false
		}
		return nil, true
	})
}

// Subscribe registers fn to be called synchronously after every committed
// change, in commit order. fn must not call mutating Store methods. The
// returned func unsubscribes; calling it more than once is harmless.
func (s *Store) Subscribe(fn Subscriber) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || fn == nil {
		return func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs = append(s.subs, subscription{id: id, fn: fn})

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

// Flush waits until every write queued so far has resolved and returns the
// outcome of the latest one. Under the on_close strategy it also triggers
// the pending write.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return types.ErrStoreClosed
	}
	return s.persister.flush(ctx)
}

// Close writes any queued snapshot, stops the writer goroutine and drops
// all subscribers. It does not detach the storage. It returns the outcome of
// the latest write, like Flush. If ctx ends first Close returns ctx.Err()
// and may be called again to wait for the writer. Operations after Close
// resolve with types.ErrStoreClosed.
func (s *Store) Close(ctx context.Context) error {
	s.opMu.Lock()
	s.mu.Lock()
	s.closed = true
	s.subs = nil
	s.mu.Unlock()
	s.opMu.Unlock()

	return s.persister.close(ctx)
}

// mutate applies fn to the cart under the operation lock. When fn reports a
// change the new snapshot is queued for persistence and published.
func (s *Store) mutate(op, id string, fn func([]types.CartItem) ([]types.CartItem, bool)) *Write {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return resolvedWrite(false, types.ErrStoreClosed)
	}
	next, changed := fn(s.items)
	if !changed {
		s.mu.Unlock()
		s.logger.Debug("cart unchanged", zap.String("op", op), zap.String("id", id))
		return resolvedWrite(false, nil)
	}
	s.items = next
	snapshot := cloneItems(next)
	subs := make([]Subscriber, len(s.subs))
	for i, sub := range s.subs {
		subs[i] = sub.fn
	}
	s.mu.Unlock()

	s.logger.Debug("cart changed",
		zap.String("op", op),
		zap.String("id", id),
		zap.Int("items", len(snapshot)))

	var w *Write
	blob, err := encodeItems(snapshot)
	if err != nil {
		w = resolvedWrite(true, fmt.Errorf("%w: %w", types.ErrPersistenceWrite, err))
	} else {
		w = s.persister.enqueue(blob)
	}

	for _, sub := range subs {
		sub(cloneItems(snapshot))
	}
	return w
}

func indexOf(items []types.CartItem, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneItems(items []types.CartItem) []types.CartItem {
	out := make([]types.CartItem, len(items))
	copy(out, items)
	return out
}
