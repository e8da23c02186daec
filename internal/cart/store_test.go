package cart

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sync/errgroup"

	"github.com/mesh-intelligence/gomarket/pkg/types"
)

func TestCartScenario(t *testing.T) {
	s := openStore(t, newMemory(t), memoryConfig())
	assert.Empty(t, s.Products())

	require.NoError(t, wait(t, s.AddToCart(shirt)))
	assert.Equal(t, []types.CartItem{shirt.Item(1)}, s.Products())

	require.NoError(t, wait(t, s.AddToCart(shirt)))
	assert.Equal(t, []types.CartItem{shirt.Item(2)}, s.Products())

	require.NoError(t, wait(t, s.Decrement("p1")))
	assert.Equal(t, []types.CartItem{shirt.Item(1)}, s.Products())

	w := s.Decrement("p1")
	require.NoError(t, wait(t, w))
	assert.False(t, w.Mutated(), "decrement at quantity 1 must not mutate")
	assert.Equal(t, []types.CartItem{shirt.Item(1)}, s.Products())

	w = s.Increment("p2")
	require.NoError(t, wait(t, w))
	assert.False(t, w.Mutated())
	assert.Equal(t, []types.CartItem{shirt.Item(1)}, s.Products())
}

func TestAddToCartNewItemStartsAtOne(t *testing.T) {
	s := openStore(t, newMemory(t), memoryConfig())

	w := s.AddToCart(mug)
	require.NoError(t, wait(t, w))
	assert.True(t, w.Mutated())

	item, ok := s.Item("p2")
	require.True(t, ok)
	assert.Equal(t, 1, item.Quantity)
	assert.Equal(t, mug, item.Product())
}

func TestAddToCartExistingEqualsIncrement(t *testing.T) {
	viaAdd := openStore(t, newMemory(t), memoryConfig())
	viaIncrement := openStore(t, newMemory(t), memoryConfig())

	for _, s := range []*Store{viaAdd, viaIncrement} {
		require.NoError(t, wait(t, s.AddToCart(shirt)))
		require.NoError(t, wait(t, s.AddToCart(mug)))
	}

	require.NoError(t, wait(t, viaAdd.AddToCart(shirt)))
	require.NoError(t, wait(t, viaIncrement.Increment(shirt.ID)))

	assert.Equal(t, viaIncrement.Products(), viaAdd.Products())
}

func TestAddToCartKeepsOriginalProductFields(t *testing.T) {
	s := openStore(t, newMemory(t), memoryConfig())
	require.NoError(t, wait(t, s.AddToCart(shirt)))

	repriced := shirt
	repriced.Price = 99
	require.NoError(t, wait(t, s.AddToCart(repriced)))

	item, ok := s.Item(shirt.ID)
	require.True(t, ok)
	assert.Equal(t, 2, item.Quantity)
	assert.Equal(t, shirt.Price, item.Price)
}

func TestAddToCartRejectsInvalidProduct(t *testing.T) {
	storage := newMemory(t)
	s := openStore(t, storage, memoryConfig())

	tests := []struct {
		name    string
		product types.Product
		wantErr error
	}{
		{name: "empty id", product: types.Product{Title: "Ghost", Price: 1}, wantErr: types.ErrInvalidID},
		{name: "negative price", product: types.Product{ID: "p9", Price: -3}, wantErr: types.ErrInvalidPrice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.AddToCart(tt.product)
			err := wait(t, w)
			assert.ErrorIs(t, err, types.ErrInvalidItem)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.False(t, w.Mutated())
		})
	}

	assert.Empty(t, s.Products())
	_, err := storage.Get(context.Background(), types.DefaultStorageKey)
	assert.ErrorIs(t, err, types.ErrBlobNotFound)
}

func TestIncrementUnknownIsSilentNoop(t *testing.T) {
	storage := newMemory(t)
	s := openStore(t, storage, memoryConfig())

	published := 0
	defer s.Subscribe(func([]types.CartItem) { published++ })()

	w := s.Increment("missing")
	assert.NoError(t, wait(t, w))
	assert.False(t, w.Mutated())
	assert.Equal(t, 0, published)

	_, err := storage.Get(context.Background(), types.DefaultStorageKey)
	assert.ErrorIs(t, err, types.ErrBlobNotFound, "no-op must not write")
}

func TestDecrementUnknownIsNoop(t *testing.T) {
	s := openStore(t, newMemory(t), memoryConfig())
	require.NoError(t, wait(t, s.AddToCart(shirt)))

	w := s.Decrement("missing")
	assert.NoError(t, wait(t, w))
	assert.False(t, w.Mutated())
	assert.Equal(t, map[string]int{"p1": 1}, quantities(s.Products()))
}

func TestDecrementNeverBelowOne(t *testing.T) {
	s := openStore(t, newMemory(t), memoryConfig())
	for i := 0; i < 3; i++ {
		require.NoError(t, wait(t, s.AddToCart(mug)))
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, wait(t, s.Decrement(mug.ID)))
		item, ok := s.Item(mug.ID)
		require.True(t, ok, "decrement must never remove the item")
		assert.GreaterOrEqual(t, item.Quantity, 1)
	}
	item, _ := s.Item(mug.ID)
	assert.Equal(t, 1, item.Quantity)
}

func TestRandomOperationsKeepInvariants(t *testing.T) {
	s := openStore(t, newMemory(t), memoryConfig())
	products := []types.Product{shirt, mug, hat}
	ids := []string{"p1", "p2", "p3", "p4"}
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		switch rng.Intn(3) {
		case 0:
			s.AddToCart(products[rng.Intn(len(products))])
		case 1:
			s.Increment(ids[rng.Intn(len(ids))])
		case 2:
			s.Decrement(ids[rng.Intn(len(ids))])
		}

		seen := make(map[string]bool)
		for _, it := range s.Products() {
			require.False(t, seen[it.ID], "duplicate id %s after op %d", it.ID, i)
			seen[it.ID] = true
			require.GreaterOrEqual(t, it.Quantity, 1)
		}
		require.False(t, seen["p4"], "p4 is never added")
	}
	require.NoError(t, s.Flush(context.Background()))
}

func TestClear(t *testing.T) {
	storage := newMemory(t)
	s := openStore(t, storage, memoryConfig())

	w := s.Clear()
	require.NoError(t, wait(t, w))
	assert.False(t, w.Mutated(), "clearing an empty cart is a no-op")

	require.NoError(t, wait(t, s.AddToCart(shirt)))
	require.NoError(t, wait(t, s.AddToCart(mug)))

	w = s.Clear()
	require.NoError(t, wait(t, w))
	assert.True(t, w.Mutated())
	assert.Empty(t, s.Products())

	blob, err := storage.Get(context.Background(), types.DefaultStorageKey)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(blob))
}

func TestProductsReturnsCopy(t *testing.T) {
	s := openStore(t, newMemory(t), memoryConfig())
	require.NoError(t, wait(t, s.AddToCart(shirt)))

	items := s.Products()
	items[0].Quantity = 100

	item, _ := s.Item(shirt.ID)
	assert.Equal(t, 1, item.Quantity)
}

func TestPersistThenHydrateRoundTrip(t *testing.T) {
	storage := newMemory(t)
	ctx := context.Background()

	s, err := Open(ctx, storage, memoryConfig())
	require.NoError(t, err)
	s.AddToCart(shirt)
	s.AddToCart(mug)
	s.AddToCart(shirt)
	s.AddToCart(hat)
	s.Decrement(hat.ID)
	s.Increment(mug.ID)
	want := s.Products()
	require.NoError(t, s.Close(ctx))

	fresh := openStore(t, storage, memoryConfig())
	assert.Equal(t, want, fresh.Products())
	assert.NoError(t, fresh.HydrationErr())
}

func TestHydrateUsesConfiguredKey(t *testing.T) {
	storage := newMemory(t)
	ctx := context.Background()
	require.NoError(t, storage.Set(ctx, "@Shop:cart",
		[]byte(`[{"id":"p7","title":"Lamp","image_url":"l","price":30,"quantity":4}]`)))

	s := openStore(t, storage, types.Config{Backend: types.BackendMemory, StorageKey: "@Shop:cart"})
	assert.Equal(t, map[string]int{"p7": 4}, quantities(s.Products()))

	other := openStore(t, storage, memoryConfig())
	assert.Empty(t, other.Products())
}

func TestHydrateEmptyOrNullBlob(t *testing.T) {
	for _, blob := range []string{"", "  \n", "null", "[]"} {
		t.Run(fmt.Sprintf("%q", blob), func(t *testing.T) {
			storage := newMemory(t)
			require.NoError(t, storage.Set(context.Background(), types.DefaultStorageKey, []byte(blob)))

			s := openStore(t, storage, memoryConfig())
			assert.Empty(t, s.Products())
			assert.NoError(t, s.HydrationErr())
		})
	}
}

var corruptBlobs = []struct {
	name string
	blob string
}{
	{name: "not json", blob: `{{{`},
	{name: "single object instead of array", blob: `{"id":"p1","title":"Shirt","image_url":"u","price":10,"quantity":1}`},
	{name: "zero quantity", blob: `[{"id":"p1","title":"Shirt","image_url":"u","price":10,"quantity":0}]`},
	{name: "empty id", blob: `[{"id":"","title":"Shirt","image_url":"u","price":10,"quantity":1}]`},
	{name: "negative price", blob: `[{"id":"p1","title":"Shirt","image_url":"u","price":-10,"quantity":1}]`},
	{name: "duplicate id", blob: `[{"id":"p1","price":1,"quantity":1},{"id":"p1","price":1,"quantity":2}]`},
	{name: "quantity as string", blob: `[{"id":"p1","price":1,"quantity":"1"}]`},
}

func TestHydrateCorruptBlobResetPolicy(t *testing.T) {
	for _, tt := range corruptBlobs {
		t.Run(tt.name, func(t *testing.T) {
			storage := newMemory(t)
			require.NoError(t, storage.Set(context.Background(), types.DefaultStorageKey, []byte(tt.blob)))

			core, logs := observer.New(zapcore.WarnLevel)
			s := openStore(t, storage, memoryConfig(), WithLogger(zap.New(core)))

			assert.Empty(t, s.Products())
			assert.ErrorIs(t, s.HydrationErr(), types.ErrDecode)
			assert.Equal(t, 1, logs.FilterMessage("discarding corrupt cart blob").Len())

			// The store is usable and the next write replaces the corrupt blob.
			require.NoError(t, wait(t, s.AddToCart(shirt)))
			blob, err := storage.Get(context.Background(), types.DefaultStorageKey)
			require.NoError(t, err)
			assert.JSONEq(t, `[{"id":"p1","title":"Shirt","image_url":"u","price":10,"quantity":1}]`, string(blob))
		})
	}
}

func TestHydrateCorruptBlobFailPolicy(t *testing.T) {
	for _, tt := range corruptBlobs {
		t.Run(tt.name, func(t *testing.T) {
			storage := newMemory(t)
			require.NoError(t, storage.Set(context.Background(), types.DefaultStorageKey, []byte(tt.blob)))

			cfg := memoryConfig()
			cfg.OnCorrupt = types.OnCorruptFail
			s, err := Open(context.Background(), storage, cfg)
			assert.Nil(t, s)
			assert.ErrorIs(t, err, types.ErrDecode)
		})
	}
}

func TestHydrateStorageError(t *testing.T) {
	s, err := Open(context.Background(), failingGetStorage{newMemory(t)}, memoryConfig())
	assert.Nil(t, s)
	assert.ErrorIs(t, err, errDiskFull)
}

func TestSubscribePublishesCommittedChanges(t *testing.T) {
	s := openStore(t, newMemory(t), memoryConfig())

	var got [][]types.CartItem
	unsubscribe := s.Subscribe(func(items []types.CartItem) {
		got = append(got, items)
		// Reading from inside a callback is allowed.
		assert.Equal(t, items, s.Products())
	})

	s.AddToCart(shirt)
	s.AddToCart(shirt)
	s.Decrement(shirt.ID)
	s.Decrement(shirt.ID)  // floor: not published
	s.Increment("missing") // no-op: not published

	require.Len(t, got, 3)
	assert.Equal(t, map[string]int{"p1": 1}, quantities(got[0]))
	assert.Equal(t, map[string]int{"p1": 2}, quantities(got[1]))
	assert.Equal(t, map[string]int{"p1": 1}, quantities(got[2]))

	unsubscribe()
	unsubscribe()
	s.AddToCart(mug)
	assert.Len(t, got, 3)
}

func TestSubscribersNotifiedInRegistrationOrder(t *testing.T) {
	s := openStore(t, newMemory(t), memoryConfig())

	var order []string
	defer s.Subscribe(func([]types.CartItem) { order = append(order, "first") })()
	unsubscribeSecond := s.Subscribe(func([]types.CartItem) { order = append(order, "second") })
	defer s.Subscribe(func([]types.CartItem) { order = append(order, "third") })()

	s.AddToCart(shirt)
	unsubscribeSecond()
	s.AddToCart(shirt)

	assert.Equal(t, []string{"first", "second", "third", "first", "third"}, order)
}

func TestSubscriberOwnsSnapshot(t *testing.T) {
	s := openStore(t, newMemory(t), memoryConfig())
	defer s.Subscribe(func(items []types.CartItem) { items[0].Quantity = 42 })()

	s.AddToCart(shirt)
	item, _ := s.Item(shirt.ID)
	assert.Equal(t, 1, item.Quantity)
}

func TestWriteRetriedOnceThenSucceeds(t *testing.T) {
	storage := &flakyStorage{Storage: newMemory(t), failures: 1}
	core, logs := observer.New(zapcore.WarnLevel)
	s := openStore(t, storage, memoryConfig(), WithLogger(zap.New(core)))

	require.NoError(t, wait(t, s.AddToCart(shirt)))
	assert.Equal(t, 2, storage.setCount())
	assert.Equal(t, 1, logs.FilterMessage("cart write failed").Len())
	assert.Equal(t, 0, logs.FilterMessage("dropping cart write").Len())
}

func TestWriteDroppedAfterRetry(t *testing.T) {
	storage := &flakyStorage{Storage: newMemory(t), always: true}
	core, logs := observer.New(zapcore.WarnLevel)
	s := openStore(t, storage, memoryConfig(), WithLogger(zap.New(core)))

	w := s.AddToCart(shirt)
	err := wait(t, w)
	assert.ErrorIs(t, err, types.ErrPersistenceWrite)
	assert.ErrorIs(t, err, errDiskFull)
	assert.True(t, w.Mutated())
	assert.Equal(t, 2, storage.setCount())
	assert.Equal(t, 1, logs.FilterMessage("dropping cart write").Len())

	// In-memory state is never rolled back by a failed write.
	assert.Equal(t, []types.CartItem{shirt.Item(1)}, s.Products())
}

func TestWriteRetriesConfigurable(t *testing.T) {
	retries := 0
	storage := &flakyStorage{Storage: newMemory(t), always: true}
	cfg := memoryConfig()
	cfg.WriteRetries = &retries
	s := openStore(t, storage, cfg)

	assert.ErrorIs(t, wait(t, s.AddToCart(shirt)), types.ErrPersistenceWrite)
	assert.Equal(t, 1, storage.setCount())
}

func TestQueuedSnapshotsCoalesce(t *testing.T) {
	inner := newMemory(t)
	storage := newGatedStorage(inner)
	s := openStore(t, storage, memoryConfig())

	first := s.AddToCart(shirt)
	<-storage.entered

	queued := []*Write{s.AddToCart(mug), s.AddToCart(hat), s.Increment(shirt.ID)}
	for _, w := range queued {
		select {
		case <-w.Done():
			t.Fatal("queued write resolved while the writer was blocked")
		default:
		}
	}

	close(storage.release)
	require.NoError(t, wait(t, first))
	for _, w := range queued {
		require.NoError(t, wait(t, w))
	}
	assert.Equal(t, 2, storage.setCount(), "three queued snapshots share one write")

	blob, err := inner.Get(context.Background(), types.DefaultStorageKey)
	require.NoError(t, err)
	items, err := decodeItems(blob)
	require.NoError(t, err)
	assert.Equal(t, s.Products(), items)
}

func TestConcurrentMutationsPersistFinalState(t *testing.T) {
	storage := newMemory(t)
	s := openStore(t, storage, memoryConfig())
	products := []types.Product{shirt, mug, hat}

	var g errgroup.Group
	for i := 0; i < 30; i++ {
		p := products[i%len(products)]
		g.Go(func() error {
			s.AddToCart(p)
			s.Increment(p.ID)
			s.Decrement(p.ID)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Flush(ctx))

	assert.Equal(t, map[string]int{"p1": 10, "p2": 10, "p3": 10}, quantities(s.Products()))

	blob, err := storage.Get(ctx, types.DefaultStorageKey)
	require.NoError(t, err)
	items, err := decodeItems(blob)
	require.NoError(t, err)
	assert.Equal(t, s.Products(), items, "storage holds the last committed snapshot")
}

func TestConcurrentSubscribersSeeOrderedSnapshots(t *testing.T) {
	s := openStore(t, newMemory(t), memoryConfig())
	require.NoError(t, wait(t, s.AddToCart(shirt)))

	var mu sync.Mutex
	var seen []int
	defer s.Subscribe(func(items []types.CartItem) {
		mu.Lock()
		seen = append(seen, items[0].Quantity)
		mu.Unlock()
	})()

	var g errgroup.Group
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			s.Increment(shirt.ID)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 20)
	for i, q := range seen {
		assert.Equal(t, i+2, q, "publications must follow commit order")
	}
}

func TestOnCloseStrategyDefersWrites(t *testing.T) {
	storage := newMemory(t)
	cfg := memoryConfig()
	cfg.SyncStrategy = types.SyncOnClose
	ctx := context.Background()

	s, err := Open(ctx, storage, cfg)
	require.NoError(t, err)

	w := s.AddToCart(shirt)
	s.AddToCart(mug)

	select {
	case <-w.Done():
		t.Fatal("on_close write resolved before flush")
	case <-time.After(50 * time.Millisecond):
	}
	_, err = storage.Get(ctx, types.DefaultStorageKey)
	assert.ErrorIs(t, err, types.ErrBlobNotFound)

	require.NoError(t, s.Flush(ctx))
	assert.NoError(t, w.Err())

	s.AddToCart(hat)
	require.NoError(t, s.Close(ctx))

	fresh := openStore(t, storage, cfg)
	assert.Equal(t, map[string]int{"p1": 1, "p2": 1, "p3": 1}, quantities(fresh.Products()))
}

func TestFlushWithNothingQueued(t *testing.T) {
	s := openStore(t, newMemory(t), memoryConfig())
	assert.NoError(t, s.Flush(context.Background()))
}

func TestClosedStore(t *testing.T) {
	storage := newMemory(t)
	ctx := context.Background()
	s, err := Open(ctx, storage, memoryConfig())
	require.NoError(t, err)
	require.NoError(t, wait(t, s.AddToCart(shirt)))

	published := 0
	s.Subscribe(func([]types.CartItem) { published++ })

	require.NoError(t, s.Close(ctx))
	require.NoError(t, s.Close(ctx))

	for _, w := range []*Write{s.AddToCart(mug), s.Increment(shirt.ID), s.Decrement(shirt.ID), s.Clear()} {
		assert.ErrorIs(t, wait(t, w), types.ErrStoreClosed)
		assert.False(t, w.Mutated())
	}
	assert.ErrorIs(t, s.Flush(ctx), types.ErrStoreClosed)
	assert.Equal(t, 0, published)
	assert.Equal(t, []types.CartItem{shirt.Item(1)}, s.Products())

	// Subscribing after close is inert.
	s.Subscribe(func([]types.CartItem) { published++ })()
}

func TestCloseFlushesQueuedWrite(t *testing.T) {
	storage := newMemory(t)
	ctx := context.Background()

	s, err := Open(ctx, storage, memoryConfig())
	require.NoError(t, err)
	w := s.AddToCart(shirt)
	require.NoError(t, s.Close(ctx))

	select {
	case <-w.Done():
	default:
		t.Fatal("Close returned before the queued write resolved")
	}
	_, err = storage.Get(ctx, types.DefaultStorageKey)
	assert.NoError(t, err)
}

func TestCloseReportsFailedFinalWrite(t *testing.T) {
	storage := &flakyStorage{Storage: newMemory(t), always: true}
	cfg := memoryConfig()
	cfg.SyncStrategy = types.SyncOnClose
	ctx := context.Background()

	s, err := Open(ctx, storage, cfg)
	require.NoError(t, err)
	w := s.AddToCart(shirt)

	err = s.Close(ctx)
	assert.ErrorIs(t, err, types.ErrPersistenceWrite)
	assert.ErrorIs(t, err, errDiskFull)
	assert.ErrorIs(t, w.Err(), types.ErrPersistenceWrite)
	assert.Equal(t, 2, storage.setCount())
}

func TestCloseAgainAfterCancelledContextWaitsForWriter(t *testing.T) {
	storage := newGatedStorage(newMemory(t))
	s, err := Open(context.Background(), storage, memoryConfig())
	require.NoError(t, err)

	w := s.AddToCart(shirt)
	<-storage.entered

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Close(cancelled), context.Canceled)

	result := make(chan error, 1)
	go func() { result <- s.Close(context.Background()) }()

	select {
	case err := <-result:
		t.Fatalf("Close returned %v while the writer was still blocked", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(storage.release)
	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return after the writer finished")
	}
	assert.NoError(t, w.Err())
	select {
	case <-w.Done():
	default:
		t.Fatal("write unresolved after Close")
	}
}

func TestWriteWaitHonorsContext(t *testing.T) {
	storage := newGatedStorage(newMemory(t))
	s := openStore(t, storage, memoryConfig())

	w := s.AddToCart(shirt)
	<-storage.entered

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, w.Wait(ctx), context.DeadlineExceeded)
	assert.NoError(t, w.Err(), "pending write reports no error yet")

	close(storage.release)
	assert.NoError(t, wait(t, w))
}
