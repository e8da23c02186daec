package cart

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/gomarket/pkg/types"
)

// pendingWrite is an encoded snapshot waiting to be written.
type pendingWrite struct {
	blob  []byte
	write *Write
}

// persister owns the single goroutine that writes snapshots to storage.
// Snapshots are written in the order they were queued. When several are
// queued at once only the newest is written, and every queued Write
// resolves with that outcome, since each blob replaces the whole cart.
type persister struct {
	storage  types.Storage
	key      string
	retries  int
	strategy string
	timeout  time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	pending []pendingWrite
	last    *Write

	wake     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newPersister(storage types.Storage, cfg types.Config, timeout time.Duration, logger *zap.Logger) *persister {
	p := &persister{
		storage:  storage,
		key:      cfg.GetStorageKey(),
		retries:  cfg.GetWriteRetries(),
		strategy: cfg.GetSyncStrategy(),
		timeout:  timeout,
		logger:   logger,
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go p.run()
	return p
}

// enqueue queues blob and returns the Write that resolves with its outcome.
// For the on_close strategy the write stays queued until flush or close.
func (p *persister) enqueue(blob []byte) *Write {
	w := newWrite()

	p.mu.Lock()
	p.pending = append(p.pending, pendingWrite{blob: blob, write: w})
	p.last = w
	p.mu.Unlock()

	if p.strategy == types.SyncImmediate {
		p.kick()
	}
	return w
}

// kick wakes the writer goroutine without blocking.
func (p *persister) kick() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// flush writes everything queued so far and waits for it. It returns the
// outcome of the most recent write, which determines what storage holds.
func (p *persister) flush(ctx context.Context) error {
	p.mu.Lock()
	last := p.last
	p.mu.Unlock()

	if last == nil {
		return nil
	}
	p.kick()
	return last.Wait(ctx)
}

// close drains the queue and stops the goroutine. It returns the outcome of
// the most recent write once the goroutine has exited. Repeat calls wait
// again.
func (p *persister) close(ctx context.Context) error {
	p.stopOnce.Do(func() { close(p.stop) })
	select {
	case <-p.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	p.mu.Lock()
	last := p.last
	p.mu.Unlock()
	if last == nil {
		return nil
	}
	return last.Err()
}

func (p *persister) run() {
	defer close(p.done)
	for {
		select {
		case <-p.wake:
			p.drain()
		case <-p.stop:
			p.drain()
			return
		}
	}
}

// drain takes every queued snapshot, writes the newest and resolves all.
func (p *persister) drain() {
	p.mu.Lock()
	batch := p.pending
	p.pending = nil
	p.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	err := p.write(batch[len(batch)-1].blob)
	for _, pw := range batch {
		pw.write.resolve(err)
	}
}

// write stores blob, retrying up to p.retries times before dropping it.
func (p *persister) write(blob []byte) error {
	var err error
	for attempt := 1; attempt <= p.retries+1; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err = p.storage.Set(ctx, p.key, blob)
		cancel()
		if err == nil {
			p.logger.Debug("cart persisted",
				zap.String("key", p.key),
				zap.Int("bytes", len(blob)),
				zap.Int("attempt", attempt))
			return nil
		}
		p.logger.Warn("cart write failed",
			zap.String("key", p.key),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}

	p.logger.Warn("dropping cart write", zap.String("key", p.key), zap.Error(err))
	return fmt.Errorf("%w: %w", types.ErrPersistenceWrite, err)
}
