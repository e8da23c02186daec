package cart

import "context"

// Write is the observable outcome of a store operation. It resolves once
// the snapshot produced by the operation has been persisted, has failed to
// persist, or immediately when the operation changed nothing.
type Write struct {
	done    chan struct{}
	err     error
	mutated bool
}

func newWrite() *Write {
	return &Write{done: make(chan struct{}), mutated: true}
}

// resolvedWrite returns a Write that is already done.
func resolvedWrite(mutated bool, err error) *Write {
	w := &Write{done: make(chan struct{}), mutated: mutated, err: err}
	close(w.done)
	return w
}

// resolve records the outcome. It must be called exactly once.
func (w *Write) resolve(err error) {
	w.err = err
	close(w.done)
}

// Done is closed when the write has resolved.
func (w *Write) Done() <-chan struct{} {
	return w.done
}

// Err returns the outcome, or nil while the write is still pending.
func (w *Write) Err() error {
	select {
	case <-w.done:
		return w.err
	default:
		return nil
	}
}

// Wait blocks until the write resolves or ctx is done.
func (w *Write) Wait(ctx context.Context) error {
	select {
	case <-w.done:
		return w.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Mutated reports whether the operation changed the cart.
func (w *Write) Mutated() bool {
	return w.mutated
}
