package cart

import (
	"context"

	"github.com/mesh-intelligence/gomarket/pkg/types"
)

type storeKey struct{}

// WithStore returns a context that carries s. Code running under the
// returned context reaches the store through FromContext.
func WithStore(ctx context.Context, s *Store) context.Context {
	return context.WithValue(ctx, storeKey{}, s)
}

// FromContext returns the store carried by ctx.
// Returns types.ErrNotInitialized when no store is in scope.
func FromContext(ctx context.Context) (*Store, error) {
	s, ok := ctx.Value(storeKey{}).(*Store)
	if !ok || s == nil {
		return nil, types.ErrNotInitialized
	}
	return s, nil
}

// MustFromContext is FromContext for code paths where a missing store is a
// programming error. It panics with types.ErrNotInitialized.
func MustFromContext(ctx context.Context) *Store {
	s, err := FromContext(ctx)
	if err != nil {
		panic(err)
	}
	return s
}
