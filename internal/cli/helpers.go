package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/gomarket/internal/cart"
	"github.com/mesh-intelligence/gomarket/pkg/storage"
	"github.com/mesh-intelligence/gomarket/pkg/types"
)

// withStore attaches the configured backend, opens the cart store over it
// and runs fn with the store in scope. The store is closed and the backend
// detached afterwards; a failed final write is reported as a system error.
func (a *app) withStore(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	backend, err := storage.Open(a.config)
	if err != nil {
		return sysError(err)
	}
	defer func() {
		if derr := backend.Detach(); derr != nil && err == nil {
			err = sysError(fmt.Errorf("detach backend: %w", derr))
		}
	}()

	store, err := cart.Open(ctx, backend, a.config, cart.WithLogger(a.logger))
	if err != nil {
		return sysError(err)
	}
	if herr := store.HydrationErr(); herr != nil {
		a.logger.Warn("stored cart was unreadable and has been reset", zap.Error(herr))
	}

	err = fn(cart.WithStore(ctx, store))
	if cerr := store.Close(ctx); cerr != nil && err == nil {
		err = sysError(fmt.Errorf("close cart: %w", cerr))
	}
	return err
}

// classify maps a store error to its exit code.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return err
	}
	if errors.Is(err, types.ErrInvalidItem) {
		return userError(err)
	}
	return sysError(err)
}

// commit waits until the snapshot produced by w is persisted, whatever the
// sync strategy, and classifies the outcome.
func commit(ctx context.Context, store *cart.Store, w *cart.Write) error {
	if !w.Mutated() {
		return classify(w.Err())
	}
	if err := store.Flush(ctx); err != nil {
		return classify(err)
	}
	return classify(w.Wait(ctx))
}

// printItems writes items as indented JSON or as a table.
func (a *app) printItems(out io.Writer, items []types.CartItem) error {
	if a.flags.jsonMode {
		return printJSON(out, items)
	}
	if len(items) == 0 {
		fmt.Fprintln(out, "Cart is empty")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tPRICE\tQTY\tSUBTOTAL")
	var total float64
	for _, it := range items {
		subtotal := it.Price * float64(it.Quantity)
		total += subtotal
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%d\t%.2f\n", it.ID, it.Title, it.Price, it.Quantity, subtotal)
	}
	fmt.Fprintf(tw, "\t\t\t\t%.2f\n", total)
	return tw.Flush()
}

// printItem writes a single cart line, or a short notice when the line is
// absent.
func (a *app) printItem(out io.Writer, id string, item types.CartItem, ok bool) error {
	if a.flags.jsonMode {
		if !ok {
			return printJSON(out, nil)
		}
		return printJSON(out, item)
	}
	if !ok {
		fmt.Fprintf(out, "%s is not in the cart\n", id)
		return nil
	}
	fmt.Fprintf(out, "%s %s x%d\n", item.ID, item.Title, item.Quantity)
	return nil
}

func printJSON(out io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return sysError(fmt.Errorf("marshal output: %w", err))
	}
	fmt.Fprintln(out, string(data))
	return nil
}
