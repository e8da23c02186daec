package cli

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/gomarket/internal/cart"
	"github.com/mesh-intelligence/gomarket/pkg/types"
)

func newAddCmd(a *app) *cobra.Command {
	var p types.Product

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add one unit of a product to the cart",
		Long: `Add one unit of a product to the cart.

Adding a product that is already in the cart increments its quantity and
keeps the title, image and price it was first added with. A UUID is
generated when --id is omitted.

Example:
  cart add --id p1 --title Shirt --price 10
  cart add --title Mug --image-url https://img/mug.png --price 4.5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if p.ID == "" {
				id, err := uuid.NewV7()
				if err != nil {
					return sysError(fmt.Errorf("generate id: %w", err))
				}
				p.ID = id.String()
			}

			return a.withStore(cmd.Context(), func(ctx context.Context) error {
				store := cart.MustFromContext(ctx)
				if err := commit(ctx, store, store.AddToCart(p)); err != nil {
					return err
				}
				item, ok := store.Item(p.ID)
				return a.printItem(cmd.OutOrStdout(), p.ID, item, ok)
			})
		},
	}

	cmd.Flags().StringVar(&p.ID, "id", "", "product id (default: generated UUID)")
	cmd.Flags().StringVar(&p.Title, "title", "", "product title")
	cmd.Flags().StringVar(&p.ImageURL, "image-url", "", "product image URL")
	cmd.Flags().Float64Var(&p.Price, "price", 0, "unit price")
	return cmd
}

func newIncrementCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "increment <id>",
		Short: "Add one unit to a cart line",
		Long:  "Add one unit to the cart line for id. Unknown ids leave the cart unchanged.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.changeLine(cmd, args[0], (*cart.Store).Increment)
		},
	}
}

func newDecrementCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "decrement <id>",
		Short: "Remove one unit from a cart line",
		Long: `Remove one unit from the cart line for id.

A line never drops below one unit; decrementing it at one changes nothing.
Unknown ids leave the cart unchanged.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.changeLine(cmd, args[0], (*cart.Store).Decrement)
		},
	}
}

// changeLine applies op to the line for id and prints the resulting line.
func (a *app) changeLine(cmd *cobra.Command, id string, op func(*cart.Store, string) *cart.Write) error {
	return a.withStore(cmd.Context(), func(ctx context.Context) error {
		store := cart.MustFromContext(ctx)
		if err := commit(ctx, store, op(store, id)); err != nil {
			return err
		}
		item, ok := store.Item(id)
		return a.printItem(cmd.OutOrStdout(), id, item, ok)
	})
}

func newClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every line from the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(ctx context.Context) error {
				store := cart.MustFromContext(ctx)
				if err := commit(ctx, store, store.Clear()); err != nil {
					return err
				}
				if a.flags.jsonMode {
					return printJSON(cmd.OutOrStdout(), store.Products())
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Cart cleared")
				return nil
			})
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the cart lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(ctx context.Context) error {
				store := cart.MustFromContext(ctx)
				return a.printItems(cmd.OutOrStdout(), store.Products())
			})
		},
	}
}
