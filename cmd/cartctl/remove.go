package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/noah-isme/storefront/internal/cart"
)

func newRemoveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <productId>",
		Aliases: []string{"rm"},
		Short:   "Remove a line from the cart",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.dispatch(cmd, func(_ context.Context, s cart.State) (cart.Action, error) {
				if err := requireLine(s, args[0]); err != nil {
					return cart.Action{}, err
				}
				return cart.Remove(args[0]), nil
			})
		},
	}
}
