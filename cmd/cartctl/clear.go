package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/noah-isme/storefront/internal/cart"
)

func newClearCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.dispatch(cmd, func(context.Context, cart.State) (cart.Action, error) {
				return cart.Clear(), nil
			})
		},
	}
}
