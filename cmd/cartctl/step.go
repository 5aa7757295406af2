package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/noah-isme/storefront/internal/cart"
)

func newIncCmd(opts *options) *cobra.Command {
	return newStepCmd(opts, "inc", "Add one unit to a line", cart.Increase)
}

func newDecCmd(opts *options) *cobra.Command {
	return newStepCmd(opts, "dec", "Take one unit from a line; the last unit removes it", cart.Decrease)
}

func newStepCmd(opts *options, use, short string, build func(string) cart.Action) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <productId>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.dispatch(cmd, func(_ context.Context, s cart.State) (cart.Action, error) {
				if err := requireLine(s, args[0]); err != nil {
					return cart.Action{}, err
				}
				return build(args[0]), nil
			})
		},
	}
}
