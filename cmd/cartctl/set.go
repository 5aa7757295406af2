package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/noah-isme/storefront/internal/cart"
)

func newSetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "set <productId> <qty>",
		Short: "Set the quantity of a line; zero removes it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := strconv.Atoi(args[1])
			if err != nil || qty < 0 {
				return fmt.Errorf("invalid quantity %q", args[1])
			}
			return opts.dispatch(cmd, func(_ context.Context, s cart.State) (cart.Action, error) {
				if err := requireLine(s, args[0]); err != nil {
					return cart.Action{}, err
				}
				return cart.SetQuantity(args[0], qty), nil
			})
		},
	}
}
