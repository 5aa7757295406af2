package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/noah-isme/storefront/internal/cart"
)

func newAddCmd(opts *options) *cobra.Command {
	var (
		qty      int
		price    float64
		discount float64
		title    string
	)
	cmd := &cobra.Command{
		Use:   "add <productId>",
		Short: "Add a product, or more of it when it is already in the cart",
		Long: "Add looks the product up in --catalog. Passing --price adds an ad-hoc product instead.\n" +
			"A quantity below one adds a single unit.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.dispatch(cmd, func(ctx context.Context, _ cart.State) (cart.Action, error) {
				var p cart.Product
				if cmd.Flags().Changed("price") {
					p = cart.Product{ID: args[0], ProductPrice: price, ProductDiscount: discount}
					if title != "" {
						p.Attributes = cart.Attributes{"title": title}
					}
				} else {
					var err error
					if p, err = opts.resolve(ctx, args[0]); err != nil {
						return cart.Action{}, err
					}
				}
				return cart.Add(p, qty), nil
			})
		},
	}
	cmd.Flags().IntVarP(&qty, "qty", "q", 1, "quantity to add")
	cmd.Flags().Float64Var(&price, "price", 0, "list price for an ad-hoc product")
	cmd.Flags().Float64Var(&discount, "discount", 0, "discount percent for an ad-hoc product")
	cmd.Flags().StringVar(&title, "title", "", "title for an ad-hoc product")
	return cmd
}
