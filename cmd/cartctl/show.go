package main

import (
	"errors"

	"github.com/spf13/cobra"
)

func newShowCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			s, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, s.close()) }()
			return opts.print(cmd.OutOrStdout(), s.store.State())
		},
	}
}
