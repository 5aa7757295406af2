package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noah-isme/storefront/internal/storage"
)

func newWatchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print the cart again whenever another process changes it",
		Long:  "Watch follows the file backend and reloads the cart on every external write, until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			if opts.backend != backendFile {
				return fmt.Errorf("watch needs the file backend")
			}
			s, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, s.close()) }()

			f, ok := s.backend.(*storage.File)
			if !ok {
				return fmt.Errorf("watch needs the file backend")
			}
			out := cmd.OutOrStdout()
			if err := opts.print(out, s.store.State()); err != nil {
				return err
			}
			return f.Watch(cmd.Context(), s.store.Key(), func(data []byte) {
				state := s.store.Reload(data)
				opts.logger.Debug().Int("lines", len(state.Items)).Msg("cart changed on disk")
				fmt.Fprintln(out, "---")
				_ = opts.print(out, state)
			})
		},
	}
}
