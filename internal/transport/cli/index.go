package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newIndexCmd(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage the vector index",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "ensure",
		Short: "Create the configured index if missing and wait until it is ready",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Opening the services ensures the index.
			return withServices(cmd, open, func(_ context.Context, s *Services) error {
				fmt.Fprintf(cmd.OutOrStdout(), "index %s ready (dimension %d)\n", s.Index.Name(), s.Index.Dimension())
				return nil
			})
		},
	})
	return cmd
}
