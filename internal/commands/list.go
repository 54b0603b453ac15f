package commands

import (
	"github.com/spf13/cobra"

	"github.com/dotcommander/recall/internal/output"
	"github.com/dotcommander/recall/internal/store"
)

// NewListCmd lists every recall set.
func NewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recall sets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(db *DB) error {
				sets, err := store.ListRecallSets(cmd.Context(), db)
				if err != nil {
					return err
				}
				return output.PrintSuccess(sets)
			})
		},
	}
	return cmd
}
