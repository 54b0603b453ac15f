package commands

import (
	"github.com/spf13/cobra"

	"github.com/dotcommander/recall/internal/output"
	"github.com/dotcommander/recall/internal/seed"
)

// NewSeedCmd loads a YAML seed file of recall sets/points into the database.
func NewSeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed <file>",
		Short: "Load recall sets and points from a YAML seed file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(db *DB) error {
				res, err := seed.LoadFile(cmd.Context(), db, args[0])
				if err != nil {
					return err
				}
				return output.PrintSuccess(res)
			})
		},
	}
	return cmd
}
