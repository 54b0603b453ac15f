package commands

import (
	"github.com/spf13/cobra"

	"github.com/dotcommander/recall/internal/output"
	"github.com/dotcommander/recall/internal/store"
)

// NewSessionsCmd lists every session recorded against a recall set.
func NewSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions <recall-set-id>",
		Short: "List sessions for a recall set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(db *DB) error {
				sessions, err := store.ListSessionsByRecallSet(cmd.Context(), db, args[0])
				if err != nil {
					return err
				}
				return output.PrintSuccess(sessions)
			})
		},
	}
	return cmd
}
