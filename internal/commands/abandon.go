package commands

import (
	"github.com/spf13/cobra"

	"github.com/dotcommander/recall/internal/app"
	"github.com/dotcommander/recall/internal/output"
)

// NewAbandonCmd abandons a session out-of-band, rehydrating its runtime
// state via Resume just long enough to close out any active rabbit hole and
// mark the session abandoned.
func NewAbandonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "abandon <session-id>",
		Short: "Abandon a recall session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(db *DB) error {
				ctx := cmd.Context()
				eng := newEngine(db, app.EffectiveEngineSettings())
				session, err := eng.Resume(ctx, args[0])
				if err != nil {
					return err
				}
				if err := eng.Abandon(ctx, session.ID); err != nil {
					return err
				}
				type resp struct {
					SessionID string `json:"session_id"`
					Status    string `json:"status"`
				}
				return output.PrintSuccess(resp{SessionID: session.ID, Status: "abandoned"})
			})
		},
	}
	return cmd
}
