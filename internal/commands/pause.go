package commands

import (
	"github.com/spf13/cobra"

	"github.com/dotcommander/recall/internal/app"
	"github.com/dotcommander/recall/internal/output"
)

// NewPauseCmd pauses an in-progress session out-of-band, without an
// interactive loop: it rehydrates the session's runtime state via Resume,
// then immediately pauses it. Useful for scripted/automated session control.
func NewPauseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pause <session-id>",
		Short: "Pause an in-progress recall session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(db *DB) error {
				ctx := cmd.Context()
				eng := newEngine(db, app.EffectiveEngineSettings())
				session, err := eng.Resume(ctx, args[0])
				if err != nil {
					return err
				}
				if err := eng.Pause(ctx, session.ID); err != nil {
					return err
				}
				type resp struct {
					SessionID string `json:"session_id"`
					Status    string `json:"status"`
				}
				return output.PrintSuccess(resp{SessionID: session.ID, Status: "paused"})
			})
		},
	}
	return cmd
}
