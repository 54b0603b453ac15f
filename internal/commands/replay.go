package commands

import (
	"github.com/spf13/cobra"

	"github.com/dotcommander/recall/internal/models"
	"github.com/dotcommander/recall/internal/output"
	"github.com/dotcommander/recall/internal/store"
)

type replayTranscript struct {
	Session     *models.Session              `json:"session"`
	Messages    []models.SessionMessage      `json:"messages"`
	Outcomes    []models.RecallOutcome       `json:"outcomes"`
	Rabbitholes []models.RabbitholeEvent     `json:"rabbitholes"`
	Metrics     *models.SessionMetrics       `json:"metrics,omitempty"`
}

// NewReplayCmd reconstructs the full recorded transcript of a session: its
// messages in order, every recall outcome, and every rabbit-hole event
// (including their nested conversations), for offline review or debugging.
func NewReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <session-id>",
		Short: "Replay a session's recorded transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(db *DB) error {
				ctx := cmd.Context()
				sessionID := args[0]

				session, err := store.GetSession(ctx, db, sessionID)
				if err != nil {
					return err
				}
				messages, err := store.ListSessionMessages(ctx, db, sessionID)
				if err != nil {
					return err
				}
				outcomes, err := store.ListRecallOutcomes(ctx, db, sessionID)
				if err != nil {
					return err
				}
				holes, err := store.ListRabbitholeEvents(ctx, db, sessionID)
				if err != nil {
					return err
				}

				transcript := replayTranscript{
					Session:     session,
					Messages:    messages,
					Outcomes:    outcomes,
					Rabbitholes: holes,
				}

				if metrics, err := store.GetSessionMetrics(ctx, db, sessionID); err == nil {
					transcript.Metrics = metrics
				} else if _, ok := err.(*store.NotFoundError); !ok {
					return err
				}

				return output.PrintSuccess(transcript)
			})
		},
	}
	return cmd
}
