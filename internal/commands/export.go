package commands

import (
	"github.com/spf13/cobra"

	"github.com/dotcommander/recall/internal/models"
	"github.com/dotcommander/recall/internal/output"
	"github.com/dotcommander/recall/internal/store"
)

// NewExportCmd exports a full record of a session, a recall set (with all
// its points), or a recall set's per-session analytics, as JSON.
func NewExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export session, recall-set, or analytics data",
	}
	cmd.AddCommand(newExportSessionCmd())
	cmd.AddCommand(newExportSetCmd())
	cmd.AddCommand(newExportAnalyticsCmd())
	return cmd
}

func newExportSessionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "session <session-id>",
		Short: "Export a session's full transcript, outcomes, and metrics",
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
}

type recallSetExport struct {
	RecallSet *models.RecallSet      `json:"recall_set"`
	Points    []models.RecallPoint   `json:"points"`
}

func newExportSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <recall-set-id>",
		Short: "Export a recall set with all of its points",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(db *DB) error {
				ctx := cmd.Context()
				setID := args[0]

				set, err := store.GetRecallSet(ctx, db, setID)
				if err != nil {
					return err
				}
				points, err := store.ListRecallPointsByRecallSet(ctx, db, setID)
				if err != nil {
					return err
				}
				return output.PrintSuccess(recallSetExport{RecallSet: set, Points: points})
			})
		},
	}
}

type sessionAnalytics struct {
	Session *models.Session        `json:"session"`
	Metrics *models.SessionMetrics `json:"metrics,omitempty"`
}

func newExportAnalyticsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analytics <recall-set-id>",
		Short: "Export per-session analytics for a recall set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(db *DB) error {
				ctx := cmd.Context()
				setID := args[0]

				sessions, err := store.ListSessionsByRecallSet(ctx, db, setID)
				if err != nil {
					return err
				}

				out := make([]sessionAnalytics, 0, len(sessions))
				for _, s := range sessions {
					entry := sessionAnalytics{Session: s}
					if m, err := store.GetSessionMetrics(ctx, db, s.ID); err == nil {
						entry.Metrics = m
					} else if _, ok := err.(*store.NotFoundError); !ok {
						return err
					}
					out = append(out, entry)
				}
				return output.PrintSuccess(out)
			})
		},
	}
}
