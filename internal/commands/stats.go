package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/dotcommander/recall/internal/models"
	"github.com/dotcommander/recall/internal/output"
	"github.com/dotcommander/recall/internal/store"
)

type recallSetStats struct {
	RecallSetID      string  `json:"recall_set_id"`
	TotalPoints      int     `json:"total_points"`
	DuePoints        int     `json:"due_points"`
	SessionCount     int     `json:"session_count"`
	CompletedCount   int     `json:"completed_session_count"`
	AvgEngagement    float64 `json:"avg_engagement_score"`
	AvgRecallRate    float64 `json:"avg_recall_rate"`
	RabbitholeCount  int     `json:"rabbithole_count"`
}

// NewStatsCmd summarizes a recall set's point population and session
// history: how many facts exist, how many are due, and aggregate outcomes
// across every completed session.
func NewStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats <recall-set-id>",
		Short: "Show aggregate statistics for a recall set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(db *DB) error {
				ctx := cmd.Context()
				setID := args[0]

				points, err := store.ListRecallPointsByRecallSet(ctx, db, setID)
				if err != nil {
					return err
				}
				now := time.Now().UTC()
				due := 0
				for _, p := range points {
					if p.FSRS.IsDue(now) {
						due++
					}
				}

				sessions, err := store.ListSessionsByRecallSet(ctx, db, setID)
				if err != nil {
					return err
				}

				stats := recallSetStats{
					RecallSetID: setID,
					TotalPoints: len(points),
					DuePoints:   due,
				}
				var engagementTotal, recallRateTotal float64
				var metricsCount int
				for _, s := range sessions {
					stats.SessionCount++
					if s.Status != models.SessionStatusCompleted {
						continue
					}
					stats.CompletedCount++

					m, err := store.GetSessionMetrics(ctx, db, s.ID)
					if err != nil {
						if _, ok := err.(*store.NotFoundError); ok {
							continue
						}
						return err
					}
					metricsCount++
					engagementTotal += m.EngagementScore
					recallRateTotal += m.Recall.Rate
					stats.RabbitholeCount += m.Rabbithole.Count
				}
				if metricsCount > 0 {
					stats.AvgEngagement = engagementTotal / float64(metricsCount)
					stats.AvgRecallRate = recallRateTotal / float64(metricsCount)
				}

				return output.PrintSuccess(stats)
			})
		},
	}
	return cmd
}
