package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dotcommander/recall/internal/app"
	"github.com/dotcommander/recall/internal/engine"
	"github.com/dotcommander/recall/internal/models"
)

// NewStartCmd starts a new (or resumes a resumable) recall session and drives
// it interactively over stdin/stdout until the learner pauses, abandons, or
// completes every target point.
func NewStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <recall-set-id>",
		Short: "Start a recall session over a recall set's due points",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(db *DB) error {
				return runInteractiveSession(cmd, db, args[0], true)
			})
		},
	}
	return cmd
}

// NewResumeCmd resumes a specific in-progress or paused session.
func NewResumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume <session-id>",
		Short: "Resume a paused or in-progress recall session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(db *DB) error {
				return runInteractiveSession(cmd, db, args[0], false)
			})
		},
	}
	return cmd
}

// runInteractiveSession wires up the engine, starts or resumes the session,
// and drives a plain-text REPL until the learner types /pause, /abandon, or
// the session completes on its own. byRecallSet selects Start (id is a
// recall set) vs Resume (id is a session).
func runInteractiveSession(cmd *cobra.Command, db *DB, id string, byRecallSet bool) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	eng := newEngine(db, app.EffectiveEngineSettings())
	out := cmd.OutOrStdout()

	var completed bool
	eng.SetListener(func(ev engine.SessionEvent) {
		if ev.Type == engine.EventSessionCompleteCard {
			completed = true
		}
	})

	var (
		session *models.Session
		err     error
	)
	if byRecallSet {
		session, err = eng.Start(ctx, id)
	} else {
		session, err = eng.Resume(ctx, id)
	}
	if err != nil {
		return err
	}

	opening, err := eng.OpeningMessage(ctx, session.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "session %s\n\n%s\n", session.ID, opening)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(out, "\n> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch line {
		case "/pause", "/exit", "/quit":
			if err := eng.Pause(ctx, session.ID); err != nil {
				return err
			}
			fmt.Fprintln(out, "session paused; resume with `recall resume "+session.ID+"`")
			return nil
		case "/abandon":
			if err := eng.Abandon(ctx, session.ID); err != nil {
				return err
			}
			fmt.Fprintln(out, "session abandoned")
			return nil
		case "/rabbithole":
			snap, err := eng.Snapshot(session.ID)
			if err != nil {
				return err
			}
			if snap.PendingRabbitholeID == "" {
				fmt.Fprintln(out, "no tangent is currently pending")
				continue
			}
			opening, err := eng.EnterRabbithole(ctx, session.ID, snap.PendingRabbitholeName, snap.PendingRabbitholeID)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\nfollowing the tangent on %q\n\n%s\n", snap.PendingRabbitholeName, opening)
			continue
		case "/decline":
			if err := eng.DeclineRabbithole(ctx, session.ID); err != nil {
				return err
			}
			fmt.Fprintln(out, "staying on track")
			continue
		case "/return":
			if err := eng.ExitRabbithole(ctx, session.ID); err != nil {
				return err
			}
			fmt.Fprintln(out, "back to the recall session")
			continue
		}

		res, err := eng.ProcessUserMessage(ctx, session.ID, line)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%s\n", res.ResponseText)
		if snap, err := eng.Snapshot(session.ID); err == nil && snap.PendingRabbitholeID != "" {
			fmt.Fprintf(out, "\n(a tangent on %q was detected — /rabbithole to follow it, /decline to stay on track)\n", snap.PendingRabbitholeName)
		}
		if completed {
			metrics, err := eng.LeaveSession(ctx, session.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\nsession complete: %d/%d points recalled, engagement score %.1f\n",
				metrics.Recall.Successful, res.TotalPoints, metrics.EngagementScore)
			return nil
		}
	}
	return scanner.Err()
}
