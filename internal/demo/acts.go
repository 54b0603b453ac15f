package demo

// DemoContext holds shared state passed between steps.
type DemoContext struct {
	SeedPath    string
	RecallSetID string
	SessionID   string
}

// StepFunc is a function that runs a single demo step.
type StepFunc func(r *Runner, ctx *DemoContext) error

// Step represents a single named step within an act.
type Step struct {
	Name    string
	Fn      StepFunc
	Insight string
}

// Act represents a named act with narration and steps.
type Act struct {
	Number    int
	Name      string
	Narration []string
	Steps     []Step
}

// BuildActs returns all acts with their steps.
func BuildActs() []Act {
	return []Act{
		{
			Number: 1,
			Name:   "Seeding The World",
			Narration: []string{
				"Before anyone can study, the engine needs a recall set and its points.",
				"The seed loader reads a YAML document and writes through the same",
				"repository functions the engine itself uses at runtime.",
			},
			Steps: []Step{
				{Name: "db_path", Fn: stepDBPath, Insight: "The very first command in any environment: confirm where the SQLite file lives."},
				{Name: "write_seed_file", Fn: stepWriteSeedFile, Insight: "A small recall set about Roman history, three facts, ready to be loaded."},
				{Name: "seed_load", Fn: stepSeedLoad, Insight: "Idempotent: running this file again would match the existing set and points instead of duplicating them."},
				{Name: "list_recall_sets", Fn: stepListRecallSets, Insight: "The seeded set now shows up for session start."},
			},
		},
		{
			Number: 2,
			Name:   "Studying A Session",
			Narration: []string{
				"A learner starts a session. The engine picks due points, opens with a",
				"probe, and evaluates every reply continuously against the checklist.",
			},
			Steps: []Step{
				{Name: "start_and_pause", Fn: stepStartAndPause, Insight: "One point recalled, then the learner pauses mid-session — progress is preserved, not lost."},
			},
		},
		{
			Number: 3,
			Name:   "Resuming And Finishing",
			Narration: []string{
				"A new process resumes the paused session. The conversation and",
				"checklist rehydrate from storage exactly where they left off.",
			},
			Steps: []Step{
				{Name: "resume_and_complete", Fn: stepResumeAndComplete, Insight: "The remaining points are recalled and the session completes on its own, metrics computed at finalize."},
			},
		},
		{
			Number: 4,
			Name:   "Auditing The Record",
			Narration: []string{
				"Everything the engine persisted is queryable after the fact:",
				"aggregate stats, per-set session history, full transcripts, and exports.",
			},
			Steps: []Step{
				{Name: "set_stats", Fn: stepSetStats, Insight: "Total points, how many are due again, and aggregate recall rate across completed sessions."},
				{Name: "list_sessions", Fn: stepListSessions, Insight: "Every session this recall set has ever run, newest first."},
				{Name: "replay_session", Fn: stepReplaySession, Insight: "The exact message-by-message transcript, outcomes, and metrics for one session."},
				{Name: "export_set", Fn: stepExportSet, Insight: "The recall set and its full point population, ready to hand to another tool."},
				{Name: "export_analytics", Fn: stepExportAnalytics, Insight: "Per-session metrics for the whole set, the shape a dashboard would consume."},
			},
		},
	}
}
