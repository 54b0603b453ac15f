package demo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const seedYAML = `
recall_sets:
  - name: "Roman History"
    description: "Key facts about the Roman Republic and Empire"
    discussion_prompt: "Discuss the rise and fall of Rome."
    points:
      - content: "The Roman Republic was founded in 509 BC after the overthrow of the last king."
        context: "Founding"
      - content: "Julius Caesar was assassinated on the Ides of March, 44 BC."
        context: "Fall of the Republic"
      - content: "The Western Roman Empire fell in 476 AD."
        context: "Fall of the Empire"
`

func stepDBPath(r *Runner, ctx *DemoContext) error {
	m, raw, err := r.recall("db", "path")
	if err != nil {
		return err
	}
	if err := r.mustSuccess(m, raw); err != nil {
		return err
	}
	r.printDetail("db path: %s", getStr(m, "data", "path"))
	return nil
}

func stepWriteSeedFile(r *Runner, ctx *DemoContext) error {
	dir, err := os.MkdirTemp("", "recall-demo-seed-*")
	if err != nil {
		return err
	}
	path := filepath.Join(dir, "seed.yaml")
	if err := os.WriteFile(path, []byte(seedYAML), 0o644); err != nil {
		return err
	}
	ctx.SeedPath = path
	r.printDetail("wrote seed file: %s", path)
	return nil
}

func stepSeedLoad(r *Runner, ctx *DemoContext) error {
	m, raw, err := r.recall("seed", ctx.SeedPath)
	if err != nil {
		return err
	}
	if err := r.mustSuccess(m, raw); err != nil {
		return err
	}
	r.printDetail("seed result: %s", raw)
	return nil
}

func stepListRecallSets(r *Runner, ctx *DemoContext) error {
	m, raw, err := r.recall("list")
	if err != nil {
		return err
	}
	if err := r.mustSuccess(m, raw); err != nil {
		return err
	}
	sets, _ := m["data"].([]any)
	for _, s := range sets {
		set, ok := s.(map[string]any)
		if !ok {
			continue
		}
		if name, _ := set["name"].(string); name == "Roman History" {
			ctx.RecallSetID, _ = set["id"].(string)
		}
	}
	if ctx.RecallSetID == "" {
		return fmt.Errorf("seeded recall set not found in list output")
	}
	r.printDetail("recall set id: %s", ctx.RecallSetID)
	return nil
}

// stepStartAndPause starts a session and drives one turn through the
// interactive REPL before pausing. The scripted reply is generic on purpose:
// the continuous evaluator, not this script, decides what counts as
// recalled. Running this step for real requires a configured LLM provider
// (ANTHROPIC_API_KEY or OPENAI_API_KEY, or a local CLI tool per §4.10).
func stepStartAndPause(r *Runner, ctx *DemoContext) error {
	stdin := "The Republic was founded in 509 BC, after the kings were overthrown.\n/pause\n"
	out, err := r.recallWithStdin(stdin, "start", ctx.RecallSetID)
	if err != nil {
		return fmt.Errorf("start: %w (output: %s)", err, out)
	}
	sessionID, ok := firstToken(out, "session ")
	if !ok {
		return fmt.Errorf("could not find session id in output: %s", out)
	}
	ctx.SessionID = sessionID
	if !strings.Contains(out, "paused") {
		return fmt.Errorf("expected pause confirmation in output: %s", out)
	}
	r.printDetail("session id: %s", ctx.SessionID)
	return nil
}

func stepResumeAndComplete(r *Runner, ctx *DemoContext) error {
	stdin := "Caesar was killed on the Ides of March, 44 BC.\n" +
		"The Western Empire collapsed in 476 AD.\n"
	out, err := r.recallWithStdin(stdin, "resume", ctx.SessionID)
	if err != nil {
		return fmt.Errorf("resume: %w (output: %s)", err, out)
	}
	if !strings.Contains(out, "session complete") {
		return fmt.Errorf("expected completion in output: %s", out)
	}
	r.printDetail("session %s completed", ctx.SessionID)
	return nil
}

func stepSetStats(r *Runner, ctx *DemoContext) error {
	m, raw, err := r.recall("stats", ctx.RecallSetID)
	if err != nil {
		return err
	}
	if err := r.mustSuccess(m, raw); err != nil {
		return err
	}
	r.printDetail("stats: %s", raw)
	return nil
}

func stepListSessions(r *Runner, ctx *DemoContext) error {
	m, raw, err := r.recall("sessions", ctx.RecallSetID)
	if err != nil {
		return err
	}
	return r.mustSuccess(m, raw)
}

func stepReplaySession(r *Runner, ctx *DemoContext) error {
	m, raw, err := r.recall("replay", ctx.SessionID)
	if err != nil {
		return err
	}
	return r.mustSuccess(m, raw)
}

func stepExportSet(r *Runner, ctx *DemoContext) error {
	m, raw, err := r.recall("export", "set", ctx.RecallSetID)
	if err != nil {
		return err
	}
	return r.mustSuccess(m, raw)
}

func stepExportAnalytics(r *Runner, ctx *DemoContext) error {
	m, raw, err := r.recall("export", "analytics", ctx.RecallSetID)
	if err != nil {
		return err
	}
	return r.mustSuccess(m, raw)
}

// firstToken extracts the token immediately following prefix on the first
// line of s that contains it (used to pull the session ID out of `start`'s
// plain-text banner line "session <id>").
func firstToken(s, prefix string) (string, bool) {
	idx := strings.Index(s, prefix)
	if idx < 0 {
		return "", false
	}
	rest := s[idx+len(prefix):]
	end := strings.IndexAny(rest, "\n ")
	if end < 0 {
		end = len(rest)
	}
	return strings.TrimSpace(rest[:end]), true
}
