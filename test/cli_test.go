// Package test provides integration tests that exercise the real recall
// binary against a temporary SQLite database, the way an operator would
// drive it from a shell.
package test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// recallTestBin is the path to the built recall binary for integration tests.
var (
	recallTestBin     string
	recallTestBinOnce sync.Once
	recallTestBinErr  error
)

// TestMain builds the recall binary once before running all tests in this package.
func TestMain(m *testing.M) {
	repoRoot, err := filepath.Abs(filepath.Join(filepath.Dir(os.Args[0]), "..", ".."))
	if err != nil {
		cwd, _ := os.Getwd()
		repoRoot = filepath.Join(cwd, "..")
	}

	cwd, _ := os.Getwd()
	if strings.HasSuffix(cwd, "/test") {
		repoRoot = filepath.Join(cwd, "..")
	} else if fi, err2 := os.Stat(filepath.Join(cwd, "cmd", "recall")); err2 == nil && fi.IsDir() {
		repoRoot = cwd
	}

	binPath := filepath.Join(repoRoot, "recall-integration-test")
	buildCmd := exec.Command("go", "build", "-o", binPath, "./cmd/recall")
	buildCmd.Dir = repoRoot
	buildCmd.Stdout = os.Stdout
	buildCmd.Stderr = os.Stderr

	if err := buildCmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to build recall binary: %v\n", err)
		os.Exit(1)
	}

	recallTestBin = binPath

	code := m.Run()

	_ = os.Remove(binPath)
	os.Exit(code)
}

// harness holds test-scoped state shared across helper functions.
type harness struct {
	t      *testing.T
	dbPath string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	return &harness{t: t, dbPath: filepath.Join(dir, "recall-test.db")}
}

// recall runs the recall binary with --db-path set, returns stdout.
func (h *harness) recall(args ...string) string {
	h.t.Helper()
	fullArgs := append([]string{"--db-path", h.dbPath}, args...)
	cmd := exec.Command(recallTestBin, fullArgs...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	_ = cmd.Run()
	return strings.TrimSpace(stdout.String())
}

func (h *harness) recallJSON(args ...string) map[string]any {
	h.t.Helper()
	raw := h.recall(args...)
	var m map[string]any
	require.NoError(h.t, json.Unmarshal([]byte(raw), &m), "output: %s", raw)
	return m
}

func (h *harness) writeSeedFile(yaml string) string {
	h.t.Helper()
	path := filepath.Join(h.t.TempDir(), "seed.yaml")
	require.NoError(h.t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

const sampleSeedYAML = `
recall_sets:
  - name: "Roman History"
    description: "Key facts about Rome"
    discussion_prompt: "Discuss the rise and fall of Rome."
    points:
      - content: "The Roman Republic was founded in 509 BC."
        context: "Founding"
      - content: "Julius Caesar was assassinated in 44 BC."
        context: "Fall of the Republic"
`

func TestSeedIsIdempotent(t *testing.T) {
	h := newHarness(t)
	seedPath := h.writeSeedFile(sampleSeedYAML)

	first := h.recallJSON("seed", seedPath)
	require.Equal(t, true, first["success"])
	data, ok := first["data"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, float64(1), data["RecallSetsCreated"])
	require.Equal(t, float64(2), data["PointsCreated"])

	second := h.recallJSON("seed", seedPath)
	require.Equal(t, true, second["success"])
	data2 := second["data"].(map[string]any)
	require.Equal(t, float64(1), data2["RecallSetsMatched"])
	require.Equal(t, float64(2), data2["PointsMatched"])
	require.Equal(t, float64(0), data2["RecallSetsCreated"])
	require.Equal(t, float64(0), data2["PointsCreated"])
}

func TestListAfterSeed(t *testing.T) {
	h := newHarness(t)
	seedPath := h.writeSeedFile(sampleSeedYAML)
	h.recallJSON("seed", seedPath)

	listed := h.recallJSON("list")
	require.Equal(t, true, listed["success"])
	sets, ok := listed["data"].([]any)
	require.True(t, ok)
	require.Len(t, sets, 1)

	set := sets[0].(map[string]any)
	require.Equal(t, "Roman History", set["name"])
	require.Equal(t, "active", set["status"])
}

func TestStatsOnFreshSet(t *testing.T) {
	h := newHarness(t)
	seedPath := h.writeSeedFile(sampleSeedYAML)
	h.recallJSON("seed", seedPath)

	listed := h.recallJSON("list")
	setID := listed["data"].([]any)[0].(map[string]any)["id"].(string)

	stats := h.recallJSON("stats", setID)
	require.Equal(t, true, stats["success"])
	data := stats["data"].(map[string]any)
	require.Equal(t, float64(2), data["total_points"])
	require.Equal(t, float64(2), data["due_points"])
	require.Equal(t, float64(0), data["session_count"])
}

func TestSessionsEmptyBeforeAnyStart(t *testing.T) {
	h := newHarness(t)
	seedPath := h.writeSeedFile(sampleSeedYAML)
	h.recallJSON("seed", seedPath)

	listed := h.recallJSON("list")
	setID := listed["data"].([]any)[0].(map[string]any)["id"].(string)

	sessions := h.recallJSON("sessions", setID)
	require.Equal(t, true, sessions["success"])
	sessionList, ok := sessions["data"].([]any)
	require.True(t, ok)
	require.Empty(t, sessionList)
}

func TestDBPathReported(t *testing.T) {
	h := newHarness(t)
	resp := h.recallJSON("db", "path")
	require.Equal(t, true, resp["success"])
	data := resp["data"].(map[string]any)
	require.Equal(t, h.dbPath, data["path"])
}

func TestUnknownSessionReplayFails(t *testing.T) {
	h := newHarness(t)
	resp := h.recallJSON("replay", "does-not-exist")
	require.Equal(t, false, resp["success"])
	require.NotEmpty(t, resp["error"])
}
