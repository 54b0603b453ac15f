// Package seed loads recall sets and recall points from a YAML document
// into the store, through the same repository functions the engine itself
// uses (§4.11) — it never touches SQL directly.
package seed

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dotcommander/recall/internal/fsrs"
	"github.com/dotcommander/recall/internal/models"
	"github.com/dotcommander/recall/internal/store"
)

// Document is the top-level shape of a seed YAML file.
type Document struct {
	RecallSets []RecallSetSpec `yaml:"recall_sets"`
}

// RecallSetSpec describes one recall set and its points.
type RecallSetSpec struct {
	Name             string       `yaml:"name"`
	Description      string       `yaml:"description"`
	DiscussionPrompt string       `yaml:"discussion_prompt"`
	Points           []PointSpec  `yaml:"points"`
}

// PointSpec describes one recall point within a set.
type PointSpec struct {
	Content string `yaml:"content"`
	Context string `yaml:"context"`
}

// Result summarizes what a Load call did, for reporting back to the caller.
type Result struct {
	RecallSetsCreated int
	RecallSetsMatched int
	PointsCreated     int
	PointsMatched     int
}

// LoadFile reads and applies a seed YAML file at path.
func LoadFile(ctx context.Context, db *sql.DB, path string) (*Result, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("seed: read %s: %w", path, err)
	}

	var doc Document
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("seed: parse %s: %w", path, err)
	}

	return Load(ctx, db, doc)
}

// Load applies an already-parsed seed document. Re-running the same
// document is idempotent: a recall set is matched by name, and a point is
// matched by (recall_set_id, content) via store.EnsureRecallPoint.
func Load(ctx context.Context, db *sql.DB, doc Document) (*Result, error) {
	res := &Result{}

	existing, err := store.ListRecallSets(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("seed: list existing recall sets: %w", err)
	}
	byName := make(map[string]*models.RecallSet, len(existing))
	for _, s := range existing {
		byName[s.Name] = s
	}

	now := time.Now().UTC()

	for _, spec := range doc.RecallSets {
		set, ok := byName[spec.Name]
		if ok {
			res.RecallSetsMatched++
		} else {
			created, err := store.CreateRecallSet(ctx, db, spec.Name, spec.Description, spec.DiscussionPrompt)
			if err != nil {
				return nil, fmt.Errorf("seed: create recall set %q: %w", spec.Name, err)
			}
			set = created
			byName[set.Name] = set
			res.RecallSetsCreated++
		}

		for _, p := range spec.Points {
			initial := fsrs.CreateInitialState(now)
			_, created, err := store.EnsureRecallPoint(ctx, db, set.ID, p.Content, p.Context, initial)
			if err != nil {
				return nil, fmt.Errorf("seed: ensure point %q in %q: %w", p.Content, spec.Name, err)
			}
			if created {
				res.PointsCreated++
			} else {
				res.PointsMatched++
			}
		}
	}

	return res, nil
}
