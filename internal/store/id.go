package store

import (
	"fmt"

	"github.com/google/uuid"
)

// NewID creates a globally unique, human-scannable ID in the format
// {prefix}_{uuid}, e.g. "sess_3f1b6e2a-...". The prefix makes IDs
// self-describing in logs and CLI output; the UUID guarantees no collision
// across processes without a central counter.
func NewID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.NewString())
}
