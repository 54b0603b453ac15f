package engine

import "github.com/dotcommander/recall/internal/models"

// uncheckedPoints returns the target points not yet marked recalled,
// preserving target order (§4.3).
func uncheckedPoints(recalledIDs []string, targets []models.RecallPoint) []models.RecallPoint {
	recalled := make(map[string]bool, len(recalledIDs))
	for _, id := range recalledIDs {
		recalled[id] = true
	}
	out := make([]models.RecallPoint, 0, len(targets))
	for _, p := range targets {
		if !recalled[p.ID] {
			out = append(out, p)
		}
	}
	return out
}

// nextProbePoint starts at probeIndex and circularly scans targets for the
// first point not yet recalled; nil once every target point is recalled
// (§4.3). The probe index is only a hint — the evaluator may mark any point
// recalled regardless of which one is being probed.
func nextProbePoint(targets []models.RecallPoint, recalledIDs []string, probeIndex int) *models.RecallPoint {
	n := len(targets)
	if n == 0 {
		return nil
	}
	recalled := make(map[string]bool, len(recalledIDs))
	for _, id := range recalledIDs {
		recalled[id] = true
	}
	start := probeIndex % n
	if start < 0 {
		start = 0
	}
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if !recalled[targets[idx].ID] {
			p := targets[idx]
			return &p
		}
	}
	return nil
}
