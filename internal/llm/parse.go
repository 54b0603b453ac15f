package llm

import (
	"encoding/json"
	"strings"

	"github.com/dotcommander/recall/internal/models"
)

// stripJSONFence extracts a JSON object from free text that may be wrapped
// in a fenced code block or preceded by preamble, matching the parsing
// style the teacher uses for its own LLM-extracted JSON in
// internal/actions/session.go (trim fences, trim whitespace).
func stripJSONFence(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	// If there's still preamble before the first brace, cut it; same for
	// trailing prose after the last brace.
	if start := strings.IndexByte(s, '{'); start > 0 {
		s = s[start:]
	}
	if end := strings.LastIndexByte(s, '}'); end >= 0 && end < len(s)-1 {
		s = s[:end+1]
	}
	return strings.TrimSpace(s)
}

// ClampConfidence forces a confidence value into [0,1], treating values in
// (1,100] as percentages (§4.5).
func ClampConfidence(v float64) float64 {
	if v > 1 && v <= 100 {
		v /= 100
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// DetectionResult is the parsed, safety-clamped output of the rabbit-hole
// detector (§4.5).
type DetectionResult struct {
	IsRabbithole          bool     `json:"is_rabbithole"`
	Topic                 string   `json:"topic"`
	Depth                 int      `json:"depth"`
	RelatedToCurrentPoint bool     `json:"related_to_current_point"`
	RelatedRecallPointIDs []string `json:"related_recall_point_ids"`
	Confidence            float64  `json:"confidence"`
	Reasoning             string   `json:"reasoning"`
}

// ParseDetectionResult parses a detector response, defaulting to "not a
// rabbit hole" on any failure (§4.5: false positives are worse than
// silence). The raw text is preserved in Reasoning on parse failure so
// callers can distinguish a parse failure from a confident negative.
func ParseDetectionResult(raw string) DetectionResult {
	var loose struct {
		IsRabbithole          interface{}   `json:"is_rabbithole"`
		Topic                 interface{}   `json:"topic"`
		Depth                 interface{}   `json:"depth"`
		RelatedToCurrentPoint interface{}   `json:"related_to_current_point"`
		RelatedRecallPointIDs []interface{} `json:"related_recall_point_ids"`
		Confidence            interface{}   `json:"confidence"`
		Reasoning             interface{}   `json:"reasoning"`
	}

	cleaned := stripJSONFence(raw)
	if err := json.Unmarshal([]byte(cleaned), &loose); err != nil {
		return DetectionResult{IsRabbithole: false, Depth: 1, Reasoning: "parse failure: " + raw}
	}

	result := DetectionResult{
		IsRabbithole:          coerceBool(loose.IsRabbithole),
		Topic:                 coerceString(loose.Topic),
		Depth:                 normalizeDepth(coerceFloat(loose.Depth)),
		RelatedToCurrentPoint: coerceBool(loose.RelatedToCurrentPoint),
		RelatedRecallPointIDs: coerceStringSlice(loose.RelatedRecallPointIDs),
		Confidence:            ClampConfidence(coerceFloat(loose.Confidence)),
		Reasoning:             coerceString(loose.Reasoning),
	}
	return result
}

// ReturnResult is the parsed, safety-clamped output of return detection
// (§4.5).
type ReturnResult struct {
	HasReturned bool    `json:"has_returned"`
	Confidence  float64 `json:"confidence"`
	Reasoning   string  `json:"reasoning"`
}

// ParseReturnResult parses a return-detection response, defaulting to
// "has not returned" on any failure.
func ParseReturnResult(raw string) ReturnResult {
	var loose struct {
		HasReturned interface{} `json:"has_returned"`
		Confidence  interface{} `json:"confidence"`
		Reasoning   interface{} `json:"reasoning"`
	}

	cleaned := stripJSONFence(raw)
	if err := json.Unmarshal([]byte(cleaned), &loose); err != nil {
		return ReturnResult{HasReturned: false, Reasoning: "parse failure: " + raw}
	}

	return ReturnResult{
		HasReturned: coerceBool(loose.HasReturned),
		Confidence:  ClampConfidence(coerceFloat(loose.Confidence)),
		Reasoning:   coerceString(loose.Reasoning),
	}
}

// normalizeDepth clamps a raw depth value into {1,2,3} (§4.5).
func normalizeDepth(v float64) int {
	switch {
	case v >= 3:
		return 3
	case v >= 2:
		return 2
	default:
		return 1
	}
}

func coerceBool(v interface{}) bool {
	b, ok := v.(bool)
	return ok && b
}

func coerceString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func coerceFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	default:
		return 0
	}
}

// EvaluationResult is the parsed, safety-clamped output of the continuous
// evaluator for a single recall point (§4.3).
type EvaluationResult struct {
	Recalled        bool
	Confidence      float64
	Reasoning       string
	SuggestedRating models.FSRSRating
}

// ParseEvaluationResult parses an evaluator response, defaulting to
// "not recalled, zero confidence" on any failure — a parse failure must
// never be mistaken for a successful recall.
func ParseEvaluationResult(raw string) EvaluationResult {
	var loose struct {
		Recalled        interface{} `json:"recalled"`
		Confidence      interface{} `json:"confidence"`
		Reasoning       interface{} `json:"reasoning"`
		SuggestedRating interface{} `json:"suggested_rating"`
	}

	cleaned := stripJSONFence(raw)
	if err := json.Unmarshal([]byte(cleaned), &loose); err != nil {
		return EvaluationResult{Reasoning: "parse failure: " + raw}
	}

	return EvaluationResult{
		Recalled:        coerceBool(loose.Recalled),
		Confidence:       ClampConfidence(coerceFloat(loose.Confidence)),
		Reasoning:        coerceString(loose.Reasoning),
		SuggestedRating:  models.FSRSRating(coerceString(loose.SuggestedRating)),
	}
}

func coerceStringSlice(v []interface{}) []string {
	out := make([]string, 0, len(v))
	for _, item := range v {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
