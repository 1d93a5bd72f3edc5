package analyze

import (
	"encoding/json"
	"strings"

	"podcast-insights-go/internal/types"
)

const (
	placeholderSummary = "Summary unavailable."
	placeholderRecap   = "Recap unavailable."
)

// Normalize turns raw model output into an AnalysisOutput. It never fails:
// the balanced JSON object is extracted from the content (markdown fences
// stripped), and every field that does not match the expected shape falls
// back to a placeholder or an empty, non-nil slice.
func Normalize(content string) types.AnalysisOutput {
	out := types.AnalysisOutput{
		Summary:   placeholderSummary,
		KeyPoints: []types.KeyPoint{},
		Keywords:  []types.Keyword{},
		Recap:     placeholderRecap,
	}

	raw := extractJSON(content)
	if raw == "" {
		return out
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return out
	}

	if s, ok := decodeString(fields["summary"]); ok {
		out.Summary = s
	}
	if s, ok := decodeString(fields["recap"]); ok {
		out.Recap = s
	} else if out.Summary != placeholderSummary {
		out.Recap = out.Summary
	}
	out.KeyPoints = decodeKeyPoints(fields["keyPoints"])
	out.Keywords = decodeKeywords(fields["keywords"])
	return out
}

func decodeString(raw json.RawMessage) (string, bool) {
	if raw == nil {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

func decodeKeyPoints(raw json.RawMessage) []types.KeyPoint {
	points := []types.KeyPoint{}
	if raw == nil {
		return points
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return points
	}
	for _, item := range items {
		var kp types.KeyPoint
		if err := json.Unmarshal(item, &kp); err == nil && kp.Title != "" {
			points = append(points, kp)
			continue
		}
		// Models sometimes emit bare strings instead of objects.
		if s, ok := decodeString(item); ok {
			points = append(points, types.KeyPoint{Title: s})
		}
	}
	return points
}

func decodeKeywords(raw json.RawMessage) []types.Keyword {
	words := []types.Keyword{}
	if raw == nil {
		return words
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return words
	}
	for _, item := range items {
		var kw types.Keyword
		if err := json.Unmarshal(item, &kw); err == nil && kw.Term != "" {
			words = append(words, kw)
			continue
		}
		if s, ok := decodeString(item); ok {
			words = append(words, types.Keyword{Term: s})
		}
	}
	return words
}

// extractJSON finds the first balanced JSON object in a string and returns it.
// It strips common markdown fences first.
func extractJSON(s string) string {
	if s == "" {
		return ""
	}

	s = strings.ReplaceAll(s, "\r\n", "\n")

	// Remove markdown fences (commonly output by LLMs)
	for _, r := range []string{"```json", "```yaml", "```text", "```", "`json", "`"} {
		s = strings.ReplaceAll(s, r, "")
	}

	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return strings.TrimSpace(s[start : i+1])
			}
		}
	}
	return ""
}
