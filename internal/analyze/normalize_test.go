package analyze

import (
	"testing"
)

func TestNormalizeMissingArraysYieldPlaceholders(t *testing.T) {
	out := Normalize(`{"other": 1}`)
	if out.Summary != placeholderSummary {
		t.Fatalf("expected placeholder summary, got %q", out.Summary)
	}
	if out.Recap != placeholderRecap {
		t.Fatalf("expected placeholder recap, got %q", out.Recap)
	}
	if out.KeyPoints == nil || len(out.KeyPoints) != 0 {
		t.Fatalf("expected empty non-nil keyPoints, got %#v", out.KeyPoints)
	}
	if out.Keywords == nil || len(out.Keywords) != 0 {
		t.Fatalf("expected empty non-nil keywords, got %#v", out.Keywords)
	}
}

func TestNormalizeWellFormed(t *testing.T) {
	out := Normalize(`{
		"summary": "A talk about databases.",
		"keyPoints": [{"title": "Indexes", "detail": "Why they matter."}],
		"keywords": [{"term": "B-tree", "context": "index structure"}],
		"recap": "The hosts walked through storage engines."
	}`)
	if out.Summary != "A talk about databases." {
		t.Fatalf("summary: %q", out.Summary)
	}
	if len(out.KeyPoints) != 1 || out.KeyPoints[0].Title != "Indexes" {
		t.Fatalf("keyPoints: %#v", out.KeyPoints)
	}
	if len(out.Keywords) != 1 || out.Keywords[0].Term != "B-tree" {
		t.Fatalf("keywords: %#v", out.Keywords)
	}
	if out.Recap != "The hosts walked through storage engines." {
		t.Fatalf("recap: %q", out.Recap)
	}
}

func TestNormalizeStripsMarkdownFences(t *testing.T) {
	out := Normalize("```json\n{\"summary\": \"fenced\"}\n```")
	if out.Summary != "fenced" {
		t.Fatalf("expected fenced summary extracted, got %q", out.Summary)
	}
}

func TestNormalizeToleratesWrongShapes(t *testing.T) {
	out := Normalize(`{
		"summary": {"unexpected": "object"},
		"keyPoints": ["plain string point", {"title": "Real", "detail": "d"}, 42],
		"keywords": "not an array",
		"recap": "kept"
	}`)
	if out.Summary != placeholderSummary {
		t.Fatalf("object summary must fall back to placeholder, got %q", out.Summary)
	}
	if len(out.KeyPoints) != 2 {
		t.Fatalf("expected 2 salvaged key points, got %#v", out.KeyPoints)
	}
	if out.KeyPoints[0].Title != "plain string point" || out.KeyPoints[1].Title != "Real" {
		t.Fatalf("unexpected key points: %#v", out.KeyPoints)
	}
	if len(out.Keywords) != 0 {
		t.Fatalf("non-array keywords must become empty, got %#v", out.Keywords)
	}
	if out.Recap != "kept" {
		t.Fatalf("recap: %q", out.Recap)
	}
}

func TestNormalizeGarbageInput(t *testing.T) {
	for _, input := range []string{"", "no json here", "{broken", "[1,2,3]"} {
		out := Normalize(input)
		if out.Summary != placeholderSummary || out.KeyPoints == nil || out.Keywords == nil {
			t.Fatalf("input %q: expected full placeholder output, got %#v", input, out)
		}
	}
}

func TestNormalizeRecapFallsBackToSummary(t *testing.T) {
	out := Normalize(`{"summary": "only a summary"}`)
	if out.Recap != "only a summary" {
		t.Fatalf("expected recap to reuse summary, got %q", out.Recap)
	}
}
