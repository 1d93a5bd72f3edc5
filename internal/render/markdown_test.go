package render

import (
	"os"
	"strings"
	"testing"
	"time"

	"podcast-insights-go/internal/types"
)

func TestRenderWritesArtifact(t *testing.T) {
	m := NewMarkdown(t.TempDir())
	ep := types.Episode{
		ID:          42,
		Title:       "On Storage Engines",
		FeedTitle:   "Infra Weekly",
		PublishedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	out := types.AnalysisOutput{
		Summary:   "A deep dive into log-structured storage.",
		KeyPoints: []types.KeyPoint{{Title: "LSM trees", Detail: "write amplification tradeoffs"}},
		Keywords:  []types.Keyword{{Term: "compaction", Context: "background merging of sstables"}},
		Recap:     "Storage engines, from B-trees to LSM.",
	}

	path, err := m.Render(out, ep)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	body := string(data)
	for _, want := range []string{
		"# On Storage Engines",
		"*Infra Weekly* — 2026-03-01",
		"## Summary",
		"**LSM trees** — write amplification tradeoffs",
		"`compaction`: background merging of sstables",
		"## Recap",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("artifact missing %q", want)
		}
	}
}

func TestRenderOmitsEmptySections(t *testing.T) {
	m := NewMarkdown(t.TempDir())
	out := types.AnalysisOutput{Summary: "Summary unavailable.", Recap: "Recap unavailable."}

	path, err := m.Render(out, types.Episode{ID: 1, Title: "Sparse"})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	data, _ := os.ReadFile(path)
	body := string(data)
	if strings.Contains(body, "## Key Points") || strings.Contains(body, "## Keywords") {
		t.Fatalf("empty sections should be omitted:\n%s", body)
	}
}
