// Package render writes the per-episode analysis artifact.
package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"podcast-insights-go/internal/types"
)

// Markdown renders one .md report per episode into OutputDir and returns
// the written path.
type Markdown struct {
	OutputDir string
}

func NewMarkdown(outputDir string) *Markdown {
	return &Markdown{OutputDir: outputDir}
}

func (m *Markdown) Render(out types.AnalysisOutput, ep types.Episode) (string, error) {
	if err := os.MkdirAll(m.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", ep.Title)
	if ep.FeedTitle != "" {
		fmt.Fprintf(&b, "*%s*", ep.FeedTitle)
		if !ep.PublishedAt.IsZero() {
			fmt.Fprintf(&b, " — %s", ep.PublishedAt.Format("2006-01-02"))
		}
		b.WriteString("\n\n")
	}

	b.WriteString("## Summary\n\n")
	b.WriteString(out.Summary)
	b.WriteString("\n\n")

	if len(out.KeyPoints) > 0 {
		b.WriteString("## Key Points\n\n")
		for _, kp := range out.KeyPoints {
			if kp.Detail != "" {
				fmt.Fprintf(&b, "- **%s** — %s\n", kp.Title, kp.Detail)
			} else {
				fmt.Fprintf(&b, "- **%s**\n", kp.Title)
			}
		}
		b.WriteString("\n")
	}

	if len(out.Keywords) > 0 {
		b.WriteString("## Keywords\n\n")
		for _, kw := range out.Keywords {
			if kw.Context != "" {
				fmt.Fprintf(&b, "- `%s`: %s\n", kw.Term, kw.Context)
			} else {
				fmt.Fprintf(&b, "- `%s`\n", kw.Term)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("## Recap\n\n")
	b.WriteString(out.Recap)
	b.WriteString("\n")

	// Timestamped name so a reprocessed episode never reuses its old file.
	name := fmt.Sprintf("episode-%d-%s.md", ep.ID, time.Now().UTC().Format("20060102T150405"))
	path := filepath.Join(m.OutputDir, name)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return path, nil
}
