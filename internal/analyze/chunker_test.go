package analyze

import (
	"strings"
	"testing"
)

func TestSplitRoundTrip(t *testing.T) {
	cases := []struct {
		name   string
		text   string
		budget int
	}{
		{"short", "a short transcript", 8000},
		{"exact budget", strings.Repeat("x", 8000), 8000},
		{"long plain", strings.Repeat("x", 50000), 8000},
		{"long with newlines", strings.Repeat("some spoken line here\n", 3000), 8000},
		{"long with sentences", strings.Repeat("One thought ends here. ", 2500), 8000},
		{"cjk", strings.Repeat("这是一个很长的句子。", 2000), 8000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chunks := Split(tc.text, tc.budget)
			if got := strings.Join(chunks, ""); got != tc.text {
				t.Fatalf("concatenated chunks do not reconstruct input (len %d vs %d)", len(got), len(tc.text))
			}
			for i, c := range chunks {
				if len(c) > tc.budget {
					t.Fatalf("chunk %d exceeds budget: %d > %d", i, len(c), tc.budget)
				}
			}
		})
	}
}

func TestSplitChunkCountForPlainText(t *testing.T) {
	// No semantic boundaries at all: every cut lands on the raw budget, so
	// the count is ceil(len/budget).
	chunks := Split(strings.Repeat("x", 50000), 8000)
	if len(chunks) != 7 {
		t.Fatalf("expected 7 chunks for 50000 chars at budget 8000, got %d", len(chunks))
	}
}

func TestSplitPrefersNewlineBoundary(t *testing.T) {
	budget := 1000
	// One newline at offset 850 (inside the last 30% of the budget).
	text := strings.Repeat("a", 850) + "\n" + strings.Repeat("b", 600)
	chunks := Split(text, budget)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != 851 {
		t.Fatalf("expected boundary at the newline (chunk len 851), got %d", len(chunks[0]))
	}
	if !strings.HasSuffix(chunks[0], "\n") {
		t.Fatal("first chunk should end at the newline")
	}
}

func TestSplitFallsBackToSentenceBoundary(t *testing.T) {
	budget := 1000
	text := strings.Repeat("a", 899) + "." + strings.Repeat("b", 600)
	chunks := Split(text, budget)
	if len(chunks[0]) != 900 {
		t.Fatalf("expected boundary after the period (chunk len 900), got %d", len(chunks[0]))
	}
}

func TestSplitIgnoresEarlyBoundaries(t *testing.T) {
	budget := 1000
	// A newline before 70% of the budget must not shorten the chunk.
	text := strings.Repeat("a", 300) + "\n" + strings.Repeat("b", 1500)
	chunks := Split(text, budget)
	if len(chunks[0]) != budget {
		t.Fatalf("expected hard cut at budget, got chunk of %d", len(chunks[0]))
	}
}

func TestSplitNeverBreaksRunes(t *testing.T) {
	text := strings.Repeat("あ", 5000) // 3 bytes each, budget not a multiple
	chunks := Split(text, 1000)
	for i, c := range chunks {
		if !utf8ValidString(c) {
			t.Fatalf("chunk %d contains a broken rune", i)
		}
	}
	if strings.Join(chunks, "") != text {
		t.Fatal("round trip failed")
	}
}

func TestSplitAdvancesWhenBudgetSmallerThanRune(t *testing.T) {
	// A budget narrower than one multi-byte rune must still make progress:
	// each chunk carries one whole rune instead of looping on empty cuts.
	text := strings.Repeat("あ", 5) // 3 bytes each
	chunks := Split(text, 2)
	if len(chunks) != 5 {
		t.Fatalf("expected one rune per chunk, got %d chunks", len(chunks))
	}
	for i, c := range chunks {
		if c != "あ" {
			t.Fatalf("chunk %d is %q, want a single rune", i, c)
		}
	}
	if strings.Join(chunks, "") != text {
		t.Fatal("round trip failed")
	}
}

func utf8ValidString(s string) bool {
	for _, r := range s {
		if r == '�' {
			return false
		}
	}
	return true
}
