package analyze

import (
	"strings"
	"unicode/utf8"
)

// sentence terminators recognized at chunk boundaries, Latin and CJK.
const sentenceEnds = ".!?。！？…"

// boundaryFloor is the share of the budget a chunk must fill before a
// semantic boundary is accepted.
const boundaryFloor = 0.7

// Split cuts text into chunks of at most budget bytes, preferring the last
// newline in the final 30% of the window, then the last sentence terminator
// there, and only cutting mid-sentence as a last resort. Concatenating the
// returned chunks reproduces text exactly.
func Split(text string, budget int) []string {
	if budget <= 0 || len(text) <= budget {
		return []string{text}
	}

	var chunks []string
	rest := text
	for len(rest) > budget {
		cut := cutPoint(rest, budget)
		chunks = append(chunks, rest[:cut])
		rest = rest[cut:]
	}
	if len(rest) > 0 {
		chunks = append(chunks, rest)
	}
	return chunks
}

func cutPoint(s string, budget int) int {
	end := runeAligned(s, budget)
	if end == 0 {
		// Budget narrower than the first rune: take the whole rune so the
		// split always advances.
		_, size := utf8.DecodeRuneInString(s)
		return size
	}
	window := s[:end]
	floor := int(float64(budget) * boundaryFloor)

	if i := strings.LastIndexByte(window, '\n'); i >= floor {
		return i + 1
	}
	if i := strings.LastIndexAny(window, sentenceEnds); i >= floor {
		_, size := utf8.DecodeRuneInString(window[i:])
		return i + size
	}
	return end
}

// runeAligned walks i back to the nearest rune start so a hard cut never
// splits a multi-byte character.
func runeAligned(s string, i int) int {
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}
