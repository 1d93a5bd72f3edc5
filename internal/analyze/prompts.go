package analyze

import "fmt"

const structuredSystemPrompt = `You are an expert podcast analyst. You produce faithful, structured reports of episode transcripts. Return ONLY valid JSON, no commentary, no markdown fences.`

const chunkSystemPrompt = `You are an expert podcast analyst. You summarize one part of a longer transcript faithfully, preserving chronological order, speaker positions, and key terminology.`

func (e *Engine) analysisPrompt(transcript, episodeTitle, feedTitle string) string {
	return fmt.Sprintf(`Analyze this podcast episode transcript.

Podcast: %s
Episode: %s

Return ONLY a JSON object with exactly these keys:
{
  "summary": "",
  "keyPoints": [{"title": "", "detail": ""}],
  "keywords": [{"term": "", "context": ""}],
  "recap": ""
}

Guidelines:
- "summary": roughly %d characters covering the episode's main topics.
- "keyPoints": about %d entries, each a short title plus one or two sentences of detail.
- "keywords": notable terms, names, and concepts with the context they appeared in.
- "recap": a longer narrative retelling of the episode in chronological order.
- Ground everything in the transcript. Do not invent facts.

TRANSCRIPT:
"""%s"""`,
		feedTitle, episodeTitle, e.cfg.SummaryTargetChars, e.cfg.KeyPointCount, transcript)
}

func (e *Engine) chunkPrompt(chunk string, index, total int, episodeTitle string) string {
	return fmt.Sprintf(`This is part %d of %d of the transcript of the episode "%s".

Write a prose summary of this part (plain text, NOT JSON). Capture the topics discussed, the positions taken, and key terminology, preserving the order in which things were said.

TRANSCRIPT PART:
"""%s"""`,
		index, total, episodeTitle, chunk)
}

func (e *Engine) mergePrompt(partSummaries, episodeTitle, feedTitle string) string {
	return fmt.Sprintf(`Below are ordered partial summaries of one podcast episode. Merge them into a single structured analysis of the whole episode.

Podcast: %s
Episode: %s

Return ONLY a JSON object with exactly these keys:
{
  "summary": "",
  "keyPoints": [{"title": "", "detail": ""}],
  "keywords": [{"term": "", "context": ""}],
  "recap": ""
}

Guidelines:
- "summary": roughly %d characters covering the whole episode.
- "keyPoints": about %d entries across all parts.
- "keywords": notable terms, names, and concepts with their context.
- "recap": a longer narrative retelling of the full episode in order.
- Use only the partial summaries below. Do not invent facts.

PARTIAL SUMMARIES:
%s`,
		feedTitle, episodeTitle, e.cfg.SummaryTargetChars, e.cfg.KeyPointCount, partSummaries)
}
