// Package analyze produces a structured report from a transcript. Short
// transcripts go through a single structured model call; long ones are split
// into bounded chunks, summarized independently, and merged with a second
// structured call.
package analyze

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"podcast-insights-go/internal/logger"
	"podcast-insights-go/internal/retry"
	"podcast-insights-go/internal/types"
)

// minimum trimmed content lengths before a model response counts as usable.
const (
	minStructuredChars   = 20
	minChunkSummaryChars = 10
)

// chatAPI is the slice of the OpenAI client the engine needs; tests inject
// a fake.
type chatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Config struct {
	Model               string
	SinglePassThreshold int
	ChunkBudget         int
	SummaryTargetChars  int
	KeyPointCount       int
	Retry               retry.Config
}

type Engine struct {
	client chatAPI
	cfg    Config
	log    *logrus.Entry
}

func NewEngine(client *openai.Client, cfg Config) *Engine {
	return &Engine{client: client, cfg: cfg, log: logger.Component("analyze")}
}

// Analyze produces the structured report for one transcript. Transcripts at
// or under the single-pass threshold are analyzed in one call; longer ones
// go through the chunk/summarize/merge path.
func (e *Engine) Analyze(ctx context.Context, transcript, episodeTitle, feedTitle string) (types.AnalysisOutput, error) {
	if len(transcript) <= e.cfg.SinglePassThreshold {
		e.log.WithField("chars", len(transcript)).Info("single-pass analysis")
		return e.structured(ctx, e.analysisPrompt(transcript, episodeTitle, feedTitle))
	}

	chunks := Split(transcript, e.cfg.ChunkBudget)
	e.log.WithFields(logrus.Fields{
		"chars":  len(transcript),
		"chunks": len(chunks),
	}).Info("chunked analysis")

	summaries := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		summary, err := e.summarizeChunk(ctx, chunk, i+1, len(chunks), episodeTitle)
		if err != nil {
			return types.AnalysisOutput{}, fmt.Errorf("chunk %d/%d summary: %w", i+1, len(chunks), err)
		}
		summaries = append(summaries, fmt.Sprintf("Part %d of %d:\n%s", i+1, len(chunks), summary))
	}

	combined := strings.Join(summaries, "\n\n")
	return e.structured(ctx, e.mergePrompt(combined, episodeTitle, feedTitle))
}

// structured issues one JSON-returning model call and normalizes the result.
// Empty or too-short content is retried; parse failures degrade to
// placeholders rather than erroring.
func (e *Engine) structured(ctx context.Context, prompt string) (types.AnalysisOutput, error) {
	content, err := retry.Do(ctx, e.log, "structured-analysis", e.cfg.Retry, func() (string, error) {
		c, err := e.complete(ctx, structuredSystemPrompt, prompt)
		if err != nil {
			return "", err
		}
		if len(strings.TrimSpace(c)) < minStructuredChars {
			return "", fmt.Errorf("analysis response too short (%d chars)", len(c))
		}
		return c, nil
	})
	if err != nil {
		return types.AnalysisOutput{}, fmt.Errorf("structured analysis: %w", err)
	}
	return Normalize(content), nil
}

func (e *Engine) summarizeChunk(ctx context.Context, chunk string, index, total int, episodeTitle string) (string, error) {
	prompt := e.chunkPrompt(chunk, index, total, episodeTitle)
	return retry.Do(ctx, e.log.WithField("chunk", index), "chunk-summary", e.cfg.Retry, func() (string, error) {
		c, err := e.complete(ctx, chunkSystemPrompt, prompt)
		if err != nil {
			return "", err
		}
		c = strings.TrimSpace(c)
		if len(c) < minChunkSummaryChars {
			return "", fmt.Errorf("chunk summary too short (%d chars)", len(c))
		}
		return c, nil
	})
}

func (e *Engine) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.cfg.Model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion response")
	}
	return resp.Choices[0].Message.Content, nil
}
