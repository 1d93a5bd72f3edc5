// Package pipeline drives one episode job through its state machine:
// pending -> processing -> completed | failed. The idempotency guard is an
// advisory check for an existing analysis; overlapping runs on the same
// episode do harmless double work rather than corrupting state.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"podcast-insights-go/internal/logger"
	"podcast-insights-go/internal/transcribe"
	"podcast-insights-go/internal/types"
)

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

var (
	ErrNoAudioURL         = errors.New("no audio URL")
	ErrTranscriptTooShort = errors.New("transcript too short")
)

// Store is the narrow slice of the repository the orchestrator writes
// through. Status mutations are the only externally visible effect of a job.
type Store interface {
	HasAnalysis(ctx context.Context, episodeID int64) (bool, error)
	SetStatus(ctx context.Context, episodeID int64, status types.ProcessingStatus, errMsg string) error
	SaveAnalysis(ctx context.Context, episodeID int64, transcript string, out types.AnalysisOutput, artifactPath string) error
	DeleteAnalysis(ctx context.Context, episodeID int64) error
}

// Renderer turns the structured analysis into a persistable artifact and
// returns its reference.
type Renderer interface {
	Render(out types.AnalysisOutput, ep types.Episode) (string, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, transcript, episodeTitle, feedTitle string) (types.AnalysisOutput, error)
}

type Config struct {
	MinTranscriptChars int
	TempDir            string
}

type Processor struct {
	store       Store
	transcriber transcribe.Transcriber
	analyzer    Analyzer
	renderer    Renderer
	client      *http.Client
	cfg         Config
	log         *logrus.Entry
}

func NewProcessor(store Store, transcriber transcribe.Transcriber, analyzer Analyzer, renderer Renderer, client *http.Client, cfg Config) *Processor {
	return &Processor{
		store:       store,
		transcriber: transcriber,
		analyzer:    analyzer,
		renderer:    renderer,
		client:      client,
		cfg:         cfg,
		log:         logger.Component("pipeline"),
	}
}

// Process runs the full job for one episode. The temp download, if any, is
// removed on every exit path.
func (p *Processor) Process(ctx context.Context, ep types.Episode) (Outcome, error) {
	log := p.log.WithFields(logrus.Fields{"episode_id": ep.ID, "episode": ep.Title})

	has, err := p.store.HasAnalysis(ctx, ep.ID)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("idempotency check: %w", err)
	}
	if has {
		log.Info("analysis already exists, skipping")
		return OutcomeSkipped, nil
	}

	if strings.TrimSpace(ep.AudioURL) == "" {
		return p.fail(ctx, ep, log, ErrNoAudioURL)
	}

	if err := p.store.SetStatus(ctx, ep.ID, types.StatusProcessing, ""); err != nil {
		return OutcomeFailed, fmt.Errorf("mark processing: %w", err)
	}
	log.Info("processing episode")

	var localPath string
	if p.transcriber.NeedsLocalAudio() {
		localPath, err = p.downloadAudio(ctx, ep)
		if err != nil {
			return p.fail(ctx, ep, log, fmt.Errorf("download audio: %w", err))
		}
		defer os.Remove(localPath)
	}

	tr, err := p.transcriber.Transcribe(ctx, ep, localPath)
	if err != nil {
		return p.fail(ctx, ep, log, fmt.Errorf("transcription: %w", err))
	}
	if len(strings.TrimSpace(tr.Text)) < p.cfg.MinTranscriptChars {
		return p.fail(ctx, ep, log, fmt.Errorf("%w: %d chars", ErrTranscriptTooShort, len(strings.TrimSpace(tr.Text))))
	}
	log.WithFields(logrus.Fields{"chars": len(tr.Text), "language": tr.Language}).Info("transcription done")

	out, err := p.analyzer.Analyze(ctx, tr.Text, ep.Title, ep.FeedTitle)
	if err != nil {
		return p.fail(ctx, ep, log, fmt.Errorf("analysis: %w", err))
	}

	artifact, err := p.renderer.Render(out, ep)
	if err != nil {
		return p.fail(ctx, ep, log, fmt.Errorf("render artifact: %w", err))
	}
	if err := p.store.SaveAnalysis(ctx, ep.ID, tr.Text, out, artifact); err != nil {
		return p.fail(ctx, ep, log, fmt.Errorf("persist analysis: %w", err))
	}

	if err := p.store.SetStatus(ctx, ep.ID, types.StatusCompleted, ""); err != nil {
		return OutcomeFailed, fmt.Errorf("mark completed: %w", err)
	}
	log.WithField("artifact", artifact).Info("episode completed")
	return OutcomeCompleted, nil
}

// Reprocess is the operator retrigger: drop any prior analysis so a fresh
// run never sits beside a stale artifact, reset to pending, run again.
func (p *Processor) Reprocess(ctx context.Context, ep types.Episode) (Outcome, error) {
	if err := p.store.DeleteAnalysis(ctx, ep.ID); err != nil {
		return OutcomeFailed, fmt.Errorf("delete prior analysis: %w", err)
	}
	if err := p.store.SetStatus(ctx, ep.ID, types.StatusPending, ""); err != nil {
		return OutcomeFailed, fmt.Errorf("reset status: %w", err)
	}
	ep.Status = types.StatusPending
	return p.Process(ctx, ep)
}

func (p *Processor) fail(ctx context.Context, ep types.Episode, log *logrus.Entry, cause error) (Outcome, error) {
	log.WithField("error", cause.Error()).Warn("episode failed")
	if err := p.store.SetStatus(ctx, ep.ID, types.StatusFailed, cause.Error()); err != nil {
		log.WithField("error", err.Error()).Error("could not record failure status")
	}
	return OutcomeFailed, cause
}

func (p *Processor) downloadAudio(ctx context.Context, ep types.Episode) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.AudioURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("status %d fetching media", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(p.cfg.TempDir, fmt.Sprintf("episode-%d-*.mp3", ep.ID))
	if err != nil {
		return "", err
	}
	defer tmp.Close()
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}
