package transcribe

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"podcast-insights-go/internal/audio"
	"podcast-insights-go/internal/logger"
	"podcast-insights-go/internal/retry"
	"podcast-insights-go/internal/types"
)

type audioAPI interface {
	CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
}

type preparer interface {
	Prepare(ctx context.Context, path string, maxBytes int64) (*audio.Prepared, error)
}

// Whisper is the segment-upload strategy: prepare the local audio into
// upload-legal segments, transcribe each in order, and stitch the results.
type Whisper struct {
	client         audioAPI
	prep           preparer
	model          string
	maxUploadBytes int64
	retry          retry.Config
	log            *logrus.Entry
}

func NewWhisper(client *openai.Client, prep *audio.Preparer, model string, maxUploadBytes int64, retryCfg retry.Config) *Whisper {
	return &Whisper{
		client:         client,
		prep:           prep,
		model:          model,
		maxUploadBytes: maxUploadBytes,
		retry:          retryCfg,
		log:            logger.Component("transcribe-whisper"),
	}
}

func (w *Whisper) NeedsLocalAudio() bool { return true }

func (w *Whisper) Transcribe(ctx context.Context, ep types.Episode, localAudioPath string) (types.TranscriptionResult, error) {
	prepared, err := w.prep.Prepare(ctx, localAudioPath, w.maxUploadBytes)
	if err != nil {
		return types.TranscriptionResult{}, fmt.Errorf("prepare audio: %w", err)
	}
	defer prepared.Cleanup()

	var (
		texts    []string
		duration float64
		language string
	)
	for i, seg := range prepared.Segments {
		segLog := w.log.WithFields(logrus.Fields{"episode_id": ep.ID, "segment": i + 1, "segments": len(prepared.Segments)})
		resp, err := retry.Do(ctx, segLog, "whisper-transcribe", w.retry, func() (openai.AudioResponse, error) {
			return w.client.CreateTranscription(ctx, openai.AudioRequest{
				Model:    w.model,
				FilePath: seg,
				Format:   openai.AudioResponseFormatVerboseJSON,
			})
		})
		if err != nil {
			return types.TranscriptionResult{}, fmt.Errorf("transcribe segment %d/%d: %w", i+1, len(prepared.Segments), err)
		}
		texts = append(texts, strings.TrimSpace(resp.Text))
		duration += resp.Duration
		if language == "" {
			language = resp.Language
		}
		segLog.WithField("chars", len(resp.Text)).Info("segment transcribed")
	}

	return types.TranscriptionResult{
		Text:     strings.Join(texts, " "),
		Language: language,
		Duration: duration,
	}, nil
}
