package transcribe

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"podcast-insights-go/internal/audio"
	"podcast-insights-go/internal/logger"
	"podcast-insights-go/internal/retry"
	"podcast-insights-go/internal/types"
)

type fakePreparer struct {
	segments []string
}

func (f *fakePreparer) Prepare(_ context.Context, _ string, _ int64) (*audio.Prepared, error) {
	return &audio.Prepared{Segments: f.segments}, nil
}

type fakeAudioAPI struct {
	responses map[string]openai.AudioResponse
	failures  map[string]int // remaining failures per file path
	calls     int
}

func (f *fakeAudioAPI) CreateTranscription(_ context.Context, req openai.AudioRequest) (openai.AudioResponse, error) {
	f.calls++
	if n := f.failures[req.FilePath]; n > 0 {
		f.failures[req.FilePath] = n - 1
		return openai.AudioResponse{}, errors.New("connection reset")
	}
	resp, ok := f.responses[req.FilePath]
	if !ok {
		return openai.AudioResponse{}, errors.New("unknown segment")
	}
	return resp, nil
}

func newTestWhisper(api audioAPI, prep preparer) *Whisper {
	return &Whisper{
		client:         api,
		prep:           prep,
		model:          "whisper-1",
		maxUploadBytes: 25 << 20,
		retry:          retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, CapDelay: time.Millisecond, NoJitter: true},
		log:            logger.Component("whisper-test"),
	}
}

func TestWhisperConcatenatesSegmentsInOrder(t *testing.T) {
	api := &fakeAudioAPI{responses: map[string]openai.AudioResponse{
		"seg-0.mp3": {Text: "first part", Language: "english", Duration: 1800},
		"seg-1.mp3": {Text: "second part", Duration: 1700},
	}}
	w := newTestWhisper(api, &fakePreparer{segments: []string{"seg-0.mp3", "seg-1.mp3"}})

	res, err := w.Transcribe(context.Background(), types.Episode{ID: 1}, "episode.mp3")
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if res.Text != "first part second part" {
		t.Fatalf("unexpected text %q", res.Text)
	}
	if res.Duration != 3500 {
		t.Fatalf("expected summed duration 3500, got %v", res.Duration)
	}
	if res.Language != "english" {
		t.Fatalf("expected first reported language, got %q", res.Language)
	}
}

func TestWhisperRetriesTransientSegmentFailure(t *testing.T) {
	api := &fakeAudioAPI{
		responses: map[string]openai.AudioResponse{"seg-0.mp3": {Text: "recovered", Duration: 60}},
		failures:  map[string]int{"seg-0.mp3": 2},
	}
	w := newTestWhisper(api, &fakePreparer{segments: []string{"seg-0.mp3"}})

	res, err := w.Transcribe(context.Background(), types.Episode{ID: 2}, "episode.mp3")
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if res.Text != "recovered" {
		t.Fatalf("unexpected text %q", res.Text)
	}
	if api.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", api.calls)
	}
}

func TestWhisperFailsWholeJobWhenSegmentExhaustsRetries(t *testing.T) {
	api := &fakeAudioAPI{
		responses: map[string]openai.AudioResponse{
			"seg-0.mp3": {Text: "ok", Duration: 60},
		},
		failures: map[string]int{"seg-1.mp3": 99},
	}
	w := newTestWhisper(api, &fakePreparer{segments: []string{"seg-0.mp3", "seg-1.mp3"}})

	_, err := w.Transcribe(context.Background(), types.Episode{ID: 3}, "episode.mp3")
	if err == nil {
		t.Fatal("expected failure when a segment exhausts retries")
	}
	if !strings.Contains(err.Error(), "segment 2/2") {
		t.Fatalf("error should name the failing segment, got %v", err)
	}
}

func TestWhisperNeedsLocalAudio(t *testing.T) {
	if !newTestWhisper(&fakeAudioAPI{}, &fakePreparer{}).NeedsLocalAudio() {
		t.Fatal("whisper strategy must request a local download")
	}
}
