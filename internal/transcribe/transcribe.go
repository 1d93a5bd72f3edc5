// Package transcribe adapts two remote transcription strategies behind one
// interface: synchronous per-segment upload (whisper) and asynchronous
// submit-and-poll against a job endpoint. Both return the same result shape
// so the orchestrator is indifferent to which is configured.
package transcribe

import (
	"context"

	"podcast-insights-go/internal/types"
)

type Transcriber interface {
	// Transcribe produces the transcript for one episode. localAudioPath is
	// only set when NeedsLocalAudio reports true.
	Transcribe(ctx context.Context, ep types.Episode, localAudioPath string) (types.TranscriptionResult, error)

	// NeedsLocalAudio reports whether the orchestrator must download the
	// episode media before calling Transcribe.
	NeedsLocalAudio() bool
}
