package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"podcast-insights-go/internal/logger"
)

// fakeRunner simulates ffmpeg/ffprobe: compression writes a file of
// compressedSize bytes, probing prints a duration, cutting writes small
// segment files.
type fakeRunner struct {
	compressedSize int64
	duration       string
	probeErr       error
	cuts           int
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	out := args[len(args)-1]
	switch {
	case name == "ffprobe":
		if f.probeErr != nil {
			return "", f.probeErr
		}
		return f.duration + "\n", nil
	case contains(args, "-b:a"):
		return "", writeBytes(out, f.compressedSize)
	case contains(args, "-ss"):
		f.cuts++
		return "", writeBytes(out, 1024)
	}
	return "", fmt.Errorf("unexpected command %s %v", name, args)
}

func contains(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}

func writeBytes(path string, n int64) error {
	return os.WriteFile(path, make([]byte, n), 0o644)
}

func newTestPreparer(t *testing.T, r commandRunner) (*Preparer, string) {
	t.Helper()
	p := &Preparer{
		runner:  r,
		log:     logger.Component("audio-prepare-test"),
		ffmpeg:  "true", // always on PATH
		ffprobe: "ffprobe",
		timeout: time.Second,
	}
	src := filepath.Join(t.TempDir(), "episode.mp3")
	if err := writeBytes(src, 4096); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return p, src
}

func TestPrepareSplitsOversizedAudio(t *testing.T) {
	const limit = 25 * 1024 * 1024
	runner := &fakeRunner{compressedSize: 40 * 1024 * 1024, duration: "3600.0"}
	p, src := newTestPreparer(t, runner)

	prepared, err := p.Prepare(context.Background(), src, limit)
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	defer prepared.Cleanup()

	if len(prepared.Segments) != 2 {
		t.Fatalf("expected 2 segments for 40MB at 25MB limit, got %d", len(prepared.Segments))
	}
	if runner.cuts != 2 {
		t.Fatalf("expected 2 cut invocations, got %d", runner.cuts)
	}
	for _, seg := range prepared.Segments {
		info, err := os.Stat(seg)
		if err != nil {
			t.Fatalf("segment missing: %v", err)
		}
		if info.Size() >= limit {
			t.Fatalf("segment %s not under limit", seg)
		}
	}
}

func TestPrepareReturnsSingleSegmentWhenUnderLimit(t *testing.T) {
	runner := &fakeRunner{compressedSize: 1024, duration: "60.0"}
	p, src := newTestPreparer(t, runner)

	prepared, err := p.Prepare(context.Background(), src, 25*1024*1024)
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	defer prepared.Cleanup()

	if len(prepared.Segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(prepared.Segments))
	}
	if runner.cuts != 0 {
		t.Fatalf("expected no cuts, got %d", runner.cuts)
	}
}

func TestPrepareSkipsSplitWhenProbeFails(t *testing.T) {
	runner := &fakeRunner{compressedSize: 64 * 1024 * 1024, probeErr: errors.New("no duration")}
	p, src := newTestPreparer(t, runner)

	prepared, err := p.Prepare(context.Background(), src, 25*1024*1024)
	if err != nil {
		t.Fatalf("Prepare must not fail on a probe error: %v", err)
	}
	defer prepared.Cleanup()

	if len(prepared.Segments) != 1 {
		t.Fatalf("expected compressed file as single segment, got %d", len(prepared.Segments))
	}
}

func TestPreparePassesThroughWithoutFFmpeg(t *testing.T) {
	p, src := newTestPreparer(t, &fakeRunner{})
	p.ffmpeg = filepath.Join(t.TempDir(), "no-such-ffmpeg")

	prepared, err := p.Prepare(context.Background(), src, 1)
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if len(prepared.Segments) != 1 || prepared.Segments[0] != src {
		t.Fatalf("expected original file pass-through, got %v", prepared.Segments)
	}
}

func TestSegmentCount(t *testing.T) {
	cases := []struct {
		size, limit int64
		want        int
	}{
		{40 << 20, 25 << 20, 2},
		{26 << 20, 25 << 20, 2},
		{50 << 20, 25 << 20, 3},
		{100 << 20, 25 << 20, 5},
		{1 << 20, 25 << 20, 1},
	}
	for _, tc := range cases {
		if got := segmentCount(tc.size, tc.limit); got != tc.want {
			t.Errorf("segmentCount(%d, %d) = %d, want %d", tc.size, tc.limit, got, tc.want)
		}
	}
}
